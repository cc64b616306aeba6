package heap

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	gosync "sync"
	"testing"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
)

func testConfig() Config {
	return Config{MinScale: 4, MaxScale: 10, Blocks: 4}
}

func newTestHeap(t *testing.T, cfg Config) *Heap {
	t.Helper()

	h, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error creating heap: %v", err)
	}
	t.Cleanup(func() { h.Release() })
	return h
}

func TestNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		specs := []Config{
			{MinScale: 3, MaxScale: 10, Blocks: 1},
			{MinScale: 4, MaxScale: 31, Blocks: 1},
			{MinScale: 8, MaxScale: 6, Blocks: 1},
			{MinScale: 4, MaxScale: 10, Blocks: 0},
			{MinScale: 4, MaxScale: 30, Blocks: 4},
		}

		for specIndex, spec := range specs {
			if _, err := New(spec); err != ErrInvalidConfig {
				t.Errorf("[spec %d] expected to get ErrInvalidConfig; got %v", specIndex, err)
			}
		}
	})

	t.Run("arena reservation fails", func(t *testing.T) {
		defer func(orig func(int) ([]byte, func() error, error)) { mapArenaFn = orig }(mapArenaFn)
		mapArenaFn = func(_ int) ([]byte, func() error, error) {
			return nil, nil, errors.New("mmap failed")
		}

		if _, err := New(testConfig()); err != errArenaMap {
			t.Fatalf("expected to get errArenaMap; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var reserved int
		defer func(orig func(int) ([]byte, func() error, error)) { mapArenaFn = orig }(mapArenaFn)
		mapArenaFn = func(size int) ([]byte, func() error, error) {
			reserved = size
			return make([]byte, size), func() error { return nil }, nil
		}

		h := newTestHeap(t, testConfig())

		if exp := 4 << 10; reserved != exp {
			t.Errorf("expected arena reservation of %d bytes; got %d", exp, reserved)
		}

		if got := h.Break(); got != 1024 {
			t.Errorf("expected initial break to be 1024; got %d", got)
		}

		counts := h.FreeCounts()
		for scale, count := range counts {
			exp := 0
			if scale == 10 {
				exp = 1
			}
			if count != exp {
				t.Errorf("expected %d free blocks of scale %d; got %d", exp, scale, count)
			}
		}
	})
}

func TestScaleFor(t *testing.T) {
	h := newTestHeap(t, testConfig())

	specs := []struct {
		size     mem.Size
		expScale uint8
	}{
		{1, 4},
		{7, 4},
		{8, 5},
		{23, 5},
		{24, 6},
		{55, 6},
		{56, 7},
		{119, 7},
		{120, 8},
		{247, 8},
		{248, 9},
		{503, 9},
		{504, 10},
		{1015, 10},
	}

	for specIndex, spec := range specs {
		if got := h.ScaleFor(spec.size); got != spec.expScale {
			t.Errorf("[spec %d] expected scale for %d bytes to be %d; got %d", specIndex, spec.size, spec.expScale, got)
		}
	}
}

func TestAllocateInvalidSize(t *testing.T) {
	h := newTestHeap(t, testConfig())
	before := h.FreeCounts()

	for _, size := range []mem.Size{0, h.MaxAllocation() + 1} {
		addr, err := h.Allocate(size)
		if err != ErrInvalidSize {
			t.Errorf("[size %d] expected to get ErrInvalidSize; got %v", size, err)
		}
		if addr != 0 {
			t.Errorf("[size %d] expected null address; got %d", size, addr)
		}
	}

	if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected free lists to remain untouched; before %v, after %v", before, after)
	}
}

func TestAllocateMaxSize(t *testing.T) {
	h := newTestHeap(t, testConfig())

	addr, err := h.Allocate(h.MaxAllocation())
	if err != nil {
		t.Fatal(err)
	}

	if addr != headerSize {
		t.Errorf("expected allocation to start right after the first header; got %d", addr)
	}

	if got := h.BlockSize(addr); got != h.MaxAllocation() {
		t.Errorf("expected block size %d; got %d", h.MaxAllocation(), got)
	}

	if got := h.FreeCounts()[10]; got != 0 {
		t.Errorf("expected no free max-scale blocks; got %d", got)
	}
}

func TestAllocateSplits(t *testing.T) {
	h := newTestHeap(t, testConfig())

	addr, err := h.Allocate(1)
	if err != nil {
		t.Fatal(err)
	}

	if addr != headerSize {
		t.Errorf("expected allocation at %d; got %d", headerSize, addr)
	}

	// splitting a scale 10 block down to scale 4 leaves one free block for
	// every scale in between
	exp := []int{0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 0}
	if got := h.FreeCounts(); !reflect.DeepEqual(got, exp) {
		t.Fatalf("expected free counts %v; got %v", exp, got)
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	h := newTestHeap(t, testConfig())

	// keep a few allocations live so the round trip does not always start
	// from a pristine heap
	for _, size := range []mem.Size{30, 100} {
		if _, err := h.Allocate(size); err != nil {
			t.Fatal(err)
		}
	}

	for size := mem.Size(1); size <= h.MaxAllocation(); size += 37 {
		before := h.FreeCounts()

		addr, err := h.Allocate(size)
		if err != nil {
			t.Fatalf("[size %d] unexpected error: %v", size, err)
		}
		if err = h.Free(addr); err != nil {
			t.Fatalf("[size %d] unexpected error: %v", size, err)
		}

		if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
			t.Fatalf("[size %d] expected free lists to be restored; before %v, after %v", size, before, after)
		}
	}
}

func TestCoalesce(t *testing.T) {
	specs := []struct {
		descr     string
		freeLower bool
	}{
		{"lower buddy first", true},
		{"upper buddy first", false},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			h := newTestHeap(t, testConfig())

			lower, err := h.Allocate(200)
			if err != nil {
				t.Fatal(err)
			}
			upper, err := h.Allocate(200)
			if err != nil {
				t.Fatal(err)
			}

			if exp := lower + 256; upper != exp {
				t.Fatalf("expected buddy allocation at %d; got %d", exp, upper)
			}

			first, second := upper, lower
			if spec.freeLower {
				first, second = lower, upper
			}

			if err = h.Free(first); err != nil {
				t.Fatal(err)
			}
			if got := h.FreeCounts()[8]; got != 1 {
				t.Fatalf("expected a single free scale 8 block after the first free; got %d", got)
			}

			if err = h.Free(second); err != nil {
				t.Fatal(err)
			}

			exp := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
			if got := h.FreeCounts(); !reflect.DeepEqual(got, exp) {
				t.Fatalf("expected free counts %v; got %v", exp, got)
			}
		})
	}
}

func TestNoOverlap(t *testing.T) {
	h := newTestHeap(t, testConfig())

	type allocation struct {
		addr Addr
		size mem.Size
		tag  byte
	}

	var (
		rng  = rand.New(rand.NewSource(4810))
		live []allocation
		tag  byte
	)

	checkLive := func() {
		for i, a := range live {
			for j := i + 1; j < len(live); j++ {
				b := live[j]
				if a.addr < b.addr+Addr(b.size) && b.addr < a.addr+Addr(a.size) {
					t.Fatalf("allocations [%d, +%d) and [%d, +%d) overlap", a.addr, a.size, b.addr, b.size)
				}
			}

			for _, got := range h.Bytes(a.addr, a.size) {
				if got != a.tag {
					t.Fatalf("contents of allocation at %d were clobbered", a.addr)
				}
			}
		}
	}

	for round := 0; round < 2000; round++ {
		if len(live) != 0 && rng.Intn(3) == 0 {
			index := rng.Intn(len(live))
			if err := h.Free(live[index].addr); err != nil {
				t.Fatalf("[round %d] unexpected error: %v", round, err)
			}
			live = append(live[:index], live[index+1:]...)
			continue
		}

		size := mem.Size(rng.Intn(300) + 1)
		addr, err := h.Allocate(size)
		if err == ErrOutOfMemory {
			continue
		}
		if err != nil {
			t.Fatalf("[round %d] unexpected error: %v", round, err)
		}

		tag++
		mem.Memset(h.Bytes(addr, size), tag)
		live = append(live, allocation{addr: addr, size: size, tag: tag})

		if round%50 == 0 {
			checkLive()
		}
	}
	checkLive()

	for _, a := range live {
		if err := h.Free(a.addr); err != nil {
			t.Fatal(err)
		}
	}

	// every block must have merged back into a max-scale block
	counts := h.FreeCounts()
	for scale := 0; scale < 10; scale++ {
		if counts[scale] != 0 {
			t.Fatalf("expected no free blocks of scale %d; got %d", scale, counts[scale])
		}
	}
	if exp := int(h.Break() / 1024); counts[10] != exp {
		t.Fatalf("expected %d free max-scale blocks; got %d", exp, counts[10])
	}
}

func TestGrowAndShrink(t *testing.T) {
	h := newTestHeap(t, testConfig())

	var addrs []Addr
	for i := 0; i < 4; i++ {
		addr, err := h.Allocate(h.MaxAllocation())
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}

		if exp := Addr(i*1024 + headerSize); addr != exp {
			t.Errorf("[alloc %d] expected address %d; got %d", i, exp, addr)
		}
		if exp := Addr((i + 1) * 1024); h.Break() != exp {
			t.Errorf("[alloc %d] expected break %d; got %d", i, exp, h.Break())
		}
		addrs = append(addrs, addr)
	}

	if _, err := h.Allocate(1); err != ErrOutOfMemory {
		t.Fatalf("expected to get ErrOutOfMemory once the arena is exhausted; got %v", err)
	}

	// releasing a block below the top must not move the break
	if err := h.Free(addrs[1]); err != nil {
		t.Fatal(err)
	}
	if got := h.Break(); got != 4096 {
		t.Fatalf("expected break to remain at 4096; got %d", got)
	}

	// releasing the topmost block shrinks the heap by one block
	if err := h.Free(addrs[3]); err != nil {
		t.Fatal(err)
	}
	if got := h.Break(); got != 3072 {
		t.Fatalf("expected break to shrink to 3072; got %d", got)
	}

	// a free block that is not topmost is reused before the heap grows
	addr, err := h.Allocate(h.MaxAllocation())
	if err != nil {
		t.Fatal(err)
	}
	if addr != addrs[1] {
		t.Fatalf("expected free block at %d to be reused; got %d", addrs[1], addr)
	}
	if got := h.Break(); got != 3072 {
		t.Fatalf("expected break to remain at 3072; got %d", got)
	}
}

func TestBrk(t *testing.T) {
	h := newTestHeap(t, testConfig())

	if err := h.Brk(3000); err != nil {
		t.Fatal(err)
	}
	if got := h.Break(); got != 3072 {
		t.Fatalf("expected break to be rounded up to 3072; got %d", got)
	}
	if got := h.FreeCounts()[10]; got != 3 {
		t.Fatalf("expected 3 free max-scale blocks; got %d", got)
	}

	if err := h.Brk(5000); err != ErrOutOfMemory {
		t.Fatalf("expected to get ErrOutOfMemory when growing past the arena; got %v", err)
	}

	if err := h.Sbrk(0); err != ErrInvalidSize {
		t.Fatalf("expected to get ErrInvalidSize for a zero increment; got %v", err)
	}

	if err := h.Sbrk(-2); err != nil {
		t.Fatal(err)
	}
	if got := h.Break(); got != 1024 {
		t.Fatalf("expected break to shrink to 1024; got %d", got)
	}

	if _, err := h.Allocate(1); err != nil {
		t.Fatal(err)
	}

	before := h.FreeCounts()
	if err := h.Sbrk(-1); err != ErrBrkInUse {
		t.Fatalf("expected to get ErrBrkInUse; got %v", err)
	}
	if got := h.Break(); got != 1024 {
		t.Fatalf("expected break to remain at 1024; got %d", got)
	}
	if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected free lists to remain untouched; before %v, after %v", before, after)
	}
}

func TestFreeCorruptedBlock(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	h := newTestHeap(t, testConfig())

	if err := h.Free(0); err != nil {
		t.Fatalf("expected freeing the null address to be a no-op; got %v", err)
	}

	t.Run("double free", func(t *testing.T) {
		addr, err := h.Allocate(100)
		if err != nil {
			t.Fatal(err)
		}
		if err = h.Free(addr); err != nil {
			t.Fatal(err)
		}

		before := h.FreeCounts()
		if err = h.Free(addr); err != ErrCorruptedBlock {
			t.Fatalf("expected to get ErrCorruptedBlock; got %v", err)
		}
		if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
			t.Fatalf("expected free lists to remain untouched; before %v, after %v", before, after)
		}
	})

	t.Run("double free of a merged buddy", func(t *testing.T) {
		lower, err := h.Allocate(5)
		if err != nil {
			t.Fatal(err)
		}
		upper, err := h.Allocate(5)
		if err != nil {
			t.Fatal(err)
		}

		for _, addr := range []Addr{lower, upper} {
			if err = h.Free(addr); err != nil {
				t.Fatal(err)
			}
		}

		before := h.FreeCounts()
		for _, addr := range []Addr{upper, lower} {
			if err = h.Free(addr); err != ErrCorruptedBlock {
				t.Errorf("[addr 0x%x] expected to get ErrCorruptedBlock; got %v", addr, err)
			}
		}
		if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
			t.Fatalf("expected free lists to remain untouched; before %v, after %v", before, after)
		}
	})

	t.Run("clobbered header", func(t *testing.T) {
		addr, err := h.Allocate(100)
		if err != nil {
			t.Fatal(err)
		}

		// overwrite the next link of the block header
		h.arena[uint32(addr)-headerSize] ^= 0xff

		before := h.FreeCounts()
		if err = h.Free(addr); err != ErrCorruptedBlock {
			t.Fatalf("expected to get ErrCorruptedBlock; got %v", err)
		}
		if after := h.FreeCounts(); !reflect.DeepEqual(before, after) {
			t.Fatalf("expected free lists to remain untouched; before %v, after %v", before, after)
		}
	})

	t.Run("address outside the heap", func(t *testing.T) {
		for _, addr := range []Addr{1, 5000} {
			if err := h.Free(addr); err != ErrCorruptedBlock {
				t.Errorf("[addr %d] expected to get ErrCorruptedBlock; got %v", addr, err)
			}
		}
	})

	if !bytes.Contains(buf.Bytes(), []byte("[heap] block data corrupted at 0x")) {
		t.Fatalf("expected corruption to be logged; got %q", buf.String())
	}
}

func TestOnCorruption(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	h := newTestHeap(t, testConfig())

	var reported []*kernel.Error
	h.OnCorruption(func(err *kernel.Error) {
		reported = append(reported, err)

		// the heap remains usable from within the handler
		if _, err := h.Allocate(16); err != nil {
			t.Errorf("unexpected error allocating from the corruption handler: %v", err)
		}
	})

	addr, err := h.Allocate(32)
	if err != nil {
		t.Fatal(err)
	}
	if err = h.Free(addr); err != nil {
		t.Fatal(err)
	}
	if len(reported) != 0 {
		t.Fatal("expected a valid free not to invoke the handler")
	}

	if err = h.Free(addr); err != ErrCorruptedBlock {
		t.Fatalf("expected to get ErrCorruptedBlock; got %v", err)
	}
	if len(reported) != 1 || reported[0] != ErrCorruptedBlock {
		t.Fatalf("expected the handler to receive ErrCorruptedBlock once; got %v", reported)
	}
}

func TestBytes(t *testing.T) {
	h := newTestHeap(t, testConfig())

	addr, err := h.Allocate(20)
	if err != nil {
		t.Fatal(err)
	}

	// a 20 byte request is served by a 32 byte block
	if got := h.BlockSize(addr); got != 32-headerSize {
		t.Fatalf("expected usable size %d; got %d", 32-headerSize, got)
	}

	view := h.Bytes(addr, 20)
	if len(view) != 20 || cap(view) != 20 {
		t.Fatalf("expected a 20 byte view with no slack; got len %d, cap %d", len(view), cap(view))
	}

	copy(view, "hello")
	if got := string(h.Bytes(addr, 5)); got != "hello" {
		t.Fatalf("expected view to share the arena memory; got %q", got)
	}

	if h.Bytes(addr, 32) != nil {
		t.Fatal("expected a view larger than the block to be rejected")
	}

	if err = h.Free(addr); err != nil {
		t.Fatal(err)
	}
	if h.Bytes(addr, 1) != nil || h.BlockSize(addr) != 0 {
		t.Fatal("expected a released block to be rejected")
	}
}

func TestPrintFreeCounts(t *testing.T) {
	h := newTestHeap(t, Config{MinScale: 4, MaxScale: 6, Blocks: 2})

	var buf bytes.Buffer
	h.PrintFreeCounts(&buf)

	exp := "free block counts:\n" +
		"   0 free blocks of scale  4\n" +
		"   0 free blocks of scale  5\n" +
		"   1 free blocks of scale  6\n" +
		"brk at 0x00000040\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	h := newTestHeap(t, Config{MinScale: 4, MaxScale: 12, Blocks: 16})

	var wg gosync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := 0; i < 200; i++ {
				size := mem.Size(1 + (worker*31+i*7)%500)
				addr, err := h.Allocate(size)
				if err != nil {
					t.Errorf("[worker %d] unexpected error: %v", worker, err)
					return
				}
				mem.Memset(h.Bytes(addr, size), byte(worker))
				if err = h.Free(addr); err != nil {
					t.Errorf("[worker %d] unexpected error: %v", worker, err)
					return
				}
			}
		}(worker)
	}
	wg.Wait()

	exp := make([]int, 13)
	exp[12] = 1
	if got := h.FreeCounts(); !reflect.DeepEqual(got, exp) {
		t.Fatalf("expected free counts %v; got %v", exp, got)
	}
}

func TestRelease(t *testing.T) {
	var unmapped int
	defer func(orig func(int) ([]byte, func() error, error)) { mapArenaFn = orig }(mapArenaFn)
	mapArenaFn = func(size int) ([]byte, func() error, error) {
		return make([]byte, size), func() error { unmapped++; return nil }, nil
	}

	h, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := h.Release(); err != nil {
			t.Fatal(err)
		}
	}

	if unmapped != 1 {
		t.Fatalf("expected arena to be unmapped exactly once; got %d", unmapped)
	}
}
