// Package heap implements a buddy-system allocator over a contiguous arena.
//
// The arena is carved into power-of-two blocks whose size is described by a
// scale (log2 of the block size in bytes). Allocations are served from the
// smallest free block that can hold the request plus a block header,
// splitting larger blocks on demand; released blocks are merged with their
// free buddies until no further merge is possible. The heap grows and shrinks
// in max-scale blocks through Brk and Sbrk, within a reservation made when
// the heap is created.
//
// Memory is addressed through Addr offsets relative to the arena base rather
// than pointers; callers obtain a byte view of an allocation through Bytes.
package heap

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// Addr is the offset of an allocation from the heap base. The zero Addr is
// the null address; allocations never start at offset 0 since every block
// begins with its header.
type Addr uint32

const (
	// MinSupportedScale is the smallest block scale that can hold a block
	// header and at least one byte of data.
	MinSupportedScale = 4

	// MaxSupportedScale is the largest block scale whose offsets can be
	// represented by the 32-bit header links.
	MaxSupportedScale = 30

	// DefaultMinScale is the default scale of the smallest block (16 bytes).
	DefaultMinScale = MinSupportedScale

	// DefaultMaxScale is the default scale of the largest block (64 KiB).
	DefaultMaxScale = 16

	// DefaultBlocks is the default number of max-scale blocks reserved for
	// the arena.
	DefaultBlocks = 64
)

var (
	// ErrInvalidSize is returned when an allocation request is zero or
	// exceeds the largest block the heap can serve.
	ErrInvalidSize = &kernel.Error{Module: "heap", Message: "invalid allocation size"}

	// ErrOutOfMemory is returned when the heap cannot satisfy a request
	// even after attempting to grow.
	ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

	// ErrCorruptedBlock is returned by Free when the header of the released
	// block is inconsistent with an allocated block.
	ErrCorruptedBlock = &kernel.Error{Module: "heap", Message: "block data corrupted"}

	// ErrBrkInUse is returned when shrinking the heap would release a block
	// that is still allocated.
	ErrBrkInUse = &kernel.Error{Module: "heap", Message: "cannot move break below an allocated block"}

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = &kernel.Error{Module: "heap", Message: "invalid heap configuration"}

	errArenaMap = &kernel.Error{Module: "heap", Message: "unable to reserve heap arena"}

	// mapArenaFn reserves the backing memory for the arena. It is mocked by
	// tests.
	mapArenaFn = mapArena
)

// Config describes the geometry of a heap.
type Config struct {
	// MinScale is the scale of the smallest block handed out.
	MinScale uint8

	// MaxScale is the scale of the largest block. The heap grows and
	// shrinks in blocks of this scale.
	MaxScale uint8

	// Blocks is the number of max-scale blocks reserved for the arena.
	Blocks uint32
}

// DefaultConfig returns the default heap geometry.
func DefaultConfig() Config {
	return Config{
		MinScale: DefaultMinScale,
		MaxScale: DefaultMaxScale,
		Blocks:   DefaultBlocks,
	}
}

// Heap is a buddy allocator. All exported methods are safe for concurrent
// use.
type Heap struct {
	lock sync.Spinlock

	arena   []byte
	release func() error

	minScale uint8
	maxScale uint8

	// brk is the offset of the first byte past the allocatable space.
	brk uint32

	// floor is the lowest offset the heap shrinks to on its own.
	floor uint32

	heads [MaxSupportedScale + 1]listNode

	// corruptionFn, if set, is invoked after Free detects a corrupted
	// block header.
	corruptionFn func(*kernel.Error)

	log io.Writer
}

// New reserves an arena according to cfg, initializes the free lists and
// grows the heap by one max-scale block.
func New(cfg Config) (*Heap, *kernel.Error) {
	if cfg.MinScale < MinSupportedScale || cfg.MaxScale > MaxSupportedScale ||
		cfg.MinScale > cfg.MaxScale || cfg.Blocks == 0 ||
		uint64(cfg.Blocks)<<cfg.MaxScale > uint64(sentinelBase) {
		return nil, ErrInvalidConfig
	}

	arena, release, err := mapArenaFn(int(cfg.Blocks) << cfg.MaxScale)
	if err != nil {
		return nil, errArenaMap
	}

	h := &Heap{
		arena:    arena,
		release:  release,
		minScale: cfg.MinScale,
		maxScale: cfg.MaxScale,
		log:      &kfmt.PrefixWriter{Sink: kfmt.Sink(), Prefix: []byte("[heap] ")},
	}
	h.resetLists()

	if kerr := h.sbrk(1); kerr != nil {
		h.Release()
		return nil, kerr
	}
	h.floor = h.brk

	return h, nil
}

// Release returns the arena to the host. The heap must not be used after a
// call to Release.
func (h *Heap) Release() *kernel.Error {
	h.lock.Acquire()
	defer h.lock.Release()

	if h.release == nil {
		return nil
	}

	err := h.release()
	h.release = nil
	h.arena = nil
	if err != nil {
		return errArenaMap
	}
	return nil
}

// MaxAllocation returns the size of the largest request that Allocate can
// satisfy.
func (h *Heap) MaxAllocation() mem.Size {
	return mem.Size(1)<<h.maxScale - headerSize
}

// ScaleFor returns the scale of the block that Allocate would use to serve a
// request of the given size.
func (h *Heap) ScaleFor(size mem.Size) uint8 {
	scale := (size + headerSize).Scale()
	if scale < h.minScale {
		scale = h.minScale
	}
	return scale
}

// Allocate reserves a block large enough for size bytes and returns the
// address of its first usable byte. If no free block is large enough, the
// heap is grown by a single max-scale block and the search is retried once.
func (h *Heap) Allocate(size mem.Size) (Addr, *kernel.Error) {
	if size == 0 || size > h.MaxAllocation() {
		return 0, ErrInvalidSize
	}

	scale := h.ScaleFor(size)

	h.lock.Acquire()
	defer h.lock.Release()

	off, found := h.findFit(scale)
	if !found {
		if err := h.sbrk(1); err != nil {
			return 0, ErrOutOfMemory
		}

		if off, found = h.findFit(scale); !found {
			return 0, ErrOutOfMemory
		}
	}

	for h.scale(off) > scale {
		h.split(off)
	}

	return Addr(off + headerSize), nil
}

// Free returns a block obtained by Allocate to the heap, merging it with its
// free buddies. Freeing the null address is a no-op. If the block header does
// not describe an allocated block the heap is left untouched and
// ErrCorruptedBlock is returned.
func (h *Heap) Free(addr Addr) *kernel.Error {
	if addr == 0 {
		return nil
	}

	h.lock.Acquire()
	defer h.lock.Release()

	off, ok := h.headerOf(addr)
	if !ok || h.isFree(off) || !h.isolated(off) {
		kfmt.Fprintf(h.log, "block data corrupted at 0x%x; failed to free\n", uint32(addr))
		if h.corruptionFn != nil {
			h.lock.Release()
			h.corruptionFn(ErrCorruptedBlock)
			h.lock.Acquire()
		}
		return ErrCorruptedBlock
	}

	off = h.coalesce(off)
	h.pushFree(off)

	// Give the topmost block back if it became entirely free.
	if h.scale(off) == h.maxScale && off+h.maxBlockSize() == h.brk && h.brk > h.floor {
		h.sbrk(-1)
	}

	return nil
}

// OnCorruption registers fn to be invoked whenever Free detects a corrupted
// block. The heap lock is not held while fn runs.
func (h *Heap) OnCorruption(fn func(*kernel.Error)) {
	h.lock.Acquire()
	h.corruptionFn = fn
	h.lock.Release()
}

// Brk moves the heap break to addr. Growing installs as many max-scale free
// blocks as needed for addr to fall inside the heap; shrinking removes free
// max-scale blocks from the top of the heap until addr lies at or past the
// break.
func (h *Heap) Brk(addr Addr) *kernel.Error {
	h.lock.Acquire()
	defer h.lock.Release()

	return h.brkLocked(uint32(addr))
}

// Sbrk moves the heap break by inc max-scale blocks. A positive inc grows the
// heap while a negative inc shrinks it.
func (h *Heap) Sbrk(inc int) *kernel.Error {
	h.lock.Acquire()
	defer h.lock.Release()

	return h.sbrk(inc)
}

// Break returns the current heap break.
func (h *Heap) Break() Addr {
	h.lock.Acquire()
	defer h.lock.Release()

	return Addr(h.brk)
}

// Bytes returns a view of the first n bytes of the allocation at addr. It
// returns nil if addr does not refer to an allocated block or if n exceeds
// the usable size of the block.
func (h *Heap) Bytes(addr Addr, n mem.Size) []byte {
	h.lock.Acquire()
	defer h.lock.Release()

	off, ok := h.headerOf(addr)
	if !ok || h.isFree(off) || n > h.usable(off) {
		return nil
	}

	start := uint32(addr)
	end := start + uint32(n)
	return h.arena[start:end:end]
}

// BlockSize returns the usable size of the allocated block at addr or 0 if
// addr does not refer to an allocated block.
func (h *Heap) BlockSize(addr Addr) mem.Size {
	h.lock.Acquire()
	defer h.lock.Release()

	off, ok := h.headerOf(addr)
	if !ok || h.isFree(off) {
		return 0
	}
	return h.usable(off)
}

// FreeCounts returns the number of free blocks of each scale, indexed by
// scale. Entries below the minimum scale are always zero.
func (h *Heap) FreeCounts() []int {
	h.lock.Acquire()
	defer h.lock.Release()

	counts := make([]int, h.maxScale+1)
	for scale := h.minScale; scale <= h.maxScale; scale++ {
		counts[scale] = h.countFree(scale)
	}
	return counts
}

// PrintFreeCounts writes a summary of the free lists and the heap break to w.
func (h *Heap) PrintFreeCounts(w io.Writer) {
	counts := h.FreeCounts()

	kfmt.Fprintf(w, "free block counts:\n")
	for scale := h.minScale; scale <= h.maxScale; scale++ {
		kfmt.Fprintf(w, "%4d free blocks of scale %2d\n", counts[scale], scale)
	}
	kfmt.Fprintf(w, "brk at 0x%8x\n", uint32(h.Break()))
}

func (h *Heap) maxBlockSize() uint32 {
	return uint32(1) << h.maxScale
}

func (h *Heap) usable(off uint32) mem.Size {
	return mem.Size(1)<<h.scale(off) - headerSize
}

// headerOf returns the offset of the header for the block whose data starts
// at addr.
func (h *Heap) headerOf(addr Addr) (uint32, bool) {
	if uint32(addr) < headerSize || uint32(addr) >= h.brk {
		return 0, false
	}

	off := uint32(addr) - headerSize
	scale := h.scale(off)
	if scale < h.minScale || scale > h.maxScale || off&(uint32(1)<<scale-1) != 0 {
		return 0, false
	}
	return off, true
}

// findFit removes and returns the first free block from the smallest
// non-empty free list whose scale is at least scale.
func (h *Heap) findFit(scale uint8) (uint32, bool) {
	for ; scale <= h.maxScale; scale++ {
		if off, ok := h.popFree(scale); ok {
			return off, true
		}
	}
	return 0, false
}

// split halves the block at off and places the upper half in the free list
// one scale down.
func (h *Heap) split(off uint32) {
	scale := h.scale(off) - 1
	h.setScale(off, scale)

	upper := off + uint32(1)<<scale
	h.writeHeader(upper, scale)
	h.pushFree(upper)
}

// buddyOf returns the offset of the buddy of a block at off with the given
// scale.
func buddyOf(off uint32, scale uint8) uint32 {
	return off ^ uint32(1)<<scale
}

// coalesce repeatedly merges the block at off with its buddy while the buddy
// is free and has the same scale. The header of the upper half of each merge
// is cleared so that it can no longer pass for an allocated block. It returns
// the offset of the merged block.
func (h *Heap) coalesce(off uint32) uint32 {
	for scale := h.scale(off); scale < h.maxScale; scale = h.scale(off) {
		buddy := buddyOf(off, scale)
		if buddy >= h.brk || !h.isFree(buddy) || h.scale(buddy) != scale {
			break
		}

		h.removeFree(buddy)
		absorbed := buddy
		if buddy < off {
			off, absorbed = buddy, off
		}
		h.clearHeader(absorbed)
		h.setScale(off, scale+1)
	}

	return off
}

func (h *Heap) sbrk(inc int) *kernel.Error {
	target := int64(h.brk) + int64(inc)*int64(h.maxBlockSize())
	if inc == 0 || target < 0 {
		return ErrInvalidSize
	}
	return h.brkLocked(uint32(target))
}

func (h *Heap) brkLocked(addr uint32) *kernel.Error {
	blockSize := h.maxBlockSize()

	if addr > h.brk {
		// round up so that addr falls inside the heap
		target := h.brk + (addr-h.brk+blockSize-1)/blockSize*blockSize
		if uint64(target) > uint64(len(h.arena)) {
			return ErrOutOfMemory
		}

		for ; h.brk < target; h.brk += blockSize {
			h.writeHeader(h.brk, h.maxScale)
			h.pushFree(h.brk)
		}
		return nil
	}

	// verify every block that needs to go is a free max-scale block before
	// touching the free lists
	top := h.brk
	for top > addr {
		block := top - blockSize
		if !h.isFree(block) || h.scale(block) != h.maxScale {
			return ErrBrkInUse
		}
		top = block
	}

	for h.brk > top {
		h.brk -= blockSize
		h.removeFree(h.brk)
	}
	return nil
}
