// Package proc implements the process table, the scheduler that picks the
// next process to run and the context switch between processes.
//
// Slot 0 of the table always holds the idle process (PID 0), which is bound
// to the flow of control that created the table and is only scheduled when
// no other process is runnable.
package proc

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// PID uniquely identifies a live process.
type PID uint32

// IdlePID is the PID of the idle process.
const IdlePID = PID(0)

// Status describes the scheduling state of a process.
type Status uint8

// The zero Status is Stopped so that an empty table slot is reusable.
const (
	Stopped Status = iota
	Spawned
	Waiting
	Active
)

func (s Status) String() string {
	switch s {
	case Spawned:
		return "spawned"
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	default:
		return "stopped"
	}
}

const (
	// DefaultMaxProcs is the default size of the process table, including
	// the idle process.
	DefaultMaxProcs = 16

	// DefaultMaxPID is the default largest PID handed out.
	DefaultMaxPID = PID(255)

	// DefaultStackSize is the default size of a process stack.
	DefaultStackSize = mem.Size(512)
)

var (
	// ErrTableFull is returned when every slot of the process table is in
	// use.
	ErrTableFull = &kernel.Error{Module: "proc", Message: "process table full"}

	// ErrNoFreePID is returned when every PID is held by a live process.
	ErrNoFreePID = &kernel.Error{Module: "proc", Message: "no free process ID"}

	// ErrNoSuchProcess is returned when a PID does not refer to a live
	// process.
	ErrNoSuchProcess = &kernel.Error{Module: "proc", Message: "no such process"}

	// ErrInvalidArgument is returned by InitProcess for a nil entry point
	// or a stack too small for the initial stack image.
	ErrInvalidArgument = &kernel.Error{Module: "proc", Message: "invalid process argument"}

	// ErrKillIdle is returned when attempting to kill the idle process.
	ErrKillIdle = &kernel.Error{Module: "proc", Message: "cannot kill the idle process"}

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = &kernel.Error{Module: "proc", Message: "invalid process table configuration"}
)

// Config describes the limits of a process table.
type Config struct {
	// MaxProcs is the number of table slots, including the idle process.
	MaxProcs int

	// MaxPID is the largest PID handed out. PIDs wrap around to 1.
	MaxPID PID

	// StackSize is the stack size used when InitProcess is not given one.
	StackSize mem.Size
}

// DefaultConfig returns the default process table limits.
func DefaultConfig() Config {
	return Config{
		MaxProcs:  DefaultMaxProcs,
		MaxPID:    DefaultMaxPID,
		StackSize: DefaultStackSize,
	}
}

// Process is a process control block.
type Process struct {
	PID      PID
	Parent   PID
	Status   Status
	WaitTime uint32
	Context  Context

	entry     func()
	stack     heap.Addr
	stackSize mem.Size
}

// Table is a fixed-size process table together with the scheduler state.
type Table struct {
	lock sync.Spinlock

	procs   []Process
	active  int
	nextPID PID
	maxPID  PID

	stackSize mem.Size
	heap      *heap.Heap
	switcher  Switcher

	log io.Writer
}

// New creates a process table whose stacks are allocated from h. The idle
// process is created in the Active state and bound to the calling flow of
// control.
func New(h *heap.Heap, cfg Config) (*Table, *kernel.Error) {
	if h == nil || cfg.MaxProcs < 1 || cfg.MaxPID == 0 {
		return nil, ErrInvalidConfig
	}

	if cfg.StackSize == 0 {
		cfg.StackSize = DefaultStackSize
	}

	t := &Table{
		procs:     make([]Process, cfg.MaxProcs),
		maxPID:    cfg.MaxPID,
		stackSize: cfg.StackSize,
		heap:      h,
		log:       &kfmt.PrefixWriter{Sink: kfmt.Sink(), Prefix: []byte("[proc] ")},
	}
	t.switcher = &coroutineSwitcher{launch: t.launch}

	idle := &t.procs[0]
	idle.PID = IdlePID
	idle.Status = Active
	idle.Context.pid = IdlePID
	idle.Context.bind()

	return t, nil
}

// InitProcess creates a new process that starts executing entry the first
// time it is scheduled. A zero stackSize selects the table default. The
// process is left in the Spawned state. Should entry return, the process is
// killed.
func (t *Table) InitProcess(entry func(), stackSize mem.Size, parent PID) (PID, *kernel.Error) {
	if stackSize == 0 {
		stackSize = t.stackSize
	}

	if entry == nil || stackSize < imageSize {
		return 0, ErrInvalidArgument
	}

	t.lock.Acquire()
	defer t.lock.Release()

	slot := t.reserveSlot()
	if slot == nil {
		return 0, ErrTableFull
	}

	pid, ok := t.nextFreePID()
	if !ok {
		return 0, ErrNoFreePID
	}

	stack, err := t.heap.Allocate(stackSize)
	if err != nil {
		return 0, err
	}

	*slot = Process{
		PID:       pid,
		Parent:    parent,
		Status:    Spawned,
		entry:     entry,
		stack:     stack,
		stackSize: stackSize,
	}
	slot.Context = buildStackImage(t.heap.Bytes(stack, stackSize), stack, pid)

	return pid, nil
}

// Active returns the PID of the running process.
func (t *Table) Active() PID {
	t.lock.Acquire()
	defer t.lock.Release()

	return t.procs[t.active].PID
}

// Lookup returns a snapshot of the live process with the given PID.
func (t *Table) Lookup(pid PID) (Process, bool) {
	t.lock.Acquire()
	defer t.lock.Release()

	if slot := t.lookup(pid); slot >= 0 {
		return t.procs[slot], true
	}
	return Process{}, false
}

// Each invokes fn with a snapshot of every live process, in table order.
func (t *Table) Each(fn func(Process)) {
	t.lock.Acquire()
	snapshot := make([]Process, 0, len(t.procs))
	for i := range t.procs {
		if i == 0 || t.procs[i].Status != Stopped {
			snapshot = append(snapshot, t.procs[i])
		}
	}
	t.lock.Release()

	for _, p := range snapshot {
		fn(p)
	}
}

// Live returns the number of live processes, excluding the idle process.
func (t *Table) Live() int {
	t.lock.Acquire()
	defer t.lock.Release()

	var live int
	for i := 1; i < len(t.procs); i++ {
		if t.procs[i].Status != Stopped {
			live++
		}
	}
	return live
}

// Print writes a listing of the live processes to w.
func (t *Table) Print(w io.Writer) {
	kfmt.Fprintf(w, "  PID PARENT  STATUS    WAIT\n")
	t.Each(func(p Process) {
		kfmt.Fprintf(w, "%5d %6d %7s %7d\n", uint32(p.PID), uint32(p.Parent), p.Status.String(), p.WaitTime)
	})
}

// lookup returns the slot of the live process with the given PID or -1 if
// there is no such process. The idle process is always live. The table lock
// must be held.
func (t *Table) lookup(pid PID) int {
	if pid == IdlePID {
		return 0
	}

	for i := 1; i < len(t.procs); i++ {
		if t.procs[i].PID == pid && t.procs[i].Status != Stopped {
			return i
		}
	}
	return -1
}

// reserveSlot returns the first stopped slot after the idle slot. The table
// lock must be held.
func (t *Table) reserveSlot() *Process {
	for i := 1; i < len(t.procs); i++ {
		if t.procs[i].Status == Stopped {
			return &t.procs[i]
		}
	}
	return nil
}

// nextFreePID advances the PID cursor to the next PID not held by a live
// process. The search gives up after a full lap over 1..maxPID. The table
// lock must be held.
func (t *Table) nextFreePID() (PID, bool) {
	for attempt := PID(0); attempt < t.maxPID; attempt++ {
		if t.nextPID++; t.nextPID > t.maxPID {
			t.nextPID = 1
		}

		if t.lookup(t.nextPID) < 0 {
			return t.nextPID, true
		}
	}
	return 0, false
}
