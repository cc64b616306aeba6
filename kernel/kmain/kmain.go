// Package kmain assembles the kernel subsystems into a running kernel: it
// parses the command line, attaches the console, builds the heap, the
// process table and the filesystem and drives the idle loop.
package kmain

import (
	"sync"
	"time"

	"github.com/jacobobendrado/4810-Operating-System/device/tty"
	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/cmdline"
	"github.com/jacobobendrado/4810-Operating-System/kernel/cpu"
	"github.com/jacobobendrado/4810-Operating-System/kernel/fs/ramfs"
	"github.com/jacobobendrado/4810-Operating-System/kernel/hal"
	"github.com/jacobobendrado/4810-Operating-System/kernel/irq"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
	"github.com/jacobobendrado/4810-Operating-System/kernel/proc"
)

// Directories created in the root of the filesystem at boot.
var bootDirs = []string{"home", "mnt"}

var (
	// The following functions are mocked by tests.
	panicFn          = kfmt.Panic
	detectHardwareFn = hal.DetectHardware
	activeTTYFn      = hal.ActiveTTY

	errNotIdle = &kernel.Error{Module: "kmain", Message: "Run must be invoked by the idle process"}
)

// Kernel is a booted kernel instance.
type Kernel struct {
	Heap  *heap.Heap
	Procs *proc.Table
	Files *ramfs.FS
	Root  *ramfs.Dir
	TTY   tty.Device

	tick     time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// Boot parses cmdLine and initializes the kernel subsystems. If term is nil
// the console is selected by probing for hardware according to the console
// command line option; otherwise term becomes the console.
//
// Any heap corruption detected after Boot returns is unrecoverable and
// halts the CPU.
func Boot(cmdLine string, term tty.Device) (*Kernel, *kernel.Error) {
	cfg, err := cmdline.Parse(cmdLine)
	if err != nil {
		return nil, err
	}

	if term == nil {
		if err = detectHardwareFn(cfg.Console); err != nil {
			return nil, err
		}
		term = activeTTYFn()
	} else {
		kfmt.SetOutputSink(term)
	}

	cowsay(term, welcomeMessage)

	k := &Kernel{
		TTY:  term,
		tick: cfg.Tick,
		done: make(chan struct{}),
	}

	if k.Heap, err = heap.New(cfg.Heap); err != nil {
		return nil, err
	}

	if k.Procs, err = proc.New(k.Heap, cfg.Proc); err != nil {
		k.Heap.Release()
		return nil, err
	}

	if k.Files, err = ramfs.New(k.Heap, term, cfg.FS); err != nil {
		k.Heap.Release()
		return nil, err
	}
	k.Root = k.Files.Root()

	for _, name := range bootDirs {
		if _, err = k.Files.CreateDir(k.Root, name); err != nil {
			k.Heap.Release()
			return nil, err
		}
	}

	k.Heap.OnCorruption(func(err *kernel.Error) {
		panicFn(err)
	})

	kfmt.Printf("[kmain] heap ready: max allocation %d bytes, break at 0x%x\n",
		uint64(k.Heap.MaxAllocation()), uint32(k.Heap.Break()))

	return k, nil
}

// Spawn creates a process running entry with the default stack size. The
// active process becomes its parent.
func (k *Kernel) Spawn(entry func()) (proc.PID, *kernel.Error) {
	return k.Procs.InitProcess(entry, 0, k.Procs.Active())
}

// Run enables interrupts, starts the scheduler timer and executes the idle
// loop until every spawned process has exited or Shutdown is called. Run
// must be invoked by the flow of control that called Boot.
func (k *Kernel) Run() *kernel.Error {
	if k.Procs.Active() != proc.IdlePID {
		return errNotIdle
	}

	k.Procs.AttachInterrupts()
	defer k.Procs.DetachInterrupts()

	stopTimer := k.startTimer()
	defer stopTimer()

	cpu.EnableInterrupts()
	defer cpu.DisableInterrupts()

	for k.Procs.Live() != 0 {
		if !irq.Wait(k.done) {
			break
		}
		irq.Service()
	}

	kfmt.Printf("[kmain] idle loop exited; %d live processes\n", uint32(k.Procs.Live()))
	return nil
}

// Pause blocks the active process until an interrupt is pending and then
// services it, which may hand the CPU to another process. Pause returns
// false without blocking once Shutdown has been called.
func (k *Kernel) Pause() bool {
	select {
	case <-k.done:
		return false
	default:
	}

	if !irq.Wait(k.done) {
		return false
	}

	k.Procs.Yield()
	return true
}

// Shutdown makes Run return at its next iteration and wakes up any process
// blocked in Pause. It is safe to call Shutdown more than once.
func (k *Kernel) Shutdown() {
	k.stopOnce.Do(func() { close(k.done) })
}

// Close releases the memory reserved by the heap. The kernel must not be
// used after Close returns.
func (k *Kernel) Close() *kernel.Error {
	k.Shutdown()
	return k.Heap.Release()
}

// startTimer raises the timer IRQ once every tick until the returned
// function is called or the kernel shuts down.
func (k *Kernel) startTimer() func() {
	var (
		stop   = make(chan struct{})
		ticker = time.NewTicker(k.tick)
	)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				irq.Raise(irq.Timer)
			case <-stop:
				return
			case <-k.done:
				return
			}
		}
	}()

	return func() { close(stop) }
}
