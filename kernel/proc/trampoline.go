package proc

import (
	"runtime"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/cpu"
	"github.com/jacobobendrado/4810-Operating-System/kernel/irq"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

const (
	// kernelCS is the code segment selector reported in exception frames.
	kernelCS = 0x08
)

var (
	// panicFn is invoked when the idle process faults. It is mocked by
	// tests.
	panicFn = kfmt.Panic

	errIdleFault = &kernel.Error{Module: "proc", Message: "fault in idle process"}
)

// launch performs the first switch into a process: it pops the register
// state seeded by buildStackImage, returns into the entry point and, should
// the entry point return, follows the fallback return chain into
// KillProcess.
func (t *Table) launch(ctx *Context) {
	t.lock.Acquire()
	slot := t.lookup(ctx.pid)
	if slot < 0 {
		t.lock.Release()
		return
	}
	p := &t.procs[slot]
	entry, stack, stackSize := p.entry, p.stack, p.stackSize
	t.lock.Release()

	sr := stackReader{stack: t.heap.Bytes(stack, stackSize), base: stack, esp: ctx.ESP}

	// popfd
	eflags := sr.pop()

	// popal
	var regs irq.Regs
	regs.EDI = sr.pop()
	regs.ESI = sr.pop()
	regs.EBP = sr.pop()
	regs.ESP = sr.pop()
	regs.EBX = sr.pop()
	regs.EDX = sr.pop()
	regs.ECX = sr.pop()
	regs.EAX = sr.pop()

	// stack top; becomes the frame pointer of the entry point
	regs.EBP = sr.pop()

	frame := irq.Frame{EIP: sr.pop(), CS: kernelCS, EFlags: eflags}

	if eflags&flagIF == 0 || frame.EIP != entryToken(ctx.pid) {
		kfmt.Fprintf(t.log, "process %d has a corrupted stack image\n", uint32(ctx.pid))
		irq.RaiseException(irq.GPFException, &frame, &regs)
	} else {
		cpu.EnableInterrupts()
		t.run(entry, &frame, &regs)
	}

	// ret into the fallback return chain
	if sr.pop() == killTrampoline {
		t.KillProcess(PID(sr.pop()))
	}
}

// run invokes entry, converting a run-time panic into the matching CPU
// exception.
func (t *Table) run(entry func(), frame *irq.Frame, regs *irq.Regs) {
	defer func() {
		if r := recover(); r != nil {
			irq.RaiseException(exceptionFor(r), frame, regs)
		}
	}()

	entry()
}

// exceptionFor maps a recovered panic value to an exception number.
func exceptionFor(r interface{}) irq.ExceptionNum {
	if err, ok := r.(runtime.Error); ok && strings.Contains(err.Error(), "divide by zero") {
		return irq.DivideError
	}
	return irq.GPFException
}

// AttachInterrupts installs the timer handler that drives preemptive
// scheduling and the exception handlers that terminate a faulting process.
func (t *Table) AttachInterrupts() {
	irq.HandleInterrupt(irq.Timer, t.handleTimer)
	irq.HandleException(irq.DivideError, t.handleFault)
	irq.HandleException(irq.InvalidOpcode, t.handleFault)
	irq.HandleException(irq.GPFException, t.handleFault)
}

// DetachInterrupts removes the handlers installed by AttachInterrupts.
func (t *Table) DetachInterrupts() {
	irq.HandleInterrupt(irq.Timer, nil)
	irq.HandleException(irq.DivideError, nil)
	irq.HandleException(irq.InvalidOpcode, nil)
	irq.HandleException(irq.GPFException, nil)
}

func (t *Table) handleTimer() {
	t.SwitchProcessFromQueue()
}

// handleFault terminates the active process. A fault raised by the idle
// process cannot be recovered from.
func (t *Table) handleFault(frame *irq.Frame, regs *irq.Regs) {
	pid := t.Active()
	if pid == IdlePID {
		kfmt.Fprintf(t.log, "idle process faulted at EIP 0x%8x\n", frame.EIP)
		regs.Print()
		frame.Print()
		panicFn(errIdleFault)
		return
	}

	kfmt.Fprintf(t.log, "process %d faulted at EIP 0x%8x; terminating\n", uint32(pid), frame.EIP)
	t.KillProcess(pid)
}
