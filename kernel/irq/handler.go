package irq

import (
	"sync/atomic"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/cpu"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

// ExceptionNum defines an exception number that can be passed to the
// HandleException and RaiseException functions.
type ExceptionNum uint8

const (
	// DivideError is raised when a division by zero is attempted.
	DivideError = ExceptionNum(0)

	// InvalidOpcode is raised when the processor attempts to execute an
	// undefined instruction.
	InvalidOpcode = ExceptionNum(6)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to call an exception
	// handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page is not present or when a
	// privilege and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// IRQNum identifies one of the 16 lines of the (simulated) programmable
// interrupt controller.
type IRQNum uint8

const (
	// Timer is the line raised by the periodic interval timer.
	Timer = IRQNum(0)

	// Keyboard is the line raised when a key event is available.
	Keyboard = IRQNum(1)

	maxIRQ = 16
)

// ExceptionHandler is a function that handles an exception. If the handler
// returns, any modifications to the supplied Frame and/or Regs pointers will
// be propagated back to the location where the exception occurred.
type ExceptionHandler func(*Frame, *Regs)

// InterruptHandler is a function that services a hardware interrupt.
type InterruptHandler func()

var (
	exceptionHandlers [256]ExceptionHandler
	irqHandlers       [maxIRQ]InterruptHandler

	// pending holds one bit per IRQ line that has been raised but not yet
	// serviced.
	pending uint32

	// wakeCh is signalled by Raise so that Wait can emulate a halt with
	// interrupts enabled.
	wakeCh = make(chan struct{}, 1)

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled exception"}
)

// HandleException registers an exception handler for the given exception
// number. Passing a nil handler removes any previously registered handler.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleInterrupt registers a handler for the given IRQ line. Passing a nil
// handler removes any previously registered handler.
func HandleInterrupt(irqNum IRQNum, handler InterruptHandler) {
	if irqNum >= maxIRQ {
		return
	}
	irqHandlers[irqNum] = handler
}

// RaiseException synchronously invokes the handler registered for
// exceptionNum. An exception without a handler is escalated to a DoubleFault;
// if no DoubleFault handler is registered either, the register state is
// dumped and the kernel panics.
func RaiseException(exceptionNum ExceptionNum, frame *Frame, regs *Regs) {
	if handler := exceptionHandlers[exceptionNum]; handler != nil {
		handler(frame, regs)
		return
	}

	if exceptionNum != DoubleFault {
		if handler := exceptionHandlers[DoubleFault]; handler != nil {
			handler(frame, regs)
			return
		}
	}

	kfmt.Printf("\nunhandled exception %d\n", uint8(exceptionNum))
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()
	panicFn(errUnhandledException)
}

// Raise marks irqNum as pending. It is safe to call Raise from any goroutine;
// the interrupt is delivered by the next call to Service that observes
// enabled interrupts.
func Raise(irqNum IRQNum) {
	if irqNum >= maxIRQ {
		return
	}

	for {
		old := atomic.LoadUint32(&pending)
		if atomic.CompareAndSwapUint32(&pending, old, old|(1<<irqNum)) {
			break
		}
	}

	select {
	case wakeCh <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one IRQ is pending or done is closed. It returns
// false if it returned because done was closed.
func Wait(done <-chan struct{}) bool {
	for atomic.LoadUint32(&pending) == 0 {
		select {
		case <-wakeCh:
		case <-done:
			return false
		}
	}
	return true
}

// Pending returns true if irqNum has been raised but not yet serviced.
func Pending(irqNum IRQNum) bool {
	return irqNum < maxIRQ && atomic.LoadUint32(&pending)&(1<<irqNum) != 0
}

// Service delivers every pending IRQ in priority order (lowest line first)
// provided that interrupts are enabled. Handlers run with interrupts
// disabled, just like an interrupt gate would arrange. Service returns the
// number of handlers that were invoked.
func Service() int {
	if !cpu.InterruptsEnabled() {
		return 0
	}

	var serviced int
	for irqNum := IRQNum(0); irqNum < maxIRQ; irqNum++ {
		if !ack(irqNum) {
			continue
		}

		handler := irqHandlers[irqNum]
		if handler == nil {
			continue
		}

		flag := cpu.SaveAndDisableInterrupts()
		handler()
		cpu.RestoreInterrupts(flag)
		serviced++
	}

	return serviced
}

// ack clears the pending bit for irqNum and reports whether it was set.
func ack(irqNum IRQNum) bool {
	mask := uint32(1) << irqNum
	for {
		old := atomic.LoadUint32(&pending)
		if old&mask == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&pending, old, old&^mask) {
			return true
		}
	}
}
