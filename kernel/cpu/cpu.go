// Package cpu models the processor state that the kernel core depends on:
// the interrupt-enable flag consulted before delivering IRQs and the halt
// instruction used when the kernel cannot continue.
package cpu

import (
	"sync"
	"sync/atomic"
)

var (
	// interruptFlag mirrors EFLAGS.IF; 1 means interrupts are enabled.
	interruptFlag uint32

	haltOnce sync.Once
	haltedCh = make(chan struct{})
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {
	atomic.StoreUint32(&interruptFlag, 1)
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	atomic.StoreUint32(&interruptFlag, 0)
}

// InterruptsEnabled returns true if interrupt handling is enabled.
func InterruptsEnabled() bool {
	return atomic.LoadUint32(&interruptFlag) == 1
}

// SaveAndDisableInterrupts disables interrupt handling and returns the
// previous state of the interrupt flag so it can later be passed to
// RestoreInterrupts.
func SaveAndDisableInterrupts() bool {
	return atomic.SwapUint32(&interruptFlag, 0) == 1
}

// RestoreInterrupts re-enables interrupt handling if enabled is true.
func RestoreInterrupts(enabled bool) {
	if enabled {
		EnableInterrupts()
	}
}

// Halt stops instruction execution for the calling flow of control. Halt
// masks interrupts, signals any observers waiting on Halted and never
// returns.
func Halt() {
	DisableInterrupts()
	haltOnce.Do(func() { close(haltedCh) })
	select {}
}

// Halted returns a channel that is closed once Halt has been invoked.
func Halted() <-chan struct{} {
	return haltedCh
}
