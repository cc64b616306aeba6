package proc

import (
	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/irq"
)

// SwitchProcess makes pid the active process and switches to its context.
// The previously active process becomes Waiting unless it has been stopped.
// Switching to the active process is a no-op. SwitchProcess returns once the
// calling process is scheduled again.
func (t *Table) SwitchProcess(pid PID) *kernel.Error {
	t.lock.Acquire()

	slot := t.lookup(pid)
	if slot < 0 {
		t.lock.Release()
		return ErrNoSuchProcess
	}

	if slot == t.active {
		t.lock.Release()
		return nil
	}

	cur, next := &t.procs[t.active], &t.procs[slot]
	if cur.Status != Stopped {
		cur.Status = Waiting
	}
	next.Status = Active
	t.active = slot

	curCtx, nextCtx := &cur.Context, &next.Context
	t.lock.Release()

	t.switcher.Switch(curCtx, nextCtx)
	return nil
}

// SwitchProcessFromQueue selects the process that has waited the longest and
// switches to it. Every live process other than the idle process has its
// wait time incremented; the first process with the highest wait time wins
// and has its wait time reset. The idle process is only selected when no
// other process is live.
func (t *Table) SwitchProcessFromQueue() *kernel.Error {
	t.lock.Acquire()

	var next *Process
	for i := 1; i < len(t.procs); i++ {
		p := &t.procs[i]
		if p.Status == Stopped {
			continue
		}

		p.WaitTime++
		if next == nil || p.WaitTime > next.WaitTime {
			next = p
		}
	}

	if next == nil {
		next = &t.procs[0]
	}
	next.WaitTime = 0
	pid := next.PID

	t.lock.Release()

	return t.SwitchProcess(pid)
}

// KillProcess stops the process with the given PID and returns its stack to
// the heap. Killing the active process reschedules immediately; in that case
// KillProcess does not return to the caller.
func (t *Table) KillProcess(pid PID) *kernel.Error {
	if pid == IdlePID {
		return ErrKillIdle
	}

	t.lock.Acquire()

	slot := t.lookup(pid)
	if slot < 0 {
		t.lock.Release()
		return ErrNoSuchProcess
	}

	p := &t.procs[slot]
	p.Status = Stopped
	p.WaitTime = 0
	p.entry = nil
	stack := p.stack
	p.stack = 0
	wasActive := t.active == slot
	ctx := &p.Context

	t.lock.Release()

	err := t.heap.Free(stack)
	t.switcher.Release(ctx)

	if wasActive {
		t.SwitchProcessFromQueue()
	}

	return err
}

// Exit kills the active process. Exit does not return unless it is invoked by
// the idle process.
func (t *Table) Exit() *kernel.Error {
	return t.KillProcess(t.Active())
}

// Yield is a preemption point: any pending interrupt, including a timer tick
// that reschedules, is serviced before Yield returns.
func (t *Table) Yield() {
	irq.Service()
}
