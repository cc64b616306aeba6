package proc

import (
	"runtime"

	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
)

// Context holds the saved state of a process. ESP points at the most recent
// value pushed to the process stack; on a context switch the register state
// of the process is popped from there.
type Context struct {
	ESP         heap.Addr
	StackTop    heap.Addr
	StackBottom heap.Addr

	pid PID
	co  *coroutine
}

// Switcher transfers the CPU from the context of the running process to the
// context of another process. Switch returns once cur is resumed by a later
// switch. If cur has been released, Switch never returns.
type Switcher interface {
	Switch(cur, next *Context)

	// Release discards any execution state associated with ctx. A context
	// must be released once its process has been stopped.
	Release(ctx *Context)
}

type coroutineState uint8

const (
	coFresh coroutineState = iota
	coRunning
	coParked
	coReleased
)

// coroutine is the host-side execution state of a context: a goroutine that
// runs only while it holds the CPU.
type coroutine struct {
	state coroutineState
	wake  chan struct{}
}

func (ctx *Context) coroutine() *coroutine {
	if ctx.co == nil {
		ctx.co = &coroutine{wake: make(chan struct{})}
	}
	return ctx.co
}

// bind marks ctx as the context of the calling flow of control, which is
// already running.
func (ctx *Context) bind() {
	ctx.coroutine().state = coRunning
}

// coroutineSwitcher implements Switcher by running every context on its own
// goroutine and handing a single token of execution between them. A context
// that has never run is started by calling launch on a new goroutine, which
// plays the part of the first pop of the synthesized stack image.
type coroutineSwitcher struct {
	launch func(*Context)
}

func (s *coroutineSwitcher) Switch(cur, next *Context) {
	cc, nc := cur.coroutine(), next.coroutine()

	exiting := cc.state == coReleased
	if !exiting {
		cc.state = coParked
	}

	switch nc.state {
	case coFresh:
		nc.state = coRunning
		go s.launch(next)
	case coParked:
		nc.state = coRunning
		nc.wake <- struct{}{}
	}

	if exiting {
		runtime.Goexit()
	}

	if _, ok := <-cc.wake; !ok {
		runtime.Goexit()
	}
}

func (s *coroutineSwitcher) Release(ctx *Context) {
	co := ctx.coroutine()
	prev := co.state
	co.state = coReleased

	if prev == coParked {
		close(co.wake)
	}
}
