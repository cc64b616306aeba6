package tty

import (
	"bufio"
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// LoopbackName is the driver name reported by Loopback.
const LoopbackName = "loopback"

// Loopback is an in-memory terminal. Output is forwarded to Out and input is
// supplied either through Feed or, once the driver is initialized, by
// draining In.
type Loopback struct {
	lineBuffer

	// Out receives all terminal output. A nil Out discards it.
	Out io.Writer

	// In is an optional input source. DriverInit starts copying it into
	// the line buffer until it returns an error or io.EOF.
	In io.Reader

	outLock sync.Spinlock
}

// NewLoopback returns a loopback terminal connected to the supplied output
// and input streams.
func NewLoopback(out io.Writer, in io.Reader) *Loopback {
	return &Loopback{Out: out, In: in}
}

// Write implements io.Writer.
func (l *Loopback) Write(p []byte) (int, error) {
	if l.Out == nil {
		return len(p), nil
	}

	l.outLock.Acquire()
	defer l.outLock.Release()
	return l.Out.Write(p)
}

// Feed queues input as if it had been typed at the terminal. Input is not
// echoed.
func (l *Loopback) Feed(input string) {
	for _, r := range input {
		l.feed(r)
	}
}

// Close closes the input side of the terminal. A pending partial line is
// handed out as a final line.
func (l *Loopback) Close() {
	l.close()
}

// ReadFrom feeds the contents of r into the terminal until r is exhausted
// and then closes the input side. It implements io.ReaderFrom.
func (l *Loopback) ReadFrom(r io.Reader) (int64, error) {
	var (
		total int64
		src   = bufio.NewReader(r)
	)

	defer l.close()

	for {
		ch, size, err := src.ReadRune()
		if err == io.EOF {
			return total, nil
		} else if err != nil {
			return total, err
		}

		total += int64(size)
		l.feed(ch)
		if l.isClosed() {
			return total, nil
		}
	}
}

// DriverName returns the name of this driver.
func (l *Loopback) DriverName() string {
	return LoopbackName
}

// DriverVersion returns the version of this driver.
func (l *Loopback) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (l *Loopback) DriverInit(w io.Writer) *kernel.Error {
	if l.In != nil {
		go func() {
			if _, err := l.ReadFrom(l.In); err != nil {
				kfmt.Fprintf(w, "input closed: %s\n", err)
			}
		}()
	}
	return nil
}
