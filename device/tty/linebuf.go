package tty

import (
	"unicode"
	"unicode/utf8"

	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// MaxLineLength is the longest line the line discipline assembles; further
// characters typed on the same line are dropped.
const MaxLineLength = 256

const (
	keyBackspace = '\b'
	keyDelete    = 0x7f
	keyEOF       = 0x04
)

var eraseSeq = []byte("\b \b")

// lineBuffer implements the line discipline shared by the terminal drivers:
// characters are collected into a pending line until a line feed or
// carriage return completes it.
type lineBuffer struct {
	lock sync.Spinlock

	pending []byte
	lines   [][]byte
	closed  bool
}

// feed processes one input character and returns the bytes that should be
// echoed back to the terminal. Backspace erases the last pending character
// and Ctrl+D closes the input.
func (b *lineBuffer) feed(r rune) []byte {
	b.lock.Acquire()
	defer b.lock.Release()

	if b.closed {
		return nil
	}

	switch {
	case r == '\n' || r == '\r':
		b.lines = append(b.lines, append(b.pending, '\n'))
		b.pending = nil
		return []byte{'\n'}
	case r == keyBackspace || r == keyDelete:
		if len(b.pending) == 0 {
			return nil
		}
		_, size := utf8.DecodeLastRune(b.pending)
		b.pending = b.pending[:len(b.pending)-size]
		return eraseSeq
	case r == keyEOF:
		b.closeLocked()
		return nil
	case unicode.IsPrint(r) && len(b.pending)+utf8.RuneLen(r) < MaxLineLength:
		start := len(b.pending)
		b.pending = utf8.AppendRune(b.pending, r)
		return append([]byte(nil), b.pending[start:]...)
	}

	return nil
}

// close flushes the pending partial line and marks the input as closed.
func (b *lineBuffer) close() {
	b.lock.Acquire()
	b.closeLocked()
	b.lock.Release()
}

func (b *lineBuffer) closeLocked() {
	if b.closed {
		return
	}

	if len(b.pending) != 0 {
		b.lines = append(b.lines, b.pending)
		b.pending = nil
	}
	b.closed = true
}

func (b *lineBuffer) isClosed() bool {
	b.lock.Acquire()
	defer b.lock.Release()

	return b.closed
}

// ReadLine implements Device.
func (b *lineBuffer) ReadLine(buf []byte) int {
	b.lock.Acquire()
	defer b.lock.Release()

	if len(b.lines) == 0 {
		return 0
	}

	n := copy(buf, b.lines[0])
	if n < len(b.lines[0]) {
		b.lines[0] = b.lines[0][n:]
		return n
	}

	b.lines[0] = nil
	b.lines = b.lines[1:]
	return n
}

// Drained implements Device.
func (b *lineBuffer) Drained() bool {
	b.lock.Acquire()
	defer b.lock.Release()

	return b.closed && len(b.lines) == 0
}
