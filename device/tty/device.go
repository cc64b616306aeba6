// Package tty provides the terminal devices the kernel console is attached
// to. A terminal accepts raw output bytes and hands out buffered input one
// line at a time without blocking.
package tty

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
)

var (
	// ErrNoTerminal is returned by DriverInit when the host has no
	// controlling terminal.
	ErrNoTerminal = &kernel.Error{Module: "tty", Message: "no terminal attached"}
)

// Device is implemented by objects that can be used as a terminal device.
type Device interface {
	io.Writer

	// ReadLine copies at most one buffered line of input, including its
	// trailing line feed, into buf and returns the number of bytes
	// copied. A line longer than buf is handed out over several calls.
	// ReadLine returns 0 if no input is ready.
	ReadLine(buf []byte) int

	// Drained reports whether the input side has been closed and every
	// buffered line has been read.
	Drained() bool
}
