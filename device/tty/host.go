package tty

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	gotty "github.com/mattn/go-tty"
)

// HostTTYName is the driver name reported by HostTTY.
const HostTTYName = "host-tty"

var (
	// openTTYFn is mocked by tests.
	openTTYFn = gotty.Open
)

// HostTTY is a terminal backed by the controlling terminal of the host
// process. Keystrokes are read in the background, echoed and assembled into
// lines.
type HostTTY struct {
	lineBuffer

	term *gotty.TTY
	out  io.Writer
}

// Write implements io.Writer.
func (h *HostTTY) Write(p []byte) (int, error) {
	if h.out == nil {
		return 0, io.ErrClosedPipe
	}
	return h.out.Write(p)
}

// Close closes the input side of the terminal and releases the host
// terminal.
func (h *HostTTY) Close() {
	h.close()
	if h.term != nil {
		h.term.Close()
	}
}

// pump reads characters with readRune until it fails or the line
// discipline closes the input. Echoed characters are written to echo.
func (h *HostTTY) pump(readRune func() (rune, error), echo io.Writer) {
	defer h.close()

	for {
		r, err := readRune()
		if err != nil {
			return
		}

		if out := h.feed(r); len(out) != 0 {
			echo.Write(out)
		}

		if h.isClosed() {
			return
		}
	}
}

// DriverName returns the name of this driver.
func (h *HostTTY) DriverName() string {
	return HostTTYName
}

// DriverVersion returns the version of this driver.
func (h *HostTTY) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit opens the controlling terminal of the host process.
func (h *HostTTY) DriverInit(w io.Writer) *kernel.Error {
	term, err := openTTYFn()
	if err != nil {
		kfmt.Fprintf(w, "unable to open terminal: %s\n", err)
		return ErrNoTerminal
	}

	h.term, h.out = term, term.Output()
	go h.pump(term.ReadRune, h.out)
	return nil
}
