// Package device defines the interface implemented by device drivers and
// the registry the hal package probes at boot.
package device

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
)

// Driver is implemented by every device the hal package can bring up, such
// as the terminals in the tty package.
type Driver interface {
	// DriverName returns the name used to prefix the driver's boot log.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit prepares the device for use. Output written to the
	// supplied io.Writer is logged under the driver's name. A driver that
	// returns an error is discarded.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn checks whether a device is available on the host and returns a
// driver for it, or nil if it is not.
type ProbeFn func() Driver
