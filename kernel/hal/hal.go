// Package hal detects the devices the kernel runs on and wires the first
// terminal it finds to the kernel console.
package hal

import (
	"bytes"
	"sort"

	"github.com/jacobobendrado/4810-Operating-System/device"
	"github.com/jacobobendrado/4810-Operating-System/device/tty"
	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/cmdline"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeTTY tty.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices

	// driverListFn is mocked by tests.
	driverListFn = device.DriverList

	// ErrNoTTY is returned by DetectHardware when no terminal device
	// could be initialized.
	ErrNoTTY = &kernel.Error{Module: "hal", Message: "no terminal device detected"}
)

// ActiveTTY returns the currently active TTY
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// ActiveDrivers returns the drivers initialized by DetectHardware.
func ActiveDrivers() []device.Driver {
	return append([]device.Driver(nil), devices.activeDrivers...)
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. The console argument selects which terminal drivers may become
// the active TTY (see cmdline.ConsoleTTY and cmdline.ConsoleStdio); the
// first one that initializes successfully becomes the kfmt output sink.
func DetectHardware(console string) *kernel.Error {
	// Get driver list and sort by detection priority
	drivers := driverListFn()
	sort.Stable(drivers)

	probe(drivers, console)

	if devices.activeTTY == nil {
		return ErrNoTTY
	}
	return nil
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList, console string) {
	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil || !wanted(drv, console) {
			continue
		}

		var prefix bytes.Buffer
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefix, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w := &kfmt.PrefixWriter{Sink: kfmt.Sink(), Prefix: prefix.Bytes()}

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// wanted reports whether drv should be initialized. Only one terminal is
// ever initialized and the host terminal is skipped when the console is
// redirected to the standard streams.
func wanted(drv device.Driver, console string) bool {
	if _, isTTY := drv.(tty.Device); !isTTY {
		return true
	}

	if devices.activeTTY != nil {
		return false
	}

	return !(console == cmdline.ConsoleStdio && drv.DriverName() == tty.HostTTYName)
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case tty.Device:
		devices.activeTTY = drvImpl
		kfmt.SetOutputSink(drvImpl)
	}
}
