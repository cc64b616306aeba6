package tty

import (
	"os"

	"github.com/jacobobendrado/4810-Operating-System/device"
)

func probeForHostTTY() device.Driver {
	return &HostTTY{}
}

func probeForStdio() device.Driver {
	return NewLoopback(os.Stdout, os.Stdin)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForHostTTY,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForStdio,
	})
}
