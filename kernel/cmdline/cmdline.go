// Package cmdline parses the kernel command line into the configuration of
// the kernel subsystems.
package cmdline

import (
	"strconv"
	"strings"
	"time"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/fs/ramfs"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
	"github.com/jacobobendrado/4810-Operating-System/kernel/proc"
)

// Supported console selections.
const (
	// ConsoleTTY attaches the kernel console to the host terminal.
	ConsoleTTY = "tty"

	// ConsoleStdio attaches the kernel console to the standard streams of
	// the hosting process.
	ConsoleStdio = "stdio"
)

// DefaultTick is the default period of the scheduler timer.
const DefaultTick = 10 * time.Millisecond

var (
	// ErrInvalidValue is returned when a recognized key carries a value
	// that cannot be parsed.
	ErrInvalidValue = &kernel.Error{Module: "cmdline", Message: "invalid command line value"}
)

// Config is the kernel configuration assembled from the command line.
type Config struct {
	Heap    heap.Config
	Proc    proc.Config
	FS      ramfs.Config
	Tick    time.Duration
	Console string
}

// Default returns the configuration used when the command line is empty.
func Default() Config {
	return Config{
		Heap:    heap.DefaultConfig(),
		Proc:    proc.DefaultConfig(),
		FS:      ramfs.DefaultConfig(),
		Tick:    DefaultTick,
		Console: ConsoleTTY,
	}
}

// Pairs splits a command line into key-value pairs. Each whitespace separated
// token of the form "key=value" maps key to value; a bare "key" maps to
// itself. Tokens containing more than one '=' are ignored.
func Pairs(cmdLine string) map[string]string {
	kv := make(map[string]string)

	for _, pair := range strings.Fields(cmdLine) {
		tokens := strings.Split(pair, "=")
		switch len(tokens) {
		case 2: // foo=bar
			kv[tokens[0]] = tokens[1]
		case 1: // nofoo
			kv[tokens[0]] = tokens[0]
		}
	}

	return kv
}

// Parse builds a Config from the supplied command line, starting from the
// defaults returned by Default. Unknown keys are ignored. Parse does not
// check the values against the limits of each subsystem; the subsystem
// constructors do that.
func Parse(cmdLine string) (Config, *kernel.Error) {
	cfg := Default()

	for key, value := range Pairs(cmdLine) {
		var err error

		switch key {
		case "heap.minscale":
			cfg.Heap.MinScale, err = parseUint8(value)
		case "heap.maxscale":
			cfg.Heap.MaxScale, err = parseUint8(value)
		case "heap.blocks":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 32)
			cfg.Heap.Blocks = uint32(v)
		case "proc.max":
			cfg.Proc.MaxProcs, err = strconv.Atoi(value)
		case "proc.maxpid":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 32)
			cfg.Proc.MaxPID = proc.PID(v)
		case "proc.stack":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 32)
			cfg.Proc.StackSize = mem.Size(v)
		case "fs.maxfds":
			cfg.FS.MaxFDs, err = strconv.Atoi(value)
		case "sched.tick":
			cfg.Tick, err = parseTick(value)
		case "console":
			if value != ConsoleTTY && value != ConsoleStdio {
				err = strconv.ErrSyntax
			}
			cfg.Console = value
		default:
			continue
		}

		if err != nil {
			kfmt.Printf("[cmdline] invalid value for %s: %s\n", key, value)
			return Default(), ErrInvalidValue
		}
	}

	return cfg, nil
}

func parseUint8(value string) (uint8, error) {
	v, err := strconv.ParseUint(value, 10, 8)
	return uint8(v), err
}

// parseTick accepts either a Go duration ("5ms") or a plain number of
// milliseconds.
func parseTick(value string) (time.Duration, error) {
	if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
		if ms == 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := time.ParseDuration(value)
	if err == nil && d <= 0 {
		err = strconv.ErrRange
	}
	return d, err
}
