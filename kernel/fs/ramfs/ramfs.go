// Package ramfs implements an in-memory hierarchical filesystem whose file
// contents live in heap memory, together with a bounded descriptor table
// that multiplexes byte-stream access to files and to the console.
package ramfs

import (
	"io"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// DefaultMaxFDs is the default capacity of the descriptor table.
const DefaultMaxFDs = 16

var (
	// ErrTableFull is returned by Open when every descriptor is in use.
	ErrTableFull = &kernel.Error{Module: "ramfs", Message: "descriptor table full"}

	// ErrInvalidPath is returned for an empty or malformed path or name.
	ErrInvalidPath = &kernel.Error{Module: "ramfs", Message: "invalid path"}

	// ErrNotFound is returned when a path does not resolve to a file or
	// directory.
	ErrNotFound = &kernel.Error{Module: "ramfs", Message: "no such file or directory"}

	// ErrExists is returned when a sibling with the same name exists.
	ErrExists = &kernel.Error{Module: "ramfs", Message: "file exists"}

	// ErrInvalidSeek is returned when a seek would produce a negative
	// offset, uses an unknown whence or targets a console descriptor.
	ErrInvalidSeek = &kernel.Error{Module: "ramfs", Message: "invalid seek"}

	// ErrBadDescriptor is returned for a descriptor that is not open.
	ErrBadDescriptor = &kernel.Error{Module: "ramfs", Message: "bad file descriptor"}

	// ErrAccessMode is returned when reading from a descriptor not opened
	// for reading or writing to one not opened for writing.
	ErrAccessMode = &kernel.Error{Module: "ramfs", Message: "operation not permitted by access mode"}

	// ErrFileTooLarge is returned when a file would outgrow the largest
	// heap allocation.
	ErrFileTooLarge = &kernel.Error{Module: "ramfs", Message: "file too large"}

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = &kernel.Error{Module: "ramfs", Message: "invalid filesystem configuration"}
)

// Console is the terminal behind the console descriptors. ReadLine copies at
// most one buffered line of input into buf and returns the number of bytes
// copied; it returns 0 when no input is ready.
type Console interface {
	io.Writer
	ReadLine(buf []byte) int
}

// Config describes the limits of a filesystem instance.
type Config struct {
	// MaxFDs is the capacity of the descriptor table. It must leave room
	// for the three standard streams.
	MaxFDs int
}

// DefaultConfig returns the default filesystem limits.
func DefaultConfig() Config {
	return Config{MaxFDs: DefaultMaxFDs}
}

// FS is a ramfs instance: a directory tree rooted at Root and a descriptor
// table. All methods are safe for concurrent use.
type FS struct {
	lock sync.Spinlock

	heap    *heap.Heap
	root    *Dir
	fds     []descriptor
	console Console

	log io.Writer
}

// New creates a filesystem whose file contents are allocated from h. The
// descriptors Stdin, Stdout and Stderr are opened on console. A nil console
// discards output and never has input ready.
func New(h *heap.Heap, console Console, cfg Config) (*FS, *kernel.Error) {
	if h == nil || cfg.MaxFDs <= int(Stderr) {
		return nil, ErrInvalidConfig
	}

	if console == nil {
		console = nullConsole{}
	}

	fs := &FS{
		heap:    h,
		fds:     make([]descriptor, cfg.MaxFDs),
		console: console,
		log:     &kfmt.PrefixWriter{Sink: kfmt.Sink(), Prefix: []byte("[ramfs] ")},
	}
	fs.root = fs.CreateRoot()

	fs.fds[Stdin] = descriptor{inUse: true, stream: streamIn, flags: ORead}
	fs.fds[Stdout] = descriptor{inUse: true, stream: streamOut, flags: OWrite}
	fs.fds[Stderr] = descriptor{inUse: true, stream: streamErr, flags: OWrite}

	return fs, nil
}

// Root returns the root directory of the filesystem.
func (fs *FS) Root() *Dir {
	return fs.root
}

type nullConsole struct{}

func (nullConsole) Write(p []byte) (int, error) { return len(p), nil }
func (nullConsole) ReadLine(_ []byte) int       { return 0 }
