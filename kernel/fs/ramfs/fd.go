package ramfs

import (
	"io"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
)

// FD is a descriptor number: an index into the descriptor table.
type FD int

// The descriptors opened on the console when a filesystem is created.
const (
	Stdin  FD = 0
	Stdout FD = 1
	Stderr FD = 2
)

// Flags select the access mode of a descriptor.
type Flags uint8

const (
	// ORead opens a descriptor for reading.
	ORead Flags = 1 << iota

	// OWrite opens a descriptor for writing.
	OWrite

	// OAppend moves the offset to the end of the file before each write.
	OAppend

	// OCreate creates a missing file in an existing directory.
	OCreate

	// ORdWr opens a descriptor for reading and writing.
	ORdWr = ORead | OWrite
)

// Reserved paths that open console descriptors instead of ramfs files.
const (
	StdinPath  = "/dev/stdin"
	StdoutPath = "/dev/stdout"
	StderrPath = "/dev/stderr"
)

// stream identifies what a descriptor refers to. The zero value refers to a
// ramfs file.
type stream uint8

const (
	streamFile stream = iota
	streamIn
	streamOut
	streamErr
)

// descriptor is an entry of the descriptor table. A console descriptor has
// no file and no offset.
type descriptor struct {
	inUse  bool
	stream stream
	file   *File
	offset int64
	flags  Flags
}

// Open resolves path relative to root and returns the lowest free
// descriptor, positioned at offset 0. The path is split at its last slash
// into a directory, resolved with FindDir, and a file name. With OCreate a
// missing file is created in an existing directory. The reserved console
// paths open additional console descriptors. When the table is full, Open
// returns ErrTableFull without creating anything.
func (fs *FS) Open(root *Dir, path string, flags Flags) (FD, *kernel.Error) {
	if root == nil || path == "" {
		return -1, ErrInvalidPath
	}

	fs.lock.Acquire()
	defer fs.lock.Release()

	// claim nothing until a slot is known to be available
	slot := -1
	for fd := range fs.fds {
		if !fs.fds[fd].inUse {
			slot = fd
			break
		}
	}
	if slot == -1 {
		return -1, ErrTableFull
	}

	entry := descriptor{inUse: true, flags: flags}

	switch path {
	case StdinPath:
		entry.stream = streamIn
	case StdoutPath:
		entry.stream = streamOut
	case StderrPath:
		entry.stream = streamErr
	default:
		file, err := fs.resolveFile(root, path, flags&OCreate != 0)
		if err != nil {
			return -1, err
		}
		entry.file = file
	}

	fs.fds[slot] = entry
	return FD(slot), nil
}

// resolveFile returns the file at path, creating it if create is set. The
// filesystem lock must be held.
func (fs *FS) resolveFile(root *Dir, path string, create bool) (*File, *kernel.Error) {
	dirPath, name := "", path
	if index := strings.LastIndexByte(path, '/'); index != -1 {
		dirPath, name = path[:index], path[index+1:]
	}

	if name == "" {
		return nil, ErrInvalidPath
	}

	dir := root
	if dirPath != "" {
		var err *kernel.Error
		if dir, err = findDir(root, dirPath); err != nil {
			return nil, err
		}
	}

	if file := dir.file(name); file != nil {
		return file, nil
	}

	if !create {
		return nil, ErrNotFound
	}

	if !validName(name) {
		return nil, ErrInvalidPath
	}

	file := &File{name: name}
	dir.files = append(dir.files, file)
	return file, nil
}

// Read copies up to len(buf) bytes from the descriptor into buf and advances
// the offset by the number of bytes copied. Reading at or past the end of a
// file returns 0. Reading the console returns at most one line of input, or
// 0 if none is ready.
func (fs *FS) Read(fd FD, buf []byte) (int, *kernel.Error) {
	fs.lock.Acquire()

	entry, err := fs.descriptor(fd)
	if err != nil {
		fs.lock.Release()
		return 0, err
	}

	if entry.flags&ORead == 0 {
		fs.lock.Release()
		return 0, ErrAccessMode
	}

	if entry.stream != streamFile {
		console := fs.console
		fs.lock.Release()

		if entry.stream != streamIn {
			return 0, nil
		}
		return console.ReadLine(buf), nil
	}
	defer fs.lock.Release()

	file := entry.file
	if file.removed {
		return 0, ErrBadDescriptor
	}

	if entry.offset >= int64(file.size) {
		return 0, nil
	}

	contents := fs.heap.Bytes(file.data, file.size)
	n := copy(buf, contents[entry.offset:])
	entry.offset += int64(n)
	return n, nil
}

// Write copies buf into the file behind the descriptor at its offset, growing
// the file when the write extends past its end, and advances the offset by
// len(buf). With OAppend the offset is first moved to the end of the file.
// A gap between the previous end of the file and the offset reads back as
// zeroes. Writing to a console descriptor forwards buf to the console.
func (fs *FS) Write(fd FD, buf []byte) (int, *kernel.Error) {
	fs.lock.Acquire()

	entry, err := fs.descriptor(fd)
	if err != nil {
		fs.lock.Release()
		return 0, err
	}

	if entry.flags&OWrite == 0 {
		fs.lock.Release()
		return 0, ErrAccessMode
	}

	if entry.stream != streamFile {
		console := fs.console
		fs.lock.Release()

		console.Write(buf)
		return len(buf), nil
	}
	defer fs.lock.Release()

	file := entry.file
	if file.removed {
		return 0, ErrBadDescriptor
	}

	if entry.flags&OAppend != 0 {
		entry.offset = int64(file.size)
	}

	if len(buf) == 0 {
		return 0, nil
	}

	limit := int64(fs.heap.MaxAllocation())
	if entry.offset > limit || int64(len(buf)) > limit-entry.offset {
		return 0, ErrFileTooLarge
	}

	end := entry.offset + int64(len(buf))
	if end > int64(file.size) {
		if err = fs.grow(file, mem.Size(end), mem.Size(entry.offset)); err != nil {
			return 0, err
		}
	}

	copy(fs.heap.Bytes(file.data, file.size)[entry.offset:], buf)
	entry.offset = end
	return len(buf), nil
}

// grow replaces the buffer of file with one of exactly size bytes, keeping
// the previous contents and zeroing any bytes between the previous end of
// the file and offset. The filesystem lock must be held.
func (fs *FS) grow(file *File, size, offset mem.Size) *kernel.Error {
	addr, err := fs.allocate(size)
	if err != nil {
		return err
	}

	contents := fs.heap.Bytes(addr, size)
	if file.size != 0 {
		copy(contents, fs.heap.Bytes(file.data, file.size))
	}
	if offset > file.size {
		mem.Memset(contents[file.size:offset], 0)
	}

	if err = fs.heap.Free(file.data); err != nil {
		fs.heap.Free(addr)
		return err
	}

	file.data, file.size = addr, size
	return nil
}

// Seek sets the offset of a file descriptor relative to the start of the
// file, the current offset or the end of the file, as selected by whence
// (io.SeekStart, io.SeekCurrent or io.SeekEnd), and returns the new offset.
// Seeking past the end of the file is allowed.
func (fs *FS) Seek(fd FD, offset int64, whence int) (int64, *kernel.Error) {
	fs.lock.Acquire()
	defer fs.lock.Release()

	entry, err := fs.descriptor(fd)
	if err != nil {
		return 0, err
	}

	if entry.stream != streamFile {
		return 0, ErrInvalidSeek
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = entry.offset + offset
	case io.SeekEnd:
		target = int64(entry.file.size) + offset
	default:
		return 0, ErrInvalidSeek
	}

	if target < 0 {
		return 0, ErrInvalidSeek
	}

	entry.offset = target
	return target, nil
}

// Close releases a descriptor. The file it refers to is not affected.
func (fs *FS) Close(fd FD) *kernel.Error {
	fs.lock.Acquire()
	defer fs.lock.Release()

	entry, err := fs.descriptor(fd)
	if err != nil {
		return err
	}

	*entry = descriptor{}
	return nil
}

// OpenCount returns the number of descriptors in use.
func (fs *FS) OpenCount() int {
	fs.lock.Acquire()
	defer fs.lock.Release()

	var count int
	for fd := range fs.fds {
		if fs.fds[fd].inUse {
			count++
		}
	}
	return count
}

// descriptor returns the table entry for an open descriptor. The filesystem
// lock must be held.
func (fs *FS) descriptor(fd FD) (*descriptor, *kernel.Error) {
	if fd < 0 || int(fd) >= len(fs.fds) || !fs.fds[fd].inUse {
		return nil, ErrBadDescriptor
	}
	return &fs.fds[fd], nil
}
