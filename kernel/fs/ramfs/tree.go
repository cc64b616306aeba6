package ramfs

import (
	"io"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
)

// RootName is the name of a root directory.
const RootName = "/"

// Dir is a directory node. Files and subdirectories keep their insertion
// order and names are unique within each collection.
type Dir struct {
	fs      *FS
	name    string
	parent  *Dir
	files   []*File
	subdirs []*Dir
}

// File is a file node. Its contents live in a heap block whose usable length
// always equals the file size.
type File struct {
	name    string
	data    heap.Addr
	size    mem.Size
	removed bool
}

// CreateRoot returns a new, empty root directory backed by fs.
func (fs *FS) CreateRoot() *Dir {
	return &Dir{fs: fs, name: RootName}
}

// CreateDir creates an empty subdirectory of parent.
func (fs *FS) CreateDir(parent *Dir, name string) (*Dir, *kernel.Error) {
	if parent == nil || !validName(name) {
		return nil, ErrInvalidPath
	}

	fs.lock.Acquire()
	defer fs.lock.Release()

	if parent.subdir(name) != nil {
		return nil, ErrExists
	}

	dir := &Dir{fs: fs, name: name, parent: parent}
	parent.subdirs = append(parent.subdirs, dir)
	return dir, nil
}

// CreateFile creates a file in dir holding a copy of data. An empty data
// slice creates an empty file without a backing buffer.
func (fs *FS) CreateFile(dir *Dir, name string, data []byte) (*File, *kernel.Error) {
	if dir == nil || !validName(name) {
		return nil, ErrInvalidPath
	}

	fs.lock.Acquire()
	defer fs.lock.Release()

	if dir.file(name) != nil {
		return nil, ErrExists
	}

	file := &File{name: name}
	if len(data) != 0 {
		addr, err := fs.allocate(mem.Size(len(data)))
		if err != nil {
			return nil, err
		}

		copy(fs.heap.Bytes(addr, mem.Size(len(data))), data)
		file.data, file.size = addr, mem.Size(len(data))
	}

	dir.files = append(dir.files, file)
	return file, nil
}

// DeleteFile removes the named file from dir and releases its contents. The
// remaining files keep their relative order. Descriptors still referring to
// the file fail with ErrBadDescriptor.
func (fs *FS) DeleteFile(dir *Dir, name string) *kernel.Error {
	if dir == nil {
		return ErrInvalidPath
	}

	fs.lock.Acquire()
	defer fs.lock.Release()

	for i, file := range dir.files {
		if file.name != name {
			continue
		}

		err := fs.heap.Free(file.data)
		file.data, file.size, file.removed = 0, 0, true

		copy(dir.files[i:], dir.files[i+1:])
		dir.files[len(dir.files)-1] = nil
		dir.files = dir.files[:len(dir.files)-1]
		return err
	}

	return ErrNotFound
}

// FindDir resolves a slash-separated path by walking subdirectories starting
// at root. Empty path segments are ignored so that "/a/b", "a/b" and "a//b/"
// are equivalent; the path "/" resolves to root itself.
func (fs *FS) FindDir(root *Dir, path string) (*Dir, *kernel.Error) {
	if root == nil {
		return nil, ErrInvalidPath
	}

	fs.lock.Acquire()
	defer fs.lock.Release()

	return findDir(root, path)
}

func findDir(root *Dir, path string) (*Dir, *kernel.Error) {
	cur := root
	for _, token := range strings.Split(path, "/") {
		if token == "" {
			continue
		}

		if cur = cur.subdir(token); cur == nil {
			return nil, ErrNotFound
		}
	}
	return cur, nil
}

// List writes a listing of dir to w: subdirectories first, then files with
// their size.
func (fs *FS) List(w io.Writer, dir *Dir) {
	kfmt.Fprintf(w, "Contents of %s\n", dir.Path())

	for _, sub := range dir.Subdirs() {
		kfmt.Fprintf(w, "[DIR]  %s\n", sub.Name())
	}
	for _, file := range dir.Files() {
		kfmt.Fprintf(w, "[FILE] %s    size:%d\n", file.Name(), uint64(file.Size()))
	}
}

// allocate reserves a heap buffer for size bytes of file contents. The
// filesystem lock must be held.
func (fs *FS) allocate(size mem.Size) (heap.Addr, *kernel.Error) {
	if size > fs.heap.MaxAllocation() {
		return 0, ErrFileTooLarge
	}
	return fs.heap.Allocate(size)
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// Name returns the directory name.
func (d *Dir) Name() string {
	return d.name
}

// Parent returns the parent directory or nil for a root directory.
func (d *Dir) Parent() *Dir {
	return d.parent
}

// Path returns the absolute path of the directory.
func (d *Dir) Path() string {
	if d.parent == nil {
		return RootName
	}

	var segments []string
	for cur := d; cur.parent != nil; cur = cur.parent {
		segments = append(segments, cur.name)
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}
	return b.String()
}

// Files returns the files of the directory in insertion order.
func (d *Dir) Files() []*File {
	d.fs.lock.Acquire()
	defer d.fs.lock.Release()

	return append([]*File(nil), d.files...)
}

// Subdirs returns the subdirectories of the directory in insertion order.
func (d *Dir) Subdirs() []*Dir {
	d.fs.lock.Acquire()
	defer d.fs.lock.Release()

	return append([]*Dir(nil), d.subdirs...)
}

// Lookup returns the named file or nil if the directory holds no such file.
func (d *Dir) Lookup(name string) *File {
	d.fs.lock.Acquire()
	defer d.fs.lock.Release()

	return d.file(name)
}

// Subdir returns the named subdirectory or nil if there is no such
// subdirectory.
func (d *Dir) Subdir(name string) *Dir {
	d.fs.lock.Acquire()
	defer d.fs.lock.Release()

	return d.subdir(name)
}

func (d *Dir) file(name string) *File {
	for _, file := range d.files {
		if file.name == name {
			return file
		}
	}
	return nil
}

func (d *Dir) subdir(name string) *Dir {
	for _, sub := range d.subdirs {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

// Name returns the file name.
func (f *File) Name() string {
	return f.name
}

// Size returns the size of the file contents.
func (f *File) Size() mem.Size {
	return f.size
}

// Contents returns a copy of the file contents.
func (fs *FS) Contents(f *File) []byte {
	fs.lock.Acquire()
	defer fs.lock.Release()

	if f.size == 0 {
		return nil
	}
	return append([]byte(nil), fs.heap.Bytes(f.data, f.size)...)
}
