package main

import (
	"os"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/fs/ramfs"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kmain"
)

const (
	prompt  = "shompOS> "
	logPath = "/home/log"
)

// fdWriter adapts a ramfs descriptor to io.Writer.
type fdWriter struct {
	fs *ramfs.FS
	fd ramfs.FD
}

func (w fdWriter) Write(p []byte) (int, error) {
	n, err := w.fs.Write(w.fd, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// mount copies the host directory dir into /mnt.
func mount(k *kmain.Kernel, dir string) (int, *kernel.Error) {
	return k.Files.Populate(k.Root.Subdir("mnt"), os.DirFS(dir))
}

// initProcess returns the entry point of the first process. It lists /mnt
// and then handles console lines until the input is exhausted, the kernel
// shuts down or "exit" is entered. Lines that are not commands are appended
// to /home/log.
func initProcess(k *kmain.Kernel) func() {
	return func() {
		sh := &shell{
			k:      k,
			cwd:    k.Root,
			stdout: fdWriter{fs: k.Files, fd: ramfs.Stdout},
			stderr: fdWriter{fs: k.Files, fd: ramfs.Stderr},
		}

		listTree(k, sh.stdout, k.Root.Subdir("mnt"))

		logFD, err := k.Files.Open(k.Root, logPath, ramfs.OWrite|ramfs.OCreate|ramfs.OAppend)
		if err != nil {
			kfmt.Fprintf(sh.stderr, "init: unable to open %s: %s\n", logPath, err.Message)
			return
		}
		defer k.Files.Close(logFD)

		buf := make([]byte, 256)
		kfmt.Fprintf(sh.stdout, prompt)

		for {
			n, err := k.Files.Read(ramfs.Stdin, buf)
			if err != nil {
				kfmt.Fprintf(sh.stderr, "init: read failed: %s\n", err.Message)
				return
			}

			if n == 0 {
				if k.TTY.Drained() || !k.Pause() {
					return
				}
				continue
			}

			line := strings.TrimSpace(string(buf[:n]))
			if line == "exit" {
				return
			}

			if !sh.run(line) && line != "" {
				k.Files.Write(logFD, buf[:n])
			}
			kfmt.Fprintf(sh.stdout, prompt)
		}
	}
}

// shell holds the state of the init command interpreter.
type shell struct {
	k      *kmain.Kernel
	cwd    *ramfs.Dir
	stdout fdWriter
	stderr fdWriter
}

// run executes a built-in command and reports whether line was one.
func (sh *shell) run(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "help":
		kfmt.Fprintf(sh.stdout, helpText)
	case "ls":
		dir := sh.cwd
		if arg != "" {
			var err *kernel.Error
			if dir, err = sh.dir(arg); err != nil {
				kfmt.Fprintf(sh.stderr, "ls: %s: %s\n", arg, err.Message)
				return true
			}
		}
		sh.k.Files.List(sh.stdout, dir)
	case "pwd":
		kfmt.Fprintf(sh.stdout, "%s\n", sh.cwd.Path())
	case "cd":
		if arg == "" {
			sh.cwd = sh.k.Root
			return true
		}

		dir, err := sh.dir(arg)
		if err != nil {
			kfmt.Fprintf(sh.stderr, "cd: %s: %s\n", arg, err.Message)
			return true
		}
		sh.cwd = dir
	case "cat":
		if arg == "" {
			kfmt.Fprintf(sh.stderr, "usage: cat FILE\n")
			return true
		}
		sh.cat(arg)
	case "mkdir":
		if arg == "" {
			kfmt.Fprintf(sh.stderr, "usage: mkdir DIR\n")
			return true
		}

		parent, name, err := sh.split(arg)
		if err == nil {
			_, err = sh.k.Files.CreateDir(parent, name)
		}
		if err != nil {
			kfmt.Fprintf(sh.stderr, "mkdir: %s: %s\n", arg, err.Message)
		}
	case "touch":
		if arg == "" {
			kfmt.Fprintf(sh.stderr, "usage: touch FILE\n")
			return true
		}

		dir, name, err := sh.split(arg)
		if err == nil && dir.Lookup(name) == nil {
			_, err = sh.k.Files.CreateFile(dir, name, nil)
		}
		if err != nil {
			kfmt.Fprintf(sh.stderr, "touch: %s: %s\n", arg, err.Message)
		}
	case "rm":
		if arg == "" {
			kfmt.Fprintf(sh.stderr, "usage: rm FILE\n")
			return true
		}

		dir, name, err := sh.split(arg)
		if err == nil {
			err = sh.k.Files.DeleteFile(dir, name)
		}
		if err != nil {
			kfmt.Fprintf(sh.stderr, "rm: %s: %s\n", arg, err.Message)
		}
	case "ps":
		sh.k.Procs.Print(sh.stdout)
	case "mem":
		sh.k.Heap.PrintFreeCounts(sh.stdout)
	default:
		return false
	}

	return true
}

const helpText = `available commands:
  help          show this message
  ls [DIR]      list directory contents
  pwd           print the current directory
  cd [DIR]      change the current directory
  cat FILE      print file contents
  mkdir DIR     create a directory
  touch FILE    create an empty file
  rm FILE       remove a file
  ps            list processes
  mem           show heap free lists
  exit          leave the shell
`

// dir resolves path against the root if it is absolute and against the
// current directory otherwise. The segments "." and ".." refer to the
// directory itself and its parent.
func (sh *shell) dir(path string) (*ramfs.Dir, *kernel.Error) {
	cur := sh.cwd
	if strings.HasPrefix(path, "/") {
		cur = sh.k.Root
	}

	for _, token := range strings.Split(path, "/") {
		switch token {
		case "", ".":
		case "..":
			if parent := cur.Parent(); parent != nil {
				cur = parent
			}
		default:
			if cur = cur.Subdir(token); cur == nil {
				return nil, ramfs.ErrNotFound
			}
		}
	}
	return cur, nil
}

// split resolves the directory part of path and returns it together with
// the final path segment.
func (sh *shell) split(path string) (*ramfs.Dir, string, *kernel.Error) {
	index := strings.LastIndexByte(path, '/')
	if index == -1 {
		return sh.cwd, path, nil
	}

	dirPath := path[:index]
	if dirPath == "" {
		dirPath = "/"
	}

	dir, err := sh.dir(dirPath)
	if err != nil {
		return nil, "", err
	}
	return dir, path[index+1:], nil
}

func (sh *shell) cat(path string) {
	dir, name, err := sh.split(path)
	if err != nil {
		kfmt.Fprintf(sh.stderr, "cat: %s: %s\n", path, err.Message)
		return
	}

	fd, err := sh.k.Files.Open(dir, name, ramfs.ORead)
	if err != nil {
		kfmt.Fprintf(sh.stderr, "cat: %s: %s\n", path, err.Message)
		return
	}
	defer sh.k.Files.Close(fd)

	buf := make([]byte, 128)
	for {
		n, err := sh.k.Files.Read(fd, buf)
		if err != nil || n == 0 {
			break
		}
		sh.stdout.Write(buf[:n])
	}
	kfmt.Fprintf(sh.stdout, "\n")
}

// listTree lists dir and, recursively, all of its subdirectories.
func listTree(k *kmain.Kernel, w fdWriter, dir *ramfs.Dir) {
	if dir == nil {
		return
	}

	k.Files.List(w, dir)
	for _, sub := range dir.Subdirs() {
		listTree(k, w, sub)
	}
}
