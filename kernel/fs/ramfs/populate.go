package ramfs

import (
	iofs "io/fs"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

var errPopulate = &kernel.Error{Module: "ramfs", Message: "unable to read source tree"}

// Populate copies the tree of src into dir. Directories that already exist
// are merged; files that already exist are left untouched. Files too large
// to fit in a single heap block are skipped and logged. Populate returns the
// number of files imported.
func (fs *FS) Populate(dir *Dir, src iofs.FS) (int, *kernel.Error) {
	if dir == nil || src == nil {
		return 0, ErrInvalidPath
	}

	var (
		imported int
		kerr     *kernel.Error
	)

	walkErr := iofs.WalkDir(src, ".", func(path string, entry iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}

		parentPath, name := "", path
		if index := strings.LastIndexByte(path, '/'); index != -1 {
			parentPath, name = path[:index], path[index+1:]
		}

		parent, perr := fs.FindDir(dir, parentPath)
		if perr != nil {
			kerr = perr
			return iofs.SkipAll
		}

		if entry.IsDir() {
			if _, perr = fs.CreateDir(parent, name); perr != nil && perr != ErrExists {
				kerr = perr
				return iofs.SkipAll
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		data, err := iofs.ReadFile(src, path)
		if err != nil {
			return err
		}

		switch _, perr = fs.CreateFile(parent, name, data); perr {
		case nil:
			imported++
		case ErrExists:
		case ErrFileTooLarge:
			kfmt.Fprintf(fs.log, "skipping %s: %s\n", path, perr.Message)
		default:
			kerr = perr
			return iofs.SkipAll
		}
		return nil
	})

	if kerr != nil {
		return imported, kerr
	}
	if walkErr != nil {
		kfmt.Fprintf(fs.log, "populate failed: %s\n", walkErr)
		return imported, errPopulate
	}
	return imported, nil
}
