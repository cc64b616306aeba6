//go:build linux || darwin || freebsd || netbsd || openbsd

package heap

import "golang.org/x/sys/unix"

// mapArena reserves size bytes of anonymous, private memory for the arena and
// returns a function that unmaps it.
func mapArena(size int) ([]byte, func() error, error) {
	arena, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	return arena, func() error { return unix.Munmap(arena) }, nil
}
