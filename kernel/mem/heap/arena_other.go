//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package heap

// mapArena backs the arena with a Go slice on hosts without mmap support.
func mapArena(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
