// Package mem defines memory size units and byte-level helpers shared by the
// heap and its clients.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Scale returns the smallest scale s such that 1<<s >= size. A zero or one
// byte size has scale 0.
func (s Size) Scale() uint8 {
	var scale uint8
	for (Size(1) << scale) < s {
		scale++
	}
	return scale
}
