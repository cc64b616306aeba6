package mem

// Memset sets every byte of buf to the supplied value. Instead of a byte loop,
// the first byte is set and the filled prefix is then doubled with log2(len)
// copy calls.
func Memset(buf []byte, value byte) {
	if len(buf) == 0 {
		return
	}

	buf[0] = value
	for filled := 1; filled < len(buf); filled *= 2 {
		copy(buf[filled:], buf[:filled])
	}
}
