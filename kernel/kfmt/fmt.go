// Package kfmt implements the kernel console logger: a small Printf that
// understands the handful of verbs the kernel uses, an early ring buffer that
// captures output until a console is attached, and line-prefixing writers
// used to tag output with the name of the subsystem that produced it.
package kfmt

import (
	"io"
	"strconv"

	"github.com/jacobobendrado/4810-Operating-System/kernel/sync"
)

// maxPadLen caps the width that can be requested by a formatting verb.
const maxPadLen = 64

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// earlyPrintBuffer is a ring buffer that stores Printf output before a
	// console device is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes access to outputSink and earlyPrintBuffer.
	sinkLock sync.Spinlock

	consoleSink sinkProxy
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently attached output sink or nil if Printf
// output is still being buffered.
func GetOutputSink() io.Writer {
	sinkLock.Acquire()
	defer sinkLock.Release()

	return outputSink
}

// Sink returns an io.Writer that forwards each write to whichever output sink
// is attached at the time of the write. It allows long-lived writers such as a
// PrefixWriter to be set up before the console is available.
func Sink() io.Writer {
	return &consoleSink
}

type sinkProxy struct{}

func (sinkProxy) Write(p []byte) (int, error) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}
	return outputSink.Write(p)
}

// Printf formats its arguments according to format and writes the result to
// the active output sink. It supports the following subset of the fmt verbs:
//
// Strings:
//		%s the uninterpreted bytes of a string, a byte slice or an error message
//
// Integers:
//		%o base 8
//		%d base 10
//		%x base 16, with lower-case letters for a-f
//
// Booleans:
//		%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces while base-8
// and base-16 integers are left-padded with zeroes.
func Printf(format string, args ...interface{}) {
	Fprintf(&consoleSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer sends the output to the early ring
// buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	buf := appendFormat(make([]byte, 0, len(format)+32), format, args)
	if w == nil {
		w = &consoleSink
	}
	w.Write(buf)
}

func appendFormat(buf []byte, format string, args []interface{}) []byte {
	var (
		argIndex int
		padLen   int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			buf = append(buf, format[i])
			continue
		}

		padLen = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = (padLen * 10) + int(format[i]-'0')
		}

		if padLen > maxPadLen {
			padLen = maxPadLen
		}

		if i == len(format) {
			buf = append(buf, errNoVerb...)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			buf = append(buf, '%')
			continue
		case 'd', 'x', 'o', 's', 't':
		default:
			buf = append(buf, errNoVerb...)
			continue
		}

		if argIndex >= len(args) {
			buf = append(buf, errMissingArg...)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'o':
			buf = appendInt(buf, arg, 8, padLen)
		case 'd':
			buf = appendInt(buf, arg, 10, padLen)
		case 'x':
			buf = appendInt(buf, arg, 16, padLen)
		case 's':
			buf = appendString(buf, arg, padLen)
		case 't':
			buf = appendBool(buf, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		buf = append(buf, errExtraArg...)
	}

	return buf
}

func appendBool(buf []byte, v interface{}) []byte {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		return append(buf, errWrongArgType...)
	case bVal:
		return append(buf, trueValue...)
	default:
		return append(buf, falseValue...)
	}
}

func appendString(buf []byte, v interface{}, padLen int) []byte {
	var str string
	switch castedVal := v.(type) {
	case string:
		str = castedVal
	case []byte:
		str = string(castedVal)
	case error:
		str = castedVal.Error()
	default:
		return append(buf, errWrongArgType...)
	}

	buf = appendRepeat(buf, ' ', padLen-len(str))
	return append(buf, str...)
}

func appendRepeat(buf []byte, ch byte, count int) []byte {
	for ; count > 0; count-- {
		buf = append(buf, ch)
	}
	return buf
}

// appendInt appends a formatted version of v in the requested base, applying
// the padding specified by padLen. All built-in signed and unsigned integer
// types are supported.
func appendInt(buf []byte, v interface{}, base, padLen int) []byte {
	var (
		uval     uint64
		negative bool
		digits   [64]byte
	)

	switch castedVal := v.(type) {
	case uint8:
		uval = uint64(castedVal)
	case uint16:
		uval = uint64(castedVal)
	case uint32:
		uval = uint64(castedVal)
	case uint64:
		uval = castedVal
	case uint:
		uval = uint64(castedVal)
	case uintptr:
		uval = uint64(castedVal)
	case int8:
		uval, negative = absInt(int64(castedVal))
	case int16:
		uval, negative = absInt(int64(castedVal))
	case int32:
		uval, negative = absInt(int64(castedVal))
	case int64:
		uval, negative = absInt(castedVal)
	case int:
		uval, negative = absInt(int64(castedVal))
	default:
		return append(buf, errWrongArgType...)
	}

	num := strconv.AppendUint(digits[:0], uval, base)
	width := len(num)
	if negative {
		width++
	}

	if base == 10 {
		buf = appendRepeat(buf, ' ', padLen-width)
		if negative {
			buf = append(buf, '-')
		}
	} else {
		if negative {
			buf = append(buf, '-')
		}
		buf = appendRepeat(buf, '0', padLen-width)
	}

	return append(buf, num...)
}

func absInt(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
