// Package kfmt implements a minimal, allocation-free Printf for code that
// runs before the Go runtime's allocator is safe to call: early boot, panic
// handlers and anything running on the interrupt stack.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize bounds how many digits (plus sign and padding) fmtInt can
// produce; 64 bits in base 2 needs at most 64 digits.
const numBufSize = 64

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf = make([]byte, numBufSize)

	// scratchByte is a shared one-byte buffer used to push individual
	// characters through doWrite without allocating a slice per call.
	scratchByte = []byte{0}

	// earlyLog buffers everything written before SetOutputSink is called,
	// so boot-time diagnostics survive until a real console exists.
	earlyLog ringBuffer

	// sink is where Printf sends formatted output. A nil sink redirects to
	// earlyLog.
	sink io.Writer
)

// SetOutputSink directs future Printf output to w and drains whatever
// earlyLog accumulated before w existed.
func SetOutputSink(w io.Writer) {
	sink = w
	if w != nil {
		io.Copy(w, &earlyLog)
	}
}

// Printf is a Printf implementation safe to call before the allocator is
// initialized: it never allocates, at the cost of supporting only a small
// verb set. Output goes to the sink installed by SetOutputSink, or to an
// internal ring buffer if none has been installed yet.
//
// Supported verbs:
//
//	%s   the raw bytes of a string or []byte
//	%t   "true" or "false"
//	%o   integer, base 8
//	%d   integer, base 10
//	%x   integer, base 16, lower-case
//	%b   integer, base 2
//
// An optional decimal width may precede any verb (e.g. %08x); strings and
// base-10 integers are left-padded with spaces, other integer bases with
// zeroes. There is deliberately no %p: supporting it would pull in the
// reflect package, and reflect's runtime.convT2E path allocates, which
// would crash the kernel if Printf is ever called before the allocator is
// up.
func Printf(format string, args ...interface{}) {
	Fprintf(sink, format, args...)
}

// Fprintf is Printf with an explicit destination.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex             int
		blockStart, blockEnd int
		padLen               int
		n                    = len(format)
	)

	for blockEnd < n {
		if format[blockEnd] != '%' {
			blockEnd++
			continue
		}

		flushLiteral(w, format, blockStart, blockEnd)

		padLen = 0
		blockEnd++
	scanVerb:
		for ; blockEnd < n; blockEnd++ {
			ch := format[blockEnd]
			switch {
			case ch == '%':
				writeByte(w, '%')
				break scanVerb
			case ch >= '0' && ch <= '9':
				padLen = padLen*10 + int(ch-'0')
				continue
			case ch == 'd' || ch == 'x' || ch == 'o' || ch == 'b' || ch == 's' || ch == 't':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break scanVerb
				}

				switch ch {
				case 'o':
					fmtInt(w, args[argIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[argIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[argIndex], 16, padLen)
				case 'b':
					fmtInt(w, args[argIndex], 2, padLen)
				case 's':
					fmtString(w, args[argIndex], padLen)
				case 't':
					fmtBool(w, args[argIndex])
				}

				argIndex++
				break scanVerb
			}

			doWrite(w, errNoVerb)
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	flushLiteral(w, format, blockStart, blockEnd)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// flushLiteral writes format[from:to] one byte at a time; slicing the
// string and handing the result to doWrite as-is would allocate, since the
// substring no longer shares a cheap address with the original.
func flushLiteral(w io.Writer, format string, from, to int) {
	for i := from; i < to; i++ {
		writeByte(w, format[i])
	}
}

func writeByte(w io.Writer, b byte) {
	scratchByte[0] = b
	doWrite(w, scratchByte)
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}
	if b {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

// fmtString writes v, left-padded with spaces to padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch s := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		writeByte(w, ch)
	}
}

// fmtInt writes v, interpreted as a signed or unsigned integer, in the
// given base (2, 8, 10 or 16) and left-padded to padLen.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		signed           int64
		mag              uint64
		divisor          uint64
		padCh            byte
		left, right, end int
	)

	if padLen >= numBufSize {
		padLen = numBufSize - 1
	}

	switch base {
	case 2:
		divisor, padCh = 2, '0'
	case 8:
		divisor, padCh = 8, '0'
	case 10:
		divisor, padCh = 10, ' '
	case 16:
		divisor, padCh = 16, '0'
	}

	switch n := v.(type) {
	case uint8:
		mag = uint64(n)
	case uint16:
		mag = uint64(n)
	case uint32:
		mag = uint64(n)
	case uint64:
		mag = n
	case uintptr:
		mag = uint64(n)
	case int8:
		signed = int64(n)
	case int16:
		signed = int64(n)
	case int32:
		signed = int64(n)
	case int64:
		signed = n
	case int:
		signed = int64(n)
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if signed < 0 {
		mag = uint64(-signed)
	} else if signed > 0 {
		mag = uint64(signed)
	}

	for right < numBufSize {
		digit := mag % divisor
		if digit < 10 {
			numBuf[right] = byte(digit) + '0'
		} else {
			numBuf[right] = byte(digit-10) + 'a'
		}
		right++

		mag /= divisor
		if mag == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		numBuf[right] = padCh
	}

	// The sign goes on the rightmost blank if padding left room, otherwise
	// it grows the field by one character.
	if signed < 0 {
		for end = right - 1; numBuf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		numBuf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		numBuf[left], numBuf[right] = numBuf[right], numBuf[left]
	}

	doWrite(w, numBuf[0:end])
}

// doWrite hides p behind noEscape so the compiler's escape analysis can't
// see it fleeing into w.Write (an interface call on an as-yet-unknown
// io.Writer always looks escaping to the compiler). Without this, every
// Printf call would box p via runtime.convT2E, allocating, which crashes
// the kernel if Printf runs before the allocator exists.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyLog.Write(p)
	}
}

// noEscape hides a pointer from escape analysis, copied from the technique
// runtime/stubs.go uses for the same purpose.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
