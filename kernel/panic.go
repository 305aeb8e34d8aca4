package kernel

// FrameBufferInfo describes the linear framebuffer handed to us by the
// bootloader. It is the contract panic rendering needs; the actual
// PSF-font glyph blitting lives outside this module (see spec §6).
type FrameBufferInfo struct {
	Base     uintptr
	Size     uint32
	Width    uint32
	Height   uint32
	Scanline uint32
}

// PanicSink receives the rendered panic message. The framebuffer+PSF-font
// renderer that implements this interface is an external collaborator;
// this package only needs somewhere to write the message before halting.
type PanicSink interface {
	WritePanic(msg string)
}

var (
	// panicSink is the registered renderer. Left nil until
	// RegisterPanicSink is called (e.g. by the loader, once the
	// framebuffer address is known); a nil sink just drops the message.
	panicSink PanicSink

	// haltFn is swapped out by tests so Panic does not actually stop
	// the calling goroutine.
	haltFn = func() { select {} }

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// RegisterPanicSink installs the renderer used by Panic.
func RegisterPanicSink(sink PanicSink) {
	panicSink = sink
}

// Panic renders the supplied error (or string, or error) through the
// registered PanicSink and then halts. Panic never returns.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		err = &Error{Module: "rt", Message: t}
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	default:
		err = errRuntimePanic
	}

	if panicSink != nil {
		panicSink.WritePanic("kernel panic [" + err.Module + "]: " + err.Message)
	}

	haltFn()
}
