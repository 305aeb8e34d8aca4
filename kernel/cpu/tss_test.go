package cpu

import (
	"testing"
	"unsafe"
)

func TestNewTSSSetsIST1AndDisablesIOBP(t *testing.T) {
	const stackTop = uintptr(0xFFFF_8000_0010_0000)
	ts := newTSS(stackTop)

	if ts.ist[ist1Index] != uint64(stackTop) {
		t.Errorf("expected ist[%d] == %#x; got %#x", ist1Index, stackTop, ts.ist[ist1Index])
	}
	if int(ts.iobp) != int(unsafe.Sizeof(tss{})) {
		t.Errorf("expected iobp == sizeof(tss) (%d); got %d", unsafe.Sizeof(tss{}), ts.iobp)
	}
}
