package cpu

import "testing"

func TestRemapPICVectorOffsets(t *testing.T) {
	// remapPIC's correctness is exercised indirectly: the vector offsets it
	// writes must match the IDT layout newIDT installs, so this test pins
	// the constants against each other rather than the I/O bus.
	if picMasterVectorOffset != vectorIRQBase {
		t.Errorf("expected master PIC offset %d to match vectorIRQBase %d", picMasterVectorOffset, vectorIRQBase)
	}
	if picSlaveVectorOffset != vectorIRQBase+8 {
		t.Errorf("expected slave PIC offset %d to be vectorIRQBase+8", picSlaveVectorOffset)
	}
}
