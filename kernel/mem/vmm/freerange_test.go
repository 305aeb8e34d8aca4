package vmm

import "testing"

func TestFreeRangeAllocateBestFit(t *testing.T) {
	fr := newFreeRange(0x1000, 0x3000)

	got, err := fr.Allocate(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1000 {
		t.Errorf("expected first allocation at 0x1000; got %#x", got)
	}

	got, err = fr.Allocate(0x2000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x2000 {
		t.Errorf("expected second allocation at 0x2000; got %#x", got)
	}

	if _, err := fr.Allocate(1); err != ErrOutOfRange {
		t.Errorf("expected ErrOutOfRange once exhausted; got %v", err)
	}
}

func TestFreeRangeAllocateAt(t *testing.T) {
	fr := newFreeRange(0x1000, 0x4000) // [0x1000, 0x5000)

	if err := fr.AllocateAt(0x2000, 0x1000); err != nil {
		t.Fatal(err)
	}

	// Remaining free space should be the two flanking pieces.
	if len(fr.blocks) != 2 {
		t.Fatalf("expected 2 remaining free blocks; got %d: %+v", len(fr.blocks), fr.blocks)
	}
	if fr.blocks[0] != (freeBlock{start: 0x1000, size: 0x1000}) {
		t.Errorf("unexpected left remainder: %+v", fr.blocks[0])
	}
	if fr.blocks[1] != (freeBlock{start: 0x3000, size: 0x2000}) {
		t.Errorf("unexpected right remainder: %+v", fr.blocks[1])
	}

	if err := fr.AllocateAt(0x2000, 0x1000); err != ErrDoesNotFit {
		t.Errorf("expected re-claiming the same range to fail with ErrDoesNotFit; got %v", err)
	}
}

func TestFreeRangeDeallocateCoalesces(t *testing.T) {
	fr := newFreeRange(0x1000, 0x4000)

	if err := fr.AllocateAt(0x2000, 0x1000); err != nil {
		t.Fatal(err)
	}

	fr.Deallocate(0x2000, 0x1000)

	if len(fr.blocks) != 1 {
		t.Fatalf("expected deallocation to coalesce back into 1 block; got %d: %+v", len(fr.blocks), fr.blocks)
	}
	if fr.blocks[0] != (freeBlock{start: 0x1000, size: 0x4000}) {
		t.Errorf("expected fully coalesced block; got %+v", fr.blocks[0])
	}
}
