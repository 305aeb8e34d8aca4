package mem

// Block describes a contiguous range of memory: either physical, while
// walking the bootloader's memory map, or virtual, while walking an
// AddressSpace's free-range index.
//
// A Block with Size == 0 is considered empty.
type Block struct {
	StartAddress uintptr
	Size         Size
}

// EndAddress returns the exclusive end address of the block.
func (b Block) EndAddress() uintptr {
	return b.StartAddress + uintptr(b.Size)
}

// Empty returns true if the block has zero size.
func (b Block) Empty() bool {
	return b.Size == 0
}

// Align rounds the block's start address up and its end address down to the
// given power-of-two alignment. If the resulting block would have a
// negative size (alignment consumed the whole block), an empty block is
// returned instead.
func (b Block) Align(alignment Size) Block {
	alignmentMask := uintptr(alignment) - 1
	alignedStart := (b.StartAddress + alignmentMask) &^ alignmentMask
	if alignedStart-b.StartAddress > uintptr(b.Size) {
		return Block{}
	}

	alignedSize := (uintptr(b.Size) - (alignedStart - b.StartAddress)) &^ alignmentMask
	if Size(alignedSize) > b.Size {
		return Block{StartAddress: alignedStart, Size: 0}
	}

	return Block{StartAddress: alignedStart, Size: Size(alignedSize)}
}

// Resize returns a copy of the block with a different size, same start.
func (b Block) Resize(newSize Size) Block {
	return Block{StartAddress: b.StartAddress, Size: newSize}
}

// Take returns the first `amount` bytes of the block, clamped to the
// block's own size.
func (b Block) Take(amount Size) Block {
	if amount > b.Size {
		amount = b.Size
	}
	return Block{StartAddress: b.StartAddress, Size: amount}
}
