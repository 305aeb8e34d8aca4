package cpu

// Legacy 8259 PIC I/O ports and the vector offsets spec §4.5/§6 assign it:
// master handles IRQ0-7 remapped to vectors 32-39, slave handles IRQ8-15
// remapped to vectors 40-47.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picMasterVectorOffset = 32
	picSlaveVectorOffset  = 40

	picEOI = 0x20

	picReadISR = 0x0B
)

const (
	icw1Init  = 0x11
	icw4_8086 = 0x01
)

// remapPIC reprograms the master/slave PIC pair so hardware IRQs land on
// vectors 32-47 instead of their legacy 8-15 range, which would otherwise
// collide with CPU exception vectors.
func remapPIC() {
	PortWriteByte(picMasterCommand, icw1Init)
	PortWriteByte(picSlaveCommand, icw1Init)
	PortWriteByte(picMasterData, picMasterVectorOffset)
	PortWriteByte(picSlaveData, picSlaveVectorOffset)
	PortWriteByte(picMasterData, 4) // tell master PIC there's a slave at IRQ2
	PortWriteByte(picSlaveData, 2)  // tell slave PIC its cascade identity
	PortWriteByte(picMasterData, icw4_8086)
	PortWriteByte(picSlaveData, icw4_8086)

	// Mask nothing: the kernel only ever registers interrupt gates for
	// vectors it intends to receive.
	PortWriteByte(picMasterData, 0)
	PortWriteByte(picSlaveData, 0)
}

// isSpuriousIRQ reports whether the in-service register shows no bit set
// for irq, which the 8259 uses to signal a spurious interrupt (one that
// fired without a real pending source, typically from electrical noise on
// the IRQ line).
func isSpuriousIRQ(irq uint8) bool {
	if irq == 7 {
		PortWriteByte(picMasterCommand, picReadISR)
		isr := PortReadByte(picMasterCommand)
		return isr&(1<<7) == 0
	}
	if irq == 15 {
		PortWriteByte(picSlaveCommand, picReadISR)
		isr := PortReadByte(picSlaveCommand)
		if isr&(1<<7) == 0 {
			// Slave spurious IRQs still require an EOI on the master,
			// acknowledging the cascade line, but not the slave itself.
			PortWriteByte(picMasterCommand, picEOI)
			return true
		}
	}
	return false
}

// notifyEndOfInterrupt acknowledges irq to the PIC, returning true if the
// PIC reported it as spurious (in which case no EOI is sent to the
// component that raised it, per the standard spurious-IRQ handling rule).
func notifyEndOfInterrupt(irq uint8) bool {
	if isSpuriousIRQ(irq) {
		return true
	}

	if irq >= 8 {
		PortWriteByte(picSlaveCommand, picEOI)
	}
	PortWriteByte(picMasterCommand, picEOI)
	return false
}
