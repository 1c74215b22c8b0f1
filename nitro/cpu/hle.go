package cpu

// Sentinel opcodes planted in guest memory by the DLDI patcher. They all
// sit in the reserved condition space so handleReserved intercepts them.
const (
	DldiStart  = 0xFF000001
	DldiInsert = 0xFF000002
	DldiRead   = 0xFF000003
	DldiWrite  = 0xFF000004
	DldiClear  = 0xFF000005
	DldiStop   = 0xFF000006
)

// hleIrqReturn is the synthetic opcode at the HLE IRQ return address.
const hleIrqReturn = 0xFF000000

// hleIrqRegs covers R0-R3, R12 and R14, the registers the BIOS IRQ stub
// saves around the guest handler.
const hleIrqRegs = 0x500F

// handleReserved runs opcodes whose condition bits are the reserved code.
func (i *Interpreter) handleReserved(op uint32) int {
	// The ARM9-exclusive BLX instruction uses the reserved condition code
	if op&0x0E000000 == 0x0A000000 {
		return i.blx(op)
	}

	// If the special HLE BIOS opcode was jumped to, return from an HLE interrupt
	if i.bios != nil && op == hleIrqReturn {
		return i.finishHleIrq()
	}

	// If a DLDI function was jumped to, HLE it and return
	if i.dldi != nil && i.dldi.IsPatched() {
		switch op {
		case DldiStart:
			*i.registers[0] = i.dldi.Startup()
		case DldiInsert:
			*i.registers[0] = i.dldi.IsInserted()
		case DldiRead:
			*i.registers[0] = i.dldi.ReadSectors(i.cpu, *i.registers[0], *i.registers[1], *i.registers[2])
		case DldiWrite:
			*i.registers[0] = i.dldi.WriteSectors(i.cpu, *i.registers[0], *i.registers[1], *i.registers[2])
		case DldiClear:
			*i.registers[0] = i.dldi.ClearStatus()
		case DldiStop:
			*i.registers[0] = i.dldi.Shutdown()
		}
		return i.bx(14)
	}

	return unkArm(i, op)
}

// HandleHleIrq enters the guest's interrupt handler the way the real BIOS
// IRQ stub would. Called by the HLE BIOS when it services vector 0x18.
func (i *Interpreter) HandleHleIrq() int {
	// Switch to IRQ mode, save the return address, and push registers to
	// the stack. The SPSR T bit below is the pre-switch CPSR's, freshly
	// saved by SetCpsr.
	i.SetCpsr((i.cpsr&^0x3F)|bitI|modeIrq, true)
	lrOffset := uint32(0)
	if *i.spsr&bitT != 0 {
		lrOffset = 2
	}
	*i.registers[14] = *i.registers[15] + lrOffset
	armBlockTransfer(i, 0x09200000|13<<16|hleIrqRegs) // STMDB R13!, saved regs

	// Set the return address to the special HLE BIOS opcode and jump to
	// the guest interrupt handler
	var handlerPtr uint32
	if i.cpu == ARM9 {
		*i.registers[14] = 0xFFFF0000
		handlerPtr = i.cp15.DtcmAddr() + 0x3FFC
	} else {
		*i.registers[14] = 0x00000000
		handlerPtr = 0x3FFFFFC
	}
	*i.registers[15] = i.mem.Read32(i.cpu, handlerPtr)
	i.FlushPipeline()
	return 3
}

// finishHleIrq undoes HandleHleIrq once the guest handler returned to the
// sentinel address.
func (i *Interpreter) finishHleIrq() int {
	// Update the wait flags if in the middle of an HLE IntrWait function
	if i.bios.ShouldCheck() {
		i.bios.CheckWaitFlags(i.cpu)
	}

	// Pop registers from the stack, jump to the return address, and
	// restore the mode
	armBlockTransfer(i, 0x08B00000|13<<16|hleIrqRegs) // LDMIA R13!, saved regs
	*i.registers[15] = *i.registers[14] - 4
	if i.spsr != nil {
		i.SetCpsr(*i.spsr, false)
	}
	i.FlushPipeline()
	return 3
}
