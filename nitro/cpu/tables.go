package cpu

// armInstr executes one ARM opcode and returns its cycle cost.
type armInstr func(*Interpreter, uint32) int

// armInstrs is indexed by ((opcode >> 16) & 0xFF0) | ((opcode >> 4) & 0xF);
// thumbInstrs by (opcode >> 6) & 0x3FF. Both are filled once at startup so
// dispatch is a single table load per opcode.
var (
	armInstrs   [4096]armInstr
	thumbInstrs [1024]armInstr
)

func init() {
	for idx := range armInstrs {
		armInstrs[idx] = lookupArm(uint32(idx))
	}
	for idx := range thumbInstrs {
		thumbInstrs[idx] = lookupThumb(uint32(idx))
	}
}

// lookupArm selects the handler for one table slot. Only opcode bits 27-20
// and 7-4 survive in the index, so every mask below tests those bits alone.
func lookupArm(index uint32) armInstr {
	op := (index&0xFF0)<<16 | (index&0xF)<<4

	switch {
	case op&0x0FF000F0 == 0x01200010:
		return armBx
	case op&0x0FF000F0 == 0x01200030:
		return armBlxReg
	case op&0x0FF000F0 == 0x01600010:
		return armClz
	case op&0x0FB000F0 == 0x01000000:
		return armMrs
	case op&0x0FB000F0 == 0x01200000:
		return armMsrReg
	case op&0x0FB00000 == 0x03200000:
		return armMsrImm
	case op&0x0FB000F0 == 0x01000090:
		return armSwp
	case op&0x0FC000F0 == 0x00000090:
		return armMul
	case op&0x0F8000F0 == 0x00800090:
		return armMulLong
	case op&0x0E0000F0 == 0x000000B0:
		return armHalfTransfer
	case op&0x0E0000D0 == 0x000000D0:
		return armHalfTransfer
	case op&0x0F9000F0 == 0x01000050: // QADD/QSUB family
		return unkArm
	case op&0x0F900090 == 0x01000080: // signed halfword multiplies
		return unkArm
	case op&0x0E000090 == 0x00000090:
		return unkArm
	case op&0x0E000010 == 0x06000010:
		return unkArm
	case op&0x0C000000 == 0x00000000:
		return armDataProc
	case op&0x0C000000 == 0x04000000:
		return armSingleTransfer
	case op&0x0E000000 == 0x08000000:
		return armBlockTransfer
	case op&0x0E000000 == 0x0A000000:
		return armBranch
	case op&0x0F000000 == 0x0F000000:
		return armSwi
	default:
		return unkArm
	}
}

// lookupThumb selects the handler for one table slot. Opcode bits 15-6
// survive in the index.
func lookupThumb(index uint32) armInstr {
	op := index << 6

	switch {
	case op&0xF000 == 0xF000:
		return thumbBlPart
	case op&0xF800 == 0xE800:
		return thumbBlxOff
	case op&0xF800 == 0xE000:
		return thumbBranch
	case op&0xFF00 == 0xDF00:
		return thumbSwi
	case op&0xF000 == 0xD000:
		return thumbCondBranch
	case op&0xF000 == 0xC000:
		return thumbLdmStm
	case op&0xF600 == 0xB400:
		return thumbPushPop
	case op&0xFF00 == 0xB000:
		return thumbAddSp
	case op&0xF000 == 0xA000:
		return thumbLoadAddr
	case op&0xF000 == 0x9000:
		return thumbSpRelLoadStore
	case op&0xF000 == 0x8000:
		return thumbHalfTransfer
	case op&0xE000 == 0x6000:
		return thumbImmTransfer
	case op&0xF200 == 0x5200:
		return thumbSignedTransfer
	case op&0xF000 == 0x5000:
		return thumbRegTransfer
	case op&0xF800 == 0x4800:
		return thumbPcRelLoad
	case op&0xFC00 == 0x4400:
		return thumbHiRegOps
	case op&0xFC00 == 0x4000:
		return thumbAluOps
	case op&0xE000 == 0x2000:
		return thumbMovCmpAddSubImm
	case op&0xF800 == 0x1800:
		return thumbAddSub
	case op&0xE000 == 0x0000:
		return thumbShiftImm
	default:
		return unkThumb
	}
}
