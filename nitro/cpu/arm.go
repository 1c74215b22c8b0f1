package cpu

import (
	"log/slog"
	"math/bits"
)

func unkArm(i *Interpreter, op uint32) int {
	slog.Debug("unknown ARM opcode", "cpu", i.cpu, "opcode", op)
	return 1
}

// regVal reads a register, applying the extra prefetch adjustment that
// applies to R15 in some operand positions.
func (i *Interpreter) regVal(r, pcAdjust uint32) uint32 {
	v := *i.registers[r&0xF]
	if r&0xF == 15 {
		v += pcAdjust
	}
	return v
}

func (i *Interpreter) flagSet(bit uint32, cond bool) {
	if cond {
		i.cpsr |= bit
	} else {
		i.cpsr &^= bit
	}
}

func (i *Interpreter) carry() uint32 {
	if i.cpsr&bitC != 0 {
		return 1
	}
	return 0
}

// jumpTo writes R15 and refills the pipeline. On the ARM9 an interworking
// load may carry the THUMB bit in bit 0 of the target.
func (i *Interpreter) jumpTo(value uint32, interwork bool) {
	if interwork && i.cpu == ARM9 {
		if value&1 != 0 {
			i.cpsr |= bitT
		} else {
			i.cpsr &^= bitT
		}
	}
	*i.registers[15] = value
	i.FlushPipeline()
}

// shiftedReg computes the register form of operand 2, returning the value,
// the shifter carry-out and whether the carry-out is defined.
func (i *Interpreter) shiftedReg(op uint32) (value uint32, carry, carryValid bool) {
	rm := op & 0xF
	shiftType := (op >> 5) & 0x3
	carry = i.cpsr&bitC != 0

	var amount uint32
	if op&0x10 != 0 { // shift amount from register
		amount = *i.registers[(op>>8)&0xF] & 0xFF
		value = i.regVal(rm, 4)
		if amount == 0 {
			return value, carry, false
		}
	} else { // immediate shift amount
		amount = (op >> 7) & 0x1F
		value = i.regVal(rm, 0)
		if amount == 0 {
			switch shiftType {
			case 0: // LSL #0: no shift
				return value, carry, false
			case 3: // ROR #0 encodes RRX
				carry = value&1 != 0
				value = value>>1 | i.carry()<<31
				return value, carry, true
			default: // LSR/ASR #0 encode a shift by 32
				amount = 32
			}
		}
	}

	switch shiftType {
	case 0: // LSL
		switch {
		case amount < 32:
			carry = value&(1<<(32-amount)) != 0
			value <<= amount
		case amount == 32:
			carry = value&1 != 0
			value = 0
		default:
			carry, value = false, 0
		}
	case 1: // LSR
		switch {
		case amount < 32:
			carry = value&(1<<(amount-1)) != 0
			value >>= amount
		case amount == 32:
			carry = value&(1<<31) != 0
			value = 0
		default:
			carry, value = false, 0
		}
	case 2: // ASR
		if amount >= 32 {
			carry = value&(1<<31) != 0
			value = uint32(int32(value) >> 31)
			return value, carry, true
		}
		carry = value&(1<<(amount-1)) != 0
		value = uint32(int32(value) >> amount)
	case 3: // ROR
		amount &= 0x1F
		if amount == 0 {
			carry = value&(1<<31) != 0
			return value, carry, true
		}
		carry = value&(1<<(amount-1)) != 0
		value = bits.RotateLeft32(value, -int(amount))
	}
	return value, carry, true
}

// operand2 decodes the data-processing second operand, immediate or
// register form.
func (i *Interpreter) operand2(op uint32) (value uint32, carry, carryValid bool) {
	if op&(1<<25) != 0 { // immediate with rotation
		rot := (op >> 8) & 0xF * 2
		value = bits.RotateLeft32(op&0xFF, -int(rot))
		if rot == 0 {
			return value, i.cpsr&bitC != 0, false
		}
		return value, value&(1<<31) != 0, true
	}
	return i.shiftedReg(op)
}

func addOverflow(a, b, r uint32) bool {
	return (a^r)&(b^r)&(1<<31) != 0
}

func subOverflow(a, b, r uint32) bool {
	return (a^b)&(a^r)&(1<<31) != 0
}

func armDataProc(i *Interpreter, op uint32) int {
	code := (op >> 21) & 0xF
	setFlags := op&(1<<20) != 0
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF

	// With a register-specified shift, R15 reads 4 bytes further ahead
	var pcAdjust uint32
	if op&(1<<25) == 0 && op&0x10 != 0 {
		pcAdjust = 4
	}

	op2, shiftCarry, carryValid := i.operand2(op)
	op1 := i.regVal(rn, pcAdjust)

	var result uint32
	var writeBack, logical = true, false
	var carryOut, overflow bool
	switch code {
	case 0x0: // AND
		result, logical = op1&op2, true
	case 0x1: // EOR
		result, logical = op1^op2, true
	case 0x2: // SUB
		result = op1 - op2
		carryOut = op1 >= op2
		overflow = subOverflow(op1, op2, result)
	case 0x3: // RSB
		result = op2 - op1
		carryOut = op2 >= op1
		overflow = subOverflow(op2, op1, result)
	case 0x4: // ADD
		result = op1 + op2
		carryOut = result < op1
		overflow = addOverflow(op1, op2, result)
	case 0x5: // ADC
		c := i.carry()
		result = op1 + op2 + c
		carryOut = uint64(op1)+uint64(op2)+uint64(c) > 0xFFFFFFFF
		overflow = addOverflow(op1, op2, result)
	case 0x6: // SBC
		c := i.carry()
		result = op1 - op2 - (1 - c)
		carryOut = uint64(op1) >= uint64(op2)+uint64(1-c)
		overflow = subOverflow(op1, op2, result)
	case 0x7: // RSC
		c := i.carry()
		result = op2 - op1 - (1 - c)
		carryOut = uint64(op2) >= uint64(op1)+uint64(1-c)
		overflow = subOverflow(op2, op1, result)
	case 0x8: // TST
		result, logical, writeBack = op1&op2, true, false
	case 0x9: // TEQ
		result, logical, writeBack = op1^op2, true, false
	case 0xA: // CMP
		result, writeBack = op1-op2, false
		carryOut = op1 >= op2
		overflow = subOverflow(op1, op2, result)
	case 0xB: // CMN
		result, writeBack = op1+op2, false
		carryOut = result < op1
		overflow = addOverflow(op1, op2, result)
	case 0xC: // ORR
		result, logical = op1|op2, true
	case 0xD: // MOV
		result, logical = op2, true
	case 0xE: // BIC
		result, logical = op1&^op2, true
	case 0xF: // MVN
		result, logical = ^op2, true
	}

	if setFlags {
		if rd == 15 {
			// Mode restore: reload the CPSR from the banked SPSR
			if i.spsr != nil {
				i.SetCpsr(*i.spsr, false)
			}
		} else {
			i.flagSet(bitN, result&(1<<31) != 0)
			i.flagSet(bitZ, result == 0)
			if logical {
				if carryValid {
					i.flagSet(bitC, shiftCarry)
				}
			} else {
				i.flagSet(bitC, carryOut)
				i.flagSet(bitV, overflow)
			}
		}
	}

	if writeBack {
		*i.registers[rd] = result
		if rd == 15 {
			i.FlushPipeline()
			return 3
		}
	}
	return 1
}

func armMul(i *Interpreter, op uint32) int {
	rd := (op >> 16) & 0xF
	rn := (op >> 12) & 0xF
	rs := (op >> 8) & 0xF
	rm := op & 0xF

	result := *i.registers[rm] * *i.registers[rs]
	if op&(1<<21) != 0 { // MLA
		result += *i.registers[rn]
	}
	*i.registers[rd] = result

	if op&(1<<20) != 0 {
		i.flagSet(bitN, result&(1<<31) != 0)
		i.flagSet(bitZ, result == 0)
	}
	return 2
}

func armMulLong(i *Interpreter, op uint32) int {
	rdHi := (op >> 16) & 0xF
	rdLo := (op >> 12) & 0xF
	rs := (op >> 8) & 0xF
	rm := op & 0xF

	var result uint64
	if op&(1<<22) != 0 { // signed
		result = uint64(int64(int32(*i.registers[rm])) * int64(int32(*i.registers[rs])))
	} else {
		result = uint64(*i.registers[rm]) * uint64(*i.registers[rs])
	}
	if op&(1<<21) != 0 { // accumulate
		result += uint64(*i.registers[rdHi])<<32 | uint64(*i.registers[rdLo])
	}
	*i.registers[rdHi] = uint32(result >> 32)
	*i.registers[rdLo] = uint32(result)

	if op&(1<<20) != 0 {
		i.flagSet(bitN, result&(1<<63) != 0)
		i.flagSet(bitZ, result == 0)
	}
	return 3
}

func armClz(i *Interpreter, op uint32) int {
	if i.cpu != ARM9 {
		return unkArm(i, op)
	}
	rd := (op >> 12) & 0xF
	rm := op & 0xF
	*i.registers[rd] = uint32(bits.LeadingZeros32(*i.registers[rm]))
	return 1
}

func armMrs(i *Interpreter, op uint32) int {
	rd := (op >> 12) & 0xF
	if op&(1<<22) != 0 {
		*i.registers[rd] = i.Spsr()
	} else {
		*i.registers[rd] = i.cpsr
	}
	return 1
}

// msrMask builds the byte mask from the MSR field bits, excluding the
// control byte outside privileged modes.
func (i *Interpreter) msrMask(op uint32) uint32 {
	var mask uint32
	for f := uint32(0); f < 4; f++ {
		if op&(1<<(16+f)) != 0 {
			mask |= 0xFF << (f * 8)
		}
	}
	if i.cpsr&0x1F == modeUsr {
		mask &^= 0xFF
	}
	return mask
}

func (i *Interpreter) msr(op, value uint32) int {
	mask := i.msrMask(op)
	if op&(1<<22) != 0 { // SPSR
		if i.spsr != nil {
			*i.spsr = (*i.spsr &^ mask) | (value & mask)
		}
		return 1
	}
	i.SetCpsr((i.cpsr&^mask)|(value&mask), false)
	return 1
}

func armMsrReg(i *Interpreter, op uint32) int {
	return i.msr(op, *i.registers[op&0xF])
}

func armMsrImm(i *Interpreter, op uint32) int {
	rot := (op >> 8) & 0xF * 2
	return i.msr(op, bits.RotateLeft32(op&0xFF, -int(rot)))
}

func armBranch(i *Interpreter, op uint32) int {
	offset := uint32(int32(op<<8)>>8) << 2
	if op&(1<<24) != 0 { // BL
		*i.registers[14] = *i.registers[15] - 4
	}
	*i.registers[15] += offset
	i.FlushPipeline()
	return 3
}

func armBx(i *Interpreter, op uint32) int {
	target := *i.registers[op&0xF]
	i.flagSet(bitT, target&1 != 0)
	*i.registers[15] = target
	i.FlushPipeline()
	return 3
}

func armBlxReg(i *Interpreter, op uint32) int {
	if i.cpu != ARM9 {
		return unkArm(i, op)
	}
	target := *i.registers[op&0xF]
	*i.registers[14] = *i.registers[15] - 4
	i.flagSet(bitT, target&1 != 0)
	*i.registers[15] = target
	i.FlushPipeline()
	return 3
}

// blx handles the BLX-label form, which sits in the reserved condition
// space and takes the halfword offset bit from bit 24. ARM9 only.
func (i *Interpreter) blx(op uint32) int {
	if i.cpu != ARM9 {
		return unkArm(i, op)
	}
	offset := uint32(int32(op<<8)>>8) << 2
	if op&(1<<24) != 0 {
		offset += 2
	}
	*i.registers[14] = *i.registers[15] - 4
	i.cpsr |= bitT
	*i.registers[15] += offset
	i.FlushPipeline()
	return 3
}

// bx branches to the address in a register, switching instruction sets on
// bit 0. Used directly by the DLDI return path.
func (i *Interpreter) bx(r int) int {
	target := *i.registers[r]
	i.flagSet(bitT, target&1 != 0)
	*i.registers[15] = target
	i.FlushPipeline()
	return 3
}

func armSwi(i *Interpreter, op uint32) int {
	return i.Exception(0x08)
}

func armSwp(i *Interpreter, op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	rm := op & 0xF
	addr := *i.registers[rn]

	if op&(1<<22) != 0 { // SWPB
		old := i.mem.Read8(i.cpu, addr)
		i.mem.Write8(i.cpu, addr, uint8(*i.registers[rm]))
		*i.registers[rd] = uint32(old)
	} else {
		old := i.readRotated32(addr)
		i.mem.Write32(i.cpu, addr, *i.registers[rm])
		*i.registers[rd] = old
	}
	return 2
}

// readRotated32 performs the word read with the unaligned-address rotation
// the bus applies.
func (i *Interpreter) readRotated32(addr uint32) uint32 {
	value := i.mem.Read32(i.cpu, addr&^3)
	return bits.RotateLeft32(value, -int(addr&3)*8)
}

func armSingleTransfer(i *Interpreter, op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	load := op&(1<<20) != 0
	byteSize := op&(1<<22) != 0
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	writeBack := op&(1<<21) != 0

	var offset uint32
	if op&(1<<25) != 0 { // register offset, shift by immediate only
		offset, _, _ = i.shiftedReg(op &^ 0x10)
	} else {
		offset = op & 0xFFF
	}

	addr := *i.registers[rn]
	if pre {
		if up {
			addr += offset
		} else {
			addr -= offset
		}
	}

	if load {
		var value uint32
		if byteSize {
			value = uint32(i.mem.Read8(i.cpu, addr))
		} else {
			value = i.readRotated32(addr)
		}
		i.writeBackTransfer(rn, addr, offset, pre, up, writeBack)
		if rd == 15 {
			i.jumpTo(value, true)
			return 3
		}
		*i.registers[rd] = value
		return 1
	}

	value := i.regVal(rd, 4) // stores of R15 see one extra fetch ahead
	if byteSize {
		i.mem.Write8(i.cpu, addr, uint8(value))
	} else {
		i.mem.Write32(i.cpu, addr, value)
	}
	i.writeBackTransfer(rn, addr, offset, pre, up, writeBack)
	return 1
}

func (i *Interpreter) writeBackTransfer(rn, addr, offset uint32, pre, up, writeBack bool) {
	if !pre { // post-indexed always writes back
		if up {
			*i.registers[rn] = addr + offset
		} else {
			*i.registers[rn] = addr - offset
		}
	} else if writeBack {
		*i.registers[rn] = addr
	}
}

func armHalfTransfer(i *Interpreter, op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	load := op&(1<<20) != 0
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	writeBack := op&(1<<21) != 0
	sh := (op >> 5) & 0x3

	var offset uint32
	if op&(1<<22) != 0 { // immediate offset split across the opcode
		offset = (op>>4)&0xF0 | op&0xF
	} else {
		offset = *i.registers[op&0xF]
	}

	addr := *i.registers[rn]
	if pre {
		if up {
			addr += offset
		} else {
			addr -= offset
		}
	}

	cost := 1
	switch {
	case load && sh == 1: // LDRH
		*i.registers[rd] = uint32(i.mem.Read16(i.cpu, addr))
	case load && sh == 2: // LDRSB
		*i.registers[rd] = uint32(int32(int8(i.mem.Read8(i.cpu, addr))))
	case load && sh == 3: // LDRSH
		*i.registers[rd] = uint32(int32(int16(i.mem.Read16(i.cpu, addr))))
	case !load && sh == 1: // STRH
		i.mem.Write16(i.cpu, addr, uint16(*i.registers[rd]))
	case !load && sh == 2: // LDRD, ARM9 only
		if i.cpu != ARM9 {
			return unkArm(i, op)
		}
		*i.registers[rd] = i.mem.Read32(i.cpu, addr)
		*i.registers[(rd+1)&0xF] = i.mem.Read32(i.cpu, addr+4)
		cost = 2
	case !load && sh == 3: // STRD, ARM9 only
		if i.cpu != ARM9 {
			return unkArm(i, op)
		}
		i.mem.Write32(i.cpu, addr, *i.registers[rd])
		i.mem.Write32(i.cpu, addr+4, *i.registers[(rd+1)&0xF])
		cost = 2
	default:
		return unkArm(i, op)
	}

	i.writeBackTransfer(rn, addr, offset, pre, up, writeBack)
	if load && rd == 15 {
		i.FlushPipeline()
		return 3
	}
	return cost
}

func armBlockTransfer(i *Interpreter, op uint32) int {
	rn := (op >> 16) & 0xF
	load := op&(1<<20) != 0
	writeBack := op&(1<<21) != 0
	userBank := op&(1<<22) != 0
	up := op&(1<<23) != 0
	pre := op&(1<<24) != 0
	rlist := op & 0xFFFF

	count := uint32(bits.OnesCount16(uint16(rlist)))
	base := *i.registers[rn]

	// Normalize to an ascending walk from the lowest address
	addr := base
	if !up {
		addr -= count * 4
	}
	finalBase := addr
	if up {
		finalBase = base + count*4
	}
	step := addr
	if pre == up {
		step += 4
	}

	// The S bit selects the user bank, except for an LDM with R15 which
	// restores the CPSR instead
	modeRestore := userBank && load && rlist&(1<<15) != 0
	useUserBank := userBank && !modeRestore

	pcWritten := false
	for r := 0; r < 16; r++ {
		if rlist&(1<<r) == 0 {
			continue
		}
		cell := i.registers[r]
		if useUserBank {
			cell = &i.registersUsr[r]
		}
		if load {
			*cell = i.mem.Read32(i.cpu, step)
			if r == 15 {
				pcWritten = true
			}
		} else {
			value := *cell
			if r == 15 {
				value += 4
			}
			i.mem.Write32(i.cpu, step, value)
		}
		step += 4
	}

	if writeBack && !(load && rlist&(1<<rn) != 0) {
		*i.registers[rn] = finalBase
	}

	if modeRestore && i.spsr != nil {
		i.SetCpsr(*i.spsr, false)
	}
	if pcWritten {
		if !modeRestore && i.cpu == ARM9 {
			i.flagSet(bitT, *i.registers[15]&1 != 0)
		}
		i.FlushPipeline()
		return 3
	}
	return 2
}
