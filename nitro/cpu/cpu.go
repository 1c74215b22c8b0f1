package cpu

import (
	"log/slog"
)

// Which identifies one of the two guest processors.
type Which int

const (
	ARM9 Which = 0
	ARM7 Which = 1
)

func (w Which) String() string {
	if w == ARM9 {
		return "ARM9"
	}
	return "ARM7"
}

// Bus provides typed little-endian access to guest memory. The cpu
// parameter selects the TCM and bus-width path for the access.
type Bus interface {
	Read8(cpu Which, addr uint32) uint8
	Read16(cpu Which, addr uint32) uint16
	Read32(cpu Which, addr uint32) uint32
	Write8(cpu Which, addr uint32, value uint8)
	Write16(cpu Which, addr uint32, value uint16)
	Write32(cpu Which, addr uint32, value uint32)
}

// CP15 exposes the two system-coprocessor values the interpreter consumes.
// Only the ARM9 has one.
type CP15 interface {
	ExceptionAddr() uint32
	DtcmAddr() uint32
}

// Scheduler lets the CPU defer work onto the shared cycle timeline.
type Scheduler interface {
	Schedule(task func(), delay uint64)
	GbaMode() bool
}

// Bios substitutes for guest firmware at exception vectors when HLE is on.
type Bios interface {
	Execute(vector uint8, cpu Which, registers *[16]*uint32) int
	ShouldCheck() bool
	CheckWaitFlags(cpu Which)
}

// Dldi intercepts the guest storage driver at its sentinel addresses.
type Dldi interface {
	IsPatched() bool
	Startup() uint32
	IsInserted() uint32
	ReadSectors(cpu Which, sector, count, buf uint32) uint32
	WriteSectors(cpu Which, sector, count, buf uint32) uint32
	ClearStatus() uint32
	Shutdown() uint32
}

// CPSR bits
const (
	bitT = uint32(1) << 5 // THUMB state
	bitF = uint32(1) << 6 // FIQ disable
	bitI = uint32(1) << 7 // IRQ disable
	bitV = uint32(1) << 28
	bitC = uint32(1) << 29
	bitZ = uint32(1) << 30
	bitN = uint32(1) << 31
)

// CPU modes (CPSR bits 0-4)
const (
	modeUsr = 0x10
	modeFiq = 0x11
	modeIrq = 0x12
	modeSvc = 0x13
	modeAbt = 0x17
	modeUnd = 0x1B
	modeSys = 0x1F
)

// Interpreter holds the state of one guest processor and executes its
// opcodes. Registers R8-R14 are pointer slots into the banked backing
// arrays and rebind on mode change; an opcode always observes stable
// bindings for its whole execution.
type Interpreter struct {
	mem   Bus
	sched Scheduler
	cp15  CP15 // nil on the ARM7
	bios  Bios // nil unless HLE BIOS is active
	dldi  Dldi // nil unless a DLDI driver is hooked up

	cpu Which

	registers    [16]*uint32
	registersUsr [16]uint32
	registersFiq [7]uint32
	registersIrq [2]uint32
	registersSvc [2]uint32
	registersAbt [2]uint32
	registersUnd [2]uint32

	cpsr uint32
	spsr *uint32 // nil in User/System mode
	spsrFiq, spsrIrq, spsrSvc,
	spsrAbt, spsrUnd uint32

	pipeline [2]uint32

	halted  uint8
	cycles  uint64
	ime     uint8
	ie, irf uint32
	postFlg uint8
}

// New returns an interpreter for the given processor. cp15 must be non-nil
// for the ARM9 and nil for the ARM7.
func New(cpu Which, mem Bus, sched Scheduler, cp15 CP15) *Interpreter {
	i := &Interpreter{
		mem:   mem,
		sched: sched,
		cp15:  cp15,
		cpu:   cpu,
	}
	for r := 0; r < 16; r++ {
		i.registers[r] = &i.registersUsr[r]
	}
	return i
}

// SetBios enables HLE BIOS handling at exception vectors.
func (i *Interpreter) SetBios(bios Bios) { i.bios = bios }

// SetDldi hooks up a storage back-end for the DLDI sentinel addresses.
func (i *Interpreter) SetDldi(dldi Dldi) { i.dldi = dldi }

// Init prepares the CPU to cold-boot the BIOS.
func (i *Interpreter) Init() {
	i.SetCpsr(0x000000D3, false) // Supervisor, interrupts off
	if i.cpu == ARM9 {
		i.registersUsr[15] = 0xFFFF0000
	} else {
		i.registersUsr[15] = 0x00000000
	}
	i.FlushPipeline()

	i.ime = 0
	i.ie, i.irf = 0, 0
	i.postFlg = 0
}

// DirectBoot prepares the CPU to directly boot an NDS ROM, skipping the
// BIOS. The entry point comes from the cartridge header copied to RAM.
func (i *Interpreter) DirectBoot() {
	var entryAddr uint32
	if i.cpu == ARM9 {
		entryAddr = i.mem.Read32(ARM9, 0x27FFE24)
		i.registersUsr[13] = 0x03002F7C
		i.registersIrq[0] = 0x03003F80
		i.registersSvc[0] = 0x03003FC0
	} else {
		entryAddr = i.mem.Read32(ARM9, 0x27FFE34)
		i.registersUsr[13] = 0x0380FD80
		i.registersIrq[0] = 0x0380FF80
		i.registersSvc[0] = 0x0380FFC0
	}

	i.SetCpsr(0x000000DF, false) // System, interrupts off
	i.registersUsr[12] = entryAddr
	i.registersUsr[14] = entryAddr
	i.registersUsr[15] = entryAddr
	i.FlushPipeline()
}

// Cycles returns the local cycle counter on the shared timeline.
func (i *Interpreter) Cycles() uint64 { return i.cycles }

// SetCycles moves the local cycle counter; the drive loop owns this.
func (i *Interpreter) SetCycles(cycles uint64) { i.cycles = cycles }

// ResetCycles adjusts the local counter for a global cycle rebase.
func (i *Interpreter) ResetCycles(globalCycles uint64) {
	i.cycles -= min(globalCycles, i.cycles)
}

// IsHalted reports whether opcode execution is suspended.
func (i *Interpreter) IsHalted() bool { return i.halted != 0 }

// Halt sets a halt bit, suspending opcode execution until an interrupt.
func (i *Interpreter) Halt(bit uint) { i.halted |= 1 << bit }

// Unhalt clears a halt bit.
func (i *Interpreter) Unhalt(bit uint) { i.halted &^= 1 << bit }

// RunOpcode executes the opcode at the front of the pipeline and returns
// its cycle cost. It never blocks.
func (i *Interpreter) RunOpcode() int {
	// Push the next opcode through the pipeline
	opcode := i.pipeline[0]
	i.pipeline[0] = i.pipeline[1]

	if i.cpsr&bitT != 0 { // THUMB mode
		// Fill the pipeline, incrementing the program counter
		*i.registers[15] += 2
		i.pipeline[1] = uint32(i.mem.Read16(i.cpu, *i.registers[15]))

		return thumbInstrs[(opcode>>6)&0x3FF](i, opcode)
	}

	// ARM mode; fill the pipeline, incrementing the program counter
	*i.registers[15] += 4
	i.pipeline[1] = i.mem.Read32(i.cpu, *i.registers[15])

	// Evaluate the current opcode's condition
	switch condition[((opcode>>24)&0xF0)|(i.cpsr>>28)] {
	case 0: // False
		return 1
	case 2: // Reserved
		return i.handleReserved(opcode)
	default:
		return armInstrs[((opcode>>16)&0xFF0)|((opcode>>4)&0xF)](i, opcode)
	}
}

// Exception switches to the handler for the given vector offset.
func (i *Interpreter) Exception(vector uint8) int {
	// Forward the call to HLE BIOS if enabled, unless on ARM9 with the
	// exception address changed
	if i.bios != nil && (i.cpu == ARM7 || i.cp15.ExceptionAddr() != 0) {
		return i.bios.Execute(vector, i.cpu, &i.registers)
	}

	// Switch the CPU mode, save the return address, and jump to the vector.
	// The SPSR T bit read below is the pre-switch CPSR's T bit: SetCpsr with
	// save just stored the old CPSR into the newly banked SPSR.
	modes := [8]uint32{modeSvc, modeUnd, modeSvc, modeAbt, modeAbt, modeSvc, modeIrq, modeFiq}
	i.SetCpsr((i.cpsr&^0x3F)|bitI|modes[vector>>2], true) // ARM, interrupts off, new mode
	lrOffset := uint32(0)
	if *i.spsr&bitT != 0 {
		lrOffset = 2
	}
	*i.registers[14] = *i.registers[15] + lrOffset
	if i.cpu == ARM9 {
		*i.registers[15] = i.cp15.ExceptionAddr() + uint32(vector)
	} else {
		*i.registers[15] = uint32(vector)
	}
	i.FlushPipeline()
	return 3
}

// FlushPipeline adjusts the program counter and refills the pipeline
// after a jump.
func (i *Interpreter) FlushPipeline() {
	if i.cpsr&bitT != 0 { // THUMB mode
		*i.registers[15] = (*i.registers[15] &^ 1) + 2
		i.pipeline[0] = uint32(i.mem.Read16(i.cpu, *i.registers[15]-2))
		i.pipeline[1] = uint32(i.mem.Read16(i.cpu, *i.registers[15]))
	} else { // ARM mode
		*i.registers[15] = (*i.registers[15] &^ 3) + 4
		i.pipeline[0] = i.mem.Read32(i.cpu, *i.registers[15]-4)
		i.pipeline[1] = i.mem.Read32(i.cpu, *i.registers[15])
	}
}

// SetCpsr writes the CPSR, rebinding the R8-R14 slots and the SPSR pointer
// when the mode bits change. With save set, the old CPSR is snapshotted
// into the newly selected banked SPSR first.
func (i *Interpreter) SetCpsr(value uint32, save bool) {
	if value&0x1F != i.cpsr&0x1F {
		switch value & 0x1F {
		case modeUsr, modeSys:
			for r := 8; r <= 14; r++ {
				i.registers[r] = &i.registersUsr[r]
			}
			i.spsr = nil

		case modeFiq:
			for r := 8; r <= 14; r++ {
				i.registers[r] = &i.registersFiq[r-8]
			}
			i.spsr = &i.spsrFiq

		case modeIrq:
			for r := 8; r <= 12; r++ {
				i.registers[r] = &i.registersUsr[r]
			}
			i.registers[13] = &i.registersIrq[0]
			i.registers[14] = &i.registersIrq[1]
			i.spsr = &i.spsrIrq

		case modeSvc:
			for r := 8; r <= 12; r++ {
				i.registers[r] = &i.registersUsr[r]
			}
			i.registers[13] = &i.registersSvc[0]
			i.registers[14] = &i.registersSvc[1]
			i.spsr = &i.spsrSvc

		case modeAbt:
			for r := 8; r <= 12; r++ {
				i.registers[r] = &i.registersUsr[r]
			}
			i.registers[13] = &i.registersAbt[0]
			i.registers[14] = &i.registersAbt[1]
			i.spsr = &i.spsrAbt

		case modeUnd:
			for r := 8; r <= 12; r++ {
				i.registers[r] = &i.registersUsr[r]
			}
			i.registers[13] = &i.registersUnd[0]
			i.registers[14] = &i.registersUnd[1]
			i.spsr = &i.spsrUnd

		default:
			slog.Debug("unknown CPU mode", "cpu", i.cpu, "mode", value&0x1F)
		}
	}

	// Set the CPSR, saving the old value if requested
	if save && i.spsr != nil {
		*i.spsr = i.cpsr
	}
	i.cpsr = value

	// Trigger an interrupt if the conditions are met
	if i.ime != 0 && i.ie&i.irf != 0 && i.cpsr&bitI == 0 {
		i.sched.Schedule(i.interrupt, i.interruptDelay())
	}
}

// Cpsr returns the current program status register.
func (i *Interpreter) Cpsr() uint32 { return i.cpsr }

// Spsr returns the banked SPSR for the current mode, or the CPSR when the
// mode has none.
func (i *Interpreter) Spsr() uint32 {
	if i.spsr == nil {
		return i.cpsr
	}
	return *i.spsr
}

// Register reads an architectural register through the current bank.
func (i *Interpreter) Register(r int) uint32 { return *i.registers[r] }

// SetRegister writes an architectural register through the current bank.
func (i *Interpreter) SetRegister(r int, value uint32) { *i.registers[r] = value }
