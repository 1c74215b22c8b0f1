package memory

import (
	"github.com/oxidane/go-nitro/nitro/bit"
	"github.com/oxidane/go-nitro/nitro/cpu"
	"github.com/oxidane/go-nitro/nitro/video"
)

// Region sizes. VRAM is kept as one flat window covering the whole
// 0x6000000 block rather than the hardware's bankable blocks, so the BG,
// OBJ and LCDC regions of both engines stay distinct; bank mapping is
// not modeled here.
const (
	mainRAMSize = 4 << 20
	wramSize    = 64 << 10
	biosSize    = 64 << 10
	paletteSize = 2 << 10
	vramSize    = 16 << 20
	oamSize     = 2 << 10
	dtcmSize    = 16 << 10
)

// IO register offsets within the 0x04000000 block.
const (
	regEngineA      = 0x0000
	regEngineB      = 0x1000
	regEngineSize   = 0x70
	regIme          = 0x208
	regIe           = 0x210
	regIrf          = 0x214
	regPostFlg      = 0x300
	regHaltCnt      = 0x301
	regMasterBright = 0x6C
)

// Bus is the guest physical memory map shared by both CPUs and the 2D
// engines. All access happens on the emulation thread, so there is no
// locking.
type Bus struct {
	cp15 *CP15

	bios9   []uint8
	bios7   []uint8
	mainRAM []uint8
	wram    []uint8
	dtcm    []uint8
	palette []uint8
	vram    []uint8
	oam     []uint8

	arm9, arm7 *cpu.Interpreter
	gpuA, gpuB *video.Engine2D
}

// NewBus allocates the guest memory regions.
func NewBus(cp15 *CP15) *Bus {
	return &Bus{
		cp15:    cp15,
		bios9:   make([]uint8, biosSize),
		bios7:   make([]uint8, biosSize),
		mainRAM: make([]uint8, mainRAMSize),
		wram:    make([]uint8, wramSize),
		dtcm:    make([]uint8, dtcmSize),
		palette: make([]uint8, paletteSize),
		vram:    make([]uint8, vramSize),
		oam:     make([]uint8, oamSize),
	}
}

// AttachCpus hooks up the interrupt register file of each CPU so the IO
// block can reach them.
func (b *Bus) AttachCpus(arm9, arm7 *cpu.Interpreter) {
	b.arm9, b.arm7 = arm9, arm7
}

// AttachGpus hooks up the 2D engines so the IO block can reach their
// registers.
func (b *Bus) AttachGpus(gpuA, gpuB *video.Engine2D) {
	b.gpuA, b.gpuB = gpuA, gpuB
}

// LoadBios9 copies a BIOS image into the ARM9 BIOS region.
func (b *Bus) LoadBios9(data []uint8) { copy(b.bios9, data) }

// LoadBios7 copies a BIOS image into the ARM7 BIOS region.
func (b *Bus) LoadBios7(data []uint8) { copy(b.bios7, data) }

// LoadMainRAM copies data into main RAM at the given offset; used by the
// loader to place the cartridge header and binaries for a direct boot.
func (b *Bus) LoadMainRAM(offset uint32, data []uint8) {
	copy(b.mainRAM[offset&(mainRAMSize-1):], data)
}

// Palette returns the full palette RAM.
func (b *Bus) Palette() []uint8 { return b.palette }

// Oam returns the full object attribute memory.
func (b *Bus) Oam() []uint8 { return b.oam }

// VramRead8 reads a byte through the flat VRAM window.
func (b *Bus) VramRead8(addr uint32) uint8 {
	return b.vram[addr&(vramSize-1)]
}

// VramRead16 reads a halfword through the flat VRAM window.
func (b *Bus) VramRead16(addr uint32) uint16 {
	idx := addr & (vramSize - 1) &^ 1
	return bit.Combine16(b.vram[idx+1], b.vram[idx])
}

func (b *Bus) cpuFor(c cpu.Which) *cpu.Interpreter {
	if c == cpu.ARM9 {
		return b.arm9
	}
	return b.arm7
}

// Read8 performs a typed byte read for the given CPU. The ARM9's data
// TCM shadows whatever region CP15 maps it over.
func (b *Bus) Read8(c cpu.Which, addr uint32) uint8 {
	if c == cpu.ARM9 && addr-b.cp15.DtcmAddr() < dtcmSize {
		return b.dtcm[addr-b.cp15.DtcmAddr()]
	}
	switch addr >> 24 {
	case 0x00:
		if c == cpu.ARM7 && addr < biosSize {
			return b.bios7[addr]
		}
	case 0x02:
		return b.mainRAM[addr&(mainRAMSize-1)]
	case 0x03:
		return b.wram[addr&(wramSize-1)]
	case 0x04:
		return b.ioRead8(c, addr&0xFFFFFF)
	case 0x05:
		return b.palette[addr&(paletteSize-1)]
	case 0x06:
		return b.vram[addr&(vramSize-1)]
	case 0x07:
		return b.oam[addr&(oamSize-1)]
	case 0xFF:
		if c == cpu.ARM9 && addr >= 0xFFFF0000 {
			return b.bios9[addr&(biosSize-1)]
		}
	}
	return 0
}

// Read16 performs a typed little-endian halfword read.
func (b *Bus) Read16(c cpu.Which, addr uint32) uint16 {
	addr &^= 1
	return uint16(b.Read8(c, addr)) | uint16(b.Read8(c, addr+1))<<8
}

// Read32 performs a typed little-endian word read.
func (b *Bus) Read32(c cpu.Which, addr uint32) uint32 {
	addr &^= 3
	return uint32(b.Read16(c, addr)) | uint32(b.Read16(c, addr+2))<<16
}

// Write8 performs a typed byte write for the given CPU.
func (b *Bus) Write8(c cpu.Which, addr uint32, value uint8) {
	if c == cpu.ARM9 && addr-b.cp15.DtcmAddr() < dtcmSize {
		b.dtcm[addr-b.cp15.DtcmAddr()] = value
		return
	}
	switch addr >> 24 {
	case 0x02:
		b.mainRAM[addr&(mainRAMSize-1)] = value
	case 0x03:
		b.wram[addr&(wramSize-1)] = value
	case 0x04:
		b.ioWrite8(c, addr&0xFFFFFF, value)
	case 0x05:
		b.palette[addr&(paletteSize-1)] = value
	case 0x06:
		b.vram[addr&(vramSize-1)] = value
	case 0x07:
		b.oam[addr&(oamSize-1)] = value
	}
}

// Write16 performs a typed little-endian halfword write.
func (b *Bus) Write16(c cpu.Which, addr uint32, value uint16) {
	addr &^= 1
	b.Write8(c, addr, uint8(value))
	b.Write8(c, addr+1, uint8(value>>8))
}

// Write32 performs a typed little-endian word write.
func (b *Bus) Write32(c cpu.Which, addr uint32, value uint32) {
	addr &^= 3
	b.Write16(c, addr, uint16(value))
	b.Write16(c, addr+2, uint16(value>>16))
}

func (b *Bus) ioRead8(c cpu.Which, off uint32) uint8 {
	// The 2D engines are on the ARM9's side of the bus
	if c == cpu.ARM9 {
		switch {
		case off < regEngineA+regEngineSize:
			return b.engineRead8(b.gpuA, off-regEngineA)
		case off >= regEngineB && off < regEngineB+regEngineSize:
			return b.engineRead8(b.gpuB, off-regEngineB)
		}
	}

	i := b.cpuFor(c)
	switch off {
	case regIme:
		return i.Ime()
	case regIme + 1, regIme + 2, regIme + 3:
		return 0
	case regIe, regIe + 1, regIe + 2, regIe + 3:
		return bit.Byte(i.Ie(), uint(off-regIe))
	case regIrf, regIrf + 1, regIrf + 2, regIrf + 3:
		return bit.Byte(i.Irf(), uint(off-regIrf))
	case regPostFlg:
		return i.PostFlg()
	}
	return 0
}

func (b *Bus) ioWrite8(c cpu.Which, off uint32, value uint8) {
	if c == cpu.ARM9 {
		switch {
		case off < regEngineA+regEngineSize:
			b.engineWrite8(b.gpuA, off-regEngineA, value)
			return
		case off >= regEngineB && off < regEngineB+regEngineSize:
			b.engineWrite8(b.gpuB, off-regEngineB, value)
			return
		}
	}

	i := b.cpuFor(c)
	switch off {
	case regIme:
		i.WriteIme(value)
	case regIe, regIe + 1, regIe + 2, regIe + 3:
		shift := (off - regIe) * 8
		i.WriteIe(0xFF<<shift, uint32(value)<<shift)
	case regIrf, regIrf + 1, regIrf + 2, regIrf + 3:
		shift := (off - regIrf) * 8
		i.WriteIrf(0xFF<<shift, uint32(value)<<shift)
	case regPostFlg:
		i.WritePostFlg(value)
	case regHaltCnt:
		// ARM7 halt control; 0x80 in the top bits requests a halt
		if c == cpu.ARM7 && value&0xC0 == 0x80 {
			i.Halt(0)
		}
	}
}

// engineRead8 returns the indexed byte of a readable 2D engine register.
func (b *Bus) engineRead8(e *video.Engine2D, off uint32) uint8 {
	switch {
	case off < 0x04:
		return e.ReadDispCnt(uint(off))
	case off >= 0x08 && off < 0x10:
		return e.ReadBgCnt(int(off-0x08)/2, uint(off-0x08)%2)
	}
	return 0
}

// engineWrite8 patches the indexed byte of a 2D engine register.
func (b *Bus) engineWrite8(e *video.Engine2D, off uint32, value uint8) {
	switch {
	case off < 0x04:
		e.WriteDispCnt(uint(off), value)

	case off >= 0x08 && off < 0x10:
		e.WriteBgCnt(int(off-0x08)/2, uint(off-0x08)%2, value)

	case off >= 0x10 && off < 0x20:
		bg := int(off-0x10) / 4
		lane := uint(off-0x10) % 4
		if lane < 2 {
			e.WriteBgHOfs(bg, lane, value)
		} else {
			e.WriteBgVOfs(bg, lane-2, value)
		}

	case off >= 0x20 && off < 0x40:
		// Affine parameter block: PA/PB/PC/PD then the 32-bit reference
		// point, once per affine-capable background
		bg := 2 + int(off-0x20)/0x10
		rel := off & 0xF
		lane := uint(off) % 2
		if off&0x8 == 0 {
			switch rel >> 1 {
			case 0:
				e.WriteBgPA(bg, lane, value)
			case 1:
				e.WriteBgPB(bg, lane, value)
			case 2:
				e.WriteBgPC(bg, lane, value)
			case 3:
				e.WriteBgPD(bg, lane, value)
			}
		} else if off&0x4 == 0 {
			e.WriteBgX(bg, uint(off)%4, value)
		} else {
			e.WriteBgY(bg, uint(off)%4, value)
		}

	case off == regMasterBright || off == regMasterBright+1:
		e.WriteMasterBright(uint(off-regMasterBright), value)
	}
}
