package nitro

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/oxidane/go-nitro/nitro/bit"
	"github.com/oxidane/go-nitro/nitro/video"
)

// Emulator is the entry point for running the emulation.
type Emulator struct {
	core *Core
}

// New creates an emulator with empty memory and boots it, mostly useful
// for tests.
func New(gbaMode bool) *Emulator {
	e := &Emulator{core: NewCore(gbaMode)}
	e.core.Boot()
	return e
}

// NewWithFile creates an emulator and loads the ROM at path into it. With
// directBoot set the BIOS is skipped and execution starts at the
// cartridge entry points.
func NewWithFile(path string, gbaMode, directBoot bool) (*Emulator, error) {
	rom, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading ROM: %w", err)
	}
	slog.Info("loaded ROM", "path", path, "bytes", len(rom))

	e := &Emulator{core: NewCore(gbaMode)}
	if directBoot && !gbaMode {
		if err := e.loadDirect(rom); err != nil {
			return nil, err
		}
		e.core.DirectBoot()
	} else {
		e.core.Boot()
	}
	return e, nil
}

// loadDirect places the cartridge header and both CPU binaries in main
// RAM the way the firmware's loader would.
func (e *Emulator) loadDirect(rom []byte) error {
	if len(rom) < 0x170 {
		return fmt.Errorf("ROM too small for a header: %d bytes", len(rom))
	}

	// Header copy; the entry points at 0x27FFE24/0x27FFE34 come from here
	e.core.Memory.LoadMainRAM(0x3FFE00, rom[:0x170])

	type binary struct{ romOffset, entry, ramAddr, size uint32 }
	read32 := func(off uint32) uint32 {
		return bit.Combine32(rom[off+3], rom[off+2], rom[off+1], rom[off])
	}
	for _, header := range []uint32{0x20, 0x30} {
		bin := binary{read32(header), read32(header + 4), read32(header + 8), read32(header + 12)}
		if bin.size == 0 {
			continue
		}
		if uint64(bin.romOffset)+uint64(bin.size) > uint64(len(rom)) {
			return fmt.Errorf("binary at 0x%X exceeds ROM size", bin.romOffset)
		}
		e.core.Memory.LoadMainRAM(bin.ramAddr&0x3FFFFF, rom[bin.romOffset:bin.romOffset+bin.size])
	}
	return nil
}

// RunFrame drives the core for one frame.
func (e *Emulator) RunFrame() {
	e.core.RunFrame()
}

// Frame returns the main-screen framebuffer.
func (e *Emulator) Frame() *video.FrameBuffer {
	return e.core.GpuA.Framebuffer()
}

// SubFrame returns the sub-screen framebuffer.
func (e *Emulator) SubFrame() *video.FrameBuffer {
	return e.core.GpuB.Framebuffer()
}

// Core exposes the underlying core for debugging and tests.
func (e *Emulator) Core() *Core {
	return e.core
}

// Stop makes the current frame drive exit at its next check.
func (e *Emulator) Stop() {
	e.core.Stop()
}
