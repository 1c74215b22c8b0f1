package nitro

import (
	"sync/atomic"

	"github.com/oxidane/go-nitro/nitro/cpu"
	"github.com/oxidane/go-nitro/nitro/memory"
	"github.com/oxidane/go-nitro/nitro/video"
)

// Frame timing: 355 dots per line at 6 ARM9 cycles each, 263 lines per
// frame, 192 of them visible.
const (
	cyclesPerLine = 355 * 6
	visibleLines  = 192
	linesPerFrame = 263
)

// Core owns the shared cycle timeline and everything attached to it: both
// CPUs, the memory bus, the 2D engines, and the task list.
type Core struct {
	Memory *memory.Bus
	Cp15   *memory.CP15
	Arm9   *cpu.Interpreter
	Arm7   *cpu.Interpreter
	GpuA   *video.Engine2D
	GpuB   *video.Engine2D

	gbaMode      bool
	globalCycles uint64
	tasks        []Task
	running      atomic.Bool

	line int
}

// NewCore wires up a core in NDS or GBA mode. The returned core is cold:
// call Boot or DirectBoot before driving frames.
func NewCore(gbaMode bool) *Core {
	c := &Core{gbaMode: gbaMode}

	c.Cp15 = memory.NewCP15()
	c.Memory = memory.NewBus(c.Cp15)
	c.Arm9 = cpu.New(cpu.ARM9, c.Memory, c, c.Cp15)
	c.Arm7 = cpu.New(cpu.ARM7, c.Memory, c, nil)
	c.Memory.AttachCpus(c.Arm9, c.Arm7)

	c.GpuA = video.NewEngine2D(true, c.Memory)
	c.GpuB = video.NewEngine2D(false, c.Memory)
	c.Memory.AttachGpus(c.GpuA, c.GpuB)

	c.Schedule(c.endOfLine, cyclesPerLine)
	c.Schedule(c.ResetCycles, resetCyclesInterval)
	c.running.Store(true)
	return c
}

// Boot cold-boots both CPUs into the BIOS.
func (c *Core) Boot() {
	c.Arm9.Init()
	c.Arm7.Init()
}

// DirectBoot skips the BIOS and jumps straight to the cartridge entry
// points from the header copied into RAM.
func (c *Core) DirectBoot() {
	c.Arm9.DirectBoot()
	c.Arm7.DirectBoot()
}

// Stop makes the drive loop exit at its next top-of-loop check. Pending
// tasks stay queued; registers are left in a state fit for capture.
func (c *Core) Stop() {
	c.running.Store(false)
}

// Resume re-arms the drive loop after a Stop.
func (c *Core) Resume() {
	c.running.Store(true)
}

// endOfLine is the recurring per-scanline task: render the visible lines,
// raise vblank, and end the frame on wraparound.
func (c *Core) endOfLine() {
	if c.line < visibleLines {
		c.GpuA.DrawScanline(c.line)
		if !c.gbaMode {
			c.GpuB.DrawScanline(c.line)
		}
	}

	c.line++
	switch c.line {
	case visibleLines:
		// Entering vblank
		if !c.gbaMode {
			c.Arm9.SendInterrupt(0)
		}
		c.Arm7.SendInterrupt(0)
	case linesPerFrame:
		c.line = 0
		c.running.Store(false) // frame complete; the outer loop resumes us
	}

	c.Schedule(c.endOfLine, cyclesPerLine)
}

// RunFrame drives the core for one frame in the configured mode.
func (c *Core) RunFrame() {
	c.Resume()
	if c.gbaMode {
		c.RunGbaFrame()
	} else {
		c.RunNdsFrame()
	}
}
