package nitro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidane/go-nitro/nitro/cpu"
)

// countProgram is ADD R0, R0, #1 repeated, so R0 counts executed opcodes.
func countProgram(words int) []uint8 {
	program := make([]uint8, words*4)
	for idx := 0; idx < words; idx++ {
		program[idx*4+0] = 0x01
		program[idx*4+1] = 0x00
		program[idx*4+2] = 0x80
		program[idx*4+3] = 0xE2
	}
	return program
}

// newTestCore boots a dual-CPU core with both CPUs counting opcodes in R0.
func newTestCore(t *testing.T) *Core {
	t.Helper()
	c := NewCore(false)

	c.Memory.LoadMainRAM(0x000000, countProgram(1024))
	c.Memory.LoadMainRAM(0x010000, countProgram(1024))
	c.Memory.Write32(cpu.ARM9, 0x27FFE24, 0x02000000)
	c.Memory.Write32(cpu.ARM9, 0x27FFE34, 0x02010000)
	c.DirectBoot()
	return c
}

func TestSchedule(t *testing.T) {
	t.Run("tasks fire in stamp order", func(t *testing.T) {
		c := NewCore(false)
		c.tasks = nil
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		var order []string
		c.Schedule(func() { order = append(order, "late") }, 50)
		c.Schedule(func() { order = append(order, "early") }, 10)
		c.Schedule(func() { c.Stop() }, 60)
		c.RunNdsFrame()

		assert.Equal(t, []string{"early", "late"}, order)
	})

	t.Run("equal stamps keep insertion order", func(t *testing.T) {
		c := NewCore(false)
		c.tasks = nil
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		var order []string
		c.Schedule(func() { order = append(order, "a") }, 10)
		c.Schedule(func() { order = append(order, "b") }, 10)
		c.Schedule(func() { order = append(order, "c") }, 10)
		c.Schedule(func() { c.Stop() }, 20)
		c.RunNdsFrame()

		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("a task scheduled at the same stamp fires in the same batch", func(t *testing.T) {
		c := NewCore(false)
		c.tasks = nil
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		var order []string
		c.Schedule(func() {
			order = append(order, "parent")
			c.Schedule(func() { order = append(order, "child") }, 0)
		}, 10)
		c.Schedule(func() { c.Stop() }, 10)
		c.RunNdsFrame()

		assert.Equal(t, []string{"parent", "child"}, order)
	})

	t.Run("fast-forwards when both CPUs are halted", func(t *testing.T) {
		c := NewCore(false)
		c.tasks = nil
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		c.Schedule(func() { c.Stop() }, 500)
		c.RunNdsFrame()

		assert.Equal(t, uint64(500), c.GlobalCycles())
	})
}

func TestNdsDrivePacing(t *testing.T) {
	t.Run("ARM7 runs at half the ARM9 rate", func(t *testing.T) {
		c := newTestCore(t)
		c.tasks = nil
		c.Schedule(c.Stop, 100)

		c.RunNdsFrame()

		assert.Equal(t, uint32(100), c.Arm9.Register(0))
		assert.Equal(t, uint32(50), c.Arm7.Register(0))
	})

	t.Run("global cycles never pass a runnable CPU", func(t *testing.T) {
		c := newTestCore(t)
		c.tasks = nil
		c.Schedule(c.Stop, 100)

		c.RunNdsFrame()

		assert.LessOrEqual(t, c.GlobalCycles(), c.Arm9.Cycles())
		assert.LessOrEqual(t, c.GlobalCycles(), c.Arm7.Cycles())
	})

	t.Run("a halted ARM9 leaves the ARM7 running", func(t *testing.T) {
		c := newTestCore(t)
		c.tasks = nil
		c.Arm9.Halt(0)
		c.Schedule(c.Stop, 100)

		c.RunNdsFrame()

		assert.Zero(t, c.Arm9.Register(0))
		assert.Equal(t, uint32(50), c.Arm7.Register(0))
	})
}

func TestGbaDrive(t *testing.T) {
	c := NewCore(true)
	c.Memory.LoadMainRAM(0x000000, countProgram(1024))
	c.Memory.Write32(cpu.ARM9, 0x27FFE34, 0x02000000)
	c.Arm7.DirectBoot()

	c.tasks = nil
	c.Schedule(c.Stop, 100)
	c.RunGbaFrame()

	// No halving in GBA mode
	assert.Equal(t, uint32(100), c.Arm7.Register(0))
	assert.Equal(t, uint64(100), c.GlobalCycles())
}

func TestFrame(t *testing.T) {
	t.Run("one frame advances a full line count", func(t *testing.T) {
		c := NewCore(false)
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		c.RunNdsFrame()

		assert.Equal(t, uint64(cyclesPerLine*linesPerFrame), c.GlobalCycles())
		assert.Zero(t, c.line, "line counter wrapped")
	})

	t.Run("vblank raises interrupt bit 0 on both CPUs", func(t *testing.T) {
		c := NewCore(false)
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		c.RunNdsFrame()

		assert.NotZero(t, c.Arm9.Irf()&1)
		assert.NotZero(t, c.Arm7.Irf()&1)
	})

	t.Run("framebuffer is fully populated", func(t *testing.T) {
		c := NewCore(false)
		c.Arm9.Halt(0)
		c.Arm7.Halt(0)

		c.RunNdsFrame()

		cells := c.GpuA.Framebuffer().ToSlice()
		require.Len(t, cells, 256*192)
		for idx, cell := range cells {
			require.NotZerof(t, cell&0x8000, "cell %d lacks the opacity bit", idx)
		}
	})

	t.Run("an external stop exits the loop early", func(t *testing.T) {
		c := newTestCore(t)
		c.Stop()
		c.RunNdsFrame()

		assert.Zero(t, c.Arm9.Register(0), "no opcode ran after stop")
	})
}

func TestResetCyclesRebase(t *testing.T) {
	c := NewCore(false)
	c.tasks = nil
	c.globalCycles = 1000
	c.Arm9.SetCycles(1000)
	c.Arm7.SetCycles(1002)
	c.Schedule(func() {}, 500) // stamp 1500

	c.ResetCycles()

	assert.Equal(t, uint64(0), c.globalCycles)
	assert.Equal(t, uint64(0), c.Arm9.Cycles())
	assert.Equal(t, uint64(2), c.Arm7.Cycles())
	require.NotEmpty(t, c.tasks)
	assert.Equal(t, uint64(500), c.tasks[0].cycles)
}

func BenchmarkRunNdsFrame(b *testing.B) {
	c := NewCore(false)
	c.Memory.LoadMainRAM(0x000000, countProgram(4096))
	c.Memory.LoadMainRAM(0x010000, countProgram(4096))
	c.Memory.Write32(cpu.ARM9, 0x27FFE24, 0x02000000)
	c.Memory.Write32(cpu.ARM9, 0x27FFE34, 0x02010000)
	c.DirectBoot()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Resume()
		c.RunNdsFrame()
	}
}
