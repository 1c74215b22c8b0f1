package nitro

// Task is a deferred callable keyed by an absolute cycle stamp.
type Task struct {
	cycles uint64
	run    func()
}

// Schedule inserts a task at globalCycles + delay. Tasks with equal stamps
// keep their insertion order, so a task scheduled by a firing task at the
// same stamp fires in the same batch.
func (c *Core) Schedule(run func(), delay uint64) {
	stamp := c.globalCycles + delay

	// Insertions are rare relative to CPU steps and usually land near the
	// tail, so a backwards walk beats anything fancier
	idx := len(c.tasks)
	for idx > 0 && c.tasks[idx-1].cycles > stamp {
		idx--
	}
	c.tasks = append(c.tasks, Task{})
	copy(c.tasks[idx+1:], c.tasks[idx:])
	c.tasks[idx] = Task{cycles: stamp, run: run}
}

// GbaMode reports whether the core drives a single CPU at GBA timings.
func (c *Core) GbaMode() bool { return c.gbaMode }

// GlobalCycles returns the shared cycle counter.
func (c *Core) GlobalCycles() uint64 { return c.globalCycles }

// RunNdsFrame interleaves both CPUs with the scheduled tasks until a task
// stops the loop (normally the end-of-frame task, or an external Stop).
func (c *Core) RunNdsFrame() {
	arm9, arm7 := c.Arm9, c.Arm7

	for c.running.Swap(true) {
		// Run the CPUs until the next scheduled task
		for len(c.tasks) > 0 && c.tasks[0].cycles > c.globalCycles {
			if !arm9.IsHalted() && c.globalCycles >= arm9.Cycles() {
				arm9.SetCycles(c.globalCycles + uint64(arm9.RunOpcode()))
			}

			// Run the ARM7 at half the speed of the ARM9
			if !arm7.IsHalted() && c.globalCycles >= arm7.Cycles() {
				arm7.SetCycles(c.globalCycles + uint64(arm7.RunOpcode())<<1)
			}

			// Count cycles up to the next soonest event
			next9, next7 := uint64(noWakeup), uint64(noWakeup)
			if !arm9.IsHalted() {
				next9 = arm9.Cycles()
			}
			if !arm7.IsHalted() {
				next7 = arm7.Cycles()
			}
			c.globalCycles = min(next9, next7, c.tasks[0].cycles)
		}

		c.fireDueTasks()
	}
}

// RunGbaFrame is the single-CPU variant of the drive loop.
func (c *Core) RunGbaFrame() {
	arm7 := c.Arm7

	for c.running.Swap(true) {
		// Run the ARM7 until the next scheduled task
		if arm7.Cycles() > c.globalCycles {
			c.globalCycles = arm7.Cycles()
		}
		for len(c.tasks) > 0 && !arm7.IsHalted() && c.tasks[0].cycles > arm7.Cycles() {
			c.globalCycles += uint64(arm7.RunOpcode())
			arm7.SetCycles(c.globalCycles)
		}

		c.fireDueTasks()
	}
}

// fireDueTasks jumps to the next stamp and runs every task due there, in
// order, removing each before the next fires.
func (c *Core) fireDueTasks() {
	if len(c.tasks) == 0 {
		c.running.Store(false)
		return
	}
	c.globalCycles = c.tasks[0].cycles

	for len(c.tasks) > 0 && c.tasks[0].cycles <= c.globalCycles {
		task := c.tasks[0].run
		c.tasks = c.tasks[1:]
		task()
	}
}

// noWakeup stands in for a halted CPU when picking the next wakeup stamp.
const noWakeup = ^uint64(0)

// ResetCycles rebases every counter so the shared timeline stays bounded.
func (c *Core) ResetCycles() {
	for idx := range c.tasks {
		c.tasks[idx].cycles -= c.globalCycles
	}
	c.Arm9.ResetCycles(c.globalCycles)
	c.Arm7.ResetCycles(c.globalCycles)
	c.globalCycles = 0
	c.Schedule(c.ResetCycles, resetCyclesInterval)
}

const resetCyclesInterval = 1 << 30
