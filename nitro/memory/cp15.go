package memory

// CP15 models the slice of the ARM9 system coprocessor the rest of the
// core consumes: the exception vector base and the DTCM base.
type CP15 struct {
	exceptionAddr uint32
	dtcmAddr      uint32
}

// NewCP15 returns a CP15 with the post-boot defaults: high exception
// vectors and the DTCM at 0x027C0000, below the cartridge header copy at
// 0x027FFE00.
func NewCP15() *CP15 {
	return &CP15{
		exceptionAddr: 0xFFFF0000,
		dtcmAddr:      0x027C0000,
	}
}

// ExceptionAddr returns the base address of the exception vector table.
func (c *CP15) ExceptionAddr() uint32 { return c.exceptionAddr }

// DtcmAddr returns the data TCM base address.
func (c *CP15) DtcmAddr() uint32 { return c.dtcmAddr }

// SetExceptionAddr moves the exception vector base (control register
// high-vectors bit).
func (c *CP15) SetExceptionAddr(addr uint32) { c.exceptionAddr = addr }

// SetDtcmAddr moves the data TCM base.
func (c *CP15) SetDtcmAddr(addr uint32) { c.dtcmAddr = addr }
