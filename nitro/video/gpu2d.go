package video

// Memory is the slice of the guest bus the 2D engines compose from.
type Memory interface {
	Palette() []uint8
	Oam() []uint8
	VramRead8(addr uint32) uint8
	VramRead16(addr uint32) uint16
}

const opaque = uint16(1) << 15

// Engine2D composes one scanline at a time from up to four backgrounds
// and the object layer into a 256x192 RGB5 framebuffer. Engine A drives
// the main screen, engine B the sub screen.
type Engine2D struct {
	engineA bool
	mem     Memory

	fb      *FrameBuffer
	layers  [5][]uint16 // bg0-bg3 and the object layer
	objPrio []uint8

	dispCnt      uint32
	bgCnt        [4]uint16
	bgHOfs       [4]uint16
	bgVOfs       [4]uint16
	masterBright uint16

	// Affine state for bg2/bg3: parameters, reference points, and the
	// internal counters that step once per line
	bgPA, bgPB, bgPC, bgPD [2]int16
	bgX, bgY               [2]int32
	intX, intY             [2]int32

	palBase     uint32
	oamBase     uint32
	bgVramAddr  uint32
	objVramAddr uint32
	extPalettes [5][]uint8
}

// NewEngine2D creates one of the two 2D engines.
func NewEngine2D(engineA bool, mem Memory) *Engine2D {
	e := &Engine2D{
		engineA: engineA,
		mem:     mem,
		fb:      NewFrameBuffer(),
		objPrio: make([]uint8, FramebufferWidth*FramebufferHeight),
	}
	for idx := range e.layers {
		e.layers[idx] = make([]uint16, FramebufferWidth*FramebufferHeight)
	}
	if engineA {
		e.bgVramAddr = 0x6000000
		e.objVramAddr = 0x6400000
	} else {
		e.palBase = 0x400
		e.oamBase = 0x400
		e.bgVramAddr = 0x6200000
		e.objVramAddr = 0x6600000
	}
	return e
}

// Framebuffer returns a borrowed view of the engine's output cells.
func (e *Engine2D) Framebuffer() *FrameBuffer { return e.fb }

// SetExtPalette binds one of the five extended palette slots (four
// background slots plus the object slot).
func (e *Engine2D) SetExtPalette(slot int, data []uint8) {
	e.extPalettes[slot] = data
}

func (e *Engine2D) ReadDispCnt(byte uint) uint8 {
	return uint8(e.dispCnt >> (byte * 8))
}

func (e *Engine2D) ReadBgCnt(bg int, byte uint) uint8 {
	return uint8(e.bgCnt[bg] >> (byte * 8))
}

func (e *Engine2D) WriteDispCnt(byte uint, value uint8) {
	shift := byte * 8
	mask := uint32(0xFFFFFFFF)
	if !e.engineA {
		// Engine B has no 3D, large bitmaps or alternate display modes
		mask = 0xC0B1FFF7
	}
	mask &= 0xFF << shift
	e.dispCnt = (e.dispCnt &^ mask) | (uint32(value) << shift & mask)
}

func (e *Engine2D) WriteBgCnt(bg int, byte uint, value uint8) {
	shift := byte * 8
	e.bgCnt[bg] = e.bgCnt[bg]&^(0xFF<<shift) | uint16(value)<<shift
}

func (e *Engine2D) WriteBgHOfs(bg int, byte uint, value uint8) {
	shift := byte * 8
	e.bgHOfs[bg] = (e.bgHOfs[bg]&^(0xFF<<shift) | uint16(value)<<shift) & 0x1FF
}

func (e *Engine2D) WriteBgVOfs(bg int, byte uint, value uint8) {
	shift := byte * 8
	e.bgVOfs[bg] = (e.bgVOfs[bg]&^(0xFF<<shift) | uint16(value)<<shift) & 0x1FF
}

func (e *Engine2D) WriteBgPA(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	e.bgPA[i] = int16(uint16(e.bgPA[i])&^(0xFF<<shift) | uint16(value)<<shift)
}

func (e *Engine2D) WriteBgPB(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	e.bgPB[i] = int16(uint16(e.bgPB[i])&^(0xFF<<shift) | uint16(value)<<shift)
}

func (e *Engine2D) WriteBgPC(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	e.bgPC[i] = int16(uint16(e.bgPC[i])&^(0xFF<<shift) | uint16(value)<<shift)
}

func (e *Engine2D) WriteBgPD(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	e.bgPD[i] = int16(uint16(e.bgPD[i])&^(0xFF<<shift) | uint16(value)<<shift)
}

// WriteBgX patches one byte of an affine reference point. The value is a
// 28-bit signed 20.8 fixed-point number and reloads the internal counter.
func (e *Engine2D) WriteBgX(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	v := uint32(e.bgX[i])&^(0xFF<<shift) | uint32(value)<<shift
	e.bgX[i] = int32(v<<4) >> 4
	e.intX[i] = e.bgX[i]
}

// WriteBgY is the vertical counterpart of WriteBgX.
func (e *Engine2D) WriteBgY(bg int, byte uint, value uint8) {
	shift := byte * 8
	i := bg - 2
	v := uint32(e.bgY[i])&^(0xFF<<shift) | uint32(value)<<shift
	e.bgY[i] = int32(v<<4) >> 4
	e.intY[i] = e.bgY[i]
}

func (e *Engine2D) WriteMasterBright(byte uint, value uint8) {
	shift := byte * 8
	e.masterBright = e.masterBright&^(0xFF<<shift) | uint16(value)<<shift
}

// readPalette returns an RGB5 color from this engine's half of standard
// palette RAM.
func (e *Engine2D) readPalette(index uint32) uint16 {
	pal := e.mem.Palette()
	off := e.palBase + index*2
	return uint16(pal[off]) | uint16(pal[off+1])<<8
}

// readExtPalette returns an RGB5 color from a bound extended palette
// slot, or zero (black) when the slot is unbound or too short; callers
// still mark the pixel opaque, so it covers the backdrop.
func (e *Engine2D) readExtPalette(slot int, index uint32) uint16 {
	data := e.extPalettes[slot]
	if data == nil || int(index*2+1) >= len(data) {
		return 0
	}
	return uint16(data[index*2]) | uint16(data[index*2+1])<<8
}

// bgType returns the background type for one layer under the current
// mode bits: 0 text, 1 affine, 2 extended, 3 unused.
func (e *Engine2D) bgType(bg int) int {
	mode := e.dispCnt & 0x7
	types := [6][4]int{
		{0, 0, 0, 0}, // mode 0
		{0, 0, 0, 1}, // mode 1
		{0, 0, 1, 1}, // mode 2
		{0, 0, 0, 2}, // mode 3
		{0, 0, 1, 2}, // mode 4
		{0, 0, 2, 2}, // mode 5
	}
	if mode > 5 {
		return 3
	}
	return types[mode][bg]
}

// DrawScanline renders one output line into the framebuffer.
func (e *Engine2D) DrawScanline(line int) {
	if line == 0 {
		e.intX[0], e.intY[0] = e.bgX[0], e.bgY[0]
		e.intX[1], e.intY[1] = e.bgX[1], e.bgY[1]
	}

	off := line * FramebufferWidth
	for idx := range e.layers {
		clear(e.layers[idx][off : off+FramebufferWidth])
	}
	clearPrio(e.objPrio[off : off+FramebufferWidth])

	switch (e.dispCnt >> 16) & e.displayModeMask() {
	case 1: // layer composition
		for bg := 0; bg < 4; bg++ {
			if e.dispCnt&(1<<(8+bg)) == 0 {
				continue
			}
			switch e.bgType(bg) {
			case 0:
				e.drawText(bg, line)
			case 1:
				e.drawAffine(bg, line)
			case 2:
				e.drawExtended(bg, line)
			}
		}
		if e.dispCnt&(1<<12) != 0 {
			e.drawObjects(line)
		}
		e.compose(line)

	case 2: // VRAM display, engine A only
		for x := 0; x < FramebufferWidth; x++ {
			color := e.mem.VramRead16(0x6800000 + uint32(off+x)*2)
			e.fb.buffer[off+x] = color | opaque
		}

	default: // display off renders white
		for x := 0; x < FramebufferWidth; x++ {
			e.fb.buffer[off+x] = 0x7FFF | opaque
		}
	}

	// Step the affine counters for the next line
	e.intX[0] += int32(e.bgPB[0])
	e.intY[0] += int32(e.bgPD[0])
	e.intX[1] += int32(e.bgPB[1])
	e.intY[1] += int32(e.bgPD[1])
}

func (e *Engine2D) displayModeMask() uint32 {
	if e.engineA {
		return 0x3
	}
	return 0x1
}

func clearPrio(prio []uint8) {
	for idx := range prio {
		prio[idx] = 4
	}
}

// charBase returns the tile data base for a background, including engine
// A's character base block from DISPCNT.
func (e *Engine2D) charBase(bg int) uint32 {
	base := uint32(e.bgCnt[bg]>>2&0xF) * 0x4000
	if e.engineA {
		base += (e.dispCnt >> 24 & 0x7) * 0x10000
	}
	return e.bgVramAddr + base
}

// screenBase returns the tile map base for a background, including engine
// A's screen base block from DISPCNT.
func (e *Engine2D) screenBase(bg int) uint32 {
	base := uint32(e.bgCnt[bg]>>8&0x1F) * 0x800
	if e.engineA {
		base += (e.dispCnt >> 27 & 0x7) * 0x10000
	}
	return e.bgVramAddr + base
}

// drawText renders one line of a scrolling tile background.
func (e *Engine2D) drawText(bg, line int) {
	cnt := e.bgCnt[bg]
	layer := e.layers[bg][line*FramebufferWidth:]
	charBase := e.charBase(bg)
	screenBase := e.screenBase(bg)

	wide := cnt&(1<<14) != 0
	tall := cnt&(1<<15) != 0
	color8 := cnt&(1<<7) != 0

	y := line + int(e.bgVOfs[bg])
	if tall {
		y &= 0x1FF
	} else {
		y &= 0xFF
	}
	// The second vertical map block sits after the horizontal one(s)
	if y >= 256 {
		if wide {
			screenBase += 0x1000
		} else {
			screenBase += 0x800
		}
		y &= 0xFF
	}

	for x := 0; x < FramebufferWidth; x++ {
		xOfs := x + int(e.bgHOfs[bg])
		if wide {
			xOfs &= 0x1FF
		} else {
			xOfs &= 0xFF
		}
		mapAddr := screenBase
		if xOfs >= 256 {
			mapAddr += 0x800
			xOfs &= 0xFF
		}

		entry := e.mem.VramRead16(mapAddr + uint32(y/8*32+xOfs/8)*2)
		tile := uint32(entry & 0x3FF)
		tx := uint32(xOfs & 7)
		ty := uint32(y & 7)
		if entry&(1<<10) != 0 {
			tx = 7 - tx
		}
		if entry&(1<<11) != 0 {
			ty = 7 - ty
		}
		palNum := uint32(entry >> 12)

		if color8 {
			index := uint32(e.mem.VramRead8(charBase + tile*64 + ty*8 + tx))
			if index == 0 {
				continue
			}
			if e.dispCnt&(1<<30) != 0 { // extended palettes
				slot := bg
				if bg < 2 && cnt&(1<<13) != 0 {
					slot += 2
				}
				layer[x] = e.readExtPalette(slot, palNum*256+index) | opaque
			} else {
				layer[x] = e.readPalette(index) | opaque
			}
		} else {
			pair := uint32(e.mem.VramRead8(charBase + tile*32 + ty*4 + tx/2))
			index := pair >> (tx % 2 * 4) & 0xF
			if index == 0 {
				continue
			}
			layer[x] = e.readPalette(palNum*16+index) | opaque
		}
	}
}

// drawAffine renders one line of a rotated/scaled 256-color background.
func (e *Engine2D) drawAffine(bg, line int) {
	cnt := e.bgCnt[bg]
	i := bg - 2
	layer := e.layers[bg][line*FramebufferWidth:]
	charBase := e.charBase(bg)
	screenBase := e.screenBase(bg)

	size := int32(128) << (cnt >> 14 & 0x3)
	wrap := cnt&(1<<13) != 0
	tilesWide := uint32(size / 8)

	rotX, rotY := e.intX[i], e.intY[i]
	for x := 0; x < FramebufferWidth; x++ {
		px, py := rotX>>8, rotY>>8
		rotX += int32(e.bgPA[i])
		rotY += int32(e.bgPC[i])

		if wrap {
			px &= size - 1
			py &= size - 1
		} else if px < 0 || px >= size || py < 0 || py >= size {
			continue
		}

		tile := uint32(e.mem.VramRead8(screenBase + uint32(py/8)*tilesWide + uint32(px/8)))
		index := uint32(e.mem.VramRead8(charBase + tile*64 + uint32(py&7)*8 + uint32(px&7)))
		if index != 0 {
			layer[x] = e.readPalette(index) | opaque
		}
	}
}

// drawExtended renders one line of an extended background: an affine map
// with 16-bit entries, a 256-color bitmap, or a direct-color bitmap.
func (e *Engine2D) drawExtended(bg, line int) {
	cnt := e.bgCnt[bg]
	i := bg - 2
	layer := e.layers[bg][line*FramebufferWidth:]

	rotX, rotY := e.intX[i], e.intY[i]
	step := func() (int32, int32) {
		px, py := rotX>>8, rotY>>8
		rotX += int32(e.bgPA[i])
		rotY += int32(e.bgPC[i])
		return px, py
	}

	if cnt&(1<<7) == 0 {
		// Rotscale with 16-bit map entries and extended palettes
		charBase := e.charBase(bg)
		screenBase := e.screenBase(bg)
		size := int32(128) << (cnt >> 14 & 0x3)
		wrap := cnt&(1<<13) != 0
		tilesWide := uint32(size / 8)

		for x := 0; x < FramebufferWidth; x++ {
			px, py := step()
			if wrap {
				px &= size - 1
				py &= size - 1
			} else if px < 0 || px >= size || py < 0 || py >= size {
				continue
			}

			entry := e.mem.VramRead16(screenBase + (uint32(py/8)*tilesWide+uint32(px/8))*2)
			tile := uint32(entry & 0x3FF)
			tx := uint32(px & 7)
			ty := uint32(py & 7)
			if entry&(1<<10) != 0 {
				tx = 7 - tx
			}
			if entry&(1<<11) != 0 {
				ty = 7 - ty
			}

			index := uint32(e.mem.VramRead8(charBase + tile*64 + ty*8 + tx))
			if index == 0 {
				continue
			}
			if e.dispCnt&(1<<30) != 0 {
				layer[x] = e.readExtPalette(bg, uint32(entry>>12)*256+index) | opaque
			} else {
				layer[x] = e.readPalette(index) | opaque
			}
		}
		return
	}

	// Bitmap modes use the screen base as the bitmap base
	base := e.bgVramAddr + uint32(cnt>>8&0x1F)*0x4000
	sizes := [4][2]int32{{128, 128}, {256, 256}, {512, 256}, {512, 512}}
	width, height := sizes[cnt>>14&0x3][0], sizes[cnt>>14&0x3][1]
	direct := cnt&(1<<2) != 0
	wrap := cnt&(1<<13) != 0

	for x := 0; x < FramebufferWidth; x++ {
		px, py := step()
		if wrap {
			px &= width - 1
			py &= height - 1
		} else if px < 0 || px >= width || py < 0 || py >= height {
			continue
		}

		if direct {
			color := e.mem.VramRead16(base + (uint32(py)*uint32(width)+uint32(px))*2)
			if color&opaque != 0 {
				layer[x] = color
			}
		} else {
			index := uint32(e.mem.VramRead8(base + uint32(py)*uint32(width) + uint32(px)))
			if index != 0 {
				layer[x] = e.readPalette(index) | opaque
			}
		}
	}
}

// Sprite dimensions indexed by shape then size.
var objSizes = [3][4][2]int32{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},
}

// drawObjects renders the sprite layer for one line, tracking per-pixel
// priority so composition can interleave sprites between backgrounds.
func (e *Engine2D) drawObjects(line int) {
	oam := e.mem.Oam()
	layer := e.layers[4][line*FramebufferWidth:]
	prioLine := e.objPrio[line*FramebufferWidth:]

	for obj := 0; obj < 128; obj++ {
		entry := oam[e.oamBase+uint32(obj)*8:]
		attr0 := uint16(entry[0]) | uint16(entry[1])<<8
		attr1 := uint16(entry[2]) | uint16(entry[3])<<8
		attr2 := uint16(entry[4]) | uint16(entry[5])<<8

		affine := attr0&(1<<8) != 0
		if !affine && attr0&(1<<9) != 0 { // disabled
			continue
		}
		if attr0>>10&0x3 == 2 { // object window, not composed
			continue
		}

		shape := int(attr0 >> 14)
		if shape == 3 {
			continue
		}
		width := objSizes[shape][attr1>>14][0]
		height := objSizes[shape][attr1>>14][1]
		boundsW, boundsH := width, height
		if affine && attr0&(1<<9) != 0 { // double-size bounds
			boundsW *= 2
			boundsH *= 2
		}

		y := int32(attr0 & 0xFF)
		spriteY := (int32(line) - y) & 0xFF
		if spriteY >= boundsH {
			continue
		}
		x := int32(attr1 & 0x1FF)
		if x >= 256 {
			x -= 512
		}

		color8 := attr0&(1<<13) != 0
		tile := uint32(attr2 & 0x3FF)
		prio := uint8(attr2 >> 10 & 0x3)
		palNum := uint32(attr2 >> 12)

		var pa, pb, pc, pd int32 = 0x100, 0, 0, 0x100
		if affine {
			group := e.oamBase + uint32(attr1>>9&0x1F)*32
			pa = int32(int16(uint16(oam[group+6]) | uint16(oam[group+7])<<8))
			pb = int32(int16(uint16(oam[group+14]) | uint16(oam[group+15])<<8))
			pc = int32(int16(uint16(oam[group+22]) | uint16(oam[group+23])<<8))
			pd = int32(int16(uint16(oam[group+30]) | uint16(oam[group+31])<<8))
		}

		bytesPerTile := int32(32)
		if color8 {
			bytesPerTile = 64
		}
		var tileBase, rowStride int32
		if e.dispCnt&(1<<4) != 0 { // 1D mapping
			boundary := int32(32) << (e.dispCnt >> 20 & 0x3)
			tileBase = int32(tile) * boundary
			rowStride = width / 8 * bytesPerTile
		} else { // 2D mapping: 32-tile char rows in 32-byte units
			tileBase = int32(tile) * 32
			rowStride = 1024
		}

		for sx := int32(0); sx < boundsW; sx++ {
			screenX := x + sx
			if screenX < 0 || screenX >= FramebufferWidth {
				continue
			}
			if layer[screenX]&opaque != 0 && prioLine[screenX] <= prio {
				continue
			}

			var texX, texY int32
			if affine {
				texX = (pa*(sx-boundsW/2)+pb*(spriteY-boundsH/2))>>8 + width/2
				texY = (pc*(sx-boundsW/2)+pd*(spriteY-boundsH/2))>>8 + height/2
				if texX < 0 || texX >= width || texY < 0 || texY >= height {
					continue
				}
			} else {
				texX, texY = sx, spriteY
				if attr1&(1<<12) != 0 {
					texX = width - 1 - texX
				}
				if attr1&(1<<13) != 0 {
					texY = height - 1 - texY
				}
			}

			addr := e.objVramAddr + uint32(tileBase+texY/8*rowStride+texX/8*bytesPerTile)
			var index uint32
			if color8 {
				index = uint32(e.mem.VramRead8(addr + uint32(texY&7)*8 + uint32(texX&7)))
			} else {
				pair := uint32(e.mem.VramRead8(addr + uint32(texY&7)*4 + uint32(texX&7)/2))
				index = pair >> (uint32(texX) % 2 * 4) & 0xF
			}
			if index == 0 {
				continue
			}

			var color uint16
			switch {
			case color8 && e.dispCnt&(1<<31) != 0:
				color = e.readExtPalette(4, palNum*256+index)
			case color8:
				color = e.readPalette(0x100 + index)
			default:
				color = e.readPalette(0x100 + palNum*16 + index)
			}
			layer[screenX] = color | opaque
			prioLine[screenX] = prio
		}
	}
}

// compose selects the final pixel per column: the highest-priority opaque
// layer pixel, sprites winning ties, then master brightness.
func (e *Engine2D) compose(line int) {
	off := line * FramebufferWidth
	backdrop := e.readPalette(0)
	objEnabled := e.dispCnt&(1<<12) != 0

	for x := 0; x < FramebufferWidth; x++ {
		color := backdrop

	search:
		for p := uint8(0); p < 4; p++ {
			if objEnabled && e.objPrio[off+x] == p {
				color = e.layers[4][off+x] &^ opaque
				break search
			}
			for bg := 0; bg < 4; bg++ {
				if e.dispCnt&(1<<(8+bg)) == 0 || uint8(e.bgCnt[bg]&0x3) != p {
					continue
				}
				if pixel := e.layers[bg][off+x]; pixel&opaque != 0 {
					color = pixel &^ opaque
					break search
				}
			}
		}

		e.fb.buffer[off+x] = e.applyMasterBright(color) | opaque
	}
}

// applyMasterBright lightens or darkens an RGB5 color per the master
// brightness register.
func (e *Engine2D) applyMasterBright(color uint16) uint16 {
	factor := uint32(e.masterBright & 0x1F)
	if factor > 16 {
		factor = 16
	}
	mode := e.masterBright >> 14
	if mode == 0 || factor == 0 {
		return color
	}

	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		ch := uint32(color>>shift) & 0x1F
		if mode == 1 { // lighten
			ch += (31 - ch) * factor / 16
		} else if mode == 2 { // darken
			ch -= ch * factor / 16
		}
		out |= uint16(ch) << shift
	}
	return out
}
