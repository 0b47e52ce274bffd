package ppu

// Pixel is the intermediate per-layer output spec.md §3 describes:
// a palette selector, an 8-bit color index (0 = transparent) and the
// tile's own priority bit.
type Pixel struct {
	palette  uint8
	color    uint8
	priority bool
}

func (p Pixel) transparent() bool { return p.color == 0 }

// objPixel is one rasterized OBJ column: a Pixel plus the sprite's
// 2-bit OAM priority, used by priority.go to pick OBJ0-3 slots.
type objPixel struct {
	pixel    Pixel
	priority uint8
}

// modeEnabledBpp reports how many BG layers mode m enables and their
// bit depths (spec.md §4.4 mode table); a 0 bpp means the layer does
// not exist in this mode.
func modeEnabledBpp(mode uint8) [4]uint8 {
	switch mode {
	case 0:
		return [4]uint8{2, 2, 2, 2}
	case 1:
		return [4]uint8{4, 4, 2, 0}
	case 2:
		return [4]uint8{4, 4, 0, 0}
	case 3:
		return [4]uint8{8, 4, 0, 0}
	case 4:
		return [4]uint8{8, 2, 0, 0}
	case 5:
		return [4]uint8{4, 2, 0, 0}
	case 6:
		return [4]uint8{4, 0, 0, 0}
	case 7:
		return [4]uint8{8, 0, 0, 0}
	default:
		return [4]uint8{}
	}
}

// modeIsHiRes reports whether mode m renders BG1/BG2 at double
// horizontal resolution (spec.md §4.4 modes 5-6).
func modeIsHiRes(mode uint8) bool { return mode == 5 || mode == 6 }

// modeOffsetPerTile reports whether BG3's tile map supplies per-tile
// H/V scroll overrides to BG1/BG2 (spec.md §4.4 modes 2, 4, 6).
func modeOffsetPerTile(mode uint8) bool { return mode == 2 || mode == 4 || mode == 6 }

// renderCurrentLine renders BG1-4 and OBJ for the full current
// scanline and composites it into the framebuffer. Called once the
// dot cursor crosses renderDot (spec.md §4.3). Calling it twice in a
// row for the same (scanline, dot) produces byte-identical output —
// the only state it writes (the scroll-latch commit, the sprite buffer
// and the sticky overflow flags) comes out the same on a repeat call.
func (p *PPU) renderCurrentLine() {
	p.regs.latchScrollForLine()
	p.latchMosaicCounters()

	width := 256
	if modeIsHiRes(p.regs.bgMode) {
		width = 512
	}

	line := int(p.tick.scanline) - 1
	if p.regs.bgMode == 7 {
		p.renderMode7Line(line)
	} else {
		bpp := modeEnabledBpp(p.regs.bgMode)
		for bg := 0; bg < 4; bg++ {
			if bpp[bg] == 0 {
				continue
			}
			if !p.regs.mainEnable[bg] && !p.regs.subEnable[bg] {
				continue
			}
			p.fillBGLayer(bg, line, width, bpp[bg])
		}
	}

	p.scanSprites(line)
	p.compositeLine(line, width, 0)
}

// reRenderFrom re-renders the remainder of the current line starting
// at the pixel column implied by fromDot, honoring the mid-line
// INIDISP/scroll timing spec.md §4.1 and §4.3 describe: scroll writes
// take effect scrollWriteLatencyDots later than brightness writes.
func (p *PPU) reRenderFrom(fromDot uint16) {
	startDot := fromDot
	if p.regs.scrollWritePending {
		startDot += scrollWriteLatencyDots
		p.regs.scrollWritePending = false
	}
	startCol := int((startDot - renderDot) / 4)
	if startCol < 0 {
		startCol = 0
	}

	width := 256
	if modeIsHiRes(p.regs.bgMode) {
		width = 512
	}
	line := int(p.tick.scanline) - 1
	if p.regs.bgMode == 7 {
		p.renderMode7Line(line)
	} else {
		p.regs.latchScrollForLine()
		bpp := modeEnabledBpp(p.regs.bgMode)
		for bg := 0; bg < 4; bg++ {
			if bpp[bg] == 0 || (!p.regs.mainEnable[bg] && !p.regs.subEnable[bg]) {
				continue
			}
			p.fillBGLayer(bg, line, width, bpp[bg])
		}
	}
	p.scanSprites(line)
	p.compositeLine(line, width, startCol)
}

// mosaicAnchor is the last (scanline, x) the mosaic block's top-left
// corner landed on, per layer, so non-top-left pixels can repeat it
// without recomputing the tile fetch (spec.md §4.4 step 1).
type mosaicAnchor struct {
	pixel [4]Pixel
	valid [4]bool
}

func (p *PPU) latchMosaicCounters() {
	// Mosaic's vertical anchor is recomputed per layer inside
	// fillBGLayer from the scanline directly; nothing to latch here
	// beyond the already-latched mosaicSize register.
}

func (p *PPU) fillBGLayer(bg, line, width int, bpp uint8) {
	b := &p.regs.bg[bg]
	mosaicN := uint16(p.regs.mosaicSize) + 1
	mosaicRow := uint16(line)
	if b.mosaicEnable && mosaicN > 1 {
		mosaicRow = (mosaicRow / mosaicN) * mosaicN
	}

	var lastMosaicPixel Pixel
	haveLast := false

	for x := 0; x < width; x++ {
		col := uint16(x)
		if b.mosaicEnable && mosaicN > 1 {
			blockCol := (col / mosaicN) * mosaicN
			if blockCol != col && haveLast {
				p.bgPixels[bg][x] = lastMosaicPixel
				continue
			}
			col = blockCol
		}

		px := p.fetchBGPixel(bg, bpp, col, mosaicRow)
		p.bgPixels[bg][x] = px
		lastMosaicPixel = px
		haveLast = true
	}
}

// fetchBGPixel implements spec.md §4.4 steps 2-6 for one non-affine
// background column.
func (p *PPU) fetchBGPixel(bg int, bpp uint8, col, row uint16) Pixel {
	b := &p.regs.bg[bg]

	hScroll := b.hScrollActive
	vScroll := b.vScrollActive

	if modeOffsetPerTile(p.regs.bgMode) && bg < 2 && col >= 8 {
		hScroll, vScroll = p.offsetPerTile(bg, col)
	}

	x := col + hScroll
	y := row + vScroll

	wide, tall := screenTileExtent(b.size)
	mapW := uint16(32) * wide
	mapH := uint16(32) * tall
	x &= mapW*8 - 1
	y &= mapH*8 - 1

	tileCol := x / 8
	tileRow := y / 8
	subMapX := tileCol / 32
	subMapY := tileRow / 32
	subMapIdx := subMapY*wide + subMapX
	mapBase := b.tileMapBase + subMapIdx*32*32*2

	entryAddr := mapBase + ((tileRow%32)*32+(tileCol%32))*2
	entry := p.vram[entryAddr&vramMask]

	tileNum := entry & 0x3FF
	palette := uint8((entry >> 10) & 0x07)
	priority := entry&0x2000 != 0
	hFlip := entry&0x4000 != 0
	vFlip := entry&0x8000 != 0

	tileW, tileH := 8, 8
	if b.tileSize16 {
		tileW, tileH = 16, 16
	}
	px := int(x % uint16(tileW))
	py := int(y % uint16(tileH))

	tn := tileNum
	if tileW == 16 {
		if px >= 8 != hFlip {
			tn++
		}
	}
	if tileH == 16 {
		bottomHalf := py >= 8
		if bottomHalf != vFlip {
			tn += 16
		}
	}
	tn &= 0x3FF

	tileWords := uint16(bpp) * 4
	addr := b.tileDataBase + tn*tileWords
	tile := p.decodeTile(addr, bpp)
	color := tile.at(py%8, px%8, hFlip, vFlip)

	return Pixel{palette: palette, color: color, priority: priority}
}

func screenTileExtent(s screenSize) (wide, tall uint16) {
	switch s {
	case screen1x1:
		return 1, 1
	case screen2x1:
		return 2, 1
	case screen1x2:
		return 1, 2
	default:
		return 2, 2
	}
}

// offsetPerTile implements spec.md §4.4 step 2: BG3's tile map
// supplies per-tile H and V scroll overrides from the 2nd visible tile
// onward (in Mode 4 a single entry whose bit 15 selects whether it
// overrides H or V), gated per-BG on bit 13 (BG1) / bit 14
// (BG2) of the offset entry — a BG whose bit is clear keeps its own
// scroll register instead (original_source ppu.rs,
// populate_offset_per_tile_buffers).
func (p *PPU) offsetPerTile(bg int, col uint16) (hOfs, vOfs uint16) {
	b := &p.regs.bg[bg]
	bg3 := &p.regs.bg[2]
	base := (col &^ 7) - 8 + (bg3.hScrollActive &^ 7)

	offsetBit := uint16(13)
	if bg == 1 {
		offsetBit = 14
	}

	hEntryAddr := bg3.tileMapBase + bg3TileMapIndex(base, bg3.vScrollActive, bg3.size)
	hEntry := p.vram[hEntryAddr&vramMask]

	if p.regs.bgMode == 4 {
		hOfs, vOfs = b.hScrollActive, b.vScrollActive
		if hEntry&0x8000 != 0 {
			if hEntry&(1<<offsetBit) != 0 {
				vOfs = hEntry & 0x3FF
			}
		} else if hEntry&(1<<offsetBit) != 0 {
			hOfs = hEntry & 0x3FF
		}
		return hOfs, vOfs
	}

	vEntryAddr := bg3.tileMapBase + bg3TileMapIndex(base, bg3.vScrollActive+8, bg3.size)
	vEntry := p.vram[vEntryAddr&vramMask]

	hOfs = b.hScrollActive
	if hEntry&(1<<offsetBit) != 0 {
		hOfs = hEntry & 0x3FF
	}
	vOfs = b.vScrollActive
	if vEntry&(1<<offsetBit) != 0 {
		vOfs = vEntry & 0x3FF
	}
	return hOfs, vOfs
}

func bg3TileMapIndex(x, y uint16, size screenSize) uint16 {
	wide, _ := screenTileExtent(size)
	tileCol := (x / 8) % 32
	tileRow := (y / 8) % 32
	subMapX := (x / 8 / 32) % wide
	subMapIdx := subMapX // vertical sub-maps ignored for BG3 offset source
	return subMapIdx*32*32*2 + (tileRow*32+tileCol)*2
}
