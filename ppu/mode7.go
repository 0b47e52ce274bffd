package ppu

// mode7Fixed is a 1/256-pixel fixed-point value (spec.md §4.4).
type mode7Fixed int32

// renderMode7Line implements spec.md §4.4's Mode 7 pipeline: a fixed
// 128x128-tile map at VRAM $0000, each entry pointing into a bank of
// 256 8x8 tiles stored one byte per pixel (high byte of each VRAM
// word; the low byte holds the tile number at the map level).
func (p *PPU) renderMode7Line(line int) {
	m := &p.regs.mode7

	sy := mode7Fixed(line) << 8
	if m.vFlip {
		sy = mode7Fixed(255<<8) - sy
	}

	for x := 0; x < 256; x++ {
		sx := mode7Fixed(x) << 8
		if m.hFlip {
			sx = mode7Fixed(255<<8) - sx
		}

		vx, vy := mode7Transform(m, sx, sy)
		idx, inRange := mode7SampleTile(p, m, vx, vy)

		if !inRange {
			p.bgPixels[0][x] = Pixel{color: 0}
		} else {
			p.bgPixels[0][x] = Pixel{color: idx}
		}

		if p.regs.extbg {
			// EXTBG: BG2 reuses BG1's pixel with the top color bit as
			// priority and the remaining 7 bits as color (spec.md §4.4,
			// Mode 7 row, and §9 open question on mosaic application).
			top := idx & 0x80
			base := idx &^ 0x80
			prio := top != 0
			if !inRange {
				p.bgPixels[1][x] = Pixel{color: 0}
			} else {
				p.bgPixels[1][x] = Pixel{color: base, priority: prio}
			}
		}
	}
}

// mode7Transform applies the affine matrix (spec.md §4.4):
//
//	[vx]   [A B] [sx + Hofs - Cx]   [Cx]
//	[vy] = [C D] [sy + Vofs - Cy] + [Cy]
func mode7Transform(m *mode7Regs, sx, sy mode7Fixed) (vx, vy mode7Fixed) {
	px := sx + mode7Fixed(m.hofs)<<8 - mode7Fixed(m.cx)<<8
	py := sy + mode7Fixed(m.vofs)<<8 - mode7Fixed(m.cy)<<8
	px >>= 8
	py >>= 8

	vx = mode7Fixed(int64(m.a)*int64(px)+int64(m.b)*int64(py)) + mode7Fixed(m.cx)<<8
	vy = mode7Fixed(int64(m.c)*int64(px)+int64(m.d)*int64(py)) + mode7Fixed(m.cy)<<8
	return vx, vy
}

// mode7SampleTile reads the color index at the given fixed-point
// screen-space coordinate, applying one of the three out-of-range
// behaviors (spec.md §4.4): wrap, transparent, or tile-0-only.
func mode7SampleTile(p *PPU, m *mode7Regs, vx, vy mode7Fixed) (idx uint8, inRange bool) {
	px := int32(vx >> 8)
	py := int32(vy >> 8)

	outOfRange := px < 0 || px >= 1024 || py < 0 || py >= 1024

	if outOfRange {
		switch m.outOfRange {
		case mode7Transparent:
			return 0, false
		case mode7Tile0:
			px &= 7
			py &= 7
		default: // mode7Wrap
			px &= 1023
			py &= 1023
		}
	}

	tileX := (px / 8) & 0x7F
	tileY := (py / 8) & 0x7F
	pxInTile := uint16(px % 8)
	pyInTile := uint16(py % 8)

	mapAddr := uint16(tileY*128 + tileX)
	tileNum := uint8(p.vram[mapAddr&vramMask])

	pixelAddr := uint16(tileNum)*64 + pyInTile*8 + pxInTile
	word := p.vram[pixelAddr&vramMask]
	return uint8(word >> 8), true
}

// resolveDirectColor implements the 3bpp-palette/8bpp-color direct
// color synthesis used by Mode 3/4 BG1 (spec.md §4.4, §12 FULL;
// grounded on original_source/snes-core/src/ppu.rs resolve_direct_color).
// Color (8-bit) is BBGGGRRR; palette (3-bit) is bgr.
func resolveDirectColor(palette, color uint8) uint16 {
	r := uint16(color&0x07)<<2 | uint16(palette&0x01)<<1
	g := uint16(color&0x38)<<4 | uint16(palette&0x02)<<5
	b := uint16(color&0xC0)<<7 | uint16(palette&0x04)<<10
	return r | g | b
}
