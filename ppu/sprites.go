package ppu

const maxOAMSprites = 128

// objSizePairs maps the OBSEL size-select field to the (small, large)
// sprite dimensions in pixels (spec.md §3).
var objSizePairs = [8][2]int{
	{8, 16}, {8, 32}, {8, 64}, {16, 32},
	{16, 64}, {32, 64}, {16, 32}, {16, 32},
}

type oamSprite struct {
	x          int // 9-bit signed-ish screen X, already sign-extended
	y          uint8
	tile       uint16
	palette    uint8
	priority   uint8
	hFlip      bool
	vFlip      bool
	large      bool
}

func (p *PPU) readOAMSprite(i int) oamSprite {
	b0 := uint16(p.oam[i*4])
	b1 := p.oam[i*4+1]
	b2 := uint16(p.oam[i*4+2])
	b3 := p.oam[i*4+3]

	hiByte := p.oamHi[i/4]
	shift := uint((i % 4) * 2)
	xHigh := (hiByte >> shift) & 0x01
	large := (hiByte>>(shift+1))&0x01 != 0

	x := int(b0) | int(xHigh)<<8
	if x >= 256 {
		x -= 512 // sign-extend the 9-bit X to a signed screen coordinate
	}

	return oamSprite{
		x:        x,
		y:        b1,
		tile:     b2 | uint16(b3&0x01)<<8,
		palette:  (b3 >> 1) & 0x07,
		priority: (b3 >> 4) & 0x03,
		hFlip:    b3&0x40 != 0,
		vFlip:    b3&0x80 != 0,
		large:    large,
	}
}

type spriteOnLine struct {
	oamSprite
	lineInSprite int
	height       int
	width        int
}

// scanSprites implements spec.md §4.5 end-to-end: the 32-sprite OAM
// scan, the 34-tile tile scan, per-tile 4bpp decode, and the
// last-to-first rasterization into p.objPixels.
func (p *PPU) scanSprites(line int) {
	for i := range p.objPixels {
		p.objPixels[i] = objPixel{}
	}

	sizeSel := p.regs.objSizeSel & 0x07
	smallW, smallH := objSizePairs[sizeSel][0], objSizePairs[sizeSel][0]
	largeW, largeH := objSizePairs[sizeSel][1], objSizePairs[sizeSel][1]

	halfHeight := p.regs.objInterlace && p.regs.interlace

	start := 0
	if p.regs.oamPriorityRotate {
		start = int(p.regs.oamAddr>>2) & 0x7F
	}

	var survivors []spriteOnLine
	for n := 0; n < maxOAMSprites; n++ {
		i := (start + n) % maxOAMSprites
		s := p.readOAMSprite(i)

		w, h := smallW, smallH
		if s.large {
			w, h = largeW, largeH
		}
		if halfHeight {
			h /= 2
		}

		spriteY := int(s.y) + 1
		if line < spriteY || line >= spriteY+h {
			continue
		}
		if s.x >= 256 && s.x < 512-w {
			continue
		}

		if len(survivors) >= 32 {
			p.spriteOverflow = true
			break
		}
		survivors = append(survivors, spriteOnLine{
			oamSprite:    s,
			lineInSprite: line - spriteY,
			height:       h,
			width:        w,
		})
	}

	type decodedTileSlot struct {
		x        int
		palette  uint8
		priority uint8
		colors   [8]uint8
	}

	var tiles []decodedTileSlot
	patternBase := p.regs.objBase

	for i := len(survivors) - 1; i >= 0; i-- {
		s := survivors[i]
		lineInSprite := s.lineInSprite
		if p.regs.objInterlace && p.regs.interlace {
			parity := 0
			if p.tick.oddFrame {
				parity = 1
			}
			flip := 0
			if s.vFlip {
				flip = 1
			}
			lineInSprite = lineInSprite*2 | (parity ^ flip)
		}
		row := lineInSprite
		if s.vFlip {
			row = s.height - 1 - lineInSprite
		}
		rowInTile := row % 8
		tileRow := row / 8

		cols := s.width / 8
		for c := 0; c < cols; c++ {
			if len(tiles) >= 34 {
				p.pendingPixelOverflow = true
				goto rasterize
			}

			col := c
			if s.hFlip {
				col = cols - 1 - c
			}

			tileLoNibble := (s.tile & 0x0F)
			tileHiNibble := (s.tile >> 4) & 0x3F
			tx := (tileLoNibble + uint16(col)) & 0x0F
			ty := (tileHiNibble + uint16(tileRow)) & 0x3F
			base := patternBase
			if (s.tile>>8)&0x01 != 0 {
				base = p.regs.objGapBase
			}
			tileAddr := base + (ty<<4|tx)*16

			screenX := s.x + c*8
			if screenX >= 256 && screenX < 512-8 {
				continue
			}

			t := p.decodeTile(tileAddr, 4)
			var colors [8]uint8
			for px := 0; px < 8; px++ {
				colors[px] = t.at(rowInTile, px, s.hFlip, false)
			}
			tiles = append(tiles, decodedTileSlot{
				x:        screenX,
				palette:  s.palette,
				priority: s.priority,
				colors:   colors,
			})
		}
	}

rasterize:
	for i := len(tiles) - 1; i >= 0; i-- {
		t := tiles[i]
		for px := 0; px < 8; px++ {
			x := (t.x + px) & 0x1FF
			if x >= 256 {
				continue
			}
			idx := t.colors[px]
			if idx == 0 {
				continue
			}
			if !p.objPixels[x].pixel.transparent() {
				continue
			}
			p.objPixels[x] = objPixel{
				pixel:    Pixel{palette: t.palette, color: idx},
				priority: t.priority,
			}
		}
	}
}
