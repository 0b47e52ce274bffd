package ppu

// resolvePixelColor maps a resolved (layer, palette, color index) to a
// 15-bit CGRAM color, handling mode 0's per-layer 2bpp palette
// regions, OBJ's second-half-of-CGRAM palettes, and Mode 3/4 BG1
// direct color (spec.md §4.4, §12 FULL; grounded on
// original_source/snes-core/src/ppu.rs resolve_pixel_color).
func (p *PPU) resolvePixelColor(layer layerTag, bpp uint8, palette, colorIdx uint8) uint16 {
	twoBppOffset := uint8(0)
	if p.regs.bgMode == 0 {
		switch layer {
		case tagBG1:
			twoBppOffset = 0x00
		case tagBG2:
			twoBppOffset = 0x20
		case tagBG3:
			twoBppOffset = 0x40
		case tagBG4:
			twoBppOffset = 0x60
		}
	}
	fourBppOffset := uint8(0)
	if layer == tagOBJ {
		fourBppOffset = 0x80
	}

	switch bpp {
	case 2:
		return p.cgram[twoBppOffset|(palette<<2)|colorIdx]
	case 4:
		return p.cgram[fourBppOffset|(palette<<4&0x7F)|colorIdx]
	default: // 8bpp
		if layer == tagBG1 && p.regs.directColorBG1 && (p.regs.bgMode == 3 || p.regs.bgMode == 4) {
			return resolveDirectColor(palette, colorIdx)
		}
		return p.cgram[colorIdx]
	}
}

// bppForLayer returns the color depth a layer renders at in the
// current mode, including Mode 7's fixed 8bpp BG1/BG2.
func (p *PPU) bppForLayer(layer layerTag) uint8 {
	if p.regs.bgMode == 7 {
		return 8
	}
	bpp := modeEnabledBpp(p.regs.bgMode)
	idx := bgIndexForTag(layer)
	if idx < 0 {
		return 0
	}
	return bpp[idx]
}
