package ppu

// brightnessTable precomputes INIDISP's 16-step master brightness scale
// against every possible 5-bit channel value (spec.md §4.7.4), so
// compositeLine never does the division per pixel.
var brightnessTable [16][32]uint8

func init() {
	for b := 0; b < 16; b++ {
		for c := 0; c < 32; c++ {
			brightnessTable[b][c] = uint8((c * (b + 1)) >> 4)
		}
	}
}

func splitColor15(c uint16) (r, g, b uint8) {
	return uint8(c & 0x1F), uint8((c >> 5) & 0x1F), uint8((c >> 10) & 0x1F)
}

func joinColor15(r, g, b uint8) uint16 {
	return uint16(r&0x1F) | uint16(g&0x1F)<<5 | uint16(b&0x1F)<<10
}

func scale5to8(v uint8) uint8 { return v<<3 | v>>2 }

// evalWindow implements spec.md §4.7.1: each window range contributes
// an inside/outside test (optionally inverted), and the two combine
// per the OR/AND/XOR/XNOR selector when both are enabled.
func evalWindow(m *windowMasks, win0, win1 windowRange, x int) bool {
	in0 := x >= int(win0.left) && x <= int(win0.right)
	if m.invertW0 {
		in0 = !in0
	}
	in1 := x >= int(win1.left) && x <= int(win1.right)
	if m.invertW1 {
		in1 = !in1
	}

	switch {
	case m.enableW0 && m.enableW1:
		switch m.combine {
		case combineOR:
			return in0 || in1
		case combineAND:
			return in0 && in1
		case combineXOR:
			return in0 != in1
		default: // combineXNOR
			return in0 == in1
		}
	case m.enableW0:
		return in0
	case m.enableW1:
		return in1
	default:
		return false
	}
}

// layerClipped reports whether layer idx is hidden at column x on the
// given screen (main or sub), per the $2E/$2F "window area disable"
// bits: a layer is only window-masked at all if its disable bit is set
// for this screen (spec.md §4.7.1).
func (p *PPU) layerClipped(idx, x int, sub bool) bool {
	disable := p.regs.mainWindowDisable[idx]
	if sub {
		disable = p.regs.subWindowDisable[idx]
	}
	if !disable {
		return false
	}
	return evalWindow(&p.regs.winMask[idx], p.regs.win0, p.regs.win1, x)
}

// blackWindowForces reports whether a CGWSEL main/sub-screen-black
// code (spec.md §12 FULL CGWSEL) forces black at column x, evaluated
// against the shared force-black window ($2B low bits).
func (p *PPU) blackWindowForces(code uint8, x int) bool {
	switch code {
	case 0:
		return false
	case 3:
		return true
	case 1:
		return !evalWindow(&p.regs.colorMathWindow, p.regs.win0, p.regs.win1, x)
	default: // 2
		return evalWindow(&p.regs.colorMathWindow, p.regs.win0, p.regs.win1, x)
	}
}

func colorMathLayerIndex(t layerTag) int {
	switch t {
	case tagBG1:
		return 0
	case tagBG2:
		return 1
	case tagBG3:
		return 2
	case tagBG4:
		return 3
	case tagOBJ:
		return 4
	default: // tagBackdrop
		return 5
	}
}

// colorMathBlend implements spec.md §4.7.3: per-channel saturating
// add or subtract, with optional halving of the result (hardware only
// halves on add; a lone subtract always clips to its full-precision
// result).
func colorMathBlend(main, sub uint16, op colorMathOp, halve bool) uint16 {
	mr, mg, mb := splitColor15(main)
	sr, sg, sb := splitColor15(sub)

	blend := func(a, b uint8) uint8 {
		if op == colorMathSub {
			v := int(a) - int(b)
			if v < 0 {
				v = 0
			}
			return uint8(v)
		}
		v := int(a) + int(b)
		if halve {
			v /= 2
		}
		if v > 31 {
			v = 31
		}
		return uint8(v)
	}

	return joinColor15(blend(mr, sr), blend(mg, sg), blend(mb, sb))
}

// compositeLine implements spec.md §4.7 end-to-end for columns
// [fromCol, width) of the current scanline: per-layer windowing,
// main/sub priority resolution, color math, forced black, master
// brightness, and the final write into the framebuffer (honoring
// hi-res column doubling and interlaced field placement).
func (p *PPU) compositeLine(line, width, fromCol int) {
	row := line
	if p.regs.interlace && p.fb.h > 224 {
		row = line * 2
		if p.tick.oddFrame {
			row++
		}
	}

	doubleOutput := width == 256 && p.fb.w == 512

	if p.regs.forcedBlank {
		for x := fromCol; x < width; x++ {
			if doubleOutput {
				p.fb.set2x(x, row, RGB8{})
			} else {
				p.fb.set(x, row, RGB8{})
			}
		}
		return
	}

	backdrop := p.cgram[0]

	for x := fromCol; x < width; x++ {
		var mainEnabled, subEnabled [5]bool
		for idx := 0; idx < 5; idx++ {
			mainEnabled[idx] = p.regs.mainEnable[idx] && !p.layerClipped(idx, x, false)
			subEnabled[idx] = p.regs.subEnable[idx] && !p.layerClipped(idx, x, true)
		}

		mainRP := p.resolvePriority(x, mainEnabled)
		mainColor := backdrop
		if mainRP.layer != tagBackdrop {
			mainColor = p.resolvePixelColor(mainRP.layer, p.bppForLayer(mainRP.layer), mainRP.pixel.palette, mainRP.pixel.color)
		}

		mainBlacked := p.blackWindowForces(p.regs.mainScreenBlack, x)
		if mainBlacked {
			mainColor = 0
		}

		mathEnabled := p.regs.colorMathEnable[colorMathLayerIndex(mainRP.layer)]
		if mathEnabled && (p.regs.colorMathWindow.enableW0 || p.regs.colorMathWindow.enableW1) {
			mathEnabled = evalWindow(&p.regs.colorMathWindow, p.regs.win0, p.regs.win1, x)
		}

		finalColor := mainColor
		if mathEnabled {
			var subColor uint16
			subTransparent := false
			if p.regs.fixedColorAddEnable {
				subColor = p.regs.subBackdropColor
			} else {
				subRP := p.resolvePriority(x, subEnabled)
				if subRP.layer == tagBackdrop {
					subColor = p.regs.subBackdropColor
					subTransparent = true
				} else {
					subColor = p.resolvePixelColor(subRP.layer, p.bppForLayer(subRP.layer), subRP.pixel.palette, subRP.pixel.color)
				}
			}
			if p.blackWindowForces(p.regs.subScreenBlack, x) {
				subColor = 0
			}
			halve := p.regs.colorMathHalve && !mainBlacked && !subTransparent
			finalColor = colorMathBlend(mainColor, subColor, p.regs.colorMathOp, halve)
		}

		r, g, b := splitColor15(finalColor)
		tbl := &brightnessTable[p.regs.brightness]
		rgb := RGB8{R: scale5to8(tbl[r]), G: scale5to8(tbl[g]), B: scale5to8(tbl[b])}

		if doubleOutput {
			p.fb.set2x(x, row, rgb)
		} else {
			p.fb.set(x, row, rgb)
		}
	}
}
