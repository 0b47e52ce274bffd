package ppu

// Dot-level timing constants (spec.md §4.3). A dot is the unit tick()
// advances by; 4 dots make one visible pixel column in non-hi-res
// mode, 2 in hi-res — callers never need that ratio directly, it only
// matters to reRenderFrom's dot-to-column math (background.go).
const (
	normalLineDots = 1364

	// render dot: the background/sprite pipelines fill the line's
	// pixel buffers once the cursor reaches this dot.
	renderDot = 88
	// end of the 256-pixel render region (88 + 4*256).
	renderEndDot = renderDot + 4*256

	// mid-line register writes between renderDot and this dot force a
	// partial re-render of the remainder of the line (spec.md §4.1).
	midLineWriteEndDot = renderDot + 1024

	// scroll writes observed between renderDot and midLineWriteEndDot
	// take effect 15 pixels (60 dots) later than INIDISP writes —
	// spec.md's "approximated as 15 pixels" open question; kept as a
	// named, tunable constant rather than a bare literal.
	scrollWriteLatencyDots = 15 * 4
)

const (
	ntscLines = 262
	palLines  = 312
)

// tickState is the PPU's (scanline, dot) cursor plus the handful of
// per-frame flags that depend on it.
type tickState struct {
	timing Timing

	scanline uint16
	dot      uint16

	oddFrame bool

	// snapshotted once per frame at frame-end (spec.md §4.3)
	hHiResFrame bool
	vHiResFrame bool

	// cachedVDisplay mirrors PPU.vDisplayFromRegs(), refreshed once per
	// scanline rollover so mid-scanline code can call vDisplay() without
	// a back-reference to the owning PPU.
	cachedVDisplay uint16
}

func newTickState(t Timing) tickState {
	return tickState{timing: t, cachedVDisplay: 224}
}

// scanlinesPerFrame returns the nominal (non-interlaced-extra-line)
// scanline count for the region.
func (t *tickState) scanlinesPerFrame() uint16 {
	if t.timing == Pal {
		return palLines
	}
	return ntscLines
}

// lineLength returns the dot length of the given scanline, applying
// the two region-specific odd-frame shortened/lengthened lines
// (spec.md §4.3).
func (t *tickState) lineLength(scanline uint16, interlaced bool) uint16 {
	switch {
	case t.timing == Ntsc && !interlaced && scanline == 240 && t.oddFrame:
		return 1360
	case t.timing == Pal && interlaced && scanline == 311 && t.oddFrame:
		return 1368
	default:
		return normalLineDots
	}
}

// vDisplayFromRegs returns the last active (visible) scanline index,
// derived from the overscan register bit.
func (p *PPU) vDisplayFromRegs() uint16 {
	if p.regs.overscan {
		return 239
	}
	return 224
}

// vDisplay mirrors the overscan-derived visible height used by
// VBlankFlag and frame-completion bookkeeping.
func (t *tickState) vDisplay() uint16 {
	return t.cachedVDisplay
}

// advanceDot moves the cursor forward by one dot, performing the
// scanline/frame rollovers and rendering hooks spec.md §4.3 and §4.4
// describe. It reports whether this dot completed a frame.
func (p *PPU) advanceDot() bool {
	t := &p.tick
	frameComplete := false

	t.dot++

	interlaced := p.regs.interlace
	lineLen := t.lineLength(t.scanline, interlaced)

	if t.dot == renderDot && t.scanline >= 1 && t.scanline <= t.vDisplay() {
		p.renderCurrentLine()
	} else if t.dot > renderDot && t.dot < midLineWriteEndDot &&
		t.scanline >= 1 && t.scanline <= t.vDisplay() && p.regs.midLineDirty {
		p.reRenderFrom(t.dot)
		p.regs.midLineDirty = false
	}

	if t.dot >= lineLen {
		t.dot = 0

		if p.pendingPixelOverflow {
			p.spritePixelOverflow = true
			p.pendingPixelOverflow = false
		}

		t.scanline++

		if t.scanline == t.vDisplay()+1 && !p.frameCompletePending {
			p.frameCompletePending = true
			frameComplete = true
		}
		if t.scanline == t.vDisplay()+1 {
			p.regs.latchVScrollForFrame()
			if p.regs.displayEnabled() {
				p.regs.oamAddr = p.regs.oamAddrShadow
			}
		}

		linesPerFrame := t.scanlinesPerFrame()
		if interlaced && t.oddFrame {
			linesPerFrame++
		}

		if t.scanline >= linesPerFrame {
			t.scanline = 0
			t.oddFrame = !t.oddFrame
			t.hHiResFrame = p.regs.hiRes()
			t.vHiResFrame = interlaced
			p.fb.snapshotSize(t.hHiResFrame, t.vHiResFrame)
			if !p.regs.forcedBlank {
				p.spriteOverflow = false
				p.spritePixelOverflow = false
			}
		}

		t.cachedVDisplay = p.vDisplayFromRegs()
	}

	return frameComplete
}
