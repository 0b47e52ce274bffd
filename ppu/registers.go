package ppu

// screenSize enumerates a BG layer's tile-map extent, in 32x32-tile
// sub-maps (spec.md §3 BG control block).
type screenSize uint8

const (
	screen1x1 screenSize = iota
	screen2x1
	screen1x2
	screen2x2
)

// mode7OutOfRange selects the behavior when an affine-transformed
// coordinate lands outside the 1024x1024 mode 7 plane (spec.md §4.4).
type mode7OutOfRange uint8

const (
	mode7Wrap mode7OutOfRange = iota
	mode7Transparent
	mode7Tile0
)

// bgControl is one of the four BG control blocks (spec.md §3).
type bgControl struct {
	priority     bool
	tileDataBase uint16 // word address in VRAM
	mosaicEnable bool
	bpp          uint8 // 2, 4 or 8
	tileMapBase  uint16
	size         screenSize
	tileSize16   bool // 16x16 tiles instead of 8x8

	hScrollActive uint16 // 10-bit, committed at line start
	vScrollActive uint16
	hScrollLatch  uint16 // pending value under construction by the 2-write sequence
	vScrollLatch  uint16
	hWriteHigh    bool // which half of the 2-write sequence is next
	vWriteHigh    bool
}

// mode7Regs holds the affine transform matrix and origin (spec.md §4.4).
type mode7Regs struct {
	a, b, c, d     int16 // 16-bit signed
	hofs, vofs     int16 // 13-bit signed, sign-extended on write
	cx, cy         int16
	hFlip, vFlip   bool
	wrapScreen     bool // affine-wrap mode (screen, not out-of-range)
	outOfRange     mode7OutOfRange
	multiplyWriteA bool // shared mode 7 write latch: next write is a register's high byte
}

// windowRange is one of the two per-layer window position ranges.
type windowRange struct{ left, right uint8 }

// windowMasks describes, for one layer, whether each window (0 and 1)
// is "inside" enabled and how the two combine (spec.md §4.7.1).
type windowMasks struct {
	enableW0, enableW1 bool
	invertW0, invertW1 bool
	combine            windowCombine
}

type windowCombine uint8

const (
	combineOR windowCombine = iota
	combineAND
	combineXOR
	combineXNOR
)

// colorMathOp selects add or subtract for color math (spec.md §4.7.3).
type colorMathOp uint8

const (
	colorMathAdd colorMathOp = iota
	colorMathSub
)

const (
	layerBG1 = 0
	layerBG2 = 1
	layerBG3 = 2
	layerBG4 = 3
	layerOBJ = 4
	layerBD  = 5 // backdrop; only meaningful for window/color-math masks
)

// reg holds every register-file-backed piece of PPU state: the
// register scalars themselves, their latch/open-bus bookkeeping, and
// the per-line/per-frame "currently active" values background.go and
// sprites.go actually render with.
type reg struct {
	// $00 INIDISP
	brightness  uint8
	forcedBlank bool

	// $01 OBSEL
	objBase     uint16 // name base, word address
	objGapBase  uint16 // name select, second table
	objSizeSel  uint8  // selects the small/large size pair

	// $02-$04 OAM
	oamAddr       uint16
	oamAddrShadow uint16
	oamPriorityRotate bool
	oamWriteLatch byte // even-address latch for the low OAM table
	oamLatchPending   bool

	// $05 BGMODE
	bgMode      uint8
	bg3Priority bool // Mode 1 "BG3 high priority" bit
	bg          [4]bgControl

	// $06 MOSAIC
	mosaicSize uint8 // 0-15, pixels-1

	// $07-$0A tile-map base + size are in bg[]; screen size bits too.

	// $0D-$14 scroll registers: modeled inside bg[].
	// BG1 mode-7 scroll shares the BG1HOFS/VOFS ports with mode7.hofs/vofs.

	// $15-$17 VRAM control/address
	vramIncrement        uint16 // 1, 32 or 128
	vramIncrementOnHigh  bool
	vramAddrTranslation  uint8 // 0-3
	vramAddr             uint16
	vramPrefetch         uint16

	// $1A-$20 mode 7
	mode7 mode7Regs
	mpyResult int32 // $2134-$2136 signed 24-bit multiply result

	// $21-$22 CGRAM
	cgramAddr      uint8
	cgramWriteLow  uint8
	cgramWriteHigh bool
	cgramReadHigh  bool

	// $23-$25 window mask selectors, per layer
	winMask [6]windowMasks

	// $26-$29 window 0 left/right, window 1 left/right
	win0, win1 windowRange

	// $2A-$2B combination logic lives inside winMask[i].combine

	// $2C-$2F main/sub screen enables and per-layer window-disable
	mainEnable   [5]bool // BG1-4, OBJ
	subEnable    [5]bool
	mainWindowDisable [5]bool
	subWindowDisable  [5]bool

	// $30-$32 color math
	colorMathEnable     [6]bool // BG1-4, OBJ, backdrop
	colorMathOp         colorMathOp
	colorMathHalve      bool
	fixedColorAddEnable bool   // CGWSEL bit1: sub-screen color math source is the fixed backdrop color
	mainScreenBlack     uint8  // CGWSEL bits4-5: 0=never,1=outside win,2=inside win,3=always
	subScreenBlack      uint8  // CGWSEL bits6-7: same encoding, for the sub-screen
	colorMathWindow   windowMasks
	subBackdropColor  uint16
	directColorBG1    bool // Mode 3/4 direct color enable on BG1

	// $33 SETINI
	interlace    bool
	overscan     bool
	objInterlace bool // "smaller OBJ" pseudo hi-res mode
	extbg        bool
	pseudoHiRes  bool

	// $34-$3F read-only status
	hCounterLatch, vCounterLatch uint16
	latchFlag                   bool

	// open-bus latches (spec.md §4.1)
	openBus1, openBus2 uint8

	// mid-line write tracking (spec.md §4.1)
	midLineDirty     bool
	midLineFromDot   uint16
	scrollWritePending bool
}

func newReg() reg {
	var r reg
	r.forcedBlank = true
	r.vramIncrement = 1
	return r
}

// displayEnabled reports whether output is active (not forced-blanked).
func (r *reg) displayEnabled() bool { return !r.forcedBlank }

// hiRes reports whether the current BG mode plus SETINI bits produce
// a 512-wide frame (spec.md §4.1, §4.7.5).
func (r *reg) hiRes() bool {
	return r.bgMode == 5 || r.bgMode == 6 || r.pseudoHiRes
}

// latchVScrollForFrame is called once per frame at VBlank entry and
// commits every BG layer's vertical scroll latch, so a value written
// during VBlank is in place before the next frame's first line;
// latchScrollForLine commits it again before every rendered line.
func (r *reg) latchVScrollForFrame() {
	for i := range r.bg {
		r.bg[i].vScrollActive = r.bg[i].vScrollLatch
	}
}

// latchScrollForLine commits each BG layer's current H and V scroll
// latch values, applying spec.md §4.1's "latched for next line" rule.
func (r *reg) latchScrollForLine() {
	for i := range r.bg {
		r.bg[i].hScrollActive = r.bg[i].hScrollLatch
		r.bg[i].vScrollActive = r.bg[i].vScrollLatch
	}
}

// ---- register map decode (spec.md §6) ----

// WritePort implements write_port(address_low_byte, byte).
func (p *PPU) WritePort(addrLow uint8, value uint8) {
	r := &p.regs
	midLine := p.tick.dot > renderDot && p.tick.dot < midLineWriteEndDot &&
		p.tick.scanline >= 1 && p.tick.scanline <= p.tick.vDisplay()

	switch addrLow {
	case 0x00: // INIDISP
		r.brightness = value & 0x0F
		r.forcedBlank = value&0x80 != 0
		if midLine {
			r.midLineDirty = true
		}
	case 0x01: // OBSEL
		r.objSizeSel = (value >> 5) & 0x07
		r.objGapBase = uint16(value&0x07) * 0x1000
		r.objBase = uint16(value&0x18) >> 3 * 0x2000
	case 0x02:
		r.oamAddrShadow = (r.oamAddrShadow &^ 0xFF) | uint16(value)
		r.oamAddr = r.oamAddrShadow
	case 0x03:
		r.oamAddrShadow = (r.oamAddrShadow &^ 0xFF00) | (uint16(value&0x01) << 8)
		r.oamPriorityRotate = value&0x80 != 0
		r.oamAddr = r.oamAddrShadow
	case 0x04:
		p.writeOAM(value)
	case 0x05:
		wasHiRes := r.hiRes()
		r.bgMode = value & 0x07
		r.bg3Priority = value&0x08 != 0
		r.bg[0].tileSize16 = value&0x10 != 0
		r.bg[1].tileSize16 = value&0x20 != 0
		r.bg[2].tileSize16 = value&0x40 != 0
		r.bg[3].tileSize16 = value&0x80 != 0
		p.applyModeBpp()
		if r.hiRes() && !wasHiRes {
			p.fb.promoteToWide(int(p.tick.scanline))
		}
	case 0x06:
		r.mosaicSize = value >> 4
		for i := range r.bg {
			r.bg[i].mosaicEnable = value&(1<<uint(i)) != 0
		}
	case 0x07, 0x08, 0x09, 0x0A:
		bg := int(addrLow - 0x07)
		r.bg[bg].size = screenSize(value & 0x03)
		r.bg[bg].tileMapBase = uint16(value&0xFC) << 8
	case 0x0B:
		r.bg[0].tileDataBase = uint16(value&0x0F) << 12
		r.bg[1].tileDataBase = uint16(value&0xF0) << 8
	case 0x0C:
		r.bg[2].tileDataBase = uint16(value&0x0F) << 12
		r.bg[3].tileDataBase = uint16(value&0xF0) << 8
	case 0x0D: // BG1HOFS / M7HOFS shares the port
		p.writeBGHScroll(0, value)
		p.writeMode7H(value)
	case 0x0E: // BG1VOFS / M7VOFS
		p.writeBGVScroll(0, value)
		p.writeMode7V(value)
	case 0x0F:
		p.writeBGHScroll(1, value)
	case 0x10:
		p.writeBGVScroll(1, value)
	case 0x11:
		p.writeBGHScroll(2, value)
	case 0x12:
		p.writeBGVScroll(2, value)
	case 0x13:
		p.writeBGHScroll(3, value)
	case 0x14:
		p.writeBGVScroll(3, value)
	case 0x15:
		r.vramIncrementOnHigh = value&0x80 != 0
		r.vramAddrTranslation = (value >> 2) & 0x03
		switch value & 0x03 {
		case 0:
			r.vramIncrement = 1
		case 1:
			r.vramIncrement = 32
		default:
			r.vramIncrement = 128
		}
	case 0x16:
		r.vramAddr = (r.vramAddr &^ 0xFF) | uint16(value)
	case 0x17:
		r.vramAddr = (r.vramAddr &^ 0xFF00) | (uint16(value) << 8)
	case 0x18:
		p.writeVRAMLow(value)
	case 0x19:
		p.writeVRAMHigh(value)
	case 0x1A:
		r.mode7.wrapScreen = value&0x80 != 0
		sel := mode7OutOfRange((value >> 6) & 0x03)
		if sel > mode7Tile0 {
			p.log.Warnf("ppu: invalid mode 7 out-of-range selector %d, using transparent", sel)
			sel = mode7Transparent
		}
		r.mode7.outOfRange = sel
		r.mode7.hFlip = value&0x01 != 0
		r.mode7.vFlip = value&0x02 != 0
	case 0x1B:
		p.writeMode7Matrix(&r.mode7.a, value)
	case 0x1C:
		p.writeMode7Matrix(&r.mode7.b, value)
	case 0x1D:
		p.writeMode7Matrix(&r.mode7.c, value)
	case 0x1E:
		p.writeMode7Matrix(&r.mode7.d, value)
	case 0x1F:
		p.writeMode7Origin(&r.mode7.cx, value)
	case 0x20:
		p.writeMode7Origin(&r.mode7.cy, value)
	case 0x21:
		r.cgramAddr = value
		r.cgramWriteHigh = false
	case 0x22:
		p.writeCGRAM(value)
	case 0x23, 0x24, 0x25:
		p.writeWindowMaskSelect(addrLow, value)
	case 0x26:
		r.win0.left = value
	case 0x27:
		r.win0.right = value
	case 0x28:
		r.win1.left = value
	case 0x29:
		r.win1.right = value
	case 0x2A:
		p.writeWindowCombine(value, false)
	case 0x2B:
		p.writeWindowCombine(value, true)
	case 0x2C:
		for i := 0; i < 5; i++ {
			r.mainEnable[i] = value&(1<<uint(i)) != 0
		}
	case 0x2D:
		for i := 0; i < 5; i++ {
			r.subEnable[i] = value&(1<<uint(i)) != 0
		}
	case 0x2E:
		for i := 0; i < 5; i++ {
			r.mainWindowDisable[i] = value&(1<<uint(i)) != 0
		}
	case 0x2F:
		for i := 0; i < 5; i++ {
			r.subWindowDisable[i] = value&(1<<uint(i)) != 0
		}
	case 0x30: // CGWSEL
		r.directColorBG1 = value&0x01 != 0
		r.fixedColorAddEnable = value&0x02 != 0
		r.mainScreenBlack = (value >> 4) & 0x03
		r.subScreenBlack = (value >> 6) & 0x03
	case 0x31:
		for i := 0; i < 6; i++ {
			r.colorMathEnable[i] = value&(1<<uint(i)) != 0
		}
		r.colorMathHalve = value&0x40 != 0
		r.colorMathOp = colorMathOp((value >> 7) & 0x01)
	case 0x32:
		r.subBackdropColor = uint16(value & 0x1F)
		if value&0x20 != 0 {
			r.subBackdropColor |= uint16(value&0x1F) << 5
		}
		if value&0x40 != 0 {
			r.subBackdropColor |= uint16(value&0x1F) << 10
		}
	case 0x33:
		wasWide := r.pseudoHiRes
		r.interlace = value&0x01 != 0
		r.overscan = value&0x04 != 0
		r.objInterlace = value&0x02 != 0
		r.pseudoHiRes = value&0x08 != 0
		r.extbg = value&0x40 != 0
		if r.pseudoHiRes && !wasWide {
			p.fb.promoteToWide(int(p.tick.scanline))
		}
	default:
		p.log.Warnf("ppu: write to unmapped register $21%02X (value $%02X) ignored", addrLow, value)
	}
}

// ReadPort implements read_port(address_low_byte). It returns only a
// byte: an open-bus read of the host signature described in spec.md §6
// ("byte or open_bus_request") is represented by returning the
// relevant latch, never an error.
func (p *PPU) ReadPort(addrLow uint8) uint8 {
	r := &p.regs
	switch addrLow {
	case 0x34, 0x35, 0x36: // MPYL/M/H
		shift := uint(addrLow-0x34) * 8
		v := uint8(r.mpyResult >> shift)
		r.openBus1 = v
		return v
	case 0x37: // SLHV - H/V counter latch (side effect, returns open bus)
		r.hCounterLatch = p.tick.dot / 4
		r.vCounterLatch = p.tick.scanline
		r.latchFlag = true
		return r.openBus1
	case 0x38: // OAM data read
		v := p.readOAM()
		r.openBus1 = v
		return v
	case 0x39:
		v := p.readVRAMLow()
		r.openBus1 = v
		return v
	case 0x3A:
		v := p.readVRAMHigh()
		r.openBus1 = v
		return v
	case 0x3B:
		v := p.readCGRAM()
		r.openBus2 = v
		return v
	case 0x3C:
		v := uint8(r.hCounterLatch)
		if addrLow == 0x3C {
			v = uint8(r.hCounterLatch & 0xFF)
		}
		r.openBus2 = v
		return v
	case 0x3D:
		v := uint8((r.hCounterLatch >> 8) & 0x01)
		r.openBus2 = v
		return v
	case 0x3E: // STAT77
		v := p.status77()
		r.openBus1 = v
		return v
	case 0x3F: // STAT78
		v := p.status78()
		r.openBus2 = v
		return v
	default:
		p.log.Warnf("ppu: read of unmapped register $21%02X, returning open bus", addrLow)
		return r.openBus1
	}
}

func (p *PPU) status77() uint8 {
	var v uint8
	if p.spriteOverflow {
		v |= 0x40
	}
	if p.spritePixelOverflow {
		v |= 0x80
	}
	return v | 0x01 // PPU1 version number, low nibble fixed
}

func (p *PPU) status78() uint8 {
	var v uint8
	if p.timing == Pal {
		v |= 0x10
	}
	if p.tick.oddFrame {
		v |= 0x80
	}
	if p.regs.latchFlag {
		v |= 0x40
		p.regs.latchFlag = false
	}
	return v
}

func (p *PPU) applyModeBpp() {
	type bppPair struct{ bg1, bg2, bg3, bg4 uint8 }
	table := map[uint8]bppPair{
		0: {2, 2, 2, 2},
		1: {4, 4, 2, 0},
		2: {4, 4, 0, 0},
		3: {8, 4, 0, 0},
		4: {8, 2, 0, 0},
		5: {4, 2, 0, 0},
		6: {4, 0, 0, 0},
		7: {8, 0, 0, 0},
	}
	bpp := table[p.regs.bgMode]
	p.regs.bg[0].bpp = bpp.bg1
	p.regs.bg[1].bpp = bpp.bg2
	p.regs.bg[2].bpp = bpp.bg3
	p.regs.bg[3].bpp = bpp.bg4
}

func (p *PPU) writeBGHScroll(bg int, value uint8) {
	b := &p.regs.bg[bg]
	if !b.hWriteHigh {
		b.hScrollLatch = (b.hScrollLatch &^ 0xFF) | uint16(value)
		b.hWriteHigh = true
	} else {
		b.hScrollLatch = (b.hScrollLatch &^ 0x0300) | (uint16(value&0x03) << 8)
		b.hWriteHigh = false
	}
	midLine := p.tick.dot > renderDot && p.tick.dot < midLineWriteEndDot &&
		p.tick.scanline >= 1 && p.tick.scanline <= p.tick.vDisplay()
	if midLine {
		p.regs.midLineDirty = true
		p.regs.scrollWritePending = true
	}
}

func (p *PPU) writeBGVScroll(bg int, value uint8) {
	b := &p.regs.bg[bg]
	if !b.vWriteHigh {
		b.vScrollLatch = (b.vScrollLatch &^ 0xFF) | uint16(value)
		b.vWriteHigh = true
	} else {
		b.vScrollLatch = (b.vScrollLatch &^ 0x0300) | (uint16(value&0x03) << 8)
		b.vWriteHigh = false
	}
}

func (p *PPU) writeMode7H(value uint8) {
	writeMode7Coord(&p.regs.mode7.hofs, &p.regs.mode7.multiplyWriteA, value)
}

func (p *PPU) writeMode7V(value uint8) {
	writeMode7Coord(&p.regs.mode7.vofs, &p.regs.mode7.multiplyWriteA, value)
}

// writeMode7Coord implements the shared low/high 2-write latch used
// by every mode-7 13-bit signed register.
func writeMode7Coord(dst *int16, highPending *bool, value uint8) {
	if !*highPending {
		*dst = (*dst &^ 0xFF) | int16(value)
		*highPending = true
	} else {
		raw := (*dst & 0x00FF) | (int16(value&0x1F) << 8)
		*dst = signExtend13(raw)
		*highPending = false
	}
}

func signExtend13(v int16) int16 {
	v &= 0x1FFF
	if v&0x1000 != 0 {
		v |= ^int16(0x1FFF)
	}
	return v
}

func (p *PPU) writeMode7Matrix(dst *int16, value uint8) {
	// A/B/C/D share one 16-bit 2-write latch per the real register
	// protocol; mpyResult (A times the high byte of B) is recomputed each
	// time a 2-write sequence to any of A-D completes.
	m := &p.regs.mode7
	if !m.multiplyWriteA {
		*dst = int16(value)
		m.multiplyWriteA = true
	} else {
		*dst = int16(uint16(value)<<8 | uint16(uint8(*dst)))
		m.multiplyWriteA = false
		p.regs.mpyResult = int32(p.regs.mode7.a) * int32(int8(p.regs.mode7.b>>8))
	}
}

func (p *PPU) writeMode7Origin(dst *int16, value uint8) {
	writeMode7Coord(dst, &p.regs.mode7.multiplyWriteA, value)
}

func (p *PPU) writeWindowMaskSelect(addrLow uint8, value uint8) {
	// $23=BG1/BG2, $24=BG3/BG4, $25=OBJ/color-math
	lo, hi := layersForWindowSelect(addrLow)
	applyWindowSelectNibble(&p.regs.winMask[lo], value&0x0F)
	applyWindowSelectNibble(&p.regs.winMask[hi], value>>4)
	if addrLow == 0x25 {
		applyWindowSelectNibble(&p.regs.colorMathWindow, value>>4)
	}
}

func layersForWindowSelect(addrLow uint8) (lo, hi int) {
	switch addrLow {
	case 0x23:
		return layerBG1, layerBG2
	case 0x24:
		return layerBG3, layerBG4
	default:
		return layerOBJ, layerOBJ
	}
}

func applyWindowSelectNibble(w *windowMasks, nibble uint8) {
	w.enableW0 = nibble&0x01 != 0
	w.invertW0 = nibble&0x02 != 0
	w.enableW1 = nibble&0x04 != 0
	w.invertW1 = nibble&0x08 != 0
}

func (p *PPU) writeWindowCombine(value uint8, forceBlackGroup bool) {
	set := func(i int, bits uint8) {
		p.regs.winMask[i].combine = windowCombine(bits & 0x03)
	}
	if !forceBlackGroup {
		set(layerBG1, value)
		set(layerBG2, value>>2)
		set(layerBG3, value>>4)
		set(layerBG4, value>>6)
	} else {
		set(layerOBJ, value)
		p.regs.colorMathWindow.combine = windowCombine((value >> 2) & 0x03)
	}
}
