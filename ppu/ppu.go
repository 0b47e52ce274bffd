// Package ppu implements the picture processing unit of a 16-bit
// console: register decode, VRAM/OAM/CGRAM, the dot-accurate scanline
// state machine, per-layer background and sprite pipelines, priority
// resolution, windowing and color math, and the framebuffer they all
// feed. The CPU, APU and cartridge are external collaborators — the
// PPU never references them directly.
package ppu

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Timing selects the console's video region, fixing scanline counts
// and the NTSC/PAL field-length quirks in timing.go.
type Timing int

const (
	Ntsc Timing = iota
	Pal
)

// Memory array sizes (spec.md §3).
const (
	vramWords = 32768
	vramMask  = vramWords - 1

	oamLowBytes   = 0x200
	oamExtraBytes = 32
	oamAddrMask   = 0x3FF

	cgramWords = 256
)

// TickEffect is the only value tick() returns to the host.
type TickEffect int

const (
	EffectNone TickEffect = iota
	EffectFrameComplete
)

// PPU is the top-level rendering and timing engine. It is owned
// exclusively by its creator: the host never holds a second reference
// to its VRAM/OAM/CGRAM or framebuffer except through the port
// operations and the read-only slice returned by FrameBuffer.
type PPU struct {
	timing Timing
	log    Logger

	vram  [vramWords]uint16
	oam   [oamLowBytes]byte
	oamHi [oamExtraBytes]byte
	cgram [cgramWords]uint16

	regs reg
	tick tickState
	fb   Framebuffer

	tiles *lru.Cache[tileCacheKey, decodedTile]

	// per-line scratch buffers, rebuilt every render line, never
	// retained across lines.
	bgPixels  [4][maxFBWidth]Pixel
	objPixels [maxFBWidth]objPixel

	// per-frame sticky flags (spec.md §3 invariants)
	spriteOverflow       bool
	spritePixelOverflow  bool
	pendingPixelOverflow bool

	frameCompletePending bool
	controllerLatch      ControllerLatch
}

// New constructs a PPU with VRAM/OAM/CGRAM zeroed, forced-blank on,
// and the dot cursor at line 0 dot 0 (spec.md §6).
func New(timing Timing) *PPU {
	p := &PPU{timing: timing, log: discardLogger{}}
	cache, _ := lru.New[tileCacheKey, decodedTile](tileCacheSize)
	p.tiles = cache
	p.Reset()
	return p
}

// SetLogger installs the diagnostic sink used for spec.md §7 "log
// warning" conditions. Passing nil restores the discarding default.
func (p *PPU) SetLogger(l Logger) {
	if l == nil {
		l = discardLogger{}
	}
	p.log = l
}

// SetControllerLatch installs the collaborator notified on a
// controller-latch rising edge (spec.md §6).
func (p *PPU) SetControllerLatch(c ControllerLatch) {
	p.controllerLatch = c
}

// Reset forces blanking on and restores register defaults, matching
// power-on state. VRAM/OAM/CGRAM contents are NOT cleared by Reset —
// only New zeroes them, mirroring hardware reset behavior where
// memory arrays retain whatever a running program left in them.
func (p *PPU) Reset() {
	p.regs = newReg()
	p.tick = newTickState(p.timing)
	p.fb = newFramebuffer()
	p.spriteOverflow = false
	p.spritePixelOverflow = false
	p.pendingPixelOverflow = false
	p.frameCompletePending = false
	if p.tiles != nil {
		p.tiles.Purge()
	}
}

// Tick advances the PPU by masterCycles master-clock cycles (each
// master cycle advances the dot cursor by one dot; four dots make one
// pixel column in non-hi-res mode) and reports whether a frame
// completed during the advance.
func (p *PPU) Tick(masterCycles uint64) TickEffect {
	effect := TickEffect(EffectNone)
	for i := uint64(0); i < masterCycles; i++ {
		if p.advanceDot() {
			effect = EffectFrameComplete
		}
	}
	return effect
}

// FrameBuffer returns a read-only view of the framebuffer. Valid to
// call any time between ticks; the backing array is never reallocated
// so the slice remains valid until the next Tick call mutates pixels
// in place.
func (p *PPU) FrameBuffer() []RGB8 {
	return p.fb.pixels[:]
}

// FrameSize reports the logical dimensions snapshotted at the start of
// the current frame, widened to 512 if hi-res was enabled mid-frame
// (spec.md §4.8).
func (p *PPU) FrameSize() (w, h int) {
	return p.fb.width(), p.fb.height()
}

// VBlankFlag reports the VBlank status bit used by CPU interrupt
// polling (register $34 region, spec.md §6).
func (p *PPU) VBlankFlag() bool {
	return p.tick.scanline > p.tick.vDisplay()
}

// HBlankFlag reports whether the dot cursor is past the visible
// render region of the current line.
func (p *PPU) HBlankFlag() bool {
	return p.tick.dot < renderDot || p.tick.dot >= renderEndDot
}

// Scanline returns the current scanline number.
func (p *PPU) Scanline() uint16 {
	return p.tick.scanline
}

// ScanlineMasterCycles returns the dot cursor within the current
// scanline, for timing introspection.
func (p *PPU) ScanlineMasterCycles() uint16 {
	return p.tick.dot
}

// FrameComplete reports whether a frame finished since the flag was
// last cleared. Edge-triggered per spec.md §5: the host must clear it
// with ClearFrameComplete before the next frame boundary or the flag
// simply stays set without corrupting PPU state.
func (p *PPU) FrameComplete() bool {
	return p.frameCompletePending
}

// ClearFrameComplete clears the edge-triggered frame-complete flag.
func (p *PPU) ClearFrameComplete() {
	p.frameCompletePending = false
}

// DebugDump renders VRAM, OAM, and CGRAM as a hex listing, for a host's
// "copy memory to clipboard" debug command.
func (p *PPU) DebugDump() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "VRAM (%d words)\n", len(p.vram))
	for i := 0; i < len(p.vram); i += 8 {
		fmt.Fprintf(&b, "%04X:", i)
		for j := i; j < i+8 && j < len(p.vram); j++ {
			fmt.Fprintf(&b, " %04X", p.vram[j])
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nOAM (%d bytes)\n", len(p.oam))
	for i := 0; i < len(p.oam); i += 16 {
		fmt.Fprintf(&b, "%03X:", i)
		for j := i; j < i+16 && j < len(p.oam); j++ {
			fmt.Fprintf(&b, " %02X", p.oam[j])
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nCGRAM (%d words)\n", len(p.cgram))
	for i := 0; i < len(p.cgram); i += 8 {
		fmt.Fprintf(&b, "%02X:", i)
		for j := i; j < i+8 && j < len(p.cgram); j++ {
			fmt.Fprintf(&b, " %04X", p.cgram[j])
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// LatchCounters performs the same H/V counter latch a $2137 (SLHV)
// register access does, and additionally notifies the installed
// ControllerLatch collaborator (spec.md §6): the host calls this on
// the rising edge of the external controller-latch pin, which on real
// hardware shares the counter-latch circuit with SLHV.
func (p *PPU) LatchCounters(elapsedMCycles uint64) {
	p.regs.hCounterLatch = p.tick.dot / 4
	p.regs.vCounterLatch = p.tick.scanline
	p.regs.latchFlag = true
	if p.controllerLatch != nil {
		p.controllerLatch.UpdateHVLatch(p.regs.hCounterLatch, p.regs.vCounterLatch, elapsedMCycles)
	}
}
