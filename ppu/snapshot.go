package ppu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Snapshot is the complete persisted PPU state spec.md §6 describes:
// every memory array, every register scalar, and the (scanline, dot,
// oddFrame, hHiResFrame, vHiResFrame, open-bus) tuple needed to resume
// mid-frame. The framebuffer is deliberately excluded — it is
// reconstructed by re-rendering, not restored.
type Snapshot struct {
	VRAM  [vramWords]uint16
	OAM   [oamLowBytes]byte
	OAMHi [oamExtraBytes]byte
	CGRAM [cgramWords]uint16

	Regs reg

	Scanline    uint16
	Dot         uint16
	OddFrame    bool
	HHiResFrame bool
	VHiResFrame bool

	SpriteOverflow       bool
	SpritePixelOverflow  bool
	PendingPixelOverflow bool
	FrameCompletePending bool
}

// Save captures a Snapshot of the PPU's current state (spec.md §6).
func (p *PPU) Save() Snapshot {
	return Snapshot{
		VRAM:  p.vram,
		OAM:   p.oam,
		OAMHi: p.oamHi,
		CGRAM: p.cgram,

		Regs: p.regs,

		Scanline:    p.tick.scanline,
		Dot:         p.tick.dot,
		OddFrame:    p.tick.oddFrame,
		HHiResFrame: p.tick.hHiResFrame,
		VHiResFrame: p.tick.vHiResFrame,

		SpriteOverflow:       p.spriteOverflow,
		SpritePixelOverflow:  p.spritePixelOverflow,
		PendingPixelOverflow: p.pendingPixelOverflow,
		FrameCompletePending: p.frameCompletePending,
	}
}

// Restore replaces the PPU's entire state with a previously Saved
// Snapshot (spec.md §6). The framebuffer is left as-is; the caller is
// expected to let the next rendered lines repopulate it, matching real
// hardware's "nothing is displayed until the raster catches up" resume
// behavior.
func (p *PPU) Restore(s Snapshot) {
	p.vram = s.VRAM
	p.oam = s.OAM
	p.oamHi = s.OAMHi
	p.cgram = s.CGRAM

	p.regs = s.Regs

	p.tick.scanline = s.Scanline
	p.tick.dot = s.Dot
	p.tick.oddFrame = s.OddFrame
	p.tick.hHiResFrame = s.HHiResFrame
	p.tick.vHiResFrame = s.VHiResFrame
	p.tick.cachedVDisplay = p.vDisplayFromRegs()

	p.spriteOverflow = s.SpriteOverflow
	p.spritePixelOverflow = s.SpritePixelOverflow
	p.pendingPixelOverflow = s.PendingPixelOverflow
	p.frameCompletePending = s.FrameCompletePending

	if p.tiles != nil {
		p.tiles.Purge()
	}
}

// snapshotFlags packs the handful of bool fields Snapshot carries
// outside Regs into one byte for the wire format.
func snapshotFlags(s *Snapshot) uint8 {
	var f uint8
	if s.OddFrame {
		f |= 1 << 0
	}
	if s.HHiResFrame {
		f |= 1 << 1
	}
	if s.VHiResFrame {
		f |= 1 << 2
	}
	if s.SpriteOverflow {
		f |= 1 << 3
	}
	if s.SpritePixelOverflow {
		f |= 1 << 4
	}
	if s.PendingPixelOverflow {
		f |= 1 << 5
	}
	if s.FrameCompletePending {
		f |= 1 << 6
	}
	return f
}

func applySnapshotFlags(s *Snapshot, f uint8) {
	s.OddFrame = f&(1<<0) != 0
	s.HHiResFrame = f&(1<<1) != 0
	s.VHiResFrame = f&(1<<2) != 0
	s.SpriteOverflow = f&(1<<3) != 0
	s.SpritePixelOverflow = f&(1<<4) != 0
	s.PendingPixelOverflow = f&(1<<5) != 0
	s.FrameCompletePending = f&(1<<6) != 0
}

// MarshalSnapshot serializes s into a zstd-compressed byte stream
// (spec.md §6's "compact serialized form"), using klauspost/compress.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	fields := []any{
		s.VRAM, s.OAM, s.OAMHi, s.CGRAM,
		s.Regs,
		s.Scanline, s.Dot,
		snapshotFlags(&s),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("ppu: encode snapshot: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("ppu: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// UnmarshalSnapshot is MarshalSnapshot's inverse.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ppu: zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ppu: decompress snapshot: %w", err)
	}

	r := bytes.NewReader(raw)
	var s Snapshot
	var flags uint8
	fields := []any{
		&s.VRAM, &s.OAM, &s.OAMHi, &s.CGRAM,
		&s.Regs,
		&s.Scanline, &s.Dot,
		&flags,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Snapshot{}, fmt.Errorf("ppu: decode snapshot: %w", err)
		}
	}
	applySnapshotFlags(&s, flags)

	return s, nil
}
