// Command ppuview is a minimal host for the ppu package: it drives the
// PPU's timing engine with Tick, paints a small test pattern into
// VRAM/CGRAM through the register ports, and displays the resulting
// framebuffer in a window. It exists to exercise the package the way a
// console's video output would, not as a full emulator front end —
// the CPU/APU/cartridge side of a real system is out of scope here.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"strings"

	eimage "github.com/ebitenui/ebitenui/image"

	"github.com/ebitenui/ebitenui"
	"github.com/ebitenui/ebitenui/widget"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.design/x/clipboard"
	"golang.org/x/image/font/basicfont"

	"github.com/dotline-emu/ppu16/ppu"
)

var fontFace = text.NewGoXFace(basicfont.Face7x13)

const windowScale = 3

// Viewer implements ebiten.Game, wrapping a *ppu.PPU and the small
// ebitenui overlay used to copy the current frame to the clipboard.
type Viewer struct {
	core      *ppu.PPU
	offscreen *ebiten.Image
	ui        *ebitenui.UI
	status    *widget.Text
	paused    bool
	frames    uint64
}

func newViewer(timing ppu.Timing, debug bool) *Viewer {
	core := ppu.New(timing)
	if debug {
		core.SetLogger(stderrLogger{})
	}
	paintTestPattern(core)

	v := &Viewer{core: core}
	v.buildUI()
	return v
}

// stderrLogger is the -debug logger: it routes the Logger collaborator
// (ppu/collaborators.go) to the standard logger instead of the silent
// default.
type stderrLogger struct{}

func (stderrLogger) Warnf(format string, args ...any) { log.Printf(format, args...) }

// paintTestPattern wires a visible BG1 Mode 0 checkerboard and a
// bright backdrop so the window shows something immediately, grounded
// on spec.md's "BG1 checkerboard, Mode 0" testable scenario.
func paintTestPattern(p *ppu.PPU) {
	p.WritePort(0x00, 0x80) // forced blank, so the VRAM write path is open
	p.WritePort(0x05, 0x00) // BG mode 0
	p.WritePort(0x07, 0x10) // BG1 tile map base $1000, 32x32
	p.WritePort(0x2C, 0x01) // BG1 on the main screen
	p.WritePort(0x15, 0x80) // VRAM address increments after the high byte

	// CGRAM: index 0 backdrop (dark blue), index 1 (BG1 palette 0,
	// color 1) bright yellow.
	writeCGRAM(p, 0, 0x3800)
	writeCGRAM(p, 1, 0x03FF)

	// VRAM: one 2bpp tile, a solid color-1 fill, at word 0.
	p.WritePort(0x16, 0x00)
	p.WritePort(0x17, 0x00)
	for row := 0; row < 8; row++ {
		p.WritePort(0x18, 0xFF) // bitplane 0, all set -> color index 1
		p.WritePort(0x19, 0x00) // bitplane 1
	}

	// BG1 tile map: checkerboard of tile 0 / tile (transparent) entries.
	p.WritePort(0x16, 0x00)
	p.WritePort(0x17, 0x10) // tile map base the tileMapBase field expects at $07
	for row := 0; row < 32; row++ {
		for col := 0; col < 32; col++ {
			tile := uint16(0)
			if (row+col)%2 == 1 {
				tile = 0x3FF // an out-of-range tile number, decodes as all-zero/transparent
			}
			p.WritePort(0x18, uint8(tile))
			p.WritePort(0x19, uint8(tile>>8))
		}
	}

	p.WritePort(0x00, 0x0F) // display on, full brightness
}

// loadVRAMFixture replaces the test pattern's VRAM contents with a raw
// little-endian word dump, for inspecting a captured frame's tile/map
// data instead of the synthetic checkerboard.
func loadVRAMFixture(p *ppu.PPU, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p.WritePort(0x00, 0x80) // forced blank, so the write path is open
	p.WritePort(0x16, 0x00)
	p.WritePort(0x17, 0x00)
	for i := 0; i+1 < len(data); i += 2 {
		p.WritePort(0x18, data[i])
		p.WritePort(0x19, data[i+1])
	}
	p.WritePort(0x00, 0x0F) // display back on, full brightness
	return nil
}

func writeCGRAM(p *ppu.PPU, addr uint8, color uint16) {
	p.WritePort(0x21, addr)
	p.WritePort(0x22, uint8(color))
	p.WritePort(0x22, uint8(color>>8))
}

func (v *Viewer) buildUI() {
	v.status = widget.NewText(widget.TextOpts.Text("ppuview", fontFace, color.White))

	buttonImage := &widget.ButtonImage{
		Idle:    eimage.NewNineSliceColor(color.NRGBA{0x25, 0x25, 0x3a, 0xff}),
		Hover:   eimage.NewNineSliceColor(color.NRGBA{0x4a, 0x4a, 0x8a, 0xff}),
		Pressed: eimage.NewNineSliceColor(color.NRGBA{0x5a, 0x5a, 0x9a, 0xff}),
	}
	button := widget.NewButton(
		widget.ButtonOpts.Image(buttonImage),
		widget.ButtonOpts.Text("Copy frame", fontFace, &widget.ButtonTextColor{Idle: color.White}),
		widget.ButtonOpts.TextPadding(widget.NewInsetsSimple(8)),
		widget.ButtonOpts.ClickedHandler(func(args *widget.ButtonClickedEventArgs) {
			v.copyFrameToClipboard()
		}),
	)

	root := widget.NewContainer(
		widget.ContainerOpts.Layout(widget.NewRowLayout(widget.RowLayoutOpts.Direction(widget.DirectionVertical))),
	)
	root.AddChild(v.status)
	root.AddChild(button)

	v.ui = &ebitenui.UI{Container: root}
}

// copyFrameToClipboard PNG-encodes the current framebuffer and writes
// it to the system clipboard, the way a debug "copy this frame"
// action would in a full front end.
func (v *Viewer) copyFrameToClipboard() {
	w, h := v.core.FrameSize()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fb := v.core.FrameBuffer()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fb[y*512+x]
			img.Set(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xFF})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Printf("ppuview: encode frame: %v", err)
		return
	}
	clipboard.Write(clipboard.FmtImage, buf.Bytes())
}

// handleHotkeys implements the debug hotkeys: space pauses/resumes,
// period single-steps one scanline while paused, and C dumps VRAM/OAM/
// CGRAM hex to the clipboard.
func (v *Viewer) handleHotkeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.paused = !v.paused
	}
	if v.paused && inpututil.IsKeyJustPressed(ebiten.KeyPeriod) {
		start := v.core.Scanline()
		for v.core.Scanline() == start {
			v.core.Tick(1)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		v.copyMemoryDumpToClipboard()
	}
}

func (v *Viewer) copyMemoryDumpToClipboard() {
	clipboard.Write(clipboard.FmtText, v.core.DebugDump())
}

func (v *Viewer) Update() error {
	v.handleHotkeys()
	if !v.paused {
		// one NTSC frame's worth of master cycles per displayed frame.
		v.core.Tick(262 * 1364)
		v.frames++
	}
	if v.core.FrameComplete() {
		v.core.ClearFrameComplete()
	}
	v.status.Label = fmt.Sprintf("scanline %3d  dot %4d  frame %d%s",
		v.core.Scanline(), v.core.ScanlineMasterCycles(), v.frames, pausedSuffix(v.paused))
	v.ui.Update()
	return nil
}

func pausedSuffix(paused bool) string {
	if paused {
		return "  [paused]"
	}
	return ""
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	w, h := v.core.FrameSize()
	if v.offscreen == nil || v.offscreen.Bounds().Dx() != w || v.offscreen.Bounds().Dy() != h {
		v.offscreen = ebiten.NewImage(w, h)
	}

	pixels := make([]byte, w*h*4)
	fb := v.core.FrameBuffer()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fb[y*512+x]
			i := (y*w + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = c.R, c.G, c.B, 0xFF
		}
	}
	v.offscreen.WritePixels(pixels)

	var opts ebiten.DrawImageOptions
	opts.GeoM.Scale(windowScale, windowScale)
	screen.DrawImage(v.offscreen, &opts)

	v.ui.Draw(screen)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	w, h := v.core.FrameSize()
	return w * windowScale, h * windowScale
}

func main() {
	regionFlag := flag.String("region", "ntsc", "video region: ntsc or pal")
	vramFixture := flag.String("vram-fixture", "", "path to a raw VRAM dump to load instead of the built-in test pattern (optional)")
	debug := flag.Bool("debug", false, "log PPU warnings (unmapped registers, out-of-range selectors) to stderr")
	flag.Parse()

	var timing ppu.Timing
	switch strings.ToLower(*regionFlag) {
	case "ntsc":
		timing = ppu.Ntsc
	case "pal":
		timing = ppu.Pal
	default:
		log.Fatalf("ppuview: invalid region %q (use ntsc or pal)", *regionFlag)
	}

	if err := clipboard.Init(); err != nil {
		log.Printf("ppuview: clipboard unavailable: %v", err)
	}

	ebiten.SetWindowTitle("ppuview")
	ebiten.SetWindowSize(256*windowScale, 224*windowScale)

	v := newViewer(timing, *debug)
	if *vramFixture != "" {
		if err := loadVRAMFixture(v.core, *vramFixture); err != nil {
			log.Fatalf("ppuview: loading VRAM fixture: %v", err)
		}
	}
	fmt.Println("ppuview: running a free-standing PPU core with a synthetic test pattern")
	if err := ebiten.RunGame(v); err != nil {
		log.Fatal(err)
	}
}
