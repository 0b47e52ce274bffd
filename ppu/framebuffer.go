package ppu

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

const (
	maxFBWidth  = 512
	maxFBHeight = 478
)

// RGB8 is one output pixel, 8 bits per channel (spec.md §4.8).
type RGB8 struct{ R, G, B uint8 }

// Framebuffer is the PPU's single owned 512x478 output buffer. Its
// logical size can be smaller: it is snapshotted at frame start and
// changes mid-frame only when promoteToWide widens it to 512;
// frame_size() reports that logical size, never the backing array's
// physical extent.
type Framebuffer struct {
	pixels  [maxFBWidth * maxFBHeight]RGB8
	w, h    int
	wasWide bool // true once this frame has been promoted to 512 wide
}

func newFramebuffer() Framebuffer {
	return Framebuffer{w: 256, h: 224}
}

func (f *Framebuffer) width() int  { return f.w }
func (f *Framebuffer) height() int { return f.h }

func (f *Framebuffer) set(x, y int, c RGB8) {
	if x < 0 || x >= maxFBWidth || y < 0 || y >= maxFBHeight {
		return
	}
	f.pixels[y*maxFBWidth+x] = c
}

// set2x writes the same color to both hi-res-width columns for pixel
// column x (spec.md §4.7.5).
func (f *Framebuffer) set2x(x, y int, c RGB8) {
	f.set(2*x, y, c)
	f.set(2*x+1, y, c)
}

// snapshotSize fixes the frame's logical dimensions at frame start
// (spec.md §4.3, §4.8) and, if hi-res turned off since the prior
// frame, resets the mid-frame-promotion flag.
func (f *Framebuffer) snapshotSize(hHiRes, vHiRes bool) {
	f.w = 256
	if hHiRes {
		f.w = 512
	}
	f.h = 224
	if vHiRes {
		f.h = 448
	}
	f.wasWide = hHiRes
}

// promoteToWide is called the moment hi-res/pseudo-hi-res is enabled
// mid-frame (spec.md §4.1, §4.7.5): every already-rendered line up to
// (but not including) the current one is horizontally doubled in
// place using nearest-neighbor scaling, matching the pack's use of
// golang.org/x/image/draw for exactly this kind of in-place upscale.
func (f *Framebuffer) promoteToWide(renderedUpTo int) {
	if f.wasWide {
		return
	}
	f.wasWide = true
	f.w = 512

	srcImg := image.NewRGBA(image.Rect(0, 0, 256, renderedUpTo))
	for y := 0; y < renderedUpTo; y++ {
		for x := 0; x < 256; x++ {
			c := f.pixels[y*maxFBWidth+x]
			srcImg.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	dstImg := image.NewRGBA(image.Rect(0, 0, 512, renderedUpTo))
	draw.NearestNeighbor.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), draw.Over, nil)

	for y := 0; y < renderedUpTo; y++ {
		for x := 0; x < 512; x++ {
			c := dstImg.RGBAAt(x, y)
			f.pixels[y*maxFBWidth+x] = RGB8{R: c.R, G: c.G, B: c.B}
		}
	}
}
