package ppu

// layerTag identifies which layer a resolved pixel came from, for
// color-math layer-enable checks (spec.md §4.6, §4.7.3).
type layerTag uint8

const (
	tagBackdrop layerTag = iota
	tagBG1
	tagBG2
	tagBG3
	tagBG4
	tagOBJ
)

// renderedPixel is the priority resolver's output for one column on
// one screen (main or sub): the winning pixel, its source layer, and
// whether it came from the OBJ layer.
type renderedPixel struct {
	pixel Pixel
	layer layerTag
	isOBJ bool
}

// slotEntry is one entry of a fixed 12- or 8-slot priority ordering
// (spec.md §4.6): lower index wins.
type slotEntry struct {
	layer   layerTag
	bgHigh  bool // for BG slots: match the tile's high/low priority bit
	objPrio uint8 // for OBJ slots: match this OAM priority value
	isOBJ   bool
}

var slots01 = [12]slotEntry{
	{layer: tagOBJ, isOBJ: true, objPrio: 3},
	{layer: tagBG1, bgHigh: true},
	{layer: tagBG2, bgHigh: true},
	{layer: tagOBJ, isOBJ: true, objPrio: 2},
	{layer: tagBG1, bgHigh: false},
	{layer: tagBG2, bgHigh: false},
	{layer: tagOBJ, isOBJ: true, objPrio: 1},
	{layer: tagBG3, bgHigh: true},
	{layer: tagBG4, bgHigh: true},
	{layer: tagOBJ, isOBJ: true, objPrio: 0},
	{layer: tagBG3, bgHigh: false},
	{layer: tagBG4, bgHigh: false},
}

var slots27 = [8]slotEntry{
	{layer: tagOBJ, isOBJ: true, objPrio: 3},
	{layer: tagBG1, bgHigh: true},
	{layer: tagOBJ, isOBJ: true, objPrio: 2},
	{layer: tagBG2, bgHigh: true},
	{layer: tagOBJ, isOBJ: true, objPrio: 1},
	{layer: tagBG1, bgHigh: false},
	{layer: tagOBJ, isOBJ: true, objPrio: 0},
	{layer: tagBG2, bgHigh: false},
}

func bgIndexForTag(t layerTag) int {
	switch t {
	case tagBG1:
		return 0
	case tagBG2:
		return 1
	case tagBG3:
		return 2
	case tagBG4:
		return 3
	}
	return -1
}

// resolvePriority implements spec.md §4.6 for one screen column:
// enabled is the per-layer main/sub selection mask (BG1-4, OBJ).
func (p *PPU) resolvePriority(x int, enabled [5]bool) renderedPixel {
	obj := p.objPixels[x]

	candidate := func(e slotEntry) (Pixel, bool) {
		if e.isOBJ {
			if !enabled[layerOBJ] || obj.pixel.transparent() || obj.priority != e.objPrio {
				return Pixel{}, false
			}
			return obj.pixel, true
		}
		idx := bgIndexForTag(e.layer)
		if !enabled[idx] {
			return Pixel{}, false
		}
		px := p.bgPixels[idx][x]
		if px.transparent() || px.priority != e.bgHigh {
			return Pixel{}, false
		}
		return px, true
	}

	if p.regs.bgMode == 1 && p.regs.bg3Priority {
		if px := p.bgPixels[2][x]; enabled[layerBG3] && !px.transparent() && px.priority {
			return renderedPixel{pixel: px, layer: tagBG3}
		}
	}

	slots := slots27[:]
	if p.regs.bgMode == 0 || p.regs.bgMode == 1 {
		slots = slots01[:]
	}

	for _, e := range slots {
		if px, ok := candidate(e); ok {
			return renderedPixel{pixel: px, layer: e.layer, isOBJ: e.isOBJ}
		}
	}

	return renderedPixel{layer: tagBackdrop}
}
