package soft

import (
	"image"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/gal"
	"golang.org/x/image/draw"
)

type Texture struct {
	device    *Device
	label     string
	width     uint32
	height    uint32
	format    gputypes.TextureFormat
	usage     gputypes.TextureUsage
	bpp       int
	bytes     int
	mips      [][]byte
	layouts   []gal.Layout
	destroyed bool
}

func (t *Texture) Layout(level uint32) gal.Layout {
	if int(level) >= len(t.layouts) {
		return gal.LayoutUndefined
	}
	return t.layouts[level]
}

func (t *Texture) Format() gputypes.TextureFormat { return t.format }
func (t *Texture) Width() uint32                  { return t.width }
func (t *Texture) Height() uint32                 { return t.height }
func (t *Texture) MipCount() uint32               { return uint32(len(t.mips)) }
func (t *Texture) Usage() gputypes.TextureUsage   { return t.usage }
func (t *Texture) Label() string                  { return t.label }

func (t *Texture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.device.release(t.bytes)
	t.device.count(func(s *Stats) { s.TexturesDestroyed++ })
}

func (t *Texture) Destroyed() bool {
	return t.destroyed
}

// MipData exposes the texels of a level for inspection.
func (t *Texture) MipData(level uint32) []byte {
	return t.mips[level]
}

// downsample scales level src into level dst with the blit's filter.
// Formats other than 8-bit one or four channel are left untouched.
func (t *Texture) downsample(src, dst uint32, filter gputypes.FilterMode) bool {
	sw, sh := int(gal.MipExtent(t.width, src)), int(gal.MipExtent(t.height, src))
	dw, dh := int(gal.MipExtent(t.width, dst)), int(gal.MipExtent(t.height, dst))

	var in, out draw.Image
	switch t.bpp {
	case 4:
		// channel order does not matter to a per-channel filter
		in = &image.RGBA{Pix: t.mips[src], Stride: sw * 4, Rect: image.Rect(0, 0, sw, sh)}
		out = &image.RGBA{Pix: t.mips[dst], Stride: dw * 4, Rect: image.Rect(0, 0, dw, dh)}
	case 1:
		in = &image.Gray{Pix: t.mips[src], Stride: sw, Rect: image.Rect(0, 0, sw, sh)}
		out = &image.Gray{Pix: t.mips[dst], Stride: dw, Rect: image.Rect(0, 0, dw, dh)}
	default:
		return false
	}

	var scaler draw.Scaler = draw.NearestNeighbor
	if filter == gputypes.FilterModeLinear {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	return true
}
