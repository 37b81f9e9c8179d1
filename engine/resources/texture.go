package resources

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spaghettifunk/lumen/engine/core"
	"golang.org/x/image/draw"
)

// Texture is an RGBA8 image kept in CPU memory.
type Texture struct {
	Resource
	width  uint32
	height uint32
	pixels []byte
	// Source is the file the pixels were decoded from, if any.
	Source string
}

func NewTexture(name string, width, height uint32, pixels []byte) (*Texture, error) {
	if err := checkPixels(width, height, pixels); err != nil {
		err = fmt.Errorf("texture '%s': %w", name, err)
		core.LogError("%s", err)
		return nil, err
	}
	t := &Texture{width: width, height: height, pixels: pixels}
	t.Init(t, name)
	return t, nil
}

// NewSolidTexture fills a width x height texture with c.
func NewSolidTexture(name string, width, height uint32, c color.RGBA) *Texture {
	pixels := make([]byte, int(width*height)*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = c.R, c.G, c.B, c.A
	}
	t := &Texture{width: width, height: height, pixels: pixels}
	t.Init(t, name)
	return t
}

// NewTextureFromImage converts any image to tightly packed RGBA.
func NewTextureFromImage(name string, img image.Image) (*Texture, error) {
	w, h, pixels := ToRGBA(img)
	return NewTexture(name, w, h, pixels)
}

// ToRGBA returns the image size and its pixels in non-premultiplied RGBA8.
func ToRGBA(img image.Image) (uint32, uint32, []byte) {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == b.Dx()*4 {
		return uint32(b.Dx()), uint32(b.Dy()), n.Pix
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return uint32(b.Dx()), uint32(b.Dy()), dst.Pix
}

func checkPixels(width, height uint32, pixels []byte) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("size %dx%d: %w", width, height, core.ErrInvalidParameters)
	}
	if len(pixels) != int(width*height)*4 {
		return fmt.Errorf("%d bytes for %dx%d RGBA: %w", len(pixels), width, height, core.ErrInvalidParameters)
	}
	return nil
}

func (t *Texture) Width() uint32 {
	return t.width
}

func (t *Texture) Height() uint32 {
	return t.height
}

func (t *Texture) Pixels() []byte {
	return t.pixels
}

// SetPixels replaces the image. A size change makes the cache recreate the
// device texture instead of uploading in place.
func (t *Texture) SetPixels(width, height uint32, pixels []byte) error {
	if err := checkPixels(width, height, pixels); err != nil {
		return fmt.Errorf("set pixels of '%s': %w", t.Name(), err)
	}
	t.width, t.height, t.pixels = width, height, pixels
	t.MarkDirty()
	return nil
}
