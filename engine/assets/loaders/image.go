package loaders

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/resources"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded picture in tightly packed RGBA8.
type Image struct {
	Path   string
	Width  uint32
	Height uint32
	Pixels []byte
}

type ImageLoader struct {
	// FlipY stores rows bottom-up.
	FlipY bool
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Handles reports whether path has an extension the loader decodes.
func (il *ImageLoader) Handles(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range imageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (il *ImageLoader) Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := il.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %w", path, err)
	}
	img.Path = path
	return img, nil
}

func (il *ImageLoader) Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	w, h, pixels := resources.ToRGBA(src)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	if il.FlipY {
		flipRows(pixels, int(w)*4, int(h))
	}
	return &Image{Width: w, Height: h, Pixels: pixels}, nil
}

func flipRows(pixels []byte, stride, rows int) {
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pixels[top*stride : (top+1)*stride]
		b := pixels[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
