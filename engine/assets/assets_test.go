package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	// rename so a watcher never sees a half-written file
	require.NoError(t, os.Rename(tmp, path))
}

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dir
}

func TestLoadTexture(t *testing.T) {
	m, dir := newManager(t)
	writePNG(t, filepath.Join(dir, "red.png"), 3, 2, color.NRGBA{255, 0, 0, 255})

	tex, err := m.LoadTexture("red.png")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), tex.Width())
	assert.Equal(t, uint32(2), tex.Height())
	assert.Equal(t, []byte{255, 0, 0, 255}, tex.Pixels()[:4])
	assert.Equal(t, filepath.Join(dir, "red.png"), tex.Source)
	assert.Equal(t, 1, m.Tracked())

	again, err := m.LoadTexture(filepath.Join(dir, "red.png"))
	require.NoError(t, err)
	assert.Same(t, tex, again)

	_, err = m.LoadTexture("missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReloadAppliesOnRenderThread(t *testing.T) {
	m, dir := newManager(t)
	path := filepath.Join(dir, "albedo.png")
	writePNG(t, path, 2, 2, color.NRGBA{0, 0, 255, 255})
	tex, err := m.LoadTexture("albedo.png")
	require.NoError(t, err)
	tex.ClearDirty()

	writePNG(t, path, 4, 4, color.NRGBA{0, 255, 0, 255})
	require.True(t, m.Reload("albedo.png"))

	assert.Eventually(t, func() bool { return m.Apply() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint32(4), tex.Width())
	assert.Equal(t, []byte{0, 255, 0, 255}, tex.Pixels()[:4])
	assert.True(t, tex.Dirty(), "the texture cache picks the change up on the next frame")
}

func TestReleasedTextureIsForgotten(t *testing.T) {
	m, dir := newManager(t)
	writePNG(t, filepath.Join(dir, "a.png"), 1, 1, color.NRGBA{1, 2, 3, 255})
	tex, err := m.LoadTexture("a.png")
	require.NoError(t, err)

	tex.Release()
	assert.Zero(t, m.Tracked())
	assert.False(t, m.Reload("a.png"))
	assert.False(t, m.Reload("never-loaded.png"))
}

func TestWatchReloadsChangedFiles(t *testing.T) {
	m, dir := newManager(t)
	path := filepath.Join(dir, "watched.png")
	writePNG(t, path, 2, 2, color.NRGBA{10, 10, 10, 255})
	tex, err := m.LoadTexture("watched.png")
	require.NoError(t, err)

	if err := m.Watch(); err != nil {
		t.Skipf("file watching unavailable: %s", err)
	}
	assert.Error(t, m.Watch())

	writePNG(t, path, 2, 2, color.NRGBA{200, 10, 10, 255})
	assert.Eventually(t, func() bool {
		m.Apply()
		return tex.Pixels()[0] == 200
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClosedManager(t *testing.T) {
	m, err := NewManager(Config{Dir: t.TempDir(), Workers: 1})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.LoadTexture("x.png")
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, m.Watch(), ErrManagerClosed)

	_, err = NewManager(Config{Workers: 0})
	assert.Error(t, err)
}
