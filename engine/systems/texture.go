package systems

import (
	"fmt"

	"github.com/gogpu/gputypes"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// MaxMipLevels caps the generated mip chain.
const MaxMipLevels uint32 = 16

// MipCount is max(1, ceil(log2(max(w, h)))), clamped to MaxMipLevels.
func MipCount(width, height uint32) uint32 {
	n := math.CeilLog2(max(width, height))
	return math.Clamp(max(n, 1), 1, MaxMipLevels)
}

type TextureEntry struct {
	Texture gal.Texture
	Sampler gal.Sampler
	Staging gal.Buffer
	Width   uint32
	Height  uint32
}

type TextureCacheConfig struct {
	// StagingPoolSize is the number of distinct staging sizes kept for reuse.
	StagingPoolSize int
}

// TextureCache mirrors RGBA8 textures on the device with a full mip chain.
// Uploads are recorded into the transfer command buffer of the current
// frame, so Get must be called between BeginFrame and EndFrame whenever a
// texture is new or dirty.
type TextureCache struct {
	device  gal.RenderDevice
	release *ReleaseQueue
	entries map[core.Handle]*TextureEntry

	// staging buffers no longer used by any entry, reusable once the frame
	// that last read them has completed
	pool    *lru.Cache[int, []gal.Buffer]
	retired []gal.Buffer

	cmd     gal.CommandBuffer
	uploads int
}

func NewTextureCache(config TextureCacheConfig, device gal.RenderDevice, release *ReleaseQueue) (*TextureCache, error) {
	if device == nil || release == nil {
		err := fmt.Errorf("func NewTextureCache - device and release queue are required: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	if config.StagingPoolSize <= 0 {
		err := fmt.Errorf("func NewTextureCache - config.StagingPoolSize must be > 0: %w", core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	pool, err := lru.NewWithEvict[int, []gal.Buffer](config.StagingPoolSize, func(size int, buffers []gal.Buffer) {
		for _, b := range buffers {
			b.Destroy()
		}
	})
	if err != nil {
		return nil, err
	}
	return &TextureCache{
		device:  device,
		release: release,
		entries: make(map[core.Handle]*TextureEntry),
		pool:    pool,
	}, nil
}

// BeginFrame sets the command buffer uploads are recorded into.
func (c *TextureCache) BeginFrame(transfer gal.CommandBuffer) {
	c.cmd = transfer
}

// EndFrame must be called after the frame fence signaled. Staging buffers
// retired during the frame become available for reuse.
func (c *TextureCache) EndFrame() {
	for _, b := range c.retired {
		size := b.Size()
		list, _ := c.pool.Get(size)
		c.pool.Add(size, append(list, b))
	}
	c.retired = c.retired[:0]
	c.cmd = nil
}

// Get returns the device texture for tex, uploading it when new or dirty.
func (c *TextureCache) Get(tex *resources.Texture) (*TextureEntry, error) {
	h := tex.Handle()
	e, ok := c.entries[h]
	if ok && !tex.Dirty() {
		return e, nil
	}
	if c.cmd == nil {
		return nil, fmt.Errorf("upload of texture '%s' outside of a frame: %w", tex.Name(), core.ErrInvalidParameters)
	}

	if !ok {
		e = &TextureEntry{}
		if err := c.allocate(e, tex); err != nil {
			return nil, err
		}
		c.entries[h] = e
		tex.OnRelease(func() { c.drop(h) })
	} else if e.Width != tex.Width() || e.Height != tex.Height() {
		core.LogDebug("texture '%s' resized %dx%d -> %dx%d, recreating", tex.Name(), e.Width, e.Height, tex.Width(), tex.Height())
		c.release.Destroy(e.Texture)
		c.release.Destroy(e.Sampler)
		c.retire(e.Staging)
		*e = TextureEntry{}
		if err := c.allocate(e, tex); err != nil {
			delete(c.entries, h)
			return nil, err
		}
	}

	if err := c.upload(e, tex); err != nil {
		return nil, err
	}
	tex.ClearDirty()
	return e, nil
}

func (c *TextureCache) allocate(e *TextureEntry, tex *resources.Texture) error {
	w, h := tex.Width(), tex.Height()
	mips := MipCount(w, h)

	texture, err := c.device.CreateTexture(&gal.TextureDescriptor{
		Label:    tex.Name(),
		Width:    w,
		Height:   h,
		MipCount: mips,
		Format:   gputypes.TextureFormatRGBA8Unorm,
		Usage:    gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create texture '%s' %dx%d mips=%d: %w", tex.Name(), w, h, mips, err)
	}

	anisotropy := uint16(1)
	if mips > 1 {
		anisotropy = 16
	}
	sampler, err := c.device.CreateSampler(&gal.SamplerDescriptor{
		MagFilter:     gputypes.FilterModeLinear,
		MinFilter:     gputypes.FilterModeLinear,
		MipmapFilter:  gputypes.FilterModeLinear,
		AddressModeU:  gputypes.AddressModeRepeat,
		AddressModeV:  gputypes.AddressModeRepeat,
		AddressModeW:  gputypes.AddressModeRepeat,
		LodMaxClamp:   float32(mips),
		MaxAnisotropy: anisotropy,
	})
	if err != nil {
		texture.Destroy()
		return fmt.Errorf("create sampler for '%s': %w", tex.Name(), err)
	}

	staging, err := c.staging(len(tex.Pixels()), tex.Name())
	if err != nil {
		texture.Destroy()
		sampler.Destroy()
		return err
	}

	e.Texture, e.Sampler, e.Staging = texture, sampler, staging
	e.Width, e.Height = w, h
	return nil
}

// staging takes a pooled buffer of exactly size bytes or creates one.
func (c *TextureCache) staging(size int, label string) (gal.Buffer, error) {
	if list, ok := c.pool.Get(size); ok && len(list) > 0 {
		b := list[len(list)-1]
		// Remove would run the evict callback and destroy the buffer
		c.pool.Add(size, list[:len(list)-1])
		return b, nil
	}
	b, err := c.device.CreateBuffer(&gal.BufferDescriptor{
		Label: label + ".staging",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageMapWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer for '%s' (%d bytes): %w", label, size, err)
	}
	return b, nil
}

func (c *TextureCache) retire(b gal.Buffer) {
	if b != nil {
		c.retired = append(c.retired, b)
	}
}

// upload copies the pixels into mip 0 and blits the rest of the chain.
// Every level ends in CopySrc so the final barrier covers the whole range
// with a single old layout.
func (c *TextureCache) upload(e *TextureEntry, tex *resources.Texture) error {
	if err := e.Staging.Update(0, tex.Pixels()); err != nil {
		return fmt.Errorf("fill staging buffer of '%s': %w", tex.Name(), err)
	}
	e.Staging.Unmap()

	cmd, t := c.cmd, e.Texture
	mips := t.MipCount()

	cmd.PipelineBarrier(gal.TextureBarrier(t, gal.LayoutUndefined, gal.LayoutCopyDst, gal.MipRange(0, 1)))
	cmd.CopyBufferToTexture(e.Staging, 0, t, 0)

	if mips == 1 {
		cmd.PipelineBarrier(gal.TextureBarrier(t, gal.LayoutCopyDst, gal.LayoutShaderReadOnly, gal.MipRange(0, 1)))
		c.uploads++
		return nil
	}

	for level := uint32(1); level < mips; level++ {
		cmd.PipelineBarrier(
			gal.TextureBarrier(t, gal.LayoutCopyDst, gal.LayoutCopySrc, gal.MipRange(level-1, 1)),
			gal.TextureBarrier(t, gal.LayoutUndefined, gal.LayoutCopyDst, gal.MipRange(level, 1)),
		)
		cmd.BlitTexture(t, level-1, level, gputypes.FilterModeLinear)
	}
	cmd.PipelineBarrier(gal.TextureBarrier(t, gal.LayoutCopyDst, gal.LayoutCopySrc, gal.MipRange(mips-1, 1)))
	cmd.PipelineBarrier(gal.TextureBarrier(t, gal.LayoutCopySrc, gal.LayoutShaderReadOnly, gal.MipRange(0, mips)))
	c.uploads++
	return nil
}

func (c *TextureCache) drop(h core.Handle) {
	e, ok := c.entries[h]
	if !ok {
		return
	}
	c.release.Destroy(e.Texture)
	c.release.Destroy(e.Sampler)
	c.retire(e.Staging)
	delete(c.entries, h)
}

func (c *TextureCache) Has(tex *resources.Texture) bool {
	_, ok := c.entries[tex.Handle()]
	return ok
}

func (c *TextureCache) Len() int {
	return len(c.entries)
}

// Uploads counts upload sequences recorded since creation.
func (c *TextureCache) Uploads() int {
	return c.uploads
}

// PooledStaging is the number of idle staging buffers.
func (c *TextureCache) PooledStaging() int {
	n := 0
	for _, size := range c.pool.Keys() {
		if list, ok := c.pool.Peek(size); ok {
			n += len(list)
		}
	}
	return n
}

// Destroy frees every device object immediately. The device must be idle.
func (c *TextureCache) Destroy() {
	for h, e := range c.entries {
		e.Texture.Destroy()
		e.Sampler.Destroy()
		e.Staging.Destroy()
		delete(c.entries, h)
	}
	for _, b := range c.retired {
		b.Destroy()
	}
	c.retired = nil
	c.pool.Purge()
}
