package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type Texture struct {
	device *Device
	image  vk.Image
	memory vk.DeviceMemory
	// view covers every aspect and is used as attachment; sampled differs
	// from it only for combined depth/stencil formats.
	view    vk.ImageView
	sampled vk.ImageView

	vkFormat vk.Format
	format   gputypes.TextureFormat
	width    uint32
	height   uint32
	usage    gputypes.TextureUsage
	label    string
	layouts  []gal.Layout
}

func (d *Device) CreateTexture(desc *gal.TextureDescriptor) (gal.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.MipCount == 0 {
		return nil, fmt.Errorf("create texture '%s' %dx%d with %d mips: %w",
			desc.Label, desc.Width, desc.Height, desc.MipCount, core.ErrInvalidParameters)
	}
	vkFormat, err := textureFormat(desc.Format, d.depthFormat)
	if err != nil {
		return nil, err
	}
	depth := gal.IsDepthFormat(desc.Format)
	t := &Texture{
		device:   d,
		vkFormat: vkFormat,
		format:   desc.Format,
		width:    desc.Width,
		height:   desc.Height,
		usage:    desc.Usage,
		label:    labelOr(desc.Label, "texture"),
		layouts:  make([]gal.Layout, desc.MipCount),
	}

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipCount,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage, depth),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check("vkCreateImage '"+t.label+"'", vk.CreateImage(d.handle, &info, nil, &image)); err != nil {
		return nil, err
	}
	t.image = image

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, image, &reqs)
	mem, err := d.allocate("texture '"+t.label+"'", reqs, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.handle, image, nil)
		return nil, err
	}
	t.memory = mem
	if err := check("vkBindImageMemory '"+t.label+"'", vk.BindImageMemory(d.handle, image, mem, 0)); err != nil {
		t.Destroy()
		return nil, err
	}

	if t.view, err = t.createView(aspectMask(vkFormat, false)); err != nil {
		t.Destroy()
		return nil, err
	}
	t.sampled = t.view
	if hasStencil(vkFormat) {
		if t.sampled, err = t.createView(aspectMask(vkFormat, true)); err != nil {
			t.Destroy()
			return nil, err
		}
	}
	return t, nil
}

func (t *Texture) createView(aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   t.vkFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     uint32(len(t.layouts)),
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView '"+t.label+"'", vk.CreateImageView(t.device.handle, &info, nil, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (t *Texture) Layout(level uint32) gal.Layout {
	if int(level) >= len(t.layouts) {
		return gal.LayoutUndefined
	}
	return t.layouts[level]
}

func (t *Texture) setLayout(r gal.SubresourceRange, l gal.Layout) {
	for m := r.BaseMip; m < r.BaseMip+r.MipCount && int(m) < len(t.layouts); m++ {
		t.layouts[m] = l
	}
}

func (t *Texture) Format() gputypes.TextureFormat { return t.format }
func (t *Texture) Width() uint32                  { return t.width }
func (t *Texture) Height() uint32                 { return t.height }
func (t *Texture) MipCount() uint32               { return uint32(len(t.layouts)) }
func (t *Texture) Usage() gputypes.TextureUsage   { return t.usage }
func (t *Texture) Label() string                  { return t.label }

func (t *Texture) Destroy() {
	if t.image == vk.NullImage {
		return
	}
	h := t.device.handle
	t.device.passes.forget(t)
	if t.sampled != t.view && t.sampled != vk.NullImageView {
		vk.DestroyImageView(h, t.sampled, nil)
	}
	if t.view != vk.NullImageView {
		vk.DestroyImageView(h, t.view, nil)
	}
	vk.DestroyImage(h, t.image, nil)
	if t.memory != vk.NullDeviceMemory {
		vk.FreeMemory(h, t.memory, nil)
	}
	t.image = vk.NullImage
	t.view, t.sampled = vk.NullImageView, vk.NullImageView
	t.memory = vk.NullDeviceMemory
}

func asTexture(t gal.Texture) *Texture {
	vt, ok := t.(*Texture)
	if !ok {
		core.Fatal(fmt.Errorf("texture %T does not belong to the vulkan device: %w", t, core.ErrInvalidHandle))
	}
	return vt
}

type Sampler struct {
	device *Device
	handle vk.Sampler
}

func (d *Device) CreateSampler(desc *gal.SamplerDescriptor) (gal.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter(desc.MagFilter),
		MinFilter:        filter(desc.MinFilter),
		MipmapMode:       mipmapMode(desc.MipmapFilter),
		AddressModeU:     addressMode(desc.AddressModeU),
		AddressModeV:     addressMode(desc.AddressModeV),
		AddressModeW:     addressMode(desc.AddressModeW),
		MinLod:           0,
		MaxLod:           desc.LodMaxClamp,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1,
		CompareEnable:    vk.False,
		CompareOp:        vk.CompareOpAlways,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
	}
	if desc.MaxAnisotropy > 1 && d.anisotropy {
		limit := d.properties.Limits.MaxSamplerAnisotropy
		a := float32(desc.MaxAnisotropy)
		if limit > 0 && a > limit {
			a = limit
		}
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = a
	}
	var handle vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	return &Sampler{device: d, handle: handle}, nil
}

func (s *Sampler) Destroy() {
	if s.handle == nil {
		return
	}
	vk.DestroySampler(s.device.handle, s.handle, nil)
	s.handle = nil
}
