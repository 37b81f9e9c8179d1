package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

// Buffer lives in host visible, coherent memory. Flush only validates the
// range; coherent memory needs no explicit flush.
type Buffer struct {
	device *Device
	handle vk.Buffer
	memory vk.DeviceMemory
	size   int
	usage  gputypes.BufferUsage
	label  string
	mapped []byte
}

func (d *Device) CreateBuffer(desc *gal.BufferDescriptor) (gal.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("create buffer '%s' of size %d: %w", desc.Label, desc.Size, core.ErrInvalidParameters)
	}
	b := &Buffer{device: d, size: desc.Size, usage: desc.Usage, label: labelOr(desc.Label, "buffer")}

	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := check("vkCreateBuffer '"+b.label+"'", vk.CreateBuffer(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	b.handle = handle

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, handle, &reqs)
	mem, err := d.allocate("buffer '"+b.label+"'", reqs, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		vk.DestroyBuffer(d.handle, handle, nil)
		return nil, err
	}
	b.memory = mem
	if err := check("vkBindBufferMemory '"+b.label+"'", vk.BindBufferMemory(d.handle, handle, mem, 0)); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *Buffer) Map() ([]byte, error) {
	if b.handle == vk.NullBuffer {
		return nil, fmt.Errorf("map buffer '%s': %w", b.label, core.ErrResourceDestroyed)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory '"+b.label+"'", vk.MapMemory(b.device.handle, b.memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return b.mapped, nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.device.handle, b.memory)
	b.mapped = nil
}

func (b *Buffer) Update(offset int, data []byte) error {
	return gal.WriteBuffer(b, offset, data, false)
}

func (b *Buffer) Flush(offset, size int) error {
	if b.handle == vk.NullBuffer {
		return fmt.Errorf("flush buffer '%s': %w", b.label, core.ErrResourceDestroyed)
	}
	if b.mapped == nil {
		return fmt.Errorf("flush buffer '%s': %w", b.label, core.ErrNotMapped)
	}
	if offset < 0 || size < 0 || offset+size > b.size {
		return fmt.Errorf("flush [%d,%d) of buffer '%s' with size %d: %w",
			offset, offset+size, b.label, b.size, core.ErrInvalidParameters)
	}
	return nil
}

func (b *Buffer) Size() int                   { return b.size }
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }
func (b *Buffer) Label() string               { return b.label }

func (b *Buffer) Destroy() {
	if b.handle == vk.NullBuffer {
		return
	}
	b.Unmap()
	vk.DestroyBuffer(b.device.handle, b.handle, nil)
	vk.FreeMemory(b.device.handle, b.memory, nil)
	b.handle = vk.NullBuffer
	b.memory = vk.NullDeviceMemory
}

func asBuffer(b gal.Buffer) *Buffer {
	vb, ok := b.(*Buffer)
	if !ok {
		core.Fatal(fmt.Errorf("buffer %T does not belong to the vulkan device: %w", b, core.ErrInvalidHandle))
	}
	return vb
}
