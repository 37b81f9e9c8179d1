package gal

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Must aborts the process through core.Fatal when a device call failed.
// Device errors already name the operation and its parameters.
func Must[T any](v T, err error) T {
	if err != nil {
		core.Fatal(err)
	}
	return v
}

// CreateBufferWithData creates a buffer sized to data unless desc.Size is
// larger, then maps it, copies data, flushes, and unmaps when asked to.
func CreateBufferWithData(device RenderDevice, desc *BufferDescriptor, data []byte, unmap bool) (Buffer, error) {
	d := *desc
	if d.Size < len(data) {
		d.Size = len(data)
	}
	buffer, err := device.CreateBuffer(&d)
	if err != nil {
		return nil, err
	}
	if err := WriteBuffer(buffer, 0, data, unmap); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// WriteBuffer maps buffer, copies data at offset and flushes the range.
func WriteBuffer(buffer Buffer, offset int, data []byte, unmap bool) error {
	if offset < 0 || offset+len(data) > buffer.Size() {
		return fmt.Errorf("write %d bytes at %d into buffer '%s' of size %d: %w",
			len(data), offset, buffer.Label(), buffer.Size(), core.ErrInvalidParameters)
	}
	mapped, err := buffer.Map()
	if err != nil {
		return fmt.Errorf("map buffer '%s': %w", buffer.Label(), err)
	}
	copy(mapped[offset:], data)
	if err := buffer.Flush(offset, len(data)); err != nil {
		return fmt.Errorf("flush buffer '%s': %w", buffer.Label(), err)
	}
	if unmap {
		buffer.Unmap()
	}
	return nil
}
