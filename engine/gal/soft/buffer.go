package soft

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type Buffer struct {
	device    *Device
	label     string
	usage     gputypes.BufferUsage
	data      []byte
	mapped    bool
	destroyed bool
}

func (b *Buffer) Map() ([]byte, error) {
	if b.destroyed {
		return nil, fmt.Errorf("map buffer '%s': %w", b.label, core.ErrResourceDestroyed)
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap() {
	b.mapped = false
}

func (b *Buffer) Update(offset int, data []byte) error {
	return gal.WriteBuffer(b, offset, data, false)
}

func (b *Buffer) Flush(offset, size int) error {
	if b.destroyed {
		return fmt.Errorf("flush buffer '%s': %w", b.label, core.ErrResourceDestroyed)
	}
	if !b.mapped {
		return fmt.Errorf("flush buffer '%s' [%d,%d): %w", b.label, offset, offset+size, core.ErrNotMapped)
	}
	if offset < 0 || offset+size > len(b.data) {
		return fmt.Errorf("flush buffer '%s' [%d,%d) of size %d: %w", b.label, offset, offset+size, len(b.data), core.ErrInvalidParameters)
	}
	b.device.count(func(s *Stats) { s.BufferWrites++ })
	return nil
}

func (b *Buffer) Size() int {
	return len(b.data)
}

func (b *Buffer) Usage() gputypes.BufferUsage {
	return b.usage
}

func (b *Buffer) Label() string {
	return b.label
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.mapped = false
	b.device.release(len(b.data))
	b.device.count(func(s *Stats) { s.BuffersDestroyed++ })
}

// Bytes exposes the backing store for inspection.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}
