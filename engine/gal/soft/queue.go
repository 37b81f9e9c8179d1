package soft

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type Queue struct {
	device *Device
}

// Submit runs the command buffers synchronously, in order, then signals
// the fence.
func (q *Queue) Submit(fence gal.Fence, buffers ...gal.CommandBuffer) error {
	exec := &executor{device: q.device, groups: map[uint32]gal.BindGroup{}}
	for i, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("submit: command buffer %d is %T: %w", i, b, core.ErrInvalidParameters)
		}
		if cb.state != stateRecordingEnded {
			return fmt.Errorf("submit: command buffer %d was not ended (state %d): %w", i, cb.state, core.ErrInvalidParameters)
		}
		for _, cmd := range cb.commands {
			exec.run(cmd)
		}
		cb.state = stateSubmitted
	}
	q.device.count(func(s *Stats) { s.Submits++ })
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("submit: fence is %T: %w", fence, core.ErrInvalidParameters)
		}
		f.signaled = true
	}
	return nil
}

type Fence struct {
	signaled bool
}

func (f *Fence) Wait(timeout time.Duration) error {
	if f.signaled {
		return nil
	}
	// Nothing in flight can ever signal it.
	return fmt.Errorf("wait on unsignaled fence (timeout=%s): %w", timeout, core.ErrFenceTimeout)
}

func (f *Fence) Reset() error {
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() bool {
	return f.signaled
}

func (f *Fence) Destroy() {}
