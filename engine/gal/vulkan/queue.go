package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gal"
)

type Queue struct {
	device *Device
	handle vk.Queue
}

func (q *Queue) Submit(fence gal.Fence, buffers ...gal.CommandBuffer) error {
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	cbs := make([]*CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		if !ok || cb == nil {
			return fmt.Errorf("submit command buffer %T: %w", b, core.ErrInvalidHandle)
		}
		if cb.state != stateRecordingEnded {
			return fmt.Errorf("submit command buffer in state %d: %w", cb.state, core.ErrInvalidParameters)
		}
		handles = append(handles, cb.handle)
		cbs = append(cbs, cb)
	}

	signal := vk.NullFence
	var vf *Fence
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok || f == nil {
			return fmt.Errorf("submit with fence %T: %w", fence, core.ErrInvalidHandle)
		}
		vf = f
		signal = f.handle
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	err := q.device.locks.SafeCall(queueSubmission, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, signal))
	})
	if err != nil {
		return err
	}
	for _, cb := range cbs {
		cb.state = stateSubmitted
	}
	if vf != nil {
		vf.signaled = false
	}
	return nil
}

type Fence struct {
	device   *Device
	handle   vk.Fence
	signaled bool
}

func (d *Device) CreateFence(signaled bool) (gal.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	return &Fence{device: d, handle: handle, signaled: signaled}, nil
}

// Wait blocks until the fence signals. A negative timeout waits forever.
func (f *Fence) Wait(timeout time.Duration) error {
	if f.signaled {
		return nil
	}
	ns := uint64(math.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	result := vk.WaitForFences(f.device.handle, 1, []vk.Fence{f.handle}, vk.True, ns)
	if result == vk.Timeout {
		return fmt.Errorf("fence wait after %s: %w", timeout, core.ErrFenceTimeout)
	}
	if err := check("vkWaitForFences", result); err != nil {
		return err
	}
	f.signaled = true
	return nil
}

func (f *Fence) Reset() error {
	if err := check("vkResetFences", vk.ResetFences(f.device.handle, 1, []vk.Fence{f.handle})); err != nil {
		return err
	}
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() bool {
	if f.signaled {
		return true
	}
	if vk.GetFenceStatus(f.device.handle, f.handle) == vk.Success {
		f.signaled = true
	}
	return f.signaled
}

func (f *Fence) Destroy() {
	if f.handle == vk.NullFence {
		return
	}
	vk.DestroyFence(f.device.handle, f.handle, nil)
	f.handle = vk.NullFence
}
