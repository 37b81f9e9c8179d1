package systems

import (
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
)

// ReleaseQueue defers device object destruction until the frame that last
// used them has completed on the GPU.
type ReleaseQueue struct {
	queue *containers.RingQueue[func()]
}

func NewReleaseQueue(capacity int) *ReleaseQueue {
	return &ReleaseQueue{queue: containers.NewRingQueue[func()](capacity, true)}
}

// Defer schedules fn for the next Flush.
func (r *ReleaseQueue) Defer(fn func()) {
	if err := r.queue.Enqueue(fn); err != nil {
		// growable queues never fill up
		core.LogError("release queue: %s", err)
	}
}

// Destroy schedules d.Destroy. Nil values are ignored.
func (r *ReleaseQueue) Destroy(d interface{ Destroy() }) {
	if d == nil {
		return
	}
	r.Defer(d.Destroy)
}

// Flush runs every deferred function in scheduling order and returns how
// many ran. Call it only after the frame fence signaled.
func (r *ReleaseQueue) Flush() int {
	n := 0
	for !r.queue.IsEmpty() {
		fn, err := r.queue.Dequeue()
		if err != nil {
			break
		}
		fn()
		n++
	}
	return n
}

func (r *ReleaseQueue) Len() int {
	return r.queue.Len()
}
