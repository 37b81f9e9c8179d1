package vulkan

import "sync"

type lockGroup string

// Vulkan requires external synchronization of queues and descriptor
// updates; everything else is recorded from the render thread only.
const (
	queueSubmission   lockGroup = "queue_submission"
	descriptorUpdates lockGroup = "descriptor_updates"
	objectCaches      lockGroup = "object_caches"
)

type lockPool struct {
	mu    sync.Mutex
	locks map[lockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[lockGroup]*sync.Mutex)}
}

func (p *lockPool) get(group lockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

// SafeCall runs fn while holding the lock of group.
func (p *lockPool) SafeCall(group lockGroup, fn func() error) error {
	l := p.get(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
