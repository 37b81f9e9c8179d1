package core

import (
	"fmt"
	"sync"
)

const InvalidID uint32 = 4294967295

// Handle is a stable opaque identifier: a slot index plus the generation the
// slot had when the handle was issued. A released slot bumps its generation,
// so stale handles never alias a newer owner.
type Handle struct {
	Index      uint32
	Generation uint32
}

var InvalidHandle = Handle{Index: InvalidID, Generation: InvalidID}

func (h Handle) IsValid() bool {
	return h.Index != InvalidID
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d:%d)", h.Index, h.Generation)
}

type HandleArena struct {
	mu          sync.Mutex
	owners      []interface{}
	generations []uint32
	live        int
}

func NewHandleArena(capacity int) *HandleArena {
	if capacity <= 0 {
		capacity = 100
	}
	return &HandleArena{
		owners:      make([]interface{}, 0, capacity),
		generations: make([]uint32, 0, capacity),
	}
}

// Acquire hands out the first free slot, or grows the arena if none is free.
func (a *HandleArena) Acquire(owner interface{}) Handle {
	if owner == nil {
		panic("HandleArena.Acquire called with nil owner")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live++
	length := uint32(len(a.owners))
	for i := uint32(0); i < length; i++ {
		// Existing free spot. Take it.
		if a.owners[i] == nil {
			a.owners[i] = owner
			return Handle{Index: i, Generation: a.generations[i]}
		}
	}

	a.owners = append(a.owners, owner)
	a.generations = append(a.generations, 0)
	return Handle{Index: length, Generation: 0}
}

func (a *HandleArena) Release(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.aliveLocked(h) {
		return fmt.Errorf("release %s (arena size=%d): %w", h, len(a.owners), ErrInvalidHandle)
	}
	a.owners[h.Index] = nil
	a.generations[h.Index]++
	a.live--
	return nil
}

func (a *HandleArena) Alive(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aliveLocked(h)
}

func (a *HandleArena) Owner(h Handle) (interface{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.aliveLocked(h) {
		return nil, false
	}
	return a.owners[h.Index], true
}

func (a *HandleArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func (a *HandleArena) aliveLocked(h Handle) bool {
	if h.Index >= uint32(len(a.owners)) {
		return false
	}
	return a.owners[h.Index] != nil && a.generations[h.Index] == h.Generation
}
