package resources

import (
	"github.com/spaghettifunk/lumen/engine/core"
)

// handles is shared by every CPU-side resource and scene node so that a
// handle identifies exactly one live object process wide.
var handles = core.NewHandleArena(1024)

// Handles exposes the arena backing resource handles.
func Handles() *core.HandleArena {
	return handles
}

// Resource is embedded by every CPU-side object the caches mirror on the
// device. The zero value is not usable; call Init first.
type Resource struct {
	handle core.Handle
	name   string
	// NeedsUpdate is set whenever CPU data changed and the device copy is stale.
	NeedsUpdate bool
	version     uint64
	onRelease   []func()
	released    bool
}

// Init registers owner in the handle arena. New resources start dirty so
// that the first cache lookup uploads them.
func (r *Resource) Init(owner interface{}, name string) {
	r.handle = handles.Acquire(owner)
	r.name = name
	r.NeedsUpdate = true
	r.version = 1
}

func (r *Resource) Handle() core.Handle {
	return r.handle
}

func (r *Resource) Name() string {
	return r.name
}

// Version increases on every MarkDirty.
func (r *Resource) Version() uint64 {
	return r.version
}

func (r *Resource) MarkDirty() {
	r.NeedsUpdate = true
	r.version++
}

func (r *Resource) Dirty() bool {
	return r.NeedsUpdate
}

func (r *Resource) ClearDirty() {
	r.NeedsUpdate = false
}

// OnRelease registers fn to run when the resource is released. Callbacks run
// in registration order. Registering on a released resource runs fn now.
func (r *Resource) OnRelease(fn func()) {
	if r.released {
		fn()
		return
	}
	r.onRelease = append(r.onRelease, fn)
}

func (r *Resource) Released() bool {
	return r.released
}

// Release runs the release callbacks exactly once and recycles the handle.
func (r *Resource) Release() {
	if r.released {
		return
	}
	r.released = true
	callbacks := r.onRelease
	r.onRelease = nil
	for _, fn := range callbacks {
		fn()
	}
	if err := handles.Release(r.handle); err != nil {
		core.LogWarn("release of '%s': %s", r.name, err)
	}
}

// Releasable is what caches need from a CPU-side object to track it.
type Releasable interface {
	Handle() core.Handle
	OnRelease(fn func())
}
