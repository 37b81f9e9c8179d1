package core

import (
	"errors"
	"sync"
)

var (
	ErrInvalidTransition  = errors.New("invalid layout transition")
	ErrMissingCamera      = errors.New("camera node has no camera component")
	ErrAttachmentIndex    = errors.New("color attachment index out of range")
	ErrInvalidParameters  = errors.New("invalid parameters")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrShaderCompile      = errors.New("shader compilation failed")
	ErrDeviceLost         = errors.New("device lost")
	ErrResourceDestroyed  = errors.New("resource already destroyed")
	ErrNotMapped          = errors.New("buffer is not mapped")
	ErrFenceTimeout       = errors.New("fence wait timed out")
	ErrInvalidHandle      = errors.New("invalid handle")
	ErrAlreadyInitialized = errors.New("already initialized")
)

var (
	fatalMu   sync.Mutex
	fatalHook = func(err error) {
		LogFatal("%s", err)
	}
)

// SetFatalHook replaces the function invoked by Fatal before it panics and
// returns a function restoring the previous hook.
func SetFatalHook(fn func(error)) (restore func()) {
	fatalMu.Lock()
	prev := fatalHook
	fatalHook = fn
	fatalMu.Unlock()
	return func() {
		fatalMu.Lock()
		fatalHook = prev
		fatalMu.Unlock()
	}
}

// Fatal reports an unrecoverable error. The default hook logs at fatal level
// and exits the process; if the hook returns, Fatal panics with err.
func Fatal(err error) {
	fatalMu.Lock()
	hook := fatalHook
	fatalMu.Unlock()
	hook(err)
	panic(err)
}
