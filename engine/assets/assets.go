// Package assets loads textures from disk and reloads them when their files
// change. Decoding runs on a worker pool; results reach the Textures only
// through Apply, which the render thread calls between frames.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/spaghettifunk/lumen/engine/systems"
)

var ErrManagerClosed = errors.New("asset manager already closed")

type Config struct {
	// Dir is the root relative paths are resolved against.
	Dir     string
	Workers int
	FlipY   bool
}

type decoded struct {
	path  string
	image *loaders.Image
}

type Manager struct {
	config Config
	images *loaders.ImageLoader
	jobs   *systems.JobSystem

	mutex    sync.Mutex
	textures map[string]*resources.Texture
	pending  []decoded
	closed   bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

func NewManager(config Config) (*Manager, error) {
	if config.Workers < 1 {
		err := fmt.Errorf("func NewManager - at least one worker is required, got %d: %w", config.Workers, core.ErrInvalidParameters)
		core.LogError("%s", err)
		return nil, err
	}
	jobs, err := systems.NewJobSystem(config.Workers, config.Workers*4)
	if err != nil {
		core.LogError("func NewManager - %s", err)
		return nil, err
	}
	return &Manager{
		config:   config,
		images:   &loaders.ImageLoader{FlipY: config.FlipY},
		jobs:     jobs,
		textures: make(map[string]*resources.Texture),
	}, nil
}

func (m *Manager) resolve(path string) string {
	if !filepath.IsAbs(path) && m.config.Dir != "" {
		path = filepath.Join(m.config.Dir, path)
	}
	return filepath.Clean(path)
}

// LoadTexture decodes an image synchronously and keeps track of it so a
// later change of the file reloads it.
func (m *Manager) LoadTexture(path string) (*resources.Texture, error) {
	full := m.resolve(path)
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return nil, ErrManagerClosed
	}
	if tex, ok := m.textures[full]; ok {
		m.mutex.Unlock()
		return tex, nil
	}
	m.mutex.Unlock()

	img, err := m.images.Load(full)
	if err != nil {
		return nil, fmt.Errorf("load texture: %w", err)
	}
	tex, err := resources.NewTexture(filepath.Base(full), img.Width, img.Height, img.Pixels)
	if err != nil {
		return nil, fmt.Errorf("load texture '%s': %w", full, err)
	}
	tex.Source = full

	m.mutex.Lock()
	m.textures[full] = tex
	m.mutex.Unlock()
	tex.OnRelease(func() { m.forget(full) })
	core.LogDebug("loaded texture '%s' (%dx%d)", full, img.Width, img.Height)
	return tex, nil
}

func (m *Manager) forget(path string) {
	m.mutex.Lock()
	delete(m.textures, path)
	m.mutex.Unlock()
}

// Reload schedules a decode of a tracked file. It returns false for files
// no texture was loaded from.
func (m *Manager) Reload(path string) bool {
	return m.reload(m.resolve(path))
}

// reload takes a path that is already resolved against Dir.
func (m *Manager) reload(full string) bool {
	m.mutex.Lock()
	_, tracked := m.textures[full]
	closed := m.closed
	m.mutex.Unlock()
	if !tracked || closed {
		return false
	}
	err := m.jobs.Submit(systems.JobTask{
		Name: "reload " + full,
		Run: func() (interface{}, error) {
			return m.images.Load(full)
		},
		OnComplete: func(result interface{}) {
			m.mutex.Lock()
			m.pending = append(m.pending, decoded{path: full, image: result.(*loaders.Image)})
			m.mutex.Unlock()
		},
		OnFailure: func(err error) {
			// editors often write a file in several steps; the next event retries
			core.LogWarn("reload of '%s' failed: %s", full, err)
		},
	})
	return err == nil
}

// Apply hands every finished reload to its texture and returns how many
// were applied. Call it from the render thread only.
func (m *Manager) Apply() int {
	m.mutex.Lock()
	batch := m.pending
	m.pending = nil
	m.mutex.Unlock()

	applied := 0
	for _, d := range batch {
		m.mutex.Lock()
		tex, ok := m.textures[d.path]
		m.mutex.Unlock()
		if !ok || tex.Released() {
			continue
		}
		if err := tex.SetPixels(d.image.Width, d.image.Height, d.image.Pixels); err != nil {
			core.LogError("apply reload of '%s': %s", d.path, err)
			continue
		}
		core.LogInfo("reloaded texture '%s' (%dx%d)", d.path, d.image.Width, d.image.Height)
		applied++
	}
	return applied
}

// Tracked is the number of textures that reload on change.
func (m *Manager) Tracked() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.textures)
}

// Watch starts reloading tracked textures when their files are written.
func (m *Manager) Watch() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.watcher != nil {
		return core.ErrAlreadyInitialized
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch '%s': %w", m.config.Dir, err)
	}
	if err := watchRecursive(w, m.config.Dir); err != nil {
		w.Close()
		return fmt.Errorf("watch '%s': %w", m.config.Dir, err)
	}
	m.watcher = w
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.start()
	core.LogInfo("watching '%s' for asset changes", m.config.Dir)
	return nil
}

func (m *Manager) start() {
	defer close(m.stopped)
	for {
		select {
		case e, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					if err := watchRecursive(m.watcher, e.Name); err != nil {
						core.LogWarn("watch new directory '%s': %s", e.Name, err)
					}
					continue
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && m.images.Handles(e.Name) {
				m.reload(filepath.Clean(e.Name))
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)
		case <-m.done:
			return
		}
	}
}

// watchRecursive adds dir and every directory below it.
func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// Close stops the watcher and waits for running decodes. Results that
// finish after Close are dropped.
func (m *Manager) Close() error {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return nil
	}
	m.closed = true
	watcher := m.watcher
	m.mutex.Unlock()

	var err error
	if watcher != nil {
		close(m.done)
		<-m.stopped
		err = watcher.Close()
	}
	if jerr := m.jobs.Shutdown(); jerr != nil && err == nil {
		err = jerr
	}
	m.mutex.Lock()
	m.pending = nil
	m.mutex.Unlock()
	return err
}
