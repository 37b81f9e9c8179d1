package core

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/containers"
)

const AVG_COUNT int = 30

// Metrics keeps a rolling window of frame times and a once-per-second FPS
// sample. It is driven from the render loop only.
type Metrics struct {
	window             *containers.RingQueue[float64]
	windowSum          float64
	frames             int
	accumulatedFrameMS float64
	fps                float64
	totalFrames        uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		window: containers.NewRingQueue[float64](AVG_COUNT, false),
	}
}

func (m *Metrics) Update(frameElapsed time.Duration) {
	frameMS := float64(frameElapsed) / float64(time.Millisecond)

	if m.window.IsFull() {
		oldest, _ := m.window.Dequeue()
		m.windowSum -= oldest
	}
	_ = m.window.Enqueue(frameMS)
	m.windowSum += frameMS

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	m.frames++
	if m.accumulatedFrameMS >= 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.totalFrames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

// FrameTime returns the average frame time in milliseconds over the window.
func (m *Metrics) FrameTime() float64 {
	if m.window.IsEmpty() {
		return 0
	}
	return m.windowSum / float64(m.window.Len())
}

func (m *Metrics) Frames() uint64 {
	return m.totalFrames
}
