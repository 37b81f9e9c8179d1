package systems

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/lumen/engine/core"
)

// JobTask is one unit of background work. Callbacks run on the worker
// goroutine; anything touching the renderer has to hand its result back
// to the render thread.
type JobTask struct {
	Name       string
	Run        func() (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

// JobSystem is a fixed pool of workers draining a bounded queue.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	// closing takes the write lock so no Submit is mid-send when the
	// queue is closed
	mutex  sync.RWMutex
	closed bool

	completed atomic.Uint64
	failed    atomic.Uint64
}

var (
	ErrNoWorkers           = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
	ErrJobSystemClosed     = errors.New("job system is shut down")
)

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go js.work()
	}
	return js, nil
}

func (js *JobSystem) work() {
	defer js.wg.Done()
	for job := range js.jobQueue {
		result, err := js.run(job)
		if err != nil {
			js.failed.Add(1)
			core.LogError("job '%s' failed: %s", job.Name, err)
			if job.OnFailure != nil {
				job.OnFailure(err)
			}
			continue
		}
		js.completed.Add(1)
		if job.OnComplete != nil {
			job.OnComplete(result)
		}
	}
}

// run turns a panicking task into a failure so one bad file cannot take
// a worker down.
func (js *JobSystem) run(job JobTask) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job '%s' panicked: %v", job.Name, r)
		}
	}()
	return job.Run()
}

// Submit queues jt, blocking while the queue is full.
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job '%s' has nothing to run: %w", jt.Name, core.ErrInvalidParameters)
	}
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// Shutdown waits for queued jobs to finish. Later calls are no-ops.
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if !js.closed {
		js.closed = true
		close(js.jobQueue)
	}
	js.mutex.Unlock()
	js.wg.Wait()
	return nil
}

// Completed and Failed count finished jobs since creation.
func (js *JobSystem) Completed() uint64 { return js.completed.Load() }
func (js *JobSystem) Failed() uint64    { return js.failed.Load() }
