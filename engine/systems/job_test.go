package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var mu sync.Mutex
	var results []int
	var failures []error
	for i := 0; i < 6; i++ {
		i := i
		require.NoError(t, js.Submit(JobTask{
			Name: "square",
			Run: func() (interface{}, error) {
				if i == 3 {
					return nil, errors.New("three")
				}
				return i * i, nil
			},
			OnComplete: func(r interface{}) {
				mu.Lock()
				results = append(results, r.(int))
				mu.Unlock()
			},
			OnFailure: func(err error) {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			},
		}))
	}
	require.NoError(t, js.Shutdown())

	assert.ElementsMatch(t, []int{0, 1, 4, 16, 25}, results)
	require.Len(t, failures, 1)
	assert.EqualError(t, failures[0], "three")
	assert.Equal(t, uint64(5), js.Completed())
	assert.Equal(t, uint64(1), js.Failed())
}

func TestJobSystemRecoversPanics(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	failed := make(chan error, 1)
	require.NoError(t, js.Submit(JobTask{
		Name:      "boom",
		Run:       func() (interface{}, error) { panic("bad header") },
		OnFailure: func(err error) { failed <- err },
	}))
	assert.ErrorContains(t, <-failed, "bad header")

	// the worker survived
	done := make(chan struct{})
	require.NoError(t, js.Submit(JobTask{
		Name:       "after",
		Run:        func() (interface{}, error) { return nil, nil },
		OnComplete: func(interface{}) { close(done) },
	}))
	<-done
	require.NoError(t, js.Shutdown())
}

func TestJobSystemRejectsAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(JobTask{Name: "late", Run: func() (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
}

func TestJobSystemInvalidParameters(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, js.Submit(JobTask{Name: "empty"}), core.ErrInvalidParameters)
	require.NoError(t, js.Shutdown())
}

func TestJobSystemShutdownDrainsQueue(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var mu sync.Mutex
	var done []interface{}
	var failed []error
	boom := errors.New("boom")

	require.NoError(t, js.Submit(JobTask{
		Name:       "ok",
		Run:        func() (interface{}, error) { return 42, nil },
		OnComplete: func(r interface{}) { mu.Lock(); done = append(done, r); mu.Unlock() },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:      "fail",
		Run:       func() (interface{}, error) { return nil, boom },
		OnFailure: func(err error) { mu.Lock(); failed = append(failed, err); mu.Unlock() },
	}))
	require.NoError(t, js.Shutdown())

	assert.Equal(t, []interface{}{42}, done)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], boom)
}
