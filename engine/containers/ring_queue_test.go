package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFixed(t *testing.T) {
	q := NewRingQueue[int](2, false)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrQueueFull)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, q.Enqueue(3))
	v, _ = q.Peek()
	assert.Equal(t, 2, v)

	_, _ = q.Dequeue()
	_, _ = q.Dequeue()
	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	q := NewRingQueue[string](2, true)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	_, _ = q.Dequeue()
	require.NoError(t, q.Enqueue("c"))
	require.NoError(t, q.Enqueue("d"))
	require.NoError(t, q.Enqueue("e"))

	var got []string
	q.Each(func(s string) { got = append(got, s) })
	assert.Equal(t, []string{"b", "c", "d", "e"}, got)
	assert.Equal(t, 4, q.Len())
}
