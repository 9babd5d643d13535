package batch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := newRetryQueue()
	q.push(&task{id: 1})
	q.push(&task{id: 2})
	q.push(&task{id: 3})

	assert.Equal(t, 3, q.len())

	for want := int64(1); want <= 3; want++ {
		got, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, want, got.id)
	}

	_, ok := q.pop()
	assert.False(t, ok)
}

func TestRetryQueue_ConcurrentPush(t *testing.T) {
	t.Parallel()

	q := newRetryQueue()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.push(&task{id: int64(i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, q.len())
}
