package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRevisions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, _, err := store.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrTransactionNotFound))

	rev1, err := store.Put(ctx, "a", []byte("one"), 0)
	require.NoError(t, err)
	assert.NotZero(t, rev1)

	_, err = store.Put(ctx, "a", []byte("again"), 0)
	assert.True(t, errors.Is(err, ErrRevisionMismatch), "create over an existing document")

	rev2, err := store.Put(ctx, "a", []byte("two"), rev1)
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev2)

	_, err = store.Put(ctx, "a", []byte("stale"), rev1)
	assert.True(t, errors.Is(err, ErrRevisionMismatch), "stale revision")

	data, rev, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, rev2, rev)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.True(t, errors.Is(store.Delete(ctx, "a"), ErrTransactionNotFound))

	_, err = store.Put(ctx, "a", []byte("gone"), rev2)
	assert.True(t, errors.Is(err, ErrRevisionMismatch), "write to a deleted document")
	assert.Equal(t, 0, store.Len())
}

func TestLatchesSerialize(t *testing.T) {
	l := newLatches()
	ctx := context.Background()

	require.NoError(t, l.acquire(ctx, "a"))
	require.NoError(t, l.acquire(ctx, "b"), "different ids must not block")

	acquired := make(chan struct{})
	go func() {
		_ = l.acquire(ctx, "a")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("latch acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	l.release("a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("latch was not handed over")
	}

	l.release("a")
	l.release("b")
	assert.Equal(t, 0, l.len())

	require.NoError(t, l.acquire(ctx, "c"))
	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, l.acquire(cancelCtx, "c"))
}

func TestMemoryStoreForEach(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Put(ctx, id, []byte("doc-"+id), 0)
		require.NoError(t, err)
	}

	seen := make(map[string]string)
	require.NoError(t, store.ForEach(ctx, func(id string, data []byte) error {
		seen[id] = string(data)
		return nil
	}))
	assert.Equal(t, map[string]string{"a": "doc-a", "b": "doc-b", "c": "doc-c"}, seen)

	stop := errors.New("stop")
	calls := 0
	err := store.ForEach(ctx, func(id string, data []byte) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}
