package xevent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(4, 64)

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, int32(50), n.Load())
	st := p.Stats()
	assert.Equal(t, uint64(50), st.Processed)
	assert.Equal(t, 4, st.Workers)
	assert.Equal(t, 64, st.QueueSize)
}

func TestWorkerPool_Saturation(t *testing.T) {
	p := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func() {}))
	assert.ErrorIs(t, p.Submit(func() {}), ErrExecutorSaturated)
	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, uint64(1), p.Stats().Rejected)

	close(release)
	require.NoError(t, p.Close(context.Background()))
	assert.Zero(t, p.Pending())
}

func TestWorkerPool_PanicDoesNotKillWorker(t *testing.T) {
	p := NewWorkerPool(1, 4)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { panic("task") }))
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, uint64(1), p.Stats().Panics)
}

func TestWorkerPool_Close(t *testing.T) {
	p := NewWorkerPool(1, 4)
	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), ErrShutdownTimeout)
	assert.ErrorIs(t, p.Submit(func() {}), ErrExecutorClosed)

	close(release)
	require.NoError(t, p.Close(context.Background()), "second close is a no-op")
}

func TestWorkerPool_Defaults(t *testing.T) {
	p := NewWorkerPool(0, 0)
	defer p.Close(context.Background())

	st := p.Stats()
	assert.Equal(t, 4, st.Workers)
	assert.Equal(t, 1024, st.QueueSize)
	assert.NoError(t, p.Submit(nil))
}
