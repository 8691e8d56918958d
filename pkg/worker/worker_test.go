package worker_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remindly/callcore/pkg/worker"
	"github.com/stretchr/testify/assert"
)

func TestWorker_ExecutesTasks(t *testing.T) {
	var processed atomic.Int32
	done := make(chan struct{}, 3)

	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 8,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(int) {
			processed.Add(1)
			done <- struct{}{}
		},
	})
	t.Cleanup(w.Stop)

	assert.NoError(t, w.Send(1))
	assert.NoError(t, w.Send(2))
	assert.NoError(t, w.Send(3))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task was not processed in time")
		}
	}

	assert.Equal(t, int32(3), processed.Load())
}

func TestWorker_SendAfterStop(t *testing.T) {
	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      func(int) {},
	})

	w.Stop()
	assert.ErrorIs(t, w.Send(1), worker.ErrWorkerClosed)

	// Stopping twice must be a no-op.
	w.Stop()
	assert.ErrorIs(t, w.Send(2), worker.ErrWorkerClosed)
}

func TestWorker_TooBusy(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once

	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(int) {
			startedOnce.Do(func() { close(started) })
			<-block
		},
	})
	t.Cleanup(func() {
		close(block)
		w.Stop()
	})

	// First task occupies the worker, second fills the queue.
	assert.NoError(t, w.Send(1))
	<-started
	assert.NoError(t, w.Send(2))
	assert.ErrorIs(t, w.Send(3), worker.ErrWorkerTooBusy)
}

func BenchmarkWorker(b *testing.B) {
	w := worker.StartWorker(worker.Config[struct{}]{
		ChannelSize: 1,
		Timeout:     2 * time.Second,
		OnTimeout:   func() {},
		OnTask:      func(struct{}) {},
	})

	for n := 0; n < b.N; n++ {
		w.Send(struct{}{})
	}

	w.Stop()
}
