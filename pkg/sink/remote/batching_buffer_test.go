package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBatchingBuffer_CountBound(t *testing.T) {
	t.Run("Seals immediately when the posting limit is reached", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(3, time.Minute, deliverer, nil)
		defer buffer.Close(context.Background())

		buffer.Append(testEvent("E1"))
		buffer.Append(testEvent("E2"))
		buffer.Append(testEvent("E3"))

		require.Eventually(t, func() bool {
			return len(deliverer.batches()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		batch := deliverer.batches()[0]
		assert.Len(t, batch, 3)
		assert.Equal(t, "E1", batch[0].Message)
		assert.Equal(t, "E2", batch[1].Message)
		assert.Equal(t, "E3", batch[2].Message)
	})

	t.Run("No batch ever exceeds the posting limit", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(5, time.Minute, deliverer, nil)

		for i := 0; i < 23; i++ {
			buffer.Append(testEvent(fmt.Sprintf("E%d", i)))
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.Nil(t, buffer.Close(closeCtx))

		total := 0
		for _, batch := range deliverer.batches() {
			assert.LessOrEqual(t, len(batch), 5)
			total += len(batch)
		}
		assert.Equal(t, 23, total)
	})
}

func TestBatchingBuffer_AgeBound(t *testing.T) {
	t.Run("Seals a partial batch once the period elapses", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(100, 50*time.Millisecond, deliverer, nil)
		defer buffer.Close(context.Background())

		buffer.Append(testEvent("E1"))
		buffer.Append(testEvent("E2"))

		require.Eventually(t, func() bool {
			return len(deliverer.batches()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Len(t, deliverer.batches()[0], 2)
	})
}

func TestBatchingBuffer_ConcurrentProducers(t *testing.T) {
	t.Run("10000 events from 8 producers with limit 50 yield exactly 200 batches", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(50, time.Minute, deliverer, nil)

		const producers = 8
		const perProducer = 1250
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					buffer.Append(testEvent(fmt.Sprintf("p%d-e%d", p, i)))
				}
			}(p)
		}
		wg.Wait()

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.Nil(t, buffer.Close(closeCtx))

		batches := deliverer.batches()
		assert.Len(t, batches, 200)
		seen := make(map[string]bool, producers*perProducer)
		for _, batch := range batches {
			assert.Len(t, batch, 50)
			for _, event := range batch {
				assert.False(t, seen[event.Message], "event %s delivered twice", event.Message)
				seen[event.Message] = true
			}
		}
		assert.Len(t, seen, producers*perProducer)
	})
}

func TestBatchingBuffer_FailureHandling(t *testing.T) {
	t.Run("Failed batches are handed to the overflow queue", func(t *testing.T) {
		deliverer := newFakeDeliverer(errors.New("connection refused"))
		overflow := newFakeOverflow()
		buffer := newTestBuffer(2, time.Minute, deliverer, overflow)
		defer buffer.Close(context.Background())

		buffer.Append(testEvent("E1"))
		buffer.Append(testEvent("E2"))

		require.Eventually(t, func() bool {
			return overflow.Pending() == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Len(t, overflow.records()[0].events, 2)
	})

	t.Run("Close persists undelivered batches once the grace period expires", func(t *testing.T) {
		deliverer := newStallingDeliverer(time.Hour)
		overflow := newFakeOverflow()
		buffer := newTestBuffer(1, time.Minute, deliverer, overflow)

		for i := 0; i < 5; i++ {
			buffer.Append(testEvent(fmt.Sprintf("E%d", i)))
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.Nil(t, buffer.Close(closeCtx))

		total := 0
		for _, record := range overflow.records() {
			total += len(record.events)
		}
		assert.GreaterOrEqual(t, total, 4)
	})
}

func TestBatchingBuffer_AppendAfterClose(t *testing.T) {
	t.Run("Events appended after close are dropped, never delivered", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(10, time.Minute, deliverer, nil)

		buffer.Append(testEvent("E1"))
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.Nil(t, buffer.Close(closeCtx))
		require.Len(t, deliverer.batches(), 1)

		buffer.Append(testEvent("late"))
		time.Sleep(50 * time.Millisecond)

		batches := deliverer.batches()
		require.Len(t, batches, 1)
		for _, batch := range batches {
			for _, event := range batch {
				assert.NotEqual(t, "late", event.Message)
			}
		}
	})
}

func TestBatchingBuffer_Backpressure(t *testing.T) {
	t.Run("Degraded health stretches the effective period", func(t *testing.T) {
		deliverer := newFakeDeliverer(nil)
		buffer := newTestBuffer(100, 50*time.Millisecond, deliverer, nil)
		defer buffer.Close(context.Background())
		buffer.SetDegraded(true)

		buffer.Append(testEvent("E1"))
		time.Sleep(120 * time.Millisecond)
		assert.Empty(t, deliverer.batches())

		buffer.SetDegraded(false)
		require.Eventually(t, func() bool {
			return len(deliverer.batches()) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func newTestBuffer(
	limit int,
	period time.Duration,
	deliverer Deliverer,
	overflow OverflowQueue,
) *BatchingBuffer {
	return NewBatchingBuffer(
		limit,
		period,
		10,
		"logship-2006.01.02",
		deliverer,
		overflow,
		metrics.NewNopShippingMetrics(),
		zap.NewNop(),
	)
}

func testEvent(message string) model.LogEvent {
	return model.LogEvent{
		Timestamp: time.Now(),
		Severity:  model.InfoLevel,
		Message:   message,
	}
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered [][]model.LogEvent
	err       error
}

func newFakeDeliverer(err error) *fakeDeliverer {
	return &fakeDeliverer{err: err}
}

func (f *fakeDeliverer) SendBatch(_ context.Context, events []model.LogEvent, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, events)
	return nil
}

func (f *fakeDeliverer) batches() [][]model.LogEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.LogEvent{}, f.delivered...)
}

type stallingDeliverer struct {
	delay time.Duration
}

func newStallingDeliverer(delay time.Duration) *stallingDeliverer {
	return &stallingDeliverer{delay: delay}
}

func (f *stallingDeliverer) SendBatch(ctx context.Context, _ []model.LogEvent, _ string) error {
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeOverflowRecord struct {
	index  string
	events []model.LogEvent
	cause  error
}

type fakeOverflow struct {
	mu       sync.Mutex
	enqueued []fakeOverflowRecord
}

func newFakeOverflow() *fakeOverflow {
	return &fakeOverflow{}
}

func (f *fakeOverflow) Enqueue(index string, events []model.LogEvent, cause error) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, fakeOverflowRecord{index: index, events: events, cause: cause})
	return uint64(len(f.enqueued)), nil
}

func (f *fakeOverflow) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func (f *fakeOverflow) records() []fakeOverflowRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeOverflowRecord{}, f.enqueued...)
}
