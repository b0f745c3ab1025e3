package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Avi18971911/Logship/pkg/elasticsearch/client"
	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var errShutdownAbandoned = errors.New("shutdown grace period expired before delivery")

// Deliverer sends one sealed batch; satisfied by the shipper client.
type Deliverer interface {
	SendBatch(ctx context.Context, events []model.LogEvent, index string) error
}

// OverflowQueue receives batches that could not be delivered. Nil-able: with
// the dead-letter queue disabled, failed batches are dropped with a
// diagnostic.
type OverflowQueue interface {
	Enqueue(index string, events []model.LogEvent, cause error) (uint64, error)
	Pending() int
}

type batch struct {
	events []model.LogEvent
	index  string
}

// BatchingBuffer accumulates events for one remote sink and seals a batch
// when the event count reaches the posting limit or the batch age reaches the
// period, whichever happens first. Appends never wait on an in-flight flush:
// sealing moves the slice onto a queue drained by the flush worker, and the
// producer-side critical section covers only the append and the seal check.
// Delivery and the age timer run on their own goroutines.
//
// Advisory backpressure: while the cluster is degraded the effective period
// is stretched by the configured factor, so a struggling cluster sees fewer,
// larger requests.
type BatchingBuffer struct {
	limit          int
	period         time.Duration
	degradedFactor int64
	factor         atomic.Int64
	indexFormat    string

	deliverer Deliverer
	overflow  OverflowQueue
	metrics   *metrics.ShippingMetrics
	logger    *zap.Logger

	mu      sync.Mutex
	current []model.LogEvent
	firstAt time.Time
	queue   []batch
	closed  bool

	signal      chan struct{}
	quit        chan struct{}
	abort       chan struct{}
	flushCtx    context.Context
	flushCancel context.CancelFunc
	timerWg     sync.WaitGroup
	flushWg     sync.WaitGroup
	closeOnce   sync.Once
}

func NewBatchingBuffer(
	limit int,
	period time.Duration,
	degradedFactor int,
	indexFormat string,
	deliverer Deliverer,
	overflow OverflowQueue,
	shippingMetrics *metrics.ShippingMetrics,
	logger *zap.Logger,
) *BatchingBuffer {
	if degradedFactor < 1 {
		degradedFactor = 1
	}
	b := &BatchingBuffer{
		limit:          limit,
		period:         period,
		degradedFactor: int64(degradedFactor),
		indexFormat:    indexFormat,
		deliverer:      deliverer,
		overflow:       overflow,
		metrics:        shippingMetrics,
		logger:         logger,
		signal:         make(chan struct{}, 1),
		quit:           make(chan struct{}),
		abort:          make(chan struct{}),
	}
	b.flushCtx, b.flushCancel = context.WithCancel(context.Background())
	b.factor.Store(1)
	b.timerWg.Add(1)
	go b.timerLoop()
	b.flushWg.Add(1)
	go b.flushLoop()
	return b
}

// Append adds one event, sealing the batch if it hit the posting limit.
// Events appended after Close are dropped with a diagnostic.
func (b *BatchingBuffer) Append(event model.LogEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("Dropping event appended to a closed buffer",
			zap.String("message", event.Message),
		)
		return
	}
	if len(b.current) == 0 {
		b.firstAt = time.Now()
	}
	b.current = append(b.current, event)
	if len(b.current) >= b.limit {
		b.sealLocked()
	}
	b.mu.Unlock()
}

// SetDegraded switches the effective flush period between the configured one
// and its degraded stretch.
func (b *BatchingBuffer) SetDegraded(degraded bool) {
	if degraded {
		b.factor.Store(b.degradedFactor)
	} else {
		b.factor.Store(1)
	}
}

// Close seals whatever is accumulating, then waits for in-flight deliveries
// within the grace period of ctx. Batches that cannot be delivered in time
// are persisted to the overflow queue instead of being lost.
func (b *BatchingBuffer) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.quit)
		b.timerWg.Wait()

		b.mu.Lock()
		b.sealLocked()
		b.closed = true
		b.mu.Unlock()
		b.wake()

		done := make(chan struct{})
		go func() {
			b.flushWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			close(b.abort)
			b.flushCancel()
			<-done
		}
		b.flushCancel()
	})
	return nil
}

// sealLocked moves the accumulating events onto the flush queue and starts a
// new batch. Caller holds b.mu.
func (b *BatchingBuffer) sealLocked() {
	if len(b.current) == 0 {
		return
	}
	sealed := batch{
		events: b.current,
		index:  client.IndexName(b.indexFormat, b.firstAt),
	}
	b.current = nil
	b.queue = append(b.queue, sealed)
	b.metrics.BatchesSealed.Inc()
	b.wake()
}

func (b *BatchingBuffer) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *BatchingBuffer) timerLoop() {
	defer b.timerWg.Done()
	tick := b.period / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			effective := b.period * time.Duration(b.factor.Load())
			b.mu.Lock()
			if len(b.current) > 0 && time.Since(b.firstAt) >= effective {
				b.sealLocked()
			}
			b.mu.Unlock()
		case <-b.quit:
			return
		}
	}
}

func (b *BatchingBuffer) flushLoop() {
	defer b.flushWg.Done()
	for {
		b.mu.Lock()
		pending := b.queue
		b.queue = nil
		closed := b.closed
		b.mu.Unlock()

		for _, sealed := range pending {
			select {
			case <-b.abort:
				b.toOverflow(sealed, errShutdownAbandoned)
				continue
			default:
			}
			b.flush(sealed)
		}

		if closed {
			b.mu.Lock()
			remaining := len(b.queue)
			b.mu.Unlock()
			if remaining == 0 {
				return
			}
			continue
		}
		<-b.signal
	}
}

func (b *BatchingBuffer) flush(sealed batch) {
	timer := prometheus.NewTimer(b.metrics.FlushDuration)
	err := b.deliverer.SendBatch(b.flushCtx, sealed.events, sealed.index)
	timer.ObserveDuration()
	if err == nil {
		b.metrics.BatchesFlushed.Inc()
		return
	}
	b.metrics.BatchesFailed.Inc()
	b.toOverflow(sealed, err)
}

func (b *BatchingBuffer) toOverflow(sealed batch, cause error) {
	if b.overflow == nil {
		b.logger.Error("Dropping undeliverable batch: dead-letter queue disabled",
			zap.Int("events", len(sealed.events)),
			zap.Error(cause),
		)
		return
	}
	seq, err := b.overflow.Enqueue(sealed.index, sealed.events, cause)
	if err != nil {
		b.logger.Error("Failed to persist undeliverable batch to the dead-letter queue",
			zap.Int("events", len(sealed.events)),
			zap.Error(err),
		)
		return
	}
	b.metrics.DeadLetterPending.Set(float64(b.overflow.Pending()))
	b.logger.Warn("Batch handed to the dead-letter queue",
		zap.Uint64("seq", seq),
		zap.Int("events", len(sealed.events)),
		zap.Error(cause),
	)
}
