package service

import (
	"context"
	"errors"
	"time"

	eventModel "github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"go.uber.org/zap"
)

// SendFunc retries one batch against the cluster. It matches the shipper
// client's SendBatch signature.
type SendFunc func(ctx context.Context, events []eventModel.LogEvent, index string) error

// Drainer replays pending overflow records on a fixed interval, oldest first.
// A failed attempt stops the current pass; the cluster is evidently still
// unwell and hammering it with the rest of the queue gains nothing.
type Drainer struct {
	queue      *Queue
	send       SendFunc
	interval   time.Duration
	maxRetries int
	metrics    *metrics.ShippingMetrics
	logger     *zap.Logger
}

func NewDrainer(
	queue *Queue,
	send SendFunc,
	interval time.Duration,
	maxRetries int,
	shippingMetrics *metrics.ShippingMetrics,
	logger *zap.Logger,
) *Drainer {
	return &Drainer{
		queue:      queue,
		send:       send,
		interval:   interval,
		maxRetries: maxRetries,
		metrics:    shippingMetrics,
		logger:     logger,
	}
}

// Run drains until ctx is canceled. It never returns an error: every failure
// is self-contained in the queue's retry accounting.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.drainDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Drainer) drainDue(ctx context.Context) {
	for {
		head, err := d.queue.Head()
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) {
				d.logger.Error("Failed to read overflow queue head", zap.Error(err))
			}
			d.metrics.DeadLetterPending.Set(float64(d.queue.Pending()))
			return
		}

		events, err := d.queue.Events(head.Seq)
		if err != nil {
			d.logger.Error("Failed to load overflow record payload, dropping record",
				zap.Uint64("seq", head.Seq),
				zap.Error(err),
			)
			if ackErr := d.queue.Ack(); ackErr != nil {
				d.logger.Error("Failed to drop unreadable overflow record", zap.Error(ackErr))
				return
			}
			continue
		}

		sendErr := d.send(ctx, events, head.Index)
		if sendErr == nil {
			if err := d.queue.Ack(); err != nil {
				d.logger.Error("Failed to acknowledge delivered overflow record", zap.Error(err))
				return
			}
			d.metrics.DeadLetterRecovers.Inc()
			d.metrics.DeadLetterPending.Set(float64(d.queue.Pending()))
			d.logger.Info("Recovered overflow record",
				zap.Uint64("seq", head.Seq),
				zap.Int("events", len(events)),
				zap.Int("attempts", head.Attempts+1),
			)
			continue
		}

		dropped, failErr := d.queue.Fail(d.maxRetries, sendErr)
		if failErr != nil {
			d.logger.Error("Failed to record overflow retry attempt", zap.Error(failErr))
			return
		}
		if dropped {
			d.metrics.DeadLetterDropped.Inc()
			d.logger.Error("Dropped overflow record after exhausting retries",
				zap.Uint64("seq", head.Seq),
				zap.Int("events", len(events)),
				zap.Int("attempts", head.Attempts+1),
				zap.Error(sendErr),
			)
			continue
		}

		d.logger.Warn("Overflow record retry failed, requeued",
			zap.Uint64("seq", head.Seq),
			zap.Int("attempts", head.Attempts+1),
			zap.Error(sendErr),
		)
		d.metrics.DeadLetterPending.Set(float64(d.queue.Pending()))
		return
	}
}
