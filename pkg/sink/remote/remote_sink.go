package remote

import (
	"context"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/event_bus"
	"go.uber.org/zap"
)

// RemoteSink ships events to the cluster through its batching buffer. It
// subscribes to health transitions so the buffer can stretch its flush
// period while the cluster is degraded.
type RemoteSink struct {
	buffer   *BatchingBuffer
	minLevel model.Level
	logger   *zap.Logger
}

func NewRemoteSink(
	buffer *BatchingBuffer,
	minLevel model.Level,
	healthBus event_bus.ShippingEventBus[model.ClusterHealth],
	logger *zap.Logger,
) (*RemoteSink, error) {
	s := &RemoteSink{
		buffer:   buffer,
		minLevel: minLevel,
		logger:   logger,
	}
	if healthBus != nil {
		err := healthBus.Subscribe(event_bus.HealthTopic, func(health model.ClusterHealth) error {
			s.buffer.SetDegraded(health.Degraded())
			return nil
		}, false)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *RemoteSink) Name() string {
	return "elasticsearch"
}

func (s *RemoteSink) MinimumLevel() model.Level {
	return s.minLevel
}

func (s *RemoteSink) Emit(event model.LogEvent) {
	s.buffer.Append(event)
}

func (s *RemoteSink) Close(ctx context.Context) error {
	return s.buffer.Close(ctx)
}
