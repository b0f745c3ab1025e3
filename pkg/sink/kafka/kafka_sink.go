package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const emitQueueSize = 1024

// KafkaSink publishes events to a topic through a background worker, so
// producers never wait on the broker. A full emit queue drops the event with
// a diagnostic rather than blocking the caller.
type KafkaSink struct {
	writer   *kafka.Writer
	minLevel model.Level
	queue    chan model.LogEvent
	done     chan struct{}
	logger   *zap.Logger
}

func NewKafkaSink(
	brokers []string,
	topic string,
	minLevel model.Level,
	logger *zap.Logger,
) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
	}
	s := &KafkaSink{
		writer:   writer,
		minLevel: minLevel,
		queue:    make(chan model.LogEvent, emitQueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go s.run()
	return s
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) MinimumLevel() model.Level {
	return s.minLevel
}

func (s *KafkaSink) Emit(event model.LogEvent) {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn("Kafka sink queue full, dropping event")
	}
}

func (s *KafkaSink) Close(ctx context.Context) error {
	close(s.queue)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s.writer.Close()
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for event := range s.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("Failed to marshal event for the kafka sink", zap.Error(err))
			continue
		}
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = s.writer.WriteMessages(writeCtx, kafka.Message{
			Key:   []byte(event.Service),
			Value: payload,
		})
		cancel()
		if err != nil {
			s.logger.Error("Failed to publish event to kafka", zap.Error(err))
		}
	}
}
