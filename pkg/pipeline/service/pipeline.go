package service

import (
	"context"
	"fmt"
	"time"

	enrichmentService "github.com/Avi18971911/Logship/pkg/enrichment/service"
	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"github.com/Avi18971911/Logship/pkg/sink"
	"go.uber.org/zap"
)

// Pipeline is the explicit handle call sites emit through. There is no
// process-wide singleton; tests inject fake sinks and enrichers directly.
// Emit enriches once and fans out to every sink whose minimum level admits
// the event. Sinks are isolated from each other: each Emit call is expected
// to be non-blocking, and a panicking sink is contained and disabled from
// the router's point of view for that event only.
type Pipeline struct {
	enricher     enrichmentService.Enricher
	sinks        []sink.Sink
	minimumLevel model.Level
	service      string
	metrics      *metrics.ShippingMetrics
	logger       *zap.Logger
}

func NewPipeline(
	enricher enrichmentService.Enricher,
	sinks []sink.Sink,
	minimumLevel model.Level,
	service string,
	shippingMetrics *metrics.ShippingMetrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		enricher:     enricher,
		sinks:        sinks,
		minimumLevel: minimumLevel,
		service:      service,
		metrics:      shippingMetrics,
		logger:       logger,
	}
}

// Emit routes one event. Events below the global minimum level are dropped
// before enrichment runs.
func (p *Pipeline) Emit(ctx context.Context, event model.LogEvent) {
	if event.Severity < p.minimumLevel {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Service == "" {
		event.Service = p.service
	}
	enriched := p.enricher.Enrich(ctx, event)
	for _, s := range p.sinks {
		if enriched.Severity < s.MinimumLevel() {
			continue
		}
		p.emitTo(s, enriched)
	}
}

func (p *Pipeline) emitTo(s sink.Sink, event model.LogEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Sink panicked while emitting",
				zap.String("sink", s.Name()),
				zap.Any("panic", r),
			)
		}
	}()
	s.Emit(event)
	p.metrics.EventsEmitted.WithLabelValues(s.Name()).Inc()
}

// Close shuts the sinks down in registration order, each bounded by ctx.
func (p *Pipeline) Close(ctx context.Context) error {
	var firstErr error
	for _, s := range p.sinks {
		if err := s.Close(ctx); err != nil {
			p.logger.Error("Failed to close sink",
				zap.String("sink", s.Name()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("error closing sink %s: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}

func (p *Pipeline) emitLevel(
	ctx context.Context,
	level model.Level,
	message string,
	properties map[string]interface{},
	err error,
) {
	p.Emit(ctx, model.LogEvent{
		Timestamp:  time.Now(),
		Severity:   level,
		Message:    message,
		Properties: properties,
		Exception:  model.ExceptionFromError(err),
	})
}

func (p *Pipeline) Verbose(ctx context.Context, message string, properties map[string]interface{}) {
	p.emitLevel(ctx, model.VerboseLevel, message, properties, nil)
}

func (p *Pipeline) Debug(ctx context.Context, message string, properties map[string]interface{}) {
	p.emitLevel(ctx, model.DebugLevel, message, properties, nil)
}

func (p *Pipeline) Info(ctx context.Context, message string, properties map[string]interface{}) {
	p.emitLevel(ctx, model.InfoLevel, message, properties, nil)
}

func (p *Pipeline) Warn(ctx context.Context, message string, properties map[string]interface{}) {
	p.emitLevel(ctx, model.WarnLevel, message, properties, nil)
}

func (p *Pipeline) Error(ctx context.Context, message string, err error, properties map[string]interface{}) {
	p.emitLevel(ctx, model.ErrorLevel, message, properties, err)
}

func (p *Pipeline) Fatal(ctx context.Context, message string, err error, properties map[string]interface{}) {
	p.emitLevel(ctx, model.FatalLevel, message, properties, err)
}
