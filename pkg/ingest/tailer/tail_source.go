package tailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	pipelineService "github.com/Avi18971911/Logship/pkg/pipeline/service"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// TailSource follows one local log file and emits each line into the
// pipeline. JSON lines are decoded into structured events; anything else
// becomes an info-level event with the raw line as its message.
type TailSource struct {
	path     string
	pipeline *pipelineService.Pipeline
	logger   *zap.Logger
}

type jsonLine struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceId   string                 `json:"trace_id"`
	SpanId    string                 `json:"span_id"`
	Fields    map[string]interface{} `json:"fields"`
}

func NewTailSource(
	path string,
	pipeline *pipelineService.Pipeline,
	logger *zap.Logger,
) *TailSource {
	return &TailSource{
		path:     path,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run follows the file until ctx is canceled, surviving rotations.
func (s *TailSource) Run(ctx context.Context) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("error tailing file %s: %w", s.path, err)
	}
	defer func() {
		_ = t.Stop()
	}()

	s.logger.Info("Tailing file", zap.String("path", s.path))
	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				s.logger.Warn("Tail read error",
					zap.String("path", s.path),
					zap.Error(line.Err),
				)
				continue
			}
			s.pipeline.Emit(ctx, s.typeLine(line.Text))
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *TailSource) typeLine(text string) model.LogEvent {
	var parsed jsonLine
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed.Message == "" {
		return model.LogEvent{
			Severity: model.InfoLevel,
			Message:  text,
		}
	}
	severity := model.InfoLevel
	if parsed.Level != "" {
		if level, err := model.ParseLevel(parsed.Level); err == nil {
			severity = level
		}
	}
	return model.LogEvent{
		Timestamp:  parsed.Timestamp,
		Severity:   severity,
		Message:    parsed.Message,
		TraceId:    parsed.TraceId,
		SpanId:     parsed.SpanId,
		Properties: parsed.Fields,
	}
}
