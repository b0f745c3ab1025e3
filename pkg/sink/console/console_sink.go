package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
)

const (
	colorReset  = "\x1b[0m"
	colorGray   = "\x1b[90m"
	colorCyan   = "\x1b[36m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

var levelColors = map[model.Level]string{
	model.VerboseLevel: colorGray,
	model.DebugLevel:   colorGray,
	model.InfoLevel:    colorCyan,
	model.WarnLevel:    colorYellow,
	model.ErrorLevel:   colorRed,
	model.FatalLevel:   colorRed,
}

// ConsoleSink renders events through an output template with the
// placeholders {Timestamp}, {Level}, {Message} and {Properties}.
type ConsoleSink struct {
	out      io.Writer
	template string
	colored  bool
	minLevel model.Level
	mu       sync.Mutex
}

func NewConsoleSink(
	out io.Writer,
	template string,
	colored bool,
	minLevel model.Level,
) *ConsoleSink {
	return &ConsoleSink{
		out:      out,
		template: template,
		colored:  colored,
		minLevel: minLevel,
	}
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) MinimumLevel() model.Level {
	return s.minLevel
}

func (s *ConsoleSink) Emit(event model.LogEvent) {
	line := s.render(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	// A console write failure is not worth surfacing anywhere.
	_, _ = fmt.Fprintln(s.out, line)
}

func (s *ConsoleSink) Close(_ context.Context) error {
	return nil
}

func (s *ConsoleSink) render(event model.LogEvent) string {
	levelName := strings.ToUpper(event.Severity.String())
	if s.colored {
		if color, ok := levelColors[event.Severity]; ok {
			levelName = color + levelName + colorReset
		}
	}
	properties := ""
	if len(event.Properties) > 0 {
		if encoded, err := json.Marshal(event.Properties); err == nil {
			properties = string(encoded)
		}
	}
	line := s.template
	line = strings.ReplaceAll(line, "{Timestamp}", event.Timestamp.Format(time.RFC3339))
	line = strings.ReplaceAll(line, "{Level}", levelName)
	line = strings.ReplaceAll(line, "{Message}", event.Message)
	line = strings.ReplaceAll(line, "{Properties}", properties)
	if event.Exception != nil {
		line = line + "\n" + event.Exception.Type + ": " + event.Exception.Message
	}
	return strings.TrimRight(line, " ")
}
