package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/stretchr/testify/assert"
)

const testTemplate = "{Timestamp} [{Level}] {Message} {Properties}"

func TestConsoleSink_Emit(t *testing.T) {
	t.Run("Renders the template placeholders", func(t *testing.T) {
		var out bytes.Buffer
		s := NewConsoleSink(&out, testTemplate, false, model.VerboseLevel)

		timestamp := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
		s.Emit(model.LogEvent{
			Timestamp: timestamp,
			Severity:  model.InfoLevel,
			Message:   "order placed",
			Properties: map[string]interface{}{
				"order_id": "42",
			},
		})

		line := out.String()
		assert.Contains(t, line, "2024-03-01T12:30:00Z")
		assert.Contains(t, line, "[INFO]")
		assert.Contains(t, line, "order placed")
		assert.Contains(t, line, `"order_id":"42"`)
	})

	t.Run("Omits the properties placeholder when there are none", func(t *testing.T) {
		var out bytes.Buffer
		s := NewConsoleSink(&out, testTemplate, false, model.VerboseLevel)

		s.Emit(model.LogEvent{
			Timestamp: time.Now(),
			Severity:  model.WarnLevel,
			Message:   "disk filling up",
		})

		line := strings.TrimRight(out.String(), "\n")
		assert.True(t, strings.HasSuffix(line, "disk filling up"))
	})

	t.Run("Wraps the level name in ANSI color codes when colored", func(t *testing.T) {
		var out bytes.Buffer
		s := NewConsoleSink(&out, testTemplate, true, model.VerboseLevel)

		s.Emit(model.LogEvent{
			Timestamp: time.Now(),
			Severity:  model.ErrorLevel,
			Message:   "m",
		})

		assert.Contains(t, out.String(), colorRed+"ERROR"+colorReset)
	})

	t.Run("Appends the exception on its own line", func(t *testing.T) {
		var out bytes.Buffer
		s := NewConsoleSink(&out, testTemplate, false, model.VerboseLevel)

		s.Emit(model.LogEvent{
			Timestamp: time.Now(),
			Severity:  model.ErrorLevel,
			Message:   "delivery failed",
			Exception: &model.ExceptionInfo{
				Type:    "*errors.errorString",
				Message: "connection refused",
			},
		})

		lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
		assert.Len(t, lines, 2)
		assert.Equal(t, "*errors.errorString: connection refused", lines[1])
	})

	t.Run("Close is a no-op", func(t *testing.T) {
		s := NewConsoleSink(&bytes.Buffer{}, testTemplate, false, model.InfoLevel)
		assert.Nil(t, s.Close(context.Background()))
		assert.Equal(t, "console", s.Name())
		assert.Equal(t, model.InfoLevel, s.MinimumLevel())
	})
}
