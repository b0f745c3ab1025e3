package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level is an ordered severity. Comparisons use the numeric order, the JSON
// representation is the lowercase name.
type Level int8

const (
	VerboseLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[Level]string{
	VerboseLevel: "verbose",
	DebugLevel:   "debug",
	InfoLevel:    "info",
	WarnLevel:    "warn",
	ErrorLevel:   "error",
	FatalLevel:   "fatal",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel resolves a severity name to a Level. Both the short names and the
// long forms used by older configuration files ("information", "warning") are
// accepted, case-insensitively.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "verbose", "trace":
		return VerboseLevel, nil
	case "debug":
		return DebugLevel, nil
	case "info", "information":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal", "critical":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown severity level %q", name)
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("error unmarshaling severity level: %w", err)
	}
	parsed, err := ParseLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ExceptionInfo captures a failure attached to a log event, including its
// nested cause chain.
type ExceptionInfo struct {
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      *ExceptionInfo `json:"cause,omitempty"`
}

// ExceptionFromError converts a Go error into an ExceptionInfo, unwrapping the
// cause chain as far as it goes.
func ExceptionFromError(err error) *ExceptionInfo {
	if err == nil {
		return nil
	}
	info := &ExceptionInfo{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		info.Cause = ExceptionFromError(u.Unwrap())
	}
	return info
}

// LogEvent is a single structured log record. Once enrichment has run the
// event is treated as immutable; derivations go through WithProperties.
type LogEvent struct {
	Id         string                 `json:"_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Level                  `json:"severity"`
	Message    string                 `json:"message"`
	Service    string                 `json:"service,omitempty"`
	TraceId    string                 `json:"trace_id,omitempty"`
	SpanId     string                 `json:"span_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Exception  *ExceptionInfo         `json:"exception,omitempty"`
}

// WithProperties returns a copy of the event whose property map is replaced by
// the given one. The receiver is never modified.
func (e LogEvent) WithProperties(properties map[string]interface{}) LogEvent {
	copied := e
	copied.Properties = properties
	return copied
}
