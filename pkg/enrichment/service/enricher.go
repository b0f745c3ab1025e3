package service

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownValue is substituted when a dynamic enricher cannot resolve its
// value. Enrichment never fails an event over a missing field.
const UnknownValue = "none"

const (
	MachineNameProperty   = "machine_name"
	ProcessIdProperty     = "process_id"
	GoroutineIdProperty   = "goroutine_id"
	SpanIdProperty        = "span_id"
	CorrelationIdProperty = "correlation_id"
	ApplicationProperty   = "application"
	EnvironmentProperty   = "environment"
)

// Toggles selects which dynamic enrichers run. Each one is independent.
type Toggles struct {
	MachineName      bool
	ProcessId        bool
	GoroutineId      bool
	SpanId           bool
	CorrelationId    bool
	ExceptionDetails bool
}

type Enricher interface {
	// Enrich returns a new event carrying the static properties, the scope
	// overlays active on ctx, and the toggled dynamic fields. The input event
	// is never mutated.
	Enrich(ctx context.Context, event model.LogEvent) model.LogEvent
}

type EnricherImpl struct {
	staticProperties map[string]interface{}
	toggles          Toggles
	logger           *zap.Logger
}

func NewEnricherImpl(
	staticProperties map[string]interface{},
	toggles Toggles,
	logger *zap.Logger,
) *EnricherImpl {
	copied := make(map[string]interface{}, len(staticProperties))
	for k, v := range staticProperties {
		copied[k] = v
	}
	return &EnricherImpl{
		staticProperties: copied,
		toggles:          toggles,
		logger:           logger,
	}
}

func (e *EnricherImpl) Enrich(ctx context.Context, event model.LogEvent) model.LogEvent {
	properties := make(map[string]interface{}, len(e.staticProperties)+len(event.Properties)+6)
	for k, v := range e.staticProperties {
		properties[k] = v
	}
	if stack, ok := ScopeStackFromContext(ctx); ok {
		for k, v := range stack.Flatten() {
			properties[k] = v
		}
	}
	for k, v := range event.Properties {
		properties[k] = v
	}

	if e.toggles.MachineName {
		properties[MachineNameProperty] = machineName()
	}
	if e.toggles.ProcessId {
		properties[ProcessIdProperty] = os.Getpid()
	}
	if e.toggles.GoroutineId {
		properties[GoroutineIdProperty] = goroutineId()
	}
	if e.toggles.SpanId {
		if event.SpanId != "" {
			properties[SpanIdProperty] = event.SpanId
		} else {
			properties[SpanIdProperty] = UnknownValue
		}
	}
	if e.toggles.CorrelationId {
		properties[CorrelationIdProperty] = e.correlationId(ctx)
	}

	enriched := event.WithProperties(properties)
	if !e.toggles.ExceptionDetails {
		enriched.Exception = nil
	}
	return enriched
}

// correlationId prefers the id pinned on the context and mints a fresh one
// otherwise, so related events under one context share the same id.
func (e *EnricherImpl) correlationId(ctx context.Context) string {
	if id, ok := CorrelationIdFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

func machineName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return UnknownValue
	}
	return hostname
}

// goroutineId parses the header of the current goroutine's stack trace. The
// runtime offers no direct accessor, and the header format has been stable
// since go1.4.
func goroutineId() string {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	header := strings.TrimPrefix(string(buf), "goroutine ")
	idField := strings.SplitN(header, " ", 2)[0]
	if _, err := strconv.ParseUint(idField, 10, 64); err != nil {
		return UnknownValue
	}
	return idField
}
