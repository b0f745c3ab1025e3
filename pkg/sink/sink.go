package sink

import (
	"context"

	"github.com/Avi18971911/Logship/pkg/event/model"
)

// Sink is one destination for enriched log events. Emit must not block the
// caller on network I/O; remote sinks enqueue and ship from their own
// workers. A sink owns its failures: an error inside one sink never
// propagates to the router or to other sinks.
type Sink interface {
	Name() string
	MinimumLevel() model.Level
	Emit(event model.LogEvent)
	// Close flushes whatever the sink still holds, bounded by ctx.
	Close(ctx context.Context) error
}
