package service

import (
	"context"
	"testing"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/event_bus"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthMonitor_Probe(t *testing.T) {
	t.Run("Returns the cluster health on success", func(t *testing.T) {
		monitor := newTestMonitor(&fakeProber{
			health: model.ClusterHealth{Status: model.GreenStatus, NumberOfNodes: 3},
		})
		health := monitor.Probe(context.Background())
		assert.Equal(t, model.GreenStatus, health.Status)
		assert.Equal(t, 3, health.NumberOfNodes)
	})

	t.Run("A stalled cluster yields Unknown within the configured timeout", func(t *testing.T) {
		monitor := newTestMonitor(&fakeProber{stall: 10 * time.Second})

		start := time.Now()
		health := monitor.Probe(context.Background())
		elapsed := time.Since(start)

		assert.Equal(t, model.UnknownStatus, health.Status)
		assert.Less(t, elapsed, 2*time.Second)
	})

	t.Run("A failing probe yields Unknown instead of an error", func(t *testing.T) {
		monitor := newTestMonitor(&fakeProber{err: context.DeadlineExceeded})
		health := monitor.Probe(context.Background())
		assert.Equal(t, model.UnknownStatus, health.Status)
	})
}

func TestHealthMonitor_Run(t *testing.T) {
	t.Run("Snapshot reflects the latest probe without blocking", func(t *testing.T) {
		monitor := newTestMonitor(&fakeProber{
			health: model.ClusterHealth{Status: model.YellowStatus},
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go monitor.Run(ctx)

		require.Eventually(t, func() bool {
			return monitor.Snapshot().Status == model.YellowStatus
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("Publishes health transitions on the event bus", func(t *testing.T) {
		bus := event_bus.NewShippingEventBus[model.ClusterHealth](EventBus.New(), zap.NewNop())
		received := make(chan model.ClusterHealth, 1)
		err := bus.Subscribe(event_bus.HealthTopic, func(health model.ClusterHealth) error {
			received <- health
			return nil
		}, false)
		assert.Nil(t, err)

		monitor := NewHealthMonitor(
			&fakeProber{health: model.ClusterHealth{Status: model.RedStatus}},
			50*time.Millisecond,
			time.Second,
			bus,
			metrics.NewNopShippingMetrics(),
			zap.NewNop(),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go monitor.Run(ctx)

		select {
		case health := <-received:
			assert.Equal(t, model.RedStatus, health.Status)
		case <-time.After(2 * time.Second):
			t.Fatal("expected a health transition on the bus")
		}
	})
}

func newTestMonitor(prober HealthProber) *HealthMonitor {
	bus := event_bus.NewShippingEventBus[model.ClusterHealth](EventBus.New(), zap.NewNop())
	return NewHealthMonitor(
		prober,
		time.Minute,
		100*time.Millisecond,
		bus,
		metrics.NewNopShippingMetrics(),
		zap.NewNop(),
	)
}

type fakeProber struct {
	health model.ClusterHealth
	err    error
	stall  time.Duration
}

func (f *fakeProber) ClusterHealth(ctx context.Context) (model.ClusterHealth, error) {
	if f.stall > 0 {
		select {
		case <-time.After(f.stall):
		case <-ctx.Done():
			return model.ClusterHealth{}, ctx.Err()
		}
	}
	if f.err != nil {
		return model.ClusterHealth{}, f.err
	}
	return f.health, nil
}
