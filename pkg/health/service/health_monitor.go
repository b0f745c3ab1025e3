package service

import (
	"context"
	"sync"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/event_bus"
	"github.com/Avi18971911/Logship/pkg/metrics"
	"go.uber.org/zap"
)

// HealthProber is the read-only slice of the shipper client the monitor needs.
type HealthProber interface {
	ClusterHealth(ctx context.Context) (model.ClusterHealth, error)
}

var statusGaugeValues = map[model.HealthStatus]float64{
	model.GreenStatus:   0,
	model.YellowStatus:  1,
	model.RedStatus:     2,
	model.UnknownStatus: 3,
}

// HealthMonitor probes the cluster on a fixed timer, fully decoupled from the
// shipping path. A probe never raises: timeouts and error responses downgrade
// the snapshot to Unknown. Status transitions are published on the event bus
// so the batching buffers can adjust their flush aggressiveness.
type HealthMonitor struct {
	prober   HealthProber
	interval time.Duration
	timeout  time.Duration
	bus      event_bus.ShippingEventBus[model.ClusterHealth]
	metrics  *metrics.ShippingMetrics
	logger   *zap.Logger

	mu       sync.RWMutex
	snapshot model.ClusterHealth
}

func NewHealthMonitor(
	prober HealthProber,
	interval time.Duration,
	timeout time.Duration,
	bus event_bus.ShippingEventBus[model.ClusterHealth],
	shippingMetrics *metrics.ShippingMetrics,
	logger *zap.Logger,
) *HealthMonitor {
	return &HealthMonitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		bus:      bus,
		metrics:  shippingMetrics,
		logger:   logger,
		snapshot: model.ClusterHealth{Status: model.UnknownStatus, ObservedAt: time.Now()},
	}
}

// Run probes until ctx is canceled. The first probe fires immediately so the
// pipeline does not start with a stale Unknown snapshot.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.probeOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.probeOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Probe performs one health check bounded by the configured timeout. This is
// also the entry point for an external health-check aggregator.
func (m *HealthMonitor) Probe(ctx context.Context) model.ClusterHealth {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	health, err := m.prober.ClusterHealth(probeCtx)
	if err != nil {
		m.logger.Warn("Cluster health probe failed", zap.Error(err))
		return model.ClusterHealth{Status: model.UnknownStatus, ObservedAt: time.Now()}
	}
	return health
}

// Snapshot returns the latest observed health without blocking.
func (m *HealthMonitor) Snapshot() model.ClusterHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *HealthMonitor) probeOnce(ctx context.Context) {
	health := m.Probe(ctx)
	m.metrics.ClusterHealth.Set(statusGaugeValues[health.Status])

	m.mu.Lock()
	previous := m.snapshot
	m.snapshot = health
	m.mu.Unlock()

	if previous.Status == health.Status {
		return
	}
	m.logger.Info("Cluster health transition",
		zap.String("from", string(previous.Status)),
		zap.String("to", string(health.Status)),
		zap.Int("nodes", health.NumberOfNodes),
	)
	if err := m.bus.Publish(event_bus.HealthTopic, health); err != nil {
		m.logger.Error("Failed to publish cluster health transition", zap.Error(err))
	}
}
