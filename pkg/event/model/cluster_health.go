package model

import "time"

type HealthStatus string

const (
	GreenStatus   HealthStatus = "green"
	YellowStatus  HealthStatus = "yellow"
	RedStatus     HealthStatus = "red"
	UnknownStatus HealthStatus = "unknown"
)

// ClusterHealth is the latest observed state of the remote cluster. Consumers
// read snapshots; a snapshot is never updated in place.
type ClusterHealth struct {
	Status           HealthStatus `json:"status"`
	NumberOfNodes    int          `json:"number_of_nodes"`
	ActiveShards     int          `json:"active_shards"`
	RelocatingShards int          `json:"relocating_shards"`
	UnassignedShards int          `json:"unassigned_shards"`
	ObservedAt       time.Time    `json:"observed_at"`
}

// Healthy reports whether the cluster can be considered writable.
func (h ClusterHealth) Healthy() bool {
	return h.Status == GreenStatus || h.Status == YellowStatus
}

// Degraded reports whether shipping should back off.
func (h ClusterHealth) Degraded() bool {
	return h.Status == RedStatus || h.Status == UnknownStatus
}
