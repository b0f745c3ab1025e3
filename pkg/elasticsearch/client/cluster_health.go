package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
)

type clusterHealthResponse struct {
	Status           string `json:"status"`
	NumberOfNodes    int    `json:"number_of_nodes"`
	ActiveShards     int    `json:"active_shards"`
	RelocatingShards int    `json:"relocating_shards"`
	UnassignedShards int    `json:"unassigned_shards"`
}

func (s *ShipperClientImpl) ClusterHealth(ctx context.Context) (model.ClusterHealth, error) {
	res, err := s.es.Cluster.Health(
		s.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return model.ClusterHealth{}, fmt.Errorf("error requesting cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return model.ClusterHealth{}, fmt.Errorf("cluster health error: %s", res.String())
	}

	var parsed clusterHealthResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return model.ClusterHealth{}, fmt.Errorf("error decoding cluster health response: %w", err)
	}

	status := model.HealthStatus(parsed.Status)
	switch status {
	case model.GreenStatus, model.YellowStatus, model.RedStatus:
	default:
		status = model.UnknownStatus
	}
	return model.ClusterHealth{
		Status:           status,
		NumberOfNodes:    parsed.NumberOfNodes,
		ActiveShards:     parsed.ActiveShards,
		RelocatingShards: parsed.RelocatingShards,
		UnassignedShards: parsed.UnassignedShards,
		ObservedAt:       time.Now(),
	}, nil
}
