package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/Avi18971911/Logship/pkg/config"
	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// ShipperClient is the transport the shipping path and the health monitor
// share. The bulk wire format belongs to the Elasticsearch client library;
// this layer only builds request bodies and classifies failures.
type ShipperClient interface {
	// SendBatch bulk-indexes the events into the given index. A nil return is
	// the delivery acknowledgment; any failure comes back as a *DeliveryError.
	SendBatch(ctx context.Context, events []model.LogEvent, index string) error
	// ClusterHealth issues a read-only cluster status request.
	ClusterHealth(ctx context.Context) (model.ClusterHealth, error)
}

type ShipperClientImpl struct {
	es      *elasticsearch.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewShipperClientImpl(
	es *elasticsearch.Client,
	timeout time.Duration,
	logger *zap.Logger,
) *ShipperClientImpl {
	return &ShipperClientImpl{es: es, timeout: timeout, logger: logger}
}

// NewElasticsearchClient builds the underlying cluster client from the remote
// settings: endpoint set, sniffing, auth policy, and TLS verification policy.
// Permissive TLS is a deliberate operator choice and is logged loudly.
func NewElasticsearchClient(
	settings config.RemoteSettings,
	logger *zap.Logger,
) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses:            settings.Addresses,
		DiscoverNodesOnStart: settings.Sniffing,
	}
	if settings.Sniffing {
		cfg.DiscoverNodesInterval = 5 * time.Minute
	}

	switch settings.AuthMode {
	case config.AuthNone:
	case config.AuthBasic:
		cfg.Username = settings.Username
		cfg.Password = settings.Password
	case config.AuthApiKey:
		cfg.APIKey = settings.ApiKey
	default:
		return nil, fmt.Errorf("unknown auth mode %q", settings.AuthMode)
	}

	if settings.InsecureSkipTLSVerify {
		logger.Warn("TLS certificate verification is disabled for the remote cluster")
		cfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating elasticsearch client: %w", err)
	}
	return es, nil
}

// IndexName renders the dated index for an event timestamp. The format is a
// Go reference-time layout, e.g. "logship-2006.01.02".
func IndexName(format string, timestamp time.Time) string {
	return timestamp.UTC().Format(format)
}
