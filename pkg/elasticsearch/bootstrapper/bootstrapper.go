package bootstrapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

const retries = 30
const waitTime = 5

// Bootstrapper prepares the cluster for shipping: waits until it answers and
// installs the index template backing the dated log indices.
type Bootstrapper struct {
	esClient *elasticsearch.Client
	logger   *zap.Logger
}

func NewBootstrapper(esClient *elasticsearch.Client, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		esClient: esClient,
		logger:   logger,
	}
}

func (bs *Bootstrapper) BootstrapElasticsearch() error {
	if err := bs.waitForElasticsearch(retries, waitTime*time.Second); err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	if err := bs.createIndexTemplate(LogTemplateName, logIndexTemplate); err != nil {
		return fmt.Errorf("error creating log index template: %w", err)
	}

	return nil
}

func (bs *Bootstrapper) waitForElasticsearch(maxRetries int, delay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		res, err := bs.esClient.Info()
		if err == nil && res.StatusCode == 200 {
			bs.logger.Info("Elasticsearch is available")
			return nil
		}
		bs.logger.Warn(fmt.Sprintf("Elasticsearch not available (attempt %d/%d), retrying...", i+1, maxRetries))

		time.Sleep(delay)
	}

	return fmt.Errorf("Elasticsearch is not available after %d attempts", maxRetries)
}

func (bs *Bootstrapper) createIndexTemplate(templateName string, template map[string]interface{}) error {
	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("error marshaling index template during bootstrap: %w", err)
	}

	res, err := bs.esClient.Indices.PutIndexTemplate(
		templateName,
		strings.NewReader(string(body)),
	)
	if err != nil {
		return fmt.Errorf("error creating index template %s: %w", templateName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index template creation error for %s: %s", templateName, res.String())
	}
	bs.logger.Info("Created index template", zap.String("template", templateName))
	return nil
}
