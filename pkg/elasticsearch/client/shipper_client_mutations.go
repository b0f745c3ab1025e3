package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"go.uber.org/zap"
)

func (s *ShipperClientImpl) SendBatch(
	ctx context.Context,
	events []model.LogEvent,
	index string,
) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, event := range events {
		meta := map[string]interface{}{"index": map[string]interface{}{}}
		if event.Id != "" {
			meta = map[string]interface{}{"index": map[string]interface{}{"_id": event.Id}}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("error marshaling meta to bulk index: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		eventJSON, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("error marshaling event to bulk index: %w", err)
		}
		buf.Write(eventJSON)
		buf.WriteByte('\n')
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.es.Bulk.WithIndex(index),
		s.es.Bulk.WithContext(sendCtx),
	)
	if err != nil {
		return newTransportDeliveryError(fmt.Errorf("error bulk indexing: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		class := classifyStatus(res.StatusCode)
		if class == FatalError {
			s.logger.Error("Bulk delivery rejected by the cluster",
				zap.Int("status", res.StatusCode),
				zap.Int("events", len(events)),
			)
		}
		return &DeliveryError{
			Class:      class,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("bulk index error: %s", res.String()),
		}
	}
	return nil
}
