package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	pipelineService "github.com/Avi18971911/Logship/pkg/pipeline/service"
	protoLogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonV1 "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/logs/v1"
	"go.uber.org/zap"
)

// LogServiceServerImpl accepts OTLP log export requests and feeds the typed
// events into the shipping pipeline. Export returns immediately; everything
// past the pipeline handle is asynchronous by construction.
type LogServiceServerImpl struct {
	protoLogs.UnimplementedLogsServiceServer
	pipeline *pipelineService.Pipeline
	logger   *zap.Logger
}

func NewLogServiceServerImpl(
	logger *zap.Logger,
	pipeline *pipelineService.Pipeline,
) *LogServiceServerImpl {
	logger.Info("Creating new LogServiceServerImpl")
	return &LogServiceServerImpl{
		logger:   logger,
		pipeline: pipeline,
	}
}

func (lss *LogServiceServerImpl) Export(
	ctx context.Context,
	req *protoLogs.ExportLogsServiceRequest,
) (*protoLogs.ExportLogsServiceResponse, error) {
	for _, resourceLogs := range req.ResourceLogs {
		for _, scopeLog := range resourceLogs.ScopeLogs {
			serviceName := ""
			if scopeLog.Scope != nil {
				serviceName = scopeLog.Scope.Name
			}
			for _, record := range scopeLog.LogRecords {
				lss.pipeline.Emit(ctx, typeLog(record, serviceName))
			}
		}
	}
	return &protoLogs.ExportLogsServiceResponse{}, nil
}

func typeLog(record *v1.LogRecord, serviceName string) model.LogEvent {
	timestamp := time.Unix(0, int64(record.TimeUnixNano))
	message := record.Body.GetStringValue()
	severity := getSeverity(record.SeverityNumber)
	traceId := hex.EncodeToString(record.TraceId)
	spanId := hex.EncodeToString(record.SpanId)
	return model.LogEvent{
		Id:         generateLogId(timestamp, message),
		Timestamp:  timestamp,
		Severity:   severity,
		Message:    message,
		Service:    serviceName,
		TraceId:    traceId,
		SpanId:     spanId,
		Properties: typeAttributes(record.Attributes),
	}
}

func typeAttributes(attributes []*commonV1.KeyValue) map[string]interface{} {
	if len(attributes) == 0 {
		return nil
	}
	properties := make(map[string]interface{}, len(attributes))
	for _, attribute := range attributes {
		if attribute == nil || attribute.Value == nil {
			continue
		}
		properties[attribute.Key] = typeAnyValue(attribute.Value)
	}
	return properties
}

func typeAnyValue(value *commonV1.AnyValue) interface{} {
	switch typed := value.Value.(type) {
	case *commonV1.AnyValue_StringValue:
		return typed.StringValue
	case *commonV1.AnyValue_IntValue:
		return typed.IntValue
	case *commonV1.AnyValue_DoubleValue:
		return typed.DoubleValue
	case *commonV1.AnyValue_BoolValue:
		return typed.BoolValue
	default:
		return value.String()
	}
}

func getSeverity(severityNumber v1.SeverityNumber) model.Level {
	switch {
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_FATAL:
		return model.FatalLevel
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_ERROR:
		return model.ErrorLevel
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_WARN:
		return model.WarnLevel
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_INFO:
		return model.InfoLevel
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_DEBUG:
		return model.DebugLevel
	case severityNumber >= v1.SeverityNumber_SEVERITY_NUMBER_TRACE:
		return model.VerboseLevel
	default:
		return model.InfoLevel
	}
}

func generateLogId(timeStamp time.Time, message string) string {
	data := fmt.Sprintf("%s:%s", timeStamp.Format(time.StampNano), message)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
