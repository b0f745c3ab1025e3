package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avi18971911/Logship/pkg/config"
	deadletterService "github.com/Avi18971911/Logship/pkg/deadletter/service"
	"github.com/Avi18971911/Logship/pkg/elasticsearch/bootstrapper"
	"github.com/Avi18971911/Logship/pkg/elasticsearch/client"
	enrichmentService "github.com/Avi18971911/Logship/pkg/enrichment/service"
	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/Avi18971911/Logship/pkg/event_bus"
	healthService "github.com/Avi18971911/Logship/pkg/health/service"
	ingestServer "github.com/Avi18971911/Logship/pkg/ingest/server"
	"github.com/Avi18971911/Logship/pkg/ingest/tailer"
	"github.com/Avi18971911/Logship/pkg/metrics"
	pipelineService "github.com/Avi18971911/Logship/pkg/pipeline/service"
	"github.com/Avi18971911/Logship/pkg/sink"
	consoleSink "github.com/Avi18971911/Logship/pkg/sink/console"
	fileSink "github.com/Avi18971911/Logship/pkg/sink/file"
	kafkaSink "github.com/Avi18971911/Logship/pkg/sink/kafka"
	remoteSink "github.com/Avi18971911/Logship/pkg/sink/remote"
	"github.com/asaskevich/EventBus"
	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	protoLogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const shutdownGracePeriod = 10 * time.Second

const banner = `logship: structured log shipping to Elasticsearch`

func main() {
	var configPath string
	var section string

	rootCmd := &cobra.Command{
		Use:   "shipper",
		Short: "Ships structured log events to an Elasticsearch cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, section)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "logship.yaml", "path to the configuration file")
	rootCmd.Flags().StringVar(&section, "section", "", "configuration section to load")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, section string) error {
	settings, err := config.Load(configPath, section)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zap.NewNop()
	if settings.SelfLog {
		logger, err = zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}
	defer logger.Sync()

	if !settings.SuppressBanner {
		fmt.Println(banner)
	}

	registry := prometheus.NewRegistry()
	shippingMetrics := metrics.NewShippingMetrics(registry)

	enricher := enrichmentService.NewEnricherImpl(
		settings.StaticProperties(),
		enrichmentService.Toggles{
			MachineName:      settings.Enrichment.MachineName,
			ProcessId:        settings.Enrichment.ProcessId,
			GoroutineId:      settings.Enrichment.GoroutineId,
			SpanId:           settings.Enrichment.SpanId,
			CorrelationId:    settings.Enrichment.CorrelationId,
			ExceptionDetails: settings.Enrichment.ExceptionDetails,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	var sinks []sink.Sink
	var monitor *healthService.HealthMonitor

	if settings.Console.Enabled {
		sinks = append(sinks, consoleSink.NewConsoleSink(
			os.Stdout,
			settings.Console.Template,
			settings.Console.Colored,
			settings.MinLevel(settings.Console.MinimumLevel),
		))
	}

	if settings.File.Enabled {
		fs, err := fileSink.NewFileSink(
			settings.File.Path,
			settings.File.SizeLimitBytes,
			settings.File.RetainedFiles,
			settings.MinLevel(settings.File.MinimumLevel),
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create file sink: %w", err)
		}
		sinks = append(sinks, fs)
	}

	if settings.Kafka.Enabled {
		sinks = append(sinks, kafkaSink.NewKafkaSink(
			settings.Kafka.Brokers,
			settings.Kafka.Topic,
			settings.MinLevel(settings.Kafka.MinimumLevel),
			logger,
		))
	}

	if settings.Remote.Enabled {
		es, err := client.NewElasticsearchClient(settings.Remote, logger)
		if err != nil {
			return fmt.Errorf("failed to create elasticsearch client: %w", err)
		}

		if settings.Remote.BootstrapIndexTemplate {
			bs := bootstrapper.NewBootstrapper(es, logger)
			if err := bs.BootstrapElasticsearch(); err != nil {
				logger.Error("Failed to bootstrap elasticsearch", zap.Error(err))
			}
		}

		shipperClient := client.NewShipperClientImpl(es, settings.Remote.Timeout(), logger)

		var overflow remoteSink.OverflowQueue
		if settings.DeadLetter.Enabled {
			payloads, err := ristretto.NewCache(&ristretto.Config{
				NumCounters: 1 << 14,
				MaxCost:     1 << 20,
				BufferItems: 64,
			})
			if err != nil {
				return fmt.Errorf("failed to create dead-letter payload cache: %w", err)
			}
			queue, err := deadletterService.OpenQueue(
				settings.DeadLetter.Path,
				settings.DeadLetter.MaxPendingRecords,
				payloads,
				logger,
			)
			if err != nil {
				return fmt.Errorf("failed to open dead-letter queue: %w", err)
			}
			defer queue.Close()
			overflow = queue

			drainer := deadletterService.NewDrainer(
				queue,
				shipperClient.SendBatch,
				settings.DeadLetter.RetryInterval(),
				settings.DeadLetter.MaxRetries,
				shippingMetrics,
				logger,
			)
			group.Go(func() error {
				drainer.Run(groupCtx)
				return nil
			})
		}

		healthBus := event_bus.NewShippingEventBus[model.ClusterHealth](EventBus.New(), logger)
		buffer := remoteSink.NewBatchingBuffer(
			settings.Remote.BatchPostingLimit,
			settings.Remote.Period(),
			settings.Remote.DegradedPeriodFactor,
			settings.Remote.IndexFormat,
			shipperClient,
			overflow,
			shippingMetrics,
			logger,
		)
		rs, err := remoteSink.NewRemoteSink(
			buffer,
			settings.MinLevel(settings.Remote.MinimumLevel),
			healthBus,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create remote sink: %w", err)
		}
		sinks = append(sinks, rs)

		if settings.HealthCheck.Enabled {
			monitor = healthService.NewHealthMonitor(
				shipperClient,
				settings.HealthCheck.Interval(),
				settings.HealthCheck.Timeout(),
				healthBus,
				shippingMetrics,
				logger,
			)
			group.Go(func() error {
				monitor.Run(groupCtx)
				return nil
			})
		}
	}

	pipeline := pipelineService.NewPipeline(
		enricher,
		sinks,
		settings.MinLevel(""),
		settings.ApplicationName,
		shippingMetrics,
		logger,
	)

	srv := grpc.NewServer()
	logServiceServer := ingestServer.NewLogServiceServerImpl(logger, pipeline)
	protoLogs.RegisterLogsServiceServer(srv, logServiceServer)

	listener, err := net.Listen("tcp", settings.Ingest.OTLPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", settings.Ingest.OTLPAddr, err)
	}
	group.Go(func() error {
		logger.Info("gRPC service started, listening for OpenTelemetry logs...",
			zap.String("addr", settings.Ingest.OTLPAddr),
		)
		return srv.Serve(listener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		srv.GracefulStop()
		return nil
	})

	for _, path := range settings.Ingest.TailFiles {
		source := tailer.NewTailSource(path, pipeline, logger)
		group.Go(func() error {
			return source.Run(groupCtx)
		})
	}

	metricsServer := newObservabilityServer(settings, registry, monitor)
	group.Go(func() error {
		err := metricsServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if closeErr := pipeline.Close(closeCtx); closeErr != nil {
		logger.Error("Failed to close the pipeline cleanly", zap.Error(closeErr))
	}
	return err
}

// newObservabilityServer serves prometheus metrics and, when the health check
// is enabled, a tri-state health endpoint backed by the monitor's snapshot.
func newObservabilityServer(
	settings *config.Settings,
	registry *prometheus.Registry,
	monitor *healthService.HealthMonitor,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if settings.HealthCheck.Enabled && monitor != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			snapshot := monitor.Snapshot()
			status := http.StatusOK
			if !snapshot.Healthy() {
				status = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"name":   settings.HealthCheck.Name,
				"status": snapshot.Status,
				"tags":   settings.HealthCheck.Tags,
			})
		})
	}
	return &http.Server{
		Addr:    settings.Ingest.MetricsAddr,
		Handler: mux,
	}
}
