package config

import (
	"fmt"
	"time"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/spf13/viper"
)

const (
	// DefaultSectionName is where settings are normally nested.
	DefaultSectionName = "logship"
	// LegacySectionName is honored for configuration files written for the
	// previous generation of this pipeline.
	LegacySectionName = "serilog"
)

const (
	DefaultBatchPostingLimit = 50
	DefaultPeriodSeconds     = 2
	DefaultTimeoutSeconds    = 10
	DefaultMaxRetries        = 3
	DefaultRetrySeconds      = 5
	DefaultMaxPendingRecords = 10000
	DefaultHealthSeconds     = 15
	DefaultIndexFormat       = "logship-2006.01.02"
	DefaultConsoleTemplate   = "[{Timestamp} {Level}] {Message} {Properties}"
	DefaultFileSizeLimit     = 64 << 20
	DefaultRetainedFiles     = 7
)

type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthBasic  AuthMode = "basic"
	AuthApiKey AuthMode = "api-key"
)

type ConsoleSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Template     string `mapstructure:"template"`
	Colored      bool   `mapstructure:"colored"`
	MinimumLevel string `mapstructure:"minimum-level"`
}

type FileSettings struct {
	Enabled        bool   `mapstructure:"enabled"`
	Path           string `mapstructure:"path"`
	SizeLimitBytes int64  `mapstructure:"size-limit-bytes"`
	RetainedFiles  int    `mapstructure:"retained-files"`
	MinimumLevel   string `mapstructure:"minimum-level"`
}

type RemoteSettings struct {
	Enabled                bool     `mapstructure:"enabled"`
	Addresses              []string `mapstructure:"addresses"`
	Sniffing               bool     `mapstructure:"sniffing"`
	AuthMode               AuthMode `mapstructure:"auth-mode"`
	Username               string   `mapstructure:"username"`
	Password               string   `mapstructure:"password"`
	ApiKey                 string   `mapstructure:"api-key"`
	InsecureSkipTLSVerify  bool     `mapstructure:"insecure-skip-tls-verify"`
	IndexFormat            string   `mapstructure:"index-format"`
	BatchPostingLimit      int      `mapstructure:"batch-posting-limit"`
	PeriodSeconds          int      `mapstructure:"period-seconds"`
	TimeoutSeconds         int      `mapstructure:"timeout-seconds"`
	MinimumLevel           string   `mapstructure:"minimum-level"`
	DegradedPeriodFactor   int      `mapstructure:"degraded-period-factor"`
	BootstrapIndexTemplate bool     `mapstructure:"bootstrap-index-template"`
}

type KafkaSettings struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	MinimumLevel string   `mapstructure:"minimum-level"`
}

type DeadLetterSettings struct {
	Enabled              bool   `mapstructure:"enabled"`
	Path                 string `mapstructure:"path"`
	MaxRetries           int    `mapstructure:"max-retries"`
	RetryIntervalSeconds int    `mapstructure:"retry-interval-seconds"`
	MaxPendingRecords    int    `mapstructure:"max-pending-records"`
}

type EnrichmentSettings struct {
	MachineName      bool              `mapstructure:"machine-name"`
	ProcessId        bool              `mapstructure:"process-id"`
	GoroutineId      bool              `mapstructure:"goroutine-id"`
	SpanId           bool              `mapstructure:"span-id"`
	CorrelationId    bool              `mapstructure:"correlation-id"`
	ExceptionDetails bool              `mapstructure:"exception-details"`
	Properties       map[string]string `mapstructure:"properties"`
}

type HealthCheckSettings struct {
	Enabled         bool     `mapstructure:"enabled"`
	Name            string   `mapstructure:"name"`
	TimeoutSeconds  int      `mapstructure:"timeout-seconds"`
	IntervalSeconds int      `mapstructure:"interval-seconds"`
	Tags            []string `mapstructure:"tags"`
}

type IngestSettings struct {
	OTLPAddr    string   `mapstructure:"otlp-addr"`
	MetricsAddr string   `mapstructure:"metrics-addr"`
	TailFiles   []string `mapstructure:"tail-files"`
}

// Settings is the full configuration surface of the shipper. Every field is
// optional; Load fills defaults before validation.
type Settings struct {
	ApplicationName string              `mapstructure:"application-name"`
	Environment     string              `mapstructure:"environment"`
	MinimumLevel    string              `mapstructure:"minimum-level"`
	Console         ConsoleSettings     `mapstructure:"console"`
	File            FileSettings        `mapstructure:"file"`
	Remote          RemoteSettings      `mapstructure:"remote"`
	Kafka           KafkaSettings       `mapstructure:"kafka"`
	DeadLetter      DeadLetterSettings  `mapstructure:"dead-letter"`
	Enrichment      EnrichmentSettings  `mapstructure:"enrichment"`
	HealthCheck     HealthCheckSettings `mapstructure:"health-check"`
	Ingest          IngestSettings      `mapstructure:"ingest"`
	SelfLog         bool                `mapstructure:"self-log"`
	SuppressBanner  bool                `mapstructure:"suppress-banner"`
}

func (s *RemoteSettings) Period() time.Duration {
	return time.Duration(s.PeriodSeconds) * time.Second
}

func (s *RemoteSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s *DeadLetterSettings) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalSeconds) * time.Second
}

func (s *HealthCheckSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s *HealthCheckSettings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Load reads the configuration file and unmarshals the settings section.
// Section resolution is a fallback chain: the explicitly requested section,
// then DefaultSectionName, then LegacySectionName. An empty section name
// skips straight to the chain. The section map is merged over the defaults on
// a fresh viper; Sub would lose everything registered via SetDefault.
func Load(path string, section string) (*Settings, error) {
	source := viper.New()
	source.SetConfigFile(path)
	if err := source.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading configuration file %s: %w", path, err)
	}
	resolved, err := resolveSection(source, section)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	if err := v.MergeConfigMap(source.GetStringMap(resolved)); err != nil {
		return nil, fmt.Errorf("error merging section %s: %w", resolved, err)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling section %s: %w", resolved, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func resolveSection(v *viper.Viper, explicit string) (string, error) {
	candidates := []string{DefaultSectionName, LegacySectionName}
	if explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	for _, candidate := range candidates {
		if v.IsSet(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf(
		"no recognized configuration section: tried %v", candidates,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("minimum-level", "info")
	v.SetDefault("console.enabled", true)
	v.SetDefault("console.template", DefaultConsoleTemplate)
	v.SetDefault("file.size-limit-bytes", int64(DefaultFileSizeLimit))
	v.SetDefault("file.retained-files", DefaultRetainedFiles)
	v.SetDefault("remote.auth-mode", string(AuthNone))
	v.SetDefault("remote.index-format", DefaultIndexFormat)
	v.SetDefault("remote.batch-posting-limit", DefaultBatchPostingLimit)
	v.SetDefault("remote.period-seconds", DefaultPeriodSeconds)
	v.SetDefault("remote.timeout-seconds", DefaultTimeoutSeconds)
	v.SetDefault("remote.degraded-period-factor", 4)
	v.SetDefault("remote.bootstrap-index-template", true)
	v.SetDefault("dead-letter.max-retries", DefaultMaxRetries)
	v.SetDefault("dead-letter.retry-interval-seconds", DefaultRetrySeconds)
	v.SetDefault("dead-letter.max-pending-records", DefaultMaxPendingRecords)
	v.SetDefault("enrichment.machine-name", true)
	v.SetDefault("enrichment.process-id", true)
	v.SetDefault("enrichment.exception-details", true)
	v.SetDefault("enrichment.correlation-id", true)
	v.SetDefault("health-check.name", "elasticsearch")
	v.SetDefault("health-check.timeout-seconds", 5)
	v.SetDefault("health-check.interval-seconds", DefaultHealthSeconds)
	v.SetDefault("ingest.otlp-addr", ":4317")
	v.SetDefault("ingest.metrics-addr", ":9464")
}

// Validate rejects settings that cannot produce a working pipeline. This is
// the only fatal error path of the whole system.
func (s *Settings) Validate() error {
	for _, name := range []string{
		s.MinimumLevel, s.Console.MinimumLevel, s.File.MinimumLevel,
		s.Remote.MinimumLevel, s.Kafka.MinimumLevel,
	} {
		if name == "" {
			continue
		}
		if _, err := model.ParseLevel(name); err != nil {
			return fmt.Errorf("invalid minimum level: %w", err)
		}
	}
	if s.File.Enabled && s.File.Path == "" {
		return fmt.Errorf("file sink enabled without a path")
	}
	if s.Remote.Enabled && len(s.Remote.Addresses) == 0 {
		return fmt.Errorf("remote sink enabled without addresses")
	}
	if s.Kafka.Enabled && (len(s.Kafka.Brokers) == 0 || s.Kafka.Topic == "") {
		return fmt.Errorf("kafka sink enabled without brokers or topic")
	}
	if s.DeadLetter.Enabled && s.DeadLetter.Path == "" {
		return fmt.Errorf("dead-letter queue enabled without a path")
	}
	switch s.Remote.AuthMode {
	case AuthNone:
	case AuthBasic:
		if s.Remote.Username == "" || s.Remote.Password == "" {
			return fmt.Errorf("basic auth requires username and password")
		}
	case AuthApiKey:
		if s.Remote.ApiKey == "" {
			return fmt.Errorf("api-key auth requires an api key")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", s.Remote.AuthMode)
	}
	return nil
}

// MinLevel parses a per-sink minimum level, falling back to the global one
// when the sink does not override it.
func (s *Settings) MinLevel(override string) model.Level {
	name := override
	if name == "" {
		name = s.MinimumLevel
	}
	level, err := model.ParseLevel(name)
	if err != nil {
		return model.InfoLevel
	}
	return level
}

// StaticProperties assembles the fixed enrichment fields from the settings.
func (s *Settings) StaticProperties() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Enrichment.Properties)+2)
	for k, v := range s.Enrichment.Properties {
		properties[k] = v
	}
	if s.ApplicationName != "" {
		properties["application"] = s.ApplicationName
	}
	if s.Environment != "" {
		properties["environment"] = s.Environment
	}
	return properties
}
