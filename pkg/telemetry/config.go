package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for the inferline
// compiler.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig
}

// LogMode selects how much of the build output reaches the console.
type LogMode string

const (
	// LogModeVerbose streams every step and error live to the console,
	// in addition to the persisted workspace log.
	LogModeVerbose LogMode = "verbose"

	// LogModeQuiet suppresses live console output. Full detail is still
	// persisted to the workspace log; on failure the supervisor
	// re-emits an error excerpt from it.
	LogModeQuiet LogMode = "quiet"
)

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Mode selects verbose or quiet console behavior.
	Mode LogMode

	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string

	// Format specifies the console log format (console, json).
	Format string

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string

	// Endpoint is the OTLP exporter endpoint.
	Endpoint string

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// ListenAddress is the address for the metrics HTTP endpoint.
	// Empty disables the endpoint; metrics are still collected.
	ListenAddress string

	// Path is the HTTP path for metrics (default: /metrics).
	Path string

	// Namespace is the metrics namespace prefix.
	Namespace string

	// DefaultHistogramBuckets are the default latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "inferline",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Mode:       LogModeVerbose,
			Level:      "info",
			Format:     "console",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "inferline",
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Logging.Mode {
	case LogModeVerbose, LogModeQuiet, "":
	default:
		return fmt.Errorf("invalid log mode: %s", c.Logging.Mode)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp":
			if c.Tracing.Endpoint == "" {
				return fmt.Errorf("otlp exporter requires an endpoint")
			}
		case "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("sampling rate must be between 0.0 and 1.0")
		}
	}

	return nil
}
