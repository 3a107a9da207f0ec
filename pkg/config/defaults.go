package config

import (
	"strings"
	"time"
)

// GetDefaultConfig returns a configuration with all defaults applied: a
// single local replica with id 1, suitable for development and for the
// single-replica test scenarios.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Servers: []ServerSpec{
			{Host: "127.0.0.1", Port: 7001, ID: 1},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyDataDirDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)
	applyReplicationDefaults(&cfg.Replication)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
}

// applyDataDirDefaults keeps store logs in the working directory unless told
// otherwise, matching where operators expect account_list_<id>.log to land.
func applyDataDirDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyReplicationDefaults sets the replication timing defaults. The
// heartbeat and pump cadences are part of the service's observable behavior
// (failover latency, delivery latency), so the defaults are the canonical
// values rather than conservative ones.
func applyReplicationDefaults(cfg *ReplicationConfig) {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 500 * time.Millisecond
	}
	if cfg.PumpInterval == 0 {
		cfg.PumpInterval = 10 * time.Millisecond
	}
	if cfg.PeerDialTimeout == 0 {
		cfg.PeerDialTimeout = 10 * time.Second
	}
	if cfg.PeerRetryInterval == 0 {
		cfg.PeerRetryInterval = 250 * time.Millisecond
	}
	if cfg.ElectionTimeout == 0 {
		cfg.ElectionTimeout = time.Second
	}
}

// applyMetricsDefaults sets Prometheus metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in)

	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAPIDefaults sets status API defaults.
func applyAPIDefaults(cfg *APIConfig) {
	// Enabled defaults to false (opt-in)

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)

	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}
