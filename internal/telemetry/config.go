package telemetry

// Config controls trace export to an OTLP collector.
type Config struct {
	Enabled        bool    // when false, Init installs a no-op tracer
	ServiceName    string  // service.name resource attribute
	ServiceVersion string  // service.version resource attribute
	Endpoint       string  // OTLP gRPC endpoint, host:port
	Insecure       bool    // dial the collector without TLS
	SampleRate     float64 // fraction of traces to keep, 0.0 through 1.0
}

// DefaultConfig returns the settings used when telemetry is not configured:
// tracing off, local collector, full sampling.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "parrot",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
