package api

import "time"

// Config configures the status/health HTTP server.
//
// The server is a read-only observability surface: chat traffic never
// flows through it, and disabling it changes nothing about replication
// or failover.
type Config struct {
	// Host is the listen address.
	// Default: 127.0.0.1
	Host string

	// Port is the HTTP port for the status endpoints.
	// Default: 8080
	Port int

	// ReadTimeout bounds reading a whole request including its body.
	// Default: 10s
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response.
	// Default: 10s
	WriteTimeout time.Duration

	// IdleTimeout bounds the wait for the next request on a kept-alive
	// connection.
	// Default: 60s
	IdleTimeout time.Duration
}

// applyDefaults replaces zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
