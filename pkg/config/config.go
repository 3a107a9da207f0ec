package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the Parrot configuration shared by the server and the client
// tooling.
//
// The replica set is static: every process reads the same `servers` array
// and a server additionally receives its own id on the command line. There
// is no runtime membership change; failover only ever picks among the
// configured replicas.
//
// Precedence: CLI flags override environment variables (PARROT_*), which
// override the JSON config file, which overrides built-in defaults.
type Config struct {
	// Servers is the full replica set. Every replica and every client must
	// agree on this list; election picks the lowest live id from it.
	Servers []ServerSpec `mapstructure:"servers" json:"servers" validate:"required,min=1,dive"`

	// DataDir is where a replica keeps its per-id store logs
	// (account_list_<id>.log and friends)
	DataDir string `mapstructure:"data_dir" json:"data_dir" validate:"required"`

	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// Replication controls the timing of the heartbeat, the undelivered
	// message pump, and peer bring-up
	Replication ReplicationConfig `mapstructure:"replication" json:"replication"`

	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
	API       APIConfig       `mapstructure:"api" json:"api"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`

	// ShutdownTimeout bounds graceful shutdown of all components.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"required,gt=0"`

	// MaxConnections caps concurrently served client connections per replica.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" json:"max_connections" validate:"gte=0"`
}

// ServerSpec identifies one replica of the chat service.
type ServerSpec struct {
	// Host is the address clients and peers dial
	Host string `mapstructure:"host" json:"host" validate:"required"`

	// Port is the TCP port the replica listens on
	Port int `mapstructure:"port" json:"port" validate:"required,min=1,max=65535"`

	// ID is the replica's identity; the lowest live id is the primary
	ID int `mapstructure:"id" json:"id" validate:"gte=0"`
}

// Addr returns the spec's dialable "host:port".
func (s ServerSpec) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig selects the level, format and destination of the process log.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" json:"output" validate:"required"` // stdout, stderr, or a file path
}

// ReplicationConfig controls the timing knobs of the replication layer.
// The protocol itself has no time-based failure detection; these intervals
// only pace the periodic tasks.
type ReplicationConfig struct {
	// HeartbeatInterval is how often a backup pings the primary
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" json:"heartbeat_interval" validate:"required,gt=0"`

	// PumpInterval is the cadence of the primary's undelivered-message pump
	PumpInterval time.Duration `mapstructure:"pump_interval" json:"pump_interval" validate:"required,gt=0"`

	// PeerDialTimeout bounds how long bring-up keeps retrying an outbound
	// peer connection before declaring the peer dead
	PeerDialTimeout time.Duration `mapstructure:"peer_dial_timeout" json:"peer_dial_timeout" validate:"required,gt=0"`

	// PeerRetryInterval is the pause between outbound dial attempts during
	// bring-up
	PeerRetryInterval time.Duration `mapstructure:"peer_retry_interval" json:"peer_retry_interval" validate:"required,gt=0"`

	// ElectionTimeout bounds the wait for a single ASSIGN_PRIMARY_RESPONSE
	// during an election probe; a peer that does not answer in time is
	// treated as dead
	ElectionTimeout time.Duration `mapstructure:"election_timeout" json:"election_timeout" validate:"required,gt=0"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. With Enabled
// false nothing is collected and no listener starts.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// APIConfig configures the status/health HTTP server. It is a read-only
// observability surface; chat traffic never flows through it.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// TelemetryConfig controls trace export to an OTLP collector such as Jaeger
// or Tempo. Tracing is opt-in.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" json:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" json:"endpoint"` // host:port, gRPC
	Insecure   bool    `mapstructure:"insecure" json:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" json:"sample_rate" validate:"omitempty,gte=0,lte=1"`

	Profiling ProfilingConfig `mapstructure:"profiling" json:"profiling"`
}

// ProfilingConfig controls continuous profiling via Pyroscope. Profiling is
// opt-in; profile type names are listed in the telemetry package.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" json:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" json:"endpoint"` // server URL
	ProfileTypes []string `mapstructure:"profile_types" json:"profile_types"`
}

// ServerByID returns the spec for the given replica id.
func (c *Config) ServerByID(id int) (ServerSpec, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerSpec{}, false
}

// Peers returns every configured replica except the given id.
func (c *Config) Peers(selfID int) []ServerSpec {
	peers := make([]ServerSpec, 0, len(c.Servers))
	for _, s := range c.Servers {
		if s.ID != selfID {
			peers = append(peers, s)
		}
	}
	return peers
}

// Load reads the config file at configPath (or the default location when
// empty), layers PARROT_* environment variables on top, fills the gaps with
// defaults and validates the result. A missing file is not an error; it
// yields the default single-replica configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load for commands that require an existing config file. When
// the file is missing it returns an error telling the user how to create one
// instead of silently falling back to defaults.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  parrotd config init\n\n"+
				"Or specify a custom config file:\n"+
				"  parrotd <command> --config /path/to/config.json",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  parrotd config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, the same format the servers and
// clients read at startup. Parent directories are created as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper points v at the config file and binds PARROT_* environment
// variables, so PARROT_LOGGING_LEVEL=DEBUG overrides logging.level.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PARROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("json")
	}
}

// readConfigFile attempts the read and reports whether a file was found.
// Both viper's own not-found error and a plain missing path are treated as
// "no file"; everything else is a real error.
func readConfigFile(v *viper.Viper) (bool, error) {
	err := v.ReadInConfig()
	if err == nil {
		return true, nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to read config file: %w", err)
}

// durationDecodeHook lets duration fields accept "500ms"-style strings.
// Raw numbers pass through as nanosecond counts.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// JSON numbers decode as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir resolves the per-user config directory: $XDG_CONFIG_HOME when
// set, otherwise ~/.config, or the current directory if no home exists.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "parrot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "parrot")
}

// GetDefaultConfigPath returns the path Load uses when none is given.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.json")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir exposes the config directory for the init command.
func GetConfigDir() string {
	return getConfigDir()
}
