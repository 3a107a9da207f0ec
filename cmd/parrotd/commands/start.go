package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/replica"
	"github.com/parrotchat/parrot/internal/telemetry"
	"github.com/parrotchat/parrot/pkg/api"
	"github.com/parrotchat/parrot/pkg/api/handlers"
	"github.com/parrotchat/parrot/pkg/config"
	"github.com/parrotchat/parrot/pkg/metrics"

	// Blank import wires the prometheus constructors into pkg/metrics.
	_ "github.com/parrotchat/parrot/pkg/metrics/prometheus"
)

var replicaID int

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a chat replica",
	Long: `Start one replica of the Parrot chat service.

The --id flag selects which entry of the configured servers list this
process is. All replicas share the same configuration file; each one is
started with a different id.

Without --config the file is looked up at the default location,
$XDG_CONFIG_HOME/parrot/config.json.

Examples:
  # Start replica 1 with the default config
  parrotd start --id 1

  # Start replica 2 with a custom config file
  parrotd start --id 2 --config /etc/parrot/config.json

  # Start with environment variable overrides
  PARROT_LOGGING_LEVEL=DEBUG parrotd start --id 1`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&replicaID, "id", 0, "Replica id (must match an entry in the servers list)")
	_ = startCmd.MarkFlagRequired("id")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Cancelling this context stops every server started below.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "parrot",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "parrot",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	fmt.Println("Parrot - Replicated chat service")
	logger.Info("Logger ready", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded",
		"source", getConfigSource(GetConfigFile()),
		logger.KeyReplicaID, replicaID,
		"replicas", len(cfg.Servers))
	if telemetry.IsEnabled() {
		logger.Info("Tracing enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Tracing disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Pyroscope profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Pyroscope profiling disabled")
	}

	// Initialize metrics FIRST (before creating the replica, which constructs
	// its collectors at startup)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	srv, err := replica.New(cfg, replicaID, metrics.NewChatMetrics(), metrics.NewReplicationMetrics())
	if err != nil {
		return fmt.Errorf("failed to create replica: %w", err)
	}

	// NewServer returns nil when metrics are disabled.
	if metricsServer := metrics.NewServer(cfg.Metrics.Port); metricsServer != nil {
		logger.Info("Metrics enabled", logger.KeyPort, cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", logger.KeyError, err)
			}
		}()
	} else {
		logger.Info("Metrics disabled")
	}

	if cfg.API.Enabled {
		apiServer := api.NewServer(
			api.Config{Host: cfg.API.Host, Port: cfg.API.Port},
			handlers.StatusFunc(func() handlers.Status { return statusSnapshot(srv) }),
		)
		logger.Info("Status API enabled", logger.KeyPort, cfg.API.Port)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Error("status API error", logger.KeyError, err)
			}
		}()
	} else {
		logger.Info("Status API disabled")
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Replica is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Replica shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("Replica stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Replica error", logger.KeyError, err)
			return err
		}
		logger.Info("Replica stopped")
	}

	return nil
}

// statusSnapshot converts the replica's internal snapshot into the API DTO.
// The conversion keeps internal/replica out of pkg/api's dependency graph.
func statusSnapshot(srv *replica.Server) handlers.Status {
	st := srv.Status()
	return handlers.Status{
		ReplicaID:      st.ReplicaID,
		Role:           st.Role,
		PrimaryID:      st.PrimaryID,
		LivePeers:      st.LivePeers,
		Connections:    st.Connections,
		Accounts:       st.Accounts,
		LoggedIn:       st.LoggedIn,
		QueuedMessages: st.QueuedMessages,
	}
}

// getConfigSource names the file the configuration came from, or "defaults".
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
