package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/internal/telemetry"
	"github.com/marmos91/pgstate/pkg/adapter"
	"github.com/marmos91/pgstate/pkg/adapter/dapr"
	"github.com/marmos91/pgstate/pkg/api"
	"github.com/marmos91/pgstate/pkg/config"
	"github.com/marmos91/pgstate/pkg/state"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/pgstate/pkg/metrics/prometheus"
)

// flushTimeout bounds the telemetry and profiler flush at exit.
const flushTimeout = 5 * time.Second

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pluggable component server",
	Long: `Start the pgstate component server in the foreground.

The server listens on <socket_folder>/<component_name>.sock, where the Dapr
sidecar discovers it. The folder defaults to $DAPR_COMPONENTS_SOCKETS_FOLDER
or /tmp/dapr-components-sockets. The database connection is configured by the
component manifest and arrives with Init.

SIGINT and SIGTERM trigger a graceful shutdown.

Examples:
  # Start with the default config location
  pgstate start

  # Start with a custom config file
  pgstate start --config /etc/pgstate/config.yaml

  # Override settings from the environment
  PGSTATE_LOGGING_LEVEL=DEBUG PGSTATE_SERVER_COMPONENT_NAME=orders pgstate start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file while running")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "pgstate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by now; the flush needs its own deadline.
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := telemetryShutdown(flushCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "pgstate",
		ServiceVersion: Version,
		Component:      cfg.Server.ComponentName,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("pgstate starting", "version", Version, "commit", Commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Metrics first: the sinks are handed to the service and the server.
	metricsResult := config.InitializeMetrics(cfg)
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled", "port", cfg.API.Port, "path", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	svc := state.NewService(
		state.WithMetrics(metricsResult.State),
		state.WithPool(cfg.Database.Pool()),
		state.WithRequestTimeout(cfg.Database.RequestTimeout),
	)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close database handle", logger.Err(err))
		}
	}()

	component := dapr.NewServer(cfg.Server, svc, metricsResult.RPC)
	logger.Info("Component configured",
		logger.Component(cfg.Server.ComponentName),
		logger.Socket(component.SocketPath()))

	var apiServer *api.Server
	if cfg.API.IsEnabled() {
		apiServer = api.NewServer(cfg.API, svc)
		logger.Info("HTTP server configured", "port", cfg.API.Port)
	} else {
		logger.Info("HTTP server disabled")
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	adapters := []adapter.Adapter{component}
	if apiServer != nil {
		adapters = append(adapters, apiServer)
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := adapter.Serve(ctx, adapters...); err != nil {
		logger.Error("Server error", logger.Err(err))
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
