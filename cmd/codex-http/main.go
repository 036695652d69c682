// Command codex-http serves agent sessions over HTTP
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsantana84/codex-http/internal/agent"
	"github.com/tsantana84/codex-http/internal/agent/echo"
	"github.com/tsantana84/codex-http/internal/agent/remote"
	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
	"github.com/tsantana84/codex-http/internal/decorator"
	"github.com/tsantana84/codex-http/internal/enrichment"
	"github.com/tsantana84/codex-http/internal/httpapi"
	"github.com/tsantana84/codex-http/internal/retrieval"
	"github.com/tsantana84/codex-http/internal/storage/memory"
)

const version = "0.1.0"

type options struct {
	configPath string
	host       string
	port       int
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "codex-http",
		Short:         "Serve agent sessions over HTTP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), opts.debug)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, logger, cmd.ErrOrStderr()); err != nil {
				logger.Error("server exited", "error", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or json); defaults to $CODEX_HTTP_CONFIG or ~/.codex/config.*")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "HTTP listen port")
	flags.StringVar(&opts.host, "host", config.DefaultHost, "HTTP bind host")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	return cmd
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// newFactory returns the remote worker factory when a worker address is
// configured and the echo engine otherwise. The returned func releases it.
func newFactory(cfg config.EngineConfig, logger *slog.Logger) (agent.Factory, func(), error) {
	if cfg.WorkerAddr == "" {
		logger.Warn("no agent worker configured, using echo engine")
		return echo.NewFactory(cfg.EchoDelay.Std(), logger), func() {}, nil
	}
	factory, err := remote.Dial(cfg.WorkerAddr, cfg.DialTimeout.Std(), cfg.CallTimeout.Std(), logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using remote agent worker", "addr", cfg.WorkerAddr)
	return factory, func() {
		if err := factory.Close(); err != nil {
			logger.Warn("failed to close worker connection", "error", err)
		}
	}, nil
}

// warnMissingAPIKey reports a remote engine configured without a default API
// key. Sessions created without their own apiKey will fail on the worker.
func warnMissingAPIKey(cfg *config.Config, logger *slog.Logger) bool {
	if cfg.Engine.WorkerAddr == "" || cfg.Agent.APIKey != "" {
		return false
	}
	logger.Warn("no API key configured; sessions must supply apiKey",
		"env", config.EnvAPIKey,
		"worker_addr", cfg.Engine.WorkerAddr)
	return true
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, banner io.Writer) error {
	warnMissingAPIKey(cfg, logger)
	factory, closeFactory, err := newFactory(cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer closeFactory()

	ragClient := retrieval.New(cfg.Retrieval, retrieval.WithLogger(logger))
	defer ragClient.Close()
	promptDecorator := decorator.New(cfg.Decorator.URL, cfg.Decorator.Timeout.Std(), logger)
	pipeline := enrichment.NewPipeline(promptDecorator, ragClient, logger)

	events := coordinator.NewEventBroker(cfg.Session.EventBuffer, logger)
	manager := coordinator.NewSessionManager(memory.NewSessionStore(), factory, cfg.Agent,
		coordinator.WithEnricher(pipeline),
		coordinator.WithEventBroker(events),
		coordinator.WithAuditLogger(coordinator.NewAuditLogger(logger)),
		coordinator.WithLogger(logger),
	)

	serverOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if ragClient.Enabled() {
		serverOpts = append(serverOpts, httpapi.WithHealthCheck("retrieval", ragClient.HealthCheck))
	}
	if checker, ok := factory.(agent.HealthChecker); ok {
		serverOpts = append(serverOpts, httpapi.WithHealthCheck("engine", checker.Healthy))
	}
	if cfg.MCP.Enabled {
		serverOpts = append(serverOpts, httpapi.WithMCP(coordinator.NewMCPServer(cfg.MCP, manager, logger)))
	}
	server := httpapi.New(cfg.Server, manager, serverOpts...)

	reaper := coordinator.NewReaper(manager, cfg.Session.CleanupInterval.Std(), cfg.Session.Timeout.Std(), logger)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(reaperCtx)
	}()

	printBanner(banner, cfg)
	logger.Info("starting codex-http",
		"version", version,
		"addr", cfg.Server.Addr(),
		"retrieval_enabled", ragClient.Enabled(),
		"decorator_enabled", promptDecorator.Enabled(),
		"mcp_enabled", cfg.MCP.Enabled)

	serveErr := server.Run(ctx)

	stopReaper()
	<-reaperDone
	manager.Shutdown(context.Background())
	return serveErr
}
