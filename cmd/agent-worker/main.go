// Command agent-worker hosts agent engines behind the gRPC worker service
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tsantana84/codex-http/internal/agent/echo"
	"github.com/tsantana84/codex-http/internal/agent/remote"
)

const (
	version       = "0.1.0"
	defaultListen = ":50051"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listen    string
		echoDelay time.Duration
		debug     bool
	)
	cmd := &cobra.Command{
		Use:           "agent-worker",
		Short:         "Serve agent engines over gRPC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), debug)
			slog.SetDefault(logger)

			ln, err := net.Listen("tcp", listen) //nolint:noctx // standard gRPC server pattern
			if err != nil {
				logger.Error("failed to listen", "addr", listen, "error", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, ln, echoDelay, logger)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", defaultListen, "gRPC listen address")
	flags.DurationVar(&echoDelay, "echo-delay", 0, "pause before each emitted item")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// serve runs the worker service on ln until ctx is cancelled
func serve(ctx context.Context, ln net.Listener, echoDelay time.Duration, logger *slog.Logger) error {
	service := remote.NewWorkerService(echo.NewFactory(echoDelay, logger), logger)

	grpcServer := grpc.NewServer()
	remote.RegisterAgentWorkerServer(grpcServer, service)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(remote.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent worker listening", "addr", ln.Addr().String(), "version", version)
		errCh <- grpcServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down agent worker", "engines", service.EngineCount())
	healthServer.Shutdown()
	service.Shutdown()
	grpcServer.GracefulStop()
	return nil
}
