package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsantana84/codex-http/internal/agent"
)

// Factory creates engines hosted by a remote worker
type Factory struct {
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	callTimeout time.Duration
	logger      *slog.Logger
}

// Dial creates a factory for the worker at addr. The connection is
// established lazily on first use.
func Dial(addr string, dialTimeout, callTimeout time.Duration, logger *slog.Logger, opts ...grpc.DialOption) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: dialTimeout,
		}),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker client for %s: %w", addr, err)
	}
	return &Factory{
		conn:        conn,
		health:      healthpb.NewHealthClient(conn),
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

// NewEngine implements agent.Factory. The confirmation handler is not sent;
// the worker derives its own from the approval policy.
func (f *Factory) NewEngine(ctx context.Context, opts agent.Options) (agent.Engine, error) {
	req, err := toStruct(openRequest{
		Model:                   opts.Model,
		Provider:                opts.Provider,
		APIKey:                  opts.APIKey,
		Instructions:            opts.Instructions,
		ApprovalPolicy:          string(opts.ApprovalPolicy),
		AdditionalWritableRoots: opts.AdditionalWritableRoots,
		DisableResponseStorage:  opts.DisableResponseStorage,
		Config:                  opts.Config,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err := f.conn.Invoke(callCtx, methodOpen, req, resp); err != nil {
		return nil, fmt.Errorf("failed to open remote engine: %w", err)
	}

	var ref engineRef
	if err := fromStruct(resp, &ref); err != nil {
		return nil, err
	}
	if ref.EngineID == "" {
		return nil, errors.New("worker returned an empty engine id")
	}

	f.logger.Debug("remote engine opened", "engine_id", ref.EngineID, "model", opts.Model)
	return &Engine{factory: f, id: ref.EngineID}, nil
}

// Healthy reports whether the worker's health service returns SERVING
func (f *Factory) Healthy(ctx context.Context) bool {
	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	resp, err := f.health.Check(callCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		f.logger.Debug("worker health check failed", "error", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close releases the connection to the worker
func (f *Factory) Close() error {
	return f.conn.Close()
}

func (f *Factory) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.callTimeout)
}

// Engine is a handle to an engine living in the worker
type Engine struct {
	factory *Factory
	id      string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// ID returns the worker-assigned engine id
func (e *Engine) ID() string {
	return e.id
}

// Run implements agent.Engine by streaming events from the worker
func (e *Engine) Run(ctx context.Context, input []agent.Item, previousResponseID string, sink agent.EventSink) error {
	turnCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	req, err := toStruct(runRequest{
		EngineID:           e.id,
		Input:              input,
		PreviousResponseID: previousResponseID,
	})
	if err != nil {
		return err
	}

	stream, err := e.factory.conn.NewStream(turnCtx, &serviceDesc.Streams[0], methodRun)
	if err != nil {
		return fmt.Errorf("failed to start remote run: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("failed to send run request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to send run request: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := turnCtx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("remote run failed: %w", err)
		}

		var ev runEvent
		if err := fromStruct(msg, &ev); err != nil {
			return err
		}
		switch ev.Type {
		case eventItem:
			if ev.Item != nil {
				sink.OnItem(*ev.Item)
			}
		case eventLoading:
			sink.OnLoading(ev.Loading)
		case eventResponseID:
			sink.OnLastResponseID(ev.ResponseID)
		default:
			e.factory.logger.Warn("unknown run event", "engine_id", e.id, "type", ev.Type)
		}
	}
}

// Cancel implements agent.Engine
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if err := e.invoke(methodCancel); err != nil {
		e.factory.logger.Warn("remote cancel failed", "engine_id", e.id, "error", err)
	}
}

// Terminate implements agent.Engine. Errors are logged, never returned.
func (e *Engine) Terminate() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if err := e.invoke(methodTerminate); err != nil {
		e.factory.logger.Warn("remote terminate failed", "engine_id", e.id, "error", err)
	}
}

func (e *Engine) invoke(method string) error {
	req, err := toStruct(engineRef{EngineID: e.id})
	if err != nil {
		return err
	}
	ctx, cancel := e.factory.callContext(context.Background())
	defer cancel()
	return e.factory.conn.Invoke(ctx, method, req, new(structpb.Struct))
}
