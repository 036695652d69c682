package remote

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsantana84/codex-http/internal/agent"
)

// WorkerService hosts engines for remote sessions
type WorkerService struct {
	factory agent.Factory
	logger  *slog.Logger

	mu      sync.RWMutex
	engines map[string]agent.Engine
}

// NewWorkerService creates a service that builds engines with factory
func NewWorkerService(factory agent.Factory, logger *slog.Logger) *WorkerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerService{
		factory: factory,
		logger:  logger,
		engines: make(map[string]agent.Engine),
	}
}

// Open implements AgentWorkerServer
func (ws *WorkerService) Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var open openRequest
	if err := fromStruct(req, &open); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	policy, err := agent.ParseApprovalPolicy(open.ApprovalPolicy)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	engine, err := ws.factory.NewEngine(ctx, agent.Options{
		Model:                   open.Model,
		Provider:                open.Provider,
		APIKey:                  open.APIKey,
		Instructions:            open.Instructions,
		ApprovalPolicy:          policy,
		AdditionalWritableRoots: open.AdditionalWritableRoots,
		DisableResponseStorage:  open.DisableResponseStorage,
		Config:                  open.Config,
		Confirm:                 agent.ConfirmationFor(policy),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create engine: %v", err)
	}

	id := uuid.NewString()
	ws.mu.Lock()
	ws.engines[id] = engine
	ws.mu.Unlock()

	ws.logger.Info("engine opened", "engine_id", id, "model", open.Model, "approval_policy", policy)
	return toStruct(engineRef{EngineID: id})
}

// Cancel implements AgentWorkerServer
func (ws *WorkerService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	engine, _, err := ws.lookup(req)
	if err != nil {
		return nil, err
	}
	engine.Cancel()
	return &structpb.Struct{}, nil
}

// Terminate implements AgentWorkerServer
func (ws *WorkerService) Terminate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var ref engineRef
	if err := fromStruct(req, &ref); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ws.mu.Lock()
	engine, ok := ws.engines[ref.EngineID]
	delete(ws.engines, ref.EngineID)
	ws.mu.Unlock()

	if !ok {
		return nil, status.Errorf(codes.NotFound, "engine not found: %s", ref.EngineID)
	}
	engine.Terminate()
	ws.logger.Info("engine terminated", "engine_id", ref.EngineID)
	return &structpb.Struct{}, nil
}

// Run implements AgentWorkerServer
func (ws *WorkerService) Run(req *structpb.Struct, stream RunStream) error {
	var run runRequest
	if err := fromStruct(req, &run); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	engine, ok := ws.get(run.EngineID)
	if !ok {
		return status.Errorf(codes.NotFound, "engine not found: %s", run.EngineID)
	}

	sink := &streamSink{stream: stream, logger: ws.logger, engineID: run.EngineID}
	err := engine.Run(stream.Context(), run.Input, run.PreviousResponseID, sink)
	switch {
	case err == nil:
		return sink.err()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Errorf(codes.Internal, "engine run failed: %v", err)
	}
}

// EngineCount returns the number of live engines
func (ws *WorkerService) EngineCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.engines)
}

// Shutdown terminates every engine
func (ws *WorkerService) Shutdown() {
	ws.mu.Lock()
	engines := ws.engines
	ws.engines = make(map[string]agent.Engine)
	ws.mu.Unlock()

	for _, engine := range engines {
		engine.Terminate()
	}
}

func (ws *WorkerService) get(id string) (agent.Engine, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	engine, ok := ws.engines[id]
	return engine, ok
}

func (ws *WorkerService) lookup(req *structpb.Struct) (agent.Engine, string, error) {
	var ref engineRef
	if err := fromStruct(req, &ref); err != nil {
		return nil, "", status.Error(codes.InvalidArgument, err.Error())
	}
	engine, ok := ws.get(ref.EngineID)
	if !ok {
		return nil, "", status.Errorf(codes.NotFound, "engine not found: %s", ref.EngineID)
	}
	return engine, ref.EngineID, nil
}

// streamSink forwards engine events to a Run stream. gRPC streams do not
// allow concurrent sends.
type streamSink struct {
	stream   RunStream
	logger   *slog.Logger
	engineID string

	mu      sync.Mutex
	sendErr error
}

func (s *streamSink) OnItem(item agent.Item) {
	s.send(runEvent{Type: eventItem, Item: &item})
}

func (s *streamSink) OnLoading(loading bool) {
	s.send(runEvent{Type: eventLoading, Loading: loading})
}

func (s *streamSink) OnLastResponseID(id string) {
	s.send(runEvent{Type: eventResponseID, ResponseID: id})
}

func (s *streamSink) send(ev runEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return
	}
	msg, err := toStruct(ev)
	if err == nil {
		err = s.stream.Send(msg)
	}
	if err != nil {
		s.sendErr = err
		s.logger.Warn("failed to forward engine event", "engine_id", s.engineID, "type", ev.Type, "error", err)
	}
}

func (s *streamSink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}
