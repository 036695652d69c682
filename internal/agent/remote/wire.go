// Package remote runs agent engines in a separate worker process reached over
// gRPC. Messages are google.protobuf.Struct values carrying JSON-shaped
// payloads, so no generated stubs are needed on either side.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsantana84/codex-http/internal/agent"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "codexhttp.agent.v1.AgentWorker"

const (
	methodOpen      = "/" + ServiceName + "/Open"
	methodCancel    = "/" + ServiceName + "/Cancel"
	methodTerminate = "/" + ServiceName + "/Terminate"
	methodRun       = "/" + ServiceName + "/Run"
)

// Run event types
const (
	eventItem       = "item"
	eventLoading    = "loading"
	eventResponseID = "response_id"
)

type openRequest struct {
	Model                   string         `json:"model,omitempty"`
	Provider                string         `json:"provider,omitempty"`
	APIKey                  string         `json:"api_key,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	ApprovalPolicy          string         `json:"approval_policy,omitempty"`
	AdditionalWritableRoots []string       `json:"additional_writable_roots,omitempty"`
	DisableResponseStorage  bool           `json:"disable_response_storage,omitempty"`
	Config                  map[string]any `json:"config,omitempty"`
}

type engineRef struct {
	EngineID string `json:"engine_id"`
}

type runRequest struct {
	EngineID           string       `json:"engine_id"`
	Input              []agent.Item `json:"input"`
	PreviousResponseID string       `json:"previous_response_id,omitempty"`
}

type runEvent struct {
	Type       string      `json:"type"`
	Item       *agent.Item `json:"item,omitempty"`
	Loading    bool        `json:"loading,omitempty"`
	ResponseID string      `json:"response_id,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// AgentWorkerServer is the worker side of the engine service
type AgentWorkerServer interface {
	Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Terminate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Run(req *structpb.Struct, stream RunStream) error
}

// RunStream is the server side of a Run call
type RunStream interface {
	Send(event *structpb.Struct) error
	Context() context.Context
}

type runServerStream struct {
	grpc.ServerStream
}

func (s *runServerStream) Send(event *structpb.Struct) error {
	return s.ServerStream.SendMsg(event)
}

// RegisterAgentWorkerServer registers srv with a gRPC server
func RegisterAgentWorkerServer(s grpc.ServiceRegistrar, srv AgentWorkerServer) {
	s.RegisterService(&serviceDesc, srv)
}

type unaryCall func(srv AgentWorkerServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentWorkerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentWorkerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func runHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AgentWorkerServer).Run(in, &runServerStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentWorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Open",
			Handler: unaryHandler(methodOpen, func(srv AgentWorkerServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.Open(ctx, req)
			}),
		},
		{
			MethodName: "Cancel",
			Handler: unaryHandler(methodCancel, func(srv AgentWorkerServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.Cancel(ctx, req)
			}),
		},
		{
			MethodName: "Terminate",
			Handler: unaryHandler(methodTerminate, func(srv AgentWorkerServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.Terminate(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Run",
			Handler:       runHandler,
			ServerStreams: true,
		},
	},
	Metadata: "codexhttp/agent/v1/worker.proto",
}
