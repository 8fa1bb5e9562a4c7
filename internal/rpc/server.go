package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewServer returns a gRPC server whose Chat, Show and List methods forward raw
// payloads to handler. Handler errors are reported to the caller as gRPC errors.
func NewServer(handler Invoker, maxMessageBytes int, opts ...grpc.ServerOption) *grpc.Server {
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}
	serverOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
	}
	serverOpts = append(serverOpts, opts...)

	srv := grpc.NewServer(serverOpts...)
	srv.RegisterService(serviceDesc(), handler)
	return srv
}

func serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*Invoker)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Chat", Handler: unaryHandler(ProcedureChat)},
			{MethodName: "Show", Handler: unaryHandler(ProcedureShow)},
			{MethodName: "List", Handler: unaryHandler(ProcedureList)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "ollama/llm.proto",
	}
}

func unaryHandler(procedure string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		var payload []byte
		if err := dec(&payload); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode payload: %v", err)
		}

		call := func(ctx context.Context, req any) (any, error) {
			reply, err := srv.(Invoker).Invoke(ctx, procedure, req.([]byte))
			if err != nil {
				if _, ok := status.FromError(err); ok {
					return nil, err
				}
				return nil, status.Error(codes.Internal, err.Error())
			}
			return reply, nil
		}

		if interceptor == nil {
			return call(ctx, payload)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(procedure)}
		return interceptor(ctx, payload, info, call)
	}
}
