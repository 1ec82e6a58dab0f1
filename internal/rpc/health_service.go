package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const healthServiceName = "logagent.HealthService"

var healthServiceHeartbeatDesc = grpc.MethodDesc{
	MethodName: "Heartbeat",
	Handler:    healthServiceHeartbeatHandler,
}

// HealthServiceServiceDesc describes the Heartbeat method the way
// protoc-gen-go-grpc would (see codec.go).
var HealthServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: healthServiceName,
	HandlerType: (*HealthServiceServer)(nil),
	Methods:     []grpc.MethodDesc{healthServiceHeartbeatDesc},
	Streams:     []grpc.StreamDesc{},
	Metadata:    "logagent/health_service.proto",
}

// HealthServiceClient carries Health Reporter heartbeats.
type HealthServiceClient interface {
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type healthServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHealthServiceClient wraps a connection with the HealthService client stub.
func NewHealthServiceClient(cc grpc.ClientConnInterface) HealthServiceClient {
	return &healthServiceClient{cc: cc}
}

func (c *healthServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Name)}, opts...)
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, "/"+healthServiceName+"/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthServiceServer is implemented by test doubles standing in for the
// collection service's health endpoint.
type HealthServiceServer interface {
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
}

func healthServiceHeartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HealthServiceServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + healthServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HealthServiceServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterHealthServiceServer registers a HealthServiceServer implementation
// (typically a test double) on a gRPC server.
func RegisterHealthServiceServer(s grpc.ServiceRegistrar, srv HealthServiceServer) {
	s.RegisterService(&HealthServiceServiceDesc, srv)
}
