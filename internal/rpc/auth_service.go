package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const authServiceName = "logagent.AuthService"

var authServiceRegisterDesc = grpc.MethodDesc{
	MethodName: "Register",
	Handler:    authServiceRegisterHandler,
}

var authServiceRefreshDesc = grpc.MethodDesc{
	MethodName: "Refresh",
	Handler:    authServiceRefreshHandler,
}

// AuthServiceServiceDesc describes Register and Refresh the way
// protoc-gen-go-grpc would (see codec.go for why there is no descriptor).
var AuthServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: authServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods:     []grpc.MethodDesc{authServiceRegisterDesc, authServiceRefreshDesc},
	Streams:     []grpc.StreamDesc{},
	Metadata:    "logagent/auth_service.proto",
}

// AuthServiceClient is the Register/Refresh RPC pair. Calls to it are never
// routed through the Auth Injector.
type AuthServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error)
}

type authServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthServiceClient wraps a connection with the AuthService client stub.
func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc: cc}
}

func (c *authServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Name)}, opts...)
	out := new(RegisterResponse)
	if err := c.cc.Invoke(ctx, "/"+authServiceName+"/Register", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *authServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Name)}, opts...)
	out := new(RefreshResponse)
	if err := c.cc.Invoke(ctx, "/"+authServiceName+"/Refresh", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AuthServiceServer is implemented by test doubles standing in for the
// collection service's auth endpoint.
type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
}

func authServiceRegisterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServiceServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + authServiceName + "/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthServiceServer).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func authServiceRefreshHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RefreshRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServiceServer).Refresh(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + authServiceName + "/Refresh"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthServiceServer).Refresh(ctx, req.(*RefreshRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAuthServiceServer registers an AuthServiceServer implementation
// (typically a test double) on a gRPC server.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceServiceDesc, srv)
}
