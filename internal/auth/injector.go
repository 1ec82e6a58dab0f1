package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryClientInterceptor attaches the current access token as a bearer
// credential to every outgoing unary RPC except Register and Refresh,
// which are dialed through a separate, uninterrupted connection so they
// never loop back through this injector.
func UnaryClientInterceptor(m *Manager) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(withBearer(ctx, m), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart, used for the
// LogService.Send upload stream.
func StreamClientInterceptor(m *Manager) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(withBearer(ctx, m), desc, cc, method, opts...)
	}
}

func withBearer(ctx context.Context, m *Manager) context.Context {
	token := m.CurrentAccessToken()
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
