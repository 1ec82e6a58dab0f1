package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const logServiceName = "logagent.LogService"

// LogServiceServiceDesc describes the client-streaming Send method the way
// protoc-gen-go-grpc would, minus a protobuf descriptor (see codec.go).
var LogServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: logServiceName,
	HandlerType: (*LogServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Send",
			Handler:       logServiceSendHandler,
			ClientStreams: true,
		},
	},
	Metadata: "logagent/log_service.proto",
}

// LogServiceClient is the client-streaming upload RPC.
type LogServiceClient interface {
	Send(ctx context.Context, opts ...grpc.CallOption) (LogService_SendClient, error)
}

type logServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLogServiceClient wraps a connection with the LogService client stub.
func NewLogServiceClient(cc grpc.ClientConnInterface) LogServiceClient {
	return &logServiceClient{cc: cc}
}

func (c *logServiceClient) Send(ctx context.Context, opts ...grpc.CallOption) (LogService_SendClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Name)}, opts...)
	stream, err := c.cc.NewStream(ctx, &LogServiceServiceDesc.Streams[0], "/"+logServiceName+"/Send", opts...)
	if err != nil {
		return nil, err
	}
	return &logServiceSendClient{stream}, nil
}

// LogService_SendClient is the client side of the open upload stream: Send
// feeds one Batch, CloseAndRecv ends the call and waits for the server's
// single reply.
type LogService_SendClient interface {
	Send(*BatchMsg) error
	CloseAndRecv() (*Empty, error)
	grpc.ClientStream
}

type logServiceSendClient struct {
	grpc.ClientStream
}

func (x *logServiceSendClient) Send(m *BatchMsg) error {
	return x.ClientStream.SendMsg(m)
}

func (x *logServiceSendClient) CloseAndRecv() (*Empty, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	reply := new(Empty)
	if err := x.ClientStream.RecvMsg(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// LogServiceServer is implemented by test doubles that stand in for the
// collection service; this repo has no server-side implementation of it.
type LogServiceServer interface {
	Send(LogService_SendServer) error
}

// LogService_SendServer is the server side of the upload stream.
type LogService_SendServer interface {
	Recv() (*BatchMsg, error)
	SendAndClose(*Empty) error
	grpc.ServerStream
}

type logServiceSendServer struct {
	grpc.ServerStream
}

func (x *logServiceSendServer) Recv() (*BatchMsg, error) {
	m := new(BatchMsg)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *logServiceSendServer) SendAndClose(m *Empty) error {
	return x.ServerStream.SendMsg(m)
}

func logServiceSendHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(LogServiceServer).Send(&logServiceSendServer{stream})
}

// RegisterLogServiceServer registers a LogServiceServer implementation
// (typically a test double) on a gRPC server.
func RegisterLogServiceServer(s grpc.ServiceRegistrar, srv LogServiceServer) {
	s.RegisterService(&LogServiceServiceDesc, srv)
}
