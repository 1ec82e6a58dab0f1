package streamer

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oicur0t/logagent/internal/auth"
	"github.com/oicur0t/logagent/internal/identity"
	"github.com/oicur0t/logagent/internal/models"
	"github.com/oicur0t/logagent/internal/rpc"
	"github.com/oicur0t/logagent/pkg/retry"
)

// fakeLogServer aborts the first RPC call on its first Batch with
// Unauthenticated when failFirstCall is set (that call clears the flag),
// then accepts everything else, the same way a token-expiry mid-call would.
type fakeLogServer struct {
	mu            sync.Mutex
	received      []*rpc.BatchMsg
	failFirstCall atomic.Bool
}

func (f *fakeLogServer) Send(stream rpc.LogService_SendServer) error {
	failThisCall := f.failFirstCall.CompareAndSwap(true, false)
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&rpc.Empty{})
		}
		if err != nil {
			return err
		}
		if failThisCall {
			return status.Error(codes.Unauthenticated, "token expired")
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()
	}
}

func (f *fakeLogServer) receivedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.received))
	for i, m := range f.received {
		ids[i] = m.BatchID
	}
	return ids
}

type stubAuthClient struct {
	refreshCalls  atomic.Int32
	registerCalls atomic.Int32
}

func (s *stubAuthClient) Register(ctx context.Context, in *rpc.RegisterRequest, opts ...grpc.CallOption) (*rpc.RegisterResponse, error) {
	s.registerCalls.Add(1)
	return &rpc.RegisterResponse{AgentUUID: "agent-1", AccessToken: "at-reg", RefreshToken: "rt-reg"}, nil
}

func (s *stubAuthClient) Refresh(ctx context.Context, in *rpc.RefreshRequest, opts ...grpc.CallOption) (*rpc.RefreshResponse, error) {
	s.refreshCalls.Add(1)
	return &rpc.RefreshResponse{AccessToken: "at-refreshed"}, nil
}

func startBufconnServer(t *testing.T, logSrv rpc.LogServiceServer) rpc.LogServiceClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	rpc.RegisterLogServiceServer(srv, logSrv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return rpc.NewLogServiceClient(conn)
}

func TestStreamer_AuthRetryOnceThenSuccess(t *testing.T) {
	logSrv := &fakeLogServer{}
	logSrv.failFirstCall.Store(true)
	client := startBufconnServer(t, logSrv)

	authClient := &stubAuthClient{}
	store, err := identity.New(t.TempDir())
	require.NoError(t, err)
	tokenMgr := auth.New(authClient, store, "project-1", retry.Config{MaxRetries: 1}, zap.NewNop())
	require.NoError(t, tokenMgr.Register(context.Background()))
	authClient.registerCalls.Store(0)

	in := make(chan models.Batch, 4)
	s := New(client, tokenMgr, in, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run()
	}()

	in <- models.Batch{ID: "batch-1", SendAt: time.Now(), Logs: []models.LineEvent{{Label: "app", Line: "hi", ObservedAt: time.Now()}}}
	close(in)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("streamer did not finish after input closed")
	}

	assert.Equal(t, int32(1), authClient.refreshCalls.Load(), "exactly one Refresh on first-batch auth failure")
	assert.Equal(t, int32(0), authClient.registerCalls.Load(), "Register must not be called when the retry succeeds")
	assert.Equal(t, []string{"batch-1"}, logSrv.receivedIDs())
}

func TestStreamer_AuthRetryEscalatesToRegisterOnSecondFailure(t *testing.T) {
	logSrv := &alwaysUnauthLogServer{}
	client := startBufconnServer(t, logSrv)

	authClient := &stubAuthClient{}
	store, err := identity.New(t.TempDir())
	require.NoError(t, err)
	tokenMgr := auth.New(authClient, store, "project-1", retry.Config{MaxRetries: 1}, zap.NewNop())
	require.NoError(t, tokenMgr.Register(context.Background()))
	authClient.registerCalls.Store(0)

	in := make(chan models.Batch, 4)
	s := New(client, tokenMgr, in, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run()
	}()

	in <- models.Batch{ID: "batch-1", SendAt: time.Now(), Logs: []models.LineEvent{{Label: "app", Line: "hi", ObservedAt: time.Now()}}}
	close(in)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("streamer did not finish after input closed")
	}

	assert.Equal(t, int32(1), authClient.refreshCalls.Load())
	assert.Equal(t, int32(1), authClient.registerCalls.Load(), "second auth failure escalates to Register exactly once")
}

// alwaysUnauthLogServer rejects every call, to drive the second-failure
// escalation path.
type alwaysUnauthLogServer struct{}

func (alwaysUnauthLogServer) Send(stream rpc.LogService_SendServer) error {
	if _, err := stream.Recv(); err != nil {
		return err
	}
	return status.Error(codes.Unauthenticated, "token expired")
}
