package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/oicur0t/logagent/internal/identity"
	"github.com/oicur0t/logagent/internal/rpc"
	"github.com/oicur0t/logagent/pkg/retry"
)

func unauthErr() error { return fmt.Errorf("rpc error: code = Unauthenticated desc = token expired") }

func TestUnauthenticated(t *testing.T) {
	assert.True(t, Unauthenticated(unauthErr()))
	assert.False(t, Unauthenticated(fmt.Errorf("connection refused")))
	assert.False(t, Unauthenticated(nil))
}

// stubAuthClient satisfies rpc.AuthServiceClient, letting the coalescing and
// fallback tests below drive Manager without a network.
type stubAuthClient struct {
	registerCalls atomic.Int32
	refreshCalls  atomic.Int32

	onRegister func(*rpc.RegisterRequest) (*rpc.RegisterResponse, error)
	onRefresh  func(*rpc.RefreshRequest) (*rpc.RefreshResponse, error)
}

func (s *stubAuthClient) Register(ctx context.Context, in *rpc.RegisterRequest, opts ...grpc.CallOption) (*rpc.RegisterResponse, error) {
	s.registerCalls.Add(1)
	return s.onRegister(in)
}

func (s *stubAuthClient) Refresh(ctx context.Context, in *rpc.RefreshRequest, opts ...grpc.CallOption) (*rpc.RefreshResponse, error) {
	s.refreshCalls.Add(1)
	return s.onRefresh(in)
}

func newManager(t *testing.T, client *stubAuthClient) (*Manager, *identity.Store) {
	t.Helper()
	store, err := identity.New(t.TempDir())
	require.NoError(t, err)
	m := New(client, store, "project-1", retry.Config{MaxRetries: 1}, zap.NewNop())
	return m, store
}

func TestManager_RegisterPersistsIdentity(t *testing.T) {
	client := &stubAuthClient{
		onRegister: func(in *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
			return &rpc.RegisterResponse{AgentUUID: "agent-1", AccessToken: "at-1", RefreshToken: "rt-1"}, nil
		},
	}
	m, store := newManager(t, client)

	require.NoError(t, m.Register(context.Background()))
	assert.Equal(t, "at-1", m.CurrentAccessToken())

	uuid, err := store.LoadUUID()
	require.NoError(t, err)
	assert.Equal(t, "agent-1", uuid)
}

func TestManager_RefreshFallsBackToRegisterOnAuthFailure(t *testing.T) {
	client := &stubAuthClient{
		onRegister: func(in *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
			return &rpc.RegisterResponse{AgentUUID: "agent-1", AccessToken: "at-new", RefreshToken: "rt-new"}, nil
		},
		onRefresh: func(in *rpc.RefreshRequest) (*rpc.RefreshResponse, error) {
			return nil, unauthErr()
		},
	}
	m, _ := newManager(t, client)
	require.NoError(t, m.Register(context.Background()))
	client.refreshCalls.Store(0)
	client.registerCalls.Store(0)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, int32(1), client.refreshCalls.Load())
	assert.Equal(t, int32(1), client.registerCalls.Load())
	assert.Equal(t, "at-new", m.CurrentAccessToken())
}

func TestManager_ConcurrentRefreshesCoalesce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := &stubAuthClient{
		onRegister: func(in *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
			return &rpc.RegisterResponse{AgentUUID: "agent-1", AccessToken: "at-1", RefreshToken: "rt-1"}, nil
		},
		onRefresh: func(in *rpc.RefreshRequest) (*rpc.RefreshResponse, error) {
			calls.Add(1)
			<-release
			return &rpc.RefreshResponse{AccessToken: "at-2"}, nil
		},
	}
	m, _ := newManager(t, client)
	require.NoError(t, m.Register(context.Background()))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Refresh(context.Background())
		}(i)
	}

	// Hold the first Refresh in flight until the other callers have had
	// time to reach it, so the five calls really overlap.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load(), "concurrent refreshes must coalesce into one call")
	assert.Equal(t, "at-2", m.CurrentAccessToken())
}
