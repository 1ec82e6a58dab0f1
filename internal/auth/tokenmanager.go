// Package auth owns the Credential Pair lifecycle: registration, refresh,
// and transparent injection of the resulting access token into outgoing
// RPCs.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/oicur0t/logagent/internal/identity"
	"github.com/oicur0t/logagent/internal/rpc"
	"github.com/oicur0t/logagent/pkg/retry"
)

// Credentials is a snapshot of the Credential Pair. Safe to copy; the
// access token is the only field the Auth Injector reads.
type Credentials struct {
	AccessToken string
}

// Unauthenticated reports whether err is the auth-class status the
// Streamer and Token Manager treat as "token no longer valid". The
// collection service is expected to return gRPC status code Unauthenticated;
// this helper centralizes the check so callers never compare raw status
// codes inline.
func Unauthenticated(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unauthenticated")
}

// Manager is the single source of truth for the Credential Pair. Multiple
// callers may read the access token concurrently; at most one Register or
// Refresh is ever in flight, and concurrent callers rendezvous on its
// result instead of each issuing their own.
type Manager struct {
	authClient rpc.AuthServiceClient
	store      *identity.Store
	logger     *zap.Logger
	retryCfg   retry.Config
	projectKey string

	mu           sync.RWMutex
	agentUUID    string
	accessToken  string
	refreshToken string

	inflightMu sync.Mutex
	inflight   *inflightCall
}

// inflightCall coalesces concurrent Refresh (or Register) calls: the first
// caller runs the operation and closes done; everyone else just waits on it.
type inflightCall struct {
	done chan struct{}
	err  error
}

// New builds a Manager with no Credential Pair yet; call Bootstrap before
// first use.
func New(authClient rpc.AuthServiceClient, store *identity.Store, projectKey string, retryCfg retry.Config, logger *zap.Logger) *Manager {
	return &Manager{
		authClient: authClient,
		store:      store,
		logger:     logger,
		retryCfg:   retryCfg,
		projectKey: projectKey,
	}
}

// Bootstrap loads any persisted identity, then registers or re-registers as
// needed so the Manager holds a usable Credential Pair before the Collector/
// Forwarder/Streamer pipeline starts. A failure here is fatal at startup.
func (m *Manager) Bootstrap(ctx context.Context) error {
	uuid, err := m.store.LoadUUID()
	if err != nil {
		return fmt.Errorf("load agent uuid: %w", err)
	}
	refreshToken, err := m.store.LoadRefreshToken()
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}

	m.mu.Lock()
	m.agentUUID = uuid
	m.refreshToken = refreshToken
	m.mu.Unlock()

	if refreshToken != "" {
		if err := m.Refresh(ctx); err == nil {
			return nil
		}
		m.logger.Warn("refresh of persisted token failed at startup, re-registering", zap.Error(err))
	}

	return retry.Do(ctx, m.retryCfg, func() error {
		return m.Register(ctx)
	})
}

// CurrentAccessToken returns a snapshot of the current access token for
// the Auth Injector. Stale snapshots are expected and tolerated by the
// Streamer's retry-on-unauthenticated loop.
func (m *Manager) CurrentAccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// Register obtains a fresh Credential Pair, supplying the persisted agent
// UUID when one exists so the server can reuse the same identity. If the
// server rejects a supplied UUID, Register retries once without it to
// allow re-provisioning.
func (m *Manager) Register(ctx context.Context) error {
	return m.coalesce(func() error {
		return m.registerOnce(ctx)
	})
}

func (m *Manager) registerOnce(ctx context.Context) error {
	m.mu.RLock()
	uuid := m.agentUUID
	m.mu.RUnlock()

	resp, err := m.authClient.Register(ctx, &rpc.RegisterRequest{ProjectKey: m.projectKey, AgentUUID: uuid})
	if err != nil && uuid != "" {
		m.logger.Warn("register with persisted agent uuid rejected, retrying without it", zap.Error(err))
		resp, err = m.authClient.Register(ctx, &rpc.RegisterRequest{ProjectKey: m.projectKey})
	}
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := m.store.SaveUUID(resp.AgentUUID); err != nil {
		return fmt.Errorf("persist agent uuid: %w", err)
	}
	if err := m.store.SaveRefreshToken(resp.RefreshToken); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}

	m.install(resp.AgentUUID, resp.AccessToken, resp.RefreshToken)
	return nil
}

// Refresh exchanges the current refresh token for a new access token,
// falling back to Register with the persisted UUID if the refresh token
// itself is no longer accepted.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.coalesce(func() error {
		return m.refreshOnce(ctx)
	})
}

func (m *Manager) refreshOnce(ctx context.Context) error {
	m.mu.RLock()
	refreshToken := m.refreshToken
	m.mu.RUnlock()

	if refreshToken == "" {
		return m.registerOnce(ctx)
	}

	resp, err := m.authClient.Refresh(ctx, &rpc.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		if Unauthenticated(err) {
			m.logger.Warn("refresh token rejected, re-registering", zap.Error(err))
			return m.registerOnce(ctx)
		}
		return fmt.Errorf("refresh: %w", err)
	}

	newRefreshToken := resp.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}
	if newRefreshToken != refreshToken {
		if err := m.store.SaveRefreshToken(newRefreshToken); err != nil {
			return fmt.Errorf("persist rotated refresh token: %w", err)
		}
	}

	m.mu.RLock()
	uuid := m.agentUUID
	m.mu.RUnlock()
	m.install(uuid, resp.AccessToken, newRefreshToken)
	return nil
}

// install atomically swaps the Credential Pair and logs a warning if the
// newly issued access token is already close to expiry.
func (m *Manager) install(uuid, accessToken, refreshToken string) {
	m.mu.Lock()
	m.agentUUID = uuid
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.mu.Unlock()

	m.warnIfNearExpiry(accessToken)
}

func (m *Manager) warnIfNearExpiry(accessToken string) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if remaining := time.Until(exp.Time); remaining < time.Minute {
		m.logger.Warn("server issued an access token already near expiry", zap.Duration("remaining", remaining))
	}
}

// coalesce runs fn if no Register/Refresh is currently in flight, or waits
// for and returns the result of the one that is.
func (m *Manager) coalesce(fn func() error) error {
	m.inflightMu.Lock()
	if call := m.inflight; call != nil {
		m.inflightMu.Unlock()
		<-call.done
		return call.err
	}

	call := &inflightCall{done: make(chan struct{})}
	m.inflight = call
	m.inflightMu.Unlock()

	err := fn()

	m.inflightMu.Lock()
	m.inflight = nil
	m.inflightMu.Unlock()

	call.err = err
	close(call.done)
	return err
}
