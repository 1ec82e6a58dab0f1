// Package supervisor wires every component together and drives a staged
// shutdown: Collectors stop first, then the Forwarder drains and closes,
// then the Streamer finishes its current Batch and closes, then the Health
// Reporter stops.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/oicur0t/logagent/internal/auth"
	"github.com/oicur0t/logagent/internal/collector"
	"github.com/oicur0t/logagent/internal/config"
	"github.com/oicur0t/logagent/internal/forwarder"
	"github.com/oicur0t/logagent/internal/health"
	"github.com/oicur0t/logagent/internal/identity"
	"github.com/oicur0t/logagent/internal/models"
	"github.com/oicur0t/logagent/internal/rpc"
	"github.com/oicur0t/logagent/internal/streamer"
	"github.com/oicur0t/logagent/pkg/mtls"
	"github.com/oicur0t/logagent/pkg/retry"
)

// shutdownGrace bounds how long the Supervisor waits for a staged shutdown
// before abandoning the remaining components.
const shutdownGrace = 15 * time.Second

// batchChanCapacity keeps a handful of Batches buffered between the
// Forwarder and the Streamer so a slow upload doesn't stall flushing.
const batchChanCapacity = 4

// Supervisor constructs every component and owns the single cancellation
// signal that fans out to all of them.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger

	authConn *grpc.ClientConn
	mainConn *grpc.ClientConn

	tokenMgr   *auth.Manager
	collectors []*collector.Collector
	lineCh     chan models.LineEvent
	fwd        *forwarder.Forwarder
	stream     *streamer.Streamer
	health     *health.Reporter
}

// New builds and wires a Supervisor but does not dial or run anything yet.
func New(cfg *config.Config, logger *zap.Logger) (*Supervisor, error) {
	store, err := identity.New(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("create identity store: %w", err)
	}

	dialOpts, err := transportOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("build transport credentials: %w", err)
	}

	authConn, err := grpc.NewClient(cfg.ServerAddr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial auth connection: %w", err)
	}

	authClient := rpc.NewAuthServiceClient(authConn)
	tokenMgr := auth.New(authClient, store, cfg.ProjectKey, retry.DefaultConfig(), logger)

	mainDialOpts := append(append([]grpc.DialOption{}, dialOpts...),
		grpc.WithUnaryInterceptor(auth.UnaryClientInterceptor(tokenMgr)),
		grpc.WithStreamInterceptor(auth.StreamClientInterceptor(tokenMgr)),
	)
	mainConn, err := grpc.NewClient(cfg.ServerAddr, mainDialOpts...)
	if err != nil {
		authConn.Close()
		return nil, fmt.Errorf("dial main connection: %w", err)
	}

	lineCh := make(chan models.LineEvent, cfg.BatchSize)
	batchCh := make(chan models.Batch, batchChanCapacity)

	collectors := make([]*collector.Collector, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		spec := models.SourceSpec{Label: src.Label, Path: src.Path}
		collectors = append(collectors, collector.New(spec, lineCh, logger))
	}

	fwd := forwarder.New(lineCh, batchCh, cfg.BatchSize, cfg.FlushInterval(), logger)

	logClient := rpc.NewLogServiceClient(mainConn)
	stream := streamer.New(logClient, tokenMgr, batchCh, logger)

	healthClient := rpc.NewHealthServiceClient(mainConn)
	healthReporter := health.New(healthClient, tokenMgr, cfg.HeartbeatInterval(), logger)

	return &Supervisor{
		cfg:        cfg,
		logger:     logger,
		authConn:   authConn,
		mainConn:   mainConn,
		tokenMgr:   tokenMgr,
		collectors: collectors,
		lineCh:     lineCh,
		fwd:        fwd,
		stream:     stream,
		health:     healthReporter,
	}, nil
}

func transportOptions(cfg *config.Config) ([]grpc.DialOption, error) {
	if cfg.MTLS.CACert == "" {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds, err := mtls.NewGRPCCredentials(cfg.MTLS.CACert, cfg.MTLS.ClientCert, cfg.MTLS.ClientKey, cfg.MTLS.ServerName)
	if err != nil {
		return nil, err
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

// Run blocks until ctx is cancelled, then drives the staged shutdown and
// returns once every component has stopped or the grace period elapsed.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.authConn.Close()
	defer s.mainConn.Close()

	if err := s.tokenMgr.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap credentials: %w", err)
	}

	var collectorsWG sync.WaitGroup
	for _, c := range s.collectors {
		collectorsWG.Add(1)
		go func(c *collector.Collector) {
			defer collectorsWG.Done()
			c.Run(ctx)
		}(c)
	}

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		s.fwd.Run()
	}()

	streamerDone := make(chan struct{})
	go func() {
		defer close(streamerDone)
		s.stream.Run()
	}()

	healthDone := make(chan struct{})
	healthCtx, healthCancel := context.WithCancel(context.Background())
	go func() {
		defer close(healthDone)
		s.health.Run(healthCtx)
	}()

	// Collectors watch ctx directly. Once they've all returned, closing
	// lineCh tells the Forwarder to perform its final drain flush and
	// close batchCh, which tells the Streamer to finish and close.
	<-ctx.Done()
	s.logger.Info("shutdown signal received, draining pipeline")

	done := make(chan struct{})
	go func() {
		collectorsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Warn("collectors did not stop within grace period, abandoning")
	}
	close(s.lineCh)

	select {
	case <-forwarderDone:
	case <-time.After(shutdownGrace):
		s.logger.Warn("forwarder did not drain within grace period, abandoning")
	}

	select {
	case <-streamerDone:
	case <-time.After(shutdownGrace):
		s.logger.Warn("streamer did not close within grace period, abandoning")
	}

	healthCancel()
	select {
	case <-healthDone:
	case <-time.After(shutdownGrace):
		s.logger.Warn("health reporter did not stop within grace period, abandoning")
	}

	s.logger.Info("shutdown complete")
	return nil
}
