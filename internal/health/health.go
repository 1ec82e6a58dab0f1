// Package health reports periodic CPU/memory heartbeats to the collection
// service.
package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/oicur0t/logagent/internal/auth"
	"github.com/oicur0t/logagent/internal/rpc"
)

// heartbeatTimeout bounds each Heartbeat call to well under the reporting
// interval.
const heartbeatTimeout = 5 * time.Second

// warmupSample is the measured interval cpu.Percent needs before its first
// reading is meaningful.
const warmupSample = 200 * time.Millisecond

// Reporter samples host CPU and memory utilisation and sends them to
// HealthService.Heartbeat at a fixed cadence. Transmission failures are
// logged and never affect the log pipeline.
type Reporter struct {
	client   rpc.HealthServiceClient
	tokenMgr *auth.Manager
	interval time.Duration
	logger   *zap.Logger
}

// New builds a Reporter. client should be constructed over a ClientConn
// carrying the Auth Injector's interceptors.
func New(client rpc.HealthServiceClient, tokenMgr *auth.Manager, interval time.Duration, logger *zap.Logger) *Reporter {
	return &Reporter{client: client, tokenMgr: tokenMgr, interval: interval, logger: logger}
}

// Run samples and sends heartbeats until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	// Memory percent reported below is used/total system memory (see
	// DESIGN.md).
	if _, err := cpu.Percent(warmupSample, false); err != nil {
		r.logger.Warn("cpu warm-up sample failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.sendHeartbeat(ctx); err != nil {
				r.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (r *Reporter) sendHeartbeat(ctx context.Context) error {
	cpuPct, memPct, err := sample()
	if err != nil {
		return err
	}

	req := &rpc.HeartbeatRequest{
		Timestamp:     time.Now().Unix(),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
	}

	callCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	_, err = r.client.Heartbeat(callCtx, req)
	if err == nil {
		return nil
	}

	if !auth.Unauthenticated(err) {
		return err
	}

	r.logger.Warn("heartbeat unauthenticated, refreshing and retrying once", zap.Error(err))
	if refreshErr := r.tokenMgr.Refresh(ctx); refreshErr != nil {
		return refreshErr
	}

	callCtx2, cancel2 := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel2()
	_, err = r.client.Heartbeat(callCtx2, req)
	return err
}

func sample() (cpuPercent, memPercent float64, err error) {
	cpuPcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, err
	}
	if len(cpuPcts) > 0 {
		cpuPercent = cpuPcts[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	memPercent = vm.UsedPercent

	return cpuPercent, memPercent, nil
}
