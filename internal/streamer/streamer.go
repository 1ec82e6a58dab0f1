// Package streamer runs the long-lived client-streaming upload to
// LogService.Send, including auth-retry-once and transport
// reconnect-and-retry-once semantics.
package streamer

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/oicur0t/logagent/internal/auth"
	"github.com/oicur0t/logagent/internal/models"
	"github.com/oicur0t/logagent/internal/rpc"
)

// Streamer owns one client-streaming call to LogService.Send, fed by
// Batches from the Forwarder. It terminates only when in closes — which
// the Forwarder does only after its own final drain flush — so the last
// Batch is never lost to an earlier shutdown signal. For that reason the
// gRPC stream itself is opened against an internal context derived from
// context.Background(), never the Supervisor's cancellation context.
type Streamer struct {
	client   rpc.LogServiceClient
	tokenMgr *auth.Manager
	in       <-chan models.Batch
	logger   *zap.Logger

	streamCtx    context.Context
	streamCancel context.CancelFunc
	stream       rpc.LogService_SendClient
}

// New builds a Streamer. client should be constructed over a ClientConn
// carrying the Auth Injector's interceptors.
func New(client rpc.LogServiceClient, tokenMgr *auth.Manager, in <-chan models.Batch, logger *zap.Logger) *Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Streamer{
		client:       client,
		tokenMgr:     tokenMgr,
		in:           in,
		logger:       logger,
		streamCtx:    ctx,
		streamCancel: cancel,
	}
}

// Run delivers Batches until in closes, then closes the upload stream
// cleanly. The Streamer finishes its current Batch and closes only after
// the Forwarder has already closed.
func (s *Streamer) Run() {
	for batch := range s.in {
		s.deliver(batch)
	}
	s.close()
}

// deliver sends one Batch. An auth failure gets exactly one
// refresh-then-retry before escalating to re-register; a transport failure
// gets exactly one reconnect-then-retry. Either way, a Batch that still
// fails after its one retry is dropped and logged, never resent a third
// time.
func (s *Streamer) deliver(batch models.Batch) {
	msg := toBatchMsg(batch)

	err := s.trySend(msg)
	if err == nil {
		return
	}

	if auth.Unauthenticated(err) {
		if refreshErr := s.tokenMgr.Refresh(s.streamCtx); refreshErr != nil {
			s.logger.Warn("token refresh failed before auth retry", zap.Error(refreshErr))
		}
		err = s.trySend(msg)
		if err == nil {
			return
		}
		if auth.Unauthenticated(err) {
			if registerErr := s.tokenMgr.Register(s.streamCtx); registerErr != nil {
				s.logger.Error("re-register after second auth failure failed", zap.Error(registerErr))
			}
		}
		s.logger.Error("dropping batch after auth retry exhausted", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	s.logger.Warn("transport error, reconnecting and retrying batch once", zap.Error(err))
	if err := s.trySend(msg); err != nil {
		s.logger.Error("dropping batch after transport retry failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}

// trySend ensures a stream is open and sends msg on it, tearing the stream
// down on any error so the next call reconnects fresh. A client-streaming
// Send aborted by the server surfaces as io.EOF; the real status is only
// available from a follow-up RecvMsg (grpc.ClientStream's documented
// contract), so that's what's reported to the caller.
func (s *Streamer) trySend(msg *rpc.BatchMsg) error {
	if err := s.ensureStream(); err != nil {
		return err
	}
	if err := s.stream.Send(msg); err != nil {
		realErr := err
		if err == io.EOF {
			if recvErr := s.stream.RecvMsg(new(rpc.Empty)); recvErr != nil {
				realErr = recvErr
			}
		}
		s.teardown()
		return realErr
	}
	return nil
}

func (s *Streamer) ensureStream() error {
	if s.stream != nil {
		return nil
	}
	stream, err := s.client.Send(s.streamCtx)
	if err != nil {
		return err
	}
	s.stream = stream
	return nil
}

func (s *Streamer) teardown() {
	s.stream = nil
}

// close finishes the open call, if any, and waits for the server's
// terminal acknowledgement.
func (s *Streamer) close() {
	defer s.streamCancel()
	if s.stream == nil {
		return
	}
	if _, err := s.stream.CloseAndRecv(); err != nil {
		s.logger.Warn("upload stream close did not receive server ack", zap.Error(err))
	}
}

func toBatchMsg(batch models.Batch) *rpc.BatchMsg {
	logs := make([]rpc.LogLineMsg, len(batch.Logs))
	for i, ev := range batch.Logs {
		logs[i] = rpc.LogLineMsg{
			Label:     ev.Label,
			Line:      ev.Line,
			Timestamp: ev.ObservedAt.UnixMilli(),
		}
	}
	return &rpc.BatchMsg{
		BatchID: batch.ID,
		SendAt:  batch.SendAt.UnixMilli(),
		Logs:    logs,
	}
}
