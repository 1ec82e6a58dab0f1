// Package forwarder multiplexes LineEvents from every Collector into
// size- or time-bounded Batches.
package forwarder

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oicur0t/logagent/internal/models"
)

// Forwarder merges LineEvents from all Collectors on in into Batches on
// out. It terminates only when in is closed — the Supervisor closes in
// once every Collector's WaitGroup has completed — performing one final
// flush before closing out itself, which is how the Streamer learns the
// drain is finished.
type Forwarder struct {
	in            <-chan models.LineEvent
	out           chan models.Batch
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	buf []models.LineEvent
}

// New builds a Forwarder. in is the fan-in channel shared by every
// Collector; out is the bounded channel to the Streamer.
func New(in <-chan models.LineEvent, out chan models.Batch, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		in:            in,
		out:           out,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Run drives the merge-and-flush loop until in closes. Blocking on the
// send to out is the deliberate backpressure signal to the Streamer; it is
// never wrapped in a select against cancellation, because the final drain
// flush must not be dropped once cancellation has already begun.
func (f *Forwarder) Run() {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-f.in:
			if !ok {
				f.flush()
				close(f.out)
				return
			}
			f.buf = append(f.buf, ev)
			if len(f.buf) >= f.batchSize {
				f.flush()
				ticker.Reset(f.flushInterval)
			}

		case <-ticker.C:
			f.flush()
		}
	}
}

// flush closes the current buffer into a Batch and sends it, unless the
// buffer is empty — an empty flush tick produces no Batch.
func (f *Forwarder) flush() {
	if len(f.buf) == 0 {
		return
	}

	batch := models.Batch{
		ID:     uuid.NewString(),
		SendAt: time.Now(),
		Logs:   f.buf,
	}
	f.buf = nil

	f.logger.Debug("flushing batch", zap.String("batch_id", batch.ID), zap.Int("size", len(batch.Logs)))
	f.out <- batch
}
