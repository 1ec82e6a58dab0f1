// Package collector runs one goroutine per SourceSpec, turning filesystem
// change notifications into an ordered stream of LineEvents.
package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/oicur0t/logagent/internal/models"
)

// retryInterval is the minimum delay before a reconcile is retried after an
// I/O error or a missed filesystem notification.
const retryInterval = 2 * time.Second

// readChunkSize is the buffer size of each Read call in readNew; readNew
// keeps reading while full chunks come back and stops at a short read or EOF.
const readChunkSize = 64 * 1024

// Collector tails one SourceSpec and emits LineEvents to out until ctx is
// cancelled. It owns its FileCursor exclusively.
type Collector struct {
	spec   models.SourceSpec
	out    chan<- models.LineEvent
	logger *zap.Logger

	file   *os.File
	cursor FileCursor
}

// New builds a Collector for one source. out must be a bounded channel
// shared with the Forwarder; a full channel deliberately blocks reads,
// propagating backpressure back to the source file.
func New(spec models.SourceSpec, out chan<- models.LineEvent, logger *zap.Logger) *Collector {
	return &Collector{
		spec:   spec,
		out:    out,
		logger: logger.With(zap.String("label", spec.Label), zap.String("path", spec.Path)),
	}
}

// Run watches the source's parent directory for changes and reconciles the
// Collector's FileCursor against them until ctx is cancelled. Returns when
// ctx is done; any open file is closed.
func (c *Collector) Run(ctx context.Context) {
	defer c.closeFile()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Error("failed to create filesystem watcher, falling back to timer-only polling", zap.Error(err))
		c.runPollOnly(ctx)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(c.spec.Path)
	if err := watcher.Add(dir); err != nil {
		c.logger.Warn("failed to watch parent directory, will retry on timer", zap.Error(err), zap.String("dir", dir))
	}

	c.initialOpen()

	timer := time.NewTimer(retryInterval)
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.spec.Path) {
				continue
			}
			if pending {
				continue
			}
			pending = true
			c.drainCoalesced(watcher.Events)
			pending = false
			c.reconcile()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("filesystem watcher error", zap.Error(err))

		case <-timer.C:
			c.reconcile()
			timer.Reset(retryInterval)
		}
	}
}

// drainCoalesced collapses any notifications that arrive while a reconcile
// is already pending into a single follow-up, edge-triggered rather than
// count-based.
func (c *Collector) drainCoalesced(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// runPollOnly is the degraded path when the OS notification source itself
// is unavailable; reconcile still runs on the retry timer.
func (c *Collector) runPollOnly(ctx context.Context) {
	c.initialOpen()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reconcile()
		}
	}
}

// initialOpen opens the file if it exists and seeks the cursor to its
// current length, so only appends written after startup are ever emitted.
// If the file doesn't exist yet, it enters a waiting state (no file open,
// cursor zeroed) until a later reconcile finds it.
func (c *Collector) initialOpen() {
	info, err := os.Stat(c.spec.Path)
	if err != nil {
		return
	}
	id, ok := stableFileID(info)
	if !ok {
		c.logger.Warn("could not determine stable file id, will retry")
		return
	}
	if err := c.openAt(id, info.Size()); err != nil {
		c.logger.Warn("failed to open source on startup", zap.Error(err))
	}
}

// reconcile is the Collector's response to a notification or retry tick:
// stat, detect rotation/truncation, read whatever is new, emit complete
// lines.
func (c *Collector) reconcile() {
	info, err := os.Stat(c.spec.Path)
	if err != nil {
		// Missing: stay in waiting state. The FileCursor and any open file
		// handle are retained briefly so a best-effort drain can still run
		// if this is an atomic-rename rotation in progress.
		return
	}

	id, ok := stableFileID(info)
	if !ok {
		c.logger.Warn("could not determine stable file id")
		return
	}

	switch {
	case c.file == nil:
		if err := c.openAt(id, 0); err != nil {
			c.logger.Warn("failed to open newly appeared source", zap.Error(err))
			return
		}
	case id != c.cursor.FileID:
		c.drainOldBestEffort()
		if err := c.openAt(id, 0); err != nil {
			c.logger.Warn("failed to open rotated source", zap.Error(err))
			return
		}
	case info.Size() < c.cursor.Offset:
		c.cursor.reset(id)
		if _, err := c.file.Seek(0, io.SeekStart); err != nil {
			c.logger.Warn("failed to seek after truncation", zap.Error(err))
			return
		}
	}

	c.readNew()
}

// openAt opens the source fresh at startOffset, replacing any previously
// open file.
func (c *Collector) openAt(fileID uint64, startOffset int64) error {
	c.closeFile()

	f, err := os.Open(c.spec.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.spec.Path, err)
	}
	if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek %s: %w", c.spec.Path, err)
	}

	c.file = f
	c.cursor.reset(fileID)
	c.cursor.Offset = startOffset
	return nil
}

// drainOldBestEffort reads whatever remains in the previously open file
// before a rotation replaces it. This window is best-effort, not a
// guarantee: a rotation that replaces the file between reconciles can
// still lose whatever was written to the old file in that gap.
func (c *Collector) drainOldBestEffort() {
	if c.file == nil {
		return
	}
	c.readNew()
	c.closeFile()
}

// readNew reads from the cursor's offset to EOF and emits every complete
// line, retaining any trailing unterminated fragment in partial.
func (c *Collector) readNew() {
	if c.file == nil {
		return
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := c.file.Read(buf)
		if n > 0 {
			c.cursor.Partial = append(c.cursor.Partial, buf[:n]...)
			c.cursor.Offset += int64(n)
			c.emitComplete()
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("read error, will retry on next reconcile", zap.Error(err))
			}
			return
		}
		if n < len(buf) {
			return
		}
	}
}

// emitComplete splits the accumulated partial buffer on newlines, emitting
// each complete line and leaving any trailing fragment for the next read.
func (c *Collector) emitComplete() {
	for {
		idx := bytes.IndexByte(c.cursor.Partial, '\n')
		if idx < 0 {
			return
		}
		line := string(bytes.TrimRight(c.cursor.Partial[:idx], "\r"))
		c.cursor.Partial = c.cursor.Partial[idx+1:]

		c.out <- models.LineEvent{
			Label:      c.spec.Label,
			Line:       line,
			ObservedAt: time.Now(),
		}
	}
}

func (c *Collector) closeFile() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
}
