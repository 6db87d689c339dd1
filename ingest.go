package shardsift

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// State is the orchestrator lifecycle state.
type State int32

const (
	// StateRunning means workers are claiming and processing files.
	StateRunning State = iota
	// StateDraining means no new files are claimed; in-flight files finish.
	StateDraining
	// StateClosed means all writers are closed and the run is over.
	StateClosed
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Ingestor walks an input root, fans input files out to a bounded worker
// pool, and routes every parsed record to its prefix shard. It owns the
// stream cache, the progress store and the audit logs for one run.
type Ingestor struct {
	cfg    Config
	fs     afero.Fs
	now    NowFunc
	logger *zap.Logger

	hasher   *Hasher
	cache    *StreamCache
	progress *ProgressStore
	audit    *AuditLog
	proc     *Processor
	stats    *RunStats

	// workDir is where the stop sentinel is looked for.
	workDir string

	state atomic.Int32
}

// New creates an Ingestor for the given configuration.
// It validates the configuration, creates the shard root and loads any
// previous progress document. The returned error is a ConfigError when the
// configuration is unusable.
func New(cfg Config, options ...Option) (*Ingestor, error) {
	ing := &Ingestor{
		cfg:     cfg,
		fs:      afero.NewOsFs(),
		now:     time.Now,
		logger:  zap.NewNop(),
		workDir: ".",
	}
	for _, option := range options {
		option(ing)
	}

	var errs []error
	errs = append(errs, cfg.validate()...)

	hasher, err := NewHasher(cfg.Key)
	if err != nil {
		if ce, ok := err.(*ConfigError); ok {
			errs = append(errs, ce.Errors...)
		} else {
			errs = append(errs, err)
		}
	}
	if cfg.InputDir != "" {
		info, err := ing.fs.Stat(cfg.InputDir)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("INPUT_DIR %s is not readable: %w", cfg.InputDir, err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("INPUT_DIR %s is not a directory", cfg.InputDir))
		}
	}
	if cfg.ShardDir != "" {
		if err := ing.fs.MkdirAll(cfg.ShardDir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("SHARD_DIR %s is not writable: %w", cfg.ShardDir, err))
		}
	}
	if err := newConfigError(errs); err != nil {
		return nil, err
	}

	ing.hasher = hasher
	ing.stats = &RunStats{}
	ing.cache = newStreamCache(ing.fs, cfg.ShardDir, cfg.MaxStreams, cfg.BatchSize, cfg.BatchInterval, ing.logger, ing.stats)
	ing.progress = OpenProgressStore(ing.fs, filepath.Join(cfg.ShardDir, cfg.ProgressFile), ing.logger)
	ing.audit = newAuditLog(ing.fs,
		filepath.Join(cfg.ShardDir, cfg.MultiFieldLog),
		filepath.Join(cfg.ShardDir, cfg.SkippedLog),
		ing.logger)
	ing.proc = &Processor{
		fs:           ing.fs,
		cache:        ing.cache,
		hasher:       hasher,
		audit:        ing.audit,
		logger:       ing.logger,
		scrubEmail:   cfg.ScrubEmail,
		skipHeader:   cfg.SkipHeader,
		strictFields: cfg.StrictFields,
	}
	return ing, nil
}

// State returns the current lifecycle state.
func (ing *Ingestor) State() State {
	return State(ing.state.Load())
}

// Stats returns the live run counters.
func (ing *Ingestor) Stats() *RunStats {
	return ing.stats
}

// Run ingests every pending input file under the configured root. It
// returns after all files are done or after a graceful stop has drained
// in-flight work and closed every shard writer.
//
// Stopping is cooperative: cancelling ctx, SIGINT/SIGTERM wired to ctx by
// the caller, or the stop sentinel file all stop new claims; a worker that
// has started a file always finishes it.
func (ing *Ingestor) Run(ctx context.Context) error {
	runID := uuid.NewString()
	start := ing.now()
	ing.state.Store(int32(StateRunning))

	files, err := ing.listInputs()
	if err != nil {
		return fmt.Errorf("failed to enumerate input files: %w", err)
	}
	ing.logger.Info("ingestion starting",
		zap.String("run_id", runID),
		zap.String("input_dir", ing.cfg.InputDir),
		zap.Int("files", len(files)),
		zap.Int("concurrency", ing.cfg.Concurrency))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchSentinel(ctx, ing.fs, ing.workDir, StopSentinel, cancel, ing.logger)

	var next atomic.Int64
	var g errgroup.Group
	for i := 0; i < ing.cfg.Concurrency; i++ {
		g.Go(func() error {
			ing.worker(ctx, files, &next)
			return nil
		})
	}
	_ = g.Wait()

	ing.state.Store(int32(StateDraining))
	ing.logger.Debug("workers drained", zap.String("state", ing.State().String()))

	if err := ing.cache.CloseAll(); err != nil {
		ing.logger.Error("failed to close shard writers", zap.Error(err))
	}
	if err := ing.progress.Flush(); err != nil {
		ing.logger.Warn("failed to flush progress store", zap.Error(err))
	}
	ing.state.Store(int32(StateClosed))

	ing.removeSentinel()

	remaining := 0
	for _, state := range ing.progress.Snapshot() {
		if state != StateDone {
			remaining++
		}
	}
	fields := append(ing.stats.summaryFields(),
		zap.String("run_id", runID),
		zap.Int("files_remaining", remaining),
		zap.Duration("elapsed", ing.now().Sub(start)))
	ing.logger.Info("ingestion finished", fields...)
	return nil
}

// worker claims file indexes until the list is exhausted or the run is
// draining. A claimed file is always carried to completion.
func (ing *Ingestor) worker(ctx context.Context, files []string, next *atomic.Int64) {
	for {
		if ctx.Err() != nil {
			ing.state.Store(int32(StateDraining))
			return
		}
		i := next.Add(1) - 1
		if i >= int64(len(files)) {
			return
		}
		path := files[i]

		if ing.progress.HasDone(path) {
			ing.stats.FilesSkipped.Add(1)
			ing.logger.Debug("skipping completed file", zap.String("file", path))
			continue
		}

		ing.progress.MarkInProgress(path)
		ing.logger.Info("processing file", zap.String("file", path))
		counters, err := ing.proc.ProcessFile(path)
		ing.stats.addCounters(counters)
		if err != nil {
			// Left in-progress so the next run retries it.
			ing.stats.FilesFailed.Add(1)
			ing.audit.RecordSkipped(path, err.Error())
			ing.logger.Error("file failed",
				zap.String("file", path),
				zap.Error(err))
			continue
		}

		ing.progress.MarkDone(path)
		ing.stats.FilesDone.Add(1)
		ing.logger.Info("file done",
			zap.String("file", path),
			zap.Int64("accepted", counters.Accepted),
			zap.Int64("skipped_empty", counters.SkippedEmpty),
			zap.Int64("skipped_field_count", counters.SkippedFieldCount),
			zap.Int64("skipped_oversize", counters.SkippedOversize),
			zap.Int64("skipped_no_email", counters.SkippedNoEmail))
	}
}

// listInputs enumerates .txt files under the input root, case-insensitively,
// in deterministic order.
func (ing *Ingestor) listInputs() ([]string, error) {
	var files []string
	err := afero.Walk(ing.fs, ing.cfg.InputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// removeSentinel deletes the stop sentinel on a clean exit so the next run
// is not immediately stopped again.
func (ing *Ingestor) removeSentinel() {
	target := filepath.Join(ing.workDir, StopSentinel)
	if ok, err := afero.Exists(ing.fs, target); err == nil && ok {
		if err := ing.fs.Remove(target); err != nil {
			ing.logger.Warn("failed to remove stop sentinel", zap.Error(err))
		}
	}
}
