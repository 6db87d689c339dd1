package shardsift

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// RunStats holds live counters for one ingestion run. All fields are atomic
// so workers update them without locks and the orchestrator reads them for
// the final summary.
type RunStats struct {
	FilesDone    atomic.Int64
	FilesSkipped atomic.Int64 // already done on a previous run
	FilesFailed  atomic.Int64

	Accepted          atomic.Int64
	SkippedEmpty      atomic.Int64
	SkippedFieldCount atomic.Int64
	SkippedOversize   atomic.Int64
	SkippedNoEmail    atomic.Int64

	Flushes     atomic.Int64
	Evictions   atomic.Int64
	WriterOpens atomic.Int64
}

// addCounters folds one file's counters into the run totals.
func (s *RunStats) addCounters(c Counters) {
	s.Accepted.Add(c.Accepted)
	s.SkippedEmpty.Add(c.SkippedEmpty)
	s.SkippedFieldCount.Add(c.SkippedFieldCount)
	s.SkippedOversize.Add(c.SkippedOversize)
	s.SkippedNoEmail.Add(c.SkippedNoEmail)
}

// summaryFields renders the counters as structured log fields.
func (s *RunStats) summaryFields() []zap.Field {
	return []zap.Field{
		zap.Int64("files_done", s.FilesDone.Load()),
		zap.Int64("files_skipped", s.FilesSkipped.Load()),
		zap.Int64("files_failed", s.FilesFailed.Load()),
		zap.Int64("records_accepted", s.Accepted.Load()),
		zap.Int64("skipped_empty", s.SkippedEmpty.Load()),
		zap.Int64("skipped_field_count", s.SkippedFieldCount.Load()),
		zap.Int64("skipped_oversize", s.SkippedOversize.Load()),
		zap.Int64("skipped_no_email", s.SkippedNoEmail.Load()),
		zap.Int64("flushes", s.Flushes.Load()),
		zap.Int64("evictions", s.Evictions.Load()),
		zap.Int64("writer_opens", s.WriterOpens.Load()),
	}
}
