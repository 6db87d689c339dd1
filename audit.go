package shardsift

import (
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// AuditLog maintains the two append-only side logs of a run: input files
// whose lines violate the two-field expectation, and input files skipped
// with an error. Entries are never rewritten.
type AuditLog struct {
	mu        sync.Mutex
	fs        afero.Fs
	multiPath string
	skipPath  string
	logger    *zap.Logger

	// seen holds xxhash digests of sources already recorded in the
	// multi-field log, so each file is recorded at most once per run
	// without retaining every path.
	seen map[uint64]struct{}
}

// newAuditLog creates an audit log writing to the given files.
func newAuditLog(fs afero.Fs, multiPath, skipPath string, logger *zap.Logger) *AuditLog {
	return &AuditLog{
		fs:        fs,
		multiPath: multiPath,
		skipPath:  skipPath,
		logger:    logger,
		seen:      make(map[uint64]struct{}),
	}
}

// RecordMultiField notes that source produced lines with more than two
// fields. Only the first report per source per run reaches the log.
func (a *AuditLog) RecordMultiField(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	digest := xxhash.Sum64String(source)
	if _, ok := a.seen[digest]; ok {
		return
	}
	a.seen[digest] = struct{}{}
	a.appendLocked(a.multiPath, source+"\n")
}

// RecordSkipped notes that an input file was skipped with the given reason.
func (a *AuditLog) RecordSkipped(source, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLocked(a.skipPath, fmt.Sprintf("%s – %s\n", source, reason))
}

// appendLocked writes one line to an audit file. Each line goes out in a
// single write on a freshly opened append handle. Failures are logged and
// swallowed; audit logs never abort ingestion. The caller holds a.mu.
func (a *AuditLog) appendLocked(path, line string) {
	file, err := a.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Warn("failed to open audit log",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	defer file.Close()
	if _, err := file.WriteString(line); err != nil {
		a.logger.Warn("failed to append to audit log",
			zap.String("path", path),
			zap.Error(err))
	}
}
