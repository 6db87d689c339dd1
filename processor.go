package shardsift

import (
	"bufio"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// readBlockSize is the buffered-read block for sequential input scans.
const readBlockSize = 64 * 1024

// maxLineBytes caps a single input line; dumps with longer lines are
// treated as unreadable rather than risking unbounded buffers.
const maxLineBytes = 1 << 20

// Counters tallies the per-line outcomes of one input file.
type Counters struct {
	Accepted          int64
	SkippedEmpty      int64
	SkippedFieldCount int64
	SkippedOversize   int64
	SkippedNoEmail    int64
}

// Processor runs the per-file pipeline: parse each line, normalize and hash
// the email, classify the credential, and route the record to its shard
// through the stream cache.
type Processor struct {
	fs     afero.Fs
	cache  *StreamCache
	hasher *Hasher
	audit  *AuditLog
	logger *zap.Logger

	scrubEmail   bool
	skipHeader   bool
	strictFields bool
}

// ProcessFile streams one input file through the pipeline and returns its
// counters. Per-line problems are counted and skipped; the only fatal
// condition is an unreadable source or an unrecoverable shard write.
func (p *Processor) ProcessFile(path string) (Counters, error) {
	var c Counters

	file, err := p.fs.Open(path)
	if err != nil {
		return c, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(bufio.NewReaderSize(file, readBlockSize))
	scanner.Buffer(make([]byte, readBlockSize), maxLineBytes)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if p.skipHeader {
				continue
			}
		}
		if err := p.processLine(line, path, &c); err != nil {
			return c, err
		}
	}
	if err := scanner.Err(); err != nil {
		return c, fmt.Errorf("failed to read input file: %w", err)
	}
	return c, nil
}

// processLine handles one line: reject-and-count, or route the record.
func (p *Processor) processLine(line, source string, c *Counters) error {
	parsed, reject := ParseLine(line, source, p.strictFields)
	if parsed.MultiField {
		p.audit.RecordMultiField(source)
	}
	switch reject {
	case RejectNone:
	case RejectEmpty:
		c.SkippedEmpty++
		return nil
	case RejectFieldCount:
		c.SkippedFieldCount++
		return nil
	case RejectNoEmail:
		c.SkippedNoEmail++
		return nil
	case RejectOversize:
		c.SkippedOversize++
		return nil
	}

	norm, ok := NormalizeEmail(parsed.RawEmail)
	if !ok {
		c.SkippedNoEmail++
		return nil
	}

	emailHash := p.hasher.Sum(norm)
	isHash, hashType := Classify(parsed.RawPassword)

	rec := Record{
		EmailHash: emailHash,
		Password:  parsed.RawPassword,
		IsHash:    isHash,
		HashType:  hashType,
		Email:     norm,
		Source:    source,
	}
	if p.scrubEmail {
		rec.Email = ""
	}
	encoded, err := rec.encode()
	if err != nil {
		// Records are plain strings and bools; encoding cannot fail for
		// valid UTF-8 input, and invalid bytes were stripped at parse.
		c.SkippedFieldCount++
		p.logger.Warn("failed to encode record", zap.String("source", source), zap.Error(err))
		return nil
	}

	prefix := ShardPrefix(emailHash)
	if err := p.cache.Append(prefix, encoded); err != nil {
		// The cache dropped the writer; one reopen attempt is allowed
		// before the file is abandoned.
		if err := p.cache.Append(prefix, encoded); err != nil {
			return fmt.Errorf("failed to write shard %s: %w", prefix, err)
		}
	}
	c.Accepted++
	return nil
}
