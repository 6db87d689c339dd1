package shardsift

import (
	"container/list"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StreamCache is a bounded LRU over open shard writers. It exclusively owns
// every open writer: records are appended through it, eviction or a failed
// write is the only way a writer closes mid-run, and CloseAll is the only
// shutdown path.
//
// Capacity is the hard file-descriptor budget: at any moment at most limit
// writers are open, and eviction closes the least-recently-used writer
// before a new one is opened.
type StreamCache struct {
	mu      sync.Mutex
	fs      afero.Fs
	root    string
	limit   int
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	closed  bool

	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	stats         *RunStats
}

// cacheEntry is the LRU node payload: one shard prefix and its open writer.
type cacheEntry struct {
	prefix string
	writer *BatchWriter
}

// newStreamCache creates a cache writing shards under root, holding at most
// limit open writers.
func newStreamCache(fs afero.Fs, root string, limit, batchSize int, batchInterval time.Duration, logger *zap.Logger, stats *RunStats) *StreamCache {
	return &StreamCache{
		fs:            fs,
		root:          root,
		limit:         limit,
		entries:       make(map[string]*list.Element, limit),
		lru:           list.New(),
		batchSize:     batchSize,
		batchInterval: batchInterval,
		logger:        logger,
		stats:         stats,
	}
}

// Append routes one encoded line to the shard for prefix, opening or
// reviving its writer as needed. The cache lock is held across the write so
// the entry cannot be evicted mid-append.
//
// On a write error the writer is closed and dropped from the cache; the
// next Append for the prefix reopens the shard file.
func (c *StreamCache) Append(prefix string, line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}

	w, err := c.writerLocked(prefix)
	if err != nil {
		return err
	}
	if err := w.Append(line); err != nil {
		c.dropLocked(prefix)
		return fmt.Errorf("failed to append to shard %s: %w", prefix, err)
	}
	return nil
}

// Len returns the number of currently open writers.
func (c *StreamCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CloseAll drains every open writer concurrently and awaits completion.
// The cache is unusable afterwards; Append returns ErrCacheClosed.
func (c *StreamCache) CloseAll() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	writers := make([]*BatchWriter, 0, len(c.entries))
	for _, elem := range c.entries {
		writers = append(writers, elem.Value.(*cacheEntry).writer)
	}
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	var g errgroup.Group
	for _, w := range writers {
		g.Go(w.Close)
	}
	return g.Wait()
}

// writerLocked returns the open writer for prefix, evicting the LRU entry
// and opening the shard file when absent. The caller holds c.mu.
func (c *StreamCache) writerLocked(prefix string) (*BatchWriter, error) {
	if elem, ok := c.entries[prefix]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).writer, nil
	}

	// Close the victim before opening a new handle so the open-writer
	// count never exceeds the limit.
	if len(c.entries) >= c.limit {
		victim := c.lru.Back()
		entry := victim.Value.(*cacheEntry)
		if err := entry.writer.Close(); err != nil {
			c.logger.Warn("failed to close evicted shard writer",
				zap.String("prefix", entry.prefix),
				zap.Error(err))
		}
		c.lru.Remove(victim)
		delete(c.entries, entry.prefix)
		if c.stats != nil {
			c.stats.Evictions.Add(1)
		}
		c.logger.Debug("evicted shard writer", zap.String("prefix", entry.prefix))
	}

	if err := c.fs.MkdirAll(shardDir(c.root, prefix), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory for %s: %w", prefix, err)
	}
	path := shardPath(c.root, prefix)
	file, err := c.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard %s: %w", path, err)
	}

	w := newBatchWriter(file, path, c.batchSize, c.batchInterval, c.logger, c.stats)
	elem := c.lru.PushFront(&cacheEntry{prefix: prefix, writer: w})
	c.entries[prefix] = elem
	if c.stats != nil {
		c.stats.WriterOpens.Add(1)
	}
	return w, nil
}

// dropLocked closes and removes the entry for prefix, if present.
// The caller holds c.mu.
func (c *StreamCache) dropLocked(prefix string) {
	elem, ok := c.entries[prefix]
	if !ok {
		return
	}
	entry := elem.Value.(*cacheEntry)
	if err := entry.writer.Close(); err != nil {
		c.logger.Warn("failed to close failed shard writer",
			zap.String("prefix", prefix),
			zap.Error(err))
	}
	c.lru.Remove(elem)
	delete(c.entries, prefix)
}
