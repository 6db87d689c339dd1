package shardsift

import (
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func newTestCache(fs afero.Fs, limit int, stats *RunStats) *StreamCache {
	return newStreamCache(fs, "/shards", limit, 1, 0, zap.NewNop(), stats)
}

func TestStreamCacheRoutesByPrefix(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := newTestCache(fs, 4, nil)

	if err := cache.Append("ab01", []byte("r1\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := cache.Append("cd02", []byte("r2\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := cache.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}

	if got := readShard(t, fs, "/shards/ab/ab01.jsonl"); got != "r1\n" {
		t.Fatalf("shard ab01 content = %q", got)
	}
	if got := readShard(t, fs, "/shards/cd/cd02.jsonl"); got != "r2\n" {
		t.Fatalf("shard cd02 content = %q", got)
	}
}

func TestStreamCacheBound(t *testing.T) {
	fs := afero.NewMemMapFs()
	stats := &RunStats{}
	cache := newTestCache(fs, 2, stats)

	prefixes := []string{"aa00", "bb00", "cc00", "dd00", "ee00"}
	for round := 0; round < 3; round++ {
		for _, prefix := range prefixes {
			line := fmt.Sprintf("%s-%d\n", prefix, round)
			if err := cache.Append(prefix, []byte(line)); err != nil {
				t.Fatalf("Append(%s) failed: %v", prefix, err)
			}
			if n := cache.Len(); n > 2 {
				t.Fatalf("open writers = %d, exceeds the limit", n)
			}
		}
	}
	if err := cache.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}

	// Every record appears exactly once in its shard.
	for _, prefix := range prefixes {
		got := readShard(t, fs, "/shards/"+prefix[:2]+"/"+prefix+".jsonl")
		for round := 0; round < 3; round++ {
			want := fmt.Sprintf("%s-%d\n", prefix, round)
			if strings.Count(got, want) != 1 {
				t.Fatalf("shard %s: %q appears %d times in %q",
					prefix, want, strings.Count(got, want), got)
			}
		}
	}

	// Writer creations account for the five prefixes plus every eviction.
	opens, evictions := stats.WriterOpens.Load(), stats.Evictions.Load()
	if opens != int64(len(prefixes))+evictions {
		t.Fatalf("writer opens = %d, want %d + %d evictions", opens, len(prefixes), evictions)
	}
	if evictions == 0 {
		t.Fatal("round-robin over 5 prefixes with limit 2 must evict")
	}
}

func TestStreamCacheLRUOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	stats := &RunStats{}
	cache := newTestCache(fs, 2, stats)

	mustAppend := func(prefix string) {
		t.Helper()
		if err := cache.Append(prefix, []byte(prefix+"\n")); err != nil {
			t.Fatalf("Append(%s) failed: %v", prefix, err)
		}
	}

	mustAppend("aa00") // opens aa00
	mustAppend("bb00") // opens bb00
	mustAppend("aa00") // refreshes aa00: bb00 is now LRU
	mustAppend("cc00") // must evict bb00, not aa00

	if evictions := stats.Evictions.Load(); evictions != 1 {
		t.Fatalf("evictions = %d, want 1", evictions)
	}
	mustAppend("aa00") // still open: no new eviction, no reopen
	if opens := stats.WriterOpens.Load(); opens != 3 {
		t.Fatalf("writer opens = %d, want 3 (aa00, bb00, cc00)", opens)
	}

	if err := cache.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
}

func TestStreamCacheClosed(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := newTestCache(fs, 2, nil)

	if err := cache.Append("aa00", []byte("x\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := cache.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if err := cache.CloseAll(); err != nil {
		t.Fatalf("second CloseAll failed: %v", err)
	}
	if err := cache.Append("aa00", []byte("y\n")); err != ErrCacheClosed {
		t.Fatalf("Append after CloseAll = %v, want ErrCacheClosed", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len after CloseAll = %d, want 0", cache.Len())
	}
}

func TestStreamCacheEvictionFlushes(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Batch size 10: nothing flushes until eviction closes the writer.
	cache := newStreamCache(fs, "/shards", 1, 10, 0, zap.NewNop(), nil)

	if err := cache.Append("aa00", []byte("pending\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := cache.Append("bb00", []byte("other\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// aa00 was evicted to make room; its buffered record must be on disk.
	if got := readShard(t, fs, "/shards/aa/aa00.jsonl"); got != "pending\n" {
		t.Fatalf("evicted shard content = %q, want %q", got, "pending\n")
	}

	if err := cache.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
}
