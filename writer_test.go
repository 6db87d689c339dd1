package shardsift

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// openTestWriter creates a batch writer over a fresh in-memory file.
func openTestWriter(t *testing.T, fs afero.Fs, batchSize int, interval time.Duration) *BatchWriter {
	t.Helper()
	file, err := fs.OpenFile("/shards/ab/abcd.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("failed to open test file: %v", err)
	}
	return newBatchWriter(file, "/shards/ab/abcd.jsonl", batchSize, interval, zap.NewNop(), nil)
}

func readShard(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestBatchWriterFlushesAtBatchSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	mustMkdirAll(t, fs, "/shards/ab")
	w := openTestWriter(t, fs, 2, 0)

	if err := w.Append([]byte("one\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := readShard(t, fs, "/shards/ab/abcd.jsonl"); got != "" {
		t.Fatalf("flushed before the batch filled: %q", got)
	}
	if w.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", w.Pending())
	}

	if err := w.Append([]byte("two\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := readShard(t, fs, "/shards/ab/abcd.jsonl"); got != "one\ntwo\n" {
		t.Fatalf("after batch flush content = %q, want %q", got, "one\ntwo\n")
	}
	if w.Pending() != 0 {
		t.Fatalf("Pending after flush = %d, want 0", w.Pending())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestBatchWriterTimerFlush(t *testing.T) {
	fs := afero.NewMemMapFs()
	mustMkdirAll(t, fs, "/shards/ab")
	w := openTestWriter(t, fs, 100, 10*time.Millisecond)
	defer w.Close()

	if err := w.Append([]byte("tick\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if readShard(t, fs, "/shards/ab/abcd.jsonl") == "tick\n" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timer never flushed the pending batch")
}

func TestBatchWriterCloseFlushesAndIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	mustMkdirAll(t, fs, "/shards/ab")
	w := openTestWriter(t, fs, 100, 20*time.Millisecond)

	if err := w.Append([]byte("last\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := readShard(t, fs, "/shards/ab/abcd.jsonl"); got != "last\n" {
		t.Fatalf("Close did not flush: %q", got)
	}

	// Second close is a no-op.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	// A closed writer refuses new lines and flushes silently.
	if err := w.Append([]byte("late\n")); err != ErrWriterClosed {
		t.Fatalf("Append after Close = %v, want ErrWriterClosed", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush after Close = %v, want nil", err)
	}
}

func TestBatchWriterAppendOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	mustMkdirAll(t, fs, "/shards/ab")

	// Two open/close cycles on the same shard must accumulate, not truncate.
	w := openTestWriter(t, fs, 1, 0)
	if err := w.Append([]byte("first\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w = openTestWriter(t, fs, 1, 0)
	if err := w.Append([]byte("second\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := readShard(t, fs, "/shards/ab/abcd.jsonl"); got != "first\nsecond\n" {
		t.Fatalf("reopened shard content = %q, want %q", got, "first\nsecond\n")
	}
}

func mustMkdirAll(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) failed: %v", dir, err)
	}
}
