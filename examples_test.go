package shardsift

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/afero"
)

// TestExampleLinePipeline demonstrates the line-level pipeline: parse, normalize,
// hash, classify.
func TestExampleLinePipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("example test")
	}

	parsed, reject := ParseLine("Alice+news@Example.com:hunter2", "/in/a.txt", false)
	if reject != RejectNone {
		t.Fatalf("unexpected reject: %v", reject)
	}
	spew.Dump(parsed)

	norm, ok := NormalizeEmail(parsed.RawEmail)
	if !ok {
		t.Fatal("normalization rejected the email")
	}

	hasher := newTestHasher(t)
	isHash, hashType := Classify(parsed.RawPassword)

	record := Record{
		EmailHash: hasher.Sum(norm),
		Password:  parsed.RawPassword,
		IsHash:    isHash,
		HashType:  hashType,
		Email:     norm,
		Source:    "/in/a.txt",
	}
	spew.Dump(record)

	if ShardPrefix(record.EmailHash) != record.EmailHash[:4] {
		t.Fatal("prefix must be the first four hex characters")
	}
}

// TestExampleFullRun demonstrates a complete in-memory ingestion run.
func TestExampleFullRun(t *testing.T) {
	if testing.Short() {
		t.Skip("example test")
	}

	fs := afero.NewMemMapFs()
	writeInput(t, fs, "/in/dump.txt",
		"alice@example.com:hunter2\n"+
			"bob@x.io;{SSHA}MTIzNDU2Nzg5MGFiY2RlZmdoaWo=\n")

	cfg := DefaultConfig()
	cfg.Key = make([]byte, 32)
	cfg.InputDir = "/in"
	cfg.ShardDir = "/shards"
	cfg.BatchInterval = 0

	ing, err := New(cfg, WithFs(fs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	spew.Dump(ing.progress.Snapshot())

	if got := ing.Stats().Accepted.Load(); got != 2 {
		t.Fatalf("accepted = %d, want 2", got)
	}
}
