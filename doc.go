/*
	Package shardsift provides a prefix-sharded streaming ingestion engine for large credential dumps.

It turns heterogeneous plain-text breach files into a privacy-preserving,
append-only store of JSONL shards keyed by hashed email, sized for
low-resource hosts working through multi-terabyte corpora across
interruptions and crashes.

# Overview

shardsift walks an input root for text files, parses variable-format
credential lines, canonicalizes and keyed-hashes emails under a process-wide
HMAC-SHA-256 key, classifies credential strings by hash family, and routes
each record to one of up to 65,536 shard files selected by the first four
hex characters of the email hash.

# Core Architecture

The shard store is laid out by hash prefix:

	SHARD_DIR/
	    ab/
	        ab01.jsonl
	        abff.jsonl
	    ingest-progress.json
	    multi_field_files.log
	    skipped.log

Open shard files are managed by a bounded LRU stream cache, so the file
descriptor budget holds no matter how many prefixes a dump touches. Each
open shard sits behind a batch writer that flushes by record count or by
timer and fsyncs at flush boundaries. A durable progress store records each
input file as in-progress when a worker claims it and done when it
completes, so an interrupted run resumes without reprocessing completed
files. Files not yet claimed have no entry in the store.

# Key Features

  - Keyed Privacy: emails are stored as HMAC-SHA-256 digests; lookups need the key
  - Prefix Sharding: O(1) shard selection from the hash, at most 65,536 shards
  - Bounded Resources: a strict LRU caps open writers; batches cap buffered memory
  - Crash-Safe Resume: atomic progress persistence, append-only shard files
  - Graceful Shutdown: signals or a stop sentinel drain in-flight files first

# Basic Usage

Configuration comes from the environment (and optionally a YAML file):

	cfg, err := shardsift.LoadConfig("")
	if err != nil {
	    log.Fatalf("Invalid configuration: %v", err)
	}

Running an ingestor:

	ing, err := shardsift.New(cfg)
	if err != nil {
	    log.Fatalf("Failed to create ingestor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ing.Run(ctx); err != nil {
	    log.Fatalf("Ingestion failed: %v", err)
	}

The pieces compose individually as well: NormalizeEmail and Hasher for
canonical hashing, Classify for credential hash families, ParseLine for the
line format, and the shardsift command under cmd/shardsift for the full
pipeline as a binary.

# Concurrency Model

A small fixed pool of workers claims input files from a shared index. The
stream cache and progress store serialize their mutations behind single
mutexes; writer handles never escape the cache lock, which preserves the
open-writer bound. Stopping is cooperative: a worker that has started a
file always finishes it, because a partially written file would corrupt the
done semantic on which resume relies.
*/
package shardsift
