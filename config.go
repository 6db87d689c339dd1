package shardsift

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultMaxStreams    = 64
	DefaultBatchSize     = 500
	DefaultBatchInterval = 2000 * time.Millisecond
	DefaultConcurrency   = 2
	DefaultProgressFile  = "ingest-progress.json"
	DefaultSkippedLog    = "skipped.log"
	DefaultMultiFieldLog = "multi_field_files.log"

	// hashKeyLen is the required HMAC key length in bytes.
	hashKeyLen = 32
)

// StopSentinel is the file name that triggers a graceful shutdown when it
// appears in the working directory.
const StopSentinel = "STOP_INGESTION"

// Config holds all ingestion settings.
// It is read once at startup and never mutated afterwards.
type Config struct {
	// Key is the 32-byte HMAC-SHA-256 key under which emails are hashed.
	Key []byte

	// InputDir is the root walked for .txt input files.
	InputDir string

	// ShardDir is the root under which xx/xxxx.jsonl shards are written.
	ShardDir string

	// MaxStreams bounds the number of simultaneously open shard writers.
	MaxStreams int

	// BatchSize is the number of records buffered per writer before a
	// forced flush.
	BatchSize int

	// BatchInterval is the timer-driven flush period.
	BatchInterval time.Duration

	// Concurrency is the number of worker tasks processing input files.
	Concurrency int

	// LogLevel is one of ERROR, INFO or DEBUG.
	LogLevel string

	// ScrubEmail emits records with an empty email field when set.
	ScrubEmail bool

	// SkipHeader unconditionally skips the first line of every input file.
	SkipHeader bool

	// StrictFields rejects lines that split into more than two fields
	// instead of salvaging the first two.
	StrictFields bool

	// ProgressFile is the progress document name, relative to ShardDir.
	ProgressFile string

	// SkippedLog is the skipped-file log name, relative to ShardDir.
	SkippedLog string

	// MultiFieldLog is the multi-field audit log name, relative to ShardDir.
	MultiFieldLog string
}

// fileConfig mirrors Config for YAML unmarshalling.
// The key is carried as a hex string, same as the environment form.
type fileConfig struct {
	EmailHashKey    string `yaml:"email_hash_key"`
	InputDir        string `yaml:"input_dir"`
	ShardDir        string `yaml:"shard_dir"`
	MaxStreams      *int   `yaml:"max_streams"`
	BatchSize       *int   `yaml:"batch_size"`
	BatchIntervalMS *int   `yaml:"batch_interval_ms"`
	Concurrency     *int   `yaml:"concurrency"`
	LogLevel        string `yaml:"log_level"`
	ScrubEmail      *bool  `yaml:"scrub_email"`
	SkipHeader      *bool  `yaml:"skip_header"`
	StrictFields    *bool  `yaml:"strict_fields"`
	ProgressFile    string `yaml:"progress_file"`
	SkippedLog      string `yaml:"skipped_log"`
}

// DefaultConfig returns a Config with every defaultable setting filled in.
// The key and the two directories remain to be supplied.
func DefaultConfig() Config {
	return Config{
		MaxStreams:    DefaultMaxStreams,
		BatchSize:     DefaultBatchSize,
		BatchInterval: DefaultBatchInterval,
		Concurrency:   DefaultConcurrency,
		LogLevel:      "INFO",
		ProgressFile:  DefaultProgressFile,
		SkippedLog:    DefaultSkippedLog,
		MultiFieldLog: DefaultMultiFieldLog,
	}
}

// LoadConfig builds a Config from the optional YAML file at path and the
// process environment. Environment variables always win over file values.
// An empty path skips the file entirely.
//
// The returned error is a ConfigError collecting every validation failure.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var errs []error

	keyHex := ""
	if path != "" {
		fc, err := readFileConfig(path)
		if err != nil {
			return Config{}, newConfigError([]error{err})
		}
		keyHex = fc.EmailHashKey
		if fc.InputDir != "" {
			cfg.InputDir = fc.InputDir
		}
		if fc.ShardDir != "" {
			cfg.ShardDir = fc.ShardDir
		}
		if fc.MaxStreams != nil {
			cfg.MaxStreams = *fc.MaxStreams
		}
		if fc.BatchSize != nil {
			cfg.BatchSize = *fc.BatchSize
		}
		if fc.BatchIntervalMS != nil {
			cfg.BatchInterval = time.Duration(*fc.BatchIntervalMS) * time.Millisecond
		}
		if fc.Concurrency != nil {
			cfg.Concurrency = *fc.Concurrency
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
		if fc.ScrubEmail != nil {
			cfg.ScrubEmail = *fc.ScrubEmail
		}
		if fc.SkipHeader != nil {
			cfg.SkipHeader = *fc.SkipHeader
		}
		if fc.StrictFields != nil {
			cfg.StrictFields = *fc.StrictFields
		}
		if fc.ProgressFile != "" {
			cfg.ProgressFile = fc.ProgressFile
		}
		if fc.SkippedLog != "" {
			cfg.SkippedLog = fc.SkippedLog
		}
	}

	if v := os.Getenv("EMAIL_HASH_KEY"); v != "" {
		keyHex = v
	}
	if v := os.Getenv("INPUT_DIR"); v != "" {
		cfg.InputDir = v
	}
	if v := os.Getenv("SHARD_DIR"); v != "" {
		cfg.ShardDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROGRESS_FILE"); v != "" {
		cfg.ProgressFile = v
	}
	if v := os.Getenv("SKIPPED_LOG"); v != "" {
		cfg.SkippedLog = v
	}
	envInt("MAX_STREAMS", &cfg.MaxStreams, &errs)
	envInt("BATCH_SIZE", &cfg.BatchSize, &errs)
	envInt("CONCURRENCY", &cfg.Concurrency, &errs)
	if v := os.Getenv("BATCH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BATCH_INTERVAL_MS: %w", err))
		} else {
			cfg.BatchInterval = time.Duration(ms) * time.Millisecond
		}
	}
	envBool("SCRUB_EMAIL", &cfg.ScrubEmail, &errs)
	envBool("SKIP_HEADER", &cfg.SkipHeader, &errs)
	envBool("STRICT_FIELDS", &cfg.StrictFields, &errs)

	if keyHex == "" {
		errs = append(errs, fmt.Errorf("EMAIL_HASH_KEY is required"))
	} else {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			errs = append(errs, fmt.Errorf("EMAIL_HASH_KEY is not valid hex: %w", err))
		} else if len(key) != hashKeyLen {
			errs = append(errs, fmt.Errorf("EMAIL_HASH_KEY must decode to %d bytes, got %d", hashKeyLen, len(key)))
		} else {
			cfg.Key = key
		}
	}

	errs = append(errs, cfg.validate()...)
	if err := newConfigError(errs); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the non-key invariants of a Config.
// Key validation happens where the key material is produced.
func (c Config) validate() []error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, fmt.Errorf("INPUT_DIR is required"))
	}
	if c.ShardDir == "" {
		errs = append(errs, fmt.Errorf("SHARD_DIR is required"))
	}
	if c.MaxStreams < 1 {
		errs = append(errs, fmt.Errorf("MAX_STREAMS must be at least 1, got %d", c.MaxStreams))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize))
	}
	if c.BatchInterval < 0 {
		errs = append(errs, fmt.Errorf("BATCH_INTERVAL_MS must not be negative, got %s", c.BatchInterval))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("CONCURRENCY must be at least 1, got %d", c.Concurrency))
	}
	switch c.LogLevel {
	case "ERROR", "INFO", "DEBUG":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be ERROR, INFO or DEBUG, got %q", c.LogLevel))
	}
	if c.ProgressFile == "" || c.SkippedLog == "" || c.MultiFieldLog == "" {
		errs = append(errs, fmt.Errorf("progress and audit log names must not be empty"))
	}
	return errs
}

// readFileConfig parses the YAML config file at path.
func readFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// envInt overrides dst with the integer value of the named variable, if set.
func envInt(name string, dst *int, errs *[]error) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*dst = n
}

// envBool overrides dst with the boolean value of the named variable, if set.
func envBool(name string, dst *bool, errs *[]error) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*dst = b
}
