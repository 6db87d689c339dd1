package shardsift

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option defines a function that configures an Ingestor.
type Option func(*Ingestor)

// WithFs sets a custom filesystem for the ingestor.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	ing, err := shardsift.New(cfg, shardsift.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(ing *Ingestor) {
		ing.fs = fs
	}
}

// WithLogger sets the structured logger for the ingestor and everything it
// owns. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ing *Ingestor) {
		ing.logger = logger
	}
}

// WithNowFunc sets a custom time function for the ingestor.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(now NowFunc) Option {
	return func(ing *Ingestor) {
		ing.now = now
	}
}

// WithWorkDir sets the directory checked for the stop sentinel.
// The default is the process working directory.
func WithWorkDir(dir string) Option {
	return func(ing *Ingestor) {
		ing.workDir = dir
	}
}
