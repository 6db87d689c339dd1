package shardsift

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	// ErrCacheClosed is returned when a stream cache is used after CloseAll.
	ErrCacheClosed = errors.New("stream cache closed")

	// ErrWriterClosed is returned when lines are appended to a closed batch writer.
	ErrWriterClosed = errors.New("batch writer closed")
)

// ConfigError collects every configuration problem found during startup
// validation, so a misconfigured deployment surfaces all of them at once
// instead of failing one variable at a time.
type ConfigError struct {
	Errors []error
}

// Error implements the error interface.
func (ce *ConfigError) Error() string {
	switch len(ce.Errors) {
	case 0:
		return "invalid configuration"
	case 1:
		return "invalid configuration: " + ce.Errors[0].Error()
	}
	msgs := make([]string, len(ce.Errors))
	for i, err := range ce.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid configuration (%d problems): %s",
		len(msgs), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected problems to errors.Is and errors.As.
func (ce *ConfigError) Unwrap() []error {
	return ce.Errors
}

// newConfigError wraps the collected problems, or reports none by
// returning nil.
func newConfigError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Errors: errs}
}
