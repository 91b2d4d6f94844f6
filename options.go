package pkgstore

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/aweris/pkgstore/internal/metrics"
)

// DefaultConcurrency is the number of package files parsed in parallel by
// LoadFiles and LoadDir.
const DefaultConcurrency = 4

// Metrics collects library load and lookup statistics.
type Metrics = metrics.Metrics

// NewMetrics returns collectors registered on a fresh registry.
func NewMetrics() *Metrics { return metrics.New() }

type loadOptions struct {
	verify bool
}

func defaultLoadOptions() *loadOptions {
	return &loadOptions{}
}

// LoadOption configures Load and Read.
type LoadOption func(*loadOptions)

// WithVerify recomputes every blob's hash and rejects packages whose table
// of contents does not match their content. By default hashes in the table
// are trusted as given.
func WithVerify() LoadOption {
	return func(o *loadOptions) { o.verify = true }
}

// LibraryOption configures NewLibrary.
type LibraryOption func(*Library)

// WithLogger sets the logger used while loading packages.
func WithLogger(logger *log.Logger) LibraryOption {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records loads and lookups in m.
func WithMetrics(m *Metrics) LibraryOption {
	return func(l *Library) { l.metrics = m }
}

// WithConcurrency sets how many package files are parsed in parallel.
func WithConcurrency(n int) LibraryOption {
	return func(l *Library) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLoadOptions sets the options passed to Load for every file the
// library loads.
func WithLoadOptions(opts ...LoadOption) LibraryOption {
	return func(l *Library) { l.loadOpts = append(l.loadOpts, opts...) }
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
