// Package worker drains the ingest queue into the record store.
package worker

import (
	"time"

	"github.com/okian/ekpsearch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithJobTimeout bounds a single insert. Zero leaves it to the store.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.jobTimeout = d
		}
	}
}

// WithOnFailure registers fn to run after a failed insert.
func WithOnFailure(fn FailureFunc) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}
