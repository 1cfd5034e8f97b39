package search

import (
	"time"

	"github.com/okian/ekpsearch/internal/domain/analysis"
	"github.com/okian/ekpsearch/internal/domain/vectorizer"
	"github.com/okian/ekpsearch/pkg/logger"
)

const (
	defaultHydrationConcurrency = 4
	defaultRebuildTimeout       = 2 * time.Minute
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithAnalyzer sets the text analyzer shared by fitting and queries.
func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(e *Engine) {
		if a != nil {
			e.analyzer = a
		}
	}
}

// WithNorm sets the TF-IDF vector normalisation.
func WithNorm(n vectorizer.Norm) Option {
	return func(e *Engine) {
		if n != "" {
			e.norm = n
		}
	}
}

// WithHydrationConcurrency bounds parallel FetchByKey calls per search.
func WithHydrationConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.hydrationConcurrency = n
		}
	}
}

// WithRebuildTimeout bounds one shared Load and Index run.
func WithRebuildTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.rebuildTimeout = d
		}
	}
}
