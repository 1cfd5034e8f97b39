package search

import (
	"errors"

	"github.com/okian/ekpsearch/internal/domain/index"
	"github.com/okian/ekpsearch/internal/domain/vectorizer"
)

// Sentinel errors for this package. The fitting and index errors are
// re-exported so callers only need this package for matching.
var (
	ErrEmptyCorpus      = vectorizer.ErrEmptyCorpus
	ErrModelNotFitted   = vectorizer.ErrModelNotFitted
	ErrInvalidArgument  = index.ErrInvalidArgument
	ErrEngineNotReady   = errors.New("engine not ready")
	ErrEmptyQuery       = errors.New("empty query")
	ErrStoreUnavailable = errors.New("record store unavailable")
)
