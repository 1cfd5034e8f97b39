package vectorizer

import "errors"

// Sentinel errors for this package.
var (
	ErrEmptyCorpus    = errors.New("empty corpus: no document has indexable terms")
	ErrModelNotFitted = errors.New("model not fitted")
	ErrInvalidNorm    = errors.New("invalid norm")
)
