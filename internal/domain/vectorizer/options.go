package vectorizer

import (
	"fmt"
	"strings"
)

// Norm selects the per-vector normalisation applied after weighting.
type Norm string

const (
	// NormL2 scales every vector to unit Euclidean length.
	NormL2 Norm = "l2"
	// NormNone keeps raw tf x idf weights.
	NormNone Norm = "none"
)

// ParseNorm maps a config value onto a Norm. Empty means NormL2.
func ParseNorm(s string) (Norm, error) {
	switch Norm(strings.ToLower(strings.TrimSpace(s))) {
	case "", NormL2:
		return NormL2, nil
	case NormNone:
		return NormNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNorm, s)
	}
}

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithNorm sets the vector normalisation.
func WithNorm(n Norm) Option {
	return func(v *Vectorizer) {
		if n != "" {
			v.norm = n
		}
	}
}
