// Package index provides an exact Euclidean nearest-neighbour index over
// sparse feature vectors.
package index

import (
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/okian/ekpsearch/internal/domain/vectorizer"
)

// Hit is one query result: the slot of the vector in build order and its
// true Euclidean distance to the query.
type Hit struct {
	Index    int
	Distance float64
}

// Flat scans every stored vector on each query. It is immutable after Build
// and safe for concurrent queries.
type Flat struct {
	dim     int
	vectors []vectorizer.FeatureVector
}

// Build stores vectors as-is. All vectors must share one dimension.
func Build(vectors []vectorizer.FeatureVector) (*Flat, error) {
	f := &Flat{vectors: slices.Clone(vectors)}
	if len(vectors) == 0 {
		return f, nil
	}
	f.dim = vectors[0].Dim
	for i, v := range vectors {
		if v.Dim != f.dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, v.Dim, f.dim)
		}
		if len(v.Indices) != len(v.Values) {
			return nil, fmt.Errorf("%w: vector %d is malformed", ErrInvalidArgument, i)
		}
	}
	return f, nil
}

// Len is the number of stored vectors.
func (f *Flat) Len() int { return len(f.vectors) }

// Dim is the vector dimension, 0 for an empty index.
func (f *Flat) Dim() int { return f.dim }

// Query returns up to k hits by ascending distance. Equal distances are
// ordered by ascending slot.
func (f *Flat) Query(q vectorizer.FeatureVector, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(f.vectors) == 0 {
		return nil, nil
	}
	if q.Dim != f.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, q.Dim, f.dim)
	}

	k = min(k, len(f.vectors))
	h := make(topK, 0, k)
	for slot, v := range f.vectors {
		c := candidate{slot: slot, d2: squaredDistance(q, v)}
		if h.Len() < k {
			heap.Push(&h, c)
			continue
		}
		if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	hits := make([]Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		hits[i] = Hit{Index: c.slot, Distance: math.Sqrt(c.d2)}
	}
	return hits, nil
}

// squaredDistance merges the two coordinate lists in ascending column order,
// which sums the same non-zero terms in the same order as a dense scan.
func squaredDistance(a, b vectorizer.FeatureVector) float64 {
	var (
		s    float64
		i, j int
	)
	for i < len(a.Indices) || j < len(b.Indices) {
		var d float64
		switch {
		case j >= len(b.Indices) || (i < len(a.Indices) && a.Indices[i] < b.Indices[j]):
			d = a.Values[i]
			i++
		case i >= len(a.Indices) || b.Indices[j] < a.Indices[i]:
			d = -b.Values[j]
			j++
		default:
			d = a.Values[i] - b.Values[j]
			i++
			j++
		}
		s += d * d
	}
	return s
}
