package vectorizer

import "math"

// FeatureVector is a sparse view of a dense vector of length Dim.
// Indices are strictly ascending and parallel to Values.
type FeatureVector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// Dense expands the vector to Dim coordinates.
func (v FeatureVector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// NNZ is the number of stored coordinates.
func (v FeatureVector) NNZ() int { return len(v.Indices) }

// IsZero reports whether every coordinate is zero.
func (v FeatureVector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean length.
func (v FeatureVector) Norm() float64 {
	var s float64
	for _, x := range v.Values {
		s += x * x
	}
	return math.Sqrt(s)
}
