// Package vectorizer fits a TF-IDF vocabulary over a batch of documents and
// maps text into the fitted vector space.
package vectorizer

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/ekpsearch/internal/domain/analysis"
)

// Vectorizer holds the analysis settings shared by fitting and transforming.
type Vectorizer struct {
	analyzer *analysis.Analyzer
	norm     Norm
}

// New returns a Vectorizer over the given analyzer. L2 normalisation is the default.
func New(a *analysis.Analyzer, opts ...Option) (*Vectorizer, error) {
	if a == nil {
		return nil, fmt.Errorf("vectorizer: nil analyzer")
	}
	v := &Vectorizer{analyzer: a, norm: NormL2}
	for _, opt := range opts {
		opt(v)
	}
	if _, err := ParseNorm(string(v.norm)); err != nil {
		return nil, err
	}
	return v, nil
}

// Norm reports the configured normalisation.
func (v *Vectorizer) Norm() Norm { return v.norm }

// Model is a fitted vocabulary. It is read-only after Fit returns.
type Model struct {
	analyzer *analysis.Analyzer
	norm     Norm

	terms []string
	ids   map[string]int
	idf   []float64

	kept    []int
	skipped []int
}

// Fit builds the vocabulary over docs. Documents with no terms after analysis
// are skipped and reported through Model.Skipped. The vocabulary is sorted,
// so column order depends only on the corpus content.
func (v *Vectorizer) Fit(docs []string) (*Model, error) {
	m := &Model{analyzer: v.analyzer, norm: v.norm}

	df := make(map[string]int)
	for i, doc := range docs {
		terms := v.analyzer.Analyze(doc)
		if len(terms) == 0 {
			m.skipped = append(m.skipped, i)
			continue
		}
		m.kept = append(m.kept, i)

		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	if len(m.kept) == 0 {
		return nil, fmt.Errorf("%w: %d documents, all empty", ErrEmptyCorpus, len(docs))
	}

	m.terms = make([]string, 0, len(df))
	for t := range df {
		m.terms = append(m.terms, t)
	}
	slices.Sort(m.terms)

	n := float64(len(m.kept))
	m.ids = make(map[string]int, len(m.terms))
	m.idf = make([]float64, len(m.terms))
	for i, t := range m.terms {
		m.ids[t] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return m, nil
}

// Transform maps text into the fitted space. Out-of-vocabulary terms are
// ignored; text with no known terms yields the zero vector.
func (m *Model) Transform(text string) (FeatureVector, error) {
	if m == nil || len(m.terms) == 0 {
		return FeatureVector{}, ErrModelNotFitted
	}

	counts := make(map[int]int)
	for _, t := range m.analyzer.Analyze(text) {
		if id, ok := m.ids[t]; ok {
			counts[id]++
		}
	}

	vec := FeatureVector{
		Dim:     len(m.terms),
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for id := range counts {
		vec.Indices = append(vec.Indices, id)
	}
	slices.Sort(vec.Indices)

	var sq float64
	for _, id := range vec.Indices {
		w := float64(counts[id]) * m.idf[id]
		vec.Values = append(vec.Values, w)
		sq += w * w
	}
	if m.norm == NormL2 && sq > 0 {
		l := math.Sqrt(sq)
		for i := range vec.Values {
			vec.Values[i] /= l
		}
	}
	return vec, nil
}

// Size is the vocabulary size, i.e. the vector dimension.
func (m *Model) Size() int { return len(m.terms) }

// Documents is N, the number of documents the IDF weights were fitted on.
func (m *Model) Documents() int { return len(m.kept) }

// Vocabulary returns the sorted terms.
func (m *Model) Vocabulary() []string { return slices.Clone(m.terms) }

// IDF returns the weight of term, or false if the term is unknown.
func (m *Model) IDF(term string) (float64, bool) {
	id, ok := m.ids[term]
	if !ok {
		return 0, false
	}
	return m.idf[id], true
}

// Kept lists the positions of the fitted documents in the input order.
func (m *Model) Kept() []int { return slices.Clone(m.kept) }

// Skipped lists the positions of documents that had no terms.
func (m *Model) Skipped() []int { return slices.Clone(m.skipped) }

// StopWords is the stop-word list the model was fitted with.
func (m *Model) StopWords() []string { return m.analyzer.StopWords() }

// Norm is the normalisation applied by Transform.
func (m *Model) Norm() Norm { return m.norm }
