// Package analysis turns free text into index terms.
//
// Pipeline: lower-case -> split on non-word runes -> drop short tokens ->
// drop stop words -> optional Snowball stem.
package analysis

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Supported languages.
const (
	LanguageRussian = "russian"
	LanguageEnglish = "english"
)

const defaultMinTokenLen = 2

// Analyzer is safe for concurrent use once constructed.
type Analyzer struct {
	language    string
	stemming    bool
	custom      []string
	minTokenLen int

	stop     map[string]struct{}
	stopList []string
}

// New builds an Analyzer. The default is Russian stop words without stemming.
func New(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		language:    LanguageRussian,
		minTokenLen: defaultMinTokenLen,
	}
	for _, opt := range opts {
		opt(a)
	}

	words := a.custom
	if words == nil {
		words = StopWords(a.language)
		if words == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, a.language)
		}
	}

	if a.stemming {
		if _, err := snowball.Stem("probe", a.language, true); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedLanguage, a.language, err)
		}
	}

	a.stop = make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		a.stop[w] = struct{}{}
	}
	a.stopList = make([]string, 0, len(a.stop))
	for w := range a.stop {
		a.stopList = append(a.stopList, w)
	}
	slices.Sort(a.stopList)
	return a, nil
}

// Analyze returns the index terms of text in order of appearance.
func (a *Analyzer) Analyze(text string) []string {
	var terms []string
	for _, tok := range tokenize(text) {
		if len([]rune(tok)) < a.minTokenLen {
			continue
		}
		if _, bad := a.stop[tok]; bad {
			continue
		}
		if a.stemming {
			tok = a.stem(tok)
			if tok == "" {
				continue
			}
		}
		terms = append(terms, tok)
	}
	return terms
}

func (a *Analyzer) stem(tok string) string {
	s, err := snowball.Stem(tok, a.language, true)
	if err != nil {
		// Language was validated in New; keep the surface form.
		return tok
	}
	return s
}

// Language reports the configured language.
func (a *Analyzer) Language() string { return a.language }

// Stemming reports whether terms are stemmed.
func (a *Analyzer) Stemming() bool { return a.stemming }

// StopWords returns the sorted stop-word list in effect.
func (a *Analyzer) StopWords() []string { return slices.Clone(a.stopList) }

// tokenize lower-cases text and splits it into runs of letters, digits and '_'.
func tokenize(text string) []string {
	var (
		out []string
		b   strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}
