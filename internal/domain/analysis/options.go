package analysis

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLanguage selects the stop-word list and the stemmer.
func WithLanguage(language string) Option {
	return func(a *Analyzer) {
		if language != "" {
			a.language = language
		}
	}
}

// WithStemming toggles Snowball stemming.
func WithStemming(enabled bool) Option {
	return func(a *Analyzer) {
		a.stemming = enabled
	}
}

// WithStopWords replaces the language's stop-word list. A non-nil empty
// slice disables stop-word filtering.
func WithStopWords(words []string) Option {
	return func(a *Analyzer) {
		if words != nil {
			a.custom = words
		}
	}
}

// WithMinTokenLength sets the minimum token length in runes.
func WithMinTokenLength(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.minTokenLen = n
		}
	}
}
