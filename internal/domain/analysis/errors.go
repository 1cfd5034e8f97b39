package analysis

import "errors"

// Sentinel errors for this package.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
