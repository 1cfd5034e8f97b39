package model

import "errors"

// Sentinel errors for this package.
var (
	// ErrInvalidDate is returned when a date cannot be parsed with DateLayout.
	ErrInvalidDate = errors.New("invalid date")
	// ErrRecordNotFound is returned by record stores for an unknown ekp number.
	ErrRecordNotFound = errors.New("record not found")
)
