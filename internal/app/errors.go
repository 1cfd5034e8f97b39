package service

import "errors"

// Sentinel kinds returned by the Service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrBackpressure  = errors.New("ingest queue full")
	ErrInvalidRecord = errors.New("invalid record")
)
