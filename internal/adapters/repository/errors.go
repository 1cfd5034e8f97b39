package repository

import (
	"errors"

	"github.com/okian/ekpsearch/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound      = model.ErrRecordNotFound
	ErrUnavailable   = errors.New("store unavailable")
	ErrInvalidDSN    = errors.New("invalid store dsn")
	ErrInvalidRecord = errors.New("invalid record")
	ErrClosed        = errors.New("store closed")
)
