package repository

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a Store by DSN.
//   - "" or "memory://": MemStore
//   - "postgres://..." or "postgresql://...": PostgreSQL
//   - "sqlite://path" or any other value: SQLite file at path
func NewStore(ctx context.Context, dsn string, opts ...Option) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory://":
		return NewMemStore(), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(ctx, dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: %q has no path", ErrInvalidDSN, dsn)
		}
		return NewSQLiteStore(ctx, path, opts...)
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidDSN, dsn)
	default:
		return NewSQLiteStore(ctx, dsn, opts...)
	}
}
