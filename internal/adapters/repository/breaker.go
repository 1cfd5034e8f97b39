package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
	"github.com/okian/ekpsearch/pkg/metrics"
)

// BreakerStore guards a Store with a circuit breaker and records call
// metrics. While the breaker is open every call fails fast with
// ErrUnavailable. Calls are never retried.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	log  logger.Logger
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, opts ...Option) *BreakerStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("store")
	}

	b := &BreakerStore{next: next, log: o.log}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "record-store",
		MaxRequests: 1,
		Timeout:     o.breakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerStateChange(to.String())
			b.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
		// Misses, rejected input and caller cancellation say nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidRecord) ||
				errors.Is(err, context.Canceled)
		},
	})
	return b
}

// State reports the breaker state: "closed", "half-open" or "open".
func (b *BreakerStore) State() string { return b.cb.State().String() }

func call[T any](b *BreakerStore, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	metrics.RecordStoreCall(op, time.Since(start), ignoreNotFound(err))

	var zero T
	if out == nil {
		return zero, err
	}
	return out.(T), err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (b *BreakerStore) FetchAll(ctx context.Context) ([]model.CompetitionRecord, error) {
	return call(b, "fetch_all", func() ([]model.CompetitionRecord, error) {
		return b.next.FetchAll(ctx)
	})
}

func (b *BreakerStore) FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error) {
	return call(b, "fetch_by_key", func() (model.CompetitionRecord, error) {
		return b.next.FetchByKey(ctx, ekp)
	})
}

func (b *BreakerStore) Insert(ctx context.Context, rec model.CompetitionRecord) (bool, error) {
	return call(b, "insert", func() (bool, error) {
		return b.next.Insert(ctx, rec)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, ekp string) (bool, error) {
	return call(b, "delete", func() (bool, error) {
		return b.next.Delete(ctx, ekp)
	})
}

func (b *BreakerStore) Count(ctx context.Context) (int, error) {
	return call(b, "count", func() (int, error) {
		return b.next.Count(ctx)
	})
}

func (b *BreakerStore) SportNames(ctx context.Context) ([]string, error) {
	return call(b, "sport_names", func() ([]string, error) {
		return b.next.SportNames(ctx)
	})
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}
