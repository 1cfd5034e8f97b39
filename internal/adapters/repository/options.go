package repository

import (
	"time"

	"github.com/okian/ekpsearch/pkg/logger"
)

const (
	defaultTimeout         = 5 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerOpen     = 10 * time.Second
)

type options struct {
	timeout         time.Duration
	breakerFailures uint32
	breakerOpen     time.Duration
	log             logger.Logger
}

func defaultOptions() options {
	return options{
		timeout:         defaultTimeout,
		breakerFailures: defaultBreakerFailures,
		breakerOpen:     defaultBreakerOpen,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithTimeout bounds every SQL call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithBreakerFailures sets the consecutive failures that open the breaker.
func WithBreakerFailures(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.breakerFailures = uint32(n)
		}
	}
}

// WithBreakerOpen sets how long the breaker stays open before probing.
func WithBreakerOpen(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.breakerOpen = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
