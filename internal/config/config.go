// Package config defines service configuration and its defaults.
//
// Values are layered by Load: defaults from New, then an optional YAML file,
// then EKP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreDSN selects the record store: empty or memory://, a SQLite path,
	// or a postgres:// URL.
	StoreDSN        string `koanf:"store_dsn"`
	StoreTimeoutMS  int    `koanf:"store_timeout_ms" validate:"min=1"`
	BreakerFailures int    `koanf:"breaker_failures" validate:"min=1"`
	BreakerOpenMS   int    `koanf:"breaker_open_ms" validate:"min=1"`

	// Language names the stop-word list and stemmer.
	Language string `koanf:"language" validate:"required"`
	Stemming bool   `koanf:"stemming"`
	// StopWords replaces the language's list when set.
	StopWords []string `koanf:"stop_words"`
	// Norm is the vector normalisation: l2 or none.
	Norm string `koanf:"norm" validate:"omitempty,oneof=l2 none L2 NONE"`

	DefaultK             int `koanf:"default_k" validate:"min=1,ltefield=MaxK"`
	MaxK                 int `koanf:"max_k" validate:"min=1"`
	HydrationConcurrency int `koanf:"hydration_concurrency" validate:"min=1"`
	// ReindexIntervalS schedules periodic rebuilds; 0 disables them.
	ReindexIntervalS int `koanf:"reindex_interval_s" validate:"min=0"`
	RebuildTimeoutS  int `koanf:"rebuild_timeout_s" validate:"min=1"`

	IngestQueueSize int `koanf:"ingest_queue_size" validate:"min=1"`
	// IngestWorkers < 1 picks a CPU based default.
	IngestWorkers int `koanf:"ingest_workers"`
	// DedupeSize bounds the ekp dedupe cache; 0 means unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"min=0"`

	// SearchRPS limits /search; 0 disables limiting.
	SearchRPS   float64 `koanf:"search_rps" validate:"min=0"`
	SearchBurst int     `koanf:"search_burst" validate:"min=1"`

	// MaxBodyBytes bounds POST /competitions bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"min=1"`
}

// New returns a Config filled with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StoreTimeoutMS:       5000,
		BreakerFailures:      5,
		BreakerOpenMS:        10_000,
		Language:             "russian",
		Norm:                 "l2",
		DefaultK:             5,
		MaxK:                 100,
		HydrationConcurrency: 4,
		RebuildTimeoutS:      120,
		IngestQueueSize:      10_000,
		IngestWorkers:        runtime.NumCPU(),
		DedupeSize:           50_000,
		SearchRPS:            50,
		SearchBurst:          100,
		MaxBodyBytes:         4 << 20,
	}
}

// Validate checks field ranges. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be empty", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed max_k", name)
	default:
		return fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param())
	}
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

func (c *Config) BreakerOpen() time.Duration {
	return time.Duration(c.BreakerOpenMS) * time.Millisecond
}

// ReindexInterval is zero when periodic rebuilds are off.
func (c *Config) ReindexInterval() time.Duration {
	return time.Duration(c.ReindexIntervalS) * time.Second
}

func (c *Config) RebuildTimeout() time.Duration {
	return time.Duration(c.RebuildTimeoutS) * time.Second
}
