package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrNotSettled is returned when ingestion does not drain within SettleTimeout.
var ErrNotSettled = errors.New("ingestion did not settle")

// Run seeds the service with synthetic records, rebuilds its index and
// checks that search finds what was stored.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.normalize()
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("records", cfg.NumRecords),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	c := newClient(cfg)

	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	before, err := c.stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read stats: %w", err)
	}

	recs, err := generateRecords(ctx, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("record generation failed: %w", err)
	}
	if err := submitRecords(ctx, cfg, c, recs, stats); err != nil {
		return stats, fmt.Errorf("record submission failed: %w", err)
	}
	if err := waitForIngest(ctx, cfg, c, before.StoredRecords+stats.RecordsAccepted); err != nil {
		return stats, err
	}

	idx, err := c.reindex(ctx)
	if err != nil {
		return stats, fmt.Errorf("reindex failed: %w", err)
	}
	stats.Indexed, stats.Vocabulary = idx.Indexed, idx.Vocabulary
	logger.Get().Info(ctx, "index rebuilt", logger.Int("indexed", idx.Indexed), logger.Int("vocabulary", idx.Vocabulary))

	if err := verifyResults(ctx, cfg, c, recs, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveRecordsToFile(ctx, cfg.OutputFile, recs); err != nil {
			logger.Get().Warn(ctx, "failed to save records to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return stats, nil
}

func (cfg *Config) normalize() {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Samples > cfg.NumRecords {
		cfg.Samples = cfg.NumRecords
	}
}

func checkServiceHealth(ctx context.Context, c *client) error {
	code, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", code)
	}
	return nil
}

// waitForIngest polls /stats until the queue is empty and at least want
// records are stored.
func waitForIngest(ctx context.Context, cfg *Config, c *client, want int) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		st, err := c.stats(ctx)
		if err == nil && st.QueueLength == 0 && st.StoredRecords >= want {
			logger.Get().Info(ctx, "ingestion settled", logger.Int("stored", st.StoredRecords))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: want %d stored, have %d", ErrNotSettled, want, st.StoredRecords)
		case <-ticker.C:
		}
	}
}

func saveRecordsToFile(ctx context.Context, filename string, recs []model.CompetitionRecord) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "records saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(stats *Stats) {
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("generated", stats.RecordsGenerated),
		logger.Int("accepted", stats.RecordsAccepted),
		logger.Int("duplicates", stats.RecordsDuplicate),
		logger.Int("failedBatches", stats.BatchesFailed),
		logger.Int("indexed", stats.Indexed),
		logger.Int("vocabulary", stats.Vocabulary),
		logger.Float64("selfMatchRate", stats.SelfMatchRate()),
		logger.Float64("keywordPrecision", stats.KeywordPrecision()),
		logger.Duration("duration", stats.Duration))
}
