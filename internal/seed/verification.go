package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
)

const keywordK = 5

// SelfMatchRate is the percentage of sampled records that came back first
// when searched by their own text.
func (s *Stats) SelfMatchRate() float64 {
	if s.SelfMatchChecked == 0 {
		return 0
	}
	return float64(s.SelfMatchHits) / float64(s.SelfMatchChecked) * percentageMultiplier
}

// KeywordPrecision is the percentage of keyword-query hits that contain at
// least one of the query keywords.
func (s *Stats) KeywordPrecision() float64 {
	if s.KeywordChecked == 0 {
		return 0
	}
	return float64(s.KeywordRelevant) / float64(s.KeywordChecked) * percentageMultiplier
}

// verifyResults queries a spread of records by their blob and by a
// sport/city keyword pair. Every stored record must find itself.
func verifyResults(ctx context.Context, cfg *Config, c *client, recs []model.CompetitionRecord, stats *Stats) error {
	if cfg.Samples == 0 || len(recs) == 0 {
		return nil
	}
	step := max(1, len(recs)/cfg.Samples)
	var misses []string

	for i := 0; i < len(recs) && stats.SelfMatchChecked < cfg.Samples; i += step {
		rec := recs[i]

		res, err := c.search(ctx, rec.Blob(), 1)
		if err != nil {
			return fmt.Errorf("self-match %s: %w", rec.EKPNumber, err)
		}
		stats.SelfMatchChecked++
		if len(res.Events) == 1 && res.Events[0].EKPNumber == rec.EKPNumber {
			stats.SelfMatchHits++
		} else {
			misses = append(misses, rec.EKPNumber)
		}

		keywords := []string{rec.SportName, rec.City}
		res, err = c.search(ctx, strings.Join(keywords, ", "), keywordK)
		if err != nil {
			return fmt.Errorf("keyword search %v: %w", keywords, err)
		}
		for _, ev := range res.Events {
			stats.KeywordChecked++
			if containsAny(ev.Blob(), keywords) {
				stats.KeywordRelevant++
			}
		}
	}

	logger.Get().Info(ctx, "verification completed",
		logger.Int("selfMatchChecked", stats.SelfMatchChecked),
		logger.Int("selfMatchHits", stats.SelfMatchHits),
		logger.Int("keywordChecked", stats.KeywordChecked),
		logger.Int("keywordRelevant", stats.KeywordRelevant))

	if len(misses) > 0 {
		if cfg.Verbose {
			logger.Get().Warn(ctx, "self-match misses", logger.Any("ekp", misses))
		}
		return fmt.Errorf("%d of %d records did not find themselves", len(misses), stats.SelfMatchChecked)
	}
	return nil
}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
