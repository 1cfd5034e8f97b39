package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
)

// errThrottled reports a 429 from the service.
var errThrottled = errors.New("throttled")

// client is a paced JSON client for the search service.
type client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(cfg *Config) *client {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &client{
		base:    cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, max(1, cfg.Workers)),
	}
}

// do sends a request and decodes a JSON body into out when out is non-nil.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *client) search(ctx context.Context, keywords string, k int) (searchResponse, error) {
	q := url.Values{"keywords": {keywords}, "k": {strconv.Itoa(k)}}
	var out searchResponse
	code, err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &out)
	if err != nil {
		return out, err
	}
	if code != http.StatusOK {
		return out, fmt.Errorf("search returned status %d", code)
	}
	return out, nil
}

func (c *client) stats(ctx context.Context) (statsResponse, error) {
	var out statsResponse
	code, err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	if err == nil && code != http.StatusOK {
		err = fmt.Errorf("stats returned status %d", code)
	}
	return out, err
}

func (c *client) reindex(ctx context.Context) (reindexResponse, error) {
	var out reindexResponse
	code, err := c.do(ctx, http.MethodPost, "/admin/reindex", nil, &out)
	if err == nil && code != http.StatusOK {
		err = fmt.Errorf("reindex returned status %d", code)
	}
	return out, err
}

// submitRecords posts recs in batches of cfg.BatchSize using cfg.Workers
// concurrent submitters. Throttled batches are retried with backoff.
func submitRecords(ctx context.Context, cfg *Config, c *client, recs []model.CompetitionRecord, stats *Stats) error {
	batches := (len(recs) + cfg.BatchSize - 1) / cfg.BatchSize
	logger.Get().Info(ctx, "submitting records",
		logger.Int("records", len(recs)), logger.Int("batches", batches), logger.Int("workers", cfg.Workers))

	var accepted, duplicates, submitted, failed, throttled atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for start := 0; start < len(recs); start += cfg.BatchSize {
		batch := recs[start:min(start+cfg.BatchSize, len(recs))]
		g.Go(func() error {
			res, retries, err := submitBatch(gctx, c, batch)
			submitted.Add(1)
			throttled.Add(int64(retries))
			if err != nil {
				failed.Add(1)
				if cfg.Verbose {
					logger.Get().Warn(gctx, "batch failed", logger.Error(err))
				}
				return nil
			}
			accepted.Add(int64(res.Accepted))
			duplicates.Add(int64(res.Duplicates))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled during submission: %w", err)
	}

	stats.BatchesSubmitted = int(submitted.Load())
	stats.RecordsAccepted = int(accepted.Load())
	stats.RecordsDuplicate = int(duplicates.Load())
	stats.BatchesFailed = int(failed.Load())
	stats.BatchesThrottled = int(throttled.Load())

	logger.Get().Info(ctx, "submission completed",
		logger.Int("accepted", stats.RecordsAccepted),
		logger.Int("duplicates", stats.RecordsDuplicate),
		logger.Int("failedBatches", stats.BatchesFailed),
		logger.Int("throttled", stats.BatchesThrottled))
	return nil
}

// submitBatch posts one batch. On 429 only the records the service did not
// take are resent.
func submitBatch(ctx context.Context, c *client, batch []model.CompetitionRecord) (submitResponse, int, error) {
	var total submitResponse
	retries := 0
	for attempt := 1; ; attempt++ {
		var res submitResponse
		code, err := c.do(ctx, http.MethodPost, "/competitions", batch, &res)
		if err != nil {
			return total, retries, err
		}
		total.Accepted += res.Accepted
		total.Duplicates += res.Duplicates

		switch code {
		case http.StatusAccepted:
			total.Status = res.Status
			return total, retries, nil
		case http.StatusTooManyRequests:
			retries++
			batch = batch[min(res.Accepted+res.Duplicates, len(batch)):]
			if len(batch) == 0 {
				return total, retries, nil
			}
			if attempt >= maxSubmitAttempts {
				return total, retries, fmt.Errorf("%w after %d attempts", errThrottled, attempt)
			}
			select {
			case <-ctx.Done():
				return total, retries, ctx.Err()
			case <-time.After(time.Duration(attempt) * throttleBackoff):
			}
		default:
			return total, retries, fmt.Errorf("submit returned status %d", code)
		}
	}
}
