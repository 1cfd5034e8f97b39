// Package search answers keyword queries over competition records.
//
// An Engine loads the corpus from a RecordStore, fits a TF-IDF model over the
// record blobs, builds an exact nearest-neighbour index and publishes the
// three together as one immutable snapshot. Searches read the published
// snapshot without locking and re-fetch matched records from the store.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/ekpsearch/internal/domain/analysis"
	"github.com/okian/ekpsearch/internal/domain/index"
	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/vectorizer"
	"github.com/okian/ekpsearch/pkg/logger"
	"github.com/okian/ekpsearch/pkg/metrics"
)

// RecordStore is the read side of the record store.
// FetchByKey returns an error matching model.ErrRecordNotFound for unknown keys.
type RecordStore interface {
	FetchAll(ctx context.Context) ([]model.CompetitionRecord, error)
	FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error)
}

// Hit is one matched record.
type Hit struct {
	Record   model.CompetitionRecord `json:"record"`
	Distance float64                 `json:"distance"`
}

// Result is the answer to one query, nearest first.
type Result struct {
	Query      string `json:"query"`
	Normalized string `json:"normalized"`
	Hits       []Hit  `json:"hits"`
}

// Stats describes the engine and its published snapshot.
type Stats struct {
	State         string        `json:"state"`
	Loaded        int           `json:"loaded"`
	Corpus        int           `json:"corpus"`
	Indexed       int           `json:"indexed"`
	Skipped       int           `json:"skipped"`
	Vocabulary    int           `json:"vocabulary"`
	Norm          string        `json:"norm"`
	Language      string        `json:"language"`
	Stemming      bool          `json:"stemming"`
	BuiltAt       time.Time     `json:"built_at"`
	BuildDuration time.Duration `json:"build_duration_ns"`
}

// snapshot is everything one fit pass produces. It is never mutated once
// published.
type snapshot struct {
	model   *vectorizer.Model
	index   *index.Flat
	keys    []string
	corpus  int
	skipped int
	builtAt time.Time
	took    time.Duration
}

// Engine is safe for concurrent use. Load, Index and Rebuild serialise on a
// writer lock; Search never takes it.
type Engine struct {
	store                RecordStore
	analyzer             *analysis.Analyzer
	norm                 vectorizer.Norm
	vectorizer           *vectorizer.Vectorizer
	hydrationConcurrency int
	rebuildTimeout       time.Duration
	log                  logger.Logger

	mu     sync.Mutex
	phase  State
	corpus []model.CompetitionRecord

	snap    atomic.Pointer[snapshot]
	rebuild singleflight.Group
}

// New returns an Uninitialized engine reading from store.
func New(store RecordStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil record store", ErrInvalidArgument)
	}
	e := &Engine{
		store:                store,
		norm:                 vectorizer.NormL2,
		hydrationConcurrency: defaultHydrationConcurrency,
		rebuildTimeout:       defaultRebuildTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("search")
	}
	if e.analyzer == nil {
		a, err := analysis.New()
		if err != nil {
			return nil, err
		}
		e.analyzer = a
	}
	v, err := vectorizer.New(e.analyzer, vectorizer.WithNorm(e.norm))
	if err != nil {
		return nil, err
	}
	e.vectorizer = v
	return e, nil
}

// State reports StateReady while a snapshot is published, otherwise the
// progress of the first build.
func (e *Engine) State() State {
	if e.snap.Load() != nil {
		return StateReady
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Load pulls a full corpus snapshot from the store. The published index is
// left untouched until the next Index.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx)
}

// Index fits the model over the loaded corpus, builds the index and
// publishes both. On failure the previous snapshot stays in place.
func (e *Engine) Index(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index(ctx)
}

// Rebuild runs Load and Index under one hold of the writer lock. Concurrent
// callers share a single run and its error. The run is bounded by the rebuild
// timeout, not by ctx: a caller whose ctx ends stops waiting and gets
// ctx.Err(), while the run continues for the others.
func (e *Engine) Rebuild(ctx context.Context) error {
	ch := e.rebuild.DoChan("rebuild", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.rebuildTimeout)
		defer cancel()

		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.load(runCtx); err != nil {
			return nil, err
		}
		return nil, e.index(runCtx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.Shared {
			e.log.Debug(ctx, "rebuild shared with a concurrent caller")
		}
		return r.Err
	}
}

func (e *Engine) load(ctx context.Context) error {
	recs, err := e.store.FetchAll(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("search", "store_unavailable")
		return fmt.Errorf("%w: fetch all: %w", ErrStoreUnavailable, err)
	}
	e.corpus = recs
	if e.phase < StateLoaded {
		e.phase = StateLoaded
	}
	metrics.UpdateCorpusSize(len(recs))
	e.log.Info(ctx, "corpus loaded", logger.Int("records", len(recs)))
	return nil
}

func (e *Engine) index(ctx context.Context) error {
	if e.phase < StateLoaded {
		return fmt.Errorf("%w: index before load", ErrEngineNotReady)
	}
	start := time.Now()

	blobs := make([]string, len(e.corpus))
	for i, r := range e.corpus {
		blobs[i] = r.Blob()
	}
	m, err := e.vectorizer.Fit(blobs)
	if err != nil {
		metrics.RecordIndexBuildFailure("fit")
		return fmt.Errorf("fit: %w", err)
	}

	skipped := m.Skipped()
	for _, i := range skipped {
		e.log.Warn(ctx, "record skipped: no indexable terms", logger.String("ekp", e.corpus[i].EKPNumber))
	}
	metrics.RecordSkippedRecords(len(skipped))

	kept := m.Kept()
	vectors := make([]vectorizer.FeatureVector, len(kept))
	keys := make([]string, len(kept))
	for slot, i := range kept {
		if err := ctx.Err(); err != nil {
			metrics.RecordIndexBuildFailure("canceled")
			return err
		}
		v, err := m.Transform(blobs[i])
		if err != nil {
			metrics.RecordIndexBuildFailure("transform")
			return fmt.Errorf("transform %q: %w", e.corpus[i].EKPNumber, err)
		}
		vectors[slot] = v
		keys[slot] = e.corpus[i].EKPNumber
	}

	idx, err := index.Build(vectors)
	if err != nil {
		metrics.RecordIndexBuildFailure("build")
		return fmt.Errorf("build index: %w", err)
	}
	e.phase = StateIndexed

	took := time.Since(start)
	e.snap.Store(&snapshot{
		model:   m,
		index:   idx,
		keys:    keys,
		corpus:  len(e.corpus),
		skipped: len(skipped),
		builtAt: time.Now(),
		took:    took,
	})
	e.phase = StateReady

	metrics.RecordIndexBuild(took, len(e.corpus), len(kept), m.Size())
	e.log.Info(ctx, "index published",
		logger.Int("corpus", len(e.corpus)),
		logger.Int("indexed", len(kept)),
		logger.Int("skipped", len(skipped)),
		logger.Int("vocabulary", m.Size()),
		logger.Duration("took", took),
	)
	return nil
}

// Search returns up to k records closest to query. A query whose terms are
// all unknown to the model matches nothing.
func (e *Engine) Search(ctx context.Context, query string, k int) (Result, error) {
	start := time.Now()
	res := Result{Query: query, Normalized: Normalize(query)}

	if res.Normalized == "" {
		metrics.RecordSearch(metrics.OutcomeEmptyQuery, time.Since(start), 0)
		return res, ErrEmptyQuery
	}
	if k <= 0 {
		metrics.RecordSearch(metrics.OutcomeInvalid, time.Since(start), 0)
		return res, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	snap := e.snap.Load()
	if snap == nil {
		metrics.RecordSearch(metrics.OutcomeNotReady, time.Since(start), 0)
		return res, ErrEngineNotReady
	}

	q, err := snap.model.Transform(res.Normalized)
	if err != nil {
		metrics.RecordSearch(metrics.OutcomeError, time.Since(start), 0)
		return res, err
	}
	if q.IsZero() {
		metrics.RecordSearch(metrics.OutcomeNoMatch, time.Since(start), 0)
		return res, nil
	}

	hits, err := snap.index.Query(q, k)
	if err != nil {
		metrics.RecordSearch(metrics.OutcomeError, time.Since(start), 0)
		return res, err
	}

	res.Hits, err = e.hydrate(ctx, snap, hits)
	if err != nil {
		outcome := metrics.OutcomeStoreError
		if ctx.Err() != nil {
			outcome = metrics.OutcomeCanceled
		}
		metrics.RecordSearch(outcome, time.Since(start), 0)
		return res, err
	}

	outcome := metrics.OutcomeOK
	if len(res.Hits) == 0 {
		outcome = metrics.OutcomeNoMatch
	}
	metrics.RecordSearch(outcome, time.Since(start), len(res.Hits))
	return res, nil
}

// hydrate re-fetches every hit by ekp number, keeping rank order. Records
// gone from the store and slots outside the snapshot are dropped.
func (e *Engine) hydrate(ctx context.Context, snap *snapshot, hits []index.Hit) ([]Hit, error) {
	found := make([]*Hit, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.hydrationConcurrency)
	for i, h := range hits {
		if h.Index < 0 || h.Index >= len(snap.keys) {
			e.log.Warn(ctx, "hit outside snapshot", logger.Int("slot", h.Index))
			metrics.RecordHydrationMiss()
			continue
		}
		key := snap.keys[h.Index]
		g.Go(func() error {
			rec, err := e.store.FetchByKey(gctx, key)
			switch {
			case errors.Is(err, model.ErrRecordNotFound):
				e.log.Warn(gctx, "hit no longer in store", logger.String("ekp", key))
				metrics.RecordHydrationMiss()
				return nil
			case err != nil:
				return fmt.Errorf("%w: fetch %q: %w", ErrStoreUnavailable, key, err)
			}
			found[i] = &Hit{Record: rec, Distance: h.Distance}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	out := make([]Hit, 0, len(hits))
	for _, h := range found {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out, nil
}

// Stats returns a point-in-time description of the engine.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	st := Stats{
		State:    e.phase.String(),
		Loaded:   len(e.corpus),
		Norm:     string(e.norm),
		Language: e.analyzer.Language(),
		Stemming: e.analyzer.Stemming(),
	}
	e.mu.Unlock()

	if snap := e.snap.Load(); snap != nil {
		st.State = StateReady.String()
		st.Corpus = snap.corpus
		st.Indexed = len(snap.keys)
		st.Skipped = snap.skipped
		st.Vocabulary = snap.model.Size()
		st.BuiltAt = snap.builtAt
		st.BuildDuration = snap.took
	}
	return st
}
