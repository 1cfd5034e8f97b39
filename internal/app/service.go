// Package service wires the record store, the search engine and the ingest
// pipeline into the operations the HTTP API serves.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ingestqueue "github.com/okian/ekpsearch/internal/adapters/mq/queue"
	workerpool "github.com/okian/ekpsearch/internal/adapters/mq/worker"
	"github.com/okian/ekpsearch/internal/adapters/repository"
	"github.com/okian/ekpsearch/internal/domain/dedupe"
	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/search"
	"github.com/okian/ekpsearch/pkg/logger"
	"github.com/okian/ekpsearch/pkg/metrics"
)

// Service owns the engine and the ingest pipeline. The store is injected and
// stays owned by the caller.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	engine  *search.Engine
	deduper dedupe.Deduper
	queue   *ingestqueue.InMemoryQueue
	pool    *workerpool.Pool

	workerCount     int
	queueSize       int
	dedupeSize      int
	jobTimeout      time.Duration
	reindexInterval time.Duration
	engineOpts      []search.Option

	started     bool
	cancelRun   context.CancelFunc
	reindexWG   sync.WaitGroup
	lastRebuild atomic.Pointer[time.Time]

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingest workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ingest queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the ekp dedupe cache. Zero means unbounded.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithJobTimeout bounds a single store insert made by a worker.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithReindexInterval rebuilds the index periodically. Zero disables it.
func WithReindexInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.reindexInterval = d
		}
	}
}

// WithEngineOptions passes options through to the search engine.
func WithEngineOptions(opts ...search.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. The engine starts Uninitialized;
// Start performs the first build.
func New(store repository.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("service: nil store")
	}
	s := &Service{
		store:       store,
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  50_000,
		jobTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	engine, err := search.New(store, s.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("create search engine: %w", err)
	}
	s.engine = engine
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s, nil
}

// Start launches the ingest workers, builds the first index and schedules
// periodic rebuilds. A failed first build is logged; the engine then stays
// not ready until a rebuild succeeds.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting search service...")

	// Workers outlive the caller's context so Stop can drain the queue.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel

	s.queue = ingestqueue.NewInMemoryQueue(ingestqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store,
		workerpool.WithJobTimeout(s.jobTimeout),
		workerpool.WithOnFailure(s.forget),
	)
	s.pool.Start(runCtx)

	if _, err := s.Rebuild(ctx); err != nil {
		s.logger.Warn(ctx, "initial index build failed", logger.Error(err))
	}

	if s.reindexInterval > 0 {
		s.reindexWG.Add(1)
		go s.reindexLoop(runCtx, s.reindexInterval)
	}

	s.started = true
	s.logger.Info(ctx, "search service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("reindexInterval", s.reindexInterval),
		logger.String("state", s.engine.State().String()),
	)
	return nil
}

func (s *Service) reindexLoop(ctx context.Context, every time.Duration) {
	defer s.reindexWG.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Rebuild(ctx); err != nil {
				s.logger.Warn(ctx, "scheduled rebuild failed", logger.Error(err))
			}
		}
	}
}

// Stop drains queued submissions into the store and stops background work.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping search service...")

	err := s.pool.Shutdown(ctx)
	s.cancelRun()
	s.reindexWG.Wait()

	s.started = false
	s.logger.Info(ctx, "search service stopped", logger.Any("ingest", s.pool.Stats()))
	return err
}

// SubmitResult reports what happened to a batch of submitted records.
type SubmitResult struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	JobIDs     []string `json:"job_ids"`
}

// Submit queues records for insertion. Ekp numbers already submitted are
// counted as duplicates and skipped. When the queue is full the remaining
// records are dropped and the error wraps ErrBackpressure.
func (s *Service) Submit(ctx context.Context, recs []model.CompetitionRecord) (SubmitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := SubmitResult{JobIDs: make([]string, 0, len(recs))}
	if !s.started {
		return res, ErrNotStarted
	}

	for i := range recs {
		rec := recs[i].Clone()
		rec.EKPNumber = strings.TrimSpace(rec.EKPNumber)
		if rec.EKPNumber == "" {
			return res, fmt.Errorf("%w: record %d has no ekp_number", ErrInvalidRecord, i)
		}
		if s.deduper.SeenAndRecord(ctx, rec.EKPNumber) {
			res.Duplicates++
			metrics.RecordIngestRejected("duplicate")
			s.logger.Debug(ctx, "duplicate submission skipped", logger.String("ekp", rec.EKPNumber))
			continue
		}

		job := ingestqueue.Job{ID: uuid.NewString(), Record: rec, Submitted: time.Now()}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.deduper.Unrecord(ctx, rec.EKPNumber)
			if errors.Is(err, ingestqueue.ErrFull) || errors.Is(err, ingestqueue.ErrClosed) {
				return res, fmt.Errorf("%w: %w", ErrBackpressure, err)
			}
			return res, err
		}
		res.Accepted++
		res.JobIDs = append(res.JobIDs, job.ID)
	}
	return res, nil
}

// forget drops a record that never reached the store from the deduper so a
// resubmission is accepted again.
func (s *Service) forget(ctx context.Context, rec model.CompetitionRecord, err error) {
	s.deduper.Unrecord(ctx, rec.EKPNumber)
	s.logger.Warn(ctx, "record not stored, resubmission allowed",
		logger.String("ekp", rec.EKPNumber), logger.Error(err))
}

// Search runs a keyword query against the published index.
func (s *Service) Search(ctx context.Context, query string, k int) (search.Result, error) {
	return s.engine.Search(ctx, query, k)
}

// Rebuild reloads the corpus and republishes the index.
func (s *Service) Rebuild(ctx context.Context) (search.Stats, error) {
	if err := s.engine.Rebuild(ctx); err != nil {
		return s.engine.Stats(), err
	}
	now := time.Now()
	s.lastRebuild.Store(&now)
	return s.engine.Stats(), nil
}

// Ready reports whether searches can be served.
func (s *Service) Ready() bool {
	return s.engine.State() == search.StateReady
}

// Record returns the stored record for ekp.
func (s *Service) Record(ctx context.Context, ekp string) (model.CompetitionRecord, error) {
	return s.store.FetchByKey(ctx, strings.TrimSpace(ekp))
}

// SportNames lists the distinct sport names in the store.
func (s *Service) SportNames(ctx context.Context) ([]string, error) {
	return s.store.SportNames(ctx)
}

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Started       bool             `json:"started"`
	Workers       int              `json:"workers"`
	QueueLength   int              `json:"queue_length"`
	QueueCapacity int              `json:"queue_capacity"`
	DedupeEntries int64            `json:"dedupe_entries"`
	StoredRecords int              `json:"stored_records"`
	StoreError    string           `json:"store_error,omitempty"`
	LastRebuild   *time.Time       `json:"last_rebuild,omitempty"`
	Ingest        workerpool.Stats `json:"ingest"`
	Engine        search.Stats     `json:"engine"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		DedupeEntries: s.deduper.Size(),
		LastRebuild:   s.lastRebuild.Load(),
		Engine:        s.engine.Stats(),
	}
	if s.pool != nil {
		st.Workers = s.pool.Size()
		st.Ingest = s.pool.Stats()
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len()
		st.QueueCapacity = s.queue.Cap()
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		st.StoreError = err.Error()
		s.logger.Warn(ctx, "count records failed", logger.Error(err))
	}
	st.StoredRecords = n
	return st
}
