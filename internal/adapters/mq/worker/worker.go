package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ekpsearch/internal/adapters/mq/queue"
	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
	"github.com/okian/ekpsearch/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Inserter stores records, skipping ekp numbers that already exist.
type Inserter interface {
	Insert(ctx context.Context, rec model.CompetitionRecord) (bool, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// FailureFunc is called with a record whose insert failed.
type FailureFunc func(ctx context.Context, rec model.CompetitionRecord, err error)

// Counters aggregates job outcomes across workers.
type Counters struct {
	processed  atomic.Int64
	inserted   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// Stats is a snapshot of Counters.
type Stats struct {
	Processed  int64 `json:"processed"`
	Inserted   int64 `json:"inserted"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// Stats returns a snapshot of the counters.
func (c *Counters) Stats() Stats {
	return Stats{
		Processed:  c.processed.Load(),
		Inserted:   c.inserted.Load(),
		Duplicates: c.duplicates.Load(),
		Failed:     c.failed.Load(),
	}
}

// InMemoryWorker inserts the records it reads off the queue.
type InMemoryWorker struct {
	queue      Queue
	store      Inserter
	counters   *Counters
	name       string
	jobTimeout time.Duration
	onFailure  FailureFunc

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker. counters may be shared between workers.
func NewInMemoryWorker(q Queue, store Inserter, counters *Counters, opts ...Option) *InMemoryWorker {
	if counters == nil {
		counters = &Counters{}
	}
	w := &InMemoryWorker{
		queue:    q,
		store:    store,
		counters: counters,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is drained and closed, ctx is
// canceled or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "ingest job failed", logger.String("job", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker without draining and waits for it to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: Job arrives by value from the channel
	start := time.Now()
	defer func() { metrics.RecordWorkerLatency(time.Since(start)) }()
	w.counters.processed.Add(1)

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	inserted, err := w.store.Insert(ctx, j.Record)
	if err != nil {
		w.counters.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "insert_error")
		if w.onFailure != nil {
			w.onFailure(ctx, j.Record, err)
		}
		return fmt.Errorf("insert %q: %w", j.Record.EKPNumber, err)
	}
	if !inserted {
		w.counters.duplicates.Add(1)
		metrics.RecordIngestDuplicate()
		w.logger.Debug(ctx, "record already stored", logger.String("ekp", j.Record.EKPNumber))
		return nil
	}
	w.counters.inserted.Add(1)
	metrics.RecordIngestInserted()
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. workerCount < 1 picks a
// default based on the CPU count.
func NewPool(workerCount int, q Queue, store Inserter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counters: &Counters{},
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, store, p.counters, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stats returns the aggregated job outcomes.
func (p *Pool) Stats() Stats { return p.counters.Stats() }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.stop()
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
	return nil
}
