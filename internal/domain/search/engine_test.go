package search_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/search"
	"github.com/okian/ekpsearch/internal/domain/vectorizer"
	"github.com/okian/ekpsearch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var errDown = errors.New("connection refused")

// fakeStore keeps records in insertion order and can be told to fail.
type fakeStore struct {
	mu       sync.Mutex
	records  []model.CompetitionRecord
	failAll  bool
	failKeys bool
	fetches  int
}

func (s *fakeStore) FetchAll(context.Context) ([]model.CompetitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errDown
	}
	out := make([]model.CompetitionRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *fakeStore) FetchByKey(_ context.Context, ekp string) (model.CompetitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.failKeys {
		return model.CompetitionRecord{}, errDown
	}
	for _, r := range s.records {
		if r.EKPNumber == ekp {
			return r.Clone(), nil
		}
	}
	return model.CompetitionRecord{}, fmt.Errorf("ekp %q: %w", ekp, model.ErrRecordNotFound)
}

func (s *fakeStore) delete(ekp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.EKPNumber == ekp {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

func (s *fakeStore) set(fn func(*fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func calendar() []model.CompetitionRecord {
	return []model.CompetitionRecord{
		{SportName: "Футбол", EKPNumber: "EKP-1001", City: "Казань", Discipline: "Мини-футбол",
			CompetitionClass: "Чемпионат России", Country: "Россия", MaxPeopleCount: 120,
			DateStart: model.NewDate(2024, time.May, 1), GendersAndAges: []string{"мужчины"}},
		{SportName: "Баскетбол", EKPNumber: "EKP-1002", City: "Москва", Discipline: "Баскетбол 3x3",
			CompetitionClass: "Кубок России", Country: "Россия", MaxPeopleCount: 80,
			GendersAndAges: []string{"женщины"}},
		{SportName: "Плавание", EKPNumber: "EKP-1003", City: "Сочи", Discipline: "Вольный стиль",
			CompetitionClass: "Первенство России", Country: "Россия", MaxPeopleCount: 300,
			GendersAndAges: []string{"юниоры", "юниорки"}},
		{SportName: "Хоккей", EKPNumber: "EKP-1004", City: "Казань", Discipline: "Хоккей с шайбой",
			CompetitionClass: "Всероссийские соревнования", Country: "Россия", MaxPeopleCount: 40},
		{SportName: "Футбол", EKPNumber: "EKP-1005", City: "Самара", Discipline: "Пляжный футбол",
			CompetitionClass: "Кубок России", Country: "Россия", MaxPeopleCount: 60},
	}
}

func newEngine(store search.RecordStore, opts ...search.Option) *search.Engine {
	So(logger.Init(), ShouldBeNil)
	e, err := search.New(store, opts...)
	So(err, ShouldBeNil)
	return e
}

func keys(res search.Result) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Record.EKPNumber
	}
	return out
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh engine", t, func() {
		store := &fakeStore{records: calendar()}
		e := newEngine(store)
		So(e.State(), ShouldEqual, search.StateUninitialized)

		Convey("When searching before indexing", func() {
			_, err := e.Search(ctx, "футбол", 5)
			So(errors.Is(err, search.ErrEngineNotReady), ShouldBeTrue)
		})

		Convey("When indexing before loading", func() {
			err := e.Index(ctx)
			So(errors.Is(err, search.ErrEngineNotReady), ShouldBeTrue)
		})

		Convey("When loading and indexing", func() {
			So(e.Load(ctx), ShouldBeNil)
			So(e.State(), ShouldEqual, search.StateLoaded)
			So(e.Index(ctx), ShouldBeNil)

			Convey("Then the engine should be ready", func() {
				So(e.State(), ShouldEqual, search.StateReady)
				st := e.Stats()
				So(st.State, ShouldEqual, "ready")
				So(st.Corpus, ShouldEqual, 5)
				So(st.Indexed, ShouldEqual, 5)
				So(st.Vocabulary, ShouldBeGreaterThan, 10)
				So(st.Norm, ShouldEqual, "l2")
				So(st.BuiltAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When the store is down", func() {
			store.set(func(s *fakeStore) { s.failAll = true })
			err := e.Load(ctx)

			Convey("Then load should surface the store failure", func() {
				So(errors.Is(err, search.ErrStoreUnavailable), ShouldBeTrue)
				So(errors.Is(err, errDown), ShouldBeTrue)
				So(e.State(), ShouldEqual, search.StateUninitialized)
			})
		})

		Convey("When the corpus has no indexable text", func() {
			store.set(func(s *fakeStore) {
				s.records = []model.CompetitionRecord{{EKPNumber: "1"}, {EKPNumber: "и"}}
			})
			So(e.Load(ctx), ShouldBeNil)
			err := e.Index(ctx)

			Convey("Then indexing should fail with an empty corpus", func() {
				So(errors.Is(err, search.ErrEmptyCorpus), ShouldBeTrue)
				So(e.State(), ShouldEqual, search.StateLoaded)
			})
		})
	})
}

func TestEngineSearch(t *testing.T) {
	ctx := context.Background()

	Convey("Given an indexed calendar", t, func() {
		store := &fakeStore{records: calendar()}
		e := newEngine(store, search.WithHydrationConcurrency(2))
		So(e.Rebuild(ctx), ShouldBeNil)

		Convey("When each record's blob is used as the query", func() {
			Convey("Then the record itself should rank first", func() {
				for _, r := range calendar() {
					res, err := e.Search(ctx, r.Blob(), 3)
					So(err, ShouldBeNil)
					So(res.Hits, ShouldNotBeEmpty)
					So(res.Hits[0].Record.EKPNumber, ShouldEqual, r.EKPNumber)
					So(res.Hits[0].Distance, ShouldAlmostEqual, 0, 1e-9)
				}
			})
		})

		Convey("When k varies", func() {
			for k := 1; k <= 8; k++ {
				res, err := e.Search(ctx, "Россия", k)
				So(err, ShouldBeNil)
				So(len(res.Hits), ShouldBeLessThanOrEqualTo, k)
				So(len(res.Hits), ShouldBeLessThanOrEqualTo, 5)
			}

			Convey("Then k beyond the corpus should return every record ranked", func() {
				res, err := e.Search(ctx, "футбол", 50)
				So(err, ShouldBeNil)
				So(res.Hits, ShouldHaveLength, 5)
				for i := 1; i < len(res.Hits); i++ {
					So(res.Hits[i-1].Distance, ShouldBeLessThanOrEqualTo, res.Hits[i].Distance)
				}
			})
		})

		Convey("When the query is empty after normalisation", func() {
			_, err := e.Search(ctx, "", 5)
			So(errors.Is(err, search.ErrEmptyQuery), ShouldBeTrue)
			_, err = e.Search(ctx, " , ,", 5)
			So(errors.Is(err, search.ErrEmptyQuery), ShouldBeTrue)
		})

		Convey("When k is not positive", func() {
			_, err := e.Search(ctx, "футбол", 0)
			So(errors.Is(err, search.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When the query only has unknown terms", func() {
			res, err := e.Search(ctx, "керлинг", 5)

			Convey("Then it should match nothing without error", func() {
				So(err, ShouldBeNil)
				So(res.Hits, ShouldBeEmpty)
				So(res.Normalized, ShouldEqual, "керлинг")
			})
		})

		Convey("When comma separated keywords are given", func() {
			res, err := e.Search(ctx, " футбол , Казань,,", 2)
			So(err, ShouldBeNil)

			Convey("Then the Kazan football event should win", func() {
				So(res.Normalized, ShouldEqual, "футбол Казань")
				So(keys(res)[0], ShouldEqual, "EKP-1001")
			})
		})

		Convey("When the index is rebuilt over the same corpus", func() {
			before, err := e.Search(ctx, "кубок России", 5)
			So(err, ShouldBeNil)
			So(e.Rebuild(ctx), ShouldBeNil)
			after, err := e.Search(ctx, "кубок России", 5)
			So(err, ShouldBeNil)

			Convey("Then the ranking should be identical", func() {
				So(after, ShouldResemble, before)
			})
		})

		Convey("When a matched record was deleted after indexing", func() {
			store.delete("EKP-1001")
			res, err := e.Search(ctx, "футбол", 5)

			Convey("Then it should be omitted without error", func() {
				So(err, ShouldBeNil)
				So(keys(res), ShouldNotContain, "EKP-1001")
				So(keys(res)[0], ShouldEqual, "EKP-1005")
			})
		})

		Convey("When fields outside the blob change after indexing", func() {
			store.set(func(s *fakeStore) { s.records[2].Registered = 42 })
			res, err := e.Search(ctx, "плавание", 1)

			Convey("Then the hydrated record should be fresh", func() {
				So(err, ShouldBeNil)
				So(res.Hits[0].Record.Registered, ShouldEqual, 42)
			})
		})

		Convey("When point lookups fail", func() {
			store.set(func(s *fakeStore) { s.failKeys = true })
			_, err := e.Search(ctx, "футбол", 5)
			So(errors.Is(err, search.ErrStoreUnavailable), ShouldBeTrue)
		})

		Convey("When the caller goes away during hydration", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			guarded := newEngine(ctxStore{store}, search.WithHydrationConcurrency(2))
			So(guarded.Rebuild(ctx), ShouldBeNil)

			_, err := guarded.Search(canceled, "футбол", 5)

			Convey("Then the context error should come back unwrapped", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(errors.Is(err, search.ErrStoreUnavailable), ShouldBeFalse)
			})
		})

		Convey("When a later load fails", func() {
			store.set(func(s *fakeStore) { s.failAll = true })
			So(errors.Is(e.Rebuild(ctx), search.ErrStoreUnavailable), ShouldBeTrue)

			Convey("Then the previous snapshot should keep serving", func() {
				res, err := e.Search(ctx, "хоккей", 1)
				So(err, ShouldBeNil)
				So(keys(res), ShouldResemble, []string{"EKP-1004"})
			})
		})
	})
}

func TestEngineRebuildSharedRun(t *testing.T) {
	Convey("Given a store whose full load waits on a gate", t, func() {
		store := &gatedLoadStore{fakeStore: &fakeStore{records: calendar()}, started: make(chan struct{}), gate: make(chan struct{})}
		e := newEngine(store, search.WithRebuildTimeout(5*time.Second))

		Convey("When the first caller cancels while a second one shares the run", func() {
			first, cancel := context.WithCancel(context.Background())
			firstErr := make(chan error, 1)
			go func() { firstErr <- e.Rebuild(first) }()
			<-store.started

			secondErr := make(chan error, 1)
			go func() { secondErr <- e.Rebuild(context.Background()) }()
			time.Sleep(50 * time.Millisecond)

			cancel()
			So(errors.Is(<-firstErr, context.Canceled), ShouldBeTrue)
			close(store.gate)

			Convey("Then the shared run should finish for the second caller", func() {
				So(<-secondErr, ShouldBeNil)
				So(e.State(), ShouldEqual, search.StateReady)
				So(store.loads.Load(), ShouldEqual, int32(1))
			})
		})
	})
}

// gatedLoadStore blocks FetchAll until gate is closed or ctx ends.
type gatedLoadStore struct {
	*fakeStore
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
	loads   atomic.Int32
}

func (g *gatedLoadStore) FetchAll(ctx context.Context) ([]model.CompetitionRecord, error) {
	g.loads.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeStore.FetchAll(ctx)
}

// ctxStore fails point lookups once ctx is done.
type ctxStore struct {
	*fakeStore
}

func (c ctxStore) FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.CompetitionRecord{}, err
	}
	return c.fakeStore.FetchByKey(ctx, ekp)
}

func TestEngineScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given three single-sport records", t, func() {
		store := &fakeStore{records: []model.CompetitionRecord{
			{SportName: "Футбол", EKPNumber: "A"},
			{SportName: "Баскетбол", EKPNumber: "B"},
			{SportName: "Футбол турнир", EKPNumber: "C"},
		}}

		for _, norm := range []vectorizer.Norm{vectorizer.NormL2, vectorizer.NormNone} {
			e := newEngine(store, search.WithNorm(norm))
			So(e.Rebuild(ctx), ShouldBeNil)

			res, err := e.Search(ctx, "футбол", 2)
			So(err, ShouldBeNil)
			So(keys(res), ShouldResemble, []string{"A", "C"})

			res, err = e.Search(ctx, "футбол", 3)
			So(err, ShouldBeNil)
			So(keys(res), ShouldResemble, []string{"A", "C", "B"})
		}
	})

	Convey("Given records without indexable text mixed in", t, func() {
		store := &fakeStore{records: []model.CompetitionRecord{
			{EKPNumber: "1"},
			{SportName: "Самбо", EKPNumber: "S"},
		}}
		e := newEngine(store)
		So(e.Rebuild(ctx), ShouldBeNil)

		Convey("Then only indexable records should be searchable", func() {
			st := e.Stats()
			So(st.Corpus, ShouldEqual, 2)
			So(st.Indexed, ShouldEqual, 1)
			So(st.Skipped, ShouldEqual, 1)

			res, err := e.Search(ctx, "самбо", 5)
			So(err, ShouldBeNil)
			So(keys(res), ShouldResemble, []string{"S"})
		})
	})
}

func TestEngineConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given searches running during rebuilds", t, func() {
		store := &fakeStore{records: calendar()}
		e := newEngine(store)
		So(e.Rebuild(ctx), ShouldBeNil)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
			tops []string
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					res, err := e.Search(ctx, "хоккей с шайбой", 3)
					mu.Lock()
					if err != nil {
						errs = append(errs, err)
					} else if len(res.Hits) > 0 {
						tops = append(tops, res.Hits[0].Record.EKPNumber)
					}
					mu.Unlock()
				}
			}()
		}
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					if err := e.Rebuild(ctx); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every search should see a complete snapshot", func() {
			So(errs, ShouldBeEmpty)
			So(tops, ShouldHaveLength, 400)
			for _, k := range tops {
				So(k, ShouldEqual, "EKP-1004")
			}
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given raw keyword strings", t, func() {
		So(search.Normalize(""), ShouldEqual, "")
		So(search.Normalize(" , ,"), ShouldEqual, "")
		So(search.Normalize("футбол"), ShouldEqual, "футбол")
		So(search.Normalize(" футбол ,  мини   футбол,,Казань "), ShouldEqual, "футбол мини футбол Казань")
	})
}

func TestStateString(t *testing.T) {
	Convey("Given engine states", t, func() {
		So(search.StateUninitialized.String(), ShouldEqual, "uninitialized")
		So(search.StateLoaded.String(), ShouldEqual, "loaded")
		So(search.StateIndexed.String(), ShouldEqual, "indexed")
		So(search.StateReady.String(), ShouldEqual, "ready")
		So(search.State(42).String(), ShouldEqual, "unknown")
	})
}
