package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/ekpsearch/internal/adapters/http/api"
	service "github.com/okian/ekpsearch/internal/app"
	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/search"
	"github.com/okian/ekpsearch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDeps records calls and returns canned results.
type mockDeps struct {
	mu sync.Mutex

	result    search.Result
	searchErr error
	gotQuery  string
	gotK      int

	rebuildErr error
	ready      bool

	submitted []model.CompetitionRecord
	submitRes service.SubmitResult
	submitErr error

	records  map[string]model.CompetitionRecord
	readErr  error
	sports   []string
	statsHit int
}

func (m *mockDeps) Search(_ context.Context, query string, k int) (search.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotQuery, m.gotK = query, k
	if search.Normalize(query) == "" {
		return search.Result{Query: query}, search.ErrEmptyQuery
	}
	return m.result, m.searchErr
}

func (m *mockDeps) Rebuild(context.Context) (search.Stats, error) {
	if m.rebuildErr != nil {
		return search.Stats{State: "loaded"}, m.rebuildErr
	}
	return search.Stats{State: "ready", Indexed: 3, Vocabulary: 12}, nil
}

func (m *mockDeps) Ready() bool { return m.ready }

func (m *mockDeps) Submit(_ context.Context, recs []model.CompetitionRecord) (service.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, recs...)
	if m.submitErr != nil {
		return m.submitRes, m.submitErr
	}
	return service.SubmitResult{Accepted: len(recs), JobIDs: []string{"job-1"}}, nil
}

func (m *mockDeps) Record(_ context.Context, ekp string) (model.CompetitionRecord, error) {
	if m.readErr != nil {
		return model.CompetitionRecord{}, m.readErr
	}
	rec, ok := m.records[ekp]
	if !ok {
		return model.CompetitionRecord{}, fmt.Errorf("lookup %q: %w", ekp, model.ErrRecordNotFound)
	}
	return rec, nil
}

func (m *mockDeps) SportNames(context.Context) ([]string, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.sports, nil
}

func (m *mockDeps) GetStats(context.Context) service.Stats {
	m.statsHit++
	return service.Stats{Started: true, Workers: 2, StoredRecords: 3}
}

func football() model.CompetitionRecord {
	return model.CompetitionRecord{
		SportName:      "Футбол",
		EKPNumber:      "EKP-1001",
		DateStart:      model.NewDate(2024, time.May, 1),
		DateEnd:        model.NewDate(2024, time.May, 3),
		City:           "Казань",
		Country:        "Россия",
		MaxPeopleCount: 120,
		GendersAndAges: []string{"юноши до 17"},
		Registered:     7,
	}
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestSearchEndpoint(t *testing.T) {
	Convey("Given a server over a ready engine", t, func() {
		deps := &mockDeps{
			ready: true,
			result: search.Result{
				Query:      "футбол, Казань",
				Normalized: "футбол Казань",
				Hits:       []search.Hit{{Record: football(), Distance: 0.25}},
			},
		}
		mux := newMux(deps, api.WithSearchLimits(3, 10))

		Convey("When searching with keywords", func() {
			w := do(mux, http.MethodGet, "/search?keywords=%D1%84%D1%83%D1%82%D0%B1%D0%BE%D0%BB,%20%D0%9A%D0%B0%D0%B7%D0%B0%D0%BD%D1%8C", "")

			Convey("Then events should carry the record and its distance", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				So(deps.gotQuery, ShouldEqual, "футбол, Казань")
				So(deps.gotK, ShouldEqual, 3)

				out := decode(w)
				So(out["query"], ShouldEqual, "футбол Казань")
				So(out, ShouldNotContainKey, "message")
				events := out["events"].([]any)
				So(events, ShouldHaveLength, 1)
				ev := events[0].(map[string]any)
				So(ev["ekp_number"], ShouldEqual, "EKP-1001")
				So(ev["date_start"], ShouldEqual, "2024-05-01")
				So(ev["registered"], ShouldEqual, 7.0)
				So(ev["distance"], ShouldEqual, 0.25)
			})
		})

		Convey("When k is given", func() {
			So(do(mux, http.MethodGet, "/search?keywords=a&k=7", "").Code, ShouldEqual, http.StatusOK)
			So(deps.gotK, ShouldEqual, 7)

			So(do(mux, http.MethodGet, "/search?keywords=a&k=500", "").Code, ShouldEqual, http.StatusOK)
			So(deps.gotK, ShouldEqual, 10)

			for _, bad := range []string{"0", "-1", "many"} {
				w := do(mux, http.MethodGet, "/search?keywords=a&k="+bad, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "invalid_k")
			}
		})

		Convey("When keywords are missing or empty", func() {
			for _, target := range []string{"/search", "/search?keywords=", "/search?keywords=%20,%20,"} {
				w := do(mux, http.MethodGet, target, "")

				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "no_keywords")
			}
		})

		Convey("When nothing matches", func() {
			deps.result = search.Result{Normalized: "керлинг"}
			w := do(mux, http.MethodGet, "/search?keywords=керлинг", "")

			Convey("Then it should answer 200 with a message", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["events"], ShouldBeEmpty)
				So(out["message"], ShouldEqual, "no events found matching the keywords")
			})
		})

		Convey("When the engine cannot serve", func() {
			for _, err := range []error{search.ErrEngineNotReady, fmt.Errorf("%w: boom", search.ErrStoreUnavailable)} {
				deps.searchErr = err
				So(do(mux, http.MethodGet, "/search?keywords=a", "").Code, ShouldEqual, http.StatusServiceUnavailable)
			}
			deps.searchErr = errors.New("unexpected")
			So(do(mux, http.MethodGet, "/search?keywords=a", "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When the store fails with a driver message", func() {
			deps.searchErr = fmt.Errorf("%w: fetch %q: %w", search.ErrStoreUnavailable, "EKP-1", errors.New("dial tcp 10.0.0.5:5432: connection refused"))
			w := do(mux, http.MethodGet, "/search?keywords=a", "")

			Convey("Then the body should carry only the status text", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				out := decode(w)
				So(out["code"], ShouldEqual, "unavailable")
				So(out["message"], ShouldEqual, http.StatusText(http.StatusServiceUnavailable))
				So(w.Body.String(), ShouldNotContainSubstring, "10.0.0.5")
			})
		})

		Convey("When the request is canceled or times out", func() {
			for _, err := range []error{context.Canceled, fmt.Errorf("hydrate: %w", context.DeadlineExceeded)} {
				deps.searchErr = err
				w := do(mux, http.MethodGet, "/search?keywords=a", "")

				So(w.Code, ShouldEqual, http.StatusGatewayTimeout)
				So(decode(w)["code"], ShouldEqual, "timeout")
			}
		})

		Convey("When the method is wrong", func() {
			So(do(mux, http.MethodPost, "/search?keywords=a", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a server with a tight rate limit", t, func() {
		deps := &mockDeps{ready: true, result: search.Result{Hits: []search.Hit{{Record: football()}}}}
		mux := newMux(deps, api.WithRateLimit(0.001, 2))

		Convey("When one client exceeds its burst", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				codes = append(codes, do(mux, http.MethodGet, "/search?keywords=a", "").Code)
			}

			Convey("Then the extra request should be rejected", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})
		})
	})
}

func TestCompetitionEndpoints(t *testing.T) {
	Convey("Given a server accepting submissions", t, func() {
		deps := &mockDeps{
			records: map[string]model.CompetitionRecord{"EKP-1001": football()},
			sports:  []string{"Самбо", "Футбол"},
		}
		mux := newMux(deps)

		Convey("When a single record is posted", func() {
			body := `{"sport_name":"Футбол","ekp_number":"EKP-1","date_start":"2024-05-01","date_end":"2024-05-02","genders_and_ages":["мужчины"]}`
			w := do(mux, http.MethodPost, "/competitions", body)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				out := decode(w)
				So(out["status"], ShouldEqual, "accepted")
				So(out["accepted"], ShouldEqual, 1.0)
				So(deps.submitted, ShouldHaveLength, 1)
				So(deps.submitted[0].DateStart, ShouldResemble, model.NewDate(2024, time.May, 1))
			})
		})

		Convey("When a batch is posted", func() {
			body := `[{"sport_name":"Футбол","ekp_number":"EKP-1"},{"sport_name":"Самбо","ekp_number":"EKP-2"}]`
			w := do(mux, http.MethodPost, "/competitions", body)

			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.submitted, ShouldHaveLength, 2)
		})

		Convey("When a record is invalid", func() {
			cases := []string{
				``,
				`[]`,
				`{not json`,
				`{"sport_name":"Футбол"}`,
				`{"ekp_number":"EKP-1"}`,
				`{"sport_name":"Футбол","ekp_number":"EKP-1","max_people_count":-5}`,
				`{"sport_name":"Футбол","ekp_number":"EKP-1","date_start":"2024-05-03","date_end":"2024-05-01"}`,
				`{"sport_name":"Футбол","ekp_number":"EKP-1","date_start":"01.05.2024"}`,
			}

			Convey("Then it should be rejected before submission", func() {
				for _, body := range cases {
					w := do(mux, http.MethodPost, "/competitions", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the queue is full", func() {
			deps.submitErr = fmt.Errorf("%w: queue full", service.ErrBackpressure)
			deps.submitRes = service.SubmitResult{Accepted: 1, Duplicates: 1}
			w := do(mux, http.MethodPost, "/competitions", `[{"sport_name":"a","ekp_number":"1"},{"sport_name":"a","ekp_number":"2"}]`)

			Convey("Then it should report backpressure with partial counts", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				out := decode(w)
				So(out["status"], ShouldEqual, "backpressure")
				So(out["accepted"], ShouldEqual, 1.0)
				So(out["duplicates"], ShouldEqual, 1.0)
			})
		})

		Convey("When the service is not running", func() {
			deps.submitErr = service.ErrNotStarted
			w := do(mux, http.MethodPost, "/competitions", `{"sport_name":"a","ekp_number":"1"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a body exceeds the limit", func() {
			mux := newMux(deps, api.WithMaxBodyBytes(16))
			w := do(mux, http.MethodPost, "/competitions", `{"sport_name":"Футбол","ekp_number":"EKP-1"}`)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("When a record is looked up", func() {
			w := do(mux, http.MethodGet, "/competitions/EKP-1001", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["city"], ShouldEqual, "Казань")

			w = do(mux, http.MethodGet, "/competitions/EKP-404", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")

			deps.readErr = errors.New("store down")
			So(do(mux, http.MethodGet, "/competitions/EKP-1001", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When sport names are listed", func() {
			w := do(mux, http.MethodGet, "/sport-names", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["sport_names"], ShouldResemble, []any{"Самбо", "Футбол"})

			deps.sports = nil
			So(decode(do(mux, http.MethodGet, "/sport-names", ""))["sport_names"], ShouldResemble, []any{})
		})
	})
}

func TestAdminAndHealthEndpoints(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a reindex succeeds", func() {
			w := do(mux, http.MethodPost, "/admin/reindex", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["indexed"], ShouldEqual, 3.0)
		})

		Convey("When a reindex fails", func() {
			deps.rebuildErr = fmt.Errorf("fit: %w", search.ErrEmptyCorpus)
			So(do(mux, http.MethodPost, "/admin/reindex", "").Code, ShouldEqual, http.StatusUnprocessableEntity)

			deps.rebuildErr = fmt.Errorf("%w: fetch all", search.ErrStoreUnavailable)
			So(do(mux, http.MethodPost, "/admin/reindex", "").Code, ShouldEqual, http.StatusServiceUnavailable)

			So(do(mux, http.MethodGet, "/admin/reindex", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When readiness is probed", func() {
			So(do(mux, http.MethodGet, "/readyz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
			deps.ready = true
			So(do(mux, http.MethodGet, "/readyz", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.statsHit, ShouldEqual, 1)
			So(decode(w)["stored_records"], ShouldEqual, 3.0)
		})

		Convey("When metrics are scraped after some traffic", func() {
			do(mux, http.MethodGet, "/stats", "")
			for _, path := range []string{"/healthz", "/metrics"} {
				w := do(mux, http.MethodGet, path, "")

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
			}
		})
	})
}

func TestWrapKind(t *testing.T) {
	Convey("Given a wrapped handler error", t, func() {
		cause := errors.New("disk full")
		err := api.WrapKind("api.op", api.ErrUnavailable, cause)

		So(errors.Is(err, api.ErrUnavailable), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: service unavailable: disk full")
		So(api.NewKind("api.op", api.ErrBadRequest).Error(), ShouldEqual, "api.op: bad request")
	})
}
