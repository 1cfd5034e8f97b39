package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	service "github.com/okian/ekpsearch/internal/app"
	"github.com/okian/ekpsearch/internal/domain/model"
)

// CompetitionDependencies defines the interface for record ingestion and reads.
type CompetitionDependencies interface {
	Submit(ctx context.Context, recs []model.CompetitionRecord) (service.SubmitResult, error)
	Record(ctx context.Context, ekp string) (model.CompetitionRecord, error)
	SportNames(ctx context.Context) ([]string, error)
}

// CompetitionsHandler handles competition record requests.
type CompetitionsHandler struct {
	deps    CompetitionDependencies
	maxBody int64
}

// NewCompetitionsHandler creates a new competitions handler.
func NewCompetitionsHandler(deps CompetitionDependencies, maxBody int64) *CompetitionsHandler {
	return &CompetitionsHandler{deps: deps, maxBody: maxBody}
}

// competitionRequest mirrors the OpenAPI schema for POST /competitions.
type competitionRequest struct {
	SportName        string     `json:"sport_name" validate:"required,max=256"`
	SportComposition string     `json:"sport_composition" validate:"max=256"`
	EKPNumber        string     `json:"ekp_number" validate:"required,max=64"`
	DateStart        model.Date `json:"date_start"`
	DateEnd          model.Date `json:"date_end"`
	City             string     `json:"city" validate:"max=256"`
	Discipline       string     `json:"discipline" validate:"max=1024"`
	CompetitionClass string     `json:"competition_class" validate:"max=256"`
	Country          string     `json:"country" validate:"max=128"`
	MaxPeopleCount   int        `json:"max_people_count" validate:"min=0"`
	GendersAndAges   []string   `json:"genders_and_ages" validate:"max=64,dive,max=256"`
	Registered       int        `json:"registered" validate:"min=0"`
}

func (c *competitionRequest) record() model.CompetitionRecord {
	return model.CompetitionRecord{
		SportName:        c.SportName,
		SportComposition: c.SportComposition,
		EKPNumber:        c.EKPNumber,
		DateStart:        c.DateStart,
		DateEnd:          c.DateEnd,
		City:             c.City,
		Discipline:       c.Discipline,
		CompetitionClass: c.CompetitionClass,
		Country:          c.Country,
		MaxPeopleCount:   c.MaxPeopleCount,
		GendersAndAges:   c.GendersAndAges,
		Registered:       c.Registered,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			return name
		})
		validate.RegisterStructValidation(func(sl validator.StructLevel) {
			c := sl.Current().Interface().(competitionRequest) //nolint:forcetypeassert // registered for this type only
			if !c.DateStart.IsZero() && !c.DateEnd.IsZero() && c.DateEnd.Before(c.DateStart.Time) {
				sl.ReportError(c.DateEnd, "date_end", "DateEnd", "gtefield", "date_start")
			}
		}, competitionRequest{})
	})
	return validate
}

func validateRequest(req *competitionRequest) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// decodeCompetitions accepts a single JSON object or an array of them.
func decodeCompetitions(body []byte) ([]competitionRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var reqs []competitionRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			return nil, errors.New("empty batch")
		}
		return reqs, nil
	}
	var req competitionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return []competitionRequest{req}, nil
}

type submitResponse struct {
	Status string `json:"status"`
	service.SubmitResult
}

// HandlePost handles POST /competitions requests.
func (h *CompetitionsHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_competitions"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	reqs, err := decodeCompetitions(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	recs := make([]model.CompetitionRecord, len(reqs))
	for i := range reqs {
		if err := validateRequest(&reqs[i]); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_record", WrapKind(op, ErrBadRequest, fmt.Errorf("record %d: %w", i, err)))
			return
		}
		recs[i] = reqs[i].record()
	}

	res, err := h.deps.Submit(r.Context(), recs)
	switch {
	case errors.Is(err, service.ErrBackpressure):
		writeJSON(w, http.StatusTooManyRequests, submitResponse{Status: "backpressure", SubmitResult: res})
		return
	case errors.Is(err, service.ErrInvalidRecord):
		writeError(w, r, http.StatusBadRequest, "invalid_record", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Status: "accepted", SubmitResult: res})
}

// HandleGet handles GET /competitions/{ekp} requests.
func (h *CompetitionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_competition"
	ekp := strings.TrimSpace(r.PathValue("ekp"))
	if ekp == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	rec, err := h.deps.Record(r.Context(), ekp)
	switch {
	case errors.Is(err, model.ErrRecordNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	case err != nil:
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type sportNamesResponse struct {
	SportNames []string `json:"sport_names"`
}

// HandleSportNames handles GET /sport-names requests.
func (h *CompetitionsHandler) HandleSportNames(w http.ResponseWriter, r *http.Request) {
	const op = "api.sport_names"
	names, err := h.deps.SportNames(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, sportNamesResponse{SportNames: names})
}
