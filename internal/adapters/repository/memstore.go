package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/okian/ekpsearch/internal/domain/model"
)

// MemStore is an in-memory Store. FetchAll returns records in insertion order.
type MemStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]model.CompetitionRecord
	closed  bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]model.CompetitionRecord)}
}

func (s *MemStore) FetchAll(ctx context.Context) ([]model.CompetitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.CompetitionRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k].Clone())
	}
	return out, nil
}

func (s *MemStore) FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.CompetitionRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.CompetitionRecord{}, ErrClosed
	}
	r, ok := s.records[ekp]
	if !ok {
		return model.CompetitionRecord{}, fmt.Errorf("ekp %q: %w", ekp, ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *MemStore) Insert(ctx context.Context, rec model.CompetitionRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.TrimSpace(rec.EKPNumber) == "" {
		return false, fmt.Errorf("%w: empty ekp number", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.records[rec.EKPNumber]; ok {
		return false, nil
	}
	s.records[rec.EKPNumber] = rec.Clone()
	s.order = append(s.order, rec.EKPNumber)
	return true, nil
}

func (s *MemStore) Delete(ctx context.Context, ekp string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.records[ekp]; !ok {
		return false, nil
	}
	delete(s.records, ekp)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == ekp })
	return true, nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.records), nil
}

func (s *MemStore) SportNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	var names []string
	for _, r := range s.records {
		if r.SportName == "" {
			continue
		}
		if _, ok := seen[r.SportName]; ok {
			continue
		}
		seen[r.SportName] = struct{}{}
		names = append(names, r.SportName)
	}
	slices.Sort(names)
	return names, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
