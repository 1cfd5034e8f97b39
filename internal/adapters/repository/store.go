// Package repository holds the competition record stores.
package repository

import (
	"context"

	"github.com/okian/ekpsearch/internal/domain/model"
)

// Store provides read/write access to competition records keyed by ekp number.
type Store interface {
	// FetchAll returns a full snapshot of the corpus.
	FetchAll(ctx context.Context) ([]model.CompetitionRecord, error)

	// FetchByKey returns one record.
	// Returns ErrNotFound if the ekp number is unknown.
	FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error)

	// Insert adds rec unless its ekp number is already stored.
	// Returns true if the store inserted the record, false otherwise.
	Insert(ctx context.Context, rec model.CompetitionRecord) (bool, error)

	// Delete removes a record. Returns false if it was not stored.
	Delete(ctx context.Context, ekp string) (bool, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// SportNames returns the distinct non-empty sport names, sorted.
	SportNames(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
