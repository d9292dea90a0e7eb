// Package repository stores provenance records for audit queries.
package repository

import (
	"context"

	"github.com/minkalla/valyze/internal/domain/model"
)

// Ledger is an append-only store of provenance records.
type Ledger interface {
	// Append stores a provenance record.
	Append(ctx context.Context, p model.Provenance) error

	// ByDataID returns up to limit records for dataID, newest first.
	// Returns ErrInvalidLimit if limit < 1.
	ByDataID(ctx context.Context, dataID string, limit int) ([]model.Provenance, error)

	// Count returns the number of records held.
	Count(ctx context.Context) (int, error)

	// Close releases resources. Appends after Close fail with ErrClosed.
	Close() error
}
