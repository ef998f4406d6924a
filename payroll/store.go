/*
store.go - Persistence interfaces for entries, batches, and adjustments

PURPOSE:
  Defines the boundary between the payroll domain and the record store.
  The store provides per-call atomicity but NO cross-call transaction: a
  crash between entry upserts and line inserts leaves orphaned entries,
  which is acceptable, recoverable-by-rerun state because upserts are
  idempotent. Multi-write operations that must never expose a contradictory
  state (settlement toggles) order their writes so a partial failure leaves
  only the conservative "unpaid" misreading visible - see settlement.go.

UPSERT CONTRACT:
  UpsertEntries matches existing rows by the channel's identity key. New
  rows are inserted with fresh IDs; existing rows have their descriptive
  fields refreshed but their settlement flags PRESERVED. Re-running a
  reconciliation never duplicates entries and never un-pays anything.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for testing/dev

SEE ALSO:
  - commission/catalog.go: CatalogStore, the fourth persistence interface
*/
package payroll

import (
	"context"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// ENTRY STORE
// =============================================================================

type EntryStore interface {
	// UpsertEntries reconciles entries into the canonical store, keyed by
	// the channel's identity key. Returns the canonical entries (store IDs
	// assigned, existing settlement flags intact) in input order.
	UpsertEntries(ctx context.Context, ch commission.Channel, entries []SaleEntry) ([]SaleEntry, error)

	// GetEntries resolves tagged references. Unknown references are simply
	// absent from the result map.
	GetEntries(ctx context.Context, refs []EntryRef) (map[EntryRef]*SaleEntry, error)

	// SetEntriesPaid writes one settlement flag on every referenced entry.
	SetEntriesPaid(ctx context.Context, refs []EntryRef, d Dimension, paid bool) error
}

// =============================================================================
// BATCH STORE
// =============================================================================

type BatchStore interface {
	// InsertBatch persists a batch and its lines.
	InsertBatch(ctx context.Context, batch PayrollBatch, lines []PayrollLine) error

	// ListBatches returns all batches, newest first.
	ListBatches(ctx context.Context) ([]PayrollBatch, error)

	RenameBatch(ctx context.Context, id BatchID, name string) error

	// DeleteBatch removes a batch and its lines. Entries stay.
	DeleteBatch(ctx context.Context, id BatchID) error

	// LinesByBatch returns a batch's lines sorted by display name.
	LinesByBatch(ctx context.Context, id BatchID) ([]PayrollLine, error)

	GetLine(ctx context.Context, id LineID) (*PayrollLine, error)

	// SetLinePaid writes one settlement flag on a line.
	SetLinePaid(ctx context.Context, id LineID, d Dimension, paid bool) error
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

type AdjustmentStore interface {
	InsertAdjustment(ctx context.Context, a Adjustment) error
	UpdateAdjustment(ctx context.Context, a Adjustment) error
	DeleteAdjustment(ctx context.Context, id AdjustmentID) error
	GetAdjustment(ctx context.Context, id AdjustmentID) (*Adjustment, error)

	// ListAdjustments returns all adjustments, newest first.
	ListAdjustments(ctx context.Context) ([]Adjustment, error)

	// OpenAdjustmentsByLine returns the not-yet-completed adjustments
	// linked to a line.
	OpenAdjustmentsByLine(ctx context.Context, id LineID) ([]Adjustment, error)
}
