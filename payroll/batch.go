package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID string
type LineID string

// =============================================================================
// PAYROLL BATCH - One saved reconciliation run
// =============================================================================

type PayrollBatch struct {
	ID        BatchID
	Name      string
	CreatedAt time.Time
}

// =============================================================================
// PAYROLL LINE - One agent's aggregate within a batch
// =============================================================================

// LineDetail is one constituent of a line: a reference to the canonical
// entry plus the personal commission it contributed. The settlement
// reconciler tests the paid invariant over this decomposition.
type LineDetail struct {
	Ref                EntryRef
	PersonalCommission decimal.Decimal
	IsUpgrade          bool
}

// PayrollLine aggregates one agent's earnings in a batch. Totals are fixed
// at creation; only the settlement flags mutate afterwards.
type PayrollLine struct {
	ID      LineID
	BatchID BatchID
	AgentID commission.AgentID
	Name    string
	Channel commission.ChannelID

	Accounts      int
	PersonalTotal decimal.Decimal
	ManagerTotal  decimal.Decimal
	GrandTotal    decimal.Decimal

	// Upfront/backend split of the PERSONAL total, per the agent's personal
	// payscale. Nil when the agent has no split configured; manager totals
	// are never split.
	UpfrontPercentage *decimal.Decimal
	BackendPercentage *decimal.Decimal
	UpfrontValue      *decimal.Decimal
	BackendValue      *decimal.Decimal

	FrontendIsPaid bool
	BackendIsPaid  bool

	Details []LineDetail
}

// IsPaid reads the line flag for one settlement dimension.
func (l *PayrollLine) IsPaid(d Dimension) bool {
	if d == DimensionBackend {
		return l.BackendIsPaid
	}
	return l.FrontendIsPaid
}

// SetPaid writes the line flag for one settlement dimension.
func (l *PayrollLine) SetPaid(d Dimension, paid bool) {
	if d == DimensionBackend {
		l.BackendIsPaid = paid
	} else {
		l.FrontendIsPaid = paid
	}
}

// Refs returns the entry references of all line details.
func (l *PayrollLine) Refs() []EntryRef {
	refs := make([]EntryRef, 0, len(l.Details))
	for _, d := range l.Details {
		refs = append(refs, d.Ref)
	}
	return refs
}

// =============================================================================
// DRAFT - An unsaved reconciliation result
// =============================================================================

// Draft is the payroll produced by one reconciliation run before anything is
// persisted. A caller either saves it under a batch name or discards it;
// discarding is always safe because entry upserts are idempotent.
type Draft struct {
	Channel commission.ChannelID
	Lines   []PayrollLine
}
