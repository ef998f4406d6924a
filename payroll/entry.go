/*
Package payroll owns the canonical sale-entry store model, the payroll
batch aggregates built from it, and the settlement state machine that keeps
the two consistent.

PURPOSE:
  Extract reconciliation upserts SaleEntry rows (one per customer order, or
  per order+service on channels that sell per service), resolves commissions
  for each, and aggregates them into PayrollLine rows grouped under a
  PayrollBatch. Later, user-issued paid/unpaid toggles flow through the
  Settlement reconciler, which cascades between lines, their entries, and
  linked adjustment records.

KEY CONCEPTS IN THIS FILE (entry.go):
  - SaleEntry: Canonical record of one sale, with two independent
    settlement flags (frontend, backend)
  - EntryRef: Tagged reference to an entry; the tag says which channel's
    entry table the ID lives in, so lookups dispatch by kind instead of
    probing optional fields
  - Dimension: Which settlement flag an operation addresses
  - Overdue: Read-only derivation for backend entries past the payment window

SEE ALSO:
  - engine.go: Accumulation of matched sales into draft lines
  - settlement.go: The paid/unpaid cascade rules
  - store.go: Persistence interfaces
*/
package payroll

import (
	"time"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// SETTLEMENT DIMENSION
// =============================================================================

// Dimension names one of the two independent settlement flags carried by
// every entry and every line.
type Dimension string

const (
	DimensionFrontend Dimension = "frontend"
	DimensionBackend  Dimension = "backend"
)

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	return d == DimensionFrontend || d == DimensionBackend
}

// =============================================================================
// ENTRY REFERENCE - Tagged variant, resolved by kind dispatch
// =============================================================================

// RefKind tags which channel's entry namespace an EntryRef points into.
type RefKind string

const (
	RefNormal RefKind = "normal"
	RefFidium RefKind = "fidium"
)

// EntryRef references one canonical sale entry. The kind is explicit so
// consumers dispatch on it rather than on the presence of optional fields.
type EntryRef struct {
	Kind RefKind
	ID   string
}

// RefKindFor maps a channel to the entry namespace it stores into.
func RefKindFor(ch commission.ChannelID) RefKind {
	if ch == commission.ChannelFidium {
		return RefFidium
	}
	return RefNormal
}

// =============================================================================
// SALE ENTRY - Canonical record of one customer order
// =============================================================================

// SaleEntry is created and updated only by extract reconciliation, via an
// idempotent upsert keyed by the channel's identity key. Settlement flags
// are owned by the Settlement reconciler after creation; an upsert never
// resets them on an existing entry.
type SaleEntry struct {
	ID      string
	Channel commission.ChannelID

	OrderNumber string
	PlanName    string // extract vocabulary: internet speed / requested service

	CustomerName   string
	ServiceAddress string
	City           string
	State          string

	// Seller is the channel-specific identifier of the selling agent.
	Seller string

	SubmissionDate *time.Time
	InstallDate    *time.Time

	FrontendPaid bool
	BackendPaid  bool
}

// Key returns the entry's identity key under a channel's key shape.
func (e *SaleEntry) Key(ch commission.Channel) string {
	return ch.EntryKey(e.OrderNumber, e.PlanName)
}

// Ref returns the tagged reference to this entry.
func (e *SaleEntry) Ref() EntryRef {
	return EntryRef{Kind: RefKindFor(e.Channel), ID: e.ID}
}

// Paid reads the flag for one settlement dimension.
func (e *SaleEntry) Paid(d Dimension) bool {
	if d == DimensionBackend {
		return e.BackendPaid
	}
	return e.FrontendPaid
}

// SetPaid writes the flag for one settlement dimension.
func (e *SaleEntry) SetPaid(d Dimension, paid bool) {
	if d == DimensionBackend {
		e.BackendPaid = paid
	} else {
		e.FrontendPaid = paid
	}
}

// =============================================================================
// OVERDUE DERIVATION
// =============================================================================

// OverdueAfterDays is the backend payment window measured from install date.
const OverdueAfterDays = 90

// Overdue reports whether the entry's backend payment is past due at now,
// and by how many days beyond the window. Entries without an install date,
// or already backend-paid, are never overdue. Derived on read; no stored
// flag exists.
func (e *SaleEntry) Overdue(now time.Time) (bool, int) {
	if e.BackendPaid || e.InstallDate == nil {
		return false, 0
	}
	elapsed := int(now.Sub(*e.InstallDate).Hours() / 24)
	if elapsed <= OverdueAfterDays {
		return false, 0
	}
	return true, elapsed - OverdueAfterDays
}
