package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// ADJUSTMENT - Deduction or reimbursement against an agent's payout
// =============================================================================

type AdjustmentID string

type AdjustmentType string

const (
	AdjustmentDeduction     AdjustmentType = "deduction"
	AdjustmentReimbursement AdjustmentType = "reimbursement"
)

// Adjustment is a user-created correction to an agent's payout. It may be
// linked to the payroll line it settles against; linking happens either
// manually or as a side effect of marking that line's frontend paid.
// Completion is one-way from the settlement cascade: toggling a line back
// to unpaid never reopens adjustments.
type Adjustment struct {
	ID      AdjustmentID
	AgentID commission.AgentID
	Type    AdjustmentType
	Reason  string
	Amount  decimal.Decimal

	LineID      *LineID
	IsCompleted bool
	CompletedAt *time.Time

	CreatedAt time.Time
}

// SignedAmount applies the category sign: deductions subtract from the
// payout, reimbursements add to it.
func (a *Adjustment) SignedAmount() decimal.Decimal {
	if a.Type == AdjustmentDeduction {
		return a.Amount.Neg()
	}
	return a.Amount
}

// Complete marks the adjustment settled against a line, stamping the time.
func (a *Adjustment) Complete(line LineID, at time.Time) {
	a.LineID = &line
	a.IsCompleted = true
	a.CompletedAt = &at
}

// Reopen clears completion and the line link.
func (a *Adjustment) Reopen() {
	a.LineID = nil
	a.IsCompleted = false
	a.CompletedAt = nil
}
