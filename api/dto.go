/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Decimal amounts are rendered as strings ("123.45"), never floats, so
  clients round-trip them without precision loss.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CatalogJSON type accepted by the admin surface
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/payroll"
)

// =============================================================================
// PAYROLL GENERATION
// =============================================================================

// GenerateNormalRequest carries the three extracts of one normal-channel
// reconciliation run, each as parsed rows keyed by header name.
type GenerateNormalRequest struct {
	Name        string              `json:"name"`
	NewInstalls []map[string]string `json:"new_installs"`
	Detail      []map[string]string `json:"detail"`
	Migrations  []map[string]string `json:"migrations,omitempty"`
}

// GenerateFidiumRequest carries the single fidium extract.
type GenerateFidiumRequest struct {
	Name string              `json:"name"`
	Rows []map[string]string `json:"rows"`
}

// =============================================================================
// BATCHES AND LINES
// =============================================================================

// BatchDTO represents a payroll batch in API responses.
type BatchDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`

	Lines           int     `json:"lines,omitempty"`
	FrontendPaidPct float64 `json:"frontend_paid_pct"`
	BackendPaidPct  float64 `json:"backend_paid_pct"`
	OverdueEntries  int     `json:"overdue_entries"`
}

// RenameBatchRequest renames a batch.
type RenameBatchRequest struct {
	Name string `json:"name"`
}

// LineDTO represents one agent's payroll line.
type LineDTO struct {
	ID      string `json:"id"`
	BatchID string `json:"batch_id"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Channel string `json:"channel"`

	Accounts      int    `json:"accounts"`
	PersonalTotal string `json:"personal_total"`
	ManagerTotal  string `json:"manager_total"`
	GrandTotal    string `json:"grand_total"`

	UpfrontPercentage *string `json:"upfront_percentage,omitempty"`
	BackendPercentage *string `json:"backend_percentage,omitempty"`
	UpfrontValue      *string `json:"upfront_value,omitempty"`
	BackendValue      *string `json:"backend_value,omitempty"`

	FrontendIsPaid bool `json:"frontend_is_paid"`
	BackendIsPaid  bool `json:"backend_is_paid"`

	Details []LineDetailDTO `json:"details"`
}

// LineDetailDTO is one constituent entry of a line, joined with the
// canonical entry record and its overdue derivation.
type LineDetailDTO struct {
	Kind       string `json:"kind"`
	EntryID    string `json:"entry_id"`
	Commission string `json:"commission"`
	IsUpgrade  bool   `json:"is_upgrade,omitempty"`

	OrderNumber    string `json:"order_number,omitempty"`
	PlanName       string `json:"plan_name,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	ServiceAddress string `json:"service_address,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	SubmissionDate string `json:"submission_date,omitempty"`
	InstallDate    string `json:"install_date,omitempty"`

	FrontendPaid bool `json:"frontend_paid"`
	BackendPaid  bool `json:"backend_paid"`

	Overdue     bool `json:"overdue"`
	OverdueDays int  `json:"overdue_days,omitempty"`
}

// SetPaidRequest sets one settlement flag on a line or entry.
type SetPaidRequest struct {
	Dimension string `json:"dimension"` // frontend, backend
	Paid      bool   `json:"paid"`
}

// ToggleEntryRequest sets one settlement flag on a single entry of a line.
type ToggleEntryRequest struct {
	Kind      string `json:"kind"` // normal, fidium
	EntryID   string `json:"entry_id"`
	Dimension string `json:"dimension"`
	Paid      bool   `json:"paid"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentDTO represents a deduction or reimbursement.
type AdjustmentDTO struct {
	ID            string  `json:"id"`
	AgentID       string  `json:"agent_id"`
	Type          string  `json:"type"`
	Reason        string  `json:"reason,omitempty"`
	Amount        string  `json:"amount"`
	SignedAmount  string  `json:"signed_amount"`
	LineID        *string `json:"line_id,omitempty"`
	IsCompleted   bool    `json:"is_completed"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// CreateAdjustmentRequest creates an adjustment, optionally pre-linked to a
// payroll line.
type CreateAdjustmentRequest struct {
	AgentID string  `json:"agent_id"`
	Type    string  `json:"type"` // deduction, reimbursement
	Reason  string  `json:"reason,omitempty"`
	Amount  string  `json:"amount"`
	LineID  *string `json:"line_id,omitempty"`
}

// UpdateAdjustmentRequest rewrites an adjustment's user-editable fields.
type UpdateAdjustmentRequest struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
	Amount string `json:"amount"`
}

// CompleteAdjustmentRequest manually settles an adjustment against a line.
type CompleteAdjustmentRequest struct {
	LineID string `json:"line_id"`
}

// =============================================================================
// SHARED
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBatchDTO(s payroll.BatchSummary) BatchDTO {
	return BatchDTO{
		ID:              string(s.Batch.ID),
		Name:            s.Batch.Name,
		CreatedAt:       s.Batch.CreatedAt.Format(time.RFC3339),
		Lines:           s.Lines,
		FrontendPaidPct: s.FrontendPaidPct,
		BackendPaidPct:  s.BackendPaidPct,
		OverdueEntries:  s.OverdueEntries,
	}
}

func toLineDTO(line payroll.PayrollLine, entries map[payroll.EntryRef]*payroll.SaleEntry, now time.Time) LineDTO {
	dto := LineDTO{
		ID:                string(line.ID),
		BatchID:           string(line.BatchID),
		AgentID:           string(line.AgentID),
		Name:              line.Name,
		Channel:           string(line.Channel),
		Accounts:          line.Accounts,
		PersonalTotal:     line.PersonalTotal.String(),
		ManagerTotal:      line.ManagerTotal.String(),
		GrandTotal:        line.GrandTotal.String(),
		UpfrontPercentage: decimalString(line.UpfrontPercentage),
		BackendPercentage: decimalString(line.BackendPercentage),
		UpfrontValue:      decimalString(line.UpfrontValue),
		BackendValue:      decimalString(line.BackendValue),
		FrontendIsPaid:    line.FrontendIsPaid,
		BackendIsPaid:     line.BackendIsPaid,
		Details:           make([]LineDetailDTO, 0, len(line.Details)),
	}
	for _, d := range line.Details {
		detail := LineDetailDTO{
			Kind:       string(d.Ref.Kind),
			EntryID:    d.Ref.ID,
			Commission: d.PersonalCommission.String(),
			IsUpgrade:  d.IsUpgrade,
		}
		if e, ok := entries[d.Ref]; ok {
			detail.OrderNumber = e.OrderNumber
			detail.PlanName = e.PlanName
			detail.CustomerName = e.CustomerName
			detail.ServiceAddress = e.ServiceAddress
			detail.City = e.City
			detail.State = e.State
			detail.SubmissionDate = dateString(e.SubmissionDate)
			detail.InstallDate = dateString(e.InstallDate)
			detail.FrontendPaid = e.FrontendPaid
			detail.BackendPaid = e.BackendPaid
			detail.Overdue, detail.OverdueDays = e.Overdue(now)
		}
		dto.Details = append(dto.Details, detail)
	}
	return dto
}

func toAdjustmentDTO(a payroll.Adjustment) AdjustmentDTO {
	dto := AdjustmentDTO{
		ID:           string(a.ID),
		AgentID:      string(a.AgentID),
		Type:         string(a.Type),
		Reason:       a.Reason,
		Amount:       a.Amount.String(),
		SignedAmount: a.SignedAmount().String(),
		IsCompleted:  a.IsCompleted,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if a.LineID != nil {
		id := string(*a.LineID)
		dto.LineID = &id
	}
	if a.CompletedAt != nil {
		at := a.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &at
	}
	return dto
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
