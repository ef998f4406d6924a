/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Payroll generation:
    POST   /api/payroll/normal         Reconcile normal extracts, save batch
    POST   /api/payroll/fidium         Reconcile fidium extract, save batch

  Batches:
    GET    /api/batches                List batches with settlement rollups
    GET    /api/batches/{id}/lines     Batch lines with entries and overdue
    PUT    /api/batches/{id}           Rename batch
    DELETE /api/batches/{id}           Delete batch (entries survive)

  Settlement:
    POST   /api/lines/{id}/paid        Toggle a line flag (cascades)
    POST   /api/lines/{id}/entries/paid Toggle one entry flag (reconciles line)

  Adjustments:
    GET    /api/adjustments            List adjustments
    POST   /api/adjustments            Create deduction/reimbursement
    PUT    /api/adjustments/{id}       Edit amount/type/reason
    DELETE /api/adjustments/{id}       Delete
    POST   /api/adjustments/{id}/complete  Manually settle against a line
    POST   /api/adjustments/{id}/reopen    Reopen (clears line link)

  Admin:
    POST   /api/admin/catalog          Load a JSON catalog definition

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 422: Reconciliation produced no payable lines
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - payroll/settlement.go: The cascade rules these handlers delegate to
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/extract"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/fidium"
	"github.com/warp/commission-engine/normal"
	"github.com/warp/commission-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the combined persistence surface the handlers need. Both the
// SQLite and the in-memory store satisfy it.
type Store interface {
	commission.CatalogStore
	payroll.EntryStore
	payroll.BatchStore
	payroll.AdjustmentStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store      Store
	writer     factory.CatalogWriter
	settlement *payroll.Settlement
	factory    *factory.CatalogFactory
}

// NewHandler creates a new handler over a store and its catalog write
// surface.
func NewHandler(store Store, writer factory.CatalogWriter) *Handler {
	return &Handler{
		store:      store,
		writer:     writer,
		settlement: payroll.NewSettlement(store, store, store),
		factory:    factory.NewCatalogFactory(),
	}
}

// =============================================================================
// PAYROLL GENERATION
// =============================================================================

// GenerateNormalPayroll reconciles the three normal-channel extracts and
// saves the result as a named batch.
// POST /api/payroll/normal
func (h *Handler) GenerateNormalPayroll(w http.ResponseWriter, r *http.Request) {
	var req GenerateNormalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Batch name is required", nil)
		return
	}

	rec := normal.NewReconciler(h.store, h.store)
	draft, err := rec.Reconcile(r.Context(), normal.Extracts{
		NewInstalls: toRecords(req.NewInstalls),
		Detail:      toRecords(req.Detail),
		Migrations:  toRecords(req.Migrations),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}

	h.saveDraft(w, r, req.Name, draft)
}

// GenerateFidiumPayroll reconciles the fidium extract and saves the result
// as a named batch.
// POST /api/payroll/fidium
func (h *Handler) GenerateFidiumPayroll(w http.ResponseWriter, r *http.Request) {
	var req GenerateFidiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Batch name is required", nil)
		return
	}

	rec := fidium.NewReconciler(h.store, h.store)
	draft, err := rec.Reconcile(r.Context(), toRecords(req.Rows))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}

	h.saveDraft(w, r, req.Name, draft)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request, name string, draft *payroll.Draft) {
	batch, lines, err := payroll.SaveDraft(r.Context(), h.store, name, draft)
	if err != nil {
		if err == payroll.ErrEmptyDraft {
			writeError(w, http.StatusUnprocessableEntity, "Reconciliation produced no payable lines", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save batch", err)
		return
	}

	dtos := make([]LineDTO, 0, len(lines))
	for _, line := range lines {
		dtos = append(dtos, toLineDTO(line, nil, time.Now().UTC()))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"batch": BatchDTO{
			ID:        string(batch.ID),
			Name:      batch.Name,
			CreatedAt: batch.CreatedAt.Format(time.RFC3339),
			Lines:     len(lines),
		},
		"lines": dtos,
	})
}

func toRecords(rows []map[string]string) []extract.Record {
	records := make([]extract.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, extract.Record(row))
	}
	return records
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatches returns all batches with their settlement rollups, newest
// first.
// GET /api/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.settlement.Summaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, 0, len(summaries))
	for _, s := range summaries {
		dtos = append(dtos, toBatchDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBatchLines returns a batch's lines joined with their entries. Loading
// runs the promote-only settlement repair.
// GET /api/batches/{id}/lines
func (h *Handler) GetBatchLines(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))

	lines, entries, err := h.settlement.LoadLines(r.Context(), id)
	if err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Batch not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load batch", err)
		return
	}

	now := time.Now().UTC()
	dtos := make([]LineDTO, 0, len(lines))
	for _, line := range lines {
		dtos = append(dtos, toLineDTO(line, entries, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RenameBatch updates a batch's display name.
// PUT /api/batches/{id}
func (h *Handler) RenameBatch(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))

	var req RenameBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Batch name is required", nil)
		return
	}

	if err := h.store.RenameBatch(r.Context(), id, req.Name); err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Batch not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to rename batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBatch removes a batch and its lines. Canonical entries survive.
// DELETE /api/batches/{id}
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))

	if err := h.store.DeleteBatch(r.Context(), id); err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Batch not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// SetLinePaid toggles one settlement flag on a line; the value cascades
// onto every constituent entry, and marking frontend paid auto-completes
// open linked adjustments.
// POST /api/lines/{id}/paid
func (h *Handler) SetLinePaid(w http.ResponseWriter, r *http.Request) {
	id := payroll.LineID(chi.URLParam(r, "id"))

	var req SetPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d := payroll.Dimension(req.Dimension)
	if !d.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown dimension (use frontend or backend)", nil)
		return
	}

	if err := h.settlement.ToggleLine(r.Context(), id, d, req.Paid); err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Line not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleEntryPaid toggles one settlement flag on a single entry of a line
// and re-derives the line flag from the conjunction of its entries.
// POST /api/lines/{id}/entries/paid
func (h *Handler) ToggleEntryPaid(w http.ResponseWriter, r *http.Request) {
	lineID := payroll.LineID(chi.URLParam(r, "id"))

	var req ToggleEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d := payroll.Dimension(req.Dimension)
	if !d.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown dimension (use frontend or backend)", nil)
		return
	}
	kind := payroll.RefKind(req.Kind)
	if kind != payroll.RefNormal && kind != payroll.RefFidium {
		writeError(w, http.StatusBadRequest, "Unknown entry kind (use normal or fidium)", nil)
		return
	}

	ref := payroll.EntryRef{Kind: kind, ID: req.EntryID}
	if err := h.settlement.ToggleEntry(r.Context(), lineID, ref, d, req.Paid); err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Line or entry not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// ListAdjustments returns all adjustments, newest first.
// GET /api/adjustments
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	adjustments, err := h.store.ListAdjustments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list adjustments", err)
		return
	}

	dtos := make([]AdjustmentDTO, 0, len(adjustments))
	for _, a := range adjustments {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment creates a deduction or reimbursement, optionally linked
// to a payroll line up front.
// POST /api/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	adjType, amount, ok := h.validateAdjustment(w, req.Type, req.Amount)
	if !ok {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required", nil)
		return
	}

	a := payroll.Adjustment{
		ID:        payroll.AdjustmentID(uuid.NewString()),
		AgentID:   commission.AgentID(req.AgentID),
		Type:      adjType,
		Reason:    req.Reason,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if req.LineID != nil && *req.LineID != "" {
		lineID := payroll.LineID(*req.LineID)
		if _, err := h.store.GetLine(r.Context(), lineID); err != nil {
			writeError(w, http.StatusNotFound, "Line not found", nil)
			return
		}
		a.LineID = &lineID
	}

	if err := h.store.InsertAdjustment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(a))
}

// UpdateAdjustment rewrites an adjustment's user-editable fields.
// PUT /api/adjustments/{id}
func (h *Handler) UpdateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := payroll.AdjustmentID(chi.URLParam(r, "id"))

	var req UpdateAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	adjType, amount, ok := h.validateAdjustment(w, req.Type, req.Amount)
	if !ok {
		return
	}

	a, err := h.store.GetAdjustment(r.Context(), id)
	if err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Adjustment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load adjustment", err)
		return
	}

	a.Type = adjType
	a.Reason = req.Reason
	a.Amount = amount
	if err := h.store.UpdateAdjustment(r.Context(), *a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*a))
}

// DeleteAdjustment removes an adjustment.
// DELETE /api/adjustments/{id}
func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id := payroll.AdjustmentID(chi.URLParam(r, "id"))

	if err := h.store.DeleteAdjustment(r.Context(), id); err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Adjustment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete adjustment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteAdjustment manually settles an adjustment against a line.
// POST /api/adjustments/{id}/complete
func (h *Handler) CompleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id := payroll.AdjustmentID(chi.URLParam(r, "id"))

	var req CompleteAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LineID == "" {
		writeError(w, http.StatusBadRequest, "line_id is required", nil)
		return
	}
	lineID := payroll.LineID(req.LineID)
	if _, err := h.store.GetLine(r.Context(), lineID); err != nil {
		writeError(w, http.StatusNotFound, "Line not found", nil)
		return
	}

	a, err := h.store.GetAdjustment(r.Context(), id)
	if err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Adjustment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load adjustment", err)
		return
	}

	a.Complete(lineID, time.Now().UTC())
	if err := h.store.UpdateAdjustment(r.Context(), *a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to complete adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*a))
}

// ReopenAdjustment reopens a completed adjustment and clears its line link.
// POST /api/adjustments/{id}/reopen
func (h *Handler) ReopenAdjustment(w http.ResponseWriter, r *http.Request) {
	id := payroll.AdjustmentID(chi.URLParam(r, "id"))

	a, err := h.store.GetAdjustment(r.Context(), id)
	if err != nil {
		if payroll.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Adjustment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load adjustment", err)
		return
	}

	a.Reopen()
	if err := h.store.UpdateAdjustment(r.Context(), *a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reopen adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*a))
}

func (h *Handler) validateAdjustment(w http.ResponseWriter, adjType, amount string) (payroll.AdjustmentType, decimal.Decimal, bool) {
	t := payroll.AdjustmentType(adjType)
	if t != payroll.AdjustmentDeduction && t != payroll.AdjustmentReimbursement {
		writeError(w, http.StatusBadRequest, "Unknown type (use deduction or reimbursement)", nil)
		return "", decimal.Zero, false
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return "", decimal.Zero, false
	}
	if d.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must not be negative", nil)
		return "", decimal.Zero, false
	}
	return t, d, true
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// LoadCatalog loads a JSON catalog definition into the store.
// POST /api/admin/catalog
func (h *Handler) LoadCatalog(w http.ResponseWriter, r *http.Request) {
	var cj factory.CatalogJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog JSON", err)
		return
	}

	if err := h.factory.FromJSON(cj, h.writer); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load catalog", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
