package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/normal"
	"github.com/warp/commission-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const sellerField = "100: Pat Seller"

type testAPI struct {
	store  *memory.Store
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	return &testAPI{
		store:  store,
		router: api.NewRouter(api.NewHandler(store, store)),
	}
}

// seedCatalog configures one seller earning 50 per "1 Gig" sale.
func (a *testAPI) seedCatalog(t *testing.T) {
	t.Helper()
	psID := commission.PayscaleID("ps-1")
	require.NoError(t, a.store.PutPayscale(commission.Payscale{
		ID: psID, Name: "Standard", Role: commission.RolePersonal, Channel: commission.ChannelNormal,
	}))
	require.NoError(t, a.store.PutAgent(commission.Agent{
		ID: "agent-1", Name: "Pat Seller", Identifier: sellerField, PersonalPayscaleID: &psID,
	}))
	require.NoError(t, a.store.PutPlan(commission.Plan{
		ID: "plan-gig", Name: "1 Gig", Channel: commission.ChannelNormal,
	}))
	require.NoError(t, a.store.PutBaseRate(psID, "plan-gig",
		commission.RateValue{Base: commission.MustDecimal("50")}))
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func normalPayrollRequest(name string, orders ...string) api.GenerateNormalRequest {
	req := api.GenerateNormalRequest{Name: name}
	for _, order := range orders {
		req.NewInstalls = append(req.NewInstalls, map[string]string{
			normal.HeaderOrderID:  order,
			normal.HeaderPlanName: "Fiber 1G Promo",
			normal.HeaderPayout:   "$120.00",
		})
		req.Detail = append(req.Detail, map[string]string{
			normal.HeaderOrderNumber:    order,
			normal.HeaderInternetSpeed:  "1 Gig",
			normal.HeaderSeller:         sellerField,
			normal.HeaderCustomerName:   "Casey Customer",
			normal.HeaderSubmissionDate: "03/15/25",
			normal.HeaderInstallDate:    "03/20/25",
		})
	}
	return req
}

type saveResponse struct {
	Batch api.BatchDTO  `json:"batch"`
	Lines []api.LineDTO `json:"lines"`
}

// generateBatch runs one normal payroll and returns the saved batch and lines.
func (a *testAPI) generateBatch(t *testing.T, name string, orders ...string) saveResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/payroll/normal", normalPayrollRequest(name, orders...))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[saveResponse](t, rec)
}

// =============================================================================
// PAYROLL GENERATION TESTS
// =============================================================================

func TestGenerateNormalPayroll(t *testing.T) {
	// GIVEN: A seeded catalog and two matched extract rows
	// WHEN: POSTing the extracts
	// THEN: 201 with the saved batch and one line totalling 100

	a := newTestAPI(t)
	a.seedCatalog(t)

	resp := a.generateBatch(t, "June 2025", "o-1", "o-2")
	assert.Equal(t, "June 2025", resp.Batch.Name)
	assert.NotEmpty(t, resp.Batch.ID)
	assert.Equal(t, 1, resp.Batch.Lines)

	require.Len(t, resp.Lines, 1)
	line := resp.Lines[0]
	assert.Equal(t, "Pat Seller", line.Name)
	assert.Equal(t, 2, line.Accounts)
	assert.Equal(t, "100", line.PersonalTotal)
	assert.Len(t, line.Details, 2)
}

func TestGenerateNormalPayroll_MissingName(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payroll/normal", api.GenerateNormalRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateNormalPayroll_NothingPayable(t *testing.T) {
	// GIVEN: A bare catalog so no sale resolves to a line
	// WHEN: POSTing extracts
	// THEN: 422, nothing saved

	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payroll/normal", normalPayrollRequest("Empty", "o-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	list := a.do(t, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]api.BatchDTO](t, list))
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestListBatches_WithRollups(t *testing.T) {
	// GIVEN: A saved batch
	// WHEN: Listing batches
	// THEN: The summary carries line counts and paid percentages

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	batches := decode[[]api.BatchDTO](t, rec)
	require.Len(t, batches, 1)
	assert.Equal(t, saved.Batch.ID, batches[0].ID)
	assert.Equal(t, 1, batches[0].Lines)
	assert.Equal(t, 0.0, batches[0].FrontendPaidPct)
}

func TestGetBatchLines_JoinsEntries(t *testing.T) {
	// GIVEN: A saved batch
	// WHEN: Loading its lines
	// THEN: Details are joined with the canonical entry's customer facts

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodGet, "/api/batches/"+saved.Batch.ID+"/lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := decode[[]api.LineDTO](t, rec)
	require.Len(t, lines, 1)
	require.Len(t, lines[0].Details, 1)
	detail := lines[0].Details[0]
	assert.Equal(t, "normal", detail.Kind)
	assert.Equal(t, "o-1", detail.OrderNumber)
	assert.Equal(t, "Casey Customer", detail.CustomerName)
	assert.Equal(t, "50", detail.Commission)
	assert.False(t, detail.FrontendPaid)
}

func TestGetBatchLines_UnknownBatch(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/batches/ghost/lines", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenameAndDeleteBatch(t *testing.T) {
	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodPut, "/api/batches/"+saved.Batch.ID, api.RenameBatchRequest{Name: "June final"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	list := decode[[]api.BatchDTO](t, a.do(t, http.MethodGet, "/api/batches", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "June final", list[0].Name)

	rec = a.do(t, http.MethodDelete, "/api/batches/"+saved.Batch.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/batches/"+saved.Batch.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestSetLinePaid_CascadesToEntries(t *testing.T) {
	// GIVEN: A saved batch
	// WHEN: Marking its line's frontend paid
	// THEN: Reloading the lines shows line and entry flags set

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")
	lineID := saved.Lines[0].ID

	rec := a.do(t, http.MethodPost, "/api/lines/"+lineID+"/paid",
		api.SetPaidRequest{Dimension: "frontend", Paid: true})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	lines := decode[[]api.LineDTO](t, a.do(t, http.MethodGet, "/api/batches/"+saved.Batch.ID+"/lines", nil))
	require.Len(t, lines, 1)
	assert.True(t, lines[0].FrontendIsPaid)
	require.Len(t, lines[0].Details, 1)
	assert.True(t, lines[0].Details[0].FrontendPaid)
}

func TestSetLinePaid_UnknownDimension(t *testing.T) {
	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodPost, "/api/lines/"+saved.Lines[0].ID+"/paid",
		api.SetPaidRequest{Dimension: "sideways", Paid: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleEntryPaid_ReconcilesLine(t *testing.T) {
	// GIVEN: A batch whose line has one entry
	// WHEN: Paying that entry individually
	// THEN: The line flag promotes to paid

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")
	line := saved.Lines[0]
	require.Len(t, line.Details, 1)

	rec := a.do(t, http.MethodPost, "/api/lines/"+line.ID+"/entries/paid", api.ToggleEntryRequest{
		Kind: "normal", EntryID: line.Details[0].EntryID, Dimension: "frontend", Paid: true,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	lines := decode[[]api.LineDTO](t, a.do(t, http.MethodGet, "/api/batches/"+saved.Batch.ID+"/lines", nil))
	assert.True(t, lines[0].FrontendIsPaid)
}

func TestToggleEntryPaid_UnknownKind(t *testing.T) {
	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodPost, "/api/lines/"+saved.Lines[0].ID+"/entries/paid", api.ToggleEntryRequest{
		Kind: "mystery", EntryID: "x", Dimension: "frontend", Paid: true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleEntryPaid_EntryNotOnLine(t *testing.T) {
	// GIVEN: A line and an entry reference it does not contain
	// WHEN: Toggling that reference through the line
	// THEN: 404, and no entry flag is written

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")

	rec := a.do(t, http.MethodPost, "/api/lines/"+saved.Lines[0].ID+"/entries/paid", api.ToggleEntryRequest{
		Kind: "normal", EntryID: "not-on-this-line", Dimension: "frontend", Paid: true,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	lines := decode[[]api.LineDTO](t, a.do(t, http.MethodGet, "/api/batches/"+saved.Batch.ID+"/lines", nil))
	assert.False(t, lines[0].FrontendIsPaid)
	assert.False(t, lines[0].Details[0].FrontendPaid)
}

// =============================================================================
// ADJUSTMENT TESTS
// =============================================================================

func TestAdjustments_CreateCompleteReopen(t *testing.T) {
	// GIVEN: A saved batch with a line
	// WHEN: Creating an adjustment, completing it against the line, and
	//       reopening it
	// THEN: Each response reflects the lifecycle state

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")
	lineID := saved.Lines[0].ID

	rec := a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		AgentID: "agent-1", Type: "deduction", Reason: "Equipment return", Amount: "25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.AdjustmentDTO](t, rec)
	assert.Equal(t, "25", created.Amount)
	assert.Equal(t, "-25", created.SignedAmount)
	assert.False(t, created.IsCompleted)

	rec = a.do(t, http.MethodPost, "/api/adjustments/"+created.ID+"/complete",
		api.CompleteAdjustmentRequest{LineID: lineID})
	require.Equal(t, http.StatusOK, rec.Code)
	completed := decode[api.AdjustmentDTO](t, rec)
	assert.True(t, completed.IsCompleted)
	require.NotNil(t, completed.LineID)
	assert.Equal(t, lineID, *completed.LineID)
	assert.NotNil(t, completed.CompletedAt)

	rec = a.do(t, http.MethodPost, "/api/adjustments/"+created.ID+"/reopen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reopened := decode[api.AdjustmentDTO](t, rec)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.LineID)
}

func TestAdjustments_Validation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		AgentID: "agent-1", Type: "bonus", Amount: "25",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown type")

	rec = a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		AgentID: "agent-1", Type: "deduction", Amount: "-5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "negative amount")

	rec = a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		Type: "deduction", Amount: "5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing agent")

	ghost := "ghost-line"
	rec = a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		AgentID: "agent-1", Type: "deduction", Amount: "5", LineID: &ghost,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown line link")
}

func TestAdjustments_AutoCompleteOnLineFrontendPaid(t *testing.T) {
	// GIVEN: An open adjustment linked to a line
	// WHEN: Marking the line's frontend paid over the API
	// THEN: The adjustment shows completed afterwards

	a := newTestAPI(t)
	a.seedCatalog(t)
	saved := a.generateBatch(t, "June 2025", "o-1")
	lineID := saved.Lines[0].ID

	rec := a.do(t, http.MethodPost, "/api/adjustments", api.CreateAdjustmentRequest{
		AgentID: "agent-1", Type: "deduction", Amount: "10", LineID: &lineID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/lines/"+lineID+"/paid",
		api.SetPaidRequest{Dimension: "frontend", Paid: true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	all := decode[[]api.AdjustmentDTO](t, a.do(t, http.MethodGet, "/api/adjustments", nil))
	require.Len(t, all, 1)
	assert.True(t, all[0].IsCompleted)
}

// =============================================================================
// ADMIN TESTS
// =============================================================================

func TestLoadCatalog_ThenGenerate(t *testing.T) {
	// GIVEN: A catalog loaded through the admin endpoint
	// WHEN: Generating a payroll referencing it
	// THEN: The loaded rates resolve

	a := newTestAPI(t)

	catalog := map[string]any{
		"channel": "normal",
		"payscales": []map[string]any{
			{"id": "ps-1", "name": "Standard", "role": "personal",
				"rates": []map[string]any{{"plan": "1 Gig", "base": 50}}},
		},
		"agents": []map[string]any{
			{"id": "agent-1", "name": "Pat Seller", "identifier": sellerField,
				"personal_payscale": "ps-1"},
		},
	}
	rec := a.do(t, http.MethodPost, "/api/admin/catalog", catalog)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	resp := a.generateBatch(t, "June 2025", "o-1")
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "50", resp.Lines[0].PersonalTotal)
}

func TestLoadCatalog_UnknownChannel(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/admin/catalog", map[string]any{"channel": "retail"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
