package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/store/memory"
)

// =============================================================================
// TEST CHANNEL AND FIXTURES
// =============================================================================

type testChannel struct{}

func (testChannel) ID() commission.ChannelID        { return commission.ChannelNormal }
func (testChannel) HasUpgradeRates() bool           { return true }
func (testChannel) EntryKey(order, _ string) string { return order }

const (
	sellerID  commission.AgentID    = "agent-1"
	managerID commission.AgentID    = "manager-1"
	gigPlan   commission.PlanID     = "plan-gig"
	psSeller  commission.PayscaleID = "ps-seller"
	psBoss    commission.PayscaleID = "ps-boss"
)

func dec(s string) decimal.Decimal { return commission.MustDecimal(s) }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// engineCatalog builds a seller earning 50 per gig sale, managed by a
// manager earning 75, with a 60/40 upfront/backend split on the seller.
func engineCatalog() *commission.Catalog {
	cat := commission.NewCatalog(commission.ChannelNormal)

	personal := psSeller
	boss := psBoss
	upfront := dec("60")
	backend := dec("40")

	cat.AddAgent(&commission.Agent{
		ID:                 sellerID,
		Name:               "Pat Seller",
		Identifier:         "100",
		PersonalPayscaleID: &personal,
	})
	cat.AddAgent(&commission.Agent{
		ID:                managerID,
		Name:              "Mo Manager",
		Identifier:        "200",
		IsManager:         true,
		ManagerPayscaleID: &boss,
	})
	cat.Managers[sellerID] = managerID

	cat.AddPlan(&commission.Plan{ID: gigPlan, Name: "1 Gig", Channel: commission.ChannelNormal})

	cat.Payscales[psSeller] = &commission.Payscale{
		ID: psSeller, Role: commission.RolePersonal, Channel: commission.ChannelNormal,
		UpfrontPercentage: &upfront, BackendPercentage: &backend,
	}
	cat.Payscales[psBoss] = &commission.Payscale{ID: psBoss, Role: commission.RoleManager, Channel: commission.ChannelNormal}

	cat.BaseRates[commission.RateKey{Payscale: psSeller, Plan: gigPlan}] = commission.RateValue{Base: dec("50"), Upgrade: dec("25")}
	cat.BaseRates[commission.RateKey{Payscale: psBoss, Plan: gigPlan}] = commission.RateValue{Base: dec("75")}

	return cat
}

func gigSale(order, seller string) payroll.MatchedSale {
	return payroll.MatchedSale{
		Entry: &payroll.SaleEntry{
			ID:          "entry-" + order,
			Channel:     commission.ChannelNormal,
			OrderNumber: order,
			PlanName:    "1 Gig",
		},
		Seller:   seller,
		PlanName: "1 Gig",
		SaleDate: datePtr(2025, time.June, 1),
	}
}

func lineFor(t *testing.T, d *payroll.Draft, agent commission.AgentID) *payroll.PayrollLine {
	t.Helper()
	for i := range d.Lines {
		if d.Lines[i].AgentID == agent {
			return &d.Lines[i]
		}
	}
	t.Fatalf("no line for agent %s", agent)
	return nil
}

// =============================================================================
// DRAFT BUILDING TESTS
// =============================================================================

func TestBuildDraft_PersonalAndManagerAccumulation(t *testing.T) {
	// GIVEN: Two gig sales by the seller
	// WHEN: Building the draft
	// THEN: The seller's line has 2 accounts and 100 personal; the manager's
	//       line carries 150 manager earnings with zero accounts

	cat := engineCatalog()
	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
		gigSale("o-2", "100"),
	})

	require.Len(t, draft.Lines, 2)

	seller := lineFor(t, draft, sellerID)
	assert.Equal(t, 2, seller.Accounts)
	assert.True(t, seller.PersonalTotal.Equal(dec("100")), "got %s", seller.PersonalTotal)
	assert.True(t, seller.ManagerTotal.IsZero())
	assert.True(t, seller.GrandTotal.Equal(dec("100")))
	assert.Len(t, seller.Details, 2)

	boss := lineFor(t, draft, managerID)
	assert.Equal(t, 0, boss.Accounts)
	assert.True(t, boss.ManagerTotal.Equal(dec("150")), "got %s", boss.ManagerTotal)
	assert.True(t, boss.GrandTotal.Equal(dec("150")))
}

func TestBuildDraft_UpfrontBackendSplit(t *testing.T) {
	// GIVEN: A seller with a 60/40 split earning 100 personal
	// WHEN: Building the draft
	// THEN: Upfront and backend values split the PERSONAL total only

	cat := engineCatalog()
	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
		gigSale("o-2", "100"),
	})

	seller := lineFor(t, draft, sellerID)
	require.NotNil(t, seller.UpfrontValue)
	require.NotNil(t, seller.BackendValue)
	assert.True(t, seller.UpfrontValue.Equal(dec("60")), "got %s", seller.UpfrontValue)
	assert.True(t, seller.BackendValue.Equal(dec("40")), "got %s", seller.BackendValue)

	// The manager has no split configured; totals are never split.
	boss := lineFor(t, draft, managerID)
	assert.Nil(t, boss.UpfrontValue)
	assert.Nil(t, boss.BackendValue)
}

func TestBuildDraft_SkipsUnresolvableRows(t *testing.T) {
	// GIVEN: Sales with a blank seller, an unknown seller, and an unknown plan
	// WHEN: Building the draft
	// THEN: All are silently skipped; no lines are produced

	cat := engineCatalog()

	unknownPlan := gigSale("o-3", "100")
	unknownPlan.PlanName = "10 Gig"

	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", ""),
		gigSale("o-2", "999"),
		unknownPlan,
	})

	assert.Empty(t, draft.Lines)
}

func TestBuildDraft_AgentWithoutPayscale_NotCountedButManagerPaid(t *testing.T) {
	// GIVEN: A seller with no personal payscale but a manager relation
	// WHEN: The seller's sale is processed
	// THEN: The seller emits no line (zero accounts, nothing earned) while
	//       the manager's line still accrues

	cat := engineCatalog()
	cat.Agents[sellerID].PersonalPayscaleID = nil

	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
	})

	require.Len(t, draft.Lines, 1)
	assert.Equal(t, managerID, draft.Lines[0].AgentID)
	assert.True(t, draft.Lines[0].ManagerTotal.Equal(dec("75")))
}

func TestBuildDraft_UpgradeSale_UsesUpgradeRate(t *testing.T) {
	// GIVEN: One regular and one upgrade sale
	// WHEN: Building the draft
	// THEN: The personal total is 50 + 25

	cat := engineCatalog()
	upgrade := gigSale("o-2", "100")
	upgrade.IsUpgrade = true

	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
		upgrade,
	})

	seller := lineFor(t, draft, sellerID)
	assert.True(t, seller.PersonalTotal.Equal(dec("75")), "got %s", seller.PersonalTotal)
	assert.True(t, seller.Details[1].IsUpgrade)
}

func TestBuildDraft_LinesSortedByName(t *testing.T) {
	// GIVEN: Sales producing lines for both agents
	// WHEN: Building the draft
	// THEN: Lines come out sorted by display name

	cat := engineCatalog()
	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
	})

	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "Mo Manager", draft.Lines[0].Name)
	assert.Equal(t, "Pat Seller", draft.Lines[1].Name)
}

// =============================================================================
// DRAFT SAVING TESTS
// =============================================================================

func TestSaveDraft_AssignsIDsAndPersists(t *testing.T) {
	// GIVEN: A draft with lines
	// WHEN: Saving it under a name
	// THEN: Batch and line IDs are assigned and the batch is listable

	store := memory.New()
	ctx := context.Background()

	cat := engineCatalog()
	draft := payroll.BuildDraft(cat, testChannel{}, []payroll.MatchedSale{
		gigSale("o-1", "100"),
	})

	batch, lines, err := payroll.SaveDraft(ctx, store, "June 2025", draft)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, "June 2025", batch.Name)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.NotEmpty(t, line.ID)
		assert.Equal(t, batch.ID, line.BatchID)
	}

	listed, err := store.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, batch.ID, listed[0].ID)

	stored, err := store.LinesByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSaveDraft_EmptyDraft_Refused(t *testing.T) {
	// GIVEN: A draft with no lines
	// WHEN: Saving it
	// THEN: ErrEmptyDraft, and no batch exists

	store := memory.New()
	ctx := context.Background()

	_, _, err := payroll.SaveDraft(ctx, store, "Empty", &payroll.Draft{Channel: commission.ChannelNormal})
	assert.ErrorIs(t, err, payroll.ErrEmptyDraft)

	listed, err := store.ListBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

// =============================================================================
// OVERDUE DERIVATION TESTS
// =============================================================================

func TestSaleEntry_Overdue(t *testing.T) {
	// GIVEN: An unpaid-backend entry installed 100 days ago
	// WHEN: Deriving overdue state
	// THEN: Overdue by 10 days; paying the backend clears it

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	install := now.AddDate(0, 0, -100)
	entry := payroll.SaleEntry{InstallDate: &install}

	overdue, days := entry.Overdue(now)
	assert.True(t, overdue)
	assert.Equal(t, 10, days)

	entry.BackendPaid = true
	overdue, days = entry.Overdue(now)
	assert.False(t, overdue)
	assert.Equal(t, 0, days)
}

func TestSaleEntry_Overdue_InsideWindowOrNoInstall(t *testing.T) {
	// GIVEN: An entry installed 90 days ago, and one with no install date
	// WHEN: Deriving overdue state
	// THEN: Neither is overdue

	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	install := now.AddDate(0, 0, -payroll.OverdueAfterDays)

	within := payroll.SaleEntry{InstallDate: &install}
	overdue, _ := within.Overdue(now)
	assert.False(t, overdue, "the boundary day is not yet overdue")

	noInstall := payroll.SaleEntry{}
	overdue, _ = noInstall.Overdue(now)
	assert.False(t, overdue)
}
