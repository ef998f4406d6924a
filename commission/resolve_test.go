package commission_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// TEST CHANNEL - Capability descriptor without a channel package dependency
// =============================================================================

type testChannel struct {
	upgrades bool
}

func (c testChannel) ID() commission.ChannelID { return commission.ChannelNormal }
func (c testChannel) HasUpgradeRates() bool    { return c.upgrades }
func (c testChannel) EntryKey(order, _ string) string {
	return order
}

// =============================================================================
// FIXTURE CATALOG
// =============================================================================

const (
	agentSeller  commission.AgentID    = "agent-1"
	agentManager commission.AgentID    = "manager-1"
	planFiber    commission.PlanID     = "plan-fiber"
	planCopper   commission.PlanID     = "plan-copper"
	psPersonal   commission.PayscaleID = "ps-personal"
	psManager    commission.PayscaleID = "ps-manager"
)

func dec(s string) decimal.Decimal { return commission.MustDecimal(s) }

// newFixtureCatalog builds a seller managed by a manager, both with
// payscales, a base rate of 50/75 on the fiber plan for each role.
func newFixtureCatalog() *commission.Catalog {
	cat := commission.NewCatalog(commission.ChannelNormal)

	personal := psPersonal
	manager := psManager
	cat.AddAgent(&commission.Agent{
		ID:                 agentSeller,
		Name:               "Pat Seller",
		Identifier:         "100: Pat Seller",
		PersonalPayscaleID: &personal,
	})
	cat.AddAgent(&commission.Agent{
		ID:                agentManager,
		Name:              "Mo Manager",
		Identifier:        "200: Mo Manager",
		IsManager:         true,
		ManagerPayscaleID: &manager,
	})
	cat.Managers[agentSeller] = agentManager

	cat.AddPlan(&commission.Plan{ID: planFiber, Name: "1 Gig", Channel: commission.ChannelNormal})
	cat.AddPlan(&commission.Plan{ID: planCopper, Name: "100 Meg", Channel: commission.ChannelNormal})

	cat.Payscales[psPersonal] = &commission.Payscale{ID: psPersonal, Role: commission.RolePersonal, Channel: commission.ChannelNormal}
	cat.Payscales[psManager] = &commission.Payscale{ID: psManager, Role: commission.RoleManager, Channel: commission.ChannelNormal}

	cat.BaseRates[commission.RateKey{Payscale: psPersonal, Plan: planFiber}] =
		commission.RateValue{Base: dec("50"), Upgrade: dec("25")}
	cat.BaseRates[commission.RateKey{Payscale: psManager, Plan: planFiber}] =
		commission.RateValue{Base: dec("75"), Upgrade: dec("40")}

	return cat
}

func fiberPlan(cat *commission.Catalog) *commission.Plan { return cat.Plans[planFiber] }

// =============================================================================
// PERSONAL RESOLUTION TESTS
// =============================================================================

func TestPersonal_BaseRate(t *testing.T) {
	// GIVEN: An agent with a personal payscale carrying a base rate
	// WHEN: Resolving a sale with no matching date range
	// THEN: The base rate applies and the sale counts

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, counted := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, counted, "sale should count toward the account tally")
	assert.True(t, amount.Equal(dec("50")), "expected base rate 50, got %s", amount)
}

func TestPersonal_NoPayscale_NotCounted(t *testing.T) {
	// GIVEN: An agent with no personal payscale on the channel
	// WHEN: Resolving a sale
	// THEN: Zero commission and the sale does not count

	cat := newFixtureCatalog()
	cat.Agents[agentSeller].PersonalPayscaleID = nil
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, counted := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.False(t, counted)
	assert.True(t, amount.IsZero())
}

func TestPersonal_RangeSupersedesBase(t *testing.T) {
	// GIVEN: A payscale with a date range carrying a higher fiber rate
	// WHEN: Resolving a sale inside the range vs outside it
	// THEN: Inside uses the range rate, outside falls back to base

	cat := newFixtureCatalog()
	cat.Ranges[psPersonal] = []commission.DateRange{{
		ID:    "promo",
		Start: date(2025, time.March, 1),
		End:   datePtr(2025, time.March, 31),
		Rates: map[commission.PlanID]commission.RateValue{
			planFiber: {Base: dec("80")},
		},
	}}
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	inside, _ := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.March, 15), false)
	assert.True(t, inside.Equal(dec("80")), "range rate should apply inside the window, got %s", inside)

	outside, _ := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.May, 1), false)
	assert.True(t, outside.Equal(dec("50")), "base rate should apply outside the window, got %s", outside)
}

func TestPersonal_MatchingRangeWithoutPlanRow_ResolvesToZero(t *testing.T) {
	// GIVEN: A range that matches the sale date but carries no row for the plan
	// WHEN: Resolving the sale
	// THEN: Commission is zero, NOT the base rate; the sale still counts

	cat := newFixtureCatalog()
	cat.Ranges[psPersonal] = []commission.DateRange{{
		ID:    "promo",
		Start: date(2025, time.March, 1),
		End:   datePtr(2025, time.March, 31),
		Rates: map[commission.PlanID]commission.RateValue{
			planCopper: {Base: dec("10")},
		},
	}}
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, counted := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.March, 15), false)
	assert.True(t, counted)
	assert.True(t, amount.IsZero(), "expected zero, got %s", amount)
}

func TestPersonal_NilSaleDate_FallsBackToBase(t *testing.T) {
	// GIVEN: A payscale with ranges and a sale whose date is unreadable
	// WHEN: Resolving with a nil sale date
	// THEN: No range matches and the base rate applies

	cat := newFixtureCatalog()
	cat.Ranges[psPersonal] = []commission.DateRange{{
		ID:    "open",
		Start: date(2025, time.January, 1),
		Rates: map[commission.PlanID]commission.RateValue{
			planFiber: {Base: dec("80")},
		},
	}}
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, _ := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), nil, false)
	assert.True(t, amount.Equal(dec("50")), "nil date should resolve at base, got %s", amount)
}

func TestPersonal_NoRateAnywhere_Zero(t *testing.T) {
	// GIVEN: A personal payscale with no rate row for the plan
	// WHEN: Resolving
	// THEN: Zero, and the sale still counts

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, counted := r.Personal(cat.Agents[agentSeller], cat.Plans[planCopper], datePtr(2025, time.June, 1), false)
	assert.True(t, counted)
	assert.True(t, amount.IsZero())
}

// =============================================================================
// UPGRADE SELECTION TESTS
// =============================================================================

func TestPersonal_UpgradeSale_SelectsUpgradeValue(t *testing.T) {
	// GIVEN: A channel with upgrade rates and a rate row carrying both values
	// WHEN: Resolving an upgrade sale
	// THEN: The upgrade value is selected

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount, _ := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.June, 1), true)
	assert.True(t, amount.Equal(dec("25")), "expected upgrade value 25, got %s", amount)
}

func TestPersonal_ChannelWithoutUpgrades_IgnoresFlag(t *testing.T) {
	// GIVEN: A channel that has no upgrade concept
	// WHEN: Resolving a sale flagged as an upgrade
	// THEN: The base value is selected anyway

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: false})

	amount, _ := r.Personal(cat.Agents[agentSeller], fiberPlan(cat), datePtr(2025, time.June, 1), true)
	assert.True(t, amount.Equal(dec("50")), "flag should be ignored, got %s", amount)
}

// =============================================================================
// MANAGER RESOLUTION TESTS
// =============================================================================

func TestManager_PayscalePath(t *testing.T) {
	// GIVEN: A manager with a manager-role payscale and no override
	// WHEN: Resolving the managed agent's sale
	// THEN: The payscale's base rate applies

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.Equal(dec("75")), "expected manager base 75, got %s", amount)
}

func TestManager_OverrideShortCircuitsPayscale(t *testing.T) {
	// GIVEN: An override for the (manager, agent, plan) triple
	// WHEN: Resolving
	// THEN: The override base applies; the payscale is never consulted

	cat := newFixtureCatalog()
	cat.AddOverride(&commission.Override{
		ID:        "ov-1",
		Channel:   commission.ChannelNormal,
		ManagerID: agentManager,
		AgentID:   agentSeller,
		PlanID:    planFiber,
		Value:     commission.RateValue{Base: dec("30")},
	})
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.Equal(dec("30")), "override base should win, got %s", amount)
}

func TestManager_ZeroValueOverride_StillShortCircuits(t *testing.T) {
	// GIVEN: An override whose base value is zero
	// WHEN: Resolving a sale the payscale would have paid 75 for
	// THEN: The triple resolves to zero; the override suppresses the payscale

	cat := newFixtureCatalog()
	cat.AddOverride(&commission.Override{
		ID:        "ov-zero",
		Channel:   commission.ChannelNormal,
		ManagerID: agentManager,
		AgentID:   agentSeller,
		PlanID:    planFiber,
		Value:     commission.RateValue{},
	})
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.IsZero(), "zero override must suppress the payscale, got %s", amount)
}

func TestManager_OverrideRangeSupersedesOverrideBase(t *testing.T) {
	// GIVEN: An override with its own dated range for the plan
	// WHEN: Resolving inside vs outside the range
	// THEN: Inside uses the range's value, outside the override base

	cat := newFixtureCatalog()
	cat.AddOverride(&commission.Override{
		ID:        "ov-ranged",
		Channel:   commission.ChannelNormal,
		ManagerID: agentManager,
		AgentID:   agentSeller,
		PlanID:    planFiber,
		Value:     commission.RateValue{Base: dec("30")},
		Ranges: []commission.DateRange{{
			ID:    "ov-promo",
			Start: date(2025, time.March, 1),
			End:   datePtr(2025, time.March, 31),
			Rates: map[commission.PlanID]commission.RateValue{
				planFiber: {Base: dec("45")},
			},
		}},
	})
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	inside := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.March, 15), false)
	assert.True(t, inside.Equal(dec("45")), "range value inside the window, got %s", inside)

	outside := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, outside.Equal(dec("30")), "override base outside the window, got %s", outside)
}

func TestManager_OverrideOnOtherPlan_DoesNotApply(t *testing.T) {
	// GIVEN: An override scoped to the copper plan only
	// WHEN: Resolving a fiber sale for the same pair
	// THEN: The payscale path applies; the override is plan-scoped

	cat := newFixtureCatalog()
	cat.AddOverride(&commission.Override{
		ID:        "ov-copper",
		Channel:   commission.ChannelNormal,
		ManagerID: agentManager,
		AgentID:   agentSeller,
		PlanID:    planCopper,
		Value:     commission.RateValue{Base: dec("5")},
	})
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.Equal(dec("75")), "fiber sale should use the payscale, got %s", amount)
}

func TestManager_NoManagerPayscale_Zero(t *testing.T) {
	// GIVEN: A manager without a manager-role payscale and no override
	// WHEN: Resolving
	// THEN: Zero

	cat := newFixtureCatalog()
	cat.Agents[agentManager].ManagerPayscaleID = nil
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager(agentManager, agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.IsZero())
}

func TestManager_UnknownManager_Zero(t *testing.T) {
	// GIVEN: A manager relation pointing at an agent not in the catalog
	// WHEN: Resolving
	// THEN: Zero, no panic

	cat := newFixtureCatalog()
	r := commission.NewResolver(cat, testChannel{upgrades: true})

	amount := r.Manager("ghost", agentSeller, fiberPlan(cat), datePtr(2025, time.June, 1), false)
	assert.True(t, amount.IsZero())
}

// =============================================================================
// CATALOG INDEX TESTS
// =============================================================================

func TestCatalog_AgentBySeller(t *testing.T) {
	// GIVEN: The fixture catalog on the normal channel
	// WHEN: Looking up agents by their channel identifier
	// THEN: Known identifiers resolve; unknown return nil

	cat := newFixtureCatalog()

	found := cat.AgentBySeller("100: Pat Seller")
	assert.NotNil(t, found)
	assert.Equal(t, agentSeller, found.ID)
	assert.Nil(t, cat.AgentBySeller("999: Nobody"))
}

func TestCatalog_PlanByName(t *testing.T) {
	cat := newFixtureCatalog()

	found := cat.PlanByName("1 Gig")
	assert.NotNil(t, found)
	assert.Equal(t, planFiber, found.ID)
	assert.Nil(t, cat.PlanByName("10 Gig"))
}
