/*
Package commission provides the core commission resolution engine.

PURPOSE:
  This package contains the channel-agnostic types and algorithms that turn a
  raw sale into money: rate catalogs (payscales, per-plan rates, dated
  overrides), the interval resolver that picks the applicable date range, and
  the resolver that composes them under a fixed precedence order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Agent: A seller, optionally a manager, with per-channel payscale links
  - Plan: A sellable product, scoped to one channel
  - Payscale: A per-role rate table (personal or manager)
  - RateValue: A commission value pair (base + upgrade variant)
  - DateRange: A time-bounded refinement of a payscale's or override's rates
  - Override: A (manager, agent, plan) rule that supersedes the payscale

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for every dollar amount
  2. Type Safety: Strong typing for IDs prevents mixing agent/plan/payscale IDs
  3. Explicit context: All lookups go through a Catalog loaded once per run,
     never through ambient global state

SEE ALSO:
  - interval.go: Date-range selection with the latest-start tie-break
  - resolve.go: Personal and manager resolution precedence
  - catalog.go: Per-run lookup context and the CatalogStore interface
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID string
type PlanID string
type PayscaleID string
type OverrideID string

// ChannelID names one of the independent sales programs.
type ChannelID string

const (
	ChannelNormal ChannelID = "normal"
	ChannelFidium ChannelID = "fidium"
)

// Channel describes the capabilities of one sales program.
// This is an interface so channel packages define their own concrete types.
// The commission package has NO knowledge of specific channels.
//
// Channel packages implement this:
//
//	// In normal/channel.go
//	type Channel struct{}
//	func (Channel) ID() commission.ChannelID { return commission.ChannelNormal }
type Channel interface {
	// ID returns the channel this descriptor belongs to.
	ID() ChannelID

	// HasUpgradeRates reports whether rate rows on this channel carry a
	// second value for plan-migration sales.
	HasUpgradeRates() bool

	// EntryKey builds the identity key of a canonical sale entry from its
	// order number and plan name. Channels with one sale per order key by
	// order number alone; channels with one sale per requested service key
	// by the (order, plan) composite.
	EntryKey(orderNumber, planName string) string
}

// =============================================================================
// ROLE - Whose commission a payscale pays
// =============================================================================

type Role string

const (
	RolePersonal Role = "personal"
	RoleManager  Role = "manager"
)

// =============================================================================
// AGENT - A seller, possibly a manager
// =============================================================================

// Agent is an individual seller. A manager is simply an Agent with
// IsManager set and a manager-role payscale link of its own.
type Agent struct {
	ID   AgentID
	Name string

	// Channel-specific external identifiers used to match extract rows.
	Identifier       string // normal-channel seller key
	FidiumIdentifier string

	IsManager bool

	// Payscale links, personal/manager x normal/fidium. All nullable: an
	// agent with no personal payscale earns nothing on that channel.
	PersonalPayscaleID       *PayscaleID
	ManagerPayscaleID        *PayscaleID
	FidiumPersonalPayscaleID *PayscaleID
	FidiumManagerPayscaleID  *PayscaleID
}

// ChannelIdentifier returns the agent's external identifier for a channel.
func (a *Agent) ChannelIdentifier(ch ChannelID) string {
	if ch == ChannelFidium {
		return a.FidiumIdentifier
	}
	return a.Identifier
}

// PersonalPayscale returns the agent's personal-role payscale for a channel,
// or nil if none is assigned.
func (a *Agent) PersonalPayscale(ch ChannelID) *PayscaleID {
	if ch == ChannelFidium {
		return a.FidiumPersonalPayscaleID
	}
	return a.PersonalPayscaleID
}

// ManagerPayscale returns the agent's manager-role payscale for a channel,
// or nil if none is assigned.
func (a *Agent) ManagerPayscale(ch ChannelID) *PayscaleID {
	if ch == ChannelFidium {
		return a.FidiumManagerPayscaleID
	}
	return a.ManagerPayscaleID
}

// =============================================================================
// PLAN - A sellable product within one channel
// =============================================================================

// Plan names must match the vocabulary of the upstream extract files; plans
// are discovered and upserted during reconciliation, keyed by (channel, name).
type Plan struct {
	ID      PlanID
	Name    string
	Channel ChannelID

	// PayoutAmount is the upstream payout seen when the plan was discovered.
	// Informational only; commissions come from payscales and overrides.
	PayoutAmount decimal.Decimal
}

// =============================================================================
// PAYSCALE - Per-role rate table
// =============================================================================

type Payscale struct {
	ID      PayscaleID
	Name    string
	Role    Role
	Channel ChannelID

	// Split factors applied to the personal total only. Nil on manager
	// payscales and on personal payscales without a configured split.
	UpfrontPercentage *decimal.Decimal
	BackendPercentage *decimal.Decimal
}

// =============================================================================
// RATE VALUE - Base commission plus upgrade variant
// =============================================================================

// RateValue holds the commission for one (payscale|override, plan) pairing.
// On the normal channel Upgrade is used when the sale came from a
// plan-migration extract; channels without an upgrade concept leave it zero
// and always select Base.
type RateValue struct {
	Base    decimal.Decimal
	Upgrade decimal.Decimal
}

// Select picks the value addressed by the sale's upgrade flag.
func (rv RateValue) Select(isUpgrade bool) decimal.Decimal {
	if isUpgrade {
		return rv.Upgrade
	}
	return rv.Base
}

// PlanRate is a payscale's base rate row for one plan.
// Exactly one base row exists per (payscale, plan).
type PlanRate struct {
	PayscaleID PayscaleID
	PlanID     PlanID
	Value      RateValue
}

// =============================================================================
// DATE RANGE - Time-bounded rate refinement
// =============================================================================

// DateRange refines a payscale's or override's rates between Start and End
// (both inclusive; nil End = open-ended). Ranges are not guaranteed
// non-overlapping; see ResolveRange for the tie-break.
type DateRange struct {
	ID    string
	Start time.Time
	End   *time.Time

	// Rates carries one child value per plan covered by this range. A range
	// may match by date yet carry no row for the sale's plan.
	Rates map[PlanID]RateValue
}

// Rate returns the range's value for a plan, if the range carries one.
func (dr *DateRange) Rate(plan PlanID) (RateValue, bool) {
	rv, ok := dr.Rates[plan]
	return rv, ok
}

// =============================================================================
// OVERRIDE - Relationship-scoped manager commission
// =============================================================================

// Override is a manager-commission rule for one (manager, agent, plan)
// triple. Its existence makes the triple exempt from payscale-based manager
// resolution: the override's own ranges and base value are the only source
// consulted, regardless of date.
type Override struct {
	ID        OverrideID
	Channel   ChannelID
	ManagerID AgentID
	AgentID   AgentID
	PlanID    PlanID

	Value  RateValue
	Ranges []DateRange
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal literal, returning zero on malformed input.
// Intended for constants and test fixtures.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Dollars builds a decimal amount from a float payout value.
func Dollars(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
