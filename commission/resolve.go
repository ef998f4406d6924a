/*
resolve.go - Commission resolution precedence

PURPOSE:
  Turns one matched sale into two amounts: the selling agent's personal
  commission and (when a manager relation exists) the manager's commission.

PRECEDENCE ORDER:
  Personal:
    1. No personal payscale for the channel -> no commission, sale not counted
    2. Payscale date range matching the sale date -> that range's plan row
       (a matching range with no row for the plan resolves to ZERO, not base)
    3. Otherwise -> the payscale's base plan row
    4. Otherwise -> zero

  Manager:
    1. An Override for (manager, agent, plan) short-circuits EVERYTHING:
       its own ranges are consulted, else its base value - even when that
       base is zero. The payscale path is dead for the triple.
    2. No override -> the manager's manager-role payscale, resolved with the
       identical algorithm as personal.
    3. Nothing -> zero (the agent's sale still counts for the agent).

SEE ALSO:
  - interval.go: Range selection and the latest-start tie-break
  - catalog.go: The lookup context all of this reads from
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resolver computes commissions against one catalog snapshot.
type Resolver struct {
	Catalog *Catalog
	Channel Channel
}

func NewResolver(cat *Catalog, ch Channel) *Resolver {
	return &Resolver{Catalog: cat, Channel: ch}
}

// Personal resolves the selling agent's own commission. The second return
// reports whether the sale counts toward the agent's account tally: false
// when the agent has no personal payscale on this channel.
func (r *Resolver) Personal(agent *Agent, plan *Plan, saleDate *time.Time, isUpgrade bool) (decimal.Decimal, bool) {
	psID := agent.PersonalPayscale(r.Channel.ID())
	if psID == nil {
		return decimal.Zero, false
	}
	return r.payscaleRate(*psID, plan.ID, saleDate, r.upgrade(isUpgrade)), true
}

// Manager resolves the manager's commission for an agent's sale.
func (r *Resolver) Manager(managerID AgentID, agentID AgentID, plan *Plan, saleDate *time.Time, isUpgrade bool) decimal.Decimal {
	isUpgrade = r.upgrade(isUpgrade)

	// An override row, once present, is the sole source for the triple.
	if o := r.Catalog.Override(managerID, agentID, plan.ID); o != nil {
		if matched := ResolveRange(o.Ranges, saleDate); matched != nil {
			if rv, ok := matched.Rate(plan.ID); ok {
				return rv.Select(isUpgrade)
			}
		}
		return o.Value.Select(isUpgrade)
	}

	manager := r.Catalog.Agents[managerID]
	if manager == nil {
		return decimal.Zero
	}
	psID := manager.ManagerPayscale(r.Channel.ID())
	if psID == nil {
		return decimal.Zero
	}
	return r.payscaleRate(*psID, plan.ID, saleDate, isUpgrade)
}

// upgrade normalizes the sale's upgrade flag against the channel capability:
// channels without upgrade rates always resolve the base value.
func (r *Resolver) upgrade(isUpgrade bool) bool {
	return isUpgrade && r.Channel.HasUpgradeRates()
}

// payscaleRate runs the shared range-then-base algorithm for one payscale.
func (r *Resolver) payscaleRate(ps PayscaleID, plan PlanID, saleDate *time.Time, isUpgrade bool) decimal.Decimal {
	if ranges := r.Catalog.RangesOf(ps); len(ranges) > 0 {
		if matched := ResolveRange(ranges, saleDate); matched != nil {
			rv, ok := matched.Rate(plan)
			if !ok {
				// Range applies but carries no row for this plan.
				return decimal.Zero
			}
			return rv.Select(isUpgrade)
		}
	}
	rv, ok := r.Catalog.BaseRate(ps, plan)
	if !ok {
		return decimal.Zero
	}
	return rv.Select(isUpgrade)
}
