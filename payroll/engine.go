/*
engine.go - Accumulation of matched sales into draft payroll lines

PURPOSE:
  The channel packages (normal, fidium) each own their extract matching:
  which files join against which, what the identity key looks like, whether
  an upgrade flag exists. What they share is everything after matching -
  resolve each sale through the commission engine, accumulate per-agent and
  per-manager running totals, and emit one line per participant who earned
  anything. That shared half lives here, parameterized only by the channel
  descriptor.

ACCUMULATION RULES:
  - Rows with a blank seller or plan, or whose seller/plan resolves to no
    catalog record, are silently skipped (best-effort ingestion policy).
  - A sale counts toward the agent's account tally and personal total only
    when the agent has a personal payscale for the channel; its detail row
    is recorded either way.
  - Manager earnings accumulate on the MANAGER's line, created lazily if
    the manager sold nothing themselves.
  - A line is emitted when accounts > 0 OR the manager total is positive.
  - Upfront/backend values split the personal total by the agent's personal
    payscale percentages; manager totals are never split.

ORDERING:
  Rows are processed strictly sequentially - later rows fold into running
  totals keyed by agent id, so there is no intra-run parallelism.

SEE ALSO:
  - commission/resolve.go: The per-sale precedence rules
  - normal/reconcile.go, fidium/reconcile.go: The matching front ends
*/
package payroll

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MATCHED SALE - One row that survived extract matching
// =============================================================================

// MatchedSale is the channel-neutral form of an extract row after matching
// and canonical-entry upsert.
type MatchedSale struct {
	// Entry is the canonical persisted entry this sale reconciled into.
	Entry *SaleEntry

	// Seller is the channel identifier naming the selling agent.
	Seller string

	// PlanName is the sale's plan in extract vocabulary.
	PlanName string

	// SaleDate drives date-range resolution. Nil means unparseable, which
	// degrades to base rates.
	SaleDate *time.Time

	// IsUpgrade is set by channels with migration extracts; others leave
	// it false.
	IsUpgrade bool
}

// =============================================================================
// DRAFT BUILDER
// =============================================================================

type lineAccum struct {
	agent      *commission.Agent
	accounts   int
	personal   decimal.Decimal
	manager    decimal.Decimal
	upfrontPct *decimal.Decimal
	backendPct *decimal.Decimal
	details    []LineDetail
}

// BuildDraft resolves every matched sale against the catalog and folds the
// results into draft payroll lines. Pure: nothing is persisted here.
func BuildDraft(cat *commission.Catalog, ch commission.Channel, sales []MatchedSale) *Draft {
	resolver := commission.NewResolver(cat, ch)

	totals := make(map[commission.AgentID]*lineAccum)
	accumFor := func(a *commission.Agent) *lineAccum {
		acc, ok := totals[a.ID]
		if !ok {
			acc = &lineAccum{agent: a, personal: decimal.Zero, manager: decimal.Zero}
			if psID := a.PersonalPayscale(ch.ID()); psID != nil {
				if ps := cat.Payscales[*psID]; ps != nil {
					acc.upfrontPct = ps.UpfrontPercentage
					acc.backendPct = ps.BackendPercentage
				}
			}
			totals[a.ID] = acc
		}
		return acc
	}

	for _, sale := range sales {
		if sale.Seller == "" || sale.PlanName == "" {
			continue
		}
		agent := cat.AgentBySeller(sale.Seller)
		if agent == nil {
			continue
		}
		plan := cat.PlanByName(sale.PlanName)
		if plan == nil {
			continue
		}

		acc := accumFor(agent)

		amount, counted := resolver.Personal(agent, plan, sale.SaleDate, sale.IsUpgrade)
		if counted {
			acc.accounts++
			acc.personal = acc.personal.Add(amount)
		}

		if managerID, ok := cat.ManagerOf(agent.ID); ok {
			if manager := cat.Agents[managerID]; manager != nil {
				value := resolver.Manager(managerID, agent.ID, plan, sale.SaleDate, sale.IsUpgrade)
				macc := accumFor(manager)
				macc.manager = macc.manager.Add(value)
			}
		}

		acc.details = append(acc.details, LineDetail{
			Ref:                sale.Entry.Ref(),
			PersonalCommission: amount,
			IsUpgrade:          sale.IsUpgrade,
		})
	}

	draft := &Draft{Channel: ch.ID()}
	for _, acc := range totals {
		if acc.accounts == 0 && !acc.manager.IsPositive() {
			continue
		}
		draft.Lines = append(draft.Lines, acc.toLine(ch.ID()))
	}
	sort.Slice(draft.Lines, func(i, j int) bool {
		if draft.Lines[i].Name != draft.Lines[j].Name {
			return draft.Lines[i].Name < draft.Lines[j].Name
		}
		return draft.Lines[i].AgentID < draft.Lines[j].AgentID
	})
	return draft
}

func (acc *lineAccum) toLine(ch commission.ChannelID) PayrollLine {
	name := acc.agent.Name
	if name == "" {
		name = acc.agent.ChannelIdentifier(ch)
	}
	line := PayrollLine{
		AgentID:           acc.agent.ID,
		Name:              name,
		Channel:           ch,
		Accounts:          acc.accounts,
		PersonalTotal:     acc.personal,
		ManagerTotal:      acc.manager,
		GrandTotal:        acc.personal.Add(acc.manager),
		UpfrontPercentage: acc.upfrontPct,
		BackendPercentage: acc.backendPct,
		Details:           acc.details,
	}
	hundred := decimal.NewFromInt(100)
	if acc.upfrontPct != nil {
		v := acc.personal.Mul(*acc.upfrontPct).Div(hundred)
		line.UpfrontValue = &v
	}
	if acc.backendPct != nil {
		v := acc.personal.Mul(*acc.backendPct).Div(hundred)
		line.BackendValue = &v
	}
	return line
}

// =============================================================================
// SAVING A DRAFT
// =============================================================================

// SaveDraft persists a draft under a batch name. IDs are assigned here;
// the draft itself is left untouched and can be discarded on error. An
// empty draft is refused so a failed run never leaves a hollow batch.
func SaveDraft(ctx context.Context, store BatchStore, name string, d *Draft) (*PayrollBatch, []PayrollLine, error) {
	if len(d.Lines) == 0 {
		return nil, nil, ErrEmptyDraft
	}

	batch := PayrollBatch{
		ID:        BatchID(uuid.NewString()),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	lines := make([]PayrollLine, len(d.Lines))
	for i, line := range d.Lines {
		line.ID = LineID(uuid.NewString())
		line.BatchID = batch.ID
		lines[i] = line
	}
	if err := store.InsertBatch(ctx, batch, lines); err != nil {
		return nil, nil, err
	}
	return &batch, lines, nil
}
