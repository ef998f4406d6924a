/*
reconcile.go - Single-file reconciliation for the Fidium channel

FLOW:
  1. Discover requested-service names as plans and sales reps as agents.
  2. Upsert every row (with an order number) as a canonical entry, keyed by
     the (order number, requested service) composite; existing entries keep
     their settlement flags.
  3. Load the catalog once and hand every row to the shared accumulation
     engine; blank or unresolvable reps and services are skipped there.
*/
package fidium

import (
	"context"
	"fmt"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/extract"
	"github.com/warp/commission-engine/payroll"
)

// Reconciler ingests one cycle's Fidium extract into a draft payroll.
type Reconciler struct {
	catalog commission.CatalogStore
	entries payroll.EntryStore
}

func NewReconciler(catalog commission.CatalogStore, entries payroll.EntryStore) *Reconciler {
	return &Reconciler{catalog: catalog, entries: entries}
}

// Reconcile processes the extract rows. Persistent side effects are the
// idempotent entry and catalog upserts; the draft is not saved here.
func (r *Reconciler) Reconcile(ctx context.Context, rows []extract.Record) (*payroll.Draft, error) {
	if err := r.discover(ctx, rows); err != nil {
		return nil, err
	}

	entries, err := r.upsertEntries(ctx, rows)
	if err != nil {
		return nil, err
	}

	cat, err := r.catalog.LoadCatalog(ctx, commission.ChannelFidium)
	if err != nil {
		return nil, fmt.Errorf("could not load catalog: %w", err)
	}

	ch := Channel{}
	sales := make([]payroll.MatchedSale, 0, len(rows))
	for _, row := range rows {
		entry := entries[ch.EntryKey(row.Get(HeaderOrderNumber), row.Get(HeaderRequestedServices))]
		if entry == nil {
			continue
		}
		sales = append(sales, payroll.MatchedSale{
			Entry:    entry,
			Seller:   row.Get(HeaderSalesRep),
			PlanName: row.Get(HeaderRequestedServices),
			SaleDate: extract.ParseUSDate(row.Get(HeaderSubmissionDate)),
		})
	}
	return payroll.BuildDraft(cat, ch, sales), nil
}

// discover upserts the service names and reps first seen in this extract.
// Fidium carries no payout column, so discovered plans have no payout.
func (r *Reconciler) discover(ctx context.Context, rows []extract.Record) error {
	seenPlans := make(map[string]bool)
	seenReps := make(map[string]bool)
	for _, row := range rows {
		if service := row.Get(HeaderRequestedServices); service != "" && !seenPlans[service] {
			seenPlans[service] = true
			plan := commission.Plan{Name: service, Channel: commission.ChannelFidium}
			if err := r.catalog.UpsertPlan(ctx, plan); err != nil {
				return fmt.Errorf("could not upsert plan %q: %w", service, err)
			}
		}
		if rep := row.Get(HeaderSalesRep); rep != "" && !seenReps[rep] {
			seenReps[rep] = true
			if err := r.catalog.UpsertAgentIdentity(ctx, commission.ChannelFidium, rep, rep); err != nil {
				return fmt.Errorf("could not upsert agent %q: %w", rep, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) upsertEntries(ctx context.Context, rows []extract.Record) (map[string]*payroll.SaleEntry, error) {
	ch := Channel{}
	var toUpsert []payroll.SaleEntry
	seen := make(map[string]bool)
	for _, row := range rows {
		order := row.Get(HeaderOrderNumber)
		if order == "" {
			continue
		}
		key := ch.EntryKey(order, row.Get(HeaderRequestedServices))
		if seen[key] {
			continue
		}
		seen[key] = true
		toUpsert = append(toUpsert, payroll.SaleEntry{
			Channel:        commission.ChannelFidium,
			OrderNumber:    order,
			PlanName:       row.Get(HeaderRequestedServices),
			CustomerName:   row.Get(HeaderCustomerName),
			ServiceAddress: row.Get(HeaderServiceAddress),
			City:           row.Get(HeaderCity),
			State:          row.Get(HeaderState),
			Seller:         row.Get(HeaderSalesRep),
			SubmissionDate: extract.ParseUSDate(row.Get(HeaderSubmissionDate)),
			InstallDate:    extract.ParseUSDate(row.Get(HeaderInstallDate)),
		})
	}

	canonical, err := r.entries.UpsertEntries(ctx, ch, toUpsert)
	if err != nil {
		return nil, fmt.Errorf("could not upsert sale entries: %w", err)
	}
	byKey := make(map[string]*payroll.SaleEntry, len(canonical))
	for i := range canonical {
		byKey[canonical[i].Key(ch)] = &canonical[i]
	}
	return byKey, nil
}
