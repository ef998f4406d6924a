/*
reconcile.go - Three-file matching and reconciliation for the normal channel

FLOW:
  1. Index the detail extract by order number.
  2. Inner-join new-installs and migrations against it; unmatched rows on
     either side are dropped (detail rows that matched nothing are never
     stored).
  3. Upsert the distinct matched detail rows as canonical entries, keyed by
     order number; existing entries keep their settlement flags.
  4. Discover plans (from the new-installs/migrations payout columns and
     the detail speed column) and agents (from the detail seller column) so
     resolution can see vocabulary that first appears in this cycle.
  5. Load the catalog once and hand the matched sales to the shared
     accumulation engine.

Rows with blank or unresolvable fields are skipped, never an error: the
ingestion policy is best effort, and a rerun with corrected catalogs picks
the skipped rows back up.
*/
package normal

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/extract"
	"github.com/warp/commission-engine/payroll"
)

// Extracts bundles one cycle's three input files.
type Extracts struct {
	NewInstalls []extract.Record
	Detail      []extract.Record
	Migrations  []extract.Record
}

// Reconciler matches one cycle's extracts into a draft payroll.
type Reconciler struct {
	catalog commission.CatalogStore
	entries payroll.EntryStore
}

func NewReconciler(catalog commission.CatalogStore, entries payroll.EntryStore) *Reconciler {
	return &Reconciler{catalog: catalog, entries: entries}
}

// matchedRow pairs a new-installs or migrations row with its detail row.
type matchedRow struct {
	detail    extract.Record
	isUpgrade bool
}

// Reconcile ingests the three extracts and produces a draft payroll. The
// only persistent side effects are the canonical-entry and catalog upserts,
// both idempotent; the draft itself is not saved here.
func (r *Reconciler) Reconcile(ctx context.Context, ext Extracts) (*payroll.Draft, error) {
	detailByOrder := make(map[string]extract.Record)
	for _, row := range ext.Detail {
		if order := row.Get(HeaderOrderNumber); order != "" {
			detailByOrder[order] = row
		}
	}

	var matched []matchedRow
	join := func(rows []extract.Record, isUpgrade bool) {
		for _, row := range rows {
			order := row.Get(HeaderOrderID)
			if order == "" {
				continue
			}
			detail, ok := detailByOrder[order]
			if !ok {
				continue // inner join: unmatched rows are dropped
			}
			matched = append(matched, matchedRow{detail: detail, isUpgrade: isUpgrade})
		}
	}
	join(ext.NewInstalls, false)
	join(ext.Migrations, true)

	entries, err := r.upsertMatchedEntries(ctx, matched)
	if err != nil {
		return nil, err
	}
	if err := r.discoverPlans(ctx, ext, matched); err != nil {
		return nil, err
	}
	if err := r.discoverAgents(ctx, matched); err != nil {
		return nil, err
	}

	cat, err := r.catalog.LoadCatalog(ctx, commission.ChannelNormal)
	if err != nil {
		return nil, fmt.Errorf("could not load catalog: %w", err)
	}

	sales := make([]payroll.MatchedSale, 0, len(matched))
	for _, m := range matched {
		entry := entries[m.detail.Get(HeaderOrderNumber)]
		if entry == nil {
			continue
		}
		sales = append(sales, payroll.MatchedSale{
			Entry:     entry,
			Seller:    m.detail.Get(HeaderSeller),
			PlanName:  m.detail.Get(HeaderInternetSpeed),
			SaleDate:  entry.SubmissionDate,
			IsUpgrade: m.isUpgrade,
		})
	}
	return payroll.BuildDraft(cat, Channel{}, sales), nil
}

// upsertMatchedEntries stores the distinct matched detail rows and returns
// the canonical entries indexed by order number.
func (r *Reconciler) upsertMatchedEntries(ctx context.Context, matched []matchedRow) (map[string]*payroll.SaleEntry, error) {
	var toUpsert []payroll.SaleEntry
	seen := make(map[string]bool)
	for _, m := range matched {
		order := m.detail.Get(HeaderOrderNumber)
		if order == "" || seen[order] {
			continue
		}
		seen[order] = true
		toUpsert = append(toUpsert, payroll.SaleEntry{
			Channel:        commission.ChannelNormal,
			OrderNumber:    order,
			PlanName:       m.detail.Get(HeaderInternetSpeed),
			CustomerName:   m.detail.Get(HeaderCustomerName),
			ServiceAddress: m.detail.Get(HeaderStreetAddress),
			City:           m.detail.Get(HeaderCity),
			State:          m.detail.Get(HeaderState),
			Seller:         m.detail.Get(HeaderSeller),
			SubmissionDate: extract.ParseUSDate(m.detail.Get(HeaderSubmissionDate)),
			InstallDate:    extract.ParseUSDate(m.detail.Get(HeaderInstallDate)),
		})
	}

	canonical, err := r.entries.UpsertEntries(ctx, Channel{}, toUpsert)
	if err != nil {
		return nil, fmt.Errorf("could not upsert sale entries: %w", err)
	}
	byOrder := make(map[string]*payroll.SaleEntry, len(canonical))
	for i := range canonical {
		byOrder[canonical[i].OrderNumber] = &canonical[i]
	}
	return byOrder, nil
}

// discoverPlans upserts plan names newly seen in this cycle: payout-bearing
// names from the new-installs and migrations files, then speed names from
// the matched detail rows (no payout information).
func (r *Reconciler) discoverPlans(ctx context.Context, ext Extracts, matched []matchedRow) error {
	for _, rows := range [][]extract.Record{ext.NewInstalls, ext.Migrations} {
		for _, row := range rows {
			name := row.Get(HeaderPlanName)
			payout, ok := extract.ParsePayout(row.Get(HeaderPayout))
			if name == "" || !ok {
				continue
			}
			plan := commission.Plan{Name: name, Channel: commission.ChannelNormal, PayoutAmount: payout}
			if err := r.catalog.UpsertPlan(ctx, plan); err != nil {
				return fmt.Errorf("could not upsert plan %q: %w", name, err)
			}
		}
	}

	seen := make(map[string]bool)
	for _, m := range matched {
		speed := m.detail.Get(HeaderInternetSpeed)
		if speed == "" || seen[speed] {
			continue
		}
		seen[speed] = true
		plan := commission.Plan{Name: speed, Channel: commission.ChannelNormal}
		if err := r.catalog.UpsertPlan(ctx, plan); err != nil {
			return fmt.Errorf("could not upsert plan %q: %w", speed, err)
		}
	}
	return nil
}

// discoverAgents upserts agents keyed by the opaque seller string. The
// display name is the text after the first colon, when the upstream field
// has the "code: name" shape.
func (r *Reconciler) discoverAgents(ctx context.Context, matched []matchedRow) error {
	seen := make(map[string]bool)
	for _, m := range matched {
		identifier := m.detail.Get(HeaderSeller)
		if identifier == "" || seen[identifier] {
			continue
		}
		seen[identifier] = true

		name := identifier
		if idx := strings.Index(identifier, ":"); idx >= 0 {
			name = strings.TrimSpace(identifier[idx+1:])
		}
		if err := r.catalog.UpsertAgentIdentity(ctx, commission.ChannelNormal, identifier, name); err != nil {
			return fmt.Errorf("could not upsert agent %q: %w", identifier, err)
		}
	}
	return nil
}
