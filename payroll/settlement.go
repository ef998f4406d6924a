/*
settlement.go - The paid/unpaid cascade between lines, entries, adjustments

PURPOSE:
  A payroll line summarizes entries, and both carry independent frontend
  and backend settlement flags. This file keeps them consistent:

  Line toggle:   the new flag is written onto every constituent entry, then
                 onto the line. Marking a line's FRONTEND paid also
                 auto-completes every open adjustment linked to the line;
                 unmarking never reopens them.
  Entry toggle:  the entry flag flips, then the line flag is recomputed as
                 the conjunction over all constituent entries and persisted
                 if it changed (promote or demote).
  Load repair:   when a batch's lines are loaded, any line whose entries
                 are unanimously paid but whose own flag lags is silently
                 promoted. An entry that fails to resolve counts as unpaid
                 here, so a line of dangling references is never promoted.
                 The invariant is repaired lazily, not maintained eagerly.

WRITE ORDERING:
  The store guarantees per-call atomicity only. Every cascade writes entry
  flags FIRST and the line flag LAST, so a partial failure can only leave a
  line conservatively "unpaid" under fully-paid entries - a state the load
  repair later fixes - never a "paid" line over unpaid entries.

SEE ALSO:
  - entry.go: Dimension, EntryRef, overdue derivation
  - store.go: The persistence contracts relied on here
*/
package payroll

import (
	"context"
	"fmt"
	"time"
)

// Settlement applies paid/unpaid toggles and the load-time invariant repair.
type Settlement struct {
	entries     EntryStore
	batches     BatchStore
	adjustments AdjustmentStore

	// now is swappable for tests.
	now func() time.Time
}

func NewSettlement(entries EntryStore, batches BatchStore, adjustments AdjustmentStore) *Settlement {
	return &Settlement{
		entries:     entries,
		batches:     batches,
		adjustments: adjustments,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the completion-timestamp source.
func (s *Settlement) WithClock(now func() time.Time) *Settlement {
	s.now = now
	return s
}

// =============================================================================
// LINE TOGGLE
// =============================================================================

// ToggleLine sets one dimension of a line to paid/unpaid and cascades the
// same value onto every entry the line references.
func (s *Settlement) ToggleLine(ctx context.Context, id LineID, d Dimension, paid bool) error {
	line, err := s.batches.GetLine(ctx, id)
	if err != nil {
		return fmt.Errorf("could not load line: %w", err)
	}

	// Entries first, line last: a failure in between leaves the line
	// conservatively unpaid.
	if refs := line.Refs(); len(refs) > 0 {
		if err := s.entries.SetEntriesPaid(ctx, refs, d, paid); err != nil {
			return fmt.Errorf("could not update entries: %w", err)
		}
	}
	if err := s.batches.SetLinePaid(ctx, id, d, paid); err != nil {
		return fmt.Errorf("could not update line: %w", err)
	}

	if paid && d == DimensionFrontend {
		if err := s.completeOpenAdjustments(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// completeOpenAdjustments stamps every open adjustment linked to the line.
// One-way: nothing here ever reopens an adjustment.
func (s *Settlement) completeOpenAdjustments(ctx context.Context, id LineID) error {
	open, err := s.adjustments.OpenAdjustmentsByLine(ctx, id)
	if err != nil {
		return fmt.Errorf("could not list adjustments: %w", err)
	}
	at := s.now()
	for i := range open {
		open[i].Complete(id, at)
		if err := s.adjustments.UpdateAdjustment(ctx, open[i]); err != nil {
			return fmt.Errorf("could not complete adjustment %s: %w", open[i].ID, err)
		}
	}
	return nil
}

// =============================================================================
// ENTRY TOGGLE
// =============================================================================

// ToggleEntry sets one dimension of a single entry and reconciles the owning
// line's flag: promoted when the entries became unanimous, demoted when the
// unanimity broke. Demotion never reverses adjustment completion. The entry
// must belong to the line.
func (s *Settlement) ToggleEntry(ctx context.Context, lineID LineID, ref EntryRef, d Dimension, paid bool) error {
	line, err := s.batches.GetLine(ctx, lineID)
	if err != nil {
		return fmt.Errorf("could not load line: %w", err)
	}

	member := false
	for _, r := range line.Refs() {
		if r == ref {
			member = true
			break
		}
	}
	if !member {
		return fmt.Errorf("entry %s/%s is not on line %s: %w", ref.Kind, ref.ID, lineID, ErrEntryNotFound)
	}

	if err := s.entries.SetEntriesPaid(ctx, []EntryRef{ref}, d, paid); err != nil {
		return fmt.Errorf("could not update entry: %w", err)
	}

	all, err := s.lineConjunction(ctx, line, d)
	if err != nil {
		return err
	}
	if all != line.IsPaid(d) {
		if err := s.batches.SetLinePaid(ctx, lineID, d, all); err != nil {
			return fmt.Errorf("could not update line: %w", err)
		}
	}
	return nil
}

// lineConjunction reads the current entries and ANDs their flags. Entries
// that no longer resolve count as paid, so stale references cannot pin a
// line unpaid forever.
func (s *Settlement) lineConjunction(ctx context.Context, line *PayrollLine, d Dimension) (bool, error) {
	byRef, err := s.entries.GetEntries(ctx, line.Refs())
	if err != nil {
		return false, fmt.Errorf("could not load entries: %w", err)
	}
	for _, detail := range line.Details {
		if e, ok := byRef[detail.Ref]; ok && !e.Paid(d) {
			return false, nil
		}
	}
	return true, nil
}

// =============================================================================
// LOAD WITH INVARIANT REPAIR
// =============================================================================

// LoadLines returns a batch's lines with their referenced entries, promoting
// any line whose entries are unanimously paid for a dimension while its own
// flag still says unpaid. Repair is write-through and promote-only. Unlike
// the toggle recompute, a reference that fails to resolve counts as UNPAID:
// promotion needs positive evidence from real entries, and a line left with
// only dangling references must stay unpaid.
func (s *Settlement) LoadLines(ctx context.Context, batchID BatchID) ([]PayrollLine, map[EntryRef]*SaleEntry, error) {
	lines, err := s.batches.LinesByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load batch lines: %w", err)
	}

	var refs []EntryRef
	for i := range lines {
		refs = append(refs, lines[i].Refs()...)
	}
	byRef, err := s.entries.GetEntries(ctx, refs)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load entries: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		if len(line.Details) == 0 {
			continue
		}
		for _, d := range []Dimension{DimensionFrontend, DimensionBackend} {
			if line.IsPaid(d) {
				continue
			}
			unanimous := true
			for _, detail := range line.Details {
				e, ok := byRef[detail.Ref]
				if !ok || !e.Paid(d) {
					unanimous = false
					break
				}
			}
			if unanimous {
				if err := s.batches.SetLinePaid(ctx, line.ID, d, true); err != nil {
					return nil, nil, fmt.Errorf("could not repair line flag: %w", err)
				}
				line.SetPaid(d, true)
			}
		}
	}
	return lines, byRef, nil
}

// =============================================================================
// BATCH SUMMARIES
// =============================================================================

// BatchSummary is the per-batch rollup shown on the batch pickers: paid
// percentage per dimension and how many constituent entries are overdue.
type BatchSummary struct {
	Batch           PayrollBatch
	Lines           int
	FrontendPaidPct float64
	BackendPaidPct  float64
	OverdueEntries  int
}

// Summaries rolls up every batch. Percentages are over lines, matching the
// display; overdue counts distinct unpaid-backend entries past the window.
func (s *Settlement) Summaries(ctx context.Context) ([]BatchSummary, error) {
	batches, err := s.batches.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list batches: %w", err)
	}

	now := s.now()
	summaries := make([]BatchSummary, 0, len(batches))
	for _, b := range batches {
		lines, err := s.batches.LinesByBatch(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("could not load lines for batch %s: %w", b.ID, err)
		}

		sum := BatchSummary{Batch: b, Lines: len(lines)}
		var frontPaid, backPaid int
		var refs []EntryRef
		for i := range lines {
			if lines[i].FrontendIsPaid {
				frontPaid++
			}
			if lines[i].BackendIsPaid {
				backPaid++
			}
			refs = append(refs, lines[i].Refs()...)
		}
		if len(lines) > 0 {
			sum.FrontendPaidPct = roundPct(frontPaid, len(lines))
			sum.BackendPaidPct = roundPct(backPaid, len(lines))
		}

		byRef, err := s.entries.GetEntries(ctx, refs)
		if err != nil {
			return nil, fmt.Errorf("could not load entries for batch %s: %w", b.ID, err)
		}
		for _, e := range byRef {
			if overdue, _ := e.Overdue(now); overdue {
				sum.OverdueEntries++
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func roundPct(part, whole int) float64 {
	pct := float64(part) / float64(whole) * 100
	return float64(int(pct*100+0.5)) / 100
}
