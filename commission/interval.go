package commission

import "time"

// =============================================================================
// INTERVAL RESOLVER - Which date range applies to a sale
// =============================================================================

// ResolveRange selects the date range that applies on refDate.
//
// A range matches when refDate >= Start and (End is nil or refDate <= End).
// When several ranges overlap, the one with the LATEST Start wins: the
// most-recently-opened rule supersedes older ones still in force. This
// tie-break is load-bearing for layered rate schedules and must not be
// changed to smallest-range or insertion order.
//
// A nil refDate (absent or unparseable sale date) matches nothing; callers
// fall back to the base rate rather than erroring.
func ResolveRange(ranges []DateRange, refDate *time.Time) *DateRange {
	if refDate == nil {
		return nil
	}

	var matched *DateRange
	for i := range ranges {
		dr := &ranges[i]
		if refDate.Before(dr.Start) {
			continue
		}
		if dr.End != nil && refDate.After(*dr.End) {
			continue
		}
		if matched == nil || dr.Start.After(matched.Start) {
			matched = dr
		}
	}
	return matched
}
