package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// =============================================================================
// RANGE SELECTION TESTS
// =============================================================================

func TestResolveRange_SingleMatch(t *testing.T) {
	// GIVEN: One range covering January
	// WHEN: Resolving a mid-January date
	// THEN: That range is selected

	ranges := []commission.DateRange{
		{ID: "jan", Start: date(2025, time.January, 1), End: datePtr(2025, time.January, 31)},
	}

	matched := commission.ResolveRange(ranges, datePtr(2025, time.January, 15))
	require.NotNil(t, matched)
	assert.Equal(t, "jan", matched.ID)
}

func TestResolveRange_BoundsAreInclusive(t *testing.T) {
	// GIVEN: A range from Jan 1 to Jan 31
	// WHEN: Resolving the exact start and end dates
	// THEN: Both match; one day outside either bound does not

	ranges := []commission.DateRange{
		{ID: "jan", Start: date(2025, time.January, 1), End: datePtr(2025, time.January, 31)},
	}

	assert.NotNil(t, commission.ResolveRange(ranges, datePtr(2025, time.January, 1)), "start date should match")
	assert.NotNil(t, commission.ResolveRange(ranges, datePtr(2025, time.January, 31)), "end date should match")
	assert.Nil(t, commission.ResolveRange(ranges, datePtr(2024, time.December, 31)), "day before start should not match")
	assert.Nil(t, commission.ResolveRange(ranges, datePtr(2025, time.February, 1)), "day after end should not match")
}

func TestResolveRange_OpenEnded(t *testing.T) {
	// GIVEN: A range with no end date
	// WHEN: Resolving a date far past the start
	// THEN: The range still matches

	ranges := []commission.DateRange{
		{ID: "open", Start: date(2025, time.January, 1), End: nil},
	}

	matched := commission.ResolveRange(ranges, datePtr(2030, time.June, 1))
	require.NotNil(t, matched)
	assert.Equal(t, "open", matched.ID)
}

func TestResolveRange_OverlappingRanges_LatestStartWins(t *testing.T) {
	// GIVEN: An open-ended range from Jan 1 and a narrower promo from Mar 1
	// WHEN: Resolving a date both ranges cover
	// THEN: The range with the later start wins, regardless of list order

	base := commission.DateRange{ID: "base", Start: date(2025, time.January, 1), End: nil}
	promo := commission.DateRange{ID: "promo", Start: date(2025, time.March, 1), End: datePtr(2025, time.March, 31)}

	matched := commission.ResolveRange([]commission.DateRange{base, promo}, datePtr(2025, time.March, 15))
	require.NotNil(t, matched)
	assert.Equal(t, "promo", matched.ID)

	// Same result when the list order is reversed.
	matched = commission.ResolveRange([]commission.DateRange{promo, base}, datePtr(2025, time.March, 15))
	require.NotNil(t, matched)
	assert.Equal(t, "promo", matched.ID, "selection must not depend on insertion order")
}

func TestResolveRange_AfterPromoEnds_FallsBackToEarlierRange(t *testing.T) {
	// GIVEN: The same layered schedule
	// WHEN: Resolving a date after the promo window closed
	// THEN: The still-open earlier range matches again

	ranges := []commission.DateRange{
		{ID: "base", Start: date(2025, time.January, 1), End: nil},
		{ID: "promo", Start: date(2025, time.March, 1), End: datePtr(2025, time.March, 31)},
	}

	matched := commission.ResolveRange(ranges, datePtr(2025, time.April, 10))
	require.NotNil(t, matched)
	assert.Equal(t, "base", matched.ID)
}

func TestResolveRange_NilDate_MatchesNothing(t *testing.T) {
	// GIVEN: Ranges that would match any 2025 date
	// WHEN: The sale date is absent
	// THEN: No range matches; callers fall back to base rates

	ranges := []commission.DateRange{
		{ID: "open", Start: date(2025, time.January, 1), End: nil},
	}

	assert.Nil(t, commission.ResolveRange(ranges, nil))
}

func TestResolveRange_NoRanges(t *testing.T) {
	// GIVEN: An empty range list
	// WHEN: Resolving any date
	// THEN: Nothing matches

	assert.Nil(t, commission.ResolveRange(nil, datePtr(2025, time.January, 15)))
}
