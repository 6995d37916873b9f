package rank

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shacharon/tavola/pkg/models"
)

const minutesPerWeek = 7 * 24 * 60

// parseClock parses "HH:MM" into minutes from midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// weekMinute converts (day, minuteOfDay) to an absolute minute in the week.
func weekMinute(day, minute int) int {
	return ((day%7)*24*60 + minute) % minutesPerWeek
}

// periodContains reports whether the absolute week minute t falls inside the
// period. Periods crossing midnight (and the week boundary) are handled by
// unrolling the close edge past the open edge.
func periodContains(p models.OpeningPeriod, t int) bool {
	open := weekMinute(p.OpenDay, p.OpenMinute)
	close := weekMinute(p.CloseDay, p.CloseMinute)
	if close <= open {
		close += minutesPerWeek
	}
	if t < open {
		t += minutesPerWeek
	}
	return t >= open && t < close
}

// openAt evaluates whether the item is open at (day, "HH:MM").
// Items without structured periods are unknown.
func openAt(item models.ResultItem, day int, clock string) (models.TriState, error) {
	minute, err := parseClock(clock)
	if err != nil {
		return models.TriUnknown, err
	}
	if len(item.OpeningPeriods) == 0 {
		return models.TriUnknown, nil
	}
	t := weekMinute(day, minute)
	for _, p := range item.OpeningPeriods {
		if periodContains(p, t) {
			return models.TriTrue, nil
		}
	}
	return models.TriFalse, nil
}

// openBetween evaluates whether the item is open for the whole [start, end)
// range on the given day. Two-endpoint check: the range is satisfied when
// both endpoints fall inside the same period (handles ranges crossing
// midnight via the period unrolling in periodContains).
func openBetween(item models.ResultItem, day int, start, end string) (models.TriState, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return models.TriUnknown, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return models.TriUnknown, err
	}
	if len(item.OpeningPeriods) == 0 {
		return models.TriUnknown, nil
	}

	ts := weekMinute(day, startMin)
	te := weekMinute(day, endMin)
	if endMin <= startMin {
		// Range crosses midnight into the next day.
		te = weekMinute(day+1, endMin)
	}
	// End is exclusive; probe the last minute inside the range.
	te = (te - 1 + minutesPerWeek) % minutesPerWeek

	for _, p := range item.OpeningPeriods {
		if periodContains(p, ts) && periodContains(p, te) {
			return models.TriTrue, nil
		}
	}
	return models.TriFalse, nil
}

// evalOpenState resolves an item against an open-state filter to a TriState.
// Unparseable filters degrade to unknown, never to an error for the caller.
func evalOpenState(item models.ResultItem, f models.OpenStateFilter) models.TriState {
	switch f.Kind {
	case models.OpenNow:
		return item.OpenNow
	case models.ClosedNow:
		switch item.OpenNow {
		case models.TriTrue:
			return models.TriFalse
		case models.TriFalse:
			return models.TriTrue
		default:
			return models.TriUnknown
		}
	case models.OpenAt:
		state, err := openAt(item, f.Day, f.Start)
		if err != nil {
			return models.TriUnknown
		}
		return state
	case models.OpenBetween:
		state, err := openBetween(item, f.Day, f.Start, f.End)
		if err != nil {
			return models.TriUnknown
		}
		return state
	}
	return models.TriUnknown
}
