package rank

import (
	"github.com/shacharon/tavola/pkg/models"
)

// FilterOptions tunes post-filter behavior.
type FilterOptions struct {
	// KeepUnknownOpen keeps items whose open state cannot be determined
	// when an open-state filter is active. Default true.
	KeepUnknownOpen bool
}

// DefaultFilterOptions returns the default tuning.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{KeepUnknownOpen: true}
}

// PostFilter applies the deterministic filters and returns the surviving
// items plus counters. Dietary hints are annotations only and never remove
// items here; hard constraints are enforced upstream by provider query
// construction and the cuisine enforcer cap.
func PostFilter(items []models.ResultItem, filters *models.SharedFilters, opts FilterOptions) ([]models.ResultItem, models.FilterCounters) {
	counters := models.FilterCounters{Before: len(items)}
	if filters == nil {
		counters.After = len(items)
		return items, counters
	}

	out := make([]models.ResultItem, 0, len(items))
	for _, item := range items {
		keep, unknown := passes(item, filters, opts)
		if keep {
			out = append(out, item)
			if unknown {
				counters.UnknownKept++
			}
		} else if unknown {
			counters.UnknownRemoved++
		}
	}

	counters.After = len(out)
	counters.Removed = counters.Before - counters.After
	return out, counters
}

// passes evaluates one item against all filter axes.
// unknown reports whether an unknown value participated in the decision.
func passes(item models.ResultItem, f *models.SharedFilters, opts FilterOptions) (keep, unknown bool) {
	if f.OpenState != nil {
		switch evalOpenState(item, *f.OpenState) {
		case models.TriFalse:
			return false, false
		case models.TriUnknown:
			unknown = true
			if !opts.KeepUnknownOpen {
				return false, true
			}
		}
	}

	if threshold := f.MinRatingBucket.Threshold(); threshold > 0 {
		if item.Rating == nil {
			// Unrated items are kept by default.
			unknown = true
		} else if *item.Rating < threshold {
			return false, unknown
		}
	}

	if f.PriceIntent != "" && item.PriceLevel != nil {
		if !priceMatches(f.PriceIntent, *item.PriceLevel) {
			return false, unknown
		}
	}

	return true, unknown
}

// priceMatches maps price intent words to provider price levels (0–4).
func priceMatches(intent string, level int) bool {
	switch intent {
	case "cheap":
		return level <= 1
	case "moderate":
		return level == 2
	case "expensive":
		return level >= 3
	}
	return true
}

// AnnotateDietary adds advisory dietary annotations without removing items.
func AnnotateDietary(items []models.ResultItem, filters *models.SharedFilters) []models.ResultItem {
	if filters == nil || !filters.IsGlutenFree {
		return items
	}
	for i := range items {
		for _, t := range items[i].Types {
			if t == "gluten_free" || t == "health_food" {
				items[i].Annotations = append(items[i].Annotations, "gluten_free_friendly")
				break
			}
		}
	}
	return items
}
