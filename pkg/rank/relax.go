package rank

import (
	"github.com/shacharon/tavola/pkg/models"
)

// relaxOrder is the fixed order in which soft filters are removed when the
// post-filter output falls below the acceptable floor.
var relaxOrder = []string{"openState", "isGlutenFree", "minRatingBucket", "priceIntent"}

// RelaxResult reports what the relax policy did.
type RelaxResult struct {
	Items    []models.ResultItem
	Counters models.FilterCounters
	// Relaxed lists the soft filters that were removed, in order.
	Relaxed []string
	// Denied records hard constraints that blocked further relaxation.
	Denied []models.RelaxDenial
}

// Relax re-runs the post-filter with soft filters progressively removed until
// at least minAcceptable items survive or no soft filters remain. Hard
// constraints (isKosher, meatDairy) are never relaxed; each denial is
// recorded for the response meta.
func Relax(items []models.ResultItem, filters *models.SharedFilters, opts FilterOptions, minAcceptable int) RelaxResult {
	filtered, counters := PostFilter(items, filters, opts)
	result := RelaxResult{Items: filtered, Counters: counters}
	if filters == nil || len(filtered) >= minAcceptable {
		return result
	}

	working := *filters
	for _, field := range relaxOrder {
		if !isSet(&working, field) {
			continue
		}
		clearField(&working, field)
		result.Relaxed = append(result.Relaxed, field)

		filtered, counters = PostFilter(items, &working, opts)
		result.Items = filtered
		result.Counters = counters
		if len(filtered) >= minAcceptable {
			return result
		}
	}

	// Still below floor. Hard constraints stay; record the denials.
	if working.IsKosher {
		result.Denied = append(result.Denied, models.RelaxDenial{
			Field: "isKosher", ReasonCode: "HARD_CONSTRAINT",
		})
	}
	if working.MeatDairy != "" {
		result.Denied = append(result.Denied, models.RelaxDenial{
			Field: "meatDairy", ReasonCode: "HARD_CONSTRAINT",
		})
	}
	return result
}

func isSet(f *models.SharedFilters, field string) bool {
	switch field {
	case "openState":
		return f.OpenState != nil
	case "isGlutenFree":
		return f.IsGlutenFree
	case "minRatingBucket":
		return f.MinRatingBucket != models.RatingNone
	case "priceIntent":
		return f.PriceIntent != ""
	}
	return false
}

func clearField(f *models.SharedFilters, field string) {
	switch field {
	case "openState":
		f.OpenState = nil
	case "isGlutenFree":
		f.IsGlutenFree = false
	case "minRatingBucket":
		f.MinRatingBucket = models.RatingNone
	case "priceIntent":
		f.PriceIntent = ""
	}
}
