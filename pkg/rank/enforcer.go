package rank

import (
	"context"
	"log/slog"

	"github.com/shacharon/tavola/pkg/models"
)

// CuisineEnforcer scores candidates for cuisine affinity. Implementations
// delegate to an LLM; scores are in [0,1]. The enforcer is BOOST-only:
// it never drops candidates, it only feeds the cuisineMatch sub-score.
type CuisineEnforcer interface {
	ScoreCuisine(ctx context.Context, cuisineKey string, items []models.ResultItem) (map[string]float64, error)
}

// hardConstraintCuisines are cuisine keys under which the enforcer is
// policy-capped to BOOST regardless of what the implementation reports.
// (With a BOOST-only interface the cap is structural; the set is kept for
// the policy check below and for meta reporting.)
var hardConstraintCuisines = map[string]bool{
	"kosher": true,
	"meat":   true,
	"dairy":  true,
}

// EnforceCuisine runs the enforcer and returns the score map. Any enforcer
// failure degrades to neutral scores — ranking proceeds without the boost.
func EnforceCuisine(ctx context.Context, enforcer CuisineEnforcer, filters *models.SharedFilters, cuisineKey string, items []models.ResultItem) map[string]float64 {
	if enforcer == nil || cuisineKey == "" || len(items) == 0 {
		return nil
	}

	scores, err := enforcer.ScoreCuisine(ctx, cuisineKey, items)
	if err != nil {
		slog.Warn("Cuisine enforcer failed, ranking without boost",
			"cuisine_key", cuisineKey, "error", err)
		return nil
	}

	// Under hard constraints the enforcer must not be able to zero out a
	// candidate into oblivion: floor scores at neutral.
	if hardConstraintCuisines[cuisineKey] || (filters != nil && (filters.IsKosher || filters.MeatDairy != "")) {
		for id, s := range scores {
			if s < 0.5 {
				scores[id] = 0.5
			}
		}
	}
	return scores
}
