package pipeline

import (
	"github.com/shacharon/tavola/pkg/llm"
	"github.com/shacharon/tavola/pkg/models"
)

// Radii for location-anchored provider calls.
const (
	defaultNearbyRadiusM = 3000
	landmarkRadiusM      = 1500
)

// decideRoute maps intent to a provider method. guard=true means the query
// has no location anchor at all (no city, no landmark, no user location, no
// explicit near-me) and must be answered with CLARIFY{LOCATION_REQUIRED}.
func decideRoute(intent *llm.Intent, req *models.SearchRequest) (models.RouteKind, bool) {
	switch {
	case intent.LandmarkText != "":
		return models.RouteLandmarkPlan, false
	case intent.NearMe && req.UserLocation != nil:
		return models.RouteNearbySearch, false
	case intent.CityText == "" && intent.LandmarkText == "" && req.UserLocation == nil && !intent.NearMe:
		return models.RouteTextSearch, true
	default:
		return models.RouteTextSearch, false
	}
}

// keywordFor picks the provider keyword for nearby calls.
func keywordFor(intent *llm.Intent, query string) string {
	if intent.CuisineKey != "" {
		return intent.CuisineKey
	}
	return query
}

// effectiveFilters merges explicit request filters with intent-derived ones.
// Explicit client filters win per axis. Returns nil when nothing is set.
func effectiveFilters(req *models.SearchRequest, intent *llm.Intent) *models.SharedFilters {
	var f models.SharedFilters
	if req.Filters != nil {
		f = *req.Filters
	}
	if f.OpenState == nil {
		f.OpenState = intent.OpenState
	}
	if f.PriceIntent == "" {
		f.PriceIntent = intent.PriceIntent
	}
	if f.MinRatingBucket == models.RatingNone {
		f.MinRatingBucket = intent.MinRatingBucket
	}
	if !f.IsGlutenFree {
		f.IsGlutenFree = intent.IsGlutenFree
	}
	if !f.IsKosher {
		f.IsKosher = intent.IsKosher
	}
	if f.MeatDairy == "" {
		f.MeatDairy = intent.MeatDairy
	}

	if f.OpenState == nil && f.PriceIntent == "" && f.MinRatingBucket == models.RatingNone &&
		!f.IsGlutenFree && !f.IsKosher && f.MeatDairy == "" {
		return nil
	}
	return &f
}
