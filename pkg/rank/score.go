package rank

import (
	"math"
	"sort"

	"github.com/shacharon/tavola/pkg/models"
)

// maxDistanceMeters bounds the distance normalization (clamp(1 - d/Rmax)).
const maxDistanceMeters = 10_000.0

// ScoreInput carries everything score composition needs.
type ScoreInput struct {
	Profile ProfileName
	Origin  DistanceOrigin
	// OriginPoint is the resolved anchor (city center or user location).
	// Ignored when Origin is NONE.
	OriginPoint models.LatLng
	// CuisineScores maps placeId → [0,1] from the cuisine enforcer.
	// Missing entries score 0.5 (neutral).
	CuisineScores map[string]float64
}

// Rank sorts items by composite score, descending, with placeId as the
// deterministic tie-break. The input slice is not mutated.
func Rank(items []models.ResultItem, in ScoreInput) []models.ResultItem {
	w := ProfileWeights(in.Profile)
	maxReviews := 0
	for _, item := range items {
		if item.UserRatingsTotal > maxReviews {
			maxReviews = item.UserRatingsTotal
		}
	}

	type scored struct {
		item  models.ResultItem
		score float64
	}
	out := make([]scored, len(items))
	for i, item := range items {
		out[i] = scored{item: item, score: composite(item, w, in, maxReviews)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].item.PlaceID < out[j].item.PlaceID
	})

	ranked := make([]models.ResultItem, len(out))
	for i, s := range out {
		ranked[i] = s.item
	}
	return ranked
}

// composite computes Σ wᵢ·sᵢ over the normalized sub-scores.
func composite(item models.ResultItem, w Weights, in ScoreInput, maxReviews int) float64 {
	score := w.Rating * ratingScore(item)
	score += w.Reviews * reviewsScore(item, maxReviews)
	if in.Origin != OriginNone {
		score += w.Distance * distanceScore(item, in.OriginPoint)
	}
	score += w.OpenBoost * openBoost(item)
	score += w.CuisineMatch * cuisineScore(item, in.CuisineScores)
	return score
}

func ratingScore(item models.ResultItem) float64 {
	if item.Rating == nil {
		return 0
	}
	return clamp01(*item.Rating / 5.0)
}

func reviewsScore(item models.ResultItem, maxReviews int) float64 {
	if item.UserRatingsTotal <= 0 || maxReviews <= 0 {
		return 0
	}
	return clamp01(math.Log1p(float64(item.UserRatingsTotal)) / math.Log1p(float64(maxReviews)))
}

func distanceScore(item models.ResultItem, origin models.LatLng) float64 {
	d := HaversineMeters(origin, item.Location)
	return clamp01(1.0 - d/maxDistanceMeters)
}

func openBoost(item models.ResultItem) float64 {
	switch item.OpenNow {
	case models.TriTrue:
		return 1.0
	case models.TriUnknown:
		return 0.5
	}
	return 0.0
}

func cuisineScore(item models.ResultItem, scores map[string]float64) float64 {
	if scores == nil {
		return 0.5
	}
	s, ok := scores[item.PlaceID]
	if !ok {
		return 0.5
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const earthRadiusMeters = 6_371_000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
