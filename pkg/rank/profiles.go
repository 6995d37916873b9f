// Package rank implements the deterministic post-filter and ranking kernel:
// weight profile selection, score composition, the relax policy, and the
// BOOST-only cuisine enforcer contract. Everything here is a pure function
// of structured signals — no language-dependent behavior.
package rank

import (
	"fmt"
	"math"

	"github.com/shacharon/tavola/pkg/models"
)

// ProfileName identifies a ranking weight profile.
type ProfileName string

// Ranking profiles.
const (
	ProfileNoLocation     ProfileName = "NO_LOCATION"
	ProfileDistanceHeavy  ProfileName = "DISTANCE_HEAVY"
	ProfileBalanced       ProfileName = "BALANCED"
	ProfileCuisineFocused ProfileName = "CUISINE_FOCUSED"
	ProfileQualityFocused ProfileName = "QUALITY_FOCUSED"
)

// Weights is the scoring weight vector. All components are in [0,1] and the
// vector sums to 1.0 (validated at startup).
type Weights struct {
	Rating       float64
	Reviews      float64
	Distance     float64
	OpenBoost    float64
	CuisineMatch float64
}

func (w Weights) sum() float64 {
	return w.Rating + w.Reviews + w.Distance + w.OpenBoost + w.CuisineMatch
}

// profiles maps each profile to its weight vector.
var profiles = map[ProfileName]Weights{
	ProfileNoLocation:     {Rating: 0.40, Reviews: 0.25, Distance: 0.00, OpenBoost: 0.15, CuisineMatch: 0.20},
	ProfileDistanceHeavy:  {Rating: 0.20, Reviews: 0.10, Distance: 0.45, OpenBoost: 0.15, CuisineMatch: 0.10},
	ProfileBalanced:       {Rating: 0.30, Reviews: 0.15, Distance: 0.25, OpenBoost: 0.15, CuisineMatch: 0.15},
	ProfileCuisineFocused: {Rating: 0.25, Reviews: 0.10, Distance: 0.15, OpenBoost: 0.10, CuisineMatch: 0.40},
	ProfileQualityFocused: {Rating: 0.45, Reviews: 0.25, Distance: 0.05, OpenBoost: 0.05, CuisineMatch: 0.20},
}

// weightSumTolerance is the allowed deviation from 1.0.
const weightSumTolerance = 1e-3

// ValidateProfiles checks every profile's weight vector. Called at startup;
// a failing profile aborts the process.
func ValidateProfiles() error {
	for name, w := range profiles {
		for label, v := range map[string]float64{
			"rating": w.Rating, "reviews": w.Reviews, "distance": w.Distance,
			"open_boost": w.OpenBoost, "cuisine_match": w.CuisineMatch,
		} {
			if v < 0 || v > 1 {
				return fmt.Errorf("profile %s: weight %s=%v outside [0,1]", name, label, v)
			}
		}
		if math.Abs(w.sum()-1.0) > weightSumTolerance {
			return fmt.Errorf("profile %s: weights sum to %v, want 1.0", name, w.sum())
		}
	}
	return nil
}

// ProfileWeights returns the weight vector for a profile.
func ProfileWeights(name ProfileName) Weights {
	return profiles[name]
}

// qualityCuisines are cuisine keys that imply a quality-focused search.
var qualityCuisines = map[string]bool{
	"fine_dining":   true,
	"french":        true,
	"mediterranean": true,
}

// proximityIntentReasons is the exact set of intent reasons that select the
// distance-heavy profile. Callers extending this set must keep profile
// selection and intent decoding in lock-step.
var proximityIntentReasons = map[string]bool{
	"nearby_intent":         true,
	"proximity_keywords":    true,
	"small_radius_detected": true,
	"user_location_primary": true,
}

// Signals are the structured inputs to profile selection. Deterministic and
// language-independent by construction.
type Signals struct {
	Route            models.RouteKind
	HasUserLocation  bool
	IntentReason     string
	CuisineKey       string
	OpenNowRequested bool
	PriceIntent      string
	QualityIntent    bool
	Occasion         string
}

// SelectProfile picks the ranking profile. First match wins.
func SelectProfile(s Signals) ProfileName {
	switch {
	case !s.HasUserLocation:
		return ProfileNoLocation
	case s.Route == models.RouteNearbySearch || proximityIntentReasons[s.IntentReason]:
		return ProfileDistanceHeavy
	case qualityCuisines[s.CuisineKey] || s.QualityIntent || s.Occasion == "romantic":
		return ProfileQualityFocused
	case s.CuisineKey != "":
		return ProfileCuisineFocused
	default:
		return ProfileBalanced
	}
}

// DistanceOrigin identifies the anchor used for distance sub-scores.
type DistanceOrigin string

// Distance origin variants.
const (
	OriginCityCenter   DistanceOrigin = "CITY_CENTER"
	OriginUserLocation DistanceOrigin = "USER_LOCATION"
	OriginNone         DistanceOrigin = "NONE"
)

// SelectDistanceOrigin resolves the distance anchor. cityGeocoded reports
// whether an explicitly mentioned city was successfully geocoded.
func SelectDistanceOrigin(intentReason string, cityGeocoded bool, userLocation *models.LatLng) DistanceOrigin {
	if intentReason == "explicit_city_mentioned" && cityGeocoded {
		return OriginCityCenter
	}
	if userLocation != nil {
		return OriginUserLocation
	}
	return OriginNone
}
