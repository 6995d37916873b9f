package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/models"
)

func TestValidateProfiles(t *testing.T) {
	require.NoError(t, ValidateProfiles())
}

func TestProfileWeightsSumToOne(t *testing.T) {
	for name, w := range profiles {
		assert.InDelta(t, 1.0, w.sum(), weightSumTolerance, "profile %s", name)
	}
}

func TestSelectProfile(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    ProfileName
	}{
		{
			name:    "no user location wins over everything",
			signals: Signals{HasUserLocation: false, CuisineKey: "french", QualityIntent: true},
			want:    ProfileNoLocation,
		},
		{
			name:    "nearby route selects distance heavy",
			signals: Signals{HasUserLocation: true, Route: models.RouteNearbySearch, CuisineKey: "french"},
			want:    ProfileDistanceHeavy,
		},
		{
			name:    "proximity intent reason selects distance heavy",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch, IntentReason: "proximity_keywords"},
			want:    ProfileDistanceHeavy,
		},
		{
			name:    "quality cuisine selects quality focused",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch, CuisineKey: "fine_dining"},
			want:    ProfileQualityFocused,
		},
		{
			name:    "quality intent selects quality focused",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch, QualityIntent: true},
			want:    ProfileQualityFocused,
		},
		{
			name:    "romantic occasion selects quality focused",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch, Occasion: "romantic"},
			want:    ProfileQualityFocused,
		},
		{
			name:    "plain cuisine selects cuisine focused",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch, CuisineKey: "sushi"},
			want:    ProfileCuisineFocused,
		},
		{
			name:    "nothing special selects balanced",
			signals: Signals{HasUserLocation: true, Route: models.RouteTextSearch},
			want:    ProfileBalanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectProfile(tt.signals))
		})
	}
}

func TestSelectDistanceOrigin(t *testing.T) {
	loc := &models.LatLng{Lat: 32.08, Lng: 34.78}

	tests := []struct {
		name         string
		intentReason string
		cityGeocoded bool
		userLocation *models.LatLng
		want         DistanceOrigin
	}{
		{
			name:         "explicit geocoded city wins over user location",
			intentReason: "explicit_city_mentioned",
			cityGeocoded: true,
			userLocation: loc,
			want:         OriginCityCenter,
		},
		{
			name:         "explicit city without geocode falls back to user location",
			intentReason: "explicit_city_mentioned",
			userLocation: loc,
			want:         OriginUserLocation,
		},
		{
			name:         "user location when no city",
			userLocation: loc,
			want:         OriginUserLocation,
		},
		{
			name: "no anchor at all",
			want: OriginNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectDistanceOrigin(tt.intentReason, tt.cityGeocoded, tt.userLocation))
		})
	}
}
