package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/models"
)

func TestRelaxNoopWhenAboveFloor(t *testing.T) {
	items := []models.ResultItem{
		openItem("a", models.TriTrue),
		openItem("b", models.TriTrue),
		openItem("c", models.TriTrue),
	}
	filters := &models.SharedFilters{OpenState: &models.OpenStateFilter{Kind: models.OpenNow}}

	result := Relax(items, filters, DefaultFilterOptions(), 3)
	assert.Len(t, result.Items, 3)
	assert.Empty(t, result.Relaxed)
	assert.Empty(t, result.Denied)
}

func TestRelaxRemovesSoftFiltersInOrder(t *testing.T) {
	// Everything is closed and low-rated; openState alone is not enough to
	// recover, so minRatingBucket goes next.
	items := []models.ResultItem{
		{PlaceID: "a", OpenNow: models.TriFalse, Rating: ratingPtr(3.0)},
		{PlaceID: "b", OpenNow: models.TriFalse, Rating: ratingPtr(3.2)},
		{PlaceID: "c", OpenNow: models.TriFalse, Rating: ratingPtr(4.5)},
	}
	filters := &models.SharedFilters{
		OpenState:       &models.OpenStateFilter{Kind: models.OpenNow},
		MinRatingBucket: models.Rating40,
	}

	result := Relax(items, filters, DefaultFilterOptions(), 3)
	assert.Equal(t, []string{"openState", "minRatingBucket"}, result.Relaxed)
	assert.Len(t, result.Items, 3)
}

func TestRelaxStopsAtFirstSufficientStep(t *testing.T) {
	items := []models.ResultItem{
		{PlaceID: "a", OpenNow: models.TriFalse, Rating: ratingPtr(4.5)},
		{PlaceID: "b", OpenNow: models.TriFalse, Rating: ratingPtr(4.6)},
	}
	filters := &models.SharedFilters{
		OpenState:       &models.OpenStateFilter{Kind: models.OpenNow},
		MinRatingBucket: models.Rating40,
	}

	result := Relax(items, filters, DefaultFilterOptions(), 2)
	assert.Equal(t, []string{"openState"}, result.Relaxed, "rating filter is untouched once the floor is met")
	assert.Len(t, result.Items, 2)
}

func TestRelaxNeverTouchesHardConstraints(t *testing.T) {
	items := []models.ResultItem{
		{PlaceID: "a", OpenNow: models.TriFalse},
	}
	filters := &models.SharedFilters{
		OpenState: &models.OpenStateFilter{Kind: models.OpenNow},
		IsKosher:  true,
		MeatDairy: "meat",
	}

	result := Relax(items, filters, DefaultFilterOptions(), 5)
	require.Len(t, result.Denied, 2)
	assert.Equal(t, models.RelaxDenial{Field: "isKosher", ReasonCode: "HARD_CONSTRAINT"}, result.Denied[0])
	assert.Equal(t, models.RelaxDenial{Field: "meatDairy", ReasonCode: "HARD_CONSTRAINT"}, result.Denied[1])
	assert.Equal(t, []string{"openState"}, result.Relaxed)
}

func TestRelaxDoesNotMutateCallerFilters(t *testing.T) {
	items := []models.ResultItem{openItem("a", models.TriFalse)}
	filters := &models.SharedFilters{
		OpenState:   &models.OpenStateFilter{Kind: models.OpenNow},
		PriceIntent: "cheap",
	}

	_ = Relax(items, filters, DefaultFilterOptions(), 5)
	assert.NotNil(t, filters.OpenState)
	assert.Equal(t, "cheap", filters.PriceIntent)
}

func TestRelaxNilFilters(t *testing.T) {
	items := []models.ResultItem{openItem("a", models.TriTrue)}
	result := Relax(items, nil, DefaultFilterOptions(), 5)
	assert.Len(t, result.Items, 1)
	assert.Empty(t, result.Relaxed)
}
