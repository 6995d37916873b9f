package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/models"
)

func ratingPtr(v float64) *float64 { return &v }
func pricePtr(v int) *int          { return &v }

func openItem(id string, open models.TriState) models.ResultItem {
	return models.ResultItem{PlaceID: id, Name: id, OpenNow: open}
}

func TestPostFilterNilFiltersPassThrough(t *testing.T) {
	items := []models.ResultItem{openItem("a", models.TriTrue), openItem("b", models.TriFalse)}
	out, counters := PostFilter(items, nil, DefaultFilterOptions())
	assert.Len(t, out, 2)
	assert.Equal(t, 2, counters.Before)
	assert.Equal(t, 2, counters.After)
	assert.Equal(t, 0, counters.Removed)
}

func TestPostFilterOpenNow(t *testing.T) {
	items := []models.ResultItem{
		openItem("open", models.TriTrue),
		openItem("closed", models.TriFalse),
		openItem("unknown", models.TriUnknown),
	}
	filters := &models.SharedFilters{OpenState: &models.OpenStateFilter{Kind: models.OpenNow}}

	out, counters := PostFilter(items, filters, DefaultFilterOptions())
	require.Len(t, out, 2)
	assert.Equal(t, "open", out[0].PlaceID)
	assert.Equal(t, "unknown", out[1].PlaceID)
	assert.Equal(t, 1, counters.Removed)
	assert.Equal(t, 1, counters.UnknownKept)
	assert.Equal(t, 0, counters.UnknownRemoved)

	// Flipping the unknown policy removes the unknown item instead.
	out, counters = PostFilter(items, filters, FilterOptions{KeepUnknownOpen: false})
	require.Len(t, out, 1)
	assert.Equal(t, "open", out[0].PlaceID)
	assert.Equal(t, 1, counters.UnknownRemoved)
	assert.Equal(t, 0, counters.UnknownKept)
}

func TestPostFilterClosedNowInverts(t *testing.T) {
	items := []models.ResultItem{
		openItem("open", models.TriTrue),
		openItem("closed", models.TriFalse),
		openItem("unknown", models.TriUnknown),
	}
	filters := &models.SharedFilters{OpenState: &models.OpenStateFilter{Kind: models.ClosedNow}}

	out, _ := PostFilter(items, filters, DefaultFilterOptions())
	require.Len(t, out, 2)
	assert.Equal(t, "closed", out[0].PlaceID)
	assert.Equal(t, "unknown", out[1].PlaceID)
}

func TestPostFilterMinRating(t *testing.T) {
	items := []models.ResultItem{
		{PlaceID: "high", Rating: ratingPtr(4.6)},
		{PlaceID: "low", Rating: ratingPtr(3.9)},
		{PlaceID: "unrated"},
	}
	filters := &models.SharedFilters{MinRatingBucket: models.Rating40}

	out, counters := PostFilter(items, filters, DefaultFilterOptions())
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].PlaceID)
	assert.Equal(t, "unrated", out[1].PlaceID, "unrated items are kept")
	assert.Equal(t, 1, counters.UnknownKept)
}

func TestPostFilterPriceIntent(t *testing.T) {
	items := []models.ResultItem{
		{PlaceID: "cheap", PriceLevel: pricePtr(1)},
		{PlaceID: "mid", PriceLevel: pricePtr(2)},
		{PlaceID: "posh", PriceLevel: pricePtr(4)},
		{PlaceID: "unknown"},
	}

	tests := []struct {
		intent string
		want   []string
	}{
		{intent: "cheap", want: []string{"cheap", "unknown"}},
		{intent: "moderate", want: []string{"mid", "unknown"}},
		{intent: "expensive", want: []string{"posh", "unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			out, _ := PostFilter(items, &models.SharedFilters{PriceIntent: tt.intent}, DefaultFilterOptions())
			ids := make([]string, len(out))
			for i, item := range out {
				ids[i] = item.PlaceID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestPostFilterCountersBalance(t *testing.T) {
	items := []models.ResultItem{
		openItem("a", models.TriTrue),
		openItem("b", models.TriFalse),
		openItem("c", models.TriFalse),
		openItem("d", models.TriUnknown),
	}
	filters := &models.SharedFilters{OpenState: &models.OpenStateFilter{Kind: models.OpenNow}}

	_, counters := PostFilter(items, filters, DefaultFilterOptions())
	assert.Equal(t, counters.Before, counters.After+counters.Removed)
}

func TestAnnotateDietary(t *testing.T) {
	items := []models.ResultItem{
		{PlaceID: "gf", Types: []string{"restaurant", "gluten_free"}},
		{PlaceID: "plain", Types: []string{"restaurant"}},
	}

	out := AnnotateDietary(items, &models.SharedFilters{IsGlutenFree: true})
	require.Len(t, out, 2, "annotation never removes items")
	assert.Contains(t, out[0].Annotations, "gluten_free_friendly")
	assert.Empty(t, out[1].Annotations)

	// Without the flag nothing is annotated.
	fresh := []models.ResultItem{{PlaceID: "gf", Types: []string{"gluten_free"}}}
	out = AnnotateDietary(fresh, nil)
	assert.Empty(t, out[0].Annotations)
}
