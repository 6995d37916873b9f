package places

import (
	"encoding/json"
	"strconv"

	"github.com/shacharon/tavola/pkg/models"
)

// maxPageSize is the normalizer's page-size ceiling. Providers occasionally
// return oversized pages; anything beyond the ceiling is dropped.
const maxPageSize = 20

// rawPlace is the provider's item shape.
type rawPlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Geometry         *rawGeo  `json:"geometry"`
	OpeningHours     *rawOpen `json:"opening_hours"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       *int     `json:"price_level"`
	Types            []string `json:"types"`
}

type rawGeo struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

type rawOpen struct {
	OpenNow *bool       `json:"open_now"`
	Periods []rawPeriod `json:"periods"`
}

type rawPeriod struct {
	Open  *rawPoint `json:"open"`
	Close *rawPoint `json:"close"`
}

type rawPoint struct {
	Day  int    `json:"day"`
	Time string `json:"time"` // "HHMM"
}

type rawSearchResponse struct {
	Results       []rawPlace `json:"results"`
	NextPageToken string     `json:"next_page_token"`
}

type rawGeocodeResponse struct {
	Results []struct {
		Geometry rawGeo `json:"geometry"`
	} `json:"results"`
}

// normalizeSearchPage maps a provider payload to domain items.
// Items without a placeId are silently dropped.
func normalizeSearchPage(body []byte) (*SearchPage, error) {
	var raw rawSearchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindHTTPError, Err: err}
	}

	items := make([]models.ResultItem, 0, len(raw.Results))
	for _, r := range raw.Results {
		if r.PlaceID == "" {
			continue
		}
		items = append(items, normalizePlace(r))
		if len(items) >= maxPageSize {
			break
		}
	}
	return &SearchPage{Items: items, NextPageToken: raw.NextPageToken}, nil
}

func normalizePlace(r rawPlace) models.ResultItem {
	item := models.ResultItem{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		Address:          r.FormattedAddress,
		OpenNow:          models.TriUnknown,
		Rating:           r.Rating,
		UserRatingsTotal: r.UserRatingsTotal,
		PriceLevel:       r.PriceLevel,
		Types:            r.Types,
	}
	if item.Address == "" {
		item.Address = r.Vicinity
	}
	if r.Geometry != nil {
		item.Location = models.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	if r.OpeningHours != nil {
		if r.OpeningHours.OpenNow != nil {
			if *r.OpeningHours.OpenNow {
				item.OpenNow = models.TriTrue
			} else {
				item.OpenNow = models.TriFalse
			}
		}
		item.OpeningPeriods = normalizePeriods(r.OpeningHours.Periods)
	}
	return item
}

// normalizePeriods converts "HHMM" points into minute-based periods.
// A period without a close point means always-open; it is expressed as a
// full-week span. Unparseable points are skipped.
func normalizePeriods(periods []rawPeriod) []models.OpeningPeriod {
	out := make([]models.OpeningPeriod, 0, len(periods))
	for _, p := range periods {
		if p.Open == nil {
			continue
		}
		openMin, ok := parseHHMM(p.Open.Time)
		if !ok {
			continue
		}
		if p.Close == nil {
			out = append(out, models.OpeningPeriod{
				OpenDay: p.Open.Day, OpenMinute: openMin,
				CloseDay: p.Open.Day, CloseMinute: openMin,
			})
			continue
		}
		closeMin, ok := parseHHMM(p.Close.Time)
		if !ok {
			continue
		}
		out = append(out, models.OpeningPeriod{
			OpenDay: p.Open.Day, OpenMinute: openMin,
			CloseDay: p.Close.Day, CloseMinute: closeMin,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseHHMM(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func normalizeGeocode(body []byte) (*models.LatLng, error) {
	var raw rawGeocodeResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindHTTPError, Err: err}
	}
	if len(raw.Results) == 0 {
		return nil, nil
	}
	loc := raw.Results[0].Geometry.Location
	return &models.LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}
