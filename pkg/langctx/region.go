package langctx

import (
	"strings"

	"github.com/shacharon/tavola/pkg/models"
)

// regionAllowlist is the set of region codes the provider accepts.
// Codes outside this set are rejected and the default region is kept.
var regionAllowlist = map[string]bool{
	"IL": true, "US": true, "GB": true, "FR": true, "ES": true,
	"IT": true, "DE": true, "RU": true, "AE": true, "EG": true,
	"JO": true, "GR": true, "CY": true, "TR": true, "NL": true,
	"BE": true, "PT": true, "CA": true, "AU": true, "MX": true,
	"AR": true, "BR": true, "CH": true, "AT": true, "PL": true,
	"CZ": true, "GE": true, "TH": true, "JP": true, "IN": true,
}

// Israel bounding box used for the GZ sanitization rule.
const (
	ilLatMin = 29.45
	ilLatMax = 33.35
	ilLngMin = 34.25
	ilLngMax = 35.90
)

func insideILBoundingBox(loc *models.LatLng) bool {
	if loc == nil {
		return false
	}
	return loc.Lat >= ilLatMin && loc.Lat <= ilLatMax &&
		loc.Lng >= ilLngMin && loc.Lng <= ilLngMax
}

// SanitizeRegion validates a candidate region code against the allowlist and
// fixes known model mistakes:
//   - "IS" (Iceland, commonly emitted for Israel) → "IL"
//   - "GZ" → "IL" only when the user location is inside the IL bounding box;
//     otherwise the candidate is rejected.
//
// Returns the sanitized code and whether the candidate was accepted. A
// rejected candidate leaves region selection to the caller's default.
func SanitizeRegion(candidate string, userLocation *models.LatLng) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(candidate))
	if code == "" {
		return "", false
	}

	switch code {
	case "IS":
		code = "IL"
	case "GZ":
		if !insideILBoundingBox(userLocation) {
			return "", false
		}
		code = "IL"
	}

	if !regionAllowlist[code] {
		return "", false
	}
	return code, true
}
