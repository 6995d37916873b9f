package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shacharon/tavola/pkg/auth"
	"github.com/shacharon/tavola/pkg/models"
)

// idempotencyKey derives the stable dedup fingerprint from the normalized
// query, the caller identity, the coarse location, the language hint, and
// the filter signature. Identical concurrent submissions collapse onto one
// job through this key.
func idempotencyKey(req *models.SearchRequest, identity auth.Identity) string {
	owner := identity.UserID
	if owner == "" {
		owner = identity.SessionID
	}

	parts := []string{
		normalizeQuery(req.Query),
		owner,
		coarseLocation(req.UserLocation),
		req.Language,
		filterSignature(req.Filters),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// normalizeQuery lowercases and collapses whitespace so trivially different
// retypes of the same query dedup together.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// coarseLocation rounds to ~1 km so GPS jitter does not defeat dedup.
func coarseLocation(loc *models.LatLng) string {
	if loc == nil {
		return ""
	}
	return fmt.Sprintf("%.2f,%.2f", loc.Lat, loc.Lng)
}

func filterSignature(f *models.SharedFilters) string {
	if f == nil {
		return ""
	}
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(data)
}
