package models

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OpenStateKind discriminates the open-state filter variants.
type OpenStateKind string

// Open-state filter variants.
const (
	OpenNow     OpenStateKind = "OPEN_NOW"
	ClosedNow   OpenStateKind = "CLOSED_NOW"
	OpenAt      OpenStateKind = "OPEN_AT"
	OpenBetween OpenStateKind = "OPEN_BETWEEN"
)

// OpenStateFilter is a tagged open-state constraint.
// Day is 0=Sunday..6=Saturday. Times are "HH:MM" local to the place.
// Start is used by OPEN_AT; Start+End by OPEN_BETWEEN.
type OpenStateFilter struct {
	Kind  OpenStateKind `json:"kind"`
	Day   int           `json:"day,omitempty"`
	Start string        `json:"start,omitempty"`
	End   string        `json:"end,omitempty"`
}

// RatingBucket is a minimum-rating threshold bucket.
type RatingBucket string

// Minimum rating buckets and their thresholds.
const (
	RatingNone RatingBucket = ""
	Rating35   RatingBucket = "R35"
	Rating40   RatingBucket = "R40"
	Rating45   RatingBucket = "R45"
)

// Threshold returns the numeric rating floor for the bucket, or 0 for none.
func (b RatingBucket) Threshold() float64 {
	switch b {
	case Rating35:
		return 3.5
	case Rating40:
		return 4.0
	case Rating45:
		return 4.5
	}
	return 0
}

// SharedFilters are the deterministic post-filter axes.
// Hard constraints (IsKosher, MeatDairy) are never relaxed.
type SharedFilters struct {
	OpenState       *OpenStateFilter `json:"open_state,omitempty"`
	MinRatingBucket RatingBucket     `json:"min_rating_bucket,omitempty"`
	PriceIntent     string           `json:"price_intent,omitempty"` // "cheap" | "moderate" | "expensive"
	IsGlutenFree    bool             `json:"is_gluten_free,omitempty"`
	IsKosher        bool             `json:"is_kosher,omitempty"`
	MeatDairy       string           `json:"meat_dairy,omitempty"` // "meat" | "dairy"
}

// SearchRequest is the normalized inbound request payload.
type SearchRequest struct {
	Query        string         `json:"query"`
	Language     string         `json:"language,omitempty"` // client language hint
	UserLocation *LatLng        `json:"user_location,omitempty"`
	Filters      *SharedFilters `json:"filters,omitempty"`

	// PriorRequestID lets a refinement of an earlier search rank that
	// search's candidate pool without a fresh provider call.
	PriorRequestID string `json:"prior_request_id,omitempty"`
}

// TriState models openNow values that may be unknown.
type TriState string

// TriState values.
const (
	TriTrue    TriState = "true"
	TriFalse   TriState = "false"
	TriUnknown TriState = "UNKNOWN"
)

// OpeningPeriod is one structured opening span. Times are minutes from
// midnight; a period may cross midnight (CloseDay != OpenDay or
// CloseMinute < OpenMinute on the same day).
type OpeningPeriod struct {
	OpenDay     int `json:"open_day"` // 0=Sunday..6=Saturday
	OpenMinute  int `json:"open_minute"`
	CloseDay    int `json:"close_day"`
	CloseMinute int `json:"close_minute"`
}

// ResultItem is a normalized place record from the provider.
type ResultItem struct {
	PlaceID          string          `json:"place_id"`
	Name             string          `json:"name"`
	Address          string          `json:"address,omitempty"`
	Location         LatLng          `json:"location"`
	OpenNow          TriState        `json:"open_now"`
	Rating           *float64        `json:"rating,omitempty"`
	UserRatingsTotal int             `json:"user_ratings_total,omitempty"`
	PriceLevel       *int            `json:"price_level,omitempty"`
	Types            []string        `json:"types,omitempty"`
	OpeningPeriods   []OpeningPeriod `json:"opening_periods,omitempty"`

	// Annotations are advisory hints (e.g. "gluten_free_friendly").
	// They never cause removal.
	Annotations []string `json:"annotations,omitempty"`
}

// GroupKind discriminates result groups for street-anchor searches.
type GroupKind string

// Result group kinds.
const (
	GroupExact  GroupKind = "EXACT"
	GroupNearby GroupKind = "NEARBY"
)

// ResultGroup is an optional distance grouping of result indices.
type ResultGroup struct {
	Kind    GroupKind `json:"kind"`
	Indices []int     `json:"indices"`
}

// Chip is a suggested refinement the client may render as a tappable chip.
type Chip struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

// AssistKind discriminates assist payload variants.
type AssistKind string

// Assist payload kinds.
const (
	AssistGuide    AssistKind = "guide"
	AssistClarify  AssistKind = "clarify"
	AssistRecovery AssistKind = "recovery"
)

// Assist is the structured payload describing what the client should show.
// It carries no rendered strings; the client (or the assistant streamer)
// localizes from Reason and Params.
type Assist struct {
	Kind   AssistKind        `json:"kind"`
	Reason string            `json:"reason,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// RelaxDenial records a relaxation the relax policy refused to apply.
type RelaxDenial struct {
	Field      string `json:"field"`
	ReasonCode string `json:"reason_code"`
}

// FilterCounters reports post-filter bookkeeping per invocation.
type FilterCounters struct {
	Before         int `json:"before"`
	After          int `json:"after"`
	Removed        int `json:"removed"`
	UnknownKept    int `json:"unknown_kept"`
	UnknownRemoved int `json:"unknown_removed"`
}

// ResponseMeta carries diagnostic metadata alongside results.
type ResponseMeta struct {
	FailureReason  string           `json:"failure_reason,omitempty"`
	Profile        string           `json:"profile,omitempty"`
	DistanceOrigin string           `json:"distance_origin,omitempty"`
	Relaxed        []string         `json:"relaxed,omitempty"`
	RelaxDenied    []RelaxDenial    `json:"relax_denied,omitempty"`
	FilterCounters *FilterCounters  `json:"filter_counters,omitempty"`
	StageDurations map[string]int64 `json:"stage_durations_ms,omitempty"`

	// CandidatePoolReused marks refinement responses served from a prior
	// request's candidate pool instead of a fresh provider call.
	CandidatePoolReused bool `json:"candidate_pool_reused,omitempty"`
}

// SearchResponse is the result bundle of a successful job.
type SearchResponse struct {
	Results []ResultItem  `json:"results"`
	Groups  []ResultGroup `json:"groups,omitempty"`
	Chips   []Chip        `json:"chips,omitempty"`
	Assist  *Assist       `json:"assist,omitempty"`
	Meta    ResponseMeta  `json:"meta"`
}
