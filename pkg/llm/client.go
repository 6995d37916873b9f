// Package llm defines the vendor-neutral contract with the language-model
// collaborator service. The pipeline depends only on the Client interface;
// the production implementation talks JSON over HTTP to a sidecar, and tests
// use the in-package Stub.
package llm

import (
	"context"

	"github.com/shacharon/tavola/pkg/models"
)

// GateRoute is the Gate stage's routing decision.
type GateRoute string

// Gate routing outcomes.
const (
	RouteContinue GateRoute = "CONTINUE"
	RouteClarify  GateRoute = "CLARIFY"
	RouteStop     GateRoute = "STOP"
)

// GateResult is the Gate classification output: whether the query is a
// restaurant search at all, plus the detected assistant language.
type GateResult struct {
	Route              GateRoute `json:"route"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	AssistantLanguage  string    `json:"assistant_language"`
	LanguageConfidence float64   `json:"language_confidence"`
}

// Intent is the structured extraction of a restaurant query.
type Intent struct {
	CuisineKey      string                  `json:"cuisine_key,omitempty"`
	CityText        string                  `json:"city_text,omitempty"`
	LandmarkText    string                  `json:"landmark_text,omitempty"`
	NearMe          bool                    `json:"near_me,omitempty"`
	RadiusM         int                     `json:"radius_m,omitempty"`
	OpenState       *models.OpenStateFilter `json:"open_state,omitempty"`
	PriceIntent     string                  `json:"price_intent,omitempty"`
	MinRatingBucket models.RatingBucket     `json:"min_rating_bucket,omitempty"`
	QualityIntent   bool                    `json:"quality_intent,omitempty"`
	Occasion        string                  `json:"occasion,omitempty"`
	IntentReason    string                  `json:"intent_reason,omitempty"`

	// Language refinements for the mutable part of the language context.
	// AssistantLanguage echoes the language the model reasoned in; it must
	// match the Gate's decision or the pipeline fails the request.
	AssistantLanguage string `json:"assistant_language,omitempty"`
	UILanguage        string `json:"ui_language,omitempty"`
	ProviderLanguage  string `json:"provider_language,omitempty"`
	RegionCandidate   string `json:"region_candidate,omitempty"`

	// Dietary / hard-constraint flags.
	IsGlutenFree bool   `json:"is_gluten_free,omitempty"`
	IsKosher     bool   `json:"is_kosher,omitempty"`
	MeatDairy    string `json:"meat_dairy,omitempty"`
}

// NarrationInput is the context handed to the narrator for the final
// assistant message.
type NarrationInput struct {
	Kind     models.AssistKind `json:"kind"`
	Language string            `json:"language"`
	Query    string            `json:"query"`
	Reason   string            `json:"reason,omitempty"`
	// TopNames are the display names of the leading results (at most three).
	TopNames    []string `json:"top_names,omitempty"`
	ResultCount int      `json:"result_count"`
}

// Client is the collaborator contract. Every call is bounded by ctx; errors
// are transport or contract failures, never user-facing text.
type Client interface {
	// Classify runs the Gate: topic check + assistant language detection.
	Classify(ctx context.Context, query, languageHint string) (*GateResult, error)

	// ExtractIntent pulls structured search fields out of the query.
	ExtractIntent(ctx context.Context, query, assistantLanguage string) (*Intent, error)

	// ScoreCuisine rates each candidate's affinity to the cuisine key,
	// placeId → score in [0,1].
	ScoreCuisine(ctx context.Context, cuisineKey string, items []models.ResultItem) (map[string]float64, error)

	// Narrate produces the final assistant message in the given language.
	Narrate(ctx context.Context, in NarrationInput) (string, error)
}
