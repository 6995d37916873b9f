package llm

import (
	"context"

	"github.com/shacharon/tavola/pkg/models"
)

// Stub is a programmable Client for tests. Unset functions return benign
// defaults so most tests only override the call they exercise.
type Stub struct {
	ClassifyFunc      func(ctx context.Context, query, languageHint string) (*GateResult, error)
	ExtractIntentFunc func(ctx context.Context, query, assistantLanguage string) (*Intent, error)
	ScoreCuisineFunc  func(ctx context.Context, cuisineKey string, items []models.ResultItem) (map[string]float64, error)
	NarrateFunc       func(ctx context.Context, in NarrationInput) (string, error)
}

var _ Client = (*Stub)(nil)

func (s *Stub) Classify(ctx context.Context, query, languageHint string) (*GateResult, error) {
	if s.ClassifyFunc != nil {
		return s.ClassifyFunc(ctx, query, languageHint)
	}
	lang := languageHint
	if lang == "" {
		lang = "en"
	}
	return &GateResult{Route: RouteContinue, AssistantLanguage: lang, LanguageConfidence: 0.9}, nil
}

func (s *Stub) ExtractIntent(ctx context.Context, query, assistantLanguage string) (*Intent, error) {
	if s.ExtractIntentFunc != nil {
		return s.ExtractIntentFunc(ctx, query, assistantLanguage)
	}
	return &Intent{}, nil
}

func (s *Stub) ScoreCuisine(ctx context.Context, cuisineKey string, items []models.ResultItem) (map[string]float64, error) {
	if s.ScoreCuisineFunc != nil {
		return s.ScoreCuisineFunc(ctx, cuisineKey, items)
	}
	return nil, nil
}

func (s *Stub) Narrate(ctx context.Context, in NarrationInput) (string, error) {
	if s.NarrateFunc != nil {
		return s.NarrateFunc(ctx, in)
	}
	return "", nil
}
