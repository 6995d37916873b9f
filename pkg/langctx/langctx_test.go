package langctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/models"
)

func TestInitSeedsAllLanguages(t *testing.T) {
	c := Init("he", 0.95, "IL")
	assert.True(t, c.Initialized())
	assert.Equal(t, "he", c.AssistantLanguage)
	assert.Equal(t, 0.95, c.AssistantConfidence)
	assert.Equal(t, "he", c.UILanguage)
	assert.Equal(t, "he", c.ProviderLanguage)
	assert.Equal(t, "IL", c.RegionCode)
}

func TestUpdatePreservesImmutables(t *testing.T) {
	c := Init("he", 0.95, "IL")

	next := Update(c, Updates{UILanguage: "en", ProviderLanguage: "en", RegionCode: "US"})
	assert.Equal(t, "he", next.AssistantLanguage)
	assert.Equal(t, 0.95, next.AssistantConfidence)
	assert.Equal(t, "en", next.UILanguage)
	assert.Equal(t, "en", next.ProviderLanguage)
	assert.Equal(t, "US", next.RegionCode)

	// Empty fields leave current values alone.
	same := Update(next, Updates{})
	assert.Equal(t, next, same)

	// The original is untouched (value semantics).
	assert.Equal(t, "he", c.UILanguage)
}

func TestAssertImmutable(t *testing.T) {
	original := Init("he", 0.95, "IL")

	tests := []struct {
		name     string
		received Context
		wantErr  bool
	}{
		{
			name:     "unchanged passes",
			received: original,
		},
		{
			name:     "mutable refinements pass",
			received: Update(original, Updates{UILanguage: "en", RegionCode: "US"}),
		},
		{
			name: "changed assistant language fails",
			received: func() Context {
				c := original
				c.AssistantLanguage = "en"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "changed confidence fails",
			received: func() Context {
				c := original
				c.AssistantConfidence = 0.5
				return c
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertImmutable(original, tt.received, "intent")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrImmutableViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertImmutableUninitializedIsNoop(t *testing.T) {
	var original Context
	received := Init("he", 0.95, "IL")
	assert.NoError(t, AssertImmutable(original, received, "intent"))
}

func TestAssertProviderLanguage(t *testing.T) {
	c := Init("he", 0.95, "IL")
	c = Update(c, Updates{ProviderLanguage: "en"})

	assert.NoError(t, AssertProviderLanguage(c, "en"))
	err := AssertProviderLanguage(c, "he")
	assert.ErrorIs(t, err, ErrImmutableViolation)

	var uninitialized Context
	assert.NoError(t, AssertProviderLanguage(uninitialized, "fr"))
}

func TestVerifyAssistantLanguageGracefulStrict(t *testing.T) {
	c := Init("he", 0.95, "IL")

	assert.NoError(t, VerifyAssistantLanguageGraceful(c, "he", nil))
	err := VerifyAssistantLanguageGraceful(c, "en", nil)
	assert.ErrorIs(t, err, ErrImmutableViolation)
}

func TestVerifyAssistantLanguageGracefulFallback(t *testing.T) {
	var c Context

	// Fallback chain: stored assistant language → request language → UI
	// language. Mismatches only warn; the call never errors.
	job := &models.Job{AssistantLanguage: "he"}
	assert.NoError(t, VerifyAssistantLanguageGraceful(c, "en", job))

	job = &models.Job{Request: models.SearchRequest{Language: "ru"}}
	assert.NoError(t, VerifyAssistantLanguageGraceful(c, "ru", job))

	assert.NoError(t, VerifyAssistantLanguageGraceful(c, "en", nil))
}

func TestSanitizeRegion(t *testing.T) {
	inIL := &models.LatLng{Lat: 32.08, Lng: 34.78}
	abroad := &models.LatLng{Lat: 48.85, Lng: 2.35}

	tests := []struct {
		name      string
		candidate string
		location  *models.LatLng
		wantCode  string
		wantOK    bool
	}{
		{name: "allowlisted code accepted", candidate: "FR", wantCode: "FR", wantOK: true},
		{name: "lowercase normalized", candidate: "il", wantCode: "IL", wantOK: true},
		{name: "whitespace trimmed", candidate: " us ", wantCode: "US", wantOK: true},
		{name: "empty rejected", candidate: ""},
		{name: "unknown code rejected", candidate: "XX"},
		{name: "IS corrected to IL", candidate: "IS", wantCode: "IL", wantOK: true},
		{name: "GZ inside IL box corrected", candidate: "GZ", location: inIL, wantCode: "IL", wantOK: true},
		{name: "GZ outside IL box rejected", candidate: "GZ", location: abroad},
		{name: "GZ without location rejected", candidate: "GZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := SanitizeRegion(tt.candidate, tt.location)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
