// Package langctx holds the per-request language and region decision set.
// The assistant language and its confidence are set exactly once by the Gate
// stage and are immutable afterwards; later stages may only refine the UI
// language, provider language, and region code.
package langctx

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shacharon/tavola/pkg/models"
)

// ErrImmutableViolation is wrapped by every immutability failure so callers
// can classify it as LANG_ENFORCEMENT_VIOLATION.
var ErrImmutableViolation = errors.New("language context immutable field changed")

// Context is the per-request language decision set. Passed by value to
// pipeline stages; the one allowed mutation path (Update) returns a fresh
// value with the immutable fields preserved.
type Context struct {
	// Immutable after Init.
	AssistantLanguage   string
	AssistantConfidence float64

	// Mutable; later stages may refine.
	UILanguage       string
	ProviderLanguage string
	RegionCode       string

	initialized bool
}

// Init creates the context. Called exactly once, by the Gate stage.
func Init(assistantLanguage string, confidence float64, regionCode string) Context {
	return Context{
		AssistantLanguage:   assistantLanguage,
		AssistantConfidence: confidence,
		UILanguage:          assistantLanguage,
		ProviderLanguage:    assistantLanguage,
		RegionCode:          regionCode,
		initialized:         true,
	}
}

// Initialized reports whether Init has run.
func (c Context) Initialized() bool { return c.initialized }

// Updates holds the mutable refinements a stage may apply.
type Updates struct {
	UILanguage       string
	ProviderLanguage string
	RegionCode       string
}

// Update rebuilds the context with the given refinements.
// Empty fields leave the current value untouched; immutable fields are
// always preserved.
func Update(c Context, u Updates) Context {
	next := c
	if u.UILanguage != "" {
		next.UILanguage = u.UILanguage
	}
	if u.ProviderLanguage != "" {
		next.ProviderLanguage = u.ProviderLanguage
	}
	if u.RegionCode != "" {
		next.RegionCode = u.RegionCode
	}
	return next
}

// AssertImmutable verifies that a stage did not change the immutable fields.
// stage names the offender for the failure reason.
func AssertImmutable(original, received Context, stage string) error {
	if !original.initialized {
		return nil
	}
	if received.AssistantLanguage != original.AssistantLanguage {
		return fmt.Errorf("%w: stage %s changed assistantLanguage %q → %q",
			ErrImmutableViolation, stage, original.AssistantLanguage, received.AssistantLanguage)
	}
	if received.AssistantConfidence != original.AssistantConfidence {
		return fmt.Errorf("%w: stage %s changed assistantLanguageConfidence %v → %v",
			ErrImmutableViolation, stage, original.AssistantConfidence, received.AssistantConfidence)
	}
	return nil
}

// AssertProviderLanguage verifies the language about to be sent to the
// provider matches the context before any outbound call.
func AssertProviderLanguage(c Context, providerLanguage string) error {
	if !c.initialized || c.ProviderLanguage == "" {
		return nil
	}
	if providerLanguage != c.ProviderLanguage {
		return fmt.Errorf("%w: outbound provider language %q, context holds %q",
			ErrImmutableViolation, providerLanguage, c.ProviderLanguage)
	}
	return nil
}

// VerifyAssistantLanguageGraceful checks user-facing assistant text language.
// With an initialized context the check is strict (error on mismatch).
// Without one, the expected language is derived from the fallback chain
// (stored job context → request query language → UI language) and a mismatch
// only logs a warning — never a silent mismatch, never a hard failure.
func VerifyAssistantLanguageGraceful(c Context, payloadLanguage string, job *models.Job) error {
	if c.initialized {
		if payloadLanguage != c.AssistantLanguage {
			return fmt.Errorf("%w: assistant payload language %q, context holds %q",
				ErrImmutableViolation, payloadLanguage, c.AssistantLanguage)
		}
		return nil
	}

	expected := ""
	if job != nil {
		switch {
		case job.AssistantLanguage != "":
			expected = job.AssistantLanguage
		case job.Request.Language != "":
			expected = job.Request.Language
		case job.UILanguage != "":
			expected = job.UILanguage
		}
	}
	if expected != "" && payloadLanguage != expected {
		slog.Warn("Assistant payload language mismatch without language context",
			"payload_language", payloadLanguage, "expected", expected)
	}
	return nil
}
