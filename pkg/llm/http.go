package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shacharon/tavola/pkg/models"
)

// maxResponseBytes caps the sidecar response body read.
const maxResponseBytes = 1 << 20

// HTTPClient is the production Client over the JSON sidecar service.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	doer    interface {
		Do(req *http.Request) (*http.Response, error)
	}
}

// NewHTTPClient builds a client for the sidecar at baseURL. doer may be nil,
// in which case a default client is used.
func NewHTTPClient(baseURL string, timeout time.Duration, doer *http.Client) *HTTPClient {
	c := &HTTPClient{baseURL: baseURL, timeout: timeout}
	if doer != nil {
		c.doer = doer
	} else {
		c.doer = &http.Client{}
	}
	return c
}

type classifyRequest struct {
	Query        string `json:"query"`
	LanguageHint string `json:"language_hint,omitempty"`
}

type extractRequest struct {
	Query             string `json:"query"`
	AssistantLanguage string `json:"assistant_language"`
}

type cuisineScoreRequest struct {
	CuisineKey string             `json:"cuisine_key"`
	Places     []cuisineCandidate `json:"places"`
}

type cuisineCandidate struct {
	PlaceID string   `json:"place_id"`
	Name    string   `json:"name"`
	Types   []string `json:"types,omitempty"`
}

type cuisineScoreResponse struct {
	Scores map[string]float64 `json:"scores"`
}

type narrateResponse struct {
	Message string `json:"message"`
}

// Classify implements Client.
func (c *HTTPClient) Classify(ctx context.Context, query, languageHint string) (*GateResult, error) {
	var out GateResult
	err := c.call(ctx, "/v1/gate", classifyRequest{Query: query, LanguageHint: languageHint}, &out)
	if err != nil {
		return nil, err
	}
	if out.Route == "" {
		return nil, fmt.Errorf("llm gate: empty route in response")
	}
	return &out, nil
}

// ExtractIntent implements Client.
func (c *HTTPClient) ExtractIntent(ctx context.Context, query, assistantLanguage string) (*Intent, error) {
	var out Intent
	err := c.call(ctx, "/v1/intent", extractRequest{Query: query, AssistantLanguage: assistantLanguage}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ScoreCuisine implements Client.
func (c *HTTPClient) ScoreCuisine(ctx context.Context, cuisineKey string, items []models.ResultItem) (map[string]float64, error) {
	req := cuisineScoreRequest{CuisineKey: cuisineKey}
	for _, item := range items {
		req.Places = append(req.Places, cuisineCandidate{
			PlaceID: item.PlaceID,
			Name:    item.Name,
			Types:   item.Types,
		})
	}

	var out cuisineScoreResponse
	if err := c.call(ctx, "/v1/cuisine-score", req, &out); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

// Narrate implements Client.
func (c *HTTPClient) Narrate(ctx context.Context, in NarrationInput) (string, error) {
	var out narrateResponse
	if err := c.call(ctx, "/v1/narrate", in, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// call POSTs a JSON payload and decodes the JSON reply.
func (c *HTTPClient) call(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm %s: encode request: %w", path, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm %s: build request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("llm %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("llm %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm %s: unexpected status %s", path, resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("llm %s: decode response: %w", path, err)
	}
	return nil
}
