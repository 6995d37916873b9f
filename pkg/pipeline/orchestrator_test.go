package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/llm"
	"github.com/shacharon/tavola/pkg/models"
	"github.com/shacharon/tavola/pkg/places"
	"github.com/shacharon/tavola/pkg/rank"
	"github.com/shacharon/tavola/pkg/store"
)

func testPipelineConfig() *config.Config {
	return &config.Config{
		DedupRunningMaxAge:      90 * time.Second,
		DedupSuccessFreshWindow: 5 * time.Second,
		JobTTL:                  5 * time.Minute,

		PipelineTimeout:      10 * time.Second,
		GateTimeout:          2 * time.Second,
		IntentTimeout:        2 * time.Second,
		RouteTimeout:         time.Second,
		ProviderStageTimeout: 2 * time.Second,
		PostFilterTimeout:    time.Second,
		RankTimeout:          time.Second,
		AssistantTimeout:     2 * time.Second,

		FilterKeepUnknownOpen: true,
		MinAcceptableResults:  1,
		DefaultRegion:         "IL",
	}
}

// recordingHub captures published frames instead of fanning them out.
type recordingHub struct {
	mu     sync.Mutex
	frames []events.Frame
	closed []events.Frame
}

func (h *recordingHub) Publish(_ string, f events.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *recordingHub) CloseRequest(_ string, f events.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
	h.closed = append(h.closed, f)
}

func (h *recordingHub) progressValues() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []int
	for _, f := range h.frames {
		if f.Type == events.TypeProgress {
			out = append(out, f.Progress)
		}
	}
	return out
}

func (h *recordingHub) terminal() *events.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.closed) == 0 {
		return nil
	}
	f := h.closed[len(h.closed)-1]
	return &f
}

// fakeProvider scripts provider responses and records inputs.
type fakeProvider struct {
	mu        sync.Mutex
	page      *places.SearchPage
	err       error
	findPlace *models.ResultItem
	geocode   *models.LatLng

	textIn   []places.TextSearchInput
	nearbyIn []places.NearbyInput
}

func (p *fakeProvider) TextSearch(_ context.Context, in places.TextSearchInput) (*places.SearchPage, error) {
	p.mu.Lock()
	p.textIn = append(p.textIn, in)
	p.mu.Unlock()
	return p.page, p.err
}

func (p *fakeProvider) NearbySearch(_ context.Context, in places.NearbyInput) (*places.SearchPage, error) {
	p.mu.Lock()
	p.nearbyIn = append(p.nearbyIn, in)
	p.mu.Unlock()
	return p.page, p.err
}

func (p *fakeProvider) FindPlace(context.Context, places.FindPlaceInput) (*models.ResultItem, error) {
	return p.findPlace, nil
}

func (p *fakeProvider) GeocodeAddress(context.Context, string, string) (*models.LatLng, error) {
	return p.geocode, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.textIn) + len(p.nearbyIn)
}

type harness struct {
	orch     *Orchestrator
	jobs     *jobstore.Store
	hub      *recordingHub
	provider *fakeProvider
	stub     *llm.Stub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testPipelineConfig()
	backend := store.NewMemory()
	t.Cleanup(func() { _ = backend.Close() })

	jobs := jobstore.New(backend, jobstore.Options{
		RunningMaxAge:      cfg.DedupRunningMaxAge,
		SuccessFreshWindow: cfg.DedupSuccessFreshWindow,
		JobTTL:             cfg.JobTTL,
	})
	hub := &recordingHub{}
	provider := &fakeProvider{page: &places.SearchPage{Items: []models.ResultItem{
		{PlaceID: "p1", Name: "Alpha", OpenNow: models.TriTrue, Location: models.LatLng{Lat: 32.08, Lng: 34.78}},
		{PlaceID: "p2", Name: "Beta", OpenNow: models.TriTrue, Location: models.LatLng{Lat: 32.09, Lng: 34.79}},
	}}}
	stub := &llm.Stub{}

	return &harness{
		orch:     New(cfg, jobs, hub, stub, provider),
		jobs:     jobs,
		hub:      hub,
		provider: provider,
		stub:     stub,
	}
}

func (h *harness) createJob(t *testing.T, req models.SearchRequest) *models.Job {
	t.Helper()
	job, _, err := h.jobs.CreateOrGet(context.Background(), req, "key-"+req.Query, "sess-1", "")
	require.NoError(t, err)
	return job
}

func TestRunSuccessPath(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza in tel aviv",
		Language:     "en",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusDoneSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.Results, 2)
	assert.Equal(t, "en", got.AssistantLanguage)

	assert.Equal(t, []int{10, 25, 40, 70, 85, 95, 100}, h.hub.progressValues())

	terminal := h.hub.terminal()
	require.NotNil(t, terminal)
	assert.Equal(t, events.TypeTerminal, terminal.Type)
	assert.Equal(t, models.StatusDoneSuccess, terminal.Status)
	require.NotNil(t, terminal.Result)

	// Candidate pool was stored for refinement reuse.
	assert.Len(t, h.jobs.GetCandidatePool(context.Background(), job.RequestID), 2)
}

func TestRunPublishesPartialResults(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	var partials int
	for _, f := range h.hub.frames {
		if f.Type == events.TypePartial {
			partials++
			assert.NotEmpty(t, f.Results)
		}
	}
	assert.Equal(t, 1, partials)
}

func TestRunGateClarify(t *testing.T) {
	h := newHarness(t)
	h.stub.ClassifyFunc = func(context.Context, string, string) (*llm.GateResult, error) {
		return &llm.GateResult{
			Route:              llm.RouteClarify,
			FailureReason:      "AMBIGUOUS_QUERY",
			AssistantLanguage:  "en",
			LanguageConfidence: 0.9,
		}, nil
	}
	job := h.createJob(t, models.SearchRequest{Query: "stuff"})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneClarify, got.Status)
	require.NotNil(t, got.Assist)
	assert.Equal(t, models.AssistClarify, got.Assist.Kind)
	assert.Equal(t, "AMBIGUOUS_QUERY", got.Assist.Reason)
	assert.Equal(t, 0, h.provider.calls())

	terminal := h.hub.terminal()
	require.NotNil(t, terminal)
	assert.Equal(t, models.StatusDoneClarify, terminal.Status)
}

func TestRunGateStop(t *testing.T) {
	h := newHarness(t)
	h.stub.ClassifyFunc = func(context.Context, string, string) (*llm.GateResult, error) {
		return &llm.GateResult{
			Route:              llm.RouteStop,
			FailureReason:      "NOT_RESTAURANT_RELATED",
			AssistantLanguage:  "en",
			LanguageConfidence: 0.95,
		}, nil
	}
	job := h.createJob(t, models.SearchRequest{Query: "fix my car"})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneStopped, got.Status)
	assert.Equal(t, 0, h.provider.calls())
}

func TestRunLanguageEnforcement(t *testing.T) {
	h := newHarness(t)
	h.stub.ExtractIntentFunc = func(context.Context, string, string) (*llm.Intent, error) {
		// The extractor drifted to another language than the Gate decided.
		return &llm.Intent{AssistantLanguage: "ru"}, nil
	}
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza",
		Language:     "en",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.CodeLangEnforcement, got.Error.Code)
	assert.False(t, got.Error.Retryable)

	assert.Equal(t, 0, h.provider.calls(), "no provider call after a language violation")
}

func TestRunLocationGuard(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t, models.SearchRequest{Query: "pizza"})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneClarify, got.Status)
	require.NotNil(t, got.Assist)
	assert.Equal(t, models.CodeLocationRequired, got.Assist.Reason)
	assert.Equal(t, 0, h.provider.calls())
}

func TestRunZeroResults(t *testing.T) {
	h := newHarness(t)
	h.provider.page = &places.SearchPage{}
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.CodeProviderZeroResults, got.Error.Code)
	assert.True(t, got.Error.Retryable)
}

func TestRunProviderQuotaFailure(t *testing.T) {
	h := newHarness(t)
	h.provider.page = nil
	h.provider.err = &places.Error{Kind: places.KindHTTPError, HTTPStatus: 429}
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.CodeRateLimited, got.Error.Code)
}

func TestRunNearbyRoute(t *testing.T) {
	h := newHarness(t)
	h.stub.ExtractIntentFunc = func(context.Context, string, string) (*llm.Intent, error) {
		return &llm.Intent{NearMe: true, CuisineKey: "sushi"}, nil
	}
	loc := models.LatLng{Lat: 32.08, Lng: 34.78}
	job := h.createJob(t, models.SearchRequest{Query: "sushi near me", UserLocation: &loc})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneSuccess, got.Status)

	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	require.Len(t, h.provider.nearbyIn, 1)
	in := h.provider.nearbyIn[0]
	assert.Equal(t, loc, in.Location)
	assert.Equal(t, defaultNearbyRadiusM, in.RadiusM)
	assert.Equal(t, "sushi", in.Keyword)
	assert.Empty(t, h.provider.textIn)
}

func TestRunReusesCandidatePool(t *testing.T) {
	h := newHarness(t)
	pool := []models.ResultItem{
		{PlaceID: "cached-1", Name: "Cached", OpenNow: models.TriTrue},
	}
	require.NoError(t, h.jobs.SetCandidatePool(context.Background(), "prior-req", pool))

	job := h.createJob(t, models.SearchRequest{
		Query:          "pizza but cheaper",
		UserLocation:   &models.LatLng{Lat: 32.08, Lng: 34.78},
		PriorRequestID: "prior-req",
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	assert.Equal(t, models.StatusDoneSuccess, got.Status)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Results, 1)
	assert.Equal(t, "cached-1", got.Result.Results[0].PlaceID)
	assert.True(t, got.Result.Meta.CandidatePoolReused)

	assert.Equal(t, 0, h.provider.calls(), "pool reuse skips the provider")
}

func TestRunLandmarkGroups(t *testing.T) {
	h := newHarness(t)
	anchor := models.LatLng{Lat: 32.0800, Lng: 34.7800}
	h.stub.ExtractIntentFunc = func(context.Context, string, string) (*llm.Intent, error) {
		return &llm.Intent{LandmarkText: "dizengoff center"}, nil
	}
	h.provider.findPlace = &models.ResultItem{PlaceID: "anchor", Location: anchor}
	h.provider.page = &places.SearchPage{Items: []models.ResultItem{
		{PlaceID: "close", OpenNow: models.TriTrue, Location: models.LatLng{Lat: 32.0801, Lng: 34.7801}},
		{PlaceID: "far", OpenNow: models.TriTrue, Location: models.LatLng{Lat: 32.0900, Lng: 34.7900}},
	}}

	job := h.createJob(t, models.SearchRequest{Query: "coffee near dizengoff center"})
	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	require.Equal(t, models.StatusDoneSuccess, got.Status)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Groups, 2)
	assert.Equal(t, models.GroupExact, got.Result.Groups[0].Kind)
	assert.Equal(t, models.GroupNearby, got.Result.Groups[1].Kind)
}

func TestRunRecordsMetaAndChips(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t, models.SearchRequest{
		Query:        "pizza",
		UserLocation: &models.LatLng{Lat: 32.08, Lng: 34.78},
	})

	h.orch.Run(context.Background(), job)

	got, _ := h.jobs.GetJob(context.Background(), job.RequestID)
	require.NotNil(t, got.Result)

	meta := got.Result.Meta
	assert.Equal(t, string(rank.ProfileBalanced), meta.Profile)
	assert.Equal(t, "USER_LOCATION", meta.DistanceOrigin)
	require.NotNil(t, meta.FilterCounters)
	assert.Equal(t, 2, meta.FilterCounters.Before)
	assert.NotEmpty(t, meta.StageDurations)
	assert.False(t, meta.CandidatePoolReused, "fresh provider fetch is not a pool reuse")

	// No filters were set, so all three refinement chips are offered.
	assert.Len(t, got.Result.Chips, 3)
}
