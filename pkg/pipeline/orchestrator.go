// Package pipeline drives the Route2 search pipeline: Gate → Intent → Route →
// Provider → Post-filter → Rank → Assistant assembly. Stages run in a fixed
// order under per-stage deadlines and one overall pipeline deadline; the
// language context is passed by value and its immutable fields are asserted
// after every stage that received language data from outside.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/langctx"
	"github.com/shacharon/tavola/pkg/llm"
	"github.com/shacharon/tavola/pkg/models"
	"github.com/shacharon/tavola/pkg/places"
)

// Progress values published after each stage completes.
const (
	ProgressGate       = 10
	ProgressIntent     = 25
	ProgressRoute      = 40
	ProgressProvider   = 70
	ProgressPostFilter = 85
	ProgressRank       = 95
	ProgressAssistant  = 100
)

// Publisher is the orchestrator's view of the realtime hub.
type Publisher interface {
	Publish(requestID string, f events.Frame)
	CloseRequest(requestID string, f events.Frame)
}

// Orchestrator executes search jobs.
type Orchestrator struct {
	cfg      *config.Config
	jobs     *jobstore.Store
	hub      Publisher
	llm      llm.Client
	provider places.Provider
}

// New builds the orchestrator.
func New(cfg *config.Config, jobs *jobstore.Store, hub Publisher, llmClient llm.Client, provider places.Provider) *Orchestrator {
	return &Orchestrator{cfg: cfg, jobs: jobs, hub: hub, llm: llmClient, provider: provider}
}

// run-scoped pipeline state.
type run struct {
	job    *models.Job
	lang   langctx.Context
	intent *llm.Intent
	route  models.RouteKind

	items      []models.ResultItem
	fromPool   bool
	cityCenter *models.LatLng

	relaxed   []string
	denied    []models.RelaxDenial
	counters  models.FilterCounters
	profile   string
	origin    string
	durations map[string]int64
}

// Run executes the full pipeline for the job. Blocks until terminal; meant
// to be launched as one goroutine per new job.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) {
	log := slog.With("request_id", job.RequestID)
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PipelineTimeout)
	defer cancel()

	if err := o.jobs.SetStatus(ctx, job.RequestID, models.StatusRunning, 0); err != nil {
		log.Error("Failed to start pipeline", "error", err)
		return
	}
	log.Info("Pipeline started", "query_length", len(job.Request.Query))

	r := &run{job: job, durations: make(map[string]int64)}
	if err := o.execute(ctx, r); err != nil {
		o.fail(ctx, r, err)
		return
	}
	log.Info("Pipeline completed", "status", o.jobs.GetStatus(context.WithoutCancel(ctx), job.RequestID))
}

// execute runs the stages in order. A nil return means the job reached a
// terminal state (success or an assist terminal set by a stage).
func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	stop, err := o.stageGate(ctx, r)
	if err != nil || stop {
		return err
	}
	if err := o.stageIntent(ctx, r); err != nil {
		return err
	}
	stop, err = o.stageRoute(ctx, r)
	if err != nil || stop {
		return err
	}
	if err := o.stageProvider(ctx, r); err != nil {
		return err
	}
	if err := o.stagePostFilter(ctx, r); err != nil {
		return err
	}
	if err := o.stageRank(ctx, r); err != nil {
		return err
	}
	return o.stageAssistant(ctx, r)
}

// fail classifies the error, records the terminal failure, and publishes the
// terminal frame.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) {
	// The pipeline context may already be dead; terminal writes must not be.
	ctx = context.WithoutCancel(ctx)

	rec := classify(err)
	slog.Warn("Pipeline failed", "request_id", r.job.RequestID, "code", rec.Code, "error", err)

	if serr := o.jobs.SetError(ctx, r.job.RequestID, rec, o.jobLanguage(r)); serr != nil {
		if !errors.Is(serr, jobstore.ErrInvalidTransition) {
			slog.Error("Failed to record pipeline failure", "request_id", r.job.RequestID, "error", serr)
		}
		return
	}
	o.hub.CloseRequest(r.job.RequestID, events.TerminalFrame(r.job.RequestID, models.StatusDoneFailed, nil, rec.FailureReason))
}

// finishAssist ends the job with DONE_CLARIFY or DONE_STOPPED.
func (o *Orchestrator) finishAssist(ctx context.Context, r *run, status models.JobStatus, assist *models.Assist) error {
	ctx = context.WithoutCancel(ctx)
	if err := o.jobs.SetAssistTerminal(ctx, r.job.RequestID, status, assist, o.jobLanguage(r)); err != nil {
		return err
	}
	o.hub.CloseRequest(r.job.RequestID, events.TerminalFrame(r.job.RequestID, status, nil, assist.Reason))
	return nil
}

func (o *Orchestrator) jobLanguage(r *run) jobstore.JobLanguage {
	return jobstore.JobLanguage{
		AssistantLanguage: r.lang.AssistantLanguage,
		UILanguage:        r.lang.UILanguage,
	}
}

// stageGate classifies the query and initializes the language context.
// stop=true means the job ended in an assist terminal.
func (o *Orchestrator) stageGate(ctx context.Context, r *run) (bool, error) {
	var gate *llm.GateResult
	err := o.runStage(ctx, r, "gate", o.cfg.GateTimeout, ProgressGate, func(sctx context.Context) error {
		var err error
		gate, err = o.llm.Classify(sctx, r.job.Request.Query, r.job.Request.Language)
		return err
	})
	if err != nil {
		return false, err
	}

	r.lang = langctx.Init(gate.AssistantLanguage, gate.LanguageConfidence, o.cfg.DefaultRegion)

	switch gate.Route {
	case llm.RouteClarify:
		return true, o.finishAssist(ctx, r, models.StatusDoneClarify, &models.Assist{
			Kind: models.AssistClarify, Reason: gate.FailureReason,
		})
	case llm.RouteStop:
		return true, o.finishAssist(ctx, r, models.StatusDoneStopped, &models.Assist{
			Kind: models.AssistRecovery, Reason: gate.FailureReason,
		})
	}
	return false, nil
}

// stageIntent extracts structured fields and refines the mutable language
// context. Immutability of the assistant language is asserted afterwards.
func (o *Orchestrator) stageIntent(ctx context.Context, r *run) error {
	before := r.lang
	var intent *llm.Intent
	err := o.runStage(ctx, r, "intent", o.cfg.IntentTimeout, ProgressIntent, func(sctx context.Context) error {
		var err error
		intent, err = o.llm.ExtractIntent(sctx, r.job.Request.Query, r.lang.AssistantLanguage)
		return err
	})
	if err != nil {
		return err
	}
	r.intent = intent

	updates := langctx.Updates{
		UILanguage:       intent.UILanguage,
		ProviderLanguage: intent.ProviderLanguage,
	}
	if code, ok := langctx.SanitizeRegion(intent.RegionCandidate, r.job.Request.UserLocation); ok {
		updates.RegionCode = code
	} else if intent.RegionCandidate != "" {
		slog.Warn("Rejected region candidate", "request_id", r.job.RequestID, "candidate", intent.RegionCandidate)
	}
	r.lang = langctx.Update(r.lang, updates)

	// The extractor echoes the language it reasoned in; treat it as the
	// stage's received context so a drifted model fails the request.
	received := r.lang
	if intent.AssistantLanguage != "" {
		received.AssistantLanguage = intent.AssistantLanguage
	}
	return langctx.AssertImmutable(before, received, "intent")
}

// stageRoute maps intent to a provider method and applies the location guard.
func (o *Orchestrator) stageRoute(ctx context.Context, r *run) (bool, error) {
	var route models.RouteKind
	var guard bool
	err := o.runStage(ctx, r, "route", o.cfg.RouteTimeout, ProgressRoute, func(context.Context) error {
		route, guard = decideRoute(r.intent, &r.job.Request)
		return nil
	})
	if err != nil {
		return false, err
	}
	if guard {
		return true, o.finishAssist(ctx, r, models.StatusDoneClarify, &models.Assist{
			Kind: models.AssistClarify, Reason: models.CodeLocationRequired,
		})
	}
	r.route = route
	return false, nil
}

// stageProvider fetches candidates: either the prior request's stored pool
// (refinement path) or a fresh provider call on the decided route.
func (o *Orchestrator) stageProvider(ctx context.Context, r *run) error {
	return o.runStage(ctx, r, "provider", o.cfg.ProviderStageTimeout, ProgressProvider, func(sctx context.Context) error {
		if prior := r.job.Request.PriorRequestID; prior != "" {
			if pool := o.jobs.GetCandidatePool(sctx, prior); len(pool) > 0 {
				slog.Info("Reusing candidate pool", "request_id", r.job.RequestID, "prior_request_id", prior, "items", len(pool))
				r.items = pool
				r.fromPool = true
				return nil
			}
		}

		if err := langctx.AssertProviderLanguage(r.lang, r.lang.ProviderLanguage); err != nil {
			return err
		}

		items, err := o.callProvider(sctx, r)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return &zeroResultsError{}
		}
		r.items = items

		if err := o.jobs.SetCandidatePool(sctx, r.job.RequestID, items); err != nil {
			slog.Warn("Failed to store candidate pool", "request_id", r.job.RequestID, "error", err)
		}
		o.hub.Publish(r.job.RequestID, events.PartialFrame(r.job.RequestID, top(items, 5)))
		return nil
	})
}

// callProvider executes the routed provider method.
func (o *Orchestrator) callProvider(ctx context.Context, r *run) ([]models.ResultItem, error) {
	req := &r.job.Request
	lang := r.lang.ProviderLanguage
	region := r.lang.RegionCode

	switch r.route {
	case models.RouteNearbySearch:
		radius := r.intent.RadiusM
		if radius <= 0 {
			radius = defaultNearbyRadiusM
		}
		page, err := o.provider.NearbySearch(ctx, places.NearbyInput{
			Location: *req.UserLocation,
			RadiusM:  radius,
			Keyword:  keywordFor(r.intent, req.Query),
			Language: lang,
			Region:   region,
		})
		if err != nil {
			return nil, err
		}
		return page.Items, nil

	case models.RouteLandmarkPlan:
		anchor, err := o.resolveLandmark(ctx, r)
		if err != nil {
			return nil, err
		}
		page, err := o.provider.NearbySearch(ctx, places.NearbyInput{
			Location: *anchor,
			RadiusM:  landmarkRadiusM,
			Keyword:  keywordFor(r.intent, req.Query),
			Language: lang,
			Region:   region,
		})
		if err != nil {
			return nil, err
		}
		r.cityCenter = anchor
		return page.Items, nil

	default: // textSearch
		if r.intent.CityText != "" {
			if center, err := o.provider.GeocodeAddress(ctx, r.intent.CityText, region); err != nil {
				slog.Warn("City geocode failed", "request_id", r.job.RequestID, "city", r.intent.CityText, "error", err)
			} else {
				r.cityCenter = center
			}
		}
		page, err := o.provider.TextSearch(ctx, places.TextSearchInput{
			Query:    req.Query,
			Language: lang,
			Region:   region,
			Location: req.UserLocation,
		})
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	}
}

// resolveLandmark geocodes the landmark anchor for a landmark plan.
func (o *Orchestrator) resolveLandmark(ctx context.Context, r *run) (*models.LatLng, error) {
	place, err := o.provider.FindPlace(ctx, places.FindPlaceInput{
		Query:    r.intent.LandmarkText,
		Language: r.lang.ProviderLanguage,
		Region:   r.lang.RegionCode,
	})
	if err != nil {
		return nil, err
	}
	if place != nil {
		loc := place.Location
		return &loc, nil
	}
	center, err := o.provider.GeocodeAddress(ctx, r.intent.LandmarkText, r.lang.RegionCode)
	if err != nil {
		return nil, err
	}
	if center == nil {
		return nil, &zeroResultsError{}
	}
	return center, nil
}

func top(items []models.ResultItem, n int) []models.ResultItem {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
