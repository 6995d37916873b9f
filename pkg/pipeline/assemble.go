package pipeline

import (
	"context"
	"strconv"

	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/models"
	"github.com/shacharon/tavola/pkg/rank"
)

// exactGroupRadiusM bounds the EXACT distance group around a street anchor.
const exactGroupRadiusM = 300.0

// stagePostFilter applies the deterministic filters with the relax policy and
// annotates dietary hints.
func (o *Orchestrator) stagePostFilter(ctx context.Context, r *run) error {
	return o.runStage(ctx, r, "postfilter", o.cfg.PostFilterTimeout, ProgressPostFilter, func(context.Context) error {
		filters := effectiveFilters(&r.job.Request, r.intent)
		opts := rank.FilterOptions{KeepUnknownOpen: o.cfg.FilterKeepUnknownOpen}

		res := rank.Relax(r.items, filters, opts, o.cfg.MinAcceptableResults)
		r.items = rank.AnnotateDietary(res.Items, filters)
		r.counters = res.Counters
		r.relaxed = res.Relaxed
		r.denied = res.Denied
		return nil
	})
}

// stageRank selects the weight profile from structured signals and sorts the
// candidate pool.
func (o *Orchestrator) stageRank(ctx context.Context, r *run) error {
	return o.runStage(ctx, r, "rank", o.cfg.RankTimeout, ProgressRank, func(sctx context.Context) error {
		req := &r.job.Request
		filters := effectiveFilters(req, r.intent)

		signals := rank.Signals{
			Route:            r.route,
			HasUserLocation:  req.UserLocation != nil,
			IntentReason:     r.intent.IntentReason,
			CuisineKey:       r.intent.CuisineKey,
			OpenNowRequested: filters != nil && filters.OpenState != nil && filters.OpenState.Kind == models.OpenNow,
			PriceIntent:      r.intent.PriceIntent,
			QualityIntent:    r.intent.QualityIntent,
			Occasion:         r.intent.Occasion,
		}
		profile := rank.SelectProfile(signals)
		origin := rank.SelectDistanceOrigin(r.intent.IntentReason, r.cityCenter != nil, req.UserLocation)

		in := rank.ScoreInput{
			Profile:       profile,
			Origin:        origin,
			CuisineScores: rank.EnforceCuisine(sctx, o.llm, filters, r.intent.CuisineKey, r.items),
		}
		switch origin {
		case rank.OriginCityCenter:
			in.OriginPoint = *r.cityCenter
		case rank.OriginUserLocation:
			in.OriginPoint = *req.UserLocation
		}

		r.items = rank.Rank(r.items, in)
		r.profile = string(profile)
		r.origin = string(origin)
		return nil
	})
}

// stageAssistant assembles the final response bundle and completes the job.
func (o *Orchestrator) stageAssistant(ctx context.Context, r *run) error {
	return o.runStage(ctx, r, "assistant", o.cfg.AssistantTimeout, -1, func(sctx context.Context) error {
		resp := &models.SearchResponse{
			Results: r.items,
			Groups:  o.buildGroups(r),
			Chips:   buildChips(r),
			Assist: &models.Assist{
				Kind: models.AssistGuide,
				Params: map[string]string{
					"result_count": strconv.Itoa(len(r.items)),
				},
			},
			Meta: models.ResponseMeta{
				Profile:             r.profile,
				DistanceOrigin:      r.origin,
				Relaxed:             r.relaxed,
				RelaxDenied:         r.denied,
				FilterCounters:      &r.counters,
				StageDurations:      r.durations,
				CandidatePoolReused: r.fromPool,
			},
		}

		// Assistant text language is verified at stream time against the
		// persisted job context; the immutability of the context itself was
		// already asserted after the intent stage.
		sctx = context.WithoutCancel(sctx)
		if err := o.jobs.SetResult(sctx, r.job.RequestID, resp, o.jobLanguage(r)); err != nil {
			return err
		}
		o.hub.Publish(r.job.RequestID, events.ProgressFrame(r.job.RequestID, "assistant", ProgressAssistant))
		o.hub.CloseRequest(r.job.RequestID, events.TerminalFrame(r.job.RequestID, models.StatusDoneSuccess, resp, ""))
		return nil
	})
}

// buildGroups computes the EXACT/NEARBY distance grouping, only for landmark
// (street anchor) plans with a resolved anchor point.
func (o *Orchestrator) buildGroups(r *run) []models.ResultGroup {
	if r.route != models.RouteLandmarkPlan || r.cityCenter == nil {
		return nil
	}

	exact := models.ResultGroup{Kind: models.GroupExact}
	nearby := models.ResultGroup{Kind: models.GroupNearby}
	for i, item := range r.items {
		if rank.HaversineMeters(*r.cityCenter, item.Location) <= exactGroupRadiusM {
			exact.Indices = append(exact.Indices, i)
		} else {
			nearby.Indices = append(nearby.Indices, i)
		}
	}

	var groups []models.ResultGroup
	if len(exact.Indices) > 0 {
		groups = append(groups, exact)
	}
	if len(nearby.Indices) > 0 {
		groups = append(groups, nearby)
	}
	return groups
}

// buildChips suggests refinements the client can apply with one tap.
func buildChips(r *run) []models.Chip {
	filters := effectiveFilters(&r.job.Request, r.intent)
	var chips []models.Chip

	if filters == nil || filters.OpenState == nil {
		chips = append(chips, models.Chip{Label: "open_now", Action: "set_open_state", Value: string(models.OpenNow)})
	}
	if filters == nil || filters.MinRatingBucket == models.RatingNone {
		chips = append(chips, models.Chip{Label: "top_rated", Action: "set_min_rating", Value: string(models.Rating45)})
	}
	if filters == nil || filters.PriceIntent == "" {
		chips = append(chips, models.Chip{Label: "cheap_eats", Action: "set_price_intent", Value: "cheap"})
	}
	return chips
}
