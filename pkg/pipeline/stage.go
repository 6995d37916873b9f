package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/metrics"
	"github.com/shacharon/tavola/pkg/models"
)

// runStage executes one stage under its deadline, records timing, and on
// success publishes the stage's progress value and heartbeats the job.
func (o *Orchestrator) runStage(ctx context.Context, r *run, name string, timeout time.Duration, progress int, fn func(ctx context.Context) error) error {
	log := slog.With("request_id", r.job.RequestID, "stage", name)
	log.Debug("stage_started")

	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	err := fn(sctx)
	cancel()

	duration := time.Since(start)
	r.durations[name] = duration.Milliseconds()
	metrics.StageDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		return &stageError{
			stage:           name,
			err:             err,
			pipelineTimeout: ctx.Err() != nil,
		}
	}
	log.Info("stage_completed", "duration_ms", duration.Milliseconds())

	// The terminal stage publishes its own frames in order.
	if progress >= 0 {
		o.publishProgress(ctx, r, name, progress)
	}
	return nil
}

// publishProgress pushes the progress frame to subscribers and bumps the
// job's heartbeat through the status write.
func (o *Orchestrator) publishProgress(ctx context.Context, r *run, stage string, progress int) {
	if err := o.jobs.SetStatus(ctx, r.job.RequestID, models.StatusRunning, progress); err != nil {
		slog.Warn("Progress write failed", "request_id", r.job.RequestID, "stage", stage, "error", err)
	}
	o.hub.Publish(r.job.RequestID, events.ProgressFrame(r.job.RequestID, stage, progress))
}
