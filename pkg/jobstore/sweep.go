package jobstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/shacharon/tavola/pkg/models"
)

// StartSweeper launches the periodic staleness sweep. Running jobs whose
// heartbeat went silent past the running max age are marked DONE_FAILED with
// the stale reason; active subscribers veto the marking for one more window.
// The goroutine exits when ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		interval := s.opts.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("Job sweeper started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Job sweeper stopped")
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce marks every overdue running job stale.
func (s *Store) sweepOnce(ctx context.Context) {
	jobs := s.GetRunningJobs(ctx)
	now := s.now()
	marked := 0
	for _, job := range jobs {
		decision := DecideReuse(job.Status, now.Sub(job.CreatedAt), now.Sub(job.UpdatedAt), s.opts.RunningMaxAge, s.opts.SuccessFreshWindow)
		if decision.Reuse {
			continue
		}
		switch decision.Reason {
		case models.ReuseStaleNoHeartbeat, models.ReuseStaleTooOld:
			lock := s.lockFor(job.RequestID)
			lock.Lock()
			if fresh := s.readJob(ctx, job.RequestID); fresh != nil {
				if s.markStaleLocked(ctx, fresh, decision.Reason) && fresh.Status.Terminal() {
					marked++
				}
			}
			lock.Unlock()
		}
	}
	if marked > 0 {
		slog.Info("Sweep marked stale jobs", "count", marked, "scanned", len(jobs))
	}
}
