// Package jobstore implements the durable per-request job records: idempotent
// creation with the deduplication decision matrix, the forward-only state
// machine, heartbeats, staleness detection, candidate pools, and the TTL sweep.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shacharon/tavola/pkg/metrics"
	"github.com/shacharon/tavola/pkg/models"
	"github.com/shacharon/tavola/pkg/store"
)

// Key prefixes in the persistence backend.
const (
	jobKeyPrefix       = "job:"
	idemKeyPrefix      = "job_idem:"
	candidateKeyPrefix = "candidate_pool:"
)

// lockStripes is the size of the per-requestId mutex table.
const lockStripes = 64

// Typed errors surfaced to callers.
var (
	// ErrStoreUnavailable is raised when a write cannot reach the backend.
	ErrStoreUnavailable = errors.New("job store backend unavailable")

	// ErrInvalidTransition is raised on a backward or post-terminal
	// status transition.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// SubscriberChecker answers whether anyone is still watching a request.
// Implemented by the realtime hub; consulted before stale-marking.
type SubscriberChecker interface {
	HasActiveSubscribers(requestID string) bool
}

// StaleNotifier receives a terminal notification when a running job is
// marked stale. Implemented by the realtime hub.
type StaleNotifier interface {
	NotifyTerminal(requestID string, status models.JobStatus, errRecord *models.ErrorRecord)
}

// Options tunes the store.
type Options struct {
	RunningMaxAge      time.Duration
	SuccessFreshWindow time.Duration
	JobTTL             time.Duration
	SweepInterval      time.Duration
}

// Store is the job store. All mutations of one requestId go through the same
// striped mutex, so at most one writer touches a job at a time within this
// process.
type Store struct {
	backend store.Backend
	opts    Options

	locks [lockStripes]sync.Mutex

	mu          sync.RWMutex
	subscribers SubscriberChecker
	notifier    StaleNotifier

	now func() time.Time
}

// New builds a Store over the given backend.
func New(backend store.Backend, opts Options) *Store {
	return &Store{
		backend: backend,
		opts:    opts,
		now:     time.Now,
	}
}

// SetSubscriberChecker wires the realtime hub's liveness oracle.
// Called once during startup, after the hub exists.
func (s *Store) SetSubscriberChecker(c SubscriberChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = c
}

// SetStaleNotifier wires the terminal-frame publisher for stale marking.
func (s *Store) SetStaleNotifier(n StaleNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Store) lockFor(requestID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return &s.locks[h.Sum32()%lockStripes]
}

// CreateOrGet creates a job for the request or returns an existing one per
// the deduplication decision matrix. The returned decision carries the
// matched reason code either way.
func (s *Store) CreateOrGet(ctx context.Context, req models.SearchRequest, idempotencyKey, ownerSessionID, ownerUserID string) (*models.Job, models.ReuseDecision, error) {
	existingID := s.lookupIdem(ctx, idempotencyKey)
	if existingID != "" {
		job, decision, handled, err := s.tryReuse(ctx, existingID, idempotencyKey)
		if err != nil {
			return nil, models.ReuseDecision{}, err
		}
		if handled {
			metrics.DedupDecisions.WithLabelValues(decision.Reason).Inc()
			return job, decision, nil
		}
		// Fall through: a new job replaces the existing record.
		metrics.DedupDecisions.WithLabelValues(decision.Reason).Inc()
		job, err = s.createJob(ctx, req, idempotencyKey, ownerSessionID, ownerUserID)
		if err != nil {
			return nil, models.ReuseDecision{}, err
		}
		return job, decision, nil
	}

	job, err := s.createJob(ctx, req, idempotencyKey, ownerSessionID, ownerUserID)
	if err != nil {
		return nil, models.ReuseDecision{}, err
	}
	decision := models.ReuseDecision{Reuse: false, Reason: ""}
	return job, decision, nil
}

// tryReuse applies the decision matrix against an existing job. handled is
// true when the existing job is returned as-is; false means the caller must
// create a replacement (after any stale marking done here).
func (s *Store) tryReuse(ctx context.Context, requestID, idempotencyKey string) (*models.Job, models.ReuseDecision, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	job := s.readJob(ctx, requestID)
	if job == nil {
		// The idempotency mapping outlived the job record.
		return nil, models.ReuseDecision{Reuse: false, Reason: models.ReuseCachedStale}, false, nil
	}

	now := s.now()
	decision := DecideReuse(job.Status, now.Sub(job.CreatedAt), now.Sub(job.UpdatedAt), s.opts.RunningMaxAge, s.opts.SuccessFreshWindow)
	if decision.Reuse {
		return job, decision, true, nil
	}

	if decision.Reason == models.ReuseStaleNoHeartbeat || decision.Reason == models.ReuseStaleTooOld {
		if s.markStaleLocked(ctx, job, decision.Reason) {
			return nil, decision, false, nil
		}
		// Subscribers kept it alive; treat the prior job as fresh running.
		fresh := models.ReuseDecision{Reuse: true, Reason: models.ReuseRunningFresh}
		return job, fresh, true, nil
	}
	return nil, decision, false, nil
}

// markStaleLocked transitions a running job to DONE_FAILED with the stale
// reason. Idempotent: terminal jobs are left alone. Returns false when active
// subscribers vetoed the marking (liveness extended by one heartbeat bump).
func (s *Store) markStaleLocked(ctx context.Context, job *models.Job, reason string) bool {
	if job.Status.Terminal() {
		return true
	}

	s.mu.RLock()
	subs := s.subscribers
	notifier := s.notifier
	s.mu.RUnlock()

	if subs != nil && subs.HasActiveSubscribers(job.RequestID) {
		slog.Info("Stale marking vetoed by active subscribers, extending liveness",
			"request_id", job.RequestID, "reason", reason)
		job.UpdatedAt = s.now()
		if err := s.writeJob(ctx, job); err != nil {
			slog.Warn("Failed to extend stale job liveness", "request_id", job.RequestID, "error", err)
		}
		return false
	}

	now := s.now()
	job.Status = models.StatusDoneFailed
	job.UpdatedAt = now
	job.CompletedAt = &now
	job.Error = &models.ErrorRecord{
		Code:          reason,
		Message:       "search job abandoned without heartbeat",
		FailureReason: reason,
		Retryable:     true,
	}
	job.FailureReason = reason
	if err := s.writeJob(ctx, job); err != nil {
		slog.Warn("Failed to persist stale marking", "request_id", job.RequestID, "error", err)
		return true
	}
	slog.Info("Marked running job stale", "request_id", job.RequestID, "reason", reason)
	if notifier != nil {
		notifier.NotifyTerminal(job.RequestID, job.Status, job.Error)
	}
	return true
}

func (s *Store) createJob(ctx context.Context, req models.SearchRequest, idempotencyKey, ownerSessionID, ownerUserID string) (*models.Job, error) {
	now := s.now()
	job := &models.Job{
		RequestID:      uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		OwnerSessionID: ownerSessionID,
		OwnerUserID:    ownerUserID,
		Status:         models.StatusPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
		Request:        req,
	}
	if err := s.writeJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.backend.Set(ctx, idemKeyPrefix+idempotencyKey, []byte(job.RequestID), s.opts.JobTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	slog.Info("Created search job", "request_id", job.RequestID, "session_id", ownerSessionID)
	return job, nil
}

// SetStatus applies a forward status transition, optionally raising progress.
// Setting the current status again is a no-op. Backward or post-terminal
// transitions return ErrInvalidTransition.
func (s *Store) SetStatus(ctx context.Context, requestID string, status models.JobStatus, progress int) error {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	job := s.readJob(ctx, requestID)
	if job == nil {
		return nil
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = s.now()
	if status.Terminal() && job.CompletedAt == nil {
		t := job.UpdatedAt
		job.CompletedAt = &t
	}
	return s.writeJob(ctx, job)
}

// UpdateHeartbeat bumps updatedAt. No-op for terminal or unknown jobs.
func (s *Store) UpdateHeartbeat(ctx context.Context, requestID string) error {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	job := s.readJob(ctx, requestID)
	if job == nil || job.Status.Terminal() {
		return nil
	}
	job.UpdatedAt = s.now()
	return s.writeJob(ctx, job)
}

// SetResult atomically transitions the job to DONE_SUCCESS with the bundle.
func (s *Store) SetResult(ctx context.Context, requestID string, result *models.SearchResponse, lang JobLanguage) error {
	return s.finish(ctx, requestID, func(job *models.Job) error {
		job.Status = models.StatusDoneSuccess
		job.Progress = 100
		job.Result = result
		applyLanguage(job, lang)
		return nil
	})
}

// SetError atomically transitions the job to DONE_FAILED.
func (s *Store) SetError(ctx context.Context, requestID string, errRecord *models.ErrorRecord, lang JobLanguage) error {
	return s.finish(ctx, requestID, func(job *models.Job) error {
		job.Status = models.StatusDoneFailed
		job.Error = errRecord
		if errRecord != nil {
			job.FailureReason = errRecord.FailureReason
		}
		applyLanguage(job, lang)
		return nil
	})
}

// SetAssistTerminal transitions to DONE_CLARIFY or DONE_STOPPED with an
// assist payload.
func (s *Store) SetAssistTerminal(ctx context.Context, requestID string, status models.JobStatus, assist *models.Assist, lang JobLanguage) error {
	if status != models.StatusDoneClarify && status != models.StatusDoneStopped {
		return fmt.Errorf("%w: %s is not an assist terminal", ErrInvalidTransition, status)
	}
	return s.finish(ctx, requestID, func(job *models.Job) error {
		job.Status = status
		job.Assist = assist
		if assist != nil {
			job.FailureReason = assist.Reason
		}
		applyLanguage(job, lang)
		return nil
	})
}

// JobLanguage carries the language context snapshot persisted with the
// terminal record so the assistant streamer can localize later.
type JobLanguage struct {
	AssistantLanguage string
	UILanguage        string
}

func applyLanguage(job *models.Job, lang JobLanguage) {
	if lang.AssistantLanguage != "" {
		job.AssistantLanguage = lang.AssistantLanguage
	}
	if lang.UILanguage != "" {
		job.UILanguage = lang.UILanguage
	}
}

// finish applies a terminal mutation under the request lock. Terminal states
// never overwrite each other.
func (s *Store) finish(ctx context.Context, requestID string, mutate func(job *models.Job) error) error {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	job := s.readJob(ctx, requestID)
	if job == nil {
		return nil
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job already terminal (%s)", ErrInvalidTransition, job.Status)
	}
	if err := mutate(job); err != nil {
		return err
	}
	now := s.now()
	job.UpdatedAt = now
	job.CompletedAt = &now
	metrics.PipelineOutcomes.WithLabelValues(string(job.Status)).Inc()
	return s.writeJob(ctx, job)
}

// GetJob returns the job or nil when unknown. Backend read failures degrade
// to nil with a warning.
func (s *Store) GetJob(ctx context.Context, requestID string) (*models.Job, error) {
	return s.readJob(ctx, requestID), nil
}

// GetStatus returns the status, or empty when the job is unknown.
func (s *Store) GetStatus(ctx context.Context, requestID string) models.JobStatus {
	job := s.readJob(ctx, requestID)
	if job == nil {
		return ""
	}
	return job.Status
}

// GetResult returns the result bundle of a DONE_SUCCESS job, or nil.
func (s *Store) GetResult(ctx context.Context, requestID string) *models.SearchResponse {
	job := s.readJob(ctx, requestID)
	if job == nil || job.Status != models.StatusDoneSuccess {
		return nil
	}
	return job.Result
}

// DeleteJob removes the job record and its candidate pool.
func (s *Store) DeleteJob(ctx context.Context, requestID string) error {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.backend.Delete(ctx, jobKeyPrefix+requestID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = s.backend.Delete(ctx, candidateKeyPrefix+requestID)
	return nil
}

// SetCandidatePool stores the pre-ranking items for refinement reuse.
func (s *Store) SetCandidatePool(ctx context.Context, requestID string, items []models.ResultItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, candidateKeyPrefix+requestID, data, s.opts.JobTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetCandidatePool returns the stored pre-ranking items, or nil.
func (s *Store) GetCandidatePool(ctx context.Context, requestID string) []models.ResultItem {
	data, err := s.backend.Get(ctx, candidateKeyPrefix+requestID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Candidate pool read failed", "request_id", requestID, "error", err)
		}
		return nil
	}
	var items []models.ResultItem
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("Candidate pool decode failed", "request_id", requestID, "error", err)
		return nil
	}
	return items
}

// GetRunningJobs snapshots all non-terminal jobs for the sweep.
func (s *Store) GetRunningJobs(ctx context.Context) []*models.Job {
	keys, err := s.backend.Keys(ctx, jobKeyPrefix)
	if err != nil {
		slog.Warn("Running jobs snapshot failed", "error", err)
		return nil
	}
	var out []*models.Job
	for _, key := range keys {
		requestID := key[len(jobKeyPrefix):]
		job := s.readJob(ctx, requestID)
		if job != nil && !job.Status.Terminal() {
			out = append(out, job)
		}
	}
	return out
}

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Store) lookupIdem(ctx context.Context, idempotencyKey string) string {
	data, err := s.backend.Get(ctx, idemKeyPrefix+idempotencyKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Idempotency lookup failed", "error", err)
		}
		return ""
	}
	return string(data)
}

// readJob loads a job. Unknown keys and backend read failures both yield nil;
// the latter logs a structured warning.
func (s *Store) readJob(ctx context.Context, requestID string) *models.Job {
	data, err := s.backend.Get(ctx, jobKeyPrefix+requestID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Job read failed", "request_id", requestID, "error", err)
		}
		return nil
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		slog.Warn("Job decode failed", "request_id", requestID, "error", err)
		return nil
	}
	return &job
}

// writeJob persists a job. Terminal jobs carry the store TTL so they expire
// on their own; live jobs do not expire.
func (s *Store) writeJob(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ttl := time.Duration(0)
	if job.Status.Terminal() {
		ttl = s.opts.JobTTL
	}
	if err := s.backend.Set(ctx, jobKeyPrefix+job.RequestID, data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
