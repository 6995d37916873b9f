// Package assistant streams the final assistant message over Server-Sent
// Events. The streamer polls the job store until the job is terminal, emits
// deterministic narration templates immediately, and calls the LLM exactly
// once per stream for the final summary.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shacharon/tavola/pkg/auth"
	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/langctx"
	"github.com/shacharon/tavola/pkg/llm"
	"github.com/shacharon/tavola/pkg/models"
)

// SSE event names.
const (
	eventMeta    = "meta"
	eventMessage = "message"
	eventDone    = "done"
	eventError   = "error"
)

// Streamer serves assistant SSE streams.
type Streamer struct {
	jobs *jobstore.Store
	llm  llm.Client

	pollInterval time.Duration
	timeout      time.Duration

	now func() time.Time
}

// New builds a streamer.
func New(jobs *jobstore.Store, llmClient llm.Client, pollInterval, timeout time.Duration) *Streamer {
	return &Streamer{
		jobs:         jobs,
		llm:          llmClient,
		pollInterval: pollInterval,
		timeout:      timeout,
		now:          time.Now,
	}
}

// Stream writes the SSE stream for the request onto w. Returns after `done`
// is sent, the client disconnects, or the stream times out.
func (s *Streamer) Stream(ctx context.Context, w http.ResponseWriter, requestID string, identity auth.Identity) {
	log := slog.With("request_id", requestID)

	job, _ := s.jobs.GetJob(ctx, requestID)
	if job != nil && !owns(job, identity) {
		s.writeSSEHeaders(w)
		s.send(w, eventError, map[string]string{"code": models.CodeUnauthorized})
		s.send(w, eventDone, map[string]bool{"ok": false})
		return
	}
	if job == nil {
		// Store down or unknown request: allow, but say so. Polling below
		// resolves the genuine not-found case through the timeout path.
		log.Warn("Assistant stream started without a readable job record")
	}

	s.writeSSEHeaders(w)
	language := streamLanguage(job)
	s.send(w, eventMeta, map[string]any{
		"requestId": requestID,
		"language":  language,
		"startedAt": s.now().UnixMilli(),
	})

	if job != nil && (job.Status == models.StatusDoneClarify || job.Status == models.StatusDoneStopped) {
		s.streamAssistTerminal(ctx, w, job, language)
		return
	}

	// Search path: immediate deterministic narration, then poll for the
	// final result.
	s.send(w, eventMessage, map[string]string{"text": templateFor(language).Searching})
	s.poll(ctx, w, requestID, language, log)
}

// streamAssistTerminal narrates a clarify/stop outcome.
func (s *Streamer) streamAssistTerminal(ctx context.Context, w http.ResponseWriter, job *models.Job, language string) {
	kind := models.AssistClarify
	reason := ""
	if job.Assist != nil {
		kind = job.Assist.Kind
		reason = job.Assist.Reason
	}

	text, err := s.llm.Narrate(ctx, llm.NarrationInput{
		Kind:     kind,
		Language: language,
		Query:    job.Request.Query,
		Reason:   reason,
	})
	if err != nil {
		slog.Warn("Assistant narration failed", "request_id", job.RequestID, "error", err)
		s.send(w, eventError, map[string]string{"code": models.CodeStageError})
		s.send(w, eventDone, map[string]bool{"ok": false})
		return
	}
	s.send(w, eventMessage, map[string]string{"text": text})
	s.send(w, eventDone, map[string]bool{"ok": true})
}

// poll watches the job until success, failure, timeout, or disconnect.
func (s *Streamer) poll(ctx context.Context, w http.ResponseWriter, requestID, language string, log *slog.Logger) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client went away; nothing left to say.
			log.Debug("Assistant stream client disconnected")
			return

		case <-deadline.C:
			s.send(w, eventMessage, map[string]string{"text": templateFor(language).Timeout})
			s.send(w, eventDone, map[string]bool{"ok": false})
			return

		case <-ticker.C:
			job, _ := s.jobs.GetJob(ctx, requestID)
			if job == nil || !job.Status.Terminal() {
				continue
			}

			switch job.Status {
			case models.StatusDoneSuccess:
				s.streamSummary(ctx, w, job, language)
			case models.StatusDoneClarify, models.StatusDoneStopped:
				s.streamAssistTerminal(ctx, w, job, language)
			default: // DONE_FAILED
				code := job.FailureReason
				if code == "" {
					code = models.CodeStageError
				}
				s.send(w, eventError, map[string]string{"code": code})
				s.send(w, eventDone, map[string]bool{"ok": false})
			}
			return
		}
	}
}

// streamSummary narrates a successful search with the top result names.
func (s *Streamer) streamSummary(ctx context.Context, w http.ResponseWriter, job *models.Job, language string) {
	var names []string
	count := 0
	if job.Result != nil {
		count = len(job.Result.Results)
		for i, item := range job.Result.Results {
			if i == 3 {
				break
			}
			names = append(names, item.Name)
		}
	}

	if err := langctx.VerifyAssistantLanguageGraceful(langctx.Context{}, language, job); err != nil {
		slog.Warn("Assistant summary language check failed", "request_id", job.RequestID, "error", err)
	}

	text, err := s.llm.Narrate(ctx, llm.NarrationInput{
		Kind:        models.AssistGuide,
		Language:    language,
		Query:       job.Request.Query,
		TopNames:    names,
		ResultCount: count,
	})
	if err != nil {
		slog.Warn("Assistant summary narration failed", "request_id", job.RequestID, "error", err)
		s.send(w, eventError, map[string]string{"code": models.CodeStageError})
		s.send(w, eventDone, map[string]bool{"ok": false})
		return
	}
	s.send(w, eventMessage, map[string]string{"text": text})
	s.send(w, eventDone, map[string]bool{"ok": true})
}

func (s *Streamer) writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// send writes one SSE event and flushes it.
func (s *Streamer) send(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// owns reports whether the identity may read the job's stream.
func owns(job *models.Job, identity auth.Identity) bool {
	if job.OwnerSessionID != "" && job.OwnerSessionID == identity.SessionID {
		return true
	}
	if job.OwnerUserID != "" && job.OwnerUserID == identity.UserID {
		return true
	}
	return job.OwnerSessionID == "" && job.OwnerUserID == ""
}

// streamLanguage resolves the stream language from the job's stored context.
func streamLanguage(job *models.Job) string {
	if job == nil {
		return "en"
	}
	switch {
	case job.AssistantLanguage != "":
		return job.AssistantLanguage
	case job.Request.Language != "":
		return job.Request.Language
	case job.UILanguage != "":
		return job.UILanguage
	}
	return "en"
}
