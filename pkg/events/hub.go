// Package events is the realtime fan-out hub: WebSocket connection lifecycle,
// per-request subscriptions, backlog replay, bounded outbound queues, and the
// ping/pong heartbeat. All subscription state lives behind the hub's lock;
// the request ↔ connection relation is held as two index tables.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/shacharon/tavola/pkg/metrics"
	"github.com/shacharon/tavola/pkg/models"
)

// JobReader is the hub's view of the job store, used to answer subscriptions
// to already-terminal jobs.
type JobReader interface {
	GetJob(ctx context.Context, requestID string) (*models.Job, error)
}

// Options tunes the hub.
type Options struct {
	QueueMax          int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	BacklogSize       int
	BacklogTTL        time.Duration
	PendingSubWindow  time.Duration
}

// Hub is the process-wide realtime authority.
type Hub struct {
	opts Options

	mu           sync.Mutex
	conns        map[string]*Connection
	byRequest    map[string]map[string]struct{} // requestID → connection ids
	byConnection map[string]map[string]struct{} // connection id → requestIDs
	pendingSince map[string]time.Time           // requests subscribed before first publish
	backlogs     map[string]*backlog
	shutdown     bool

	jobsMu sync.RWMutex
	jobs   JobReader

	now func() time.Time
}

// NewHub builds the hub.
func NewHub(opts Options) *Hub {
	return &Hub{
		opts:         opts,
		conns:        make(map[string]*Connection),
		byRequest:    make(map[string]map[string]struct{}),
		byConnection: make(map[string]map[string]struct{}),
		pendingSince: make(map[string]time.Time),
		backlogs:     make(map[string]*backlog),
		now:          time.Now,
	}
}

// SetJobReader wires the job store. Called once during startup.
func (h *Hub) SetJobReader(r JobReader) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	h.jobs = r
}

// HandleConnection registers the socket and serves its read loop until the
// peer goes away or the hub shuts down. Blocks for the connection lifetime.
func (h *Hub) HandleConnection(ctx context.Context, sock *websocket.Conn, sessionID, userID string) {
	connCtx, cancel := context.WithCancel(ctx)
	conn := &Connection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		hub:       h,
		sock:      sock,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
	}

	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		cancel()
		_ = sock.Close(CloseGoingAway, "server shutting down")
		return
	}
	h.conns[conn.ID] = conn
	h.byConnection[conn.ID] = make(map[string]struct{})
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	slog.Info("WS connection registered", "connection_id", conn.ID, "session_id", sessionID)

	go conn.writeLoop(connCtx)
	conn.enqueue(Frame{Type: TypeWSStatus, State: "connected", TS: h.now().UnixMilli()})

	h.readLoop(connCtx, conn)
	h.drop(conn, CloseNormal, "")
}

// readLoop dispatches client frames until the socket errors.
func (h *Hub) readLoop(ctx context.Context, conn *Connection) {
	for {
		_, data, err := conn.sock.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			conn.enqueue(Frame{Type: TypeError, Code: models.CodeValidationError, Message: "malformed frame"})
			continue
		}

		switch f.Type {
		case TypeSubscribe:
			h.Subscribe(ctx, conn, f.RequestID)
		case TypeUnsubscribe:
			h.Unsubscribe(conn, f.RequestID)
			conn.enqueue(Frame{Type: TypeAck, RequestID: f.RequestID})
		case TypePing:
			conn.enqueue(Frame{Type: TypePong, TS: h.now().UnixMilli()})
		default:
			conn.enqueue(Frame{Type: TypeNack, RequestID: f.RequestID, Reason: "unknown message type"})
		}
	}
}

// Subscribe binds the connection to the request and replays the backlog
// oldest-first. A subscription to an already-terminal job with an expired
// backlog gets a one-shot terminal frame instead.
func (h *Hub) Subscribe(ctx context.Context, conn *Connection, requestID string) {
	if requestID == "" {
		conn.enqueue(Frame{Type: TypeNack, Reason: "missing requestId"})
		return
	}

	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if h.byRequest[requestID] == nil {
		h.byRequest[requestID] = make(map[string]struct{})
	}
	h.byRequest[requestID][conn.ID] = struct{}{}
	h.byConnection[conn.ID][requestID] = struct{}{}

	var replay []Frame
	bl, hasBacklog := h.backlogs[requestID]
	if hasBacklog {
		replay = bl.snapshot()
	} else if _, seen := h.pendingSince[requestID]; !seen {
		h.pendingSince[requestID] = h.now()
	}
	h.mu.Unlock()

	conn.enqueue(Frame{Type: TypeAck, RequestID: requestID})
	for _, f := range replay {
		conn.enqueue(f)
	}

	if !hasBacklog {
		h.jobsMu.RLock()
		jobs := h.jobs
		h.jobsMu.RUnlock()
		if jobs != nil {
			if job, _ := jobs.GetJob(ctx, requestID); job != nil && job.Status.Terminal() {
				conn.enqueue(TerminalFrame(requestID, job.Status, job.Result, job.FailureReason))
			}
		}
	}
}

// Unsubscribe removes the binding.
func (h *Hub) Unsubscribe(conn *Connection, requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byRequest[requestID]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(h.byRequest, requestID)
		}
	}
	if set, ok := h.byConnection[conn.ID]; ok {
		delete(set, requestID)
	}
}

// Publish appends the frame to the request backlog and delivers it to every
// live subscriber in publish order.
func (h *Hub) Publish(requestID string, f Frame) {
	h.mu.Lock()
	bl, ok := h.backlogs[requestID]
	if !ok {
		bl = newBacklog(h.opts.BacklogSize)
		h.backlogs[requestID] = bl
	}
	bl.append(f, h.now())
	delete(h.pendingSince, requestID)

	targets := make([]*Connection, 0, len(h.byRequest[requestID]))
	for connID := range h.byRequest[requestID] {
		if conn, ok := h.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		conn.enqueue(f)
	}
}

// CloseRequest sends a terminal frame to all subscribers, then removes the
// backlog and the request's subscriptions.
func (h *Hub) CloseRequest(requestID string, f Frame) {
	h.Publish(requestID, f)

	h.mu.Lock()
	delete(h.backlogs, requestID)
	delete(h.pendingSince, requestID)
	for connID := range h.byRequest[requestID] {
		if set, ok := h.byConnection[connID]; ok {
			delete(set, requestID)
		}
	}
	delete(h.byRequest, requestID)
	h.mu.Unlock()
}

// NotifyTerminal lets the job store announce stale-marked jobs.
func (h *Hub) NotifyTerminal(requestID string, status models.JobStatus, errRecord *models.ErrorRecord) {
	reason := ""
	if errRecord != nil {
		reason = errRecord.FailureReason
	}
	h.CloseRequest(requestID, TerminalFrame(requestID, status, nil, reason))
}

// HasActiveSubscribers reports whether anyone is watching the request.
func (h *Hub) HasActiveSubscribers(requestID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byRequest[requestID]) > 0
}

// StartHeartbeat launches the ping loop. A connection that misses its pong
// within one interval is closed with 1011. The tick also prunes expired
// backlogs and stale pending subscriptions.
func (h *Hub) StartHeartbeat(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.pingAll(ctx)
				h.pruneExpired()
			}
		}
	}()
}

func (h *Hub) pingAll(ctx context.Context) {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		go func(c *Connection) {
			if err := c.ping(ctx); err != nil {
				slog.Warn("WS heartbeat missed", "connection_id", c.ID, "error", err)
				h.drop(c, CloseInternal, "heartbeat timeout")
			}
		}(conn)
	}
}

// pruneExpired drops aged backlogs and pending subscriptions whose job never
// materialized within the window.
func (h *Hub) pruneExpired() {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	for requestID, bl := range h.backlogs {
		if bl.expired(now, h.opts.BacklogTTL) {
			delete(h.backlogs, requestID)
		}
	}
	for requestID, since := range h.pendingSince {
		if now.Sub(since) > h.opts.PendingSubWindow {
			for connID := range h.byRequest[requestID] {
				if set, ok := h.byConnection[connID]; ok {
					delete(set, requestID)
				}
			}
			delete(h.byRequest, requestID)
			delete(h.pendingSince, requestID)
		}
	}
}

// drop removes the connection from all maps and closes the socket.
func (h *Hub) drop(conn *Connection, code websocket.StatusCode, reason string) {
	if !conn.markClosed() {
		return
	}

	h.mu.Lock()
	delete(h.conns, conn.ID)
	for requestID := range h.byConnection[conn.ID] {
		if set, ok := h.byRequest[requestID]; ok {
			delete(set, conn.ID)
			if len(set) == 0 {
				delete(h.byRequest, requestID)
			}
		}
	}
	delete(h.byConnection, conn.ID)
	h.mu.Unlock()

	conn.cancel()
	_ = conn.sock.Close(code, reason)
	metrics.WSConnections.Dec()
	slog.Info("WS connection dropped", "connection_id", conn.ID, "code", int(code), "reason", reason)
}

// Shutdown drains every connection with 1001 and refuses new registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.drop(conn, CloseGoingAway, "server shutting down")
	}
	slog.Info("Realtime hub shut down", "drained", len(conns))
}
