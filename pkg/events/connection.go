package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"github.com/shacharon/tavola/pkg/metrics"
)

// Connection is one registered WebSocket peer. The hub owns the subscription
// maps; the connection owns its bounded outbound queue, drained by a single
// writer goroutine.
type Connection struct {
	ID        string
	SessionID string
	UserID    string

	hub    *Hub
	sock   *websocket.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []Frame
	wake   chan struct{}
	closed bool
}

// enqueue appends a frame to the outbound queue. On overflow, older progress
// and partial frames are coalesced first; a critical frame that still cannot
// fit closes the connection with 1009.
func (c *Connection) enqueue(f Frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.queue) >= c.hub.opts.QueueMax {
		c.coalesceLocked()
	}
	if len(c.queue) >= c.hub.opts.QueueMax {
		if f.critical() {
			c.mu.Unlock()
			metrics.WSDroppedFrames.WithLabelValues("critical_undeliverable").Inc()
			c.hub.drop(c, CloseTooBig, "outbound queue overflow")
			return
		}
		metrics.WSDroppedFrames.WithLabelValues("overflow").Inc()
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// coalesceLocked keeps only the newest progress frame per request and drops
// older partials, preserving the relative order of what survives.
func (c *Connection) coalesceLocked() {
	latestProgress := make(map[string]int) // requestID → last index
	for i, f := range c.queue {
		if f.Type == TypeProgress {
			latestProgress[f.RequestID] = i
		}
	}

	kept := c.queue[:0]
	for i, f := range c.queue {
		if !f.critical() {
			if f.Type != TypeProgress || latestProgress[f.RequestID] != i {
				metrics.WSDroppedFrames.WithLabelValues("coalesced").Inc()
				continue
			}
		}
		kept = append(kept, f)
	}
	c.queue = kept
}

// writeLoop drains the outbound queue until the connection context ends.
func (c *Connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			if err := c.write(ctx, f); err != nil {
				c.hub.drop(c, CloseInternal, "write failed")
				return
			}
		}
	}
}

func (c *Connection) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.hub.opts.WriteTimeout)
	defer cancel()
	return c.sock.Write(wctx, websocket.MessageText, data)
}

// ping round-trips a WS ping within the heartbeat budget.
func (c *Connection) ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.hub.opts.HeartbeatInterval)
	defer cancel()
	return c.sock.Ping(pctx)
}

// markClosed flips the closed flag; returns false if already closed.
func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}
