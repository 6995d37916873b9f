package events

import "github.com/coder/websocket"

// Close-code taxonomy. Soft codes invite the client to reconnect with
// backoff; hard codes require re-authentication.
const (
	CloseNormal       = websocket.StatusNormalClosure  // 1000
	CloseGoingAway    = websocket.StatusGoingAway      // 1001 server shutdown, soft
	ClosePolicy       = websocket.StatusPolicyViolation // 1008 hard
	CloseTooBig       = websocket.StatusMessageTooBig  // 1009 backpressure, hard
	CloseInternal     = websocket.StatusInternalError  // 1011 soft
	CloseUnauthorized = websocket.StatusCode(4401)     // hard, do not reconnect
	CloseTicketStale  = websocket.StatusCode(4408)     // soft, fetch a fresh ticket
)

// SoftClose reports whether the client should reconnect after this code.
func SoftClose(code websocket.StatusCode) bool {
	switch code {
	case CloseNormal, CloseGoingAway, CloseInternal, CloseTicketStale:
		return true
	}
	return false
}
