package events

import (
	"time"

	"github.com/shacharon/tavola/pkg/models"
)

// FrameType tags server-to-client and client-to-server messages.
type FrameType string

// Wire message types.
const (
	// Client → server.
	TypeSubscribe   FrameType = "subscribe"
	TypeUnsubscribe FrameType = "unsubscribe"
	TypePing        FrameType = "ping"

	// Server → client.
	TypeAck      FrameType = "ack"
	TypeNack     FrameType = "nack"
	TypeProgress FrameType = "progress"
	TypePartial  FrameType = "partial"
	TypeTerminal FrameType = "terminal"
	TypeWSStatus FrameType = "ws_status"
	TypeError    FrameType = "error"
	TypePong     FrameType = "pong"
)

// Frame is the WS wire envelope, both directions. Fields are omitted when
// not relevant to the type.
type Frame struct {
	Type      FrameType              `json:"type"`
	RequestID string                 `json:"requestId,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Progress  int                    `json:"progress,omitempty"`
	Status    models.JobStatus       `json:"status,omitempty"`
	Results   []models.ResultItem    `json:"results,omitempty"`
	Result    *models.SearchResponse `json:"result,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	State     string                 `json:"state,omitempty"`
	TS        int64                  `json:"ts,omitempty"`
}

// critical reports whether the frame must never be dropped silently.
// Progress and partial updates are coalescable under backpressure.
func (f Frame) critical() bool {
	switch f.Type {
	case TypeProgress, TypePartial, TypeWSStatus, TypePong:
		return false
	}
	return true
}

// ProgressFrame builds a progress update.
func ProgressFrame(requestID, stage string, progress int) Frame {
	return Frame{Type: TypeProgress, RequestID: requestID, Stage: stage, Progress: progress, TS: time.Now().UnixMilli()}
}

// PartialFrame builds a partial-results update.
func PartialFrame(requestID string, results []models.ResultItem) Frame {
	return Frame{Type: TypePartial, RequestID: requestID, Results: results, TS: time.Now().UnixMilli()}
}

// TerminalFrame builds the end-of-job frame.
func TerminalFrame(requestID string, status models.JobStatus, result *models.SearchResponse, reason string) Frame {
	return Frame{Type: TypeTerminal, RequestID: requestID, Status: status, Result: result, Reason: reason, TS: time.Now().UnixMilli()}
}
