// Package bridge implements the authenticated duplex channel between a
// coordinator node and a worker node.
//
// The wire protocol is newline-delimited JSON envelopes over a persistent TCP
// connection. The connecting side must send an auth message first; after the
// handshake both sides exchange fixed-interval heartbeats and arbitrary typed
// messages with optional request/response correlation.
package bridge

import (
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope on the wire.
type MessageType string

const (
	// TypeAuth is the handshake message; its payload carries the bearer token.
	TypeAuth MessageType = "auth"
	// TypeHeartbeat is the periodic liveness message. Content is ignored.
	TypeHeartbeat MessageType = "heartbeat"
	// TypeTaskDispatch asks the worker node to execute a task.
	TypeTaskDispatch MessageType = "task-dispatch"
	// TypeTaskStatus reports task acceptance, rejection or progress.
	TypeTaskStatus MessageType = "task-status"
	// TypeTaskResult carries a finished task's outcome.
	TypeTaskResult MessageType = "task-result"
	// TypeStatusRequest asks the peer for its current status.
	TypeStatusRequest MessageType = "status-request"
	// TypeStatusResponse answers a status request.
	TypeStatusResponse MessageType = "status-response"
	// TypeMemorySync shares coordinator state with the worker node.
	TypeMemorySync MessageType = "memory-sync"
)

// knownTypes lists every message type the channel dispatches. Unknown types
// are logged and dropped, never fatal.
var knownTypes = map[MessageType]bool{
	TypeAuth:           true,
	TypeHeartbeat:      true,
	TypeTaskDispatch:   true,
	TypeTaskStatus:     true,
	TypeTaskResult:     true,
	TypeStatusRequest:  true,
	TypeStatusResponse: true,
	TypeMemorySync:     true,
}

// Message is one envelope on the wire.
type Message struct {
	// Type identifies the envelope kind.
	Type MessageType `json:"type"`
	// Payload is an opaque key/value body.
	Payload map[string]string `json:"payload,omitempty"`
	// ID correlates a request with its response.
	ID string `json:"id,omitempty"`
	// Timestamp is when the sender created the envelope.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds an envelope with a fresh correlation ID.
func NewMessage(t MessageType, payload map[string]string) *Message {
	return &Message{
		Type:      t,
		Payload:   payload,
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
}

// Reply builds a response envelope carrying the request's correlation ID.
func (m *Message) Reply(t MessageType, payload map[string]string) *Message {
	return &Message{
		Type:      t,
		Payload:   payload,
		ID:        m.ID,
		Timestamp: time.Now(),
	}
}

// Auth payload keys and values.
const (
	payloadToken  = "token"
	payloadStatus = "status"
	payloadReason = "reason"

	statusOK       = "ok"
	statusDenied   = "denied"
	statusTimedOut = "timeout"

	// StatusRejected marks an explicit capacity rejection of a dispatched
	// task. Callers must treat it as a first-class outcome, not an error.
	StatusRejected = "rejected"
)
