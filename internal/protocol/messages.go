// Package protocol defines the WebSocket message protocol between clients and the relay.
package protocol

// Message types from client to relay
const (
	TypeSendMessage  = "sendMessage"
	TypeResetSession = "resetSession"
)

// Message types from relay to client
const (
	TypeNewSession    = "newSession"
	TypeResponseChunk = "responseChunk"
	TypeResponseDone  = "responseDone"
	TypeError         = "error"
)

// BaseMessage contains the fields common to all messages.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts,omitempty"`
}

// SendMessage is sent by a client to submit a query. SessionID is empty on
// the first message; the relay answers with a NewSession event carrying the
// id the client must use from then on.
type SendMessage struct {
	BaseMessage
	SessionID string `json:"sessionId,omitempty"`
	Query     string `json:"query"`
}

// ResetSession is sent by a client to discard its conversation and start over.
type ResetSession struct {
	BaseMessage
	SessionID string `json:"sessionId,omitempty"`
}

// NewSession informs the client of a freshly created session id. It is always
// delivered before any other event tied to that session.
type NewSession struct {
	BaseMessage
	SessionID string `json:"sessionId"`
}

// ResponseChunk carries one ordered fragment of a streamed answer.
type ResponseChunk struct {
	BaseMessage
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
}

// ResponseDone marks the end of one query's chunk stream.
type ResponseDone struct {
	BaseMessage
	SessionID string `json:"sessionId"`
}

// ErrorMessage is sent when an inbound event cannot be processed.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeQueryQueueFull = "query_queue_full"
)
