package proto

import (
	"encoding/json"
	"fmt"
)

const (
	ProtocolVersion = 1

	TypeHello   = "hello"
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
	TypeError   = "error"
)

// Protocol error codes. Domain error codes come from the core package.
const (
	CodeInvalidMessage     = "invalid_message"
	CodeHelloRequired      = "hello_required"
	CodeUnsupportedVersion = "unsupported_version"
	CodeUnauthorized       = "unauthorized"
	CodeRateLimited        = "rate_limited"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// NewEnvelope marshals data into a frame of the given type.
func NewEnvelope(typ string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return Envelope{Type: typ, Data: raw}, nil
}

// ErrorEnvelope builds an error frame.
func ErrorEnvelope(code, msg string) Envelope {
	return Envelope{Type: TypeError, Error: &Error{Code: code, Msg: msg}}
}

// Decode unmarshals the frame payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s frame has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join a specific room. Leave frames reuse it.
type JoinData struct {
	RoomID string `json:"roomId"`
}

// MessageData is a chat message. Clients send it to the server and the
// server delivers the same shape to the other participant.
type MessageData struct {
	ID       string `json:"id,omitempty"`
	RoomID   string `json:"roomId"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Body     string `json:"body"`
	Seq      uint64 `json:"seq,omitempty"`
	TS       int64  `json:"ts,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}
