package transport

import (
	"encoding/json"
	"errors"
	"net/http"
)

type MessageType string

const (
	MessageTypeSessionStart MessageType = "session.start"
	MessageTypeSessionStop  MessageType = "session.stop"
	MessageTypeVideoReady   MessageType = "video.ready"
	MessageTypeVideoError   MessageType = "video.error"
	MessageTypeICECandidate MessageType = "ice.candidate"
)

const (
	EventTypeSessionCreated = "session.created"
	EventTypeError          = "error"
)

var ErrInvalidMessage = errors.New("invalid client message")

type BackpressureCallback func(droppedCount int)

// ServerEvent is one message sent to the capture client. Liveness events use
// their event kind as Type.
type ServerEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// ClientEnvelope is a command received from the capture client. Payload is
// the full raw message.
type ClientEnvelope struct {
	Type    MessageType
	Payload json.RawMessage
}

func DecodeEnvelope(data []byte) (ClientEnvelope, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return ClientEnvelope{}, errors.Join(ErrInvalidMessage, err)
	}
	if base.Type == "" {
		return ClientEnvelope{}, ErrInvalidMessage
	}
	return ClientEnvelope{Type: base.Type, Payload: json.RawMessage(data)}, nil
}

func (e ClientEnvelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}

type SessionStartPayload struct {
	Options map[string]any `json:"options,omitempty"`
}

type VideoReadyPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type VideoErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SessionCreatedPayload struct {
	Options map[string]any `json:"options,omitempty"`
}

// ClientProfile identifies the hosting application that opened the session.
type ClientProfile struct {
	ClientID string
	KeyID    string
	IP       string
}

type StartRequest struct {
	SessionID string
	Conn      Connection
	Client    *ClientProfile
	// Options, when set, start the session immediately instead of waiting
	// for a session.start message.
	Options map[string]any
}

type SessionStarter interface {
	Start(req StartRequest) error
}

type AuthFunc func(r *http.Request) (*ClientProfile, error)
