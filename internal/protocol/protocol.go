// Package protocol defines the closed message vocabulary exchanged between
// the orchestrator and the frame agents, and the JSON envelope used on the
// wire.
//
// Decode is the only place where untrusted payloads become typed messages.
// Nothing in the protocol filters by origin: a payload is accepted when its
// type tag belongs to the vocabulary and its body decodes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the wire tag carried by every message.
type Type string

const (
	TypePing            Type = "ping"
	TypePingAck         Type = "ping-ack"
	TypeCaptureRequest  Type = "capture-request"
	TypeCaptureResponse Type = "capture-response"
	TypeReady           Type = "ready-announcement"
)

var (
	// ErrUnknownType is returned for payloads whose tag is not in the vocabulary.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned for payloads that are not a valid envelope.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Message is implemented by every variant of the vocabulary.
type Message interface {
	Type() Type
}

// Correlated is implemented by request and response variants.
type Correlated interface {
	Message
	ID() string
}

// Ping asks page-bearing frames to acknowledge.
type Ping struct {
	RequestID string `json:"requestId"`
}

// PingAck is sent by a frame that currently holds a page image.
type PingAck struct {
	RequestID string `json:"requestId"`
	HasImage  bool   `json:"hasImage"`
	FrameURL  string `json:"frameUrl,omitempty"`
}

// CaptureRequest asks the page-bearing frame to rasterize its page image.
type CaptureRequest struct {
	RequestID string `json:"requestId"`
}

// CaptureResponse carries the encoded page image, or the reason it could
// not be produced.
type CaptureResponse struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	ImageData []byte `json:"imageData,omitempty"`
	FrameURL  string `json:"frameUrl,omitempty"`
}

// ReadyAnnouncement is sent unsolicited by every agent.
type ReadyAnnouncement struct {
	HasImage bool   `json:"hasImage"`
	FrameURL string `json:"frameUrl"`
}

func (Ping) Type() Type { return TypePing }
func (PingAck) Type() Type { return TypePingAck }
func (CaptureRequest) Type() Type { return TypeCaptureRequest }
func (CaptureResponse) Type() Type { return TypeCaptureResponse }
func (ReadyAnnouncement) Type() Type { return TypeReady }

func (m Ping) ID() string { return m.RequestID }
func (m PingAck) ID() string { return m.RequestID }
func (m CaptureRequest) ID() string { return m.RequestID }
func (m CaptureResponse) ID() string { return m.RequestID }

type envelope struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Encode serialises m into its wire envelope.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	if _, ok := factories[m.Type()]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type())
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Type(), err)
	}
	return json.Marshal(envelope{Type: m.Type(), Body: body})
}

// MustEncode is Encode for messages built by this process, which always
// encode.
func MustEncode(m Message) []byte {
	data, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return data
}

var factories = map[Type]func() Message{
	TypePing:            func() Message { return &Ping{} },
	TypePingAck:         func() Message { return &PingAck{} },
	TypeCaptureRequest:  func() Message { return &CaptureRequest{} },
	TypeCaptureResponse: func() Message { return &CaptureResponse{} },
	TypeReady:           func() Message { return &ReadyAnnouncement{} },
}

// Decode validates data against the vocabulary and returns the typed
// message by value.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	newMsg, ok := factories[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	ptr := newMsg()
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s body: %v", ErrMalformed, env.Type, err)
		}
	}

	switch m := ptr.(type) {
	case *Ping:
		return *m, nil
	case *PingAck:
		return *m, nil
	case *CaptureRequest:
		return *m, nil
	case *CaptureResponse:
		return *m, nil
	case *ReadyAnnouncement:
		return *m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

// RequestID returns the correlation id of m, or "" for uncorrelated
// messages.
func RequestID(m Message) string {
	if c, ok := m.(Correlated); ok {
		return c.ID()
	}
	return ""
}
