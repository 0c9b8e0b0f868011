// Package v1 defines the realtime wire contract shared by the websocket
// client and any server speaking it.
package v1

import (
	"encoding/json"
	"fmt"
)

// Version is the envelope schema version.
const Version = 1

// Subprotocol is negotiated during the websocket handshake.
const Subprotocol = "prism.realtime.v1"

// Envelope types.
const (
	TypeHello    = "hello"
	TypeHelloAck = "hello.ack"
	TypeEvent    = "event"
	TypeError    = "error"
)

// Envelope frames every message on the wire.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the envelope's framing fields. Payload contents are
// the receiver's business.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("realtime: unsupported envelope version %d", e.V)
	}
	switch e.Type {
	case TypeHello, TypeHelloAck, TypeEvent, TypeError:
	default:
		return fmt.Errorf("realtime: unknown envelope type %q", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("realtime: envelope missing id")
	}
	if e.TS <= 0 {
		return fmt.Errorf("realtime: envelope missing timestamp")
	}
	return nil
}

// HelloPayload authenticates the connection with a short-lived token
// issued by the session gateway.
type HelloPayload struct {
	Token string `json:"token"`
}

// HelloAckPayload confirms the handshake.
type HelloAckPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload reports a protocol or authentication failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
