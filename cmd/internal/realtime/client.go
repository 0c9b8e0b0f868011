// Package realtime connects to the realtime service using the token the
// session gateway issues.
package realtime

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/oklog/ulid/v2"

	v1 "prism/contracts/realtime/v1"
)

const maxMessageBytes = 1 << 20

// Event is one server-pushed message after the handshake.
type Event struct {
	Type    string
	ID      string
	Payload json.RawMessage
}

// Client is an authenticated realtime connection. Events arrive on the
// Events channel until the connection drops; Err reports why.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	events    chan Event
	log       *slog.Logger

	mu      sync.Mutex
	readErr error

	closeOnce sync.Once
}

// Dial connects, authenticates with token and completes the hello
// handshake before returning. The token is the wsToken from the
// gateway's realtime token endpoint.
func Dial(ctx context.Context, rawURL, token string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &Client{
		conn:   conn,
		events: make(chan Event, 16),
		log:    log,
	}

	if err := c.handshake(ctx, token); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, token string) error {
	payload, err := json.Marshal(v1.HelloPayload{Token: token})
	if err != nil {
		return fmt.Errorf("realtime: encode hello: %w", err)
	}
	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      newID(),
		TS:      time.Now().UnixMilli(),
		Payload: payload,
	}
	if err := wsjson.Write(ctx, c.conn, hello); err != nil {
		return fmt.Errorf("realtime: send hello: %w", err)
	}

	var reply v1.Envelope
	if err := wsjson.Read(ctx, c.conn, &reply); err != nil {
		return fmt.Errorf("realtime: read hello reply: %w", err)
	}
	if err := reply.Validate(); err != nil {
		return err
	}

	switch reply.Type {
	case v1.TypeHelloAck:
		var ack v1.HelloAckPayload
		if err := json.Unmarshal(reply.Payload, &ack); err != nil {
			return fmt.Errorf("realtime: decode hello.ack: %w", err)
		}
		c.sessionID = ack.SessionID
		c.log.Debug("realtime.handshake.ok", "session_id", ack.SessionID)
		return nil

	case v1.TypeError:
		var pe v1.ErrorPayload
		json.Unmarshal(reply.Payload, &pe)
		return fmt.Errorf("realtime: handshake rejected: %s: %s", pe.Code, pe.Message)

	default:
		return fmt.Errorf("realtime: unexpected handshake reply %q", reply.Type)
	}
}

// SessionID returns the server-assigned connection identity.
func (c *Client) SessionID() string { return c.sessionID }

// Events returns the incoming event stream. The channel closes when the
// connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// Err returns the reason the event stream closed, nil on a clean close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close ends the connection gracefully.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "client closing")
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		var env v1.Envelope
		if err := wsjson.Read(context.Background(), c.conn, &env); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}
		if err := env.Validate(); err != nil {
			c.log.Warn("realtime.envelope.invalid", "error", err)
			continue
		}
		c.events <- Event{Type: env.Type, ID: env.ID, Payload: env.Payload}
	}
}

func newID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
