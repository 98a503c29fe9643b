package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrHubShuttingDown   = errors.New("hub is shutting down")
	ErrConnectionClosed  = errors.New("connection is closed")
	ErrSendBufferFull    = errors.New("send buffer is full")
	ErrUnknownConnection = errors.New("connection not found")
)

// Connection represents one live event channel (WebSocket, SSE, ...).
type Connection interface {
	ID() string
	Type() string
	// Send queues event for delivery. It must not block: a connection that
	// cannot take the event returns ErrSendBufferFull or ErrConnectionClosed.
	Send(event Event) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// Event is a named payload travelling through the relay. Payload holds the
// raw JSON exactly as the sender produced it.
type Event struct {
	Name    string
	Payload json.RawMessage
	Origin  string
}

// Publisher accepts inbound events for dispatch.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent builds an event from an arbitrary Go value. A json.RawMessage is
// used as is; other values are encoded without HTML escaping.
func NewEvent(name string, payload any, origin string) (Event, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		if len(raw) == 0 {
			raw = nullPayload
		}
		if !json.Valid(raw) {
			return Event{}, fmt.Errorf("%w: payload of %q is not valid JSON", ErrInvalidFrame, name)
		}
		return Event{Name: name, Payload: raw, Origin: origin}, nil
	}

	raw, err := marshalNoEscape(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Payload: raw, Origin: origin}, nil
}
