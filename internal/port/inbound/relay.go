package inbound

import (
	"context"
	"encoding/json"
)

// RelayStatus is a point-in-time view of the relay.
type RelayStatus struct {
	Running       bool
	Connections   int
	ExcludeOrigin bool
	ByType        map[string]int
}

// ConnectionInfo describes one live connection.
type ConnectionInfo struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Closed bool   `json:"closed"`
}

// RelayUseCase is what the HTTP interfaces need from the relay.
type RelayUseCase interface {
	Publish(ctx context.Context, origin, name string, payload json.RawMessage) error
	SendTo(ctx context.Context, connID, name string, payload json.RawMessage) error
	Status() RelayStatus
	Connections(connType string) []ConnectionInfo
}
