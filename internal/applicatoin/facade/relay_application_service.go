package facade

import (
	"context"
	"encoding/json"
	"sort"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/port/inbound"
)

type RelayApplicationService struct {
	hub *hub.Hub
}

var _ inbound.RelayUseCase = (*RelayApplicationService)(nil)

func NewRelayApplicationService(hubInstance *hub.Hub) *RelayApplicationService {
	return &RelayApplicationService{hub: hubInstance}
}

// Publish feeds an event into the relay exactly as if a connection had sent it.
func (s *RelayApplicationService) Publish(ctx context.Context, origin, name string, payload json.RawMessage) error {
	return s.hub.Publish(ctx, hub.Event{Name: name, Payload: payload, Origin: origin})
}

func (s *RelayApplicationService) SendTo(_ context.Context, connID, name string, payload json.RawMessage) error {
	event := hub.Event{Name: name, Payload: payload, Origin: "rest"}
	if err := hub.ValidateEvent(event); err != nil {
		return err
	}
	return s.hub.SendToConnection(connID, event)
}

func (s *RelayApplicationService) Status() inbound.RelayStatus {
	byType := make(map[string]int)
	conns := s.hub.GetConnections()
	for _, conn := range conns {
		byType[conn.Type()]++
	}

	return inbound.RelayStatus{
		Running:       s.hub.IsRunning(),
		Connections:   len(conns),
		ExcludeOrigin: s.hub.ExcludesOrigin(),
		ByType:        byType,
	}
}

// Connections lists live connections, optionally restricted to one type,
// sorted by id.
func (s *RelayApplicationService) Connections(connType string) []inbound.ConnectionInfo {
	var conns []hub.Connection
	if connType == "" {
		conns = s.hub.GetConnections()
	} else {
		conns = s.hub.GetConnectionsByType(connType)
	}

	infos := make([]inbound.ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, inbound.ConnectionInfo{
			ID:     conn.ID(),
			Type:   conn.Type(),
			Closed: conn.IsClosed(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
