package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/infrastructure/metrics"
)

const (
	defaultQueueSize = 1000
	cleanupInterval  = 30 * time.Second
)

// Hub is the event relay: it owns the connection registry and dispatches
// every inbound event from a single loop goroutine.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher
	terminator *Terminator

	running   bool
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.Relay

	excludeOrigin bool
	exitGrace     time.Duration

	register   chan Connection
	unregister chan string
	inbound    chan Event

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithExcludeOrigin stops broadcasts from echoing an event back to its sender.
// Control events are still delivered to every connection.
func WithExcludeOrigin(exclude bool) Option {
	return func(h *Hub) { h.excludeOrigin = exclude }
}

// WithExitGrace sets the delay between broadcasting exit and stopping.
func WithExitGrace(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.exitGrace = d
		}
	}
}

// WithQueueSize sets the capacity of the inbound event queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.inbound = make(chan Event, n)
		}
	}
}

func WithMetrics(m *metrics.Relay) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		registry:   NewRegistry(),
		terminator: NewTerminator(),
		logger:     logger.WithField("component", "hub"),
		metrics:    metrics.Nop(),
		exitGrace:  3 * time.Second,
		register:   make(chan Connection, 100),
		unregister: make(chan string, 100),
		inbound:    make(chan Event, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.dispatcher = NewDispatcher(h.handleWildcard)
	h.dispatcher.Handle(EventExit, h.handleExit)

	return h
}

// NewConnectionID returns a fresh identifier for a connection of connType.
func NewConnectionID(connType string) string {
	return connType + "-" + uuid.NewString()
}

// Start starts the hub and begins processing connection events
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.loopDone = make(chan struct{})
	h.terminator = NewTerminator()
	h.running = true

	go h.run(h.ctx, h.loopDone)

	h.logger.Infof("Hub started (exclude_origin: %v, exit_grace: %s)", h.excludeOrigin, h.exitGrace)
	return nil
}

// Stop halts the loop and closes every connection. Connections flush what
// is already queued for them before closing.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()
	h.terminator.Cancel()

	var err error
	select {
	case <-h.loopDone:
		// the loop may have exited on its parent context before Stop
		h.abandonPendingRegistrations()
	case <-ctx.Done():
		err = fmt.Errorf("waiting for hub loop: %w", ctx.Err())
	}

	for _, conn := range h.registry.Clear() {
		if cerr := conn.Close(); cerr != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), cerr)
		}
		h.metrics.ConnectionClosed(context.Background())
	}

	h.running = false
	h.logger.Info("Hub stopped successfully")
	return err
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// ShutdownRequested is closed when an exit event's grace delay has elapsed.
func (h *Hub) ShutdownRequested() <-chan struct{} {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.terminator.Done()
}

// ExcludesOrigin reports whether broadcasts skip the sending connection.
func (h *Hub) ExcludesOrigin() bool {
	return h.excludeOrigin
}

func (h *Hub) loopContext() (context.Context, bool) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.ctx, h.running
}

// RegisterConnection adds a new connection to the hub. The running lock is
// held across the enqueue so Stop cannot drain the queue underneath it.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}
	if h.ctx.Err() != nil {
		return ErrHubShuttingDown
	}

	select {
	case h.register <- conn:
		return nil
	case <-h.ctx.Done():
		return ErrHubShuttingDown
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout registering connection")
	}
}

// UnregisterConnection removes a connection from the hub. Unknown ids are
// ignored.
func (h *Hub) UnregisterConnection(connID string) error {
	ctx, running := h.loopContext()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.unregister <- connID:
		return nil
	case <-ctx.Done():
		return ErrHubShuttingDown
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout unregistering connection")
	}
}

// Publish queues an inbound event for dispatch. Events from one caller are
// dispatched in the order they were published.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if err := ValidateEvent(event); err != nil {
		return err
	}

	loopCtx, running := h.loopContext()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.inbound <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-loopCtx.Done():
		return ErrHubShuttingDown
	}
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	return h.registry.Get(connID)
}

// GetConnections returns all active connections
func (h *Hub) GetConnections() []Connection {
	return h.registry.Snapshot()
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType string) []Connection {
	var connections []Connection
	for _, conn := range h.registry.Snapshot() {
		if conn.Type() == connType {
			connections = append(connections, conn)
		}
	}
	return connections
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// SendToConnection delivers an event to one connection only, bypassing dispatch.
func (h *Hub) SendToConnection(connID string, event Event) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	if err := conn.Send(event); err != nil {
		h.logger.Errorf("Failed to send event to connection %s: %v", connID, err)
		if errors.Is(err, ErrConnectionClosed) {
			_ = h.UnregisterConnection(connID)
		}
		return err
	}

	return nil
}

// run is the main hub loop; all registry mutation and dispatch happen here.
func (h *Hub) run(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case conn := <-h.register:
			h.handleRegister(ctx, conn)

		case connID := <-h.unregister:
			h.handleUnregister(connID)

		case event := <-h.inbound:
			h.handleEvent(event)

		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-ctx.Done():
			h.abandonPendingRegistrations()
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, conn Connection) {
	h.registry.Add(conn)
	h.metrics.ConnectionOpened(ctx)

	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())

	// Monitor connection context for disconnection
	go func() {
		select {
		case <-conn.Context().Done():
			_ = h.UnregisterConnection(conn.ID())
		case <-ctx.Done():
		}
	}()
}

func (h *Hub) handleUnregister(connID string) {
	conn, exists := h.registry.Remove(connID)
	if !exists {
		return
	}

	if err := conn.Close(); err != nil {
		h.logger.Errorf("Failed to close connection %s: %v", connID, err)
	}
	h.metrics.ConnectionClosed(context.Background())
	h.logger.Infof("Connection %s unregistered", connID)
}

func (h *Hub) handleEvent(event Event) {
	start := time.Now()
	ctx := context.Background()

	h.metrics.EventReceived(ctx, event.Name)
	h.dispatcher.Dispatch(event)
	h.metrics.DispatchObserved(ctx, time.Since(start))
}

func (h *Hub) handleWildcard(event Event) {
	exclude := ""
	if h.excludeOrigin {
		exclude = event.Origin
	}
	h.broadcast(event, exclude)
}

// handleExit tells everyone about the shutdown, then arms the terminator.
func (h *Hub) handleExit(event Event) {
	h.broadcast(event, "")

	if h.terminator.Schedule(h.exitGrace) {
		h.logger.Warnf("Exit requested by %s, stopping in %s", event.Origin, h.exitGrace)
		return
	}
	h.logger.Infof("Exit requested by %s, shutdown already scheduled", event.Origin)
}

// broadcast sends event to every registered connection except exclude.
// Failures are logged per connection and never stop the loop.
func (h *Hub) broadcast(event Event, exclude string) int {
	ctx := context.Background()
	connections := h.registry.Snapshot()
	delivered := 0

	for _, conn := range connections {
		if exclude != "" && conn.ID() == exclude {
			continue
		}

		err := conn.Send(event)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrSendBufferFull):
			h.logger.Warnf("Dropped event %s for connection %s: %v", event.Name, conn.ID(), err)
			h.metrics.DeliveryFailed(ctx, metrics.ReasonBufferFull)
		case errors.Is(err, ErrConnectionClosed):
			h.metrics.DeliveryFailed(ctx, metrics.ReasonClosed)
			h.handleUnregister(conn.ID())
		default:
			h.logger.Errorf("Failed to send event %s to connection %s: %v", event.Name, conn.ID(), err)
			h.metrics.DeliveryFailed(ctx, metrics.ReasonSendError)
		}
	}

	h.metrics.EventDelivered(ctx, event.Name, delivered)
	h.logger.Debugf("Broadcasted event %s from %s to %d/%d connections", event.Name, event.Origin, delivered, len(connections))
	return delivered
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	for _, id := range h.registry.RemoveClosed() {
		h.metrics.ConnectionClosed(context.Background())
		h.logger.Infof("Cleaned up closed connection %s", id)
	}
}

// abandonPendingRegistrations closes connections whose registration was
// still queued when the loop stopped, so their handlers can return.
func (h *Hub) abandonPendingRegistrations() {
	for {
		select {
		case conn := <-h.register:
			if err := conn.Close(); err != nil {
				h.logger.Errorf("Failed to close pending connection %s: %v", conn.ID(), err)
			}
		default:
			return
		}
	}
}
