package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/infrastructure/metrics"
)

const (
	ConnectionTypeWebSocket = "websocket"
	ConnectionTypeSSE       = "sse"

	defaultSendBuffer = 256
	maxFrameSize      = 1 << 20
)

type connOptions struct {
	sendBuffer int
	metrics    *metrics.Relay
}

// ConnectionOption configures WebSocket and SSE connections.
type ConnectionOption func(*connOptions)

// WithSendBuffer sets how many outbound events a connection queues before
// further sends fail with ErrSendBufferFull.
func WithSendBuffer(n int) ConnectionOption {
	return func(o *connOptions) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}

func WithConnectionMetrics(m *metrics.Relay) ConnectionOption {
	return func(o *connOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

func buildConnOptions(opts []ConnectionOption) connOptions {
	o := connOptions{sendBuffer: defaultSendBuffer, metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SSEConnection is a subscribe-only connection. The HTTP handler that owns
// the response writer drains Events and writes them to the stream.
type SSEConnection struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
	send   chan Event
}

// NewSSEConnection creates a new SSE connection bound to the request context.
func NewSSEConnection(
	ctx context.Context,
	id string,
	logger logger.Logger,
	opts ...ConnectionOption,
) *SSEConnection {
	o := buildConnOptions(opts)
	rctx, cancel := context.WithCancel(ctx)

	return &SSEConnection{
		id:     id,
		ctx:    rctx,
		cancel: cancel,
		logger: logger.WithField("connection_id", id),
		send:   make(chan Event, o.sendBuffer),
	}
}

func (c *SSEConnection) ID() string   { return c.id }
func (c *SSEConnection) Type() string { return ConnectionTypeSSE }

func (c *SSEConnection) Send(event Event) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- event:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Events yields queued events in send order.
func (c *SSEConnection) Events() <-chan Event {
	return c.send
}

func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	c.logger.Info("SSE connection closed")
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// WebSocketConnection is a bidirectional event connection. Inbound frames are
// decoded and published; outbound events are written by a single writer.
type WebSocketConnection struct {
	id        string
	conn      *websocket.Conn
	publisher Publisher

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
	done     chan struct{}

	logger  logger.Logger
	metrics *metrics.Relay

	send chan Event

	lastActivity time.Time
	activityMu   sync.RWMutex

	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingInterval time.Duration
}

// NewWebSocketConnection wraps an upgraded connection and starts its pumps.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	publisher Publisher,
	logger logger.Logger,
	opts ...ConnectionOption,
) *WebSocketConnection {
	o := buildConnOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	wsConn := &WebSocketConnection{
		id:           id,
		conn:         conn,
		publisher:    publisher,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		logger:       logger.WithField("connection_id", id),
		metrics:      o.metrics,
		send:         make(chan Event, o.sendBuffer),
		lastActivity: time.Now(),
		writeTimeout: 10 * time.Second,
		pongTimeout:  60 * time.Second,
		pingInterval: 54 * time.Second,
	}

	wsConn.setupWebSocket()

	go wsConn.writePump()
	go wsConn.readPump()

	return wsConn
}

func (c *WebSocketConnection) ID() string   { return c.id }
func (c *WebSocketConnection) Type() string { return ConnectionTypeWebSocket }

// Send queues an event for the writer. It never blocks.
func (c *WebSocketConnection) Send(event Event) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- event:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close marks the connection closed. The writer flushes what is queued,
// sends a close frame and tears down the socket.
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	close(c.done)

	c.logger.Info("WebSocket connection closed")
	return nil
}

func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) setupWebSocket() {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.updateActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.writeEvent(event); err != nil {
				c.logger.Errorf("Failed to write event %s: %v", event.Name, err)
				c.Close()
				return
			}
			c.updateActivity()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, bounded by one write deadline, and
// ends with a normal close frame.
func (c *WebSocketConnection) flush() {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	for {
		select {
		case event := <-c.send:
			if err := c.writeEvent(event); err != nil {
				return
			}
		default:
			c.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}

func (c *WebSocketConnection) writeEvent(event Event) error {
	frame, err := EncodeFrame(event)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		c.updateActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

		switch messageType {
		case websocket.TextMessage:
			if !c.handleFrame(data) {
				return
			}

		case websocket.BinaryMessage:
			c.logger.Warnf("Dropped binary frame of %d bytes", len(data))
			c.metrics.FrameDropped(c.ctx, metrics.ReasonBinaryFrame)
		}
	}
}

// handleFrame publishes one text frame. It returns false once the hub no
// longer accepts events.
func (c *WebSocketConnection) handleFrame(data []byte) bool {
	name, payload, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warnf("Dropped frame: %v", err)
		c.metrics.FrameDropped(c.ctx, metrics.ReasonInvalidFrame)
		return true
	}

	c.logger.Debugf("Received event %s: %s", name, payload)

	err = c.publisher.Publish(c.ctx, Event{Name: name, Payload: payload, Origin: c.id})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrHubNotRunning), errors.Is(err, ErrHubShuttingDown), errors.Is(err, context.Canceled):
		return false
	default:
		c.logger.Errorf("Failed to publish event %s: %v", name, err)
		return true
	}
}

func (c *WebSocketConnection) updateActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

// LastActivity reports when the peer last sent or received a frame.
func (c *WebSocketConnection) LastActivity() time.Time {
	c.activityMu.RLock()
	defer c.activityMu.RUnlock()
	return c.lastActivity
}
