// Package client dials the relay's event channel. It is what the
// transcriber, translator and controller side of the system use.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
)

const (
	EventPath    = "/ws"
	writeTimeout = 10 * time.Second
)

// Client is one event connection to the relay. Emit may be called from
// several goroutines; Receive must be called from one.
type Client struct {
	conn   *websocket.Conn
	logger logger.Logger

	writeMu sync.Mutex
}

// EventURL turns the relay base URL (SIO_URL, http or ws scheme) into the
// websocket endpoint URL.
func EventURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", baseURL)
	}

	if !strings.HasSuffix(u.Path, EventPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + EventPath
	}
	return u.String(), nil
}

// Dial connects to the relay at baseURL.
func Dial(ctx context.Context, baseURL string, log logger.Logger) (*Client, error) {
	target, err := EventURL(baseURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	log.WithField("component", "client").Infof("Connected to relay at %s", target)
	return &Client{
		conn:   conn,
		logger: log.WithField("component", "client"),
	}, nil
}

// Emit sends one event. payload is marshalled to JSON; a json.RawMessage is
// sent as is.
func (c *Client) Emit(ctx context.Context, name string, payload any) error {
	ev, err := hub.NewEvent(name, payload, "")
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", name, err)
	}
	frame, err := hub.EncodeFrame(ev)
	if err != nil {
		return fmt.Errorf("encode frame %s: %w", name, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}

// Receive blocks until the next event arrives, the connection fails or ctx
// is done. Undecodable frames are skipped. Once ctx has ended a pending read,
// the connection cannot be read again.
func (c *Client) Receive(ctx context.Context) (hub.Event, error) {
	stop := context.AfterFunc(ctx, func() {
		// unblock ReadMessage
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return hub.Event{}, ctx.Err()
			}
			return hub.Event{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		name, payload, err := hub.DecodeFrame(data)
		if err != nil {
			c.logger.Warnf("Skipping frame: %v", err)
			continue
		}
		return hub.Event{Name: name, Payload: json.RawMessage(payload)}, nil
	}
}

// Close sends a close frame and closes the socket.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}
