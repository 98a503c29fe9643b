package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-relay/internal/infrastructure/logger"
)

func TestEventURL(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:31979":     "ws://127.0.0.1:31979/ws",
		"http://127.0.0.1:31979/":    "ws://127.0.0.1:31979/ws",
		"https://relay.example/base": "wss://relay.example/base/ws",
		"ws://localhost:1/ws":        "ws://localhost:1/ws",
	}
	for in, want := range cases {
		got, err := EventURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"ftp://x", "http://", "::"} {
		_, err := EventURL(bad)
		assert.Error(t, err, bad)
	}
}

// echoServer writes every text frame it receives back twice: once verbatim
// and once after a garbage frame that the client must skip.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, []byte("not json"))
			_ = conn.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmitReceive(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.URL, logger.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Emit(ctx, "final", "hello"))
	ev, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "final", ev.Name)
	assert.JSONEq(t, `"hello"`, string(ev.Payload))

	require.NoError(t, c.Emit(ctx, "exit", nil))
	ev, err = c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exit", ev.Name)
	assert.Equal(t, "null", string(ev.Payload))

	require.NoError(t, c.Emit(ctx, "raw", json.RawMessage(`{"a":1}`)))
	ev, err = c.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(ev.Payload))
}

func TestReceiveHonoursContext(t *testing.T) {
	srv := echoServer(t)
	c, err := Dial(context.Background(), srv.URL, logger.NewNopLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "http://127.0.0.1:1", logger.NewNopLogger())
	assert.Error(t, err)
}
