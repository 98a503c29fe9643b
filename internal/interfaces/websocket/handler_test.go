package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-relay/internal/applicatoin/facade"
	"speech-relay/internal/infrastructure/client"
	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
)

type relayFixture struct {
	hub *hub.Hub
	srv *httptest.Server
}

func newRelay(t *testing.T, opts ...hub.Option) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNopLogger()
	h := hub.New(log, opts...)
	require.NoError(t, h.Start(context.Background()))

	router := gin.New()
	InitWebSocketRouter(log, h, facade.NewRelayApplicationService(h), router.Group(""))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return &relayFixture{hub: h, srv: srv}
}

func (f *relayFixture) dial(t *testing.T) *client.Client {
	t.Helper()
	want := f.hub.ConnectionCount() + 1

	c, err := client.Dial(context.Background(), f.srv.URL, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == want }, 2*time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *client.Client) hub.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := c.Receive(ctx)
	require.NoError(t, err)
	return ev
}

func TestFinalReachesEveryoneIncludingSender(t *testing.T) {
	f := newRelay(t)
	c1 := f.dial(t)
	c2 := f.dial(t)

	require.NoError(t, c1.Emit(context.Background(), "final", "hello"))

	for _, c := range []*client.Client{c1, c2} {
		ev := receive(t, c)
		assert.Equal(t, "final", ev.Name)
		assert.JSONEq(t, `"hello"`, string(ev.Payload))
	}
}

func TestExcludeOriginSkipsSender(t *testing.T) {
	f := newRelay(t, hub.WithExcludeOrigin(true))
	c1 := f.dial(t)
	c2 := f.dial(t)

	require.NoError(t, c1.Emit(context.Background(), "translated", "hallo"))
	assert.Equal(t, "translated", receive(t, c2).Name)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c1.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExitIsBroadcastBeforeShutdown(t *testing.T) {
	f := newRelay(t, hub.WithExitGrace(100*time.Millisecond))
	c1 := f.dial(t)

	require.NoError(t, c1.Emit(context.Background(), "exit", nil))

	ev := receive(t, c1)
	assert.Equal(t, "exit", ev.Name)
	assert.Equal(t, "null", string(ev.Payload))

	select {
	case <-f.hub.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("exit did not request shutdown")
	}
}

func TestOrderingPerSender(t *testing.T) {
	f := newRelay(t)
	producer := f.dial(t)
	consumer := f.dial(t)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, producer.Emit(context.Background(), "demo", i))
	}

	for i := 0; i < n; i++ {
		ev := receive(t, consumer)
		assert.Equal(t, fmt.Sprint(i), string(ev.Payload))
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	f := newRelay(t)
	listener := f.dial(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	raw, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer raw.Close()
	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, raw.WriteMessage(gws.TextMessage, []byte("definitely not json")))
	require.NoError(t, raw.WriteMessage(gws.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, raw.WriteMessage(gws.TextMessage, []byte(`["intermediate","he"]`)))

	ev := receive(t, listener)
	assert.Equal(t, "intermediate", ev.Name)
	assert.JSONEq(t, `"he"`, string(ev.Payload))
	assert.Equal(t, 2, f.hub.ConnectionCount())
}

func TestPayloadBytesForwardedUnchanged(t *testing.T) {
	f := newRelay(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	sender, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer sender.Close()
	receiver, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer receiver.Close()
	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	payload := `"<p class=\"x\">a & b</p>"`
	frame := `{"event":"html_fragment","data":` + payload + `}`
	require.NoError(t, sender.WriteMessage(gws.TextMessage, []byte(frame)))

	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, got, err := receiver.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, frame, string(got))

	spaced := `{ "html" : "<b>x</b> & <i>y</i>",  "n" : [ 1, 2 ] }`
	require.NoError(t, sender.WriteMessage(gws.TextMessage, []byte(`["html_fragment", `+spaced+`]`)))

	_, got, err = receiver.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"html_fragment","data":`+spaced+`}`, string(got))
}

func TestDisconnectRemovesConnection(t *testing.T) {
	f := newRelay(t)
	c1 := f.dial(t)
	c2 := f.dial(t)

	require.NoError(t, c2.Close())
	require.Eventually(t, func() bool { return f.hub.ConnectionCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c1.Emit(context.Background(), "final", "still here"))
	assert.Equal(t, "final", receive(t, c1).Name)
}

func TestListConnections(t *testing.T) {
	f := newRelay(t)
	f.dial(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/ws/connections")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Total       int  `json:"total_connections"`
		HubRunning  bool `json:"hub_running"`
		Connections []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	assert.True(t, body.HubRunning)
	require.Len(t, body.Connections, 1)
	assert.Equal(t, hub.ConnectionTypeWebSocket, body.Connections[0].Type)
	assert.True(t, strings.HasPrefix(body.Connections[0].ID, "ws-"))
}

func TestConnectRejectedWhenHubStopped(t *testing.T) {
	f := newRelay(t)
	require.NoError(t, f.hub.Stop(context.Background()))

	resp, err := http.Get(f.srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
