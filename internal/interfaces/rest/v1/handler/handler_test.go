package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

type published struct {
	origin  string
	name    string
	payload string
}

// fakeRelay records what the handlers hand to the relay.
type fakeRelay struct {
	mu        sync.Mutex
	events    []published
	status    inbound.RelayStatus
	publishFn func() error
}

func (f *fakeRelay) Publish(_ context.Context, origin, name string, payload json.RawMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{origin, name, string(payload)})
	return nil
}

func (f *fakeRelay) SendTo(context.Context, string, string, json.RawMessage) error { return nil }
func (f *fakeRelay) Status() inbound.RelayStatus                                  { return f.status }
func (f *fakeRelay) Connections(string) []inbound.ConnectionInfo                  { return nil }

func newRouter(relay inbound.RelayUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	InitRESTRouter(logger.NewNopLogger(), relay, router.Group(""))
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublishEvent(t *testing.T) {
	relay := &fakeRelay{status: inbound.RelayStatus{Running: true, Connections: 3}}
	rec := do(newRouter(relay), http.MethodPost, "/api/v1/events", `{"event":"final","data":{"text":"hi"}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"accepted","event":"final","connections":3}`, rec.Body.String())

	require.Len(t, relay.events, 1)
	assert.Equal(t, OriginREST, relay.events[0].origin)
	assert.Equal(t, "final", relay.events[0].name)
	assert.JSONEq(t, `{"text":"hi"}`, relay.events[0].payload)
}

func TestPublishEventWithoutData(t *testing.T) {
	relay := &fakeRelay{status: inbound.RelayStatus{Running: true}}
	rec := do(newRouter(relay), http.MethodPost, "/api/v1/events", `{"event":"exit"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, relay.events, 1)
	assert.Equal(t, "null", relay.events[0].payload)
}

func TestPublishEventRejectsMissingName(t *testing.T) {
	relay := &fakeRelay{}
	router := newRouter(relay)

	for _, body := range []string{`{"data":1}`, `not json`, `{"event":""}`} {
		rec := do(router, http.MethodPost, "/api/v1/events", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, relay.events)
}

func TestPublishEventHubStopped(t *testing.T) {
	relay := &fakeRelay{publishFn: func() error { return hub.ErrHubNotRunning }}
	rec := do(newRouter(relay), http.MethodPost, "/api/v1/events", `{"event":"final","data":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHubStatus(t *testing.T) {
	relay := &fakeRelay{status: inbound.RelayStatus{
		Running:     true,
		Connections: 2,
		ByType:      map[string]int{"websocket": 1, "sse": 1},
	}}
	rec := do(newRouter(relay), http.MethodGet, "/hub/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["hub_running"])
	assert.Equal(t, float64(2), body["connections"])
}

func TestHealthz(t *testing.T) {
	relay := &fakeRelay{status: inbound.RelayStatus{Running: true}}
	router := newRouter(relay)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "").Code)

	relay.status.Running = false
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/healthz", "").Code)
}
