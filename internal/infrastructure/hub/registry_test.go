package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c1 := newMockConnection("c1")
	c2 := newMockConnection("c2")

	r.Add(c1)
	r.Add(c2)
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Snapshot(), 2)

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Same(t, c1, got)

	removed, ok := r.Remove("c1")
	assert.True(t, ok)
	assert.Same(t, c1, removed)

	_, ok = r.Remove("c1")
	assert.False(t, ok, "removing twice is a no-op")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemoveClosed(t *testing.T) {
	r := NewRegistry()
	open := newMockConnection("open")
	closed := newMockConnection("closed")
	closed.Close()
	r.Add(open)
	r.Add(closed)

	assert.Equal(t, []string{"closed"}, r.RemoveClosed())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	r.Add(newMockConnection("a"))
	r.Add(newMockConnection("b"))

	assert.Len(t, r.Clear(), 2)
	assert.Zero(t, r.Len())
}

func TestSSEConnectionQueue(t *testing.T) {
	conn := NewSSEConnection(context.Background(), "sse-1", &mockLogger{}, WithSendBuffer(1))
	assert.Equal(t, ConnectionTypeSSE, conn.Type())

	require.NoError(t, conn.Send(Event{Name: "final"}))
	assert.ErrorIs(t, conn.Send(Event{Name: "final"}), ErrSendBufferFull)

	ev := <-conn.Events()
	assert.Equal(t, "final", ev.Name)

	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
	assert.ErrorIs(t, conn.Send(Event{Name: "final"}), ErrConnectionClosed)
	assert.Error(t, conn.Context().Err())
}
