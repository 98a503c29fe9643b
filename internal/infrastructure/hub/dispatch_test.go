package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherPrefersDedicatedHandler(t *testing.T) {
	var wildcard, exit []string
	d := NewDispatcher(func(e Event) { wildcard = append(wildcard, e.Name) })
	d.Handle(EventExit, func(e Event) { exit = append(exit, e.Name) })

	d.Dispatch(Event{Name: EventFinal})
	d.Dispatch(Event{Name: EventExit})
	d.Dispatch(Event{Name: "anything"})

	assert.Equal(t, []string{EventFinal, "anything"}, wildcard)
	assert.Equal(t, []string{EventExit}, exit)
	assert.True(t, d.IsControl(EventExit))
	assert.False(t, d.IsControl(EventDemo))
}

func TestDispatcherWithoutWildcard(t *testing.T) {
	d := NewDispatcher(nil)
	assert.NotPanics(t, func() { d.Dispatch(Event{Name: "x"}) })
}

func TestTerminatorFiresOnce(t *testing.T) {
	term := NewTerminator()
	assert.True(t, term.Schedule(10*time.Millisecond))
	assert.False(t, term.Schedule(0), "second schedule is ignored")

	select {
	case <-term.Done():
	case <-time.After(time.Second):
		t.Fatal("terminator did not fire")
	}
}

func TestTerminatorCancel(t *testing.T) {
	term := NewTerminator()
	term.Schedule(20 * time.Millisecond)
	term.Cancel()

	select {
	case <-term.Done():
		t.Fatal("cancelled terminator fired")
	case <-time.After(60 * time.Millisecond):
	}

	assert.False(t, term.Schedule(0), "cancelled terminator cannot be re-armed")
}
