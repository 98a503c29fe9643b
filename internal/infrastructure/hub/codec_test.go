package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		wantEvent   string
		wantPayload string
	}{
		{"object", `{"event":"final","data":"hello"}`, "final", `"hello"`},
		{"object without data", `{"event":"exit"}`, "exit", `null`},
		{"object with null", `{"event":"exit","data":null}`, "exit", `null`},
		{"object with nested data", `{"event":"html_fragment","data":{"html":"<p>hi</p>"}}`, "html_fragment", `{"html":"<p>hi</p>"}`},
		{"array", `["demo", 7]`, "demo", `7`},
		{"array without data", `["exit"]`, "exit", `null`},
		{"surrounding whitespace", "  {\"event\":\"intermediate\",\"data\":\"he\"}\n", "intermediate", `"he"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name, payload, err := DecodeFrame([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.wantEvent, name)
			assert.JSONEq(t, tc.wantPayload, string(payload))
		})
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	for _, in := range []string{
		``,
		`hello`,
		`42`,
		`{"event":""}`,
		`{"data":1}`,
		`{"event":"final"`,
		`[]`,
		`[1, 2]`,
		`["a", 1, 2]`,
	} {
		_, _, err := DecodeFrame([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidFrame, in)
	}
}

func TestEncodeFrame(t *testing.T) {
	out, err := EncodeFrame(Event{Name: "translated", Payload: json.RawMessage(`"hallo"`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"translated","data":"hallo"}`, string(out))

	out, err = EncodeFrame(Event{Name: "exit"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"exit","data":null}`, string(out))
}

func TestEncodeDecodeKeepsPayloadBytes(t *testing.T) {
	payloads := []string{
		`{"b":2,"a":[true,false,"x"]}`,
		`"<p class=\"x\">a & b</p>"`,
		`{ "html" : "<b>hi</b>",  "n" : [ 1, 2 ] }`,
		"{\n  \"text\": \"line\"\n}",
	}
	for _, payload := range payloads {
		out, err := EncodeFrame(Event{Name: EventHTMLFragment, Payload: json.RawMessage(payload)})
		require.NoError(t, err)
		assert.Contains(t, string(out), payload)

		name, got, err := DecodeFrame(out)
		require.NoError(t, err)
		assert.Equal(t, EventHTMLFragment, name)
		assert.Equal(t, payload, string(got))
	}
}

func TestEncodeFrameRejectsInvalidPayload(t *testing.T) {
	_, err := EncodeFrame(Event{Name: "final", Payload: json.RawMessage(`{"open":`)})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEncodeFrameDoesNotEscapeName(t *testing.T) {
	out, err := EncodeFrame(Event{Name: "a<b>&c", Payload: json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.Equal(t, `{"event":"a<b>&c","data":1}`, string(out))
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(EventDemo, 3, "cli")
	require.NoError(t, err)
	assert.Equal(t, "3", string(ev.Payload))
	assert.Equal(t, "cli", ev.Origin)

	_, err = NewEvent("bad", make(chan int), "cli")
	assert.Error(t, err)

	ev, err = NewEvent(EventHTMLFragment, json.RawMessage(`"<i>a & b</i>"`), "cli")
	require.NoError(t, err)
	assert.Equal(t, `"<i>a & b</i>"`, string(ev.Payload))

	ev, err = NewEvent(EventFinal, "x < y & z", "cli")
	require.NoError(t, err)
	assert.Equal(t, `"x < y & z"`, string(ev.Payload))

	_, err = NewEvent(EventFinal, json.RawMessage(`{`), "cli")
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
