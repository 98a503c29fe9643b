package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidFrame = errors.New("invalid frame")

var nullPayload = json.RawMessage("null")

// Frame is the JSON envelope exchanged over event connections.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeFrame parses an inbound text frame. Besides the object envelope it
// accepts the socket.io style array ["name", data].
func DecodeFrame(data []byte) (name string, payload json.RawMessage, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", nil, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	switch trimmed[0] {
	case '{':
		var f Frame
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		name, payload = f.Event, f.Data
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		if len(parts) == 0 || len(parts) > 2 {
			return "", nil, fmt.Errorf("%w: array frame needs 1 or 2 elements, got %d", ErrInvalidFrame, len(parts))
		}
		if err := json.Unmarshal(parts[0], &name); err != nil {
			return "", nil, fmt.Errorf("%w: event name must be a string", ErrInvalidFrame)
		}
		if len(parts) == 2 {
			payload = parts[1]
		}
	default:
		return "", nil, fmt.Errorf("%w: expected JSON object or array", ErrInvalidFrame)
	}

	if name == "" {
		return "", nil, fmt.Errorf("%w: event name is empty", ErrInvalidFrame)
	}
	if len(payload) == 0 {
		payload = nullPayload
	}
	return name, payload, nil
}

// EncodeFrame renders an event as the outbound object envelope. The payload
// bytes are copied into the frame untouched.
func EncodeFrame(event Event) ([]byte, error) {
	payload := event.Payload
	if len(payload) == 0 {
		payload = nullPayload
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload of %q is not valid JSON", ErrInvalidFrame, event.Name)
	}

	name, err := marshalNoEscape(event.Name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(name) + len(payload) + 20)
	buf.WriteString(`{"event":`)
	buf.Write(name)
	buf.WriteString(`,"data":`)
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape encodes v without turning <, > and & into \u escapes.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ValidateEvent checks an event before it enters the dispatch loop.
func ValidateEvent(event Event) error {
	if event.Name == "" {
		return fmt.Errorf("%w: event name is empty", ErrInvalidFrame)
	}
	if len(event.Payload) > 0 && !json.Valid(event.Payload) {
		return fmt.Errorf("%w: payload of %q is not valid JSON", ErrInvalidFrame, event.Name)
	}
	return nil
}
