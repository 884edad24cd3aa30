package dialogue

import (
	"encoding/json"
	"fmt"
)

// EventMessage is the wire envelope broadcast to every subscribed
// participant and stored in history. The five top-level fields are a fixed
// contract; only Data and Meta are caller-defined.
type EventMessage struct {
	Event     string                 `json:"event"`
	RoomID    string                 `json:"roomId"`
	Data      interface{}            `json:"data"`
	From      string                 `json:"from"`
	Timestamp int64                  `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Frame is the generic shape of every message exchanged over the wire: a
// named verb plus an arbitrary JSON payload. Inbound frames are decoded into
// one of the typed payload structs in dispatcher.go; outbound frames are
// built from one before being marshaled. This mirrors the teacher's
// dedicated Packet type with symmetric Encode/Decode, but carries plain JSON
// instead of Socket.IO's comma-delimited packet string, since the wire
// format this spec defines is JSON objects throughout.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals a named verb and payload into a wire Frame.
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode frame %q: %w", event, err)
	}

	frame := Frame{Event: event, Data: raw}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame %q: %w", event, err)
	}

	return encoded, nil
}

// DecodeFrame unmarshals a raw wire message into a Frame. The caller then
// unmarshals Data into the payload type appropriate for Event.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event name")
	}
	return frame, nil
}
