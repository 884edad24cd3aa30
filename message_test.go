package dialogue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrips(t *testing.T) {
	req := require.New(t)

	raw, err := EncodeFrame("dialogue:event", EventMessage{Event: "chat.message", RoomID: "room-1", Data: "hi"})
	req.NoError(err)

	frame, err := DecodeFrame(raw)
	req.NoError(err)
	req.Equal("dialogue:event", frame.Event)

	var msg EventMessage
	req.NoError(json.Unmarshal(frame.Data, &msg))
	req.Equal("chat.message", msg.Event)
	req.Equal("hi", msg.Data)
}

func TestDecodeFrame_RejectsMissingEvent(t *testing.T) {
	req := require.New(t)

	_, err := DecodeFrame([]byte(`{"data":{}}`))
	req.Error(err)
}

func TestDecodeFrame_RejectsInvalidJSON(t *testing.T) {
	req := require.New(t)

	_, err := DecodeFrame([]byte(`not json`))
	req.Error(err)
}
