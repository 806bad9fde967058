package ws_test

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uilibs/uiprotect/ws"
)

func buildPacket(t *testing.T, action ws.ActionFrame, payload []byte) *ws.Packet {
	t.Helper()
	return &ws.Packet{Action: action, Payload: payload}
}

func TestDecodeRoundTrip(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{
		Action:      ws.ActionUpdate,
		NewUpdateID: "1f8e2c74-0a63-4a11-9a1e-0f0c7e7a1b2c",
		ModelKey:    "camera",
		ID:          "cam1",
	}, []byte(`{"name":"Front Door"}`))

	wire, err := pkt.Encode()
	require.NoError(t, err)

	got, err := ws.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, pkt.Action, got.Action)
	assert.JSONEq(t, `{"name":"Front Door"}`, string(got.Payload))
	assert.Equal(t, wire, got.Raw())
	assert.Equal(t, len(wire), got.Size())
}

func TestDecodeDeflatedPayload(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{
		Action:   ws.ActionAdd,
		ModelKey: "event",
		ID:       "ev1",
	}, []byte(`{"type":"motion","start":1700000000000}`))

	wire, err := pkt.EncodeDeflated()
	require.NoError(t, err)

	got, err := ws.Decode(wire)
	require.NoError(t, err)
	assert.JSONEq(t, string(pkt.Payload), string(got.Payload))
}

// The format byte alone must trigger inflation even when the separate
// deflate flag byte is zero.
func TestDecodeFormatWinsOverFlag(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{
		Action:   ws.ActionAdd,
		ModelKey: "event",
		ID:       "ev1",
	}, []byte(`{"type":"ring"}`))

	wire, err := pkt.EncodeDeflated()
	require.NoError(t, err)

	// Find the payload frame header and clear its deflate flag while
	// leaving format=3 in place.
	actionBody, err := json.Marshal(pkt.Action)
	require.NoError(t, err)
	payloadHdr := ws.HeaderSize + len(actionBody)
	require.Equal(t, ws.FormatDeflatedJSON, wire[payloadHdr+1])
	wire[payloadHdr+2] = 0

	got, err := ws.Decode(wire)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ring"}`, string(got.Payload))
}

func TestDecodeRemoveEmptyPayload(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{
		Action:      ws.ActionRemove,
		NewUpdateID: "u2",
		ModelKey:    "camera",
		ID:          "cam1",
	}, nil)

	wire, err := pkt.Encode()
	require.NoError(t, err)

	got, err := ws.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, ws.ActionRemove, got.Action.Action)
	assert.Empty(t, got.Payload)
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := ws.Decode([]byte{1, 1, 0})
	assert.ErrorIs(t, err, ws.ErrDecode)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	var hdr [ws.HeaderSize]byte
	hdr[0] = ws.PacketTypeAction
	hdr[1] = ws.FormatJSON
	binary.BigEndian.PutUint32(hdr[4:], 100)
	_, err := ws.Decode(append(hdr[:], []byte(`{"action":"add"}`)...))
	assert.ErrorIs(t, err, ws.ErrDecode)
}

func TestDecodeOversizedFrameRejected(t *testing.T) {
	var hdr [ws.HeaderSize]byte
	hdr[0] = ws.PacketTypeAction
	hdr[1] = ws.FormatJSON
	binary.BigEndian.PutUint32(hdr[4:], ws.MaxPayloadSize+1)
	_, err := ws.Decode(hdr[:])
	assert.ErrorIs(t, err, ws.ErrDecode)
}

func TestDecodeWrongFrameOrder(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{Action: ws.ActionAdd, ModelKey: "camera"}, []byte(`{}`))
	wire, err := pkt.Encode()
	require.NoError(t, err)

	// Swap the first frame's type to payload.
	wire[0] = ws.PacketTypePayload
	_, err = ws.Decode(wire)
	assert.ErrorIs(t, err, ws.ErrDecode)
}

func TestDecodeUnknownAction(t *testing.T) {
	pkt := buildPacket(t, ws.ActionFrame{Action: "upsert", ModelKey: "camera"}, []byte(`{}`))
	wire, err := pkt.Encode()
	require.NoError(t, err)

	_, err = ws.Decode(wire)
	assert.ErrorIs(t, err, ws.ErrDecode)
}

func TestDecodeGarbageDeflate(t *testing.T) {
	var buf []byte
	actionBody := []byte(`{"action":"add","modelKey":"camera","id":"c"}`)
	var hdr [ws.HeaderSize]byte
	hdr[0] = ws.PacketTypeAction
	hdr[1] = ws.FormatJSON
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(actionBody)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, actionBody...)

	garbage := []byte{0xff, 0xfe, 0xfd}
	hdr[0] = ws.PacketTypePayload
	hdr[1] = ws.FormatDeflatedJSON
	hdr[2] = 1
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(garbage)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, garbage...)

	_, err := ws.Decode(buf)
	assert.ErrorIs(t, err, ws.ErrDecode)
}
