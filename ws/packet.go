// Package ws implements the UniFi Protect binary websocket protocol:
// the two-frame packet format carried on /api/ws/updates and the
// long-lived reader session that decodes it.
package ws

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 8

// MaxPayloadSize caps a single frame payload. Frames above this are
// rejected as malformed rather than buffered.
const MaxPayloadSize = 16 << 20

// Packet types carried in the first header byte.
const (
	PacketTypeAction  byte = 1
	PacketTypePayload byte = 2
)

// Payload formats carried in the second header byte.
const (
	FormatJSON         byte = 1
	FormatUTF8         byte = 2
	FormatDeflatedJSON byte = 3
)

// Action is the packet-level operation on a model.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Valid reports whether the action is one the diff engine understands.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionRemove:
		return true
	}
	return false
}

// ErrDecode is the base error for malformed frames and packets.
var ErrDecode = errors.New("ws: decode error")

// FrameHeader is the 8-byte header preceding every frame payload.
//
//	offset 0: packet type (1=action, 2=payload)
//	offset 1: payload format (1=JSON, 2=UTF-8, 3=deflated JSON)
//	offset 2: deflate flag (redundant with format=3, both honored)
//	offset 3: reserved, ignored on read
//	offset 4: payload length, big-endian uint32
type FrameHeader struct {
	PacketType    byte
	PayloadFormat byte
	Deflated      byte
	Reserved      byte
	PayloadSize   uint32
}

// Frame is a decoded frame: header plus its inflated payload.
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// ActionFrame is the JSON body of the first frame of every packet.
type ActionFrame struct {
	Action      Action `json:"action"`
	NewUpdateID string `json:"newUpdateId"`
	ModelKey    string `json:"modelKey"`
	ID          string `json:"id"`
}

// Packet is one decoded application-level message: an action frame
// followed by a payload frame. Payload is raw JSON (empty for remove).
type Packet struct {
	Action  ActionFrame
	Payload []byte

	raw []byte
}

// decodeFrame reads one frame starting at off and returns it along with
// the offset of the next frame.
func decodeFrame(data []byte, off int) (Frame, int, error) {
	if len(data)-off < HeaderSize {
		return Frame{}, 0, fmt.Errorf("%w: short header (%d bytes)", ErrDecode, len(data)-off)
	}
	hdr := FrameHeader{
		PacketType:    data[off],
		PayloadFormat: data[off+1],
		Deflated:      data[off+2],
		Reserved:      data[off+3],
		PayloadSize:   binary.BigEndian.Uint32(data[off+4 : off+8]),
	}
	if hdr.PayloadSize > MaxPayloadSize {
		return Frame{}, 0, fmt.Errorf("%w: frame payload %d exceeds cap", ErrDecode, hdr.PayloadSize)
	}
	start := off + HeaderSize
	end := start + int(hdr.PayloadSize)
	if end > len(data) {
		return Frame{}, 0, fmt.Errorf("%w: truncated payload (want %d, have %d)", ErrDecode, hdr.PayloadSize, len(data)-start)
	}

	payload := data[start:end]
	// Format wins over the flag: format=3 with flag=0 is still inflated.
	if hdr.Deflated != 0 || hdr.PayloadFormat == FormatDeflatedJSON {
		inflated, err := inflate(payload)
		if err != nil {
			return Frame{}, 0, fmt.Errorf("%w: inflate: %v", ErrDecode, err)
		}
		payload = inflated
	} else {
		payload = bytes.Clone(payload)
	}
	return Frame{Header: hdr, Payload: payload}, end, nil
}

// Decode parses a complete binary websocket message into a Packet.
func Decode(data []byte) (*Packet, error) {
	action, next, err := decodeFrame(data, 0)
	if err != nil {
		return nil, fmt.Errorf("action frame: %w", err)
	}
	if action.Header.PacketType != PacketTypeAction {
		return nil, fmt.Errorf("%w: first frame type %d, want action", ErrDecode, action.Header.PacketType)
	}
	payload, _, err := decodeFrame(data, next)
	if err != nil {
		return nil, fmt.Errorf("payload frame: %w", err)
	}
	if payload.Header.PacketType != PacketTypePayload {
		return nil, fmt.Errorf("%w: second frame type %d, want payload", ErrDecode, payload.Header.PacketType)
	}

	pkt := &Packet{Payload: payload.Payload, raw: bytes.Clone(data)}
	if err := json.Unmarshal(action.Payload, &pkt.Action); err != nil {
		return nil, fmt.Errorf("%w: action body: %v", ErrDecode, err)
	}
	if !pkt.Action.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrDecode, pkt.Action.Action)
	}
	return pkt, nil
}

// Raw returns the original wire bytes the packet was decoded from, or
// nil if the packet was constructed locally.
func (p *Packet) Raw() []byte { return p.raw }

// Size returns the wire size of the packet in bytes.
func (p *Packet) Size() int { return len(p.raw) }

// Encode serializes the packet back into the two-frame wire form.
// Both frames are emitted uncompressed JSON.
func (p *Packet) Encode() ([]byte, error) {
	body, err := json.Marshal(p.Action)
	if err != nil {
		return nil, fmt.Errorf("ws: encode action: %w", err)
	}
	var buf bytes.Buffer
	writeFrame(&buf, PacketTypeAction, FormatJSON, body)
	writeFrame(&buf, PacketTypePayload, FormatJSON, p.Payload)
	return buf.Bytes(), nil
}

// EncodeDeflated is Encode with the payload frame deflate-compressed.
// Used by tests and capture tooling to produce controller-shaped frames.
func (p *Packet) EncodeDeflated() ([]byte, error) {
	body, err := json.Marshal(p.Action)
	if err != nil {
		return nil, fmt.Errorf("ws: encode action: %w", err)
	}
	compressed, err := deflate(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("ws: deflate payload: %w", err)
	}
	var buf bytes.Buffer
	writeFrame(&buf, PacketTypeAction, FormatJSON, body)
	hdr := [HeaderSize]byte{PacketTypePayload, FormatDeflatedJSON, 1, 0}
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(compressed)))
	buf.Write(hdr[:])
	buf.Write(compressed)
	return buf.Bytes(), nil
}

func writeFrame(buf *bytes.Buffer, pktType, format byte, payload []byte) {
	hdr := [HeaderSize]byte{pktType, format, 0, 0}
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
}

// inflate decompresses a raw DEFLATE stream (no zlib wrapper).
func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, MaxPayloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxPayloadSize {
		return nil, fmt.Errorf("inflated payload exceeds cap")
	}
	return out, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
