// Package sink defines the outbound frame interface and its message-bus
// implementations.
package sink

import (
	"encoding/binary"
	"fmt"
)

// ImageMessage is one published frame: raw RGBA8 pixels plus metadata.
type ImageMessage struct {
	// Seq is the per-session sequence counter, starting at 0
	Seq uint64
	// TimestampSec and TimestampNsec split the device clock capture time
	TimestampSec  int64
	TimestampNsec int64
	// FrameID tags the originating camera
	FrameID string
	// Width and Height describe the pixel payload; Step is the row stride
	// in bytes (4 * Width for RGBA8)
	Width  int
	Height int
	Step   int
	// Data is the raw RGBA8 payload, Height * Step bytes
	Data []byte
}

// Publisher receives frames from the acquisition loop. Publish is
// fire-and-forget from the loop's point of view; implementations log their
// own delivery failures.
type Publisher interface {
	Publish(msg *ImageMessage)

	// PublishStreamClosed signals that the session terminated and no more
	// frames will follow, so consumers need not infer it from silence.
	PublishStreamClosed(event *StreamClosed)
}

// StreamClosed is the terminal event of a capture session
type StreamClosed struct {
	FrameID string `json:"frame_id"`
	// LastSeq is the last emitted sequence id, or -1 if nothing was emitted
	LastSeq int64  `json:"last_seq"`
	Reason  string `json:"reason"`
}

// Wire format: a fixed header followed by the frame id and the pixel
// payload. All integers are big-endian.
const (
	messageMagic   = 0x44434d47 // "DCMG"
	headerSize     = 4 + 2 + 8 + 8 + 8 + 4 + 4 + 4 + 2
	messageVersion = 1
)

// Encode serializes the message for the wire
func (m *ImageMessage) Encode() []byte {
	buf := make([]byte, 0, headerSize+len(m.FrameID)+len(m.Data))
	var scratch [8]byte

	put32 := func(v uint32) {
		binary.BigEndian.PutUint32(scratch[:4], v)
		buf = append(buf, scratch[:4]...)
	}
	put64 := func(v uint64) {
		binary.BigEndian.PutUint64(scratch[:8], v)
		buf = append(buf, scratch[:8]...)
	}
	put16 := func(v uint16) {
		binary.BigEndian.PutUint16(scratch[:2], v)
		buf = append(buf, scratch[:2]...)
	}

	put32(messageMagic)
	put16(messageVersion)
	put64(m.Seq)
	put64(uint64(m.TimestampSec))
	put64(uint64(m.TimestampNsec))
	put32(uint32(m.Width))
	put32(uint32(m.Height))
	put32(uint32(m.Step))
	put16(uint16(len(m.FrameID)))
	buf = append(buf, m.FrameID...)
	buf = append(buf, m.Data...)
	return buf
}

// DecodeImageMessage parses a wire-encoded message
func DecodeImageMessage(data []byte) (*ImageMessage, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("message too short: %d bytes", len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != messageMagic {
		return nil, fmt.Errorf("bad message magic")
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != messageVersion {
		return nil, fmt.Errorf("unsupported message version %d", v)
	}

	msg := &ImageMessage{
		Seq:           binary.BigEndian.Uint64(data[6:14]),
		TimestampSec:  int64(binary.BigEndian.Uint64(data[14:22])),
		TimestampNsec: int64(binary.BigEndian.Uint64(data[22:30])),
		Width:         int(binary.BigEndian.Uint32(data[30:34])),
		Height:        int(binary.BigEndian.Uint32(data[34:38])),
		Step:          int(binary.BigEndian.Uint32(data[38:42])),
	}
	idLen := int(binary.BigEndian.Uint16(data[42:44]))
	if len(data) < headerSize+idLen {
		return nil, fmt.Errorf("truncated frame id")
	}
	msg.FrameID = string(data[headerSize : headerSize+idLen])
	msg.Data = data[headerSize+idLen:]

	if want := msg.Height * msg.Step; len(msg.Data) != want {
		return nil, fmt.Errorf("payload size %d does not match %dx%d step %d",
			len(msg.Data), msg.Width, msg.Height, msg.Step)
	}
	return msg, nil
}
