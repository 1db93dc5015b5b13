package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Packet size limits.
const (
	// HeaderSize is the size of every packet header in bytes.
	HeaderSize = 8

	// MaxPacketSize is the largest packet the length byte can describe.
	MaxPacketSize = 255

	// MaxPayloadSize is the largest payload a single packet can carry.
	MaxPayloadSize = MaxPacketSize - HeaderSize
)

// BroadcastUID addresses all devices (enumerate, disconnect probe).
const BroadcastUID uint32 = 0

// Packet errors.
var (
	// ErrShortHeader indicates fewer than HeaderSize bytes.
	ErrShortHeader = errors.New("packet shorter than header")

	// ErrLengthMismatch indicates the length byte disagrees with the buffer.
	ErrLengthMismatch = errors.New("packet length mismatch")

	// ErrPayloadTooLarge indicates a payload that does not fit one packet.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Header is the decoded 8-byte packet header.
type Header struct {
	UID              uint32
	Length           uint8
	FunctionID       uint8
	SequenceNumber   uint8
	ResponseExpected bool
	Options          uint8
	ErrorCode        uint8
	FutureUse        uint8
}

// Encode returns the wire form of the header.
func (h Header) Encode() [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.UID)
	b[4] = h.Length
	b[5] = h.FunctionID
	b[6] = (h.SequenceNumber&0x0F)<<4 | (h.Options&0x03)<<1
	if h.ResponseExpected {
		b[6] |= 1 << 3
	}
	b[7] = (h.ErrorCode&0x03)<<6 | h.FutureUse&0x3F
	return b
}

// DecodeHeader parses the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		UID:              binary.LittleEndian.Uint32(b[0:4]),
		Length:           b[4],
		FunctionID:       b[5],
		SequenceNumber:   b[6] >> 4 & 0x0F,
		ResponseExpected: b[6]>>3&0x01 == 1,
		Options:          b[6] >> 1 & 0x03,
		ErrorCode:        b[7] >> 6 & 0x03,
		FutureUse:        b[7] & 0x3F,
	}, nil
}

// CreateHeader builds a request header. totalLength includes the header itself.
func CreateHeader(uid uint32, totalLength, functionID, seq uint8, responseExpected bool) []byte {
	h := Header{
		UID:              uid,
		Length:           totalLength,
		FunctionID:       functionID,
		SequenceNumber:   seq,
		ResponseExpected: responseExpected,
	}
	b := h.Encode()
	return b[:]
}

// Packet is a header plus its payload.
type Packet struct {
	Header
	Payload []byte
}

// NewPacket builds a packet and sets the header length from the payload.
func NewPacket(h Header, payload []byte) (*Packet, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	h.Length = uint8(HeaderSize + len(payload))
	return &Packet{Header: h, Payload: payload}, nil
}

// ParsePacket decodes one complete packet. The buffer length must equal
// the header's length byte.
func ParsePacket(b []byte) (*Packet, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(b) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrLengthMismatch, h.Length, len(b))
	}
	payload := make([]byte, len(b)-HeaderSize)
	copy(payload, b[HeaderSize:])
	return &Packet{Header: h, Payload: payload}, nil
}

// Bytes returns the packet in wire form.
func (p *Packet) Bytes() []byte {
	h := p.Header.Encode()
	out := make([]byte, 0, HeaderSize+len(p.Payload))
	out = append(out, h[:]...)
	return append(out, p.Payload...)
}

// IsCallback reports whether the packet is an unsolicited callback.
func (p *Packet) IsCallback() bool {
	return p.SequenceNumber == 0
}

// SequenceCounter allocates request sequence numbers 1..15 cyclically.
// It is safe for concurrent use.
type SequenceCounter struct {
	mu   sync.Mutex
	last uint8
}

// Next returns the next sequence number. It never returns 0.
func (c *SequenceCounter) Next() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = c.last%15 + 1
	return c.last
}
