package transport

import (
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Framing constants.
const (
	// lengthOffset is the position of the length byte inside the header.
	lengthOffset = 4

	// MaxLogFrameDataSize is the maximum read size to include in logs (4 KB).
	// Larger reads are truncated in log events.
	MaxLogFrameDataSize = 4096
)

// SplitStream splits buf into complete packets.
//
// It stops when fewer than a header or fewer than the announced length are
// buffered and returns the unconsumed tail as remainder. A length byte
// smaller than the header cannot be resynchronised, so the remaining bytes
// are dropped and remainder is empty.
func SplitStream(buf []byte) (packets [][]byte, remainder []byte) {
	for {
		if len(buf) < wire.HeaderSize {
			return packets, buf
		}

		length := int(buf[lengthOffset])
		if length < wire.HeaderSize {
			return packets, nil
		}
		if len(buf) < length {
			return packets, buf
		}

		packet := make([]byte, length)
		copy(packet, buf[:length])
		packets = append(packets, packet)
		buf = buf[length:]
	}
}

// MergeBuffer accumulates partial socket reads and yields complete packets.
// It is not safe for concurrent use; one reader goroutine owns it.
type MergeBuffer struct {
	buf []byte

	// Logging support (optional)
	logger log.Logger
	connID string
}

// SetLogger configures frame logging for this buffer.
// Pass nil to disable logging.
func (m *MergeBuffer) SetLogger(logger log.Logger, connID string) {
	m.logger = logger
	m.connID = connID
}

// Feed appends data and returns every packet that is now complete.
func (m *MergeBuffer) Feed(data []byte) [][]byte {
	if m.logger != nil && len(data) > 0 {
		m.logger.Log(makeFrameEvent(m.connID, data, log.DirectionIn))
	}

	m.buf = append(m.buf, data...)
	packets, rest := SplitStream(m.buf)

	// Compact so the backing array does not grow without bound.
	m.buf = append(m.buf[:0], rest...)
	return packets
}

// Len returns the number of buffered bytes not yet forming a packet.
func (m *MergeBuffer) Len() int {
	return len(m.buf)
}

// Reset discards all buffered bytes.
func (m *MergeBuffer) Reset() {
	m.buf = m.buf[:0]
}

// makeFrameEvent creates a log event for raw socket bytes.
func makeFrameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frameData := data
	truncated := false

	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      append([]byte(nil), frameData...),
			Truncated: truncated,
		},
	}
}
