package log

import (
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates packet flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the daemon address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// DeviceUID is the base-58 UID of the addressed device, if any.
	DeviceUID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"` // Wire layer (decoded header)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/stream state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Probe/enumerate
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of packet flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming packet.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing packet.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the packet layer (decoded header).
	LayerWire Layer = 1
	// LayerEngine is the connection engine (tasks, streams, callbacks).
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or callback packet.
	CategoryMessage Category = 0
	// CategoryControl indicates a control packet (disconnect probe, enumerate).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the number of bytes read or written.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large reads).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// PacketEvent captures a decoded packet header at the wire layer.
type PacketEvent struct {
	// Type distinguishes request/response/callback.
	Type PacketType `cbor:"1,keyasint"`

	// UID is the numeric device UID.
	UID uint32 `cbor:"2,keyasint"`

	// FunctionID is the function or callback ID.
	FunctionID uint8 `cbor:"3,keyasint"`

	// SequenceNumber correlates requests and responses (0 for callbacks).
	SequenceNumber uint8 `cbor:"4,keyasint"`

	// Length is the total packet length including the header.
	Length uint8 `cbor:"5,keyasint"`

	// ResponseExpected is the response-expected header flag.
	ResponseExpected bool `cbor:"6,keyasint,omitempty"`

	// ErrorCode is the 2-bit device error code of a response.
	ErrorCode uint8 `cbor:"7,keyasint,omitempty"`

	// Payload is the packet payload.
	Payload []byte `cbor:"8,keyasint,omitempty"`
}

// WirePacket rebuilds the captured packet. A zero Length is filled in
// from the payload.
func (p *PacketEvent) WirePacket() *wire.Packet {
	length := p.Length
	if length == 0 {
		length = uint8(wire.HeaderSize + len(p.Payload))
	}
	return &wire.Packet{
		Header: wire.Header{
			UID:              p.UID,
			Length:           length,
			FunctionID:       p.FunctionID,
			SequenceNumber:   p.SequenceNumber,
			ResponseExpected: p.ResponseExpected,
			ErrorCode:        p.ErrorCode,
		},
		Payload: append([]byte(nil), p.Payload...),
	}
}

// PacketType distinguishes request/response/callback.
type PacketType uint8

const (
	// PacketTypeRequest indicates an outgoing request.
	PacketTypeRequest PacketType = 0
	// PacketTypeResponse indicates a response to a request.
	PacketTypeResponse PacketType = 1
	// PacketTypeCallback indicates an unsolicited callback (sequence number 0).
	PacketTypeCallback PacketType = 2
)

// String returns the packet type name.
func (p PacketType) String() string {
	switch p {
	case PacketTypeRequest:
		return "REQUEST"
	case PacketTypeResponse:
		return "RESPONSE"
	case PacketTypeCallback:
		return "CALLBACK"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and stream lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityTask indicates a lifecycle task starting or finishing.
	StateEntityTask StateEntity = 1
	// StateEntityStream indicates a stream transfer state change.
	StateEntityStream StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityTask:
		return "TASK"
	case StateEntityStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures broadcast control packets.
type ControlMsgEvent struct {
	// Type of control packet.
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType indicates the type of control packet.
type ControlMsgType uint8

const (
	// ControlMsgDisconnectProbe indicates an idle-time disconnect probe.
	ControlMsgDisconnectProbe ControlMsgType = 0
	// ControlMsgEnumerate indicates an enumerate broadcast.
	ControlMsgEnumerate ControlMsgType = 1
)

// String returns the control packet type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgDisconnectProbe:
		return "DISCONNECT_PROBE"
	case ControlMsgEnumerate:
		return "ENUMERATE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the TFP error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
