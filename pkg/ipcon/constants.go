package ipcon

import (
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Broadcast function and callback IDs.
const (
	FunctionDisconnectProbe uint8 = 128
	CallbackEnumerate       uint8 = 253
	FunctionEnumerate       uint8 = 254
)

// Protocol defaults.
const (
	DefaultTimeout                 = 2500 * time.Millisecond
	DefaultDisconnectProbeInterval = 5 * time.Second
	DefaultDialTimeout             = 5 * time.Second
	RetryConnectionInterval        = 2 * time.Second

	// MaxStreamLength is the largest number of elements a stream can carry.
	MaxStreamLength = 65535

	enumerateLength = 34
	enumerateFormat = "s8 s8 c B3 B3 H B"
)

// EnumerationType tells why an enumerate callback was sent.
type EnumerationType uint8

const (
	// EnumerationAvailable answers an enumerate request.
	EnumerationAvailable EnumerationType = 0

	// EnumerationConnected reports a newly attached device.
	EnumerationConnected EnumerationType = 1

	// EnumerationDisconnected reports a removed device.
	EnumerationDisconnected EnumerationType = 2
)

// String returns the enumeration type name.
func (e EnumerationType) String() string {
	switch e {
	case EnumerationAvailable:
		return "AVAILABLE"
	case EnumerationConnected:
		return "CONNECTED"
	case EnumerationDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ConnectReason tells why the connection was established.
type ConnectReason uint8

const (
	// ConnectReasonRequest means Connect was called.
	ConnectReasonRequest ConnectReason = 0

	// ConnectReasonAutoReconnect means the connection was restored after a loss.
	ConnectReasonAutoReconnect ConnectReason = 1
)

// String returns the connect reason name.
func (r ConnectReason) String() string {
	switch r {
	case ConnectReasonRequest:
		return "REQUEST"
	case ConnectReasonAutoReconnect:
		return "AUTO_RECONNECT"
	default:
		return "UNKNOWN"
	}
}

// DisconnectReason tells why the connection ended.
type DisconnectReason uint8

const (
	// DisconnectReasonRequest means Disconnect was called.
	DisconnectReasonRequest DisconnectReason = 0

	// DisconnectReasonError means the socket failed or the probe could not be sent.
	DisconnectReasonError DisconnectReason = 1

	// DisconnectReasonShutdown means the daemon reset the connection.
	DisconnectReasonShutdown DisconnectReason = 2
)

// String returns the disconnect reason name.
func (r DisconnectReason) String() string {
	switch r {
	case DisconnectReasonRequest:
		return "REQUEST"
	case DisconnectReasonError:
		return "ERROR"
	case DisconnectReasonShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// ConnectionState is the caller-visible connection state.
type ConnectionState uint8

const (
	// ConnectionStateDisconnected means no socket and no reconnect pending.
	ConnectionStateDisconnected ConnectionState = 0

	// ConnectionStateConnected means the socket is open.
	ConnectionStateConnected ConnectionState = 1

	// ConnectionStatePending means an auto-reconnect is in progress.
	ConnectionStatePending ConnectionState = 2
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateDisconnected:
		return "DISCONNECTED"
	case ConnectionStateConnected:
		return "CONNECTED"
	case ConnectionStatePending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// Enumeration is the payload of an enumerate callback.
type Enumeration struct {
	UID              string
	ConnectedUID     string
	Position         wire.Char
	HardwareVersion  [3]uint8
	FirmwareVersion  [3]uint8
	DeviceIdentifier uint16
	EnumerationType  EnumerationType
}
