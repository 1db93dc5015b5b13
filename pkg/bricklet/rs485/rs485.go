// Package rs485 wraps the streaming functions of the RS485 Bricklet.
package rs485

import (
	"context"
	"fmt"

	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/ipcon"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// DeviceIdentifier is the device type reported by get-identity.
const DeviceIdentifier uint16 = 277

// DisplayName is the human readable device name.
const DisplayName = "RS485 Bricklet"

const (
	functionWriteLowLevel         uint8 = 1
	functionReadLowLevel          uint8 = 2
	functionEnableReadCallback    uint8 = 3
	functionDisableReadCallback   uint8 = 4
	functionIsReadCallbackEnabled uint8 = 5

	// CallbackReadLowLevel carries one chunk of received data.
	CallbackReadLowLevel uint8 = 41
)

// chunkSize is the number of characters per low-level packet.
const chunkSize = 60

// Connection is the part of the engine a Bricklet needs.
type Connection interface {
	AddDevice(dev *device.Device)
	Request(ctx context.Context, dev *device.Device, call ipcon.Call) ([]any, error)
	WriteStreamContext(ctx context.Context, dev *device.Device, fid uint8, prefix []any, data any) ([]any, error)
	ReadStreamContext(ctx context.Context, dev *device.Device, fid uint8, args []any) ([]any, error)
	GetIdentity(ctx context.Context, dev *device.Device) (device.Identity, error)
}

// Bricklet is an RS485 Bricklet behind a connection.
type Bricklet struct {
	conn Connection
	dev  *device.Device
}

var lowLevelRoles = []device.StreamRole{device.RoleLength, device.RoleOffset, device.RoleData}

// Descriptor returns the static device description.
func Descriptor() *device.Descriptor {
	return &device.Descriptor{
		DeviceIdentifier: DeviceIdentifier,
		DisplayName:      DisplayName,
		APIVersion:       [3]uint8{2, 0, 1},
		ResponseExpected: map[uint8]device.ResponseExpectedFlag{
			functionWriteLowLevel:         device.ResponseExpectedAlwaysTrue,
			functionReadLowLevel:          device.ResponseExpectedAlwaysTrue,
			functionEnableReadCallback:    device.ResponseExpectedTrue,
			functionDisableReadCallback:   device.ResponseExpectedTrue,
			functionIsReadCallbackEnabled: device.ResponseExpectedAlwaysTrue,
		},
		CallbackFormats: map[uint8]device.CallbackFormat{
			CallbackReadLowLevel: {Length: 72, Format: "H H c60"},
		},
		Streams: map[uint8]device.StreamDescriptor{
			functionWriteLowLevel: {
				Direction:      device.StreamOut,
				ChunkSize:      chunkSize,
				PackFormat:     "H H c60",
				UnpackFormat:   "B",
				ResponseLength: 9,
				RequestRoles:   lowLevelRoles,
				ResponseRoles:  []device.StreamRole{device.RoleWritten},
				ShortWrite:     true,
			},
			functionReadLowLevel: {
				Direction:      device.StreamIn,
				ChunkSize:      chunkSize,
				PackFormat:     "H",
				UnpackFormat:   "H H c60",
				ResponseLength: 72,
				ResponseRoles:  lowLevelRoles,
			},
		},
		HighLevelCallbacks: map[uint8]device.HighLevelCallbackDescriptor{
			CallbackReadLowLevel: {Roles: lowLevelRoles},
		},
	}
}

// New creates the Bricklet with uid and registers it with conn.
func New(uid string, conn Connection) (*Bricklet, error) {
	dev, err := device.New(uid, Descriptor())
	if err != nil {
		return nil, fmt.Errorf("rs485: %w", err)
	}
	conn.AddDevice(dev)
	return &Bricklet{conn: conn, dev: dev}, nil
}

// Device returns the underlying device.
func (b *Bricklet) Device() *device.Device { return b.dev }

// Write sends message and returns how many characters the Bricklet
// accepted. Fewer than len(message) means its buffer is full.
func (b *Bricklet) Write(ctx context.Context, message []wire.Char) (int, error) {
	values, err := b.conn.WriteStreamContext(ctx, b.dev, functionWriteLowLevel, nil, message)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		// Unacknowledged writes report the full message.
		return len(message), nil
	}
	return values[0].(int), nil
}

// WriteString is Write for a string message.
func (b *Bricklet) WriteString(ctx context.Context, message string) (int, error) {
	chars := make([]wire.Char, len(message))
	for i := range len(message) {
		chars[i] = wire.Char(message[i])
	}
	return b.Write(ctx, chars)
}

// Read returns up to length received characters.
func (b *Bricklet) Read(ctx context.Context, length uint16) ([]wire.Char, error) {
	values, err := b.conn.ReadStreamContext(ctx, b.dev, functionReadLowLevel, []any{length})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	data, _ := values[0].([]wire.Char)
	return data, nil
}

// EnableReadCallback switches the read callback on. Read then no longer
// returns data.
func (b *Bricklet) EnableReadCallback(ctx context.Context) error {
	_, err := b.conn.Request(ctx, b.dev, ipcon.Call{FunctionID: functionEnableReadCallback})
	return err
}

// DisableReadCallback switches the read callback off.
func (b *Bricklet) DisableReadCallback(ctx context.Context) error {
	_, err := b.conn.Request(ctx, b.dev, ipcon.Call{FunctionID: functionDisableReadCallback})
	return err
}

// IsReadCallbackEnabled reports the read callback state.
func (b *Bricklet) IsReadCallbackEnabled(ctx context.Context) (bool, error) {
	values, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID:     functionIsReadCallbackEnabled,
		ResponseLength: 9,
		UnpackFormat:   "?",
	})
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// GetIdentity returns the identity of the Bricklet.
func (b *Bricklet) GetIdentity(ctx context.Context) (device.Identity, error) {
	return b.conn.GetIdentity(ctx, b.dev)
}

// OnRead registers fn for reassembled messages. A message that lost a
// chunk is delivered as nil.
func (b *Bricklet) OnRead(fn func(message []wire.Char)) {
	_ = b.dev.RegisterHighLevelCallback(CallbackReadLowLevel, func(values ...any) {
		message, _ := values[0].([]wire.Char)
		fn(message)
	})
}

// OnReadLowLevel registers fn for the raw chunks.
func (b *Bricklet) OnReadLowLevel(fn func(length, offset uint16, chunk []wire.Char)) {
	_ = b.dev.RegisterCallback(CallbackReadLowLevel, func(values ...any) {
		fn(values[0].(uint16), values[1].(uint16), values[2].([]wire.Char))
	})
}
