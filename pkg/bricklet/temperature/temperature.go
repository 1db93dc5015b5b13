// Package temperature wraps the Temperature Bricklet 2.0.
package temperature

import (
	"context"
	"fmt"

	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/ipcon"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// DeviceIdentifier is the device type reported by get-identity.
const DeviceIdentifier uint16 = 2113

// DisplayName is the human readable device name.
const DisplayName = "Temperature Bricklet 2.0"

const (
	functionGetTemperature                      uint8 = 1
	functionSetTemperatureCallbackConfiguration uint8 = 2
	functionGetTemperatureCallbackConfiguration uint8 = 3
	functionSetHeaterConfiguration              uint8 = 4
	functionGetHeaterConfiguration              uint8 = 5

	// CallbackTemperature reports the temperature in 1/100 °C.
	CallbackTemperature uint8 = 4
)

// Threshold options for the temperature callback.
const (
	ThresholdOff     = wire.Char('x')
	ThresholdOutside = wire.Char('o')
	ThresholdInside  = wire.Char('i')
	ThresholdSmaller = wire.Char('<')
	ThresholdGreater = wire.Char('>')
)

// Connection is the part of the engine a Bricklet needs.
type Connection interface {
	AddDevice(dev *device.Device)
	Request(ctx context.Context, dev *device.Device, call ipcon.Call) ([]any, error)
	GetIdentity(ctx context.Context, dev *device.Device) (device.Identity, error)
}

// CallbackConfiguration controls when the temperature callback fires.
type CallbackConfiguration struct {
	Period           uint32
	ValueHasToChange bool
	Option           wire.Char
	Min              int16
	Max              int16
}

// Bricklet is a Temperature Bricklet 2.0 behind a connection.
type Bricklet struct {
	conn Connection
	dev  *device.Device
}

// Descriptor returns the static device description.
func Descriptor() *device.Descriptor {
	return &device.Descriptor{
		DeviceIdentifier: DeviceIdentifier,
		DisplayName:      DisplayName,
		APIVersion:       [3]uint8{2, 0, 0},
		ResponseExpected: map[uint8]device.ResponseExpectedFlag{
			functionGetTemperature:                      device.ResponseExpectedAlwaysTrue,
			functionSetTemperatureCallbackConfiguration: device.ResponseExpectedTrue,
			functionGetTemperatureCallbackConfiguration: device.ResponseExpectedAlwaysTrue,
			functionSetHeaterConfiguration:              device.ResponseExpectedFalse,
			functionGetHeaterConfiguration:              device.ResponseExpectedAlwaysTrue,
		},
		CallbackFormats: map[uint8]device.CallbackFormat{
			CallbackTemperature: {Length: 10, Format: "h"},
		},
	}
}

// New creates the Bricklet with uid and registers it with conn.
func New(uid string, conn Connection) (*Bricklet, error) {
	dev, err := device.New(uid, Descriptor())
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	conn.AddDevice(dev)
	return &Bricklet{conn: conn, dev: dev}, nil
}

// Device returns the underlying device.
func (b *Bricklet) Device() *device.Device { return b.dev }

// GetTemperature returns the temperature in 1/100 °C.
func (b *Bricklet) GetTemperature(ctx context.Context) (int16, error) {
	values, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID:     functionGetTemperature,
		ResponseLength: 10,
		UnpackFormat:   "h",
	})
	if err != nil {
		return 0, err
	}
	return values[0].(int16), nil
}

// SetTemperatureCallbackConfiguration configures the temperature callback.
// A zero period disables it.
func (b *Bricklet) SetTemperatureCallbackConfiguration(ctx context.Context, cfg CallbackConfiguration) error {
	_, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID: functionSetTemperatureCallbackConfiguration,
		Args:       []any{cfg.Period, cfg.ValueHasToChange, cfg.Option, cfg.Min, cfg.Max},
		PackFormat: "I ? c h h",
	})
	return err
}

// GetTemperatureCallbackConfiguration returns the callback configuration.
func (b *Bricklet) GetTemperatureCallbackConfiguration(ctx context.Context) (CallbackConfiguration, error) {
	values, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID:     functionGetTemperatureCallbackConfiguration,
		ResponseLength: 18,
		UnpackFormat:   "I ? c h h",
	})
	if err != nil {
		return CallbackConfiguration{}, err
	}
	return CallbackConfiguration{
		Period:           values[0].(uint32),
		ValueHasToChange: values[1].(bool),
		Option:           values[2].(wire.Char),
		Min:              values[3].(int16),
		Max:              values[4].(int16),
	}, nil
}

// SetHeaterConfiguration switches the on-board heater.
func (b *Bricklet) SetHeaterConfiguration(ctx context.Context, enabled bool) error {
	var mode uint8
	if enabled {
		mode = 1
	}
	_, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID: functionSetHeaterConfiguration,
		Args:       []any{mode},
		PackFormat: "B",
	})
	return err
}

// HeaterEnabled reports whether the heater is on.
func (b *Bricklet) HeaterEnabled(ctx context.Context) (bool, error) {
	values, err := b.conn.Request(ctx, b.dev, ipcon.Call{
		FunctionID:     functionGetHeaterConfiguration,
		ResponseLength: 9,
		UnpackFormat:   "B",
	})
	if err != nil {
		return false, err
	}
	return values[0].(uint8) == 1, nil
}

// GetIdentity returns the identity of the Bricklet.
func (b *Bricklet) GetIdentity(ctx context.Context) (device.Identity, error) {
	return b.conn.GetIdentity(ctx, b.dev)
}

// OnTemperature registers fn for the temperature callback. fn runs on the
// connection's event loop.
func (b *Bricklet) OnTemperature(fn func(temperature int16)) {
	_ = b.dev.RegisterCallback(CallbackTemperature, func(values ...any) {
		fn(values[0].(int16))
	})
}
