package ipcon

import (
	"github.com/tfp-protocol/tfp-go/pkg/device"
)

// Brick Daemon pseudo-device.
const (
	brickdUID = "2"

	functionGetAuthenticationNonce uint8 = 1
	functionAuthenticate           uint8 = 2
)

// brickDaemon talks to the daemon itself rather than to a device behind it.
type brickDaemon struct {
	c   *IPConnection
	dev *device.Device
}

func brickDaemonDescriptor() *device.Descriptor {
	return &device.Descriptor{
		DeviceIdentifier: 0,
		DisplayName:      "Brick Daemon",
		APIVersion:       [3]uint8{2, 0, 0},
		ResponseExpected: map[uint8]device.ResponseExpectedFlag{
			functionGetAuthenticationNonce: device.ResponseExpectedAlwaysTrue,
			functionAuthenticate:           device.ResponseExpectedTrue,
		},
	}
}

func newBrickDaemon(c *IPConnection) *brickDaemon {
	dev, err := device.New(brickdUID, brickDaemonDescriptor())
	if err != nil {
		panic("ipcon: brick daemon descriptor: " + err.Error())
	}
	c.devices.Add(dev)
	return &brickDaemon{c: c, dev: dev}
}

// getAuthenticationNonce fetches the server nonce.
func (b *brickDaemon) getAuthenticationNonce(onSuccess func(nonce []uint8), onError func(error)) {
	b.c.sendRequest(b.dev, Call{
		FunctionID:     functionGetAuthenticationNonce,
		ResponseLength: 12,
		UnpackFormat:   "B4",
	}, func(values ...any) {
		nonce, _ := values[0].([]uint8)
		onSuccess(nonce)
	}, onError, false)
}

// authenticate sends the client nonce and the HMAC digest.
func (b *brickDaemon) authenticate(clientNonce []uint8, digest []uint8, onSuccess func(), onError func(error)) {
	b.c.sendRequest(b.dev, Call{
		FunctionID: functionAuthenticate,
		Args:       []any{clientNonce, digest},
		PackFormat: "B4 B20",
	}, func(...any) {
		onSuccess()
	}, onError, false)
}
