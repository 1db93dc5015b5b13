package ipcon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/internal/fakebrickd"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

func getValueCall() Call {
	return Call{FunctionID: fnGetValue, ResponseLength: 10, UnpackFormat: "h"}
}

func TestRequestReturnsUnpackedValues(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(h.dev.UID(), fnGetValue, fakebrickd.Reply("h", int16(-42)))

	values, err := h.conn.Request(testContext(t), h.dev, getValueCall())
	require.NoError(t, err)
	assert.Equal(t, []any{int16(-42)}, values)
	assert.Equal(t, device.IdentityMatch, h.dev.IdentityCheck())

	// The identity is only checked once.
	_, err = h.conn.Request(testContext(t), h.dev, getValueCall())
	require.NoError(t, err)
	assert.Len(t, h.requestsFor(device.FunctionGetIdentity), 1)
}

func TestRequestWrongDeviceType(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(h.dev.UID(), device.FunctionGetIdentity, fakebrickd.Identity(testUID, 999))

	_, err := h.conn.Request(testContext(t), h.dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrWrongDeviceType)
	assert.Equal(t, device.IdentityMismatch, h.dev.IdentityCheck())

	_, err = h.conn.Request(testContext(t), h.dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrWrongDeviceType)
	assert.Len(t, h.requestsFor(device.FunctionGetIdentity), 1)
	assert.Empty(t, h.requestsFor(fnGetValue))
}

func TestRequestDeviceReplaced(t *testing.T) {
	h := newHarness(t)

	other, err := device.New(testUID, testDescriptor())
	require.NoError(t, err)
	h.conn.AddDevice(other)

	_, err = h.conn.Request(testContext(t), h.dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrDeviceReplaced)
}

func TestRequestTimeoutFiresOnce(t *testing.T) {
	h := newHarness(t)
	h.conn.SetTimeout(100 * time.Millisecond)

	var rec recorder
	h.conn.SendRequest(h.dev, getValueCall(), rec.success, rec.fail)

	require.Eventually(t, func() bool { return rec.calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, rec.errors(), 1)
	assert.ErrorIs(t, rec.errors()[0], wire.ErrTimeout)

	// A late response is dropped.
	reqs := h.requestsFor(fnGetValue)
	require.Len(t, reqs, 1)
	payload, err := wire.Pack([]any{int16(1)}, "h")
	require.NoError(t, err)
	require.NoError(t, h.srv.Send(fakebrickd.Response(reqs[0], payload)))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.calls())
	assert.Empty(t, rec.successes())
}

func TestRequestWrongResponseLength(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(h.dev.UID(), fnGetValue, fakebrickd.Reply("h h", int16(1), int16(2)))

	_, err := h.conn.Request(testContext(t), h.dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrWrongResponseLength)
}

func TestRequestDeviceErrorCodes(t *testing.T) {
	tests := []struct {
		code uint8
		want error
	}{
		{1, wire.ErrInvalidParameter},
		{2, wire.ErrFunctionNotSupported},
		{3, wire.ErrUnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			h := newHarness(t)
			h.srv.Handle(h.dev.UID(), fnGetValue, func(req *wire.Packet) []*wire.Packet {
				return []*wire.Packet{fakebrickd.ErrorResponse(req, tt.code)}
			})

			_, err := h.conn.Request(testContext(t), h.dev, getValueCall())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestWithoutResponseSucceedsAfterWrite(t *testing.T) {
	h := newHarness(t)

	values, err := h.conn.Request(testContext(t), h.dev, Call{
		FunctionID: fnSetValue,
		Args:       []any{int16(5)},
		PackFormat: "h",
	})
	require.NoError(t, err)
	assert.Empty(t, values)

	require.Eventually(t, func() bool { return len(h.requestsFor(fnSetValue)) == 1 }, time.Second, 5*time.Millisecond)
	req := h.requestsFor(fnSetValue)[0]
	assert.False(t, req.ResponseExpected)
	assert.Equal(t, uint8(10), req.Length)
}

func TestRequestSetterWithResponse(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(h.dev.UID(), fnSetValue, fakebrickd.Ack())
	require.NoError(t, h.dev.SetResponseExpected(fnSetValue, true))

	values, err := h.conn.Request(testContext(t), h.dev, Call{
		FunctionID: fnSetValue,
		Args:       []any{int16(5)},
		PackFormat: "h",
	})
	require.NoError(t, err)
	assert.Empty(t, values)

	reqs := h.requestsFor(fnSetValue)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].ResponseExpected)
}

func TestRequestUnknownFunction(t *testing.T) {
	h := newHarness(t)

	_, err := h.conn.Request(testContext(t), h.dev, Call{FunctionID: 99})
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
}

func TestRequestInvalidParameter(t *testing.T) {
	h := newHarness(t)

	_, err := h.conn.Request(testContext(t), h.dev, Call{
		FunctionID: fnSetValue,
		Args:       []any{"not a number"},
		PackFormat: "h",
	})
	assert.ErrorIs(t, err, wire.ErrInvalidParameter)
}

func TestRequestNotConnected(t *testing.T) {
	conn := New(testConfig())
	t.Cleanup(func() { _ = conn.Close() })

	dev, err := device.New(testUID, testDescriptor())
	require.NoError(t, err)
	conn.AddDevice(dev)

	_, err = conn.Request(testContext(t), dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrNotConnected)
}

func TestRequestAfterClose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.conn.Close())

	_, err := h.conn.Request(testContext(t), h.dev, getValueCall())
	assert.ErrorIs(t, err, wire.ErrNotConnected)
}

func TestGetIdentity(t *testing.T) {
	h := newHarness(t)

	id, err := h.conn.GetIdentity(testContext(t), h.dev)
	require.NoError(t, err)
	assert.Equal(t, testUID, id.UID)
	assert.Equal(t, uint16(testDeviceIdentifier), id.DeviceIdentifier)
	assert.Equal(t, [3]uint8{2, 0, 1}, id.FirmwareVersion)
	assert.Equal(t, device.IdentityPending, h.dev.IdentityCheck())
}

func TestRequestSequenceNumbersCycle(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(h.dev.UID(), fnGetValue, fakebrickd.Reply("h", int16(0)))

	for i := 0; i < 20; i++ {
		_, err := h.conn.Request(testContext(t), h.dev, getValueCall())
		require.NoError(t, err)
	}

	for _, req := range h.srv.Requests() {
		assert.NotZero(t, req.SequenceNumber)
		assert.LessOrEqual(t, req.SequenceNumber, uint8(15))
	}
}
