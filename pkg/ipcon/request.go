package ipcon

import (
	"context"
	"errors"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Call describes one low-level function call.
type Call struct {
	FunctionID uint8
	Args       []any
	PackFormat string

	// ResponseLength is the expected total length of the response packet.
	// Zero means a header-only acknowledgement.
	ResponseLength uint8

	UnpackFormat string
}

// expectedResponse is an in-flight request waiting for its response.
type expectedResponse struct {
	functionID     uint8
	sequenceNumber uint8
	unpackFormat   string
	responseLength uint8
	timer          *time.Timer
	onSuccess      func(values ...any)
	onError        func(err error)
}

// SendRequest sends call to dev. onSuccess receives the unpacked response
// values, or no values when the function does not expect a response.
// Either callback may be nil.
func (c *IPConnection) SendRequest(dev *device.Device, call Call, onSuccess func(values ...any), onError func(err error)) {
	c.post(func() {
		c.sendRequest(dev, call, onSuccess, onError, false)
	}, func() {
		callError(onError, wire.ErrNotConnected)
	})
}

// SendRequestChecked is SendRequest preceded by a device validity check:
// a replaced device fails with ErrDeviceReplaced and a device of the wrong
// type with ErrWrongDeviceType.
func (c *IPConnection) SendRequestChecked(dev *device.Device, call Call, onSuccess func(values ...any), onError func(err error)) {
	c.post(func() {
		c.sendRequest(dev, call, onSuccess, onError, true)
	}, func() {
		callError(onError, wire.ErrNotConnected)
	})
}

// Request is a blocking, validity-checked SendRequest.
func (c *IPConnection) Request(ctx context.Context, dev *device.Device, call Call) ([]any, error) {
	return c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.SendRequestChecked(dev, call, onSuccess, onError)
	})
}

// GetIdentity queries the identity of dev without a validity check.
func (c *IPConnection) GetIdentity(ctx context.Context, dev *device.Device) (device.Identity, error) {
	values, err := c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.SendRequest(dev, identityCall(), onSuccess, onError)
	})
	if err != nil {
		return device.Identity{}, err
	}
	return device.ParseIdentity(values)
}

func identityCall() Call {
	return Call{
		FunctionID:     device.FunctionGetIdentity,
		ResponseLength: device.IdentityResponseLength,
		UnpackFormat:   device.IdentityFormat,
	}
}

type result struct {
	values []any
	err    error
}

// await adapts a callback-style operation to a blocking call. It gives up
// when ctx ends or the connection is closed.
func (c *IPConnection) await(ctx context.Context, start func(onSuccess func(...any), onError func(error))) ([]any, error) {
	ch := make(chan result, 1)
	start(func(values ...any) {
		select {
		case ch <- result{values: values}:
		default:
		}
	}, func(err error) {
		select {
		case ch <- result{err: err}:
		default:
		}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.values, r.err
	case <-c.loop.stopped():
		select {
		case r := <-ch:
			return r.values, r.err
		default:
			return nil, wire.ErrNotConnected
		}
	}
}

func callError(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}

func callSuccess(onSuccess func(...any), values ...any) {
	if onSuccess != nil {
		onSuccess(values...)
	}
}

func errorCode(err error) (wire.ErrorCode, bool) {
	var e *wire.Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func (c *IPConnection) sendRequest(dev *device.Device, call Call, onSuccess func(...any), onError func(error), checkValidity bool) {
	if c.State() != connection.StateConnected {
		callError(onError, wire.ErrNotConnected)
		return
	}

	if !checkValidity {
		c.sendRequestInternal(dev, call, onSuccess, onError)
		return
	}

	c.checkValidity(dev, func() {
		c.sendRequestInternal(dev, call, onSuccess, onError)
	}, onError)
}

// checkValidity runs proceed once dev is known to be current and of the
// expected type. A pending identity check queries the device first.
func (c *IPConnection) checkValidity(dev *device.Device, proceed func(), onError func(error)) {
	if dev.Replaced() {
		callError(onError, wire.ErrDeviceReplaced)
		return
	}

	switch dev.IdentityCheck() {
	case device.IdentityMatch:
		proceed()
		return
	case device.IdentityMismatch:
		callError(onError, wire.ErrWrongDeviceType)
		return
	}

	c.sendRequest(dev, identityCall(), func(values ...any) {
		id, err := device.ParseIdentity(values)
		if err != nil {
			callError(onError, wire.Errorf(wire.CodeWrongResponseLength, "identity: %v", err))
			return
		}
		if id.DeviceIdentifier != dev.DeviceIdentifier() {
			dev.SetIdentityCheck(device.IdentityMismatch)
			c.debugLog("device identifier mismatch",
				"uid", dev.UIDString(),
				"expected", dev.DeviceIdentifier(),
				"actual", id.DeviceIdentifier)
			callError(onError, wire.ErrWrongDeviceType)
			return
		}
		dev.SetIdentityCheck(device.IdentityMatch)
		proceed()
	}, onError, false)
}

func (c *IPConnection) sendRequestInternal(dev *device.Device, call Call, onSuccess func(...any), onError func(error)) {
	responseExpected, err := dev.GetResponseExpected(call.FunctionID)
	if err != nil {
		callError(onError, err)
		return
	}

	pkt, err := c.buildPacket(dev.UID(), call.FunctionID, call.Args, call.PackFormat, responseExpected)
	if err != nil {
		callError(onError, err)
		return
	}

	var er *expectedResponse
	if responseExpected {
		er = &expectedResponse{
			functionID:     call.FunctionID,
			sequenceNumber: pkt.SequenceNumber,
			unpackFormat:   call.UnpackFormat,
			responseLength: call.ResponseLength,
			onSuccess:      onSuccess,
			onError:        onError,
		}
		er.timer = time.AfterFunc(c.Timeout(), func() {
			c.loop.post(func() { c.expireRequest(dev, er) })
		})
		c.expected[dev] = append(c.expected[dev], er)
	}

	if err := c.writePacket(pkt); err != nil {
		if er != nil {
			c.removeExpected(dev, er)
			er.timer.Stop()
		}
		callError(onError, err)
		return
	}

	if !responseExpected {
		callSuccess(onSuccess)
	}
}

// buildPacket packs args and allocates a sequence number.
func (c *IPConnection) buildPacket(uid uint32, fid uint8, args []any, packFormat string, responseExpected bool) (*wire.Packet, error) {
	var payload []byte
	if packFormat != "" {
		p, err := wire.Pack(args, packFormat)
		if err != nil {
			return nil, wire.Errorf(wire.CodeInvalidParameter, "function %d: %v", fid, err)
		}
		payload = p
	}

	pkt, err := wire.NewPacket(wire.Header{
		UID:              uid,
		FunctionID:       fid,
		SequenceNumber:   c.seq.Next(),
		ResponseExpected: responseExpected,
	}, payload)
	if err != nil {
		return nil, wire.Errorf(wire.CodeInvalidParameter, "function %d: %v", fid, err)
	}
	return pkt, nil
}

// writePacket sends pkt on the current socket.
func (c *IPConnection) writePacket(pkt *wire.Packet) error {
	if c.sock == nil {
		return wire.ErrNotConnected
	}
	if err := c.sock.Send(pkt.Bytes()); err != nil {
		c.logError(log.LayerTransport, err)
		return wire.Errorf(wire.CodeNotConnected, "%v", err)
	}
	c.logPacket(log.DirectionOut, pkt)
	return nil
}

func (c *IPConnection) removeExpected(dev *device.Device, er *expectedResponse) bool {
	list := c.expected[dev]
	for i, e := range list {
		if e == er {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(c.expected, dev)
			} else {
				c.expected[dev] = list
			}
			return true
		}
	}
	return false
}

func (c *IPConnection) expireRequest(dev *device.Device, er *expectedResponse) {
	if !c.removeExpected(dev, er) {
		return
	}
	c.debugLog("request timed out",
		"uid", dev.UIDString(),
		"fid", er.functionID,
		"seq", er.sequenceNumber)
	callError(er.onError, wire.ErrTimeout)
}

// handleResponse routes a response to a running stream or to the
// matching expected response. Unmatched responses are dropped.
func (c *IPConnection) handleResponse(pkt *wire.Packet) {
	dev, ok := c.devices.Get(pkt.UID)
	if !ok {
		return
	}

	if st := dev.Stream(pkt.FunctionID); st != nil {
		c.handleStreamResponse(dev, pkt, st)
		return
	}

	var er *expectedResponse
	for _, e := range c.expected[dev] {
		if e.functionID == pkt.FunctionID && e.sequenceNumber == pkt.SequenceNumber {
			er = e
			break
		}
	}
	if er == nil {
		return
	}
	er.timer.Stop()
	c.removeExpected(dev, er)

	if err := wire.DeviceError(pkt.ErrorCode); err != nil {
		callError(er.onError, err)
		return
	}

	want := er.responseLength
	if want == 0 {
		want = wire.HeaderSize
	}
	if pkt.Length != want {
		callError(er.onError, wire.Errorf(wire.CodeWrongResponseLength, "got %d, want %d", pkt.Length, want))
		return
	}

	var values []any
	if er.unpackFormat != "" {
		v, err := wire.Unpack(pkt.Payload, er.unpackFormat)
		if err != nil {
			callError(er.onError, wire.Errorf(wire.CodeWrongResponseLength, "%v", err))
			return
		}
		values = v
	}
	callSuccess(er.onSuccess, values...)
}

// failAllPending fails every outstanding request and running stream.
func (c *IPConnection) failAllPending(err error) {
	expected := c.expected
	c.expected = make(map[*device.Device][]*expectedResponse)

	for _, list := range expected {
		for _, er := range list {
			er.timer.Stop()
			callError(er.onError, err)
		}
	}

	for _, dev := range c.devices.All() {
		dev.Streams(func(_ uint8, st *device.StreamState) {
			if st.Running {
				c.finishStream(dev, st, func() { callError(st.OnError, err) })
			}
		})
	}
}
