package ipcon

import (
	"context"

	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// readCall is a ReadStream deferred behind a running transfer.
type readCall struct {
	c         *IPConnection
	dev       *device.Device
	fid       uint8
	args      []any
	onSuccess func(...any)
	onError   func(error)
}

func (r readCall) Replay() {
	r.c.readStream(r.dev, r.fid, r.args, r.onSuccess, r.onError)
}

// ReadStream reads a chunked value through the in-stream function fid.
// args are the low-level request values, repeated for every chunk.
// onSuccess receives the response values with the reassembled data in
// place of the chunk and the length and offset values removed.
func (c *IPConnection) ReadStream(dev *device.Device, fid uint8, args []any, onSuccess func(values ...any), onError func(err error)) {
	c.post(func() {
		c.readStream(dev, fid, args, onSuccess, onError)
	}, func() {
		callError(onError, wire.ErrNotConnected)
	})
}

// ReadStreamContext is a blocking ReadStream.
func (c *IPConnection) ReadStreamContext(ctx context.Context, dev *device.Device, fid uint8, args []any) ([]any, error) {
	return c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.ReadStream(dev, fid, args, onSuccess, onError)
	})
}

func (c *IPConnection) readStream(dev *device.Device, fid uint8, args []any, onSuccess func(...any), onError func(error)) {
	sd, ok := dev.StreamDescriptor(fid)
	if !ok || sd.Direction != device.StreamIn {
		callError(onError, wire.Errorf(wire.CodeInvalidFunctionID, "function %d is not an in stream", fid))
		return
	}

	st := dev.Stream(fid)
	if st.Running {
		st.Enqueue(readCall{c: c, dev: dev, fid: fid, args: args, onSuccess: onSuccess, onError: onError})
		return
	}

	c.startStream(dev, fid, st, onSuccess, onError)
	st.Args = args
	st.ChunkLength = sd.ChunkSize
	c.sendStreamRequest(dev, fid, sd, st, args)
}

// handleReadResponse merges one chunk into an in stream. A chunk at the
// wrong offset switches the stream into out-of-sync mode: the remaining
// chunks are requested and discarded, then the caller gets
// ErrStreamOutOfSync.
func (c *IPConnection) handleReadResponse(dev *device.Device, pkt *wire.Packet, sd device.StreamDescriptor, st *device.StreamState) {
	if err := wire.DeviceError(pkt.ErrorCode); err != nil {
		c.failStream(dev, st, err)
		return
	}
	if len(pkt.Payload) == 0 {
		c.finishStream(dev, st, nil)
		return
	}
	if pkt.Length != sd.ResponseLength {
		c.failStream(dev, st, wire.Errorf(wire.CodeWrongResponseLength, "got %d, want %d", pkt.Length, sd.ResponseLength))
		return
	}

	values, err := wire.Unpack(pkt.Payload, sd.UnpackFormat)
	if err != nil {
		c.failStream(dev, st, wire.Errorf(wire.CodeWrongResponseLength, "%v", err))
		return
	}

	chunk, _ := streamValue(sd.ResponseRoles, values, device.RoleData)
	offset := 0
	if v, ok := streamValue(sd.ResponseRoles, values, device.RoleOffset); ok {
		offset, _ = intValue(v)
	}
	length := sd.FixedLength
	if length == 0 {
		if v, ok := streamValue(sd.ResponseRoles, values, device.RoleLength); ok {
			length, _ = intValue(v)
		}
	}
	st.Length = length

	fid := pkt.FunctionID
	next := func() {
		c.sendStreamRequest(dev, fid, sd, st, st.Args)
	}
	outOfSync := func() {
		if offset+sd.ChunkSize < length {
			st.RunningSubcallOutOfSync = true
			next()
			return
		}
		c.debugLog("stream out of sync", "uid", dev.UIDString(), "fid", fid)
		c.failStream(dev, st, wire.ErrStreamOutOfSync)
	}

	inSync := true
	if st.WaitingFirstChunk {
		st.WaitingFirstChunk = false
		inSync = offset == 0
		st.Buffer, err = wire.SliceAppend(nil, chunk)
		if err != nil {
			c.failStream(dev, st, wire.Errorf(wire.CodeWrongResponseLength, "%v", err))
			return
		}
	}

	if st.RunningSubcallOutOfSync {
		outOfSync()
		return
	}

	buffered := wire.SliceLen(st.Buffer)
	if st.RunningSubcall {
		inSync = offset == buffered
		if inSync && buffered < length {
			st.Buffer, err = wire.SliceAppend(st.Buffer, chunk)
			if err != nil {
				c.failStream(dev, st, wire.Errorf(wire.CodeWrongResponseLength, "%v", err))
				return
			}
			if wire.SliceLen(st.Buffer) < length {
				next()
				return
			}
		}
	} else if inSync && buffered < length {
		st.RunningSubcall = true
		next()
		return
	}

	if !inSync {
		outOfSync()
		return
	}

	data := wire.SliceTruncate(st.Buffer, length)
	result := mapStreamResult(sd.ResponseRoles, values, data)
	c.finishStream(dev, st, func() { callSuccess(st.OnSuccess, result...) })
}
