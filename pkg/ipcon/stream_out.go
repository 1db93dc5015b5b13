package ipcon

import (
	"context"

	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// writeCall is a WriteStream deferred behind a running transfer.
type writeCall struct {
	c         *IPConnection
	dev       *device.Device
	fid       uint8
	prefix    []any
	data      any
	onSuccess func(...any)
	onError   func(error)
}

func (w writeCall) Replay() {
	w.c.writeStream(w.dev, w.fid, w.prefix, w.data, w.onSuccess, w.onError)
}

// WriteStream sends data through the out-stream function fid, one chunk
// per low-level request. prefix fills the plain value positions of the
// request. onSuccess receives the values of the last response, with the
// accumulated total in the written position for short-write streams.
//
// Calls for a function that is already streaming run in order once the
// running transfer ends.
func (c *IPConnection) WriteStream(dev *device.Device, fid uint8, prefix []any, data any, onSuccess func(values ...any), onError func(err error)) {
	c.post(func() {
		c.writeStream(dev, fid, prefix, data, onSuccess, onError)
	}, func() {
		callError(onError, wire.ErrNotConnected)
	})
}

// WriteStreamContext is a blocking WriteStream.
func (c *IPConnection) WriteStreamContext(ctx context.Context, dev *device.Device, fid uint8, prefix []any, data any) ([]any, error) {
	return c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.WriteStream(dev, fid, prefix, data, onSuccess, onError)
	})
}

func (c *IPConnection) writeStream(dev *device.Device, fid uint8, prefix []any, data any, onSuccess func(...any), onError func(error)) {
	sd, ok := dev.StreamDescriptor(fid)
	if !ok || sd.Direction != device.StreamOut {
		callError(onError, wire.Errorf(wire.CodeInvalidFunctionID, "function %d is not an out stream", fid))
		return
	}

	n := wire.SliceLen(data)
	if n < 0 {
		callError(onError, wire.Errorf(wire.CodeInvalidParameter, "stream data must be a slice, got %T", data))
		return
	}
	if n > MaxStreamLength {
		callError(onError, wire.Errorf(wire.CodeInvalidParameter, "stream length %d exceeds %d", n, MaxStreamLength))
		return
	}

	length := n
	if sd.FixedLength > 0 {
		length = sd.FixedLength
	}

	responseExpected, err := dev.GetResponseExpected(fid)
	if err != nil {
		callError(onError, err)
		return
	}
	if !responseExpected {
		c.writeStreamUnacknowledged(dev, fid, sd, prefix, data, length, onSuccess, onError)
		return
	}

	st := dev.Stream(fid)
	if st.Running {
		st.Enqueue(writeCall{c: c, dev: dev, fid: fid, prefix: prefix, data: data, onSuccess: onSuccess, onError: onError})
		return
	}

	c.startStream(dev, fid, st, onSuccess, onError)
	st.Buffer = data
	st.Args = prefix
	st.Length = length
	st.ChunkLength = sd.ChunkSize
	c.sendWriteChunk(dev, fid, sd, st)
}

// sendWriteChunk sends the chunk at st.ChunkOffset and advances the offset.
func (c *IPConnection) sendWriteChunk(dev *device.Device, fid uint8, sd device.StreamDescriptor, st *device.StreamState) {
	args, err := writeChunkArgs(sd, st.Args, st.Buffer, st.Length, st.ChunkOffset)
	if err != nil {
		c.failStream(dev, st, err)
		return
	}
	st.ChunkOffset += sd.ChunkSize
	c.sendStreamRequest(dev, fid, sd, st, args)
}

// writeStreamUnacknowledged sends every chunk without waiting for
// responses and reports success once all chunks are written.
func (c *IPConnection) writeStreamUnacknowledged(dev *device.Device, fid uint8, sd device.StreamDescriptor, prefix []any, data any, length int, onSuccess func(...any), onError func(error)) {
	if !c.connected() {
		callError(onError, wire.ErrNotConnected)
		return
	}

	c.checkValidity(dev, func() {
		n := wire.SliceLen(data)
		for offset := 0; offset == 0 || (!sd.SingleChunk && offset < n); offset += sd.ChunkSize {
			args, err := writeChunkArgs(sd, prefix, data, length, offset)
			if err != nil {
				callError(onError, err)
				return
			}
			pkt, err := c.buildPacket(dev.UID(), fid, args, sd.PackFormat, false)
			if err != nil {
				callError(onError, err)
				return
			}
			if err := c.writePacket(pkt); err != nil {
				callError(onError, err)
				return
			}
		}
		callSuccess(onSuccess)
	}, onError)
}

// handleWriteResponse advances an out stream after a chunk response.
func (c *IPConnection) handleWriteResponse(dev *device.Device, pkt *wire.Packet, sd device.StreamDescriptor, st *device.StreamState) {
	if err := wire.DeviceError(pkt.ErrorCode); err != nil {
		c.failStream(dev, st, err)
		return
	}

	dataLen := wire.SliceLen(st.Buffer)

	if sd.ResponseEmpty {
		if sd.SingleChunk || st.ChunkOffset >= dataLen {
			c.finishStream(dev, st, func() { callSuccess(st.OnSuccess) })
			return
		}
		c.sendWriteChunk(dev, pkt.FunctionID, sd, st)
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

	result := values
	if len(result) > len(sd.ResponseRoles) {
		result = result[:len(sd.ResponseRoles)]
	}

	if sd.SingleChunk {
		c.finishStream(dev, st, func() { callSuccess(st.OnSuccess, result...) })
		return
	}

	writtenIdx := device.IndexOf(sd.ResponseRoles, device.RoleWritten)
	done := func() {
		c.finishStream(dev, st, func() {
			if sd.ShortWrite && writtenIdx >= 0 && writtenIdx < len(result) {
				result[writtenIdx] = st.Written
			}
			callSuccess(st.OnSuccess, result...)
		})
	}

	if sd.ShortWrite && writtenIdx >= 0 && writtenIdx < len(values) {
		written, ok := intValue(values[writtenIdx])
		if ok {
			st.Written += written
			if written < sd.ChunkSize {
				done()
				return
			}
		}
	}

	if st.ChunkOffset < dataLen {
		c.sendWriteChunk(dev, pkt.FunctionID, sd, st)
		return
	}
	done()
}

// writeChunkArgs builds the low-level request values for the chunk at offset.
func writeChunkArgs(sd device.StreamDescriptor, prefix []any, data any, length, offset int) ([]any, error) {
	chunk, err := wire.SliceChunk(data, offset, sd.ChunkSize, sd.Padding)
	if err != nil {
		return nil, wire.Errorf(wire.CodeInvalidParameter, "%v", err)
	}

	args := make([]any, 0, len(sd.RequestRoles))
	next := 0
	for _, role := range sd.RequestRoles {
		switch role {
		case device.RoleLength:
			args = append(args, length)
		case device.RoleOffset:
			args = append(args, offset)
		case device.RoleData:
			args = append(args, chunk)
		default:
			if next >= len(prefix) {
				return nil, wire.Errorf(wire.CodeInvalidParameter, "missing stream argument %d", next)
			}
			args = append(args, prefix[next])
			next++
		}
	}
	return args, nil
}
