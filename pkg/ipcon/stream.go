package ipcon

import (
	"fmt"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// startStream marks st running for a new transfer.
func (c *IPConnection) startStream(dev *device.Device, fid uint8, st *device.StreamState, onSuccess func(...any), onError func(error)) {
	st.Running = true
	st.OnSuccess = onSuccess
	st.OnError = onError
	c.debugLog("stream started", "uid", dev.UIDString(), "fid", fid)
	c.logStateChange(log.StateEntityStream, "IDLE", "RUNNING", streamName(dev, fid))
}

// finishStream ends the running transfer of st. deliver runs first, then
// the state resets and the oldest queued call is replayed.
func (c *IPConnection) finishStream(dev *device.Device, st *device.StreamState, deliver func()) {
	if deliver != nil {
		deliver()
	}
	st.Reset()
	c.logStateChange(log.StateEntityStream, "RUNNING", "IDLE", dev.UIDString())

	if next, ok := st.Dequeue(); ok {
		next.Replay()
	}
}

// failStream ends the running transfer of st with err.
func (c *IPConnection) failStream(dev *device.Device, st *device.StreamState, err error) {
	c.finishStream(dev, st, func() { callError(st.OnError, err) })
}

// sendStreamRequest sends one low-level stream request and arms the
// per-chunk timer. Stream requests never create expected responses;
// their responses are routed by function ID.
func (c *IPConnection) sendStreamRequest(dev *device.Device, fid uint8, sd device.StreamDescriptor, st *device.StreamState, args []any) {
	gen := st.Generation
	fail := func(err error) {
		if st.Running && st.Generation == gen {
			c.failStream(dev, st, err)
		}
	}

	if c.State() != connection.StateConnected {
		fail(wire.ErrNotConnected)
		return
	}

	c.checkValidity(dev, func() {
		if !st.Running || st.Generation != gen {
			return
		}
		pkt, err := c.buildPacket(dev.UID(), fid, args, sd.PackFormat, true)
		if err != nil {
			fail(err)
			return
		}
		c.armStreamTimer(dev, fid, st)
		if err := c.writePacket(pkt); err != nil {
			fail(err)
		}
	}, fail)
}

func (c *IPConnection) armStreamTimer(dev *device.Device, fid uint8, st *device.StreamState) {
	stopStreamTimer(st)

	var t *time.Timer
	t = time.AfterFunc(c.Timeout(), func() {
		c.loop.post(func() {
			if st.Timer != t {
				return
			}
			st.Timer = nil
			c.debugLog("stream chunk timed out", "uid", dev.UIDString(), "fid", fid)
			c.failStream(dev, st, wire.ErrTimeout)
		})
	})
	st.Timer = t
}

func stopStreamTimer(st *device.StreamState) {
	if st.Timer != nil {
		st.Timer.Stop()
		st.Timer = nil
	}
}

// handleStreamResponse routes a response for a streaming function. A
// response for an idle stream resets it.
func (c *IPConnection) handleStreamResponse(dev *device.Device, pkt *wire.Packet, st *device.StreamState) {
	if !st.Running {
		st.Reset()
		return
	}
	stopStreamTimer(st)

	sd, _ := dev.StreamDescriptor(pkt.FunctionID)
	if sd.Direction == device.StreamOut {
		c.handleWriteResponse(dev, pkt, sd, st)
	} else {
		c.handleReadResponse(dev, pkt, sd, st)
	}
}

// streamValue returns the value at role in values.
func streamValue(roles []device.StreamRole, values []any, role device.StreamRole) (any, bool) {
	i := device.IndexOf(roles, role)
	if i < 0 || i >= len(values) {
		return nil, false
	}
	return values[i], true
}

// intValue converts an unpacked integer to int.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

// mapStreamResult builds the caller-visible values: RoleValue positions
// pass through, the data position carries data, and length, offset and
// written positions are dropped.
func mapStreamResult(roles []device.StreamRole, values []any, data any) []any {
	out := make([]any, 0, len(roles))
	for i, role := range roles {
		switch role {
		case device.RoleData:
			out = append(out, data)
		case device.RoleValue:
			if i < len(values) {
				out = append(out, values[i])
			}
		}
	}
	return out
}

func streamName(dev *device.Device, fid uint8) string {
	return fmt.Sprintf("%s/%d", dev.UIDString(), fid)
}
