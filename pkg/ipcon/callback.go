package ipcon

import (
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// handlePacket dispatches one framed packet read from socket generation gen.
func (c *IPConnection) handlePacket(gen uint64, raw []byte) {
	if gen != c.sockGen {
		return
	}

	pkt, err := wire.ParsePacket(raw)
	if err != nil {
		c.debugLog("dropping malformed packet", "error", err)
		c.logError(log.LayerWire, err)
		return
	}
	c.logPacket(log.DirectionIn, pkt)

	if pkt.IsCallback() {
		c.handleCallback(pkt)
		return
	}
	c.handleResponse(pkt)
}

// handleCallback delivers an enumerate or device callback. Callbacks
// with an unexpected length are dropped.
func (c *IPConnection) handleCallback(pkt *wire.Packet) {
	if pkt.FunctionID == CallbackEnumerate {
		c.handleEnumerate(pkt)
		return
	}

	dev, ok := c.devices.Get(pkt.UID)
	if !ok {
		return
	}

	cf, ok := dev.CallbackFormat(pkt.FunctionID)
	if !ok {
		return
	}
	lowLevel := dev.Callback(pkt.FunctionID)
	highLevel := dev.HighLevelCallback(pkt.FunctionID)
	if lowLevel == nil && highLevel == nil {
		return
	}
	if pkt.Length != cf.Length {
		c.debugLog("dropping callback with wrong length",
			"uid", dev.UIDString(),
			"id", pkt.FunctionID,
			"length", pkt.Length,
			"expected", cf.Length)
		return
	}

	values, err := wire.Unpack(pkt.Payload, cf.Format)
	if err != nil {
		c.logError(log.LayerWire, err)
		return
	}

	if highLevel != nil {
		c.reassembleCallback(dev, pkt.FunctionID, values, highLevel)
	}
	if lowLevel != nil {
		lowLevel(values...)
	}
}

// reassembleCallback feeds one low-level callback into the high-level
// buffer of id. A complete stream is delivered with the data in place of
// the chunk. A chunk at the wrong offset delivers nil data once and
// drops the partial stream.
func (c *IPConnection) reassembleCallback(dev *device.Device, id uint8, values []any, fn device.CallbackFunc) {
	hl, ok := dev.HighLevelCallbackDescriptor(id)
	if !ok {
		return
	}
	buf := dev.HighLevelBuffer(id)

	length := hl.FixedLength
	if length == 0 {
		if v, ok := streamValue(hl.Roles, values, device.RoleLength); ok {
			length, _ = intValue(v)
		}
	}
	offset := 0
	if !hl.SingleChunk {
		if v, ok := streamValue(hl.Roles, values, device.RoleOffset); ok {
			offset, _ = intValue(v)
		}
	}
	chunk, _ := streamValue(hl.Roles, values, device.RoleData)

	var (
		data    any
		deliver bool
		err     error
	)
	if !buf.Active() {
		if offset != 0 {
			// Tail of a stream that started before we listened.
			return
		}
		if buf.Data, err = wire.SliceAppend(nil, chunk); err != nil {
			c.logError(log.LayerEngine, err)
			buf.Reset()
			return
		}
		if wire.SliceLen(buf.Data) >= length {
			data, deliver = wire.SliceTruncate(buf.Data, length), true
		}
	} else if offset == wire.SliceLen(buf.Data) {
		if buf.Data, err = wire.SliceAppend(buf.Data, chunk); err != nil {
			c.logError(log.LayerEngine, err)
			buf.Reset()
			return
		}
		if wire.SliceLen(buf.Data) >= length {
			data, deliver = wire.SliceTruncate(buf.Data, length), true
		}
	} else {
		c.debugLog("callback stream out of sync", "uid", dev.UIDString(), "id", id)
		deliver = true
	}

	if !deliver {
		return
	}
	buf.Reset()
	fn(mapStreamResult(hl.Roles, values, data)...)
}

func (c *IPConnection) handleEnumerate(pkt *wire.Packet) {
	fn := c.enumerateHandler()
	if fn == nil {
		return
	}
	if pkt.Length != enumerateLength {
		c.debugLog("dropping enumerate callback with wrong length", "length", pkt.Length)
		return
	}

	values, err := wire.Unpack(pkt.Payload, enumerateFormat)
	if err != nil {
		c.logError(log.LayerWire, err)
		return
	}
	id, err := device.ParseIdentity(values[:6])
	if err != nil {
		c.logError(log.LayerWire, err)
		return
	}
	typ, _ := values[6].(uint8)

	fn(Enumeration{
		UID:              id.UID,
		ConnectedUID:     id.ConnectedUID,
		Position:         id.Position,
		HardwareVersion:  id.HardwareVersion,
		FirmwareVersion:  id.FirmwareVersion,
		DeviceIdentifier: id.DeviceIdentifier,
		EnumerationType:  EnumerationType(typ),
	})
}

// Enumerate asks every device behind the daemon to announce itself
// through the enumerate callback.
func (c *IPConnection) Enumerate(onError func(err error)) {
	c.post(func() {
		if !c.connected() {
			callError(onError, wire.ErrNotConnected)
			return
		}
		pkt, err := c.buildPacket(wire.BroadcastUID, FunctionEnumerate, nil, "", false)
		if err != nil {
			callError(onError, err)
			return
		}
		if err := c.writePacket(pkt); err != nil {
			callError(onError, err)
			return
		}
		c.logControl(log.ControlMsgEnumerate)
	}, func() {
		callError(onError, wire.ErrNotConnected)
	})
}
