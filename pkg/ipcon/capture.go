package ipcon

import (
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

func (c *IPConnection) newEvent(dir log.Direction, layer log.Layer, category log.Category) log.Event {
	return newEvent(c.connID, c.remoteAddr, dir, layer, category)
}

func newEvent(connID, remoteAddr string, dir log.Direction, layer log.Layer, category log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        layer,
		Category:     category,
		RemoteAddr:   remoteAddr,
	}
}

// logPacket records a decoded packet at the wire layer.
func (c *IPConnection) logPacket(dir log.Direction, pkt *wire.Packet) {
	ev := c.newEvent(dir, log.LayerWire, log.CategoryMessage)

	typ := log.PacketTypeRequest
	switch {
	case pkt.IsCallback():
		typ = log.PacketTypeCallback
	case dir == log.DirectionIn:
		typ = log.PacketTypeResponse
	}

	if pkt.UID != wire.BroadcastUID {
		ev.DeviceUID = wire.Base58Encode(pkt.UID)
	}
	ev.Packet = &log.PacketEvent{
		Type:             typ,
		UID:              pkt.UID,
		FunctionID:       pkt.FunctionID,
		SequenceNumber:   pkt.SequenceNumber,
		Length:           pkt.Length,
		ResponseExpected: pkt.ResponseExpected,
		ErrorCode:        pkt.ErrorCode,
		Payload:          pkt.Payload,
	}
	c.protoLog.Log(ev)
}

func (c *IPConnection) logStateChange(entity log.StateEntity, oldState, newState, reason string) {
	ev := c.newEvent(log.DirectionIn, log.LayerEngine, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	c.protoLog.Log(ev)
}

func (c *IPConnection) logControl(msg log.ControlMsgType) {
	c.protoLog.Log(controlEvent(c.connID, c.remoteAddr, msg))
}

func controlEvent(connID, remoteAddr string, msg log.ControlMsgType) log.Event {
	ev := newEvent(connID, remoteAddr, log.DirectionOut, log.LayerEngine, log.CategoryControl)
	ev.ControlMsg = &log.ControlMsgEvent{Type: msg}
	return ev
}

func (c *IPConnection) logError(layer log.Layer, err error) {
	ev := c.newEvent(log.DirectionIn, layer, log.CategoryError)
	ev.Error = &log.ErrorEventData{Layer: layer, Message: err.Error()}
	if code, ok := errorCode(err); ok {
		n := int(code)
		ev.Error.Code = &n
	}
	c.protoLog.Log(ev)
}
