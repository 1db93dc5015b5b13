package log

import (
	"testing"
	"time"
)

type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.events = append(r.events, event)
}

func TestNoopLoggerAcceptsEveryPayload(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(Event{Frame: &FrameEvent{Size: 8, Data: make([]byte, 8)}})
	logger.Log(Event{Packet: &PacketEvent{Type: PacketTypeCallback, UID: 1, FunctionID: 253}})
	logger.Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgEnumerate}})
	logger.Log(Event{Error: &ErrorEventData{Layer: LayerEngine, Message: "timeout"}})
}

func TestMultiLoggerFansOutInOrder(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(a, b)

	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "c1"})
	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "c2"})

	for name, r := range map[string]*recordingLogger{"a": a, "b": b} {
		if len(r.events) != 2 || r.events[0].ConnectionID != "c1" || r.events[1].ConnectionID != "c2" {
			t.Errorf("logger %s got %+v", name, r.events)
		}
	}
}

func TestMultiLoggerDropsNoopAndFlattens(t *testing.T) {
	a, b, c := &recordingLogger{}, &recordingLogger{}, &recordingLogger{}
	inner := NewMultiLogger(b, c)
	multi := NewMultiLogger(nil, a, NoopLogger{}, inner, &NoopLogger{})

	if multi.Len() != 3 {
		t.Fatalf("Len = %d, want 3", multi.Len())
	}
	multi.Log(Event{ConnectionID: "x"})
	for i, r := range []*recordingLogger{a, b, c} {
		if len(r.events) != 1 {
			t.Errorf("logger %d got %d events", i, len(r.events))
		}
	}
}

func TestCombine(t *testing.T) {
	if _, ok := Combine().(NoopLogger); !ok {
		t.Error("Combine() should be a NoopLogger")
	}
	if _, ok := Combine(nil, NoopLogger{}).(NoopLogger); !ok {
		t.Error("Combine(nil, noop) should be a NoopLogger")
	}

	a := &recordingLogger{}
	if got := Combine(nil, a); got != Logger(a) {
		t.Errorf("Combine with one logger = %T, want the logger itself", got)
	}

	multi, ok := Combine(a, &recordingLogger{}).(*MultiLogger)
	if !ok || multi.Len() != 2 {
		t.Errorf("Combine with two loggers = %#v", multi)
	}
}
