package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slogger := slog.New(handler)

	adapter := NewSlogAdapter(slogger)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame: &FrameEvent{
			Size: 256,
			Data: []byte{0x01, 0x02},
		},
	})

	output := buf.String()
	if output == "" {
		t.Fatal("no output produced")
	}

	// Parse JSON log entry
	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	// Verify key fields
	if logEntry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v, want %q", logEntry["conn_id"], "conn-123")
	}
	if logEntry["direction"] != "IN" {
		t.Errorf("direction: got %v, want %q", logEntry["direction"], "IN")
	}
	if logEntry["layer"] != "TRANSPORT" {
		t.Errorf("layer: got %v, want %q", logEntry["layer"], "TRANSPORT")
	}
	if logEntry["frame_size"] != float64(256) {
		t.Errorf("frame_size: got %v, want %v", logEntry["frame_size"], 256)
	}
}

func TestSlogAdapterLogsPacketEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-456",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		DeviceUID:    "XYZ",
		Packet: &PacketEvent{
			Type:           PacketTypeResponse,
			UID:            12345,
			FunctionID:     1,
			SequenceNumber: 7,
			Length:         10,
			ErrorCode:      2,
		},
	})

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if logEntry["packet_type"] != "RESPONSE" {
		t.Errorf("packet_type: got %v, want %q", logEntry["packet_type"], "RESPONSE")
	}
	if logEntry["seq"] != float64(7) {
		t.Errorf("seq: got %v, want %v", logEntry["seq"], 7)
	}
	if logEntry["device_error"] != float64(2) {
		t.Errorf("device_error: got %v, want %v", logEntry["device_error"], 2)
	}
	if logEntry["uid"] != "XYZ" {
		t.Errorf("uid: got %v, want %q", logEntry["uid"], "XYZ")
	}
	if _, ok := logEntry["response_expected"]; ok {
		t.Error("response_expected should be omitted when false")
	}
}

func TestSlogAdapterEngineEvents(t *testing.T) {
	code := 31
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name: "auto reconnect",
			event: Event{
				ConnectionID: "6f1c2a9e",
				Layer:        LayerEngine,
				Category:     CategoryState,
				RemoteAddr:   "127.0.0.1:4223",
				StateChange: &StateChangeEvent{
					Entity:   StateEntityConnection,
					OldState: "DISCONNECTED",
					NewState: "CONNECTED",
					Reason:   "AUTO_RECONNECT",
				},
			},
			want: map[string]any{"conn_id": "6f1c2a9e", "remote": "127.0.0.1:4223", "entity": "CONNECTION", "reason": "AUTO_RECONNECT"},
		},
		{
			name: "disconnect probe",
			event: Event{
				Direction:  DirectionOut,
				Layer:      LayerEngine,
				Category:   CategoryControl,
				ControlMsg: &ControlMsgEvent{Type: ControlMsgDisconnectProbe},
			},
			want: map[string]any{"direction": "OUT", "ctrl_type": "DISCONNECT_PROBE"},
		},
		{
			name: "timeout",
			event: Event{
				Layer:     LayerEngine,
				Category:  CategoryError,
				DeviceUID: "XYZ",
				Error:     &ErrorEventData{Layer: LayerEngine, Message: "request timed out", Code: &code, Context: "fid 1"},
			},
			want: map[string]any{"uid": "XYZ", "error_msg": "request timed out", "error_code": float64(31), "error_context": "fid 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
			tt.event.Timestamp = time.Now()
			adapter.Log(tt.event)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}
			for k, v := range tt.want {
				if entry[k] != v {
					t.Errorf("%s: got %v, want %v", k, entry[k], v)
				}
			}
		})
	}
}
