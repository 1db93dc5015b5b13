package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see packets in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.DeviceUID != "" {
		attrs = append(attrs, slog.String("uid", event.DeviceUID))
	}

	// Add type-specific attributes
	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Packet != nil:
		attrs = append(attrs,
			slog.String("packet_type", event.Packet.Type.String()),
			slog.Uint64("fid", uint64(event.Packet.FunctionID)),
			slog.Uint64("seq", uint64(event.Packet.SequenceNumber)),
			slog.Int("length", int(event.Packet.Length)),
		)
		if event.Packet.ResponseExpected {
			attrs = append(attrs, slog.Bool("response_expected", true))
		}
		if event.Packet.ErrorCode != 0 {
			attrs = append(attrs, slog.Int("device_error", int(event.Packet.ErrorCode)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
