// Package log provides protocol capture for TFP connections.
//
// It is separate from operational logging (slog): protocol capture records
// every packet, state change and control broadcast as a machine-readable
// event trace for debugging daemons and devices.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For analysis: write to a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("session.tlog")
//
//	// Both: Combine drops nil loggers and collapses single ones
//	cfg.ProtocolLogger = log.Combine(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw socket bytes (FrameEvent)
//   - Wire: decoded packet headers (PacketEvent)
//   - Engine: connection and stream state changes (StateChangeEvent)
//
// Disconnect probes and enumerate broadcasts are ControlMsgEvents; errors
// have their own ErrorEventData.
//
// # File Format
//
// Capture files (.tlog) start with a CBOR FileHeader carrying a magic
// string and FileFormatVersion, followed by CBOR-encoded events. Readers
// refuse files without the header or with a newer version. Reader.NextPacket
// rebuilds the wire packets of a capture. The tfp-log tool views, filters,
// exports and summarises capture files.
package log
