// Package transport provides the TFP socket layer.
//
// The transport layer handles:
//   - splitting the TCP byte stream into packets using the header length byte
//   - serialised packet writes with an optional write deadline
//   - an idle-time disconnect probe that detects half-open connections
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Payload (format strings)     │
//	├────────────────────────────────┤
//	│   8-byte header (length at 4)  │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Disconnect Probe
//
// After 5 seconds without traffic in either direction a header-only packet
// with function ID 128 is written. The daemon ignores it; a failing write
// tears the connection down so the engine can reconnect.
package transport
