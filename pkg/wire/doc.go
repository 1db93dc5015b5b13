// Package wire defines the binary wire format of the TFP protocol.
//
// Every packet starts with an 8-byte little-endian header followed by up to
// 247 bytes of payload:
//
//	offset 0..3  device UID (uint32)
//	offset 4     total packet length including the header
//	offset 5     function ID
//	offset 6     sequence number (bits 4-7), response expected (bit 3), options (bits 1-2)
//	offset 7     error code (bits 6-7), future use (bits 0-5)
//
// # Payload Formats
//
// Payloads are described by format strings of whitespace-separated tokens,
// each a type tag followed by an optional repeat count:
//
//	s  string, NUL padded        c  8-bit char
//	b  int8                      B  uint8
//	h  int16                     H  uint16
//	i  int32                     I  uint32
//	q  int64                     Q  uint64
//	f  float32                   d  float64
//	?  bool (bit-packed when the count is greater than one)
//
// Pack and Unpack convert between Go values and payload bytes.
//
// # Sequence Numbers
//
// Sequence number 0 is reserved for callbacks. Requests use 1..15 and the
// counter wraps back to 1.
package wire
