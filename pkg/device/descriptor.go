package device

import (
	"errors"
	"fmt"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// ErrInvalidDescriptor indicates an inconsistent descriptor table.
var ErrInvalidDescriptor = errors.New("invalid device descriptor")

// ResponseExpectedFlag describes whether a function's requests expect a response.
type ResponseExpectedFlag uint8

const (
	// ResponseExpectedInvalid marks an unknown function.
	ResponseExpectedInvalid ResponseExpectedFlag = 0

	// ResponseExpectedAlwaysTrue is fixed; getters always answer.
	ResponseExpectedAlwaysTrue ResponseExpectedFlag = 1

	// ResponseExpectedTrue is mutable and currently enabled.
	ResponseExpectedTrue ResponseExpectedFlag = 2

	// ResponseExpectedFalse is mutable and currently disabled.
	ResponseExpectedFalse ResponseExpectedFlag = 3
)

// String returns the flag name.
func (f ResponseExpectedFlag) String() string {
	switch f {
	case ResponseExpectedAlwaysTrue:
		return "ALWAYS_TRUE"
	case ResponseExpectedTrue:
		return "TRUE"
	case ResponseExpectedFalse:
		return "FALSE"
	default:
		return "INVALID"
	}
}

// CallbackFormat describes the payload of a callback packet.
type CallbackFormat struct {
	// Length is the total packet length including the header.
	Length uint8

	// Format is the payload format string.
	Format string
}

// StreamDirection tells whether a streaming function sends or receives data.
type StreamDirection uint8

const (
	// StreamOut splits caller data into chunks sent to the device.
	StreamOut StreamDirection = iota

	// StreamIn reassembles chunks returned by the device.
	StreamIn
)

// StreamRole labels a position in a low-level value list.
type StreamRole uint8

const (
	// RoleValue is an ordinary value passed through unchanged.
	RoleValue StreamRole = iota

	// RoleLength is the total stream length.
	RoleLength

	// RoleOffset is the chunk offset inside the stream.
	RoleOffset

	// RoleData is the chunk data.
	RoleData

	// RoleWritten is the number of elements the device accepted.
	RoleWritten
)

// IndexOf returns the position of role in roles, or -1.
func IndexOf(roles []StreamRole, role StreamRole) int {
	for i, r := range roles {
		if r == role {
			return i
		}
	}
	return -1
}

// StreamDescriptor configures a chunked low-level function.
type StreamDescriptor struct {
	Direction StreamDirection

	// ChunkSize is the number of elements per chunk. It is used both to
	// split outgoing data and to detect a short write.
	ChunkSize int

	// PackFormat and UnpackFormat describe the low-level request and response.
	PackFormat   string
	UnpackFormat string

	// ResponseLength is the total length of a low-level response packet.
	ResponseLength uint8

	// RequestRoles maps low-level request values (out streams only).
	// RoleValue positions are filled from the caller's prefix arguments.
	RequestRoles []StreamRole

	// ResponseRoles maps low-level response values.
	ResponseRoles []StreamRole

	// FixedLength, when non-zero, is sent instead of the data length.
	FixedLength int

	// SingleChunk streams carry their data in one packet.
	SingleChunk bool

	// ShortWrite responses report how many elements were written; fewer
	// than ChunkSize ends the stream early.
	ShortWrite bool

	// ResponseEmpty streams deliver no values on completion.
	ResponseEmpty bool

	// Padding fills the last chunk (nil pads with the zero value).
	Padding any
}

// HighLevelCallbackDescriptor configures reassembly of a chunked callback.
type HighLevelCallbackDescriptor struct {
	// Roles maps the low-level callback values.
	Roles []StreamRole

	// FixedLength, when non-zero, replaces the length value.
	FixedLength int

	// SingleChunk callbacks carry no offset.
	SingleChunk bool
}

// Descriptor is the static description of a device type.
type Descriptor struct {
	DeviceIdentifier uint16
	DisplayName      string
	APIVersion       [3]uint8

	ResponseExpected   map[uint8]ResponseExpectedFlag
	CallbackFormats    map[uint8]CallbackFormat
	Streams            map[uint8]StreamDescriptor
	HighLevelCallbacks map[uint8]HighLevelCallbackDescriptor
}

// Validate checks the descriptor's internal consistency.
func (d *Descriptor) Validate() error {
	for id, cf := range d.CallbackFormats {
		size, err := wire.FormatSize(cf.Format)
		if err != nil {
			return fmt.Errorf("%w: callback %d: %w", ErrInvalidDescriptor, id, err)
		}
		if wire.HeaderSize+size != int(cf.Length) {
			return fmt.Errorf("%w: callback %d length %d does not match format %q",
				ErrInvalidDescriptor, id, cf.Length, cf.Format)
		}
	}

	for fid, sd := range d.Streams {
		if _, ok := d.ResponseExpected[fid]; !ok {
			return fmt.Errorf("%w: stream function %d has no response-expected flag", ErrInvalidDescriptor, fid)
		}
		if sd.ChunkSize <= 0 {
			return fmt.Errorf("%w: stream function %d has no chunk size", ErrInvalidDescriptor, fid)
		}
		if sd.Direction == StreamIn && IndexOf(sd.ResponseRoles, RoleData) < 0 {
			return fmt.Errorf("%w: stream function %d has no data role", ErrInvalidDescriptor, fid)
		}
		if sd.Direction == StreamOut && IndexOf(sd.RequestRoles, RoleData) < 0 {
			return fmt.Errorf("%w: stream function %d has no data role", ErrInvalidDescriptor, fid)
		}
	}

	for id, hl := range d.HighLevelCallbacks {
		if _, ok := d.CallbackFormats[id]; !ok {
			return fmt.Errorf("%w: high-level callback %d has no low-level format", ErrInvalidDescriptor, id)
		}
		if IndexOf(hl.Roles, RoleData) < 0 {
			return fmt.Errorf("%w: high-level callback %d has no data role", ErrInvalidDescriptor, id)
		}
	}

	return nil
}
