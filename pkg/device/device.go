package device

import (
	"fmt"
	"maps"
	"sync"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// IdentityCheck is the state of the device identifier check.
type IdentityCheck uint8

const (
	// IdentityPending means the identity has not been queried yet.
	IdentityPending IdentityCheck = iota

	// IdentityMatch means the device at the UID has the expected identifier.
	IdentityMatch

	// IdentityMismatch means the device at the UID is of another type.
	IdentityMismatch
)

// String returns the check state name.
func (c IdentityCheck) String() string {
	switch c {
	case IdentityPending:
		return "PENDING"
	case IdentityMatch:
		return "MATCH"
	case IdentityMismatch:
		return "MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// CallbackFunc receives the unpacked values of a callback.
type CallbackFunc func(values ...any)

// Device is one addressable device on a connection.
//
// Response-expected flags, callbacks, the identity check and the replaced
// flag are safe for concurrent use. Stream state is owned by the
// connection's event loop.
type Device struct {
	uid       uint32
	uidString string
	desc      *Descriptor

	mu                 sync.Mutex
	responseExpected   map[uint8]ResponseExpectedFlag
	identityCheck      IdentityCheck
	replaced           bool
	callbacks          map[uint8]CallbackFunc
	highLevelCallbacks map[uint8]CallbackFunc

	streams          map[uint8]*StreamState
	highLevelBuffers map[uint8]*HighLevelBuffer
}

// New creates a device for the base-58 uid. A uid that decodes to zero is
// rejected.
func New(uid string, desc *Descriptor) (*Device, error) {
	n, err := wire.Base58Decode(uid)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %q maps to zero", wire.ErrInvalidUID, uid)
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		uid:                n,
		uidString:          uid,
		desc:               desc,
		responseExpected:   maps.Clone(desc.ResponseExpected),
		callbacks:          make(map[uint8]CallbackFunc),
		highLevelCallbacks: make(map[uint8]CallbackFunc),
		streams:            make(map[uint8]*StreamState, len(desc.Streams)),
		highLevelBuffers:   make(map[uint8]*HighLevelBuffer, len(desc.HighLevelCallbacks)),
	}
	if d.responseExpected == nil {
		d.responseExpected = make(map[uint8]ResponseExpectedFlag)
	}
	if _, ok := d.responseExpected[FunctionGetIdentity]; !ok {
		d.responseExpected[FunctionGetIdentity] = ResponseExpectedAlwaysTrue
	}
	for fid := range desc.Streams {
		d.streams[fid] = NewStreamState()
	}
	for id := range desc.HighLevelCallbacks {
		d.highLevelBuffers[id] = &HighLevelBuffer{}
	}

	return d, nil
}

// UID returns the numeric UID.
func (d *Device) UID() uint32 { return d.uid }

// UIDString returns the base-58 UID.
func (d *Device) UIDString() string { return d.uidString }

// DeviceIdentifier returns the expected device identifier.
func (d *Device) DeviceIdentifier() uint16 { return d.desc.DeviceIdentifier }

// DisplayName returns the human-readable device type name.
func (d *Device) DisplayName() string { return d.desc.DisplayName }

// APIVersion returns the binding API version.
func (d *Device) APIVersion() [3]uint8 { return d.desc.APIVersion }

// Descriptor returns the static descriptor.
func (d *Device) Descriptor() *Descriptor { return d.desc }

// IdentityCheck returns the identity check state.
func (d *Device) IdentityCheck() IdentityCheck {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identityCheck
}

// SetIdentityCheck records the result of an identity query.
func (d *Device) SetIdentityCheck(c IdentityCheck) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identityCheck = c
}

// Replaced reports whether another device took over this UID.
func (d *Device) Replaced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replaced
}

// MarkReplaced flags the device as superseded in its registry.
func (d *Device) MarkReplaced() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaced = true
}

// GetResponseExpected reports whether requests to fid expect a response.
func (d *Device) GetResponseExpected(fid uint8) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.responseExpected[fid] {
	case ResponseExpectedAlwaysTrue, ResponseExpectedTrue:
		return true, nil
	case ResponseExpectedFalse:
		return false, nil
	default:
		return false, wire.Errorf(wire.CodeInvalidFunctionID, "function %d", fid)
	}
}

// SetResponseExpected changes the flag of a mutable function.
// Functions that always respond and unknown functions are rejected.
func (d *Device) SetResponseExpected(fid uint8, expected bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.responseExpected[fid] {
	case ResponseExpectedTrue, ResponseExpectedFalse:
		d.responseExpected[fid] = flagFor(expected)
		return nil
	default:
		return wire.Errorf(wire.CodeInvalidFunctionID, "function %d", fid)
	}
}

// SetResponseExpectedAll changes every mutable flag.
func (d *Device) SetResponseExpectedAll(expected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for fid, f := range d.responseExpected {
		if f == ResponseExpectedTrue || f == ResponseExpectedFalse {
			d.responseExpected[fid] = flagFor(expected)
		}
	}
}

func flagFor(expected bool) ResponseExpectedFlag {
	if expected {
		return ResponseExpectedTrue
	}
	return ResponseExpectedFalse
}

// RegisterCallback sets the handler for a low-level callback ID.
// A nil fn removes the handler.
func (d *Device) RegisterCallback(id uint8, fn CallbackFunc) error {
	if _, ok := d.desc.CallbackFormats[id]; !ok {
		return wire.Errorf(wire.CodeInvalidFunctionID, "callback %d", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.callbacks, id)
	} else {
		d.callbacks[id] = fn
	}
	return nil
}

// RegisterHighLevelCallback sets the handler that receives reassembled
// data for the chunked callback id. A nil fn removes the handler.
func (d *Device) RegisterHighLevelCallback(id uint8, fn CallbackFunc) error {
	if _, ok := d.desc.HighLevelCallbacks[id]; !ok {
		return wire.Errorf(wire.CodeInvalidFunctionID, "high-level callback %d", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.highLevelCallbacks, id)
	} else {
		d.highLevelCallbacks[id] = fn
	}
	return nil
}

// Callback returns the low-level handler for id, or nil.
func (d *Device) Callback(id uint8) CallbackFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks[id]
}

// HighLevelCallback returns the high-level handler for id, or nil.
func (d *Device) HighLevelCallback(id uint8) CallbackFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highLevelCallbacks[id]
}

// CallbackFormat returns the payload description of callback id.
func (d *Device) CallbackFormat(id uint8) (CallbackFormat, bool) {
	cf, ok := d.desc.CallbackFormats[id]
	return cf, ok
}

// StreamDescriptor returns the stream configuration of fid.
func (d *Device) StreamDescriptor(fid uint8) (StreamDescriptor, bool) {
	sd, ok := d.desc.Streams[fid]
	return sd, ok
}

// HighLevelCallbackDescriptor returns the reassembly configuration of callback id.
func (d *Device) HighLevelCallbackDescriptor(id uint8) (HighLevelCallbackDescriptor, bool) {
	hl, ok := d.desc.HighLevelCallbacks[id]
	return hl, ok
}

// Stream returns the state of streaming function fid, or nil.
func (d *Device) Stream(fid uint8) *StreamState {
	return d.streams[fid]
}

// HighLevelBuffer returns the reassembly buffer of callback id, or nil.
func (d *Device) HighLevelBuffer(id uint8) *HighLevelBuffer {
	return d.highLevelBuffers[id]
}

// Streams calls fn for every streaming function.
func (d *Device) Streams(fn func(fid uint8, s *StreamState)) {
	for fid, s := range d.streams {
		fn(fid, s)
	}
}
