// Package device holds per-device metadata and state for the TFP engine.
//
// A Descriptor is the static table a device binding supplies: its device
// identifier, which functions expect responses, callback payload formats
// and which functions stream data in chunks. A Device pairs a descriptor
// with a UID and the mutable state the connection engine keeps for it:
// response-expected flags, the identity check, registered callbacks and
// per-function stream state.
//
// The Registry maps UIDs to devices. Adding a second device under an
// existing UID marks the earlier one replaced; its requests then fail
// with wire.ErrDeviceReplaced.
package device
