package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Filter selects capture events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// DeviceUID is the base-58 UID of the addressed device.
	DeviceUID string

	// FunctionID and PacketType only match wire-layer packet events.
	FunctionID *uint8
	PacketType *PacketType
}

// Match reports whether event passes every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID,
		f.DeviceUID != "" && event.DeviceUID != f.DeviceUID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}

	if f.FunctionID == nil && f.PacketType == nil {
		return true
	}
	p := event.Packet
	if p == nil {
		return false
	}
	if f.FunctionID != nil && p.FunctionID != *f.FunctionID {
		return false
	}
	return f.PacketType == nil || p.Type == *f.PacketType
}

// Reader iterates over the events of a capture file.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	header FileHeader
	filter Filter
}

// NewReader opens a capture file and reads its header.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader is NewReader with events restricted to filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := decMode.NewDecoder(f)
	header, err := readHeader(dec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture file %s: %w", path, err)
	}
	return &Reader{file: f, dec: dec, header: header, filter: filter}, nil
}

// Header returns the file header.
func (r *Reader) Header() FileHeader { return r.header }

// Next returns the next matching event, or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// NextPacket returns the next matching wire-layer packet event together
// with the packet rebuilt from it. Other events are skipped.
func (r *Reader) NextPacket() (Event, *wire.Packet, error) {
	for {
		event, err := r.Next()
		if err != nil {
			return Event{}, nil, err
		}
		if event.Packet != nil {
			return event, event.Packet.WirePacket(), nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
