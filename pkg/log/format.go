package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileFormatVersion is the capture file layout written by FileLogger.
// Version 1 is a FileHeader followed by CBOR-encoded events.
const FileFormatVersion uint8 = 1

// FileExtension is the conventional suffix of capture files.
const FileExtension = ".tlog"

const fileMagic = "TFPLOG"

var (
	// ErrNotCaptureFile indicates a file that does not start with a FileHeader.
	ErrNotCaptureFile = errors.New("not a TFP capture file")

	// ErrUnsupportedVersion indicates a capture file newer than this package.
	ErrUnsupportedVersion = errors.New("unsupported capture file version")
)

// FileHeader is the first CBOR item of a capture file.
type FileHeader struct {
	Magic   string    `cbor:"1,keyasint"`
	Version uint8     `cbor:"2,keyasint"`
	Created time.Time `cbor:"3,keyasint"`
}

func newFileHeader() FileHeader {
	return FileHeader{Magic: fileMagic, Version: FileFormatVersion, Created: time.Now()}
}

func (h FileHeader) check() error {
	if h.Magic != fileMagic {
		return ErrNotCaptureFile
	}
	if h.Version == 0 || h.Version > FileFormatVersion {
		return fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, h.Version, FileFormatVersion)
	}
	return nil
}

// Events keep integer keys and RFC 3339 timestamps with nanoseconds.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyQuiet}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decoder mode: %v", err))
	}
}

// EncodeEvent returns the CBOR form of event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent parses one CBOR-encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// readHeader decodes and checks the header at the start of r.
func readHeader(dec *cbor.Decoder) (FileHeader, error) {
	var h FileHeader
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return FileHeader{}, fmt.Errorf("%w: empty file", ErrNotCaptureFile)
		}
		return FileHeader{}, fmt.Errorf("%w: %v", ErrNotCaptureFile, err)
	}
	return h, h.check()
}
