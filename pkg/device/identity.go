package device

import (
	"fmt"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Get-identity function shared by every device.
const (
	FunctionGetIdentity uint8 = 255

	// IdentityResponseLength is the packet length of a get-identity response.
	IdentityResponseLength uint8 = 33

	// IdentityFormat is the payload format of a get-identity response.
	IdentityFormat = "s8 s8 c B3 B3 H"
)

// Identity is the answer to a get-identity request.
type Identity struct {
	UID              string
	ConnectedUID     string
	Position         wire.Char
	HardwareVersion  [3]uint8
	FirmwareVersion  [3]uint8
	DeviceIdentifier uint16
}

// ParseIdentity converts unpacked IdentityFormat values.
func ParseIdentity(values []any) (Identity, error) {
	if len(values) < 6 {
		return Identity{}, fmt.Errorf("%w: identity has %d values", wire.ErrValueCount, len(values))
	}

	var id Identity
	var ok bool
	if id.UID, ok = values[0].(string); !ok {
		return Identity{}, fmt.Errorf("%w: uid %T", wire.ErrInvalidValue, values[0])
	}
	if id.ConnectedUID, ok = values[1].(string); !ok {
		return Identity{}, fmt.Errorf("%w: connected uid %T", wire.ErrInvalidValue, values[1])
	}
	if id.Position, ok = values[2].(wire.Char); !ok {
		return Identity{}, fmt.Errorf("%w: position %T", wire.ErrInvalidValue, values[2])
	}
	hw, ok := values[3].([]uint8)
	if !ok || len(hw) != 3 {
		return Identity{}, fmt.Errorf("%w: hardware version %v", wire.ErrInvalidValue, values[3])
	}
	fw, ok := values[4].([]uint8)
	if !ok || len(fw) != 3 {
		return Identity{}, fmt.Errorf("%w: firmware version %v", wire.ErrInvalidValue, values[4])
	}
	copy(id.HardwareVersion[:], hw)
	copy(id.FirmwareVersion[:], fw)
	if id.DeviceIdentifier, ok = values[5].(uint16); !ok {
		return Identity{}, fmt.Errorf("%w: device identifier %T", wire.ErrInvalidValue, values[5])
	}

	return id, nil
}
