package wire

import (
	"errors"
	"fmt"
	"strings"
)

const base58Alphabet = "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// ErrInvalidUID indicates a UID string that is not valid base-58 or does not fit 32 bits.
var ErrInvalidUID = errors.New("invalid uid")

// Base58Decode converts a base-58 UID string to its numeric value.
func Base58Decode(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidUID)
	}

	var value uint64
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base58Alphabet, s[i])
		if digit < 0 {
			return 0, fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidUID, s, s[i])
		}
		value = value*58 + uint64(digit)
		if value > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: %q exceeds 32 bits", ErrInvalidUID, s)
		}
	}
	return uint32(value), nil
}

// Base58Encode converts a numeric UID to its base-58 string.
func Base58Encode(uid uint32) string {
	if uid == 0 {
		return string(base58Alphabet[0])
	}

	var buf [8]byte
	i := len(buf)
	for v := uid; v > 0; v /= 58 {
		i--
		buf[i] = base58Alphabet[v%58]
	}
	return string(buf[i:])
}
