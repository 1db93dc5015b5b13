package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{
		UID:              0x11223344,
		Length:           12,
		FunctionID:       7,
		SequenceNumber:   5,
		ResponseExpected: true,
		Options:          2,
		ErrorCode:        1,
		FutureUse:        3,
	}

	b := h.Encode()
	assert.Equal(t, [HeaderSize]byte{0x44, 0x33, 0x22, 0x11, 12, 7, 0x5C, 0x43}, b)

	got, err := DecodeHeader(b[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestCreateHeader(t *testing.T) {
	b := CreateHeader(1, 8, 254, 3, false)
	assert.Equal(t, []byte{1, 0, 0, 0, 8, 254, 0x30, 0}, b)

	b = CreateHeader(1, 10, 1, 15, true)
	assert.Equal(t, byte(0xF8), b[6])
}

func TestDecodeHeaderErrorCode(t *testing.T) {
	for code := uint8(0); code < 4; code++ {
		b := []byte{0, 0, 0, 0, 8, 1, 0x10, code << 6}
		h, err := DecodeHeader(b)
		require.NoError(t, err)
		if h.ErrorCode != code {
			t.Errorf("ErrorCode = %d, want %d", h.ErrorCode, code)
		}
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestParsePacket(t *testing.T) {
	raw := []byte{2, 0, 0, 0, 10, 1, 0x18, 0, 0xAA, 0xBB}

	p, err := ParsePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), p.UID)
	assert.Equal(t, uint8(1), p.SequenceNumber)
	assert.Equal(t, []byte{0xAA, 0xBB}, p.Payload)
	assert.False(t, p.IsCallback())
	assert.Equal(t, raw, p.Bytes())

	_, err = ParsePacket(raw[:9])
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewPacket(t *testing.T) {
	p, err := NewPacket(Header{UID: 9, FunctionID: 253}, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint8(11), p.Length)
	assert.True(t, p.IsCallback())

	_, err = NewPacket(Header{}, make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestSequenceCounter(t *testing.T) {
	var c SequenceCounter

	got := make([]uint8, 0, 16)
	for i := 0; i < 16; i++ {
		got = append(got, c.Next())
	}

	want := []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 1}
	assert.Equal(t, want, got)
}

func TestDeviceError(t *testing.T) {
	assert.NoError(t, DeviceError(0))
	assert.ErrorIs(t, DeviceError(1), ErrInvalidParameter)
	assert.ErrorIs(t, DeviceError(2), ErrFunctionNotSupported)
	assert.ErrorIs(t, DeviceError(3), ErrUnknownError)
}

func TestErrorIsMatchesCode(t *testing.T) {
	err := Errorf(CodeTimeout, "function %d", 4)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "TIMEOUT: function 4", err.Error())
	assert.Equal(t, "NOT_CONNECTED", ErrNotConnected.Error())
}
