package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

const (
	fnSetValue    uint8  = 1
	fnGetValue    uint8  = 2
	fnSetConfig   uint8  = 3
	fnWriteLL     uint8  = 4
	fnReadLL      uint8  = 5
	cbValue       uint8  = 10
	cbReadLL      uint8  = 11
	testDeviceID  uint16 = 277
	testDeviceUID        = "XYZ"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		DeviceIdentifier: testDeviceID,
		DisplayName:      "Test Bricklet",
		APIVersion:       [3]uint8{2, 0, 1},
		ResponseExpected: map[uint8]ResponseExpectedFlag{
			fnSetValue:  ResponseExpectedFalse,
			fnGetValue:  ResponseExpectedAlwaysTrue,
			fnSetConfig: ResponseExpectedTrue,
			fnWriteLL:   ResponseExpectedAlwaysTrue,
			fnReadLL:    ResponseExpectedAlwaysTrue,
		},
		CallbackFormats: map[uint8]CallbackFormat{
			cbValue:  {Length: 10, Format: "h"},
			cbReadLL: {Length: 72, Format: "H H c60"},
		},
		Streams: map[uint8]StreamDescriptor{
			fnWriteLL: {
				Direction:      StreamOut,
				ChunkSize:      60,
				PackFormat:     "H H c60",
				UnpackFormat:   "B",
				ResponseLength: 9,
				RequestRoles:   []StreamRole{RoleLength, RoleOffset, RoleData},
				ResponseRoles:  []StreamRole{RoleWritten},
				ShortWrite:     true,
			},
			fnReadLL: {
				Direction:      StreamIn,
				ChunkSize:      60,
				PackFormat:     "H",
				UnpackFormat:   "H H c60",
				ResponseLength: 72,
				ResponseRoles:  []StreamRole{RoleLength, RoleOffset, RoleData},
			},
		},
		HighLevelCallbacks: map[uint8]HighLevelCallbackDescriptor{
			cbReadLL: {Roles: []StreamRole{RoleLength, RoleOffset, RoleData}},
		},
	}
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(testDeviceUID, testDescriptor())
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := newTestDevice(t)

	uid, err := wire.Base58Decode(testDeviceUID)
	require.NoError(t, err)

	assert.Equal(t, uid, d.UID())
	assert.Equal(t, testDeviceUID, d.UIDString())
	assert.Equal(t, testDeviceID, d.DeviceIdentifier())
	assert.Equal(t, "Test Bricklet", d.DisplayName())
	assert.Equal(t, [3]uint8{2, 0, 1}, d.APIVersion())
	assert.Equal(t, IdentityPending, d.IdentityCheck())
	assert.False(t, d.Replaced())
}

func TestNewRejectsInvalidUID(t *testing.T) {
	tests := []struct {
		name string
		uid  string
	}{
		{"empty", ""},
		{"invalid char", "0O"},
		{"zero", "1"},
		{"overflow", "zzzzzzzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.uid, testDescriptor())
			assert.ErrorIs(t, err, wire.ErrInvalidUID)
		})
	}
}

func TestNewRejectsInvalidDescriptor(t *testing.T) {
	_, err := New(testDeviceUID, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	desc := testDescriptor()
	desc.CallbackFormats[cbValue] = CallbackFormat{Length: 11, Format: "h"}
	_, err = New(testDeviceUID, desc)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestNewAddsGetIdentity(t *testing.T) {
	d := newTestDevice(t)

	re, err := d.GetResponseExpected(FunctionGetIdentity)
	require.NoError(t, err)
	assert.True(t, re)

	err = d.SetResponseExpected(FunctionGetIdentity, false)
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
}

func TestNewCopiesResponseExpected(t *testing.T) {
	desc := testDescriptor()
	d, err := New(testDeviceUID, desc)
	require.NoError(t, err)

	require.NoError(t, d.SetResponseExpected(fnSetValue, true))
	assert.Equal(t, ResponseExpectedFalse, desc.ResponseExpected[fnSetValue])
}

func TestGetResponseExpected(t *testing.T) {
	d := newTestDevice(t)

	tests := []struct {
		fid     uint8
		want    bool
		wantErr error
	}{
		{fnSetValue, false, nil},
		{fnGetValue, true, nil},
		{fnSetConfig, true, nil},
		{99, false, wire.ErrInvalidFunctionID},
	}

	for _, tt := range tests {
		got, err := d.GetResponseExpected(tt.fid)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "fid %d", tt.fid)
			continue
		}
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("GetResponseExpected(%d) = %v, want %v", tt.fid, got, tt.want)
		}
	}
}

func TestSetResponseExpected(t *testing.T) {
	d := newTestDevice(t)

	require.NoError(t, d.SetResponseExpected(fnSetValue, true))
	got, _ := d.GetResponseExpected(fnSetValue)
	assert.True(t, got)

	require.NoError(t, d.SetResponseExpected(fnSetConfig, false))
	got, _ = d.GetResponseExpected(fnSetConfig)
	assert.False(t, got)

	err := d.SetResponseExpected(fnGetValue, false)
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
	got, _ = d.GetResponseExpected(fnGetValue)
	assert.True(t, got)

	err = d.SetResponseExpected(99, true)
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
}

func TestSetResponseExpectedAll(t *testing.T) {
	d := newTestDevice(t)

	d.SetResponseExpectedAll(true)
	for _, fid := range []uint8{fnSetValue, fnSetConfig} {
		got, _ := d.GetResponseExpected(fid)
		assert.True(t, got, "fid %d", fid)
	}

	d.SetResponseExpectedAll(false)
	for _, fid := range []uint8{fnSetValue, fnSetConfig} {
		got, _ := d.GetResponseExpected(fid)
		assert.False(t, got, "fid %d", fid)
	}

	got, _ := d.GetResponseExpected(fnGetValue)
	assert.True(t, got)
}

func TestIdentityCheckAndReplaced(t *testing.T) {
	d := newTestDevice(t)

	d.SetIdentityCheck(IdentityMatch)
	assert.Equal(t, IdentityMatch, d.IdentityCheck())

	d.MarkReplaced()
	assert.True(t, d.Replaced())

	assert.Equal(t, "MISMATCH", IdentityMismatch.String())
}

func TestRegisterCallback(t *testing.T) {
	d := newTestDevice(t)

	var got []any
	require.NoError(t, d.RegisterCallback(cbValue, func(values ...any) {
		got = values
	}))

	fn := d.Callback(cbValue)
	require.NotNil(t, fn)
	fn(int16(42))
	assert.Equal(t, []any{int16(42)}, got)

	require.NoError(t, d.RegisterCallback(cbValue, nil))
	assert.Nil(t, d.Callback(cbValue))

	err := d.RegisterCallback(99, func(...any) {})
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
}

func TestRegisterHighLevelCallback(t *testing.T) {
	d := newTestDevice(t)

	require.NoError(t, d.RegisterHighLevelCallback(cbReadLL, func(...any) {}))
	assert.NotNil(t, d.HighLevelCallback(cbReadLL))
	assert.Nil(t, d.Callback(cbReadLL))

	err := d.RegisterHighLevelCallback(cbValue, func(...any) {})
	assert.ErrorIs(t, err, wire.ErrInvalidFunctionID)
}

func TestStreamTables(t *testing.T) {
	d := newTestDevice(t)

	assert.NotNil(t, d.Stream(fnWriteLL))
	assert.NotNil(t, d.Stream(fnReadLL))
	assert.Nil(t, d.Stream(fnGetValue))

	sd, ok := d.StreamDescriptor(fnWriteLL)
	require.True(t, ok)
	assert.Equal(t, 60, sd.ChunkSize)

	assert.NotNil(t, d.HighLevelBuffer(cbReadLL))
	assert.Nil(t, d.HighLevelBuffer(cbValue))

	count := 0
	d.Streams(func(uint8, *StreamState) { count++ })
	assert.Equal(t, 2, count)
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Descriptor)
	}{
		{"bad callback format", func(d *Descriptor) {
			d.CallbackFormats[cbValue] = CallbackFormat{Length: 10, Format: "x"}
		}},
		{"stream without flag", func(d *Descriptor) {
			delete(d.ResponseExpected, fnReadLL)
		}},
		{"stream without chunk size", func(d *Descriptor) {
			sd := d.Streams[fnReadLL]
			sd.ChunkSize = 0
			d.Streams[fnReadLL] = sd
		}},
		{"read stream without data role", func(d *Descriptor) {
			sd := d.Streams[fnReadLL]
			sd.ResponseRoles = []StreamRole{RoleLength, RoleOffset}
			d.Streams[fnReadLL] = sd
		}},
		{"write stream without data role", func(d *Descriptor) {
			sd := d.Streams[fnWriteLL]
			sd.RequestRoles = []StreamRole{RoleLength}
			d.Streams[fnWriteLL] = sd
		}},
		{"high-level callback without format", func(d *Descriptor) {
			d.HighLevelCallbacks[77] = HighLevelCallbackDescriptor{Roles: []StreamRole{RoleData}}
		}},
		{"high-level callback without data role", func(d *Descriptor) {
			d.HighLevelCallbacks[cbReadLL] = HighLevelCallbackDescriptor{Roles: []StreamRole{RoleLength}}
		}},
	}

	require.NoError(t, testDescriptor().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescriptor()
			tt.modify(desc)
			err := desc.Validate()
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("Validate() = %v, want ErrInvalidDescriptor", err)
			}
		})
	}
}

func TestResponseExpectedFlagString(t *testing.T) {
	assert.Equal(t, "ALWAYS_TRUE", ResponseExpectedAlwaysTrue.String())
	assert.Equal(t, "TRUE", ResponseExpectedTrue.String())
	assert.Equal(t, "FALSE", ResponseExpectedFalse.String())
	assert.Equal(t, "INVALID", ResponseExpectedInvalid.String())
}

func TestIndexOf(t *testing.T) {
	roles := []StreamRole{RoleValue, RoleLength, RoleOffset, RoleData}
	assert.Equal(t, 1, IndexOf(roles, RoleLength))
	assert.Equal(t, 3, IndexOf(roles, RoleData))
	assert.Equal(t, -1, IndexOf(roles, RoleWritten))
}

func TestParseIdentity(t *testing.T) {
	values := []any{"XYZ", "abc", wire.Char('a'), []uint8{1, 1, 0}, []uint8{2, 0, 3}, uint16(277)}

	id, err := ParseIdentity(values)
	require.NoError(t, err)
	assert.Equal(t, Identity{
		UID:              "XYZ",
		ConnectedUID:     "abc",
		Position:         'a',
		HardwareVersion:  [3]uint8{1, 1, 0},
		FirmwareVersion:  [3]uint8{2, 0, 3},
		DeviceIdentifier: 277,
	}, id)

	_, err = ParseIdentity(values[:5])
	assert.ErrorIs(t, err, wire.ErrValueCount)

	bad := append([]any(nil), values...)
	bad[5] = uint8(1)
	_, err = ParseIdentity(bad)
	assert.ErrorIs(t, err, wire.ErrInvalidValue)
}
