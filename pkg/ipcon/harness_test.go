package ipcon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/internal/fakebrickd"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

const (
	testUID              = "XYZ"
	testDeviceIdentifier = 277

	fnSetValue  uint8 = 1
	fnGetValue  uint8 = 2
	fnSetConfig uint8 = 3
	fnWriteLL   uint8 = 4
	fnReadLL    uint8 = 5

	cbValue  uint8 = 10
	cbReadLL uint8 = 11
)

func testDescriptor() *device.Descriptor {
	return &device.Descriptor{
		DeviceIdentifier: testDeviceIdentifier,
		DisplayName:      "Test Bricklet",
		APIVersion:       [3]uint8{2, 0, 0},
		ResponseExpected: map[uint8]device.ResponseExpectedFlag{
			fnSetValue:  device.ResponseExpectedFalse,
			fnGetValue:  device.ResponseExpectedAlwaysTrue,
			fnSetConfig: device.ResponseExpectedTrue,
			fnWriteLL:   device.ResponseExpectedTrue,
			fnReadLL:    device.ResponseExpectedAlwaysTrue,
		},
		CallbackFormats: map[uint8]device.CallbackFormat{
			cbValue:  {Length: 10, Format: "h"},
			cbReadLL: {Length: 72, Format: "H H c60"},
		},
		Streams: map[uint8]device.StreamDescriptor{
			fnWriteLL: {
				Direction:      device.StreamOut,
				ChunkSize:      60,
				PackFormat:     "H H c60",
				UnpackFormat:   "B",
				ResponseLength: 9,
				RequestRoles:   []device.StreamRole{device.RoleLength, device.RoleOffset, device.RoleData},
				ResponseRoles:  []device.StreamRole{device.RoleWritten},
				ShortWrite:     true,
			},
			fnReadLL: {
				Direction:      device.StreamIn,
				ChunkSize:      60,
				PackFormat:     "H",
				UnpackFormat:   "H H c60",
				ResponseLength: 72,
				ResponseRoles:  []device.StreamRole{device.RoleLength, device.RoleOffset, device.RoleData},
			},
		},
		HighLevelCallbacks: map[uint8]device.HighLevelCallbackDescriptor{
			cbReadLL: {Roles: []device.StreamRole{device.RoleLength, device.RoleOffset, device.RoleData}},
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AutoReconnect = false
	cfg.DisconnectProbeInterval = -1
	cfg.Timeout = time.Second
	return cfg
}

type harness struct {
	t    *testing.T
	conn *IPConnection
	srv  *fakebrickd.Server
	dev  *device.Device
}

// newHarness connects a fresh IPConnection to a fake daemon serving one
// test device.
func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()

	srv, err := fakebrickd.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	cfg := testConfig()
	for _, fn := range configure {
		fn(&cfg)
	}
	conn := New(cfg)
	t.Cleanup(func() { _ = conn.Close() })

	dev, err := device.New(testUID, testDescriptor())
	require.NoError(t, err)
	conn.AddDevice(dev)

	srv.Handle(dev.UID(), device.FunctionGetIdentity, fakebrickd.Identity(testUID, testDeviceIdentifier))

	host, port := srv.Addr()
	require.NoError(t, conn.ConnectContext(testContext(t), host, port))
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, time.Millisecond)

	return &harness{t: t, conn: conn, srv: srv, dev: dev}
}

// onLoop runs fn on the event loop and waits for it.
func (h *harness) onLoop(fn func()) {
	h.t.Helper()
	onLoop(h.t, h.conn, fn)
}

func onLoop(t *testing.T, c *IPConnection, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, c.loop.post(func() {
		fn()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not run")
	}
}

// requestsFor returns the received requests for fid of the test device.
func (h *harness) requestsFor(fid uint8) []*wire.Packet {
	var out []*wire.Packet
	for _, req := range h.srv.Requests() {
		if req.UID == h.dev.UID() && req.FunctionID == fid {
			out = append(out, req)
		}
	}
	return out
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recorder collects callback invocations.
type recorder struct {
	mu     sync.Mutex
	values [][]any
	errs   []error
}

func (r *recorder) success(values ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, values)
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) successes() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.values...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values) + len(r.errs)
}

// charsOf returns s as a char slice.
func charsOf(s string) []wire.Char {
	out := make([]wire.Char, len(s))
	for i := range s {
		out[i] = wire.Char(s[i])
	}
	return out
}

func repeatChars(n int) []wire.Char {
	out := make([]wire.Char, n)
	for i := range out {
		out[i] = wire.Char('a' + i%26)
	}
	return out
}
