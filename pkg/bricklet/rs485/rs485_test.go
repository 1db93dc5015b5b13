package rs485

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/internal/fakebrickd"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/ipcon"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

const testUID = "Xyz"

func setup(t *testing.T) (*Bricklet, *fakebrickd.Server) {
	t.Helper()

	srv, err := fakebrickd.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	cfg := ipcon.DefaultConfig()
	cfg.AutoReconnect = false
	cfg.DisconnectProbeInterval = -1
	cfg.Timeout = time.Second
	conn := ipcon.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })

	b, err := New(testUID, conn)
	require.NoError(t, err)
	srv.Handle(b.Device().UID(), device.FunctionGetIdentity, fakebrickd.Identity(testUID, DeviceIdentifier))

	host, port := srv.Addr()
	require.NoError(t, conn.ConnectContext(testContext(t), host, port))
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, time.Millisecond)

	return b, srv
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func message(n int) []wire.Char {
	out := make([]wire.Char, n)
	for i := range out {
		out[i] = wire.Char('A' + i%26)
	}
	return out
}

// uart emulates the Bricklet's receive and transmit buffers.
type uart struct {
	mu       sync.Mutex
	sent     []wire.Char
	capacity int
	pending  []wire.Char
	offset   int
}

func (u *uart) write(req *wire.Packet) []*wire.Packet {
	values, err := wire.Unpack(req.Payload, "H H c60")
	if err != nil {
		return nil
	}
	length := int(values[0].(uint16))
	offset := int(values[1].(uint16))
	chunk := values[2].([]wire.Char)

	u.mu.Lock()
	defer u.mu.Unlock()
	n := min(60, length-offset)
	if u.capacity > 0 {
		n = min(n, u.capacity-len(u.sent))
	}
	u.sent = append(u.sent, chunk[:n]...)

	payload, _ := wire.Pack([]any{uint8(n)}, "B")
	return []*wire.Packet{fakebrickd.Response(req, payload)}
}

func (u *uart) read(req *wire.Packet) []*wire.Packet {
	u.mu.Lock()
	defer u.mu.Unlock()
	end := min(u.offset+60, len(u.pending))
	payload, _ := wire.Pack([]any{len(u.pending), u.offset, u.pending[u.offset:end]}, "H H c60")
	u.offset += 60
	return []*wire.Packet{fakebrickd.Response(req, payload)}
}

func (u *uart) written() []wire.Char {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]wire.Char(nil), u.sent...)
}

func TestWrite(t *testing.T) {
	b, srv := setup(t)
	u := &uart{}
	srv.Handle(b.Device().UID(), functionWriteLowLevel, u.write)

	msg := message(130)
	written, err := b.Write(testContext(t), msg)
	require.NoError(t, err)
	assert.Equal(t, 130, written)
	assert.Equal(t, msg, u.written())
}

func TestWriteBufferFull(t *testing.T) {
	b, srv := setup(t)
	u := &uart{capacity: 45}
	srv.Handle(b.Device().UID(), functionWriteLowLevel, u.write)

	written, err := b.WriteString(testContext(t), "the quick brown fox jumps over the lazy dog, twice over")
	require.NoError(t, err)
	assert.Equal(t, 45, written)
}

func TestRead(t *testing.T) {
	b, srv := setup(t)
	msg := message(90)
	u := &uart{pending: msg}
	srv.Handle(b.Device().UID(), functionReadLowLevel, u.read)

	got, err := b.Read(testContext(t), 90)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestReadCallback(t *testing.T) {
	b, srv := setup(t)
	srv.Handle(b.Device().UID(), functionEnableReadCallback, fakebrickd.Ack())
	srv.Handle(b.Device().UID(), functionIsReadCallbackEnabled, fakebrickd.Reply("?", true))

	high := make(chan []wire.Char, 2)
	low := make(chan uint16, 4)
	b.OnRead(func(m []wire.Char) { high <- m })
	b.OnReadLowLevel(func(_, offset uint16, _ []wire.Char) { low <- offset })

	require.NoError(t, b.EnableReadCallback(testContext(t)))
	enabled, err := b.IsReadCallbackEnabled(testContext(t))
	require.NoError(t, err)
	assert.True(t, enabled)

	msg := message(70)
	for _, offset := range []int{0, 60} {
		payload, err := wire.Pack([]any{70, offset, msg[offset:min(offset+60, 70)]}, "H H c60")
		require.NoError(t, err)
		require.NoError(t, srv.Send(fakebrickd.Callback(b.Device().UID(), CallbackReadLowLevel, payload)))
	}

	select {
	case got := <-high:
		assert.Equal(t, msg, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no read callback")
	}
	require.Eventually(t, func() bool { return len(low) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint16(0), <-low)
	assert.Equal(t, uint16(60), <-low)
}

func TestDescriptorValid(t *testing.T) {
	require.NoError(t, Descriptor().Validate())
}

// mockConnection records the engine calls of a Bricklet.
type mockConnection struct {
	mock.Mock
}

func (m *mockConnection) AddDevice(dev *device.Device) { m.Called(dev) }

func (m *mockConnection) Request(ctx context.Context, dev *device.Device, call ipcon.Call) ([]any, error) {
	args := m.Called(ctx, dev, call)
	values, _ := args.Get(0).([]any)
	return values, args.Error(1)
}

func (m *mockConnection) WriteStreamContext(ctx context.Context, dev *device.Device, fid uint8, prefix []any, data any) ([]any, error) {
	args := m.Called(ctx, dev, fid, prefix, data)
	values, _ := args.Get(0).([]any)
	return values, args.Error(1)
}

func (m *mockConnection) ReadStreamContext(ctx context.Context, dev *device.Device, fid uint8, in []any) ([]any, error) {
	args := m.Called(ctx, dev, fid, in)
	values, _ := args.Get(0).([]any)
	return values, args.Error(1)
}

func (m *mockConnection) GetIdentity(ctx context.Context, dev *device.Device) (device.Identity, error) {
	args := m.Called(ctx, dev)
	return args.Get(0).(device.Identity), args.Error(1)
}

func TestWriteUnacknowledged(t *testing.T) {
	conn := &mockConnection{}
	conn.On("AddDevice", mock.Anything).Once()

	b, err := New(testUID, conn)
	require.NoError(t, err)

	msg := message(10)
	conn.On("WriteStreamContext", mock.Anything, b.Device(), functionWriteLowLevel, []any(nil), msg).Return([]any{}, nil).Once()

	written, err := b.Write(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 10, written)
	conn.AssertExpectations(t)
}

func TestReadError(t *testing.T) {
	conn := &mockConnection{}
	conn.On("AddDevice", mock.Anything).Once()

	b, err := New(testUID, conn)
	require.NoError(t, err)

	conn.On("ReadStreamContext", mock.Anything, b.Device(), functionReadLowLevel, []any{uint16(5)}).
		Return(nil, wire.ErrStreamOutOfSync).Once()

	_, err = b.Read(context.Background(), 5)
	assert.ErrorIs(t, err, wire.ErrStreamOutOfSync)
	conn.AssertExpectations(t)
}
