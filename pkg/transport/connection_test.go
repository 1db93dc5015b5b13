package transport

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

type testHandler struct {
	mu      sync.Mutex
	packets [][]byte
	closed  chan error
}

func newTestHandler() *testHandler {
	return &testHandler{closed: make(chan error, 1)}
}

func (h *testHandler) OnPacket(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, p)
}

func (h *testHandler) OnClose(err error) {
	h.closed <- err
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets)
}

func TestConnectionDeliversPackets(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	h := newTestHandler()
	c := NewConnection(client, ConnectionConfig{}, h)
	c.Start()
	defer c.Close()

	p1 := packet(1, 1, 9, 9)
	p2 := packet(2, 2)

	_, err := server.Write(p1[:4])
	require.NoError(t, err)
	_, err = server.Write(append(p1[4:], p2...))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, p1, h.packets[0])
	assert.Equal(t, p2, h.packets[1])
	h.mu.Unlock()
}

func TestConnectionSend(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := NewConnection(client, ConnectionConfig{WriteTimeout: time.Second}, newTestHandler())
	c.Start()
	defer c.Close()

	p := packet(5, 6, 1)
	go func() {
		_ = c.Send(p)
	}()

	buf := make([]byte, len(p))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, p, buf)
}

func TestConnectionLocalCloseReportsNil(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	h := newTestHandler()
	c := NewConnection(client, ConnectionConfig{}, h)
	c.Start()

	require.NoError(t, c.Close())

	select {
	case err := <-h.closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
	<-c.Done()

	assert.ErrorIs(t, c.Send(packet(1, 1)), ErrConnectionClosed)
}

func TestConnectionPeerCloseReportsError(t *testing.T) {
	client, server := net.Pipe()

	h := newTestHandler()
	c := NewConnection(client, ConnectionConfig{}, h)
	c.Start()

	server.Close()

	select {
	case err := <-h.closed:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestConnectionProbe(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	probe := wire.CreateHeader(wire.BroadcastUID, wire.HeaderSize, 128, 1, false)
	c := NewConnection(client, ConnectionConfig{
		ProbeInterval: 20 * time.Millisecond,
		ProbePacket:   func() []byte { return probe },
	}, newTestHandler())
	c.Start()
	defer c.Close()

	buf := make([]byte, wire.HeaderSize)
	_ = server.SetReadDeadline(time.Now().Add(time.Second))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)

	h, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(128), h.FunctionID)
	assert.Equal(t, wire.BroadcastUID, h.UID)
}

func TestConnectionProbeFailureCloses(t *testing.T) {
	client, server := net.Pipe()

	h := newTestHandler()
	c := NewConnection(client, ConnectionConfig{
		ProbeInterval: 10 * time.Millisecond,
		WriteTimeout:  10 * time.Millisecond,
		ProbePacket:   func() []byte { return packet(0, 128) },
	}, h)
	c.Start()

	// Nobody reads the pipe, so the probe write hits its deadline.
	defer server.Close()

	select {
	case err := <-h.closed:
		assert.ErrorIs(t, err, ErrProbeFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestIsConnReset(t *testing.T) {
	assert.False(t, IsConnReset(io.EOF))
	assert.False(t, IsConnReset(nil))
}
