package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/log"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrProbeFailed      = errors.New("disconnect probe failed")
)

// ConnectionConfig configures a socket connection to the daemon.
type ConnectionConfig struct {
	// WriteTimeout bounds each packet write (0 = no timeout).
	WriteTimeout time.Duration

	// ProbeInterval is the idle interval of the disconnect probe.
	// Zero disables the probe.
	ProbeInterval time.Duration

	// ProbePacket builds the packet the disconnect probe writes.
	ProbePacket func() []byte

	// ReadBufferSize is the size of each socket read (default: 4096).
	ReadBufferSize int

	// Logger receives transport frame events (optional).
	Logger log.Logger

	// ConnID identifies the connection in log events.
	ConnID string
}

// ConnectionHandler handles connection events. Both methods are called
// from the connection's reader goroutine.
type ConnectionHandler interface {
	// OnPacket is called for each complete packet.
	OnPacket(packet []byte)

	// OnClose is called exactly once when the connection ends. err is nil
	// when Close was called locally.
	OnClose(err error)
}

// Connection frames packets over a TCP socket.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler
	conn    net.Conn

	probe *Probe

	writeMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once
	closing   atomic.Bool
	failure   atomic.Pointer[error]
	done      chan struct{}
	cancel    context.CancelFunc
}

// NewConnection wraps an established socket. Call Start to begin reading.
func NewConnection(conn net.Conn, config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	c := &Connection{
		config:  config,
		handler: handler,
		conn:    conn,
		done:    make(chan struct{}),
	}

	if config.ProbeInterval > 0 && config.ProbePacket != nil {
		c.probe = NewProbe(config.ProbeInterval,
			func() error {
				return c.write(config.ProbePacket())
			},
			func(err error) {
				c.fail(fmt.Errorf("%w: %w", ErrProbeFailed, err))
			},
		)
	}

	return c
}

// Start launches the reader goroutine and the disconnect probe.
func (c *Connection) Start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel

		if c.probe != nil {
			c.probe.Start(ctx)
		}
		go c.readLoop()
	})
}

// Send writes one packet. A write error closes the connection.
// Thread-safe: can be called from multiple goroutines.
func (c *Connection) Send(packet []byte) error {
	if err := c.write(packet); err != nil {
		c.fail(err)
		return err
	}
	if c.probe != nil {
		c.probe.Reset()
	}
	return nil
}

func (c *Connection) write(packet []byte) error {
	if c.closing.Load() || c.failure.Load() != nil {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if _, err := c.conn.Write(packet); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Log(makeFrameEvent(c.config.ConnID, packet, log.DirectionOut))
	}
	return nil
}

// Close closes the socket. The handler's OnClose receives a nil error.
func (c *Connection) Close() error {
	c.closing.Store(true)
	return c.shutdown()
}

// Done is closed once the reader goroutine has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// fail records the first failure cause and tears the socket down; the
// reader goroutine then reports the cause through OnClose.
func (c *Connection) fail(err error) {
	c.failure.CompareAndSwap(nil, &err)
	_ = c.shutdown()
}

func (c *Connection) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		if c.probe != nil {
			c.probe.Stop()
		}
		if c.cancel != nil {
			c.cancel()
		}
		err = c.conn.Close()
	})
	return err
}

// readLoop reads from the socket until it fails or is closed.
func (c *Connection) readLoop() {
	defer close(c.done)

	var merge MergeBuffer
	if c.config.Logger != nil {
		merge.SetLogger(c.config.Logger, c.config.ConnID)
	}

	buf := make([]byte, c.config.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if c.probe != nil {
				c.probe.Reset()
			}
			for _, packet := range merge.Feed(buf[:n]) {
				c.handler.OnPacket(packet)
			}
		}
		if err != nil {
			_ = c.shutdown()
			c.handler.OnClose(c.closeCause(err))
			return
		}
	}
}

func (c *Connection) closeCause(readErr error) error {
	if c.closing.Load() {
		return nil
	}
	if cause := c.failure.Load(); cause != nil {
		return *cause
	}
	return readErr
}

// IsConnReset reports whether err is a connection reset by the peer.
func IsConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}
