package ipcon

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/device"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/transport"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// IPConnection is a client connection to a TFP daemon.
//
// All protocol work runs on one internal goroutine. Callbacks passed to
// IPConnection methods and registered handlers are invoked on that
// goroutine, so they must not block on the blocking helpers
// (ConnectContext, Request, ...) of the same connection.
type IPConnection struct {
	config   Config
	logger   *slog.Logger
	protoLog log.Logger
	dialer   transport.Dialer

	loop *eventLoop

	state         atomic.Uint32
	timeout       atomic.Int64
	autoReconnect atomic.Bool

	seq     wire.SequenceCounter
	devices *device.Registry
	brickd  *brickDaemon

	// Owned by the event loop.
	tasks          connection.TaskQueue
	sock           *transport.Connection
	dialing        *dialAttempt
	sockGen        uint64
	connID         string
	remoteAddr     string
	host           string
	port           int
	disconnectDone func(error)
	expected       map[*device.Device][]*expectedResponse
	backoff        *connection.Backoff
	reconnectTimer *time.Timer
	nonce          uint32
	nonceSet       bool
	closed         bool

	cbMu           sync.Mutex
	onConnected    func(ConnectReason)
	onDisconnected func(DisconnectReason)
	onEnumerate    func(Enumeration)

	closeOnce sync.Once
}

// New creates a disconnected IPConnection.
func New(config Config) *IPConnection {
	config = config.withDefaults()

	c := &IPConnection{
		config:   config,
		logger:   config.Logger,
		protoLog: config.ProtocolLogger,
		dialer:   config.Dialer,
		devices:  device.NewRegistry(),
		expected: make(map[*device.Device][]*expectedResponse),
		backoff:  connection.NewBackoffWithConfig(config.ReconnectBackoff),
	}
	c.timeout.Store(int64(config.Timeout))
	c.autoReconnect.Store(config.AutoReconnect)
	c.brickd = newBrickDaemon(c)
	c.loop = newEventLoop()

	return c
}

// Close disconnects without auto-reconnect and stops the event loop.
// Outstanding requests fail with a timeout error. The connection cannot
// be reused afterwards.
func (c *IPConnection) Close() error {
	c.closeOnce.Do(func() {
		done := make(chan struct{})
		if c.loop.post(func() {
			c.shutdown()
			close(done)
		}) {
			<-done
		}
		c.loop.close()
		<-c.loop.stopped()
	})
	return nil
}

func (c *IPConnection) shutdown() {
	c.closed = true
	c.autoReconnect.Store(false)
	c.stopReconnectTimer()
	c.tasks.Clear()

	if a := c.dialing; a != nil {
		c.dialing = nil
		a.cancel()
		if a.done != nil {
			a.done(wire.ErrNotConnected)
		}
	}

	if c.sock == nil {
		c.setState(connection.StateDisconnected, "close")
		return
	}

	sock := c.sock
	c.sock = nil
	_ = sock.Close()
	c.setState(connection.StateDisconnected, "close")
	c.failAllPending(wire.ErrTimeout)
	c.emitDisconnected(DisconnectReasonRequest)

	if done := c.disconnectDone; done != nil {
		c.disconnectDone = nil
		done(nil)
	}
}

// post runs fn on the event loop. If the connection is closed, onClosed
// runs on the caller's goroutine instead.
func (c *IPConnection) post(fn func(), onClosed func()) {
	if !c.loop.post(fn) && onClosed != nil {
		onClosed()
	}
}

// AddDevice registers dev. A device already registered under the same
// UID is marked replaced.
func (c *IPConnection) AddDevice(dev *device.Device) {
	c.devices.Add(dev)
	c.debugLog("device added", "uid", dev.UIDString(), "type", dev.DisplayName())
}

// Device returns the device registered under uid.
func (c *IPConnection) Device(uid uint32) (*device.Device, bool) {
	return c.devices.Get(uid)
}

// Devices returns all registered devices.
func (c *IPConnection) Devices() []*device.Device {
	return c.devices.All()
}

// OnConnected sets the handler called after each successful connect.
func (c *IPConnection) OnConnected(fn func(ConnectReason)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnected = fn
}

// OnDisconnected sets the handler called when the connection ends.
func (c *IPConnection) OnDisconnected(fn func(DisconnectReason)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnected = fn
}

// OnEnumerate sets the handler for enumerate callbacks.
func (c *IPConnection) OnEnumerate(fn func(Enumeration)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onEnumerate = fn
}

func (c *IPConnection) emitConnected(reason ConnectReason) {
	c.cbMu.Lock()
	fn := c.onConnected
	c.cbMu.Unlock()

	c.debugLog("connected", "reason", reason.String())
	if fn != nil {
		fn(reason)
	}
}

func (c *IPConnection) emitDisconnected(reason DisconnectReason) {
	c.cbMu.Lock()
	fn := c.onDisconnected
	c.cbMu.Unlock()

	c.debugLog("disconnected", "reason", reason.String())
	if fn != nil {
		fn(reason)
	}
}

func (c *IPConnection) enumerateHandler() func(Enumeration) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onEnumerate
}

// SetTimeout sets the request and stream chunk timeout.
func (c *IPConnection) SetTimeout(timeout time.Duration) {
	c.timeout.Store(int64(timeout))
}

// Timeout returns the request timeout.
func (c *IPConnection) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// SetAutoReconnect enables or disables auto-reconnect.
func (c *IPConnection) SetAutoReconnect(enabled bool) {
	c.autoReconnect.Store(enabled)
}

// AutoReconnect reports whether auto-reconnect is enabled.
func (c *IPConnection) AutoReconnect() bool {
	return c.autoReconnect.Load()
}

// State returns the internal connection state.
func (c *IPConnection) State() connection.State {
	return connection.State(c.state.Load())
}

func (c *IPConnection) connected() bool {
	return c.State() == connection.StateConnected
}

// ConnectionState returns Connected, Pending while an auto-reconnect is
// running, or Disconnected.
func (c *IPConnection) ConnectionState() ConnectionState {
	switch c.State() {
	case connection.StateConnected:
		return ConnectionStateConnected
	case connection.StateAutoReconnectPending:
		return ConnectionStatePending
	default:
		return ConnectionStateDisconnected
	}
}

func (c *IPConnection) setState(s connection.State, reason string) {
	old := connection.State(c.state.Swap(uint32(s)))
	if old == s {
		return
	}
	c.debugLog("state change", "from", old.String(), "to", s.String(), "reason", reason)
	c.logStateChange(log.StateEntityConnection, old.String(), s.String(), reason)
}

// debugLog logs a debug message if logging is enabled.
func (c *IPConnection) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
