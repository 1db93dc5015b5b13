package ipcon

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/transport"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// dialAttempt is a connect in flight.
type dialAttempt struct {
	reason ConnectReason
	done   func(error)
	cancel context.CancelFunc
}

// socketHandler forwards transport events of one socket generation to
// the event loop.
type socketHandler struct {
	c   *IPConnection
	gen uint64
}

func (h socketHandler) OnPacket(packet []byte) {
	h.c.loop.post(func() { h.c.handlePacket(h.gen, packet) })
}

func (h socketHandler) OnClose(err error) {
	h.c.loop.post(func() { h.c.handleSocketClose(h.gen, err) })
}

// Connect opens a connection to the daemon at host:port. The attempt is
// queued behind running lifecycle tasks. onError receives
// ErrAlreadyConnected or ErrConnectFailed.
func (c *IPConnection) Connect(host string, port int, onError func(err error)) {
	c.connect(host, port, func(err error) {
		if err != nil {
			callError(onError, err)
		}
	})
}

// ConnectContext is a blocking Connect.
func (c *IPConnection) ConnectContext(ctx context.Context, host string, port int) error {
	_, err := c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.connect(host, port, doneFunc(onSuccess, onError))
	})
	return err
}

func (c *IPConnection) connect(host string, port int, done func(error)) {
	c.post(func() {
		if c.closed {
			done(wire.ErrNotConnected)
			return
		}
		c.pushTask(connection.TaskConnect, func() {
			c.connectTask(host, port, done)
		})
	}, func() {
		done(wire.ErrNotConnected)
	})
}

// Disconnect closes the connection. Outstanding requests fail with
// ErrTimeout. A pending auto-reconnect is cancelled; in that case no
// ErrNotConnected is reported.
func (c *IPConnection) Disconnect(onError func(err error)) {
	c.disconnect(func(err error) {
		if err != nil {
			callError(onError, err)
		}
	})
}

// DisconnectContext is a blocking Disconnect.
func (c *IPConnection) DisconnectContext(ctx context.Context) error {
	_, err := c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.disconnect(doneFunc(onSuccess, onError))
	})
	return err
}

func (c *IPConnection) disconnect(done func(error)) {
	c.post(func() {
		if c.closed {
			done(wire.ErrNotConnected)
			return
		}
		aborted := c.abortReconnectWait()
		c.pushTask(connection.TaskDisconnect, func() {
			c.disconnectTask(aborted, done)
		})
		if aborted {
			c.popTask()
		}
	}, func() {
		done(wire.ErrNotConnected)
	})
}

func doneFunc(onSuccess func(...any), onError func(error)) func(error) {
	return func(err error) {
		if err != nil {
			onError(err)
			return
		}
		onSuccess()
	}
}

// pushTask queues a lifecycle task.
func (c *IPConnection) pushTask(kind connection.TaskKind, run func()) {
	c.logStateChange(log.StateEntityTask, "", "QUEUED", kind.String())
	c.tasks.Push(kind, func() {
		c.logStateChange(log.StateEntityTask, "QUEUED", "RUNNING", kind.String())
		run()
	})
}

// popTask finishes the running lifecycle task and starts the next one.
func (c *IPConnection) popTask() {
	c.logStateChange(log.StateEntityTask, "RUNNING", "DONE", c.tasks.CurrentKind().String())
	c.tasks.Pop()
}

// taskKinds returns the queued task kinds, head first.
func (c *IPConnection) taskKinds() []connection.TaskKind {
	return c.tasks.Kinds()
}

func (c *IPConnection) connectTask(host string, port int, done func(error)) {
	if c.sock != nil {
		done(wire.ErrAlreadyConnected)
		c.popTask()
		return
	}

	c.host = host
	c.port = port
	c.setState(connection.StateConnecting, "connect")
	c.dial(ConnectReasonRequest, done)
}

// dial opens the socket on a separate goroutine and reports back to the
// event loop.
func (c *IPConnection) dial(reason ConnectReason, done func(error)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
	a := &dialAttempt{reason: reason, done: done, cancel: cancel}
	c.dialing = a

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	c.debugLog("dialing", "addr", addr, "reason", reason.String())

	go func() {
		conn, err := c.dialer.DialContext(ctx, "tcp", addr)
		if !c.loop.post(func() { c.handleDialResult(a, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *IPConnection) handleDialResult(a *dialAttempt, conn net.Conn, err error) {
	if c.dialing != a {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.dialing = nil
	a.cancel()

	if err != nil {
		c.debugLog("connect failed", "host", c.host, "port", c.port, "error", err)
		c.logError(log.LayerTransport, err)

		if a.reason == ConnectReasonAutoReconnect && c.autoReconnect.Load() {
			c.pushTask(connection.TaskAutoReconnect, c.autoReconnectTask)
		} else {
			c.setState(connection.StateDisconnected, "connect failed")
		}
		if a.done != nil {
			a.done(wire.Errorf(wire.CodeConnectFailed, "%v", err))
		}
		c.popTask()
		return
	}

	c.sockGen++
	c.connID = uuid.New().String()
	c.remoteAddr = conn.RemoteAddr().String()

	c.sock = transport.NewConnection(conn, transport.ConnectionConfig{
		WriteTimeout:  c.config.WriteTimeout,
		ProbeInterval: c.config.DisconnectProbeInterval,
		ProbePacket:   c.probePacket(c.connID, c.remoteAddr),
		Logger:        c.protoLog,
		ConnID:        c.connID,
	}, socketHandler{c: c, gen: c.sockGen})

	c.setState(connection.StateConnected, a.reason.String())
	c.backoff.Reset()
	c.sock.Start()

	c.emitConnected(a.reason)
	if a.done != nil {
		a.done(nil)
	}
	c.popTask()
}

// probePacket returns the disconnect probe builder. It runs on the
// probe goroutine.
func (c *IPConnection) probePacket(connID, remoteAddr string) func() []byte {
	return func() []byte {
		c.protoLog.Log(controlEvent(connID, remoteAddr, log.ControlMsgDisconnectProbe))
		return wire.CreateHeader(wire.BroadcastUID, wire.HeaderSize, FunctionDisconnectProbe, c.seq.Next(), false)
	}
}

func (c *IPConnection) disconnectTask(aborted bool, done func(error)) {
	if c.tasks.NextKind() == connection.TaskAutoReconnect {
		c.tasks.RemoveNext()
		aborted = true
	}

	if c.sock == nil {
		c.setState(connection.StateDisconnected, "disconnect")
		if aborted {
			done(nil)
		} else {
			done(wire.ErrNotConnected)
		}
		c.popTask()
		return
	}

	c.setState(connection.StateDisconnecting, "disconnect")
	c.disconnectDone = done
	// The close handler finishes the task.
	_ = c.sock.Close()
}

// handleSocketClose runs when the socket of generation gen has closed.
func (c *IPConnection) handleSocketClose(gen uint64, err error) {
	if gen != c.sockGen || c.sock == nil {
		return
	}
	c.sock = nil

	if err != nil {
		c.debugLog("socket closed", "error", err)
		c.logError(log.LayerTransport, err)
	}
	if transport.IsConnReset(err) {
		c.emitDisconnected(DisconnectReasonShutdown)
	}

	c.setState(connection.StateDisconnected, "socket closed")
	c.failAllPending(wire.ErrTimeout)

	if c.tasks.CurrentKind() == connection.TaskDisconnect {
		c.emitDisconnected(DisconnectReasonRequest)
		done := c.disconnectDone
		c.disconnectDone = nil
		if done != nil {
			done(nil)
		}
		c.popTask()
		return
	}

	c.emitDisconnected(DisconnectReasonError)
	if c.autoReconnect.Load() {
		c.pushTask(connection.TaskAutoReconnect, c.autoReconnectTask)
	}
}

// autoReconnectTask waits for the next backoff delay and redials the last
// address.
func (c *IPConnection) autoReconnectTask() {
	if c.sock != nil || !c.autoReconnect.Load() {
		if c.sock == nil {
			c.setState(connection.StateDisconnected, "auto-reconnect disabled")
		}
		c.popTask()
		return
	}

	c.setState(connection.StateAutoReconnectPending, "auto-reconnect")
	delay := c.backoff.Next()
	c.debugLog("auto-reconnect scheduled", "delay", delay, "attempt", c.backoff.Attempts())

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.loop.post(func() {
			if c.reconnectTimer != t {
				return
			}
			c.reconnectTimer = nil
			c.dial(ConnectReasonAutoReconnect, nil)
		})
	})
	c.reconnectTimer = t
}

// abortReconnectWait cancels an auto-reconnect that is waiting for its
// backoff delay. It reports whether one was cancelled.
func (c *IPConnection) abortReconnectWait() bool {
	if c.tasks.CurrentKind() != connection.TaskAutoReconnect || c.reconnectTimer == nil {
		return false
	}
	c.stopReconnectTimer()
	c.setState(connection.StateDisconnected, "auto-reconnect aborted")
	return true
}

func (c *IPConnection) stopReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
