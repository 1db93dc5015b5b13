// Package fakebrickd provides an in-process TFP daemon for tests.
//
// The server listens on a loopback port, frames incoming requests with the
// transport merge buffer and answers them through per-function handlers.
// Tests can push callbacks, drop connections to simulate a daemon restart,
// and inspect every request the server received.
package fakebrickd

import (
	"crypto/hmac"
	"crypto/sha1"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/tfp-protocol/tfp-go/pkg/transport"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Handler answers one request. It returns the packets to write back;
// nil leaves the request unanswered.
type Handler func(req *wire.Packet) []*wire.Packet

// Brick Daemon function IDs handled by EnableAuthentication.
const (
	functionGetAuthenticationNonce uint8  = 1
	functionAuthenticate           uint8  = 2
	brickdUID                      uint32 = 1
)

// Server is a fake daemon.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	handlers map[handlerKey]Handler
	conns    map[net.Conn]struct{}
	requests []*wire.Packet
	closed   bool

	received chan *wire.Packet
	wg       sync.WaitGroup
}

type handlerKey struct {
	uid uint32
	fid uint8
}

// New starts a server on 127.0.0.1 with a free port.
func New() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		ln:       ln,
		handlers: make(map[handlerKey]Handler),
		conns:    make(map[net.Conn]struct{}),
		received: make(chan *wire.Packet, 1024),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the host and port to connect to.
func (s *Server) Addr() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Address returns the listen address as host:port.
func (s *Server) Address() string {
	host, port := s.Addr()
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Handle registers h for requests to function fid of device uid.
func (s *Server) Handle(uid uint32, fid uint8, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[handlerKey{uid: uid, fid: fid}] = h
}

// Received delivers every request, probes and broadcasts included.
func (s *Server) Received() <-chan *wire.Packet {
	return s.received
}

// Requests returns a snapshot of the received requests.
func (s *Server) Requests() []*wire.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Packet, len(s.requests))
	copy(out, s.requests)
	return out
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Send writes pkt to every connected client.
func (s *Server) Send(pkt *wire.Packet) error {
	return s.SendRaw(pkt.Bytes())
}

// SendRaw writes b unmodified to every connected client.
func (s *Server) SendRaw(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for conn := range s.conns {
		if _, err := conn.Write(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DropConnections closes every client connection while the listener
// keeps accepting.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// Close stops the listener and closes all connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	var merge transport.MergeBuffer
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, raw := range merge.Feed(buf[:n]) {
				pkt, perr := wire.ParsePacket(raw)
				if perr != nil {
					continue
				}
				s.dispatch(conn, pkt)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, req *wire.Packet) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	h := s.handlers[handlerKey{uid: req.UID, fid: req.FunctionID}]
	s.mu.Unlock()

	select {
	case s.received <- req:
	default:
	}

	if h == nil {
		return
	}
	for _, resp := range h(req) {
		if _, err := conn.Write(resp.Bytes()); err != nil {
			return
		}
	}
}

// Response builds the answer to req carrying payload.
func Response(req *wire.Packet, payload []byte) *wire.Packet {
	h := req.Header
	h.ErrorCode = 0
	pkt, err := wire.NewPacket(h, payload)
	if err != nil {
		panic(err)
	}
	return pkt
}

// ErrorResponse builds a header-only answer to req with a device error code.
func ErrorResponse(req *wire.Packet, code uint8) *wire.Packet {
	pkt := Response(req, nil)
	pkt.ErrorCode = code
	return pkt
}

// Callback builds an unsolicited packet from device uid.
func Callback(uid uint32, id uint8, payload []byte) *wire.Packet {
	pkt, err := wire.NewPacket(wire.Header{UID: uid, FunctionID: id}, payload)
	if err != nil {
		panic(err)
	}
	return pkt
}

// Ack answers every request with an empty response.
func Ack() Handler {
	return func(req *wire.Packet) []*wire.Packet {
		if !req.ResponseExpected {
			return nil
		}
		return []*wire.Packet{Response(req, nil)}
	}
}

// Reply answers every request with values packed with format.
func Reply(format string, values ...any) Handler {
	payload, err := wire.Pack(values, format)
	if err != nil {
		panic(err)
	}
	return func(req *wire.Packet) []*wire.Packet {
		return []*wire.Packet{Response(req, payload)}
	}
}

// Identity answers get-identity requests for a device with the given
// identifier.
func Identity(uid string, deviceIdentifier uint16) Handler {
	return Reply("s8 s8 c B3 B3 H",
		uid, "0", wire.Char('a'), []uint8{1, 0, 0}, []uint8{2, 0, 1}, deviceIdentifier)
}

// EnableAuthentication serves the Brick Daemon handshake for secret with
// a fixed server nonce. A wrong digest is answered with an
// invalid-parameter error.
func (s *Server) EnableAuthentication(secret string, serverNonce [4]uint8) {
	s.Handle(brickdUID, functionGetAuthenticationNonce, Reply("B4", serverNonce[:]))
	s.Handle(brickdUID, functionAuthenticate, func(req *wire.Packet) []*wire.Packet {
		values, err := wire.Unpack(req.Payload, "B4 B20")
		if err != nil {
			return []*wire.Packet{ErrorResponse(req, 1)}
		}
		clientNonce, _ := values[0].([]uint8)
		digest, _ := values[1].([]uint8)

		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(serverNonce[:])
		mac.Write(clientNonce)
		if !hmac.Equal(mac.Sum(nil), digest) {
			return []*wire.Packet{ErrorResponse(req, 1)}
		}
		if !req.ResponseExpected {
			return nil
		}
		return []*wire.Packet{Response(req, nil)}
	})
}
