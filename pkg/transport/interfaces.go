package transport

import (
	"context"
	"net"
)

// Dialer opens the TCP connection to the daemon.
// Implemented by *net.Dialer.
type Dialer interface {
	// DialContext connects to the address on the named network.
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PacketSender writes complete packets.
// Implemented by Connection.
type PacketSender interface {
	// Send writes one packet.
	Send(packet []byte) error

	// Close closes the underlying socket.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer       = (*net.Dialer)(nil)
	_ PacketSender = (*Connection)(nil)
)
