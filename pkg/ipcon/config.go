package ipcon

import (
	"log/slog"
	"net"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/transport"
)

// Config configures an IPConnection.
type Config struct {
	// Timeout bounds each request and each stream chunk (default: 2.5s).
	Timeout time.Duration

	// AutoReconnect re-establishes a lost connection.
	AutoReconnect bool

	// DisconnectProbeInterval is the idle time before a probe is written
	// (default: 5s). A negative value disables the probe.
	DisconnectProbeInterval time.Duration

	// DialTimeout bounds each connect attempt (default: 5s).
	DialTimeout time.Duration

	// WriteTimeout bounds each packet write (0 = no timeout).
	WriteTimeout time.Duration

	// ReconnectBackoff spaces auto-reconnect attempts.
	ReconnectBackoff connection.BackoffConfig

	// Dialer opens the TCP connection (default: net.Dialer).
	Dialer transport.Dialer

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:                 DefaultTimeout,
		AutoReconnect:           true,
		DisconnectProbeInterval: DefaultDisconnectProbeInterval,
		DialTimeout:             DefaultDialTimeout,
		ReconnectBackoff: connection.BackoffConfig{
			Initial:    RetryConnectionInterval,
			Max:        connection.MaxBackoff,
			Multiplier: connection.BackoffMultiplier,
			Jitter:     connection.JitterFactor,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DisconnectProbeInterval == 0 {
		c.DisconnectProbeInterval = DefaultDisconnectProbeInterval
	}
	if c.DisconnectProbeInterval < 0 {
		c.DisconnectProbeInterval = 0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReconnectBackoff.Initial <= 0 {
		c.ReconnectBackoff.Initial = RetryConnectionInterval
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	return c
}
