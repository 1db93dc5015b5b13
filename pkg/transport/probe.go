package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is the idle time after which a disconnect probe is sent.
const DefaultProbeInterval = 5 * time.Second

// Probe writes a header-only packet whenever the connection has been idle
// for the configured interval. Half-open TCP connections surface as a
// write error on the probe, which is reported through onFailure.
type Probe struct {
	interval time.Duration

	// Callbacks
	send      func() error
	onFailure func(err error)

	// State
	sent      atomic.Uint64
	lastProbe atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	resetCh chan struct{}
}

// NewProbe creates a disconnect probe. A zero interval uses DefaultProbeInterval.
func NewProbe(interval time.Duration, send func() error, onFailure func(err error)) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	return &Probe{
		interval:  interval,
		send:      send,
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
		resetCh:   make(chan struct{}, 1),
	}
}

// Start begins the probe loop.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx, p.stopCh)
}

// Stop stops the probe loop.
func (p *Probe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.running = false
	close(p.stopCh)
}

// Reset restarts the idle interval. Call it on incoming data and after
// successful writes.
func (p *Probe) Reset() {
	select {
	case p.resetCh <- struct{}{}:
	default:
		// A reset is already pending.
	}
}

// IsRunning returns true if the probe loop is active.
func (p *Probe) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns current probe statistics.
func (p *Probe) Stats() ProbeStats {
	stats := ProbeStats{Sent: p.sent.Load()}
	if ns := p.lastProbe.Load(); ns != 0 {
		stats.LastProbe = time.Unix(0, ns)
	}
	return stats
}

// ProbeStats contains disconnect probe statistics.
type ProbeStats struct {
	Sent      uint64
	LastProbe time.Time
}

func (p *Probe) loop(ctx context.Context, stopCh chan struct{}) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-p.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.interval)
		case <-timer.C:
			p.lastProbe.Store(time.Now().UnixNano())
			p.sent.Add(1)
			if err := p.send(); err != nil {
				if p.onFailure != nil {
					p.onFailure(err)
				}
				return
			}
			timer.Reset(p.interval)
		}
	}
}
