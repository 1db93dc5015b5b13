package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff constants for auto-reconnect attempts.
const (
	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff = 2 * time.Second

	// MaxBackoff is the maximum reconnection delay.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of base delay.
	JitterFactor = 0.25
)

// Backoff calculates exponential backoff delays with jitter.
type Backoff struct {
	mu sync.Mutex

	// Current backoff delay (before jitter)
	current time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int
}

// BackoffConfig allows customizing backoff parameters.
// Zero durations and multiplier take the package defaults. Jitter is
// taken as given; zero means none.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewBackoff creates a new backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Jitter: JitterFactor})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
	}
}

// Next returns the next backoff delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.max)

	return delay
}

// Peek returns the current backoff delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset resets the backoff to initial values.
// Call this after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of backoff attempts since last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base backoff (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*rand.Float64())
}

// BackoffSequence returns the default base delays (without jitter) up to
// the maximum.
func BackoffSequence() []time.Duration {
	return []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second, // max
	}
}
