// Package resilience provides the circuit breaker, retry, and TTL cache
// primitives that wrap every outbound call to an external data provider.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the health of one external dependency.
type CircuitState int

const (
	// CircuitClosed is normal operation — calls pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the dependency is failing — calls are rejected
	// immediately until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen permits trial calls to probe recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit
// is open. Callers translate it into a DependencyUnavailable tool failure.
var ErrCircuitOpen = eris.New("dependency unavailable: circuit breaker is open")

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// BreakerConfig controls one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold int

	// CoolDown is how long the circuit stays open before permitting a
	// half-open probe. Default: 60s.
	CoolDown time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit. Default: 2.
	SuccessThreshold int

	// OnStateChange is called on every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig returns the default thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		CoolDown:         60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker guards one named outbound dependency.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a circuit breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn through the breaker. If the circuit is open and the
// cool-down has not elapsed, it fails fast with ErrCircuitOpen without
// invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is Execute preserving a return value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current state, accounting for cool-down expiry.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.nowFunc().Sub(b.lastFailureTime) >= b.cfg.CoolDown {
		return CircuitHalfOpen
	}
	return b.state
}

// Counters returns the consecutive failure count and state for logging.
func (b *Breaker) Counters() (failures int, state CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.state
}

// Reset forces the circuit closed. Used for manual recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.state
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	if old != CircuitClosed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(old, CircuitClosed)
	}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.nowFunc().Sub(b.lastFailureTime) >= b.cfg.CoolDown {
			b.transition(CircuitHalfOpen)
			b.successCount = 0
			return nil // permit the probe
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case CircuitHalfOpen:
			b.successCount++
			if b.successCount >= b.cfg.SuccessThreshold {
				b.transition(CircuitClosed)
				b.failureCount = 0
				b.successCount = 0
			}
		case CircuitClosed:
			b.failureCount = 0
		}
		return
	}

	b.failureCount++
	b.lastFailureTime = b.nowFunc()

	switch b.state {
	case CircuitClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any half-open failure reopens immediately.
		b.transition(CircuitOpen)
		b.successCount = 0
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// BreakerSet manages one breaker per named dependency, created lazily so
// all callers hitting the same provider share circuit state.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewBreakerSet creates a registry of per-dependency breakers.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named dependency, creating it if needed.
// Overrides, when non-nil, replace the set's default config for a new
// breaker (the optimizer uses a longer cool-down than the other providers).
func (s *BreakerSet) Get(name string, overrides *BreakerConfig) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[name]; ok {
		return b
	}
	cfg := s.cfg
	if overrides != nil {
		cfg = *overrides
	}
	b = NewBreaker(name, cfg)
	s.breakers[name] = b
	return b
}

// States returns a snapshot of every breaker's state.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]CircuitState, len(s.breakers))
	for name, b := range s.breakers {
		states[name] = b.State()
	}
	return states
}
