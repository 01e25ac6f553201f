// Package circuitbreaker guards calls to external dependencies. The
// verification engine uses it around the credential registry so that a
// struggling registry degrades verifier authorization to its stored-tag
// fallback instead of stacking up slow HTTP calls inside activities.
package circuitbreaker

import (
	"errors"
	"log"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without invoking the call while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Counts tracks outcomes within the current generation.
type Counts struct {
	Requests             uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Config tunes one breaker.
type Config struct {
	Name string

	// MaxHalfOpen is how many probe calls may run in half-open state before
	// the breaker decides.
	MaxHalfOpen uint32

	// Interval clears closed-state counts so old failures age out.
	Interval time.Duration

	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration

	// ReadyToTrip is consulted after each closed-state failure.
	ReadyToTrip func(Counts) bool
}

// DefaultConfig trips after three consecutive failures and probes again
// after thirty seconds, which suits a registry polled from retried
// activities.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxHalfOpen: 1,
		Interval:    time.Minute,
		Cooldown:    30 * time.Second,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	}
}

// Breaker is a single circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

func New(cfg Config) *Breaker {
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultConfig(cfg.Name).ReadyToTrip
	}
	if cfg.MaxHalfOpen == 0 {
		cfg.MaxHalfOpen = 1
	}
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: log.New(log.Writer(), "[BREAKER] ", log.LstdFlags),
	}
}

// State reports the current position, advancing open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.currentState(time.Now())
	return s
}

// Do runs fn behind the breaker. While open it returns ErrOpen without
// calling fn.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.before()
	if err != nil {
		return err
	}
	err = fn()
	b.after(gen, err == nil)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.currentState(now)
	if state == StateOpen {
		return gen, ErrOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.cfg.MaxHalfOpen {
		return gen, ErrOpen
	}
	b.counts.Requests++
	return gen, nil
}

func (b *Breaker) after(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, cur := b.currentState(now)
	if gen != cur {
		// Result from a previous generation, ignore.
		return
	}

	if success {
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.cfg.ReadyToTrip(b.counts) {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.newGeneration(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	b.newGeneration(now)
	b.logger.Printf("%s: %s -> %s", b.cfg.Name, from, state)
}

func (b *Breaker) newGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		if b.cfg.Interval > 0 {
			b.expiry = now.Add(b.cfg.Interval)
		} else {
			b.expiry = time.Time{}
		}
	case StateOpen:
		b.expiry = now.Add(b.cfg.Cooldown)
	default:
		b.expiry = time.Time{}
	}
}
