// Package circuitbreaker short-circuits calls to an operation that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
)

// ErrCircuitOpen is returned, without invoking the wrapped function, while the
// breaker is open or while another caller holds the half-open probe slot.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe call.
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `env:"BREAKER_FAILURE_THRESHOLD" yaml:"failure_threshold"`
	// SuccessThreshold is the number of successful probes needed to close a half-open circuit.
	SuccessThreshold int `yaml:"success_threshold"`
	// Timeout is the recovery window spent open before a probe is allowed.
	Timeout time.Duration `env:"BREAKER_RECOVERY_TIMEOUT" yaml:"recovery_timeout"`
	// OnStateChange is invoked after every transition, outside the breaker lock.
	OnStateChange func(from, to State) `yaml:"-"`
}

// Defaults used when Config fields are zero.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 1
	DefaultTimeout          = 60 * time.Second
)

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Breaker implements the closed/open/half-open state machine for one
// operation class.
type Breaker struct {
	mu            sync.Mutex
	name          string
	state         State
	failureCount  int
	successCount  int
	openedAt      time.Time
	probeInFlight bool
	config        Config
	clock         clock.Clock
}

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// WithName labels the breaker for errors and stats.
func WithName(name string) Option {
	return func(b *Breaker) { b.name = name }
}

// New creates a closed breaker.
func New(config Config, opts ...Option) *Breaker {
	b := &Breaker{
		state:  StateClosed,
		config: config.WithDefaults(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type transition struct {
	from, to State
	changed  bool
}

// Execute runs fn if the breaker admits the call and records the outcome.
// A cancellation of ctx by the caller is not counted as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, tr, err := b.beforeCall()
	b.notify(tr)
	if err != nil {
		return err
	}

	callErr := fn()

	b.notify(b.afterCall(ctx, probe, callErr))
	return callErr
}

func (b *Breaker) beforeCall() (bool, transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var tr transition
	if b.state == StateOpen {
		elapsed := b.clock.Now().Sub(b.openedAt)
		if elapsed < b.config.Timeout {
			return false, tr, b.openError(b.config.Timeout - elapsed)
		}
		tr = b.transitionTo(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.probeInFlight {
			return false, tr, b.openError(0)
		}
		b.probeInFlight = true
		return true, tr, nil
	}

	return false, tr, nil
}

func (b *Breaker) openError(retryIn time.Duration) error {
	if retryIn > 0 {
		return fmt.Errorf("%w: %s retries in %v", ErrCircuitOpen, b.label(), retryIn)
	}
	return fmt.Errorf("%w: %s probe in flight", ErrCircuitOpen, b.label())
}

func (b *Breaker) label() string {
	if b.name == "" {
		return "circuit"
	}
	return b.name
}

func (b *Breaker) afterCall(ctx context.Context, probe bool, err error) transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeInFlight = false
	}

	if err != nil && ctx.Err() != nil {
		return transition{}
	}

	if err != nil {
		return b.recordFailure()
	}
	return b.recordSuccess()
}

func (b *Breaker) recordFailure() transition {
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			return b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		return b.transitionTo(StateOpen)
	case StateOpen:
	}
	return transition{}
}

func (b *Breaker) recordSuccess() transition {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			return b.transitionTo(StateClosed)
		}
	case StateOpen:
	}
	return transition{}
}

// transitionTo must be called with b.mu held.
func (b *Breaker) transitionTo(newState State) transition {
	if b.state == newState {
		return transition{}
	}

	old := b.state
	b.state = newState
	b.failureCount = 0
	b.successCount = 0
	if newState == StateOpen {
		b.openedAt = b.clock.Now()
	}
	return transition{from: old, to: newState, changed: true}
}

func (b *Breaker) notify(tr transition) {
	if tr.changed && b.config.OnStateChange != nil {
		b.config.OnStateChange(tr.from, tr.to)
	}
}

// State returns the current state. An open breaker whose recovery window has
// elapsed still reports open until the next call promotes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allows reports whether a call made now would be admitted, without
// reserving the probe slot.
func (b *Breaker) Allows() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		return b.clock.Now().Sub(b.openedAt) >= b.config.Timeout
	case StateHalfOpen:
		return !b.probeInFlight
	default:
		return true
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.transitionTo(StateClosed)
	b.probeInFlight = false
	b.mu.Unlock()
	b.notify(tr)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
}

// GetStats returns current statistics
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		OpenedAt:     b.openedAt,
	}
}
