package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects requests
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// BaseTimeout is the first open period; each reopen without a success
	// in between grows it quadratically
	BaseTimeout time.Duration
	// MaxTimeout caps the open period
	MaxTimeout time.Duration
	// OnStateChange is called whenever the state changes, with the lock held
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock in tests
	Now func() time.Time
}

// Breaker stops a reporter from hammering an unreachable intake. It opens
// after FailureThreshold consecutive failures, stays open for a backoff
// period, then lets exactly one trial call through (half-open).
type Breaker struct {
	name     string
	settings Settings

	mu          sync.Mutex
	state       State
	failures    uint32
	reopens     uint32
	openUntil   time.Time
	trialIssued bool
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 1
	}
	if settings.BaseTimeout <= 0 {
		settings.BaseTimeout = time.Second
	}
	if settings.MaxTimeout < settings.BaseTimeout {
		settings.MaxTimeout = 36 * settings.BaseTimeout
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, promoting open to half-open once the
// backoff period has passed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	return b.state
}

// Failures returns the current run of consecutive failures
func (b *Breaker) Failures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.failures
}

// Allow reports whether a request may be sent now. In half-open state only
// the first caller is admitted until its result is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.trialIssued {
			return ErrCircuitOpen
		}
		b.trialIssued = true
	}
	return nil
}

// Record feeds back the result of an admitted request
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.reopens = 0
		b.setState(StateClosed)
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
		b.trip()
	}
}

// Execute runs req if the breaker admits it and records its result
func (b *Breaker) Execute(req func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := req()
	b.Record(err)
	return err
}

// Backoff returns the open period that the next trip would use
func (b *Breaker) Backoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.backoff(b.reopens + 1)
}

func (b *Breaker) backoff(n uint32) time.Duration {
	d := b.settings.BaseTimeout * time.Duration(n*n)
	if d > b.settings.MaxTimeout || d <= 0 {
		return b.settings.MaxTimeout
	}
	return d
}

func (b *Breaker) trip() {
	b.reopens++
	b.openUntil = b.settings.Now().Add(b.backoff(b.reopens))
	b.setState(StateOpen)
}

func (b *Breaker) refresh() {
	if b.state == StateOpen && !b.settings.Now().Before(b.openUntil) {
		b.setState(StateHalfOpen)
	}
}

// setState changes the state of the circuit breaker
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.trialIssued = false

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
