package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errSend = errors.New("send failed")

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		threshold     uint32
		results       []error
		expectedState State
	}{
		{"stays closed on successes", 2, []error{nil, nil, nil}, StateClosed},
		{"opens at threshold", 3, []error{errSend, errSend, errSend}, StateOpen},
		{"success resets the run", 3, []error{errSend, errSend, nil, errSend}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			breaker := New("test", Settings{FailureThreshold: tt.threshold, Now: clock.Now})

			for _, result := range tt.results {
				result := result
				_ = breaker.Execute(func() error { return result })
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := New("intake", Settings{FailureThreshold: 1, BaseTimeout: time.Second, Now: clock.Now})

	breaker.Record(errSend)
	require.Equal(t, StateOpen, breaker.State())
	assert.ErrorIs(t, breaker.Allow(), ErrCircuitOpen)

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Allow(), "first trial admitted")
	assert.ErrorIs(t, breaker.Allow(), ErrCircuitOpen, "second caller waits for the trial")

	breaker.Record(nil)
	assert.Equal(t, StateClosed, breaker.State())
	assert.NoError(t, breaker.Allow())
}

func TestBreakerBackoffGrows(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := New("intake", Settings{
		FailureThreshold: 1,
		BaseTimeout:      time.Second,
		MaxTimeout:       5 * time.Second,
		Now:              clock.Now,
	})

	assert.Equal(t, time.Second, breaker.Backoff())
	breaker.Record(errSend)

	// Failed trial reopens for 4s
	clock.Advance(time.Second)
	require.NoError(t, breaker.Allow())
	breaker.Record(errSend)
	clock.Advance(3 * time.Second)
	assert.Equal(t, StateOpen, breaker.State())
	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	// Third reopen is capped
	require.NoError(t, breaker.Allow())
	breaker.Record(errSend)
	assert.Equal(t, 5*time.Second, breaker.Backoff())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	breaker := New("intake", Settings{
		FailureThreshold: 2,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	breaker.Record(errSend)
	breaker.Record(errSend)
	clock.Advance(time.Second)
	breaker.State()
	breaker.Record(nil)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	assert.Equal(t, uint32(0), breaker.Failures())
}

func TestBreakerConcurrentUse(t *testing.T) {
	breaker := New("intake", Settings{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = breaker.Execute(func() error {
				if i%2 == 0 {
					return errSend
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateClosed, breaker.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
