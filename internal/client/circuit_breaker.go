package client

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "quill_circuit_state",
	Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
}, []string{"name"})

// State represents the state of the circuit breaker.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calls to a failing dependency for a cooling-off
// period. It is safe for concurrent use; in half-open state a single probe is
// let through until it reports its outcome.
type CircuitBreaker struct {
	name        string
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	timeout     time.Duration
	lastFailure time.Time
	probing     bool
}

// NewCircuitBreaker opens after maxFailures consecutive failures and
// half-opens once timeout has elapsed since the last failure.
func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration) *CircuitBreaker {
	circuitState.WithLabelValues(name).Set(float64(StateClosed))
	return &CircuitBreaker{
		name:        name,
		state:       StateClosed,
		maxFailures: max(maxFailures, 1),
		timeout:     timeout,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) <= cb.timeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true
	default:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
}

// Success records a successful call.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
}

// Failure records a failed call.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	cb.probing = false

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// caller holds mu
func (cb *CircuitBreaker) setState(s State) {
	log.Info().Str("breaker", cb.name).Stringer("from", cb.state).Stringer("to", s).Msg("Circuit breaker state change")
	cb.state = s
	circuitState.WithLabelValues(cb.name).Set(float64(s))
}
