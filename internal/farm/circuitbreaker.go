// Package farm dispatches pipeline runs to the worker farm (spec §5
// "Shared resources": "the worker farm is the only component that escapes
// the main process") and bounds how aggressively the driver leans on a
// misbehaving or overloaded farm. Adapted from the teacher's upstream
// circuit-breaker/retry/rate-limit trio, keyed by transformer name instead
// of LLM provider.
package farm

import (
	"sync"
	"time"
)

// CBState represents the state of a circuit breaker.
type CBState int

const (
	// CBClosed means the circuit is healthy; dispatches flow through.
	CBClosed CBState = iota
	// CBOpen means the circuit has tripped; dispatches are rejected.
	CBOpen
	// CBHalfOpen means the circuit is testing recovery; limited dispatches are allowed.
	CBHalfOpen
)

// CircuitBreaker implements a per-transform-chain circuit breaker with
// three states:
// Closed → Open (after failureThreshold consecutive failures)
// Open → HalfOpen (after resetTimeout elapses)
// HalfOpen → Closed (after halfOpenMax consecutive successes) or back to Open on failure.
//
// A transform chain (e.g. "js", "css") tripping Open means the driver
// should stop sending that chain's asset requests to the farm until it
// recovers — every asset sharing that chain is affected identically,
// unlike an upstream LLM provider outage which only affects requests
// routed to that one provider. onChange, when set, is invoked on every
// transition so the owning registry can mirror breaker state into build
// telemetry without this package importing internal/reporter.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CBState
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int

	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time

	onChange func(CBState)
}

// NewCircuitBreaker creates a circuit breaker with the given parameters.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CBClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Allow reports whether a dispatch should be permitted through the
// circuit. In the Open state, it transitions to HalfOpen once the reset
// timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		return true
	case CBOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.setState(CBHalfOpen)
			cb.halfOpenSuccesses = 0
			return true
		}
		return false
	case CBHalfOpen:
		return true
	default:
		return true
	}
}

// setState must be called with cb.mu held. It updates cb.state and fires
// onChange exactly once per actual transition (never on a no-op "change"
// to the same state), so a chain flapping between Allow checks doesn't
// spam telemetry.
func (cb *CircuitBreaker) setState(next CBState) {
	if cb.state == next {
		return
	}
	cb.state = next
	if cb.onChange != nil {
		cb.onChange(next)
	}
}

// RecordSuccess records a successful dispatch. In HalfOpen state, after
// enough successes the circuit transitions back to Closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0

	if cb.state == CBHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMax {
			cb.setState(CBClosed)
		}
	}
}

// RecordFailure records a failed dispatch. In Closed state, transitions to
// Open after the failure threshold is reached. In HalfOpen state,
// transitions directly back to Open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CBClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.setState(CBOpen)
		}
	case CBHalfOpen:
		cb.setState(CBOpen)
		cb.halfOpenSuccesses = 0
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerRegistry is a thread-safe registry of per-transform-chain
// circuit breakers. Breakers are created lazily on first access via Get.
type CircuitBreakerRegistry struct {
	mu sync.Mutex

	breakers         map[string]*CircuitBreaker
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
	onStateChange    func(transformerName string, state CBState)
}

// NewCircuitBreakerRegistry creates a new registry with the given default parameters.
func NewCircuitBreakerRegistry(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// OnStateChange registers fn to be called, keyed by transform chain name,
// every time any breaker the registry owns changes state. It must be
// called before the registry's breakers are created (i.e. before the
// first Get for a given chain) to take effect for that chain, since the
// callback is bound into the breaker at creation time. Used to mirror
// breaker state into internal/reporter.Collector.SetCircuitState without
// this package depending on the reporter package.
func (r *CircuitBreakerRegistry) OnStateChange(fn func(transformerName string, state CBState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
}

// Get returns the circuit breaker for the given transform chain name,
// creating one if necessary.
func (r *CircuitBreakerRegistry) Get(transformerName string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[transformerName]
	if !ok {
		cb = NewCircuitBreaker(r.failureThreshold, r.resetTimeout, r.halfOpenMax)
		if r.onStateChange != nil {
			name := transformerName
			onStateChange := r.onStateChange
			cb.onChange = func(state CBState) { onStateChange(name, state) }
		}
		r.breakers[transformerName] = cb
	}
	return cb
}
