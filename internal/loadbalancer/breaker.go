package loadbalancer

import (
	"sync"
	"sync/atomic"
	"time"
)

// breakerState is the circuit-breaker state machine backing a
// supplemental per-channel signal. It never overrides the fast-path
// health predicate; Record and ProbeAll feed it, and its state is only
// reported by the per-channel performance admin endpoint.
type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "CLOSED"
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type circuitBreaker struct {
	maxFailures      int
	timeout          time.Duration
	successThreshold int

	state           int32
	mu              sync.Mutex
	consecutiveFail int
	consecutiveOK   int
	lastStateChange time.Time
}

func newCircuitBreaker(maxFailures int, timeout time.Duration, successThreshold int) *circuitBreaker {
	return &circuitBreaker{
		maxFailures:      maxFailures,
		timeout:          timeout,
		successThreshold: successThreshold,
		lastStateChange:  time.Now(),
	}
}

func (cb *circuitBreaker) State() breakerState {
	return breakerState(atomic.LoadInt32(&cb.state))
}

func (cb *circuitBreaker) transitionLocked(to breakerState) {
	atomic.StoreInt32(&cb.state, int32(to))
	cb.lastStateChange = time.Now()
	if to == breakerClosed {
		cb.consecutiveFail = 0
		cb.consecutiveOK = 0
	}
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFail = 0
	cb.consecutiveOK++

	if cb.State() == breakerHalfOpen && cb.consecutiveOK >= cb.successThreshold {
		cb.transitionLocked(breakerClosed)
	}
}

func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveOK = 0
	cb.consecutiveFail++

	switch cb.State() {
	case breakerClosed:
		if cb.consecutiveFail >= cb.maxFailures {
			cb.transitionLocked(breakerOpen)
		}
	case breakerHalfOpen:
		cb.transitionLocked(breakerOpen)
	}
}

// poll advances Open -> HalfOpen once the timeout has elapsed, and reports
// the (possibly updated) state.
func (cb *circuitBreaker) poll() breakerState {
	if cb.State() != breakerOpen {
		return cb.State()
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.State() == breakerOpen && time.Since(cb.lastStateChange) >= cb.timeout {
		cb.transitionLocked(breakerHalfOpen)
	}
	return cb.State()
}
