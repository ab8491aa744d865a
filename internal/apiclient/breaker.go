package apiclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smtlab/scheduler/internal/telemetry"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("smtlab: circuit breaker is open")

// circuitState represents the state of a circuit breaker.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) gaugeValue() float64 {
	switch s {
	case circuitHalfOpen:
		return 1
	case circuitOpen:
		return 2
	default:
		return 0
	}
}

// breakerConfig holds circuit breaker configuration.
type breakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	MaxRequests      int
}

func defaultBreakerConfig() breakerConfig {
	return breakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
	}
}

// breaker implements the circuit breaker pattern around one logical
// endpoint group of the control API (runs, benchmarks, results,
// solvers, queues), so repeated retry-exhaustion against one resource
// doesn't keep paying the full 5-attempt retry cost.
type breaker struct {
	name             string
	config           breakerConfig
	state            circuitState
	failures         int
	successes        int
	halfOpenRequests int
	lastFailure      time.Time
	mu               sync.Mutex
}

func newBreaker(name string) *breaker {
	return &breaker{name: name, config: defaultBreakerConfig(), state: circuitClosed}
}

// execute runs fn under breaker protection, returning ErrCircuitOpen
// without calling fn if the breaker is open.
func (b *breaker) execute(ctx context.Context, fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

func (b *breaker) currentState() circuitState {
	switch b.state {
	case circuitOpen:
		if time.Since(b.lastFailure) >= b.config.Timeout {
			return circuitHalfOpen
		}
		return circuitOpen
	default:
		return b.state
	}
}

func (b *breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case circuitClosed:
		return nil
	case circuitOpen:
		return ErrCircuitOpen
	case circuitHalfOpen:
		if b.halfOpenRequests >= b.config.MaxRequests {
			return ErrCircuitOpen
		}
		if b.state == circuitOpen {
			b.state = circuitHalfOpen
			b.halfOpenRequests = 0
		}
		b.halfOpenRequests++
		return nil
	default:
		return nil
	}
}

func (b *breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	telemetry.CircuitBreakerState.WithLabelValues(b.name).Set(b.currentState().gaugeValue())
}

func (b *breaker) onFailure() {
	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.currentState() {
	case circuitClosed:
		if b.failures >= b.config.FailureThreshold {
			b.state = circuitOpen
			b.halfOpenRequests = 0
		}
	case circuitHalfOpen:
		b.state = circuitOpen
		b.halfOpenRequests = 0
	}
}

func (b *breaker) onSuccess() {
	switch b.currentState() {
	case circuitClosed:
		b.failures = 0
	case circuitHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = circuitClosed
			b.failures = 0
			b.successes = 0
			b.halfOpenRequests = 0
		}
	}
}
