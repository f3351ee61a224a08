// Package breaker implements the three-state circuit breaker of spec.md
// §4.4: Closed -> Open on consecutive countable failures reaching
// failureThreshold, Open -> HalfOpen after recoveryTimeMs, HalfOpen ->
// Closed on one success, HalfOpen -> Open on one failure. Adapted from the
// teacher framework's resilience.CircuitBreaker (atomic state word,
// structured logging, pluggable MetricsCollector) with the sliding-window
// error-rate machinery trimmed: spec.md specifies an exact
// consecutive-failure counter, not a windowed error rate, so that part of
// the teacher design has no SPEC_FULL component to bind to (see DESIGN.md).
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/leon4s4/httpsource/internal/classify"
	"github.com/leon4s4/httpsource/internal/logger"
)

// State mirrors resilience.CircuitState from the teacher package.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// MetricsCollector is the same shape as the teacher's resilience.MetricsCollector,
// so the OTel-backed implementation in internal/metrics satisfies both.
type MetricsCollector interface {
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordStateChange(name string, from, to string) {}
func (noopMetrics) RecordRejection(name string)                    {}

// Config configures one endpoint's breaker.
type Config struct {
	Name             string
	FailureThreshold int
	RecoveryTime     time.Duration
	Logger           logger.Logger
	Metrics          MetricsCollector
}

// DefaultConfig mirrors the teacher's DefaultConfig shape: safe zero values
// for everything not explicitly sized by the caller's endpoint config.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTime:     30 * time.Second,
		Logger:           logger.NewDefaultLogger(),
		Metrics:          noopMetrics{},
	}
}

// CircuitBreaker is single-endpoint scoped; concurrent failure reports must
// still be idempotent under the spec's concurrency model (spec.md §5),
// which is why state transitions hold mu while the hot-path Allow() check
// only touches the atomic state word.
type CircuitBreaker struct {
	cfg *Config

	state               atomic.Int32
	consecutiveFailures atomic.Int32
	lastFailureAt       atomic.Int64 // unix nanos

	mu sync.Mutex
}

// New builds a breaker in the Closed state.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefaultLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	cb := &CircuitBreaker{cfg: cfg}
	cb.state.Store(int32(Closed))
	return cb
}

// State returns the current state, promoting Open -> HalfOpen as a side
// effect once the recovery window has elapsed (invariant 4, spec.md §8: the
// very next tick after the recovery window attempts exactly one HalfOpen
// call).
func (cb *CircuitBreaker) State(now time.Time) State {
	current := State(cb.state.Load())
	if current != Open {
		return current
	}

	lastFailure := time.Unix(0, cb.lastFailureAt.Load())
	if now.Sub(lastFailure) < cb.cfg.RecoveryTime {
		return Open
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	// Re-check under lock: another goroutine may have already promoted
	// this breaker between the atomic load above and acquiring mu.
	if State(cb.state.Load()) != Open {
		return State(cb.state.Load())
	}
	cb.transition(HalfOpen)
	return HalfOpen
}

// Allow reports whether a call may proceed: true in Closed/HalfOpen, false
// in Open (spec.md §4.4).
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	return cb.State(now) != Open
}

// RecordSuccess closes the breaker (from HalfOpen) and always resets the
// consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.consecutiveFailures.Store(0)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if State(cb.state.Load()) != Closed {
		cb.transition(Closed)
	}
}

// RecordFailure reports a failure of the given category. Only categories
// that CountsTowardBreaker (Transient, RateLimit) move the breaker; all
// others (Authentication, ClientError, DataFormat, Configuration, Unknown)
// return without touching the breaker; the engine reports every failed
// poll here and relies on this filter.
func (cb *CircuitBreaker) RecordFailure(category classify.Category, now time.Time) {
	if !category.CountsTowardBreaker() {
		return
	}

	cb.lastFailureAt.Store(now.UnixNano())

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch State(cb.state.Load()) {
	case HalfOpen:
		cb.consecutiveFailures.Store(int32(cb.cfg.FailureThreshold))
		cb.transition(Open)
	case Open:
		// already open; nothing further to do
	default: // Closed
		n := cb.consecutiveFailures.Add(1)
		if int(n) >= cb.cfg.FailureThreshold {
			cb.transition(Open)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := State(cb.state.Load())
	if from == to {
		return
	}
	cb.state.Store(int32(to))
	cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
		"breaker": cb.cfg.Name,
		"from":    from.String(),
		"to":      to.String(),
	})
	cb.cfg.Metrics.RecordStateChange(cb.cfg.Name, from.String(), to.String())
	if to == Closed {
		cb.consecutiveFailures.Store(0)
	}
}
