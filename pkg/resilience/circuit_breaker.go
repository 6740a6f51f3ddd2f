package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// State is the position of a circuit.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is returned without calling the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a named circuit.
type BreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int

	// IsFailure decides whether an error counts against the circuit. Nil
	// counts every error. Errors that do not count behave like successes.
	IsFailure func(error) bool
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	if c.HalfOpenMaxAttempts <= 0 {
		c.HalfOpenMaxAttempts = 3
	}
	return c
}

// Status is a read-only snapshot of a circuit.
type Status struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	Failures         int        `json:"failures"`
	HalfOpenAttempts int        `json:"halfOpenAttempts"`
	LastFailureAt    *time.Time `json:"lastFailureAt,omitempty"`
}

// StateChangeFunc observes transitions. It runs under the breaker lock and
// must not call back into the breaker.
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker guards one external dependency. State is process-local and
// starts CLOSED on every boot.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time
	notify StateChangeFunc

	mu               sync.Mutex
	state            State
	failures         int
	halfOpenAttempts int
	lastFailure      time.Time
}

// NewCircuitBreaker builds a CLOSED breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, now func() time.Time, notify StateChangeFunc) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:   name,
		config: cfg.withDefaults(),
		now:    now,
		notify: notify,
		state:  StateClosed,
	}
}

// Name returns the circuit name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is OPEN and its reset timeout has not
// elapsed.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && cb.counts(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

// ExecuteValue is Execute for operations that return a value.
func ExecuteValue[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	return result, err
}

func (cb *CircuitBreaker) counts(err error) bool {
	if cb.config.IsFailure == nil {
		return true
	}
	return cb.config.IsFailure(err)
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastFailure) < cb.config.ResetTimeout {
		return ErrCircuitOpen
	}
	cb.halfOpenAttempts = 0
	cb.transition(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.failures = 0
		cb.halfOpenAttempts = 0
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.lastFailure = cb.now()
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.config.HalfOpenMaxAttempts {
			cb.lastFailure = cb.now()
			cb.transition(StateOpen)
		}
	case StateOpen:
		// a call admitted just before another caller reopened the circuit
		cb.lastFailure = cb.now()
	}
}

// caller holds cb.mu
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.notify != nil {
		cb.notify(cb.name, from, to)
	}
}

// Status returns a snapshot without mutating the circuit.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := Status{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		HalfOpenAttempts: cb.halfOpenAttempts,
	}
	if !cb.lastFailure.IsZero() {
		last := cb.lastFailure
		status.LastFailureAt = &last
	}
	return status
}

// Reset clears all state and closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenAttempts = 0
	cb.lastFailure = time.Time{}
	cb.transition(StateClosed)
}

// BreakerRegistry hands out named breakers sharing one configuration.
type BreakerRegistry struct {
	config BreakerConfig
	now    func() time.Time
	notify StateChangeFunc

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry builds an empty registry.
func NewBreakerRegistry(cfg BreakerConfig, now func() time.Time, notify StateChangeFunc) *BreakerRegistry {
	return &BreakerRegistry{
		config:   cfg,
		now:      now,
		notify:   notify,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, r.config, r.now, r.notify)
	r.breakers[name] = cb
	return cb
}

// Status reports a single circuit.
func (r *BreakerRegistry) Status(name string) (Status, bool) {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return cb.Status(), true
}

// Statuses reports every known circuit sorted by name.
func (r *BreakerRegistry) Statuses() []Status {
	r.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		list = append(list, cb)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears the named circuit. It reports false for unknown names.
func (r *BreakerRegistry) Reset(name string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}
