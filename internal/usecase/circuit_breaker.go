package usecase

import (
	"sync"
	"time"
)

// BreakerAction is what the caller should do when the breaker trips. The
// breaker only signals; the runner decides.
type BreakerAction string

const (
	BreakerStop     BreakerAction = "stop"
	BreakerCooldown BreakerAction = "cooldown"
)

// BreakerConfig configures the per-bot circuit breaker.
type BreakerConfig struct {
	MaxErrors int
	Window    time.Duration
	Action    BreakerAction
	Cooldown  time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxErrors: 5,
		Window:    2 * time.Minute,
		Action:    BreakerCooldown,
		Cooldown:  5 * time.Minute,
	}
}

// BreakerState is the observable breaker state, mutated once per tick
// outcome.
type BreakerState struct {
	ConsecutiveErrors  int
	ErrorWindowStartAt time.Time
	LastErrorAt        time.Time
	LastErrorMessage   string
}

// CircuitBreaker counts consecutive tick failures inside a sliding window.
// An error arriving outside the window restarts the count at one.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu    sync.Mutex
	state BreakerState
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultBreakerConfig().MaxErrors
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultBreakerConfig().Window
	}
	return &CircuitBreaker{cfg: cfg}
}

// Observe records one tick outcome and reports whether the breaker tripped.
// A nil error leaves the state untouched.
func (b *CircuitBreaker) Observe(now time.Time, tickErr error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tickErr == nil {
		return false
	}

	if b.state.LastErrorAt.IsZero() || now.Sub(b.state.LastErrorAt) > b.cfg.Window {
		b.state.ConsecutiveErrors = 1
		b.state.ErrorWindowStartAt = now
	} else {
		b.state.ConsecutiveErrors++
	}
	b.state.LastErrorAt = now
	b.state.LastErrorMessage = tickErr.Error()

	return b.state.ConsecutiveErrors >= b.cfg.MaxErrors
}

// Reset clears the error state, typically after a cooldown.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerState{}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Action() BreakerAction {
	return b.cfg.Action
}

func (b *CircuitBreaker) CooldownFor() time.Duration {
	return b.cfg.Cooldown
}
