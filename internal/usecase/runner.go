package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickFunc is one bot iteration. The runner does not interpret the work,
// it only feeds the outcome to the circuit breaker.
type TickFunc func(ctx context.Context) error

// Runner drives one bot loop at a fixed interval and applies the breaker's
// configured action on trip: stop ends the loop, cooldown pauses it and
// resets the breaker.
type Runner struct {
	botID    string
	interval time.Duration
	tick     TickFunc
	breaker  *CircuitBreaker
	log      *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRunner(botID string, interval time.Duration, tick TickFunc, breaker *CircuitBreaker, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	return &Runner{
		botID:    botID,
		interval: interval,
		tick:     tick,
		breaker:  breaker,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			err := r.tick(ctx)
			if err != nil {
				r.log.Warn("tick failed", zap.String("botId", r.botID), zap.Error(err))
			}
			if !r.breaker.Observe(time.Now(), err) {
				continue
			}

			state := r.breaker.State()
			r.log.Error("circuit breaker tripped",
				zap.String("botId", r.botID),
				zap.Int("consecutiveErrors", state.ConsecutiveErrors),
				zap.String("lastError", state.LastErrorMessage),
				zap.String("action", string(r.breaker.Action())))

			switch r.breaker.Action() {
			case BreakerStop:
				return
			case BreakerCooldown:
				select {
				case <-ctx.Done():
					return
				case <-r.stopCh:
					return
				case <-time.After(r.breaker.CooldownFor()):
					r.breaker.Reset()
				}
			}
		}
	}
}
