package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/avetra/crypto_trade_exec/internal/usecase"
)

func TestCircuitBreaker_TripsAfterMaxErrors(t *testing.T) {
	cb := usecase.NewCircuitBreaker(usecase.BreakerConfig{
		MaxErrors: 3,
		Window:    time.Minute,
		Action:    usecase.BreakerStop,
	})

	now := time.Now()
	tickErr := errors.New("exchange down")

	if cb.Observe(now, tickErr) {
		t.Fatal("tripped after one error")
	}
	if cb.Observe(now.Add(time.Second), tickErr) {
		t.Fatal("tripped after two errors")
	}
	if !cb.Observe(now.Add(2*time.Second), tickErr) {
		t.Fatal("expected trip after three errors")
	}

	state := cb.State()
	if state.ConsecutiveErrors != 3 {
		t.Errorf("consecutive errors = %d", state.ConsecutiveErrors)
	}
	if state.LastErrorMessage != "exchange down" {
		t.Errorf("last error = %q", state.LastErrorMessage)
	}
}

func TestCircuitBreaker_SuccessDoesNotResetCount(t *testing.T) {
	// Only the window resets; a success between errors inside the window
	// leaves the count in place.
	cb := usecase.NewCircuitBreaker(usecase.BreakerConfig{
		MaxErrors: 2,
		Window:    time.Minute,
	})

	now := time.Now()
	cb.Observe(now, errors.New("e1"))
	cb.Observe(now.Add(time.Second), nil)
	if !cb.Observe(now.Add(2*time.Second), errors.New("e2")) {
		t.Fatal("expected trip: the success tick should not have reset the count")
	}
}

func TestCircuitBreaker_ErrorOutsideWindowRestartsCount(t *testing.T) {
	cb := usecase.NewCircuitBreaker(usecase.BreakerConfig{
		MaxErrors: 2,
		Window:    time.Minute,
	})

	now := time.Now()
	cb.Observe(now, errors.New("e1"))
	// Next error lands past the window: count restarts at one.
	if cb.Observe(now.Add(2*time.Minute), errors.New("e2")) {
		t.Fatal("error outside window must not trip")
	}
	if got := cb.State().ConsecutiveErrors; got != 1 {
		t.Errorf("consecutive errors = %d, want 1", got)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := usecase.NewCircuitBreaker(usecase.BreakerConfig{MaxErrors: 2, Window: time.Minute})

	now := time.Now()
	cb.Observe(now, errors.New("e1"))
	cb.Reset()
	if got := cb.State().ConsecutiveErrors; got != 0 {
		t.Errorf("consecutive errors after reset = %d", got)
	}
	if cb.Observe(now.Add(time.Second), errors.New("e2")) {
		t.Fatal("single error after reset must not trip")
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := usecase.NewCircuitBreaker(usecase.BreakerConfig{Action: usecase.BreakerCooldown, Cooldown: time.Minute})

	now := time.Now()
	for i := 0; i < 4; i++ {
		if cb.Observe(now.Add(time.Duration(i)*time.Second), errors.New("e")) {
			t.Fatalf("tripped at error %d with default MaxErrors", i+1)
		}
	}
	if !cb.Observe(now.Add(5*time.Second), errors.New("e")) {
		t.Fatal("expected trip at the default threshold of five")
	}
	if cb.Action() != usecase.BreakerCooldown {
		t.Errorf("action = %s", cb.Action())
	}
	if cb.CooldownFor() != time.Minute {
		t.Errorf("cooldown = %s", cb.CooldownFor())
	}
}
