// Package breaker implements a per-provider circuit breaker. Each payment
// provider gets its own instance with its own thresholds; instances are
// owned by a Registry so tests can construct isolated breakers.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker is open. Callers treat it as a fast, terminal failure for the
// current attempt, distinct from a generic timeout.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of the breaker's internal machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Settings are provider-specific; they are configuration, never shared
// between providers.
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	CallTimeout      time.Duration
	ResetTimeout     time.Duration
}

// Breaker guards one external provider. Safe for concurrent use.
type Breaker struct {
	name     string
	settings Settings
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailureAt time.Time
}

func New(name string, settings Settings, logger *slog.Logger) *Breaker {
	return &Breaker{
		name:     name,
		settings: settings,
		logger:   logger,
		state:    StateClosed,
	}
}

// State returns the current state, accounting for an elapsed reset timeout
// (an OPEN breaker whose cooldown has passed reports HALF_OPEN).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Execute runs fn under the breaker's protection. The call races against
// the per-call timeout; a timeout counts as a failure. While the breaker is
// open, fn is never invoked and ErrCircuitOpen is returned immediately.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	if err != nil {
		if ctx.Err() != nil {
			// The caller went away, typically on shutdown. That says
			// nothing about provider health, so it does not count against
			// the failure threshold.
			return err
		}
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// beforeCall admits or rejects a call, entering HALF_OPEN when a probe is
// allowed through after the reset timeout.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(time.Now()) {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.state == StateOpen {
			b.logger.Info("circuit breaker probing", "provider", b.name)
			b.state = StateHalfOpen
			b.successes = 0
		}
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.logger.Info("circuit breaker closed", "provider", b.name)
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.logger.Warn("circuit breaker opened",
				"provider", b.name,
				"consecutive_failures", b.failures)
			b.state = StateOpen
		}
	case StateHalfOpen:
		// A single failed probe re-opens immediately.
		b.logger.Warn("circuit breaker re-opened after failed probe", "provider", b.name)
		b.state = StateOpen
		b.successes = 0
	}
}

// currentState must be called with the mutex held.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.lastFailureAt) >= b.settings.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}
