// Package idempotency deduplicates retried payment-creation requests using
// a caller-supplied token backed by an atomic conditional write in the KV
// store. The conditional set is the only synchronization point preventing
// duplicate payment creation for one token.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

// inFlightSentinel marks a token whose payment is still being created.
const inFlightSentinel = "__IN_FLIGHT__"

// Config holds the TTL and wait-budget knobs. In-flight records expire fast
// so a crashed creator does not wedge the token; resolved records live long
// enough to absorb client retries.
type Config struct {
	InFlightTTL  time.Duration
	ResolvedTTL  time.Duration
	PollInterval time.Duration
	WaitBudget   time.Duration
}

func DefaultConfig() Config {
	return Config{
		InFlightTTL:  time.Hour,
		ResolvedTTL:  24 * time.Hour,
		PollInterval: 500 * time.Millisecond,
		WaitBudget:   30 * time.Second,
	}
}

// BeginResult reports whether the token is fresh; when it is not, the id of
// the payment it already resolved to.
type BeginResult struct {
	IsNew             bool
	ResolvedPaymentID string
}

type Guard struct {
	store  application.KVStore
	cfg    Config
	logger *slog.Logger
}

func NewGuard(store application.KVStore, cfg Config, logger *slog.Logger) *Guard {
	return &Guard{store: store, cfg: cfg, logger: logger}
}

// Begin reserves the token. On IsNew the caller owns creation and must end
// with Resolve or Abort. On a token already resolved, the existing payment
// id is returned. On a token still in flight, Begin waits for the concurrent
// creator up to the wait budget and fails with a processing-timeout error if
// it never resolves.
func (g *Guard) Begin(ctx context.Context, token string) (BeginResult, error) {
	if token == "" {
		return BeginResult{}, application.NewValidationError(domain.NewMissingFieldError("idempotency token"))
	}

	key := keyFor(token)
	set, err := g.store.SetIfAbsent(ctx, key, inFlightSentinel, g.cfg.InFlightTTL)
	if err != nil {
		return BeginResult{}, application.NewInternalError(fmt.Errorf("idempotency reserve: %w", err))
	}
	if set {
		return BeginResult{IsNew: true}, nil
	}

	value, err := g.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, application.ErrKeyNotFound) {
			// The concurrent holder aborted between our set and get; the
			// token is free again for the caller's retry.
			return BeginResult{}, application.NewConflictError("previous attempt for this token was aborted, retry the request")
		}
		return BeginResult{}, application.NewInternalError(fmt.Errorf("idempotency lookup: %w", err))
	}

	if value != inFlightSentinel {
		return BeginResult{ResolvedPaymentID: value}, nil
	}

	return g.await(ctx, key, token)
}

// Resolve binds the token to the created payment.
func (g *Guard) Resolve(ctx context.Context, token, paymentID string) error {
	if err := g.store.Set(ctx, keyFor(token), paymentID, g.cfg.ResolvedTTL); err != nil {
		return application.NewInternalError(fmt.Errorf("idempotency resolve: %w", err))
	}
	return nil
}

// Abort frees the token after a failed creation so the caller can retry.
func (g *Guard) Abort(ctx context.Context, token string) error {
	if err := g.store.Delete(ctx, keyFor(token)); err != nil {
		return application.NewInternalError(fmt.Errorf("idempotency abort: %w", err))
	}
	return nil
}

// await polls until the in-flight record resolves or the wall-clock budget
// runs out. Duplicate submissions under a lost response land here.
func (g *Guard) await(ctx context.Context, key, token string) (BeginResult, error) {
	deadline := time.Now().Add(g.cfg.WaitBudget)
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The caller gave up before the concurrent creator resolved;
			// the token is still being worked on.
			return BeginResult{}, application.NewProcessingTimeoutError()
		case <-ticker.C:
		}

		value, err := g.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, application.ErrKeyNotFound) {
				return BeginResult{}, application.NewConflictError("previous attempt for this token was aborted, retry the request")
			}
			return BeginResult{}, application.NewInternalError(fmt.Errorf("idempotency poll: %w", err))
		}
		if value != inFlightSentinel {
			return BeginResult{ResolvedPaymentID: value}, nil
		}

		if time.Now().After(deadline) {
			g.logger.Warn("idempotency wait budget exhausted", "token", token)
			return BeginResult{}, application.NewProcessingTimeoutError()
		}
	}
}

func keyFor(token string) string {
	return "idempotency:" + token
}
