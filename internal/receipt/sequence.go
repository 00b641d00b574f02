// Package receipt issues year-scoped sequential receipt references and
// renders receipt artifacts.
package receipt

import (
	"context"
	"fmt"
	"time"

	"kirapay/internal/application"
)

// Sequence generates references like RCP-2026-000123. The increment is
// atomic at the storage layer, so concurrent creations never collide; gaps
// from failed creations are acceptable.
type Sequence struct {
	store  application.KVStore
	prefix string
	now    func() time.Time
}

func NewSequence(store application.KVStore, prefix string) *Sequence {
	return &Sequence{store: store, prefix: prefix, now: time.Now}
}

func (s *Sequence) Next(ctx context.Context) (string, error) {
	year := s.now().UTC().Year()
	key := fmt.Sprintf("receipts:seq:%d", year)

	n, err := s.store.Increment(ctx, key)
	if err != nil {
		return "", fmt.Errorf("receipt sequence increment: %w", err)
	}

	// First issue of the year sets the counter to expire at the year
	// boundary. Re-arming on later calls would be harmless but is wasted
	// traffic.
	if n == 1 {
		boundary := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		if err := s.store.ExpireAt(ctx, key, boundary); err != nil {
			return "", fmt.Errorf("receipt sequence expiry: %w", err)
		}
	}

	return fmt.Sprintf("%s-%d-%06d", s.prefix, year, n), nil
}
