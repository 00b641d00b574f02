package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirapay/internal/application"
	"kirapay/internal/application/services/testhelpers"
	"kirapay/internal/idempotency"
)

func newGuard(store application.KVStore) *idempotency.Guard {
	return idempotency.NewGuard(store, idempotency.Config{
		InFlightTTL:  time.Minute,
		ResolvedTTL:  time.Hour,
		PollInterval: 10 * time.Millisecond,
		WaitBudget:   200 * time.Millisecond,
	}, testhelpers.QuietLogger())
}

func TestGuard_FreshTokenIsNew(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	begin, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, begin.IsNew)
	assert.Empty(t, begin.ResolvedPaymentID)
}

func TestGuard_EmptyTokenRejected(t *testing.T) {
	guard := newGuard(testhelpers.NewFakeKVStore())

	_, err := guard.Begin(context.Background(), "")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeValidation, svcErr.Code)
}

func TestGuard_ResolvedTokenReturnsPaymentID(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	begin, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, begin.IsNew)

	require.NoError(t, guard.Resolve(ctx, "tok-1", "payment-42"))

	begin, err = guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, begin.IsNew)
	assert.Equal(t, "payment-42", begin.ResolvedPaymentID)
}

func TestGuard_AbortFreesToken(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	begin, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, begin.IsNew)

	require.NoError(t, guard.Abort(ctx, "tok-1"))

	begin, err = guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, begin.IsNew)
}

func TestGuard_InFlightTokenAwaitsResolution(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	begin, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, begin.IsNew)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = guard.Resolve(ctx, "tok-1", "payment-77")
	}()

	begin, err = guard.Begin(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, begin.IsNew)
	assert.Equal(t, "payment-77", begin.ResolvedPaymentID)
}

func TestGuard_WaitBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	_, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)

	// Nobody ever resolves the token.
	_, err = guard.Begin(ctx, "tok-1")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeProcessingTimeout, svcErr.Code)
}

func TestGuard_CancelledAwaitMapsToProcessingTimeout(t *testing.T) {
	guard := newGuard(testhelpers.NewFakeKVStore())

	_, err := guard.Begin(context.Background(), "tok-1")
	require.NoError(t, err)

	// The duplicate caller disconnects while the first attempt is still in
	// flight; the error must stay inside the service taxonomy.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = guard.Begin(ctx, "tok-1")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeProcessingTimeout, svcErr.Code)
}

func TestGuard_AbortDuringAwaitReportsConflict(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	_, err := guard.Begin(ctx, "tok-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = guard.Abort(ctx, "tok-1")
	}()

	_, err = guard.Begin(ctx, "tok-1")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeConflict, svcErr.Code)
}

func TestGuard_ConcurrentBeginsAdmitExactlyOne(t *testing.T) {
	ctx := context.Background()
	guard := newGuard(testhelpers.NewFakeKVStore())

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan idempotency.BeginResult, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			begin, err := guard.Begin(ctx, "tok-race")
			if err == nil && begin.IsNew {
				// The winner resolves after a short creation window, like
				// the payment service does.
				time.Sleep(20 * time.Millisecond)
				_ = guard.Resolve(ctx, "tok-race", "payment-1")
			}
			if err == nil {
				results <- begin
			}
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for begin := range results {
		if begin.IsNew {
			winners++
		} else {
			assert.Equal(t, "payment-1", begin.ResolvedPaymentID)
		}
	}
	assert.Equal(t, 1, winners)
}
