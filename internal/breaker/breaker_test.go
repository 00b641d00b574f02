package breaker_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirapay/internal/breaker"
)

var errProviderDown = errors.New("provider down")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testSettings() breaker.Settings {
	return breaker.Settings{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		CallTimeout:      time.Second,
		ResetTimeout:     50 * time.Millisecond,
	}
}

func failTimes(t *testing.T, b *breaker.Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error {
			return errProviderDown
		})
		require.ErrorIs(t, err, errProviderDown)
	}
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b := breaker.New("telebirr", testSettings(), quietLogger())

	failTimes(t, b, 4)
	assert.Equal(t, breaker.StateClosed, b.State())

	failTimes(t, b, 1)
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b := breaker.New("telebirr", testSettings(), quietLogger())
	failTimes(t, b, 5)

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := breaker.New("telebirr", testSettings(), quietLogger())

	failTimes(t, b, 4)
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	// The streak restarts; four more failures still leave the circuit closed.
	failTimes(t, b, 4)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	settings := testSettings()
	b := breaker.New("telebirr", settings, quietLogger())
	failTimes(t, b, 5)
	require.Equal(t, breaker.StateOpen, b.State())

	time.Sleep(settings.ResetTimeout + 10*time.Millisecond)
	assert.Equal(t, breaker.StateHalfOpen, b.State())

	// Probes are admitted; after SuccessThreshold successes the circuit
	// closes again.
	for i := 0; i < settings.SuccessThreshold; i++ {
		require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		}))
	}
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	settings := testSettings()
	b := breaker.New("telebirr", settings, quietLogger())
	failTimes(t, b, 5)

	time.Sleep(settings.ResetTimeout + 10*time.Millisecond)
	failTimes(t, b, 1)
	assert.Equal(t, breaker.StateOpen, b.State())

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	settings := breaker.Settings{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		CallTimeout:      20 * time.Millisecond,
		ResetTimeout:     time.Minute,
	}
	b := breaker.New("cbebirr", settings, quietLogger())

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	settings := breaker.Settings{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		CallTimeout:      time.Second,
		ResetTimeout:     time.Minute,
	}
	b := breaker.New("cbebirr", settings, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled caller, typically shutdown, says nothing about provider
	// health and must not trip a threshold of one.
	err := b.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, breaker.StateClosed, b.State())

	invoked := false
	err = b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked)
}

func TestRegistry_IsolatesProviders(t *testing.T) {
	reg := breaker.NewRegistry()
	reg.Register("TELEBIRR", breaker.Settings{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		CallTimeout:      time.Second,
		ResetTimeout:     time.Minute,
	}, quietLogger())
	reg.Register("CHAPA", testSettings(), quietLogger())

	telebirr, err := reg.Get("TELEBIRR")
	require.NoError(t, err)
	chapa, err := reg.Get("CHAPA")
	require.NoError(t, err)

	failTimes(t, telebirr, 1)
	assert.Equal(t, breaker.StateOpen, telebirr.State())
	assert.Equal(t, breaker.StateClosed, chapa.State())

	_, err = reg.Get("MPESA")
	assert.Error(t, err)
}
