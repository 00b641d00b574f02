package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirapay/internal/domain"
)

func newPendingPayment(t *testing.T) *domain.Payment {
	t.Helper()
	payment, err := domain.NewPayment(
		uuid.New(),
		uuid.New(),
		uuid.New(),
		150000,
		domain.MethodTelebirr,
		time.Now().Add(7*24*time.Hour),
		"office-clerk",
	)
	require.NoError(t, err)
	return payment
}

func TestNewPayment_Validation(t *testing.T) {
	contractID := uuid.New()
	tenantID := uuid.New()
	due := time.Now()

	_, err := domain.NewPayment(uuid.New(), contractID, tenantID, 0, domain.MethodCash, due, "clerk")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))

	_, err = domain.NewPayment(uuid.New(), contractID, tenantID, -500, domain.MethodCash, due, "clerk")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))

	_, err = domain.NewPayment(uuid.New(), contractID, tenantID, 1000, "MPESA", due, "clerk")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidMethod))

	_, err = domain.NewPayment(uuid.New(), contractID, tenantID, 1000, domain.MethodCash, due, "")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeMissingField))

	payment, err := domain.NewPayment(uuid.New(), contractID, tenantID, 1000, domain.MethodCash, due, "clerk")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payment.Status)
	assert.NotNil(t, payment.Metadata)
}

func TestPayment_HappyLifecycle(t *testing.T) {
	payment := newPendingPayment(t)

	require.NoError(t, payment.MarkProcessing())
	assert.Equal(t, domain.StatusProcessing, payment.Status)

	paidAt := time.Now()
	require.NoError(t, payment.Complete("TXN-123", paidAt))
	assert.Equal(t, domain.StatusCompleted, payment.Status)
	assert.Equal(t, "TXN-123", *payment.ProviderTxnID)
	assert.Equal(t, paidAt, *payment.PaidAt)
	assert.True(t, payment.IsTerminal())
}

func TestPayment_FailureLifecycle(t *testing.T) {
	payment := newPendingPayment(t)

	require.NoError(t, payment.MarkProcessing())
	require.NoError(t, payment.Fail("insufficient funds"))
	assert.Equal(t, domain.StatusFailed, payment.Status)
	assert.Equal(t, "insufficient funds", *payment.FailureReason)
	assert.True(t, payment.IsTerminal())
}

func TestPayment_FailFromPending(t *testing.T) {
	payment := newPendingPayment(t)
	require.NoError(t, payment.Fail("contract terminated before processing"))
	assert.Equal(t, domain.StatusFailed, payment.Status)
}

func TestPayment_InvalidTransitions(t *testing.T) {
	payment := newPendingPayment(t)

	// PENDING cannot settle without passing through PROCESSING.
	err := payment.Complete("TXN-1", time.Now())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))

	require.NoError(t, payment.MarkProcessing())
	err = payment.MarkProcessing()
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))

	require.NoError(t, payment.Complete("TXN-1", time.Now()))

	// Terminal states are final.
	assert.Error(t, payment.MarkProcessing())
	assert.Error(t, payment.Fail("too late"))
	assert.Error(t, payment.Complete("TXN-2", time.Now()))
	assert.Equal(t, "TXN-1", *payment.ProviderTxnID)
}

func TestPaymentMethod_RequiresProvider(t *testing.T) {
	assert.True(t, domain.MethodTelebirr.RequiresProvider())
	assert.True(t, domain.MethodCBEBirr.RequiresProvider())
	assert.True(t, domain.MethodChapa.RequiresProvider())
	assert.False(t, domain.MethodCash.RequiresProvider())
	assert.False(t, domain.MethodCheck.RequiresProvider())
}

func TestPayment_DaysOverdue(t *testing.T) {
	payment := newPendingPayment(t)
	now := time.Now()

	payment.DueDate = now.Add(24 * time.Hour)
	assert.Equal(t, 0, payment.DaysOverdue(now))

	payment.DueDate = now.Add(-36 * time.Hour)
	assert.Equal(t, 1, payment.DaysOverdue(now))

	payment.DueDate = now.Add(-7 * 24 * time.Hour)
	assert.Equal(t, 7, payment.DaysOverdue(now))
}
