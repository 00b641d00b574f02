package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirapay/internal/application/services"
	"kirapay/internal/application/services/testhelpers"
	"kirapay/internal/domain"
)

type overdueFixture struct {
	scanner      *services.OverdueScanner
	paymentRepo  *testhelpers.FakePaymentRepository
	contractRepo *testhelpers.FakeContractRepository
	bus          *testhelpers.CaptureBus
	contract     *domain.Contract
}

func newOverdueFixture(t *testing.T, cfg services.OverdueConfig) *overdueFixture {
	t.Helper()
	f := &overdueFixture{
		paymentRepo: testhelpers.NewFakePaymentRepository(),
		bus:         testhelpers.NewCaptureBus(),
	}
	f.contract = testhelpers.ActiveContract(uuid.New(), 1500000)
	f.contractRepo = testhelpers.NewFakeContractRepository(f.contract)
	f.scanner = services.NewOverdueScanner(
		f.paymentRepo,
		f.contractRepo,
		f.bus,
		testhelpers.QuietLogger(),
		cfg,
	)
	return f
}

func (f *overdueFixture) addOverdue(t *testing.T, daysOverdue int) *domain.Payment {
	t.Helper()
	payment := testhelpers.PendingPayment(f.contract, 1500000, daysOverdue)
	require.NoError(t, f.paymentRepo.Create(context.Background(), payment))
	return payment
}

func defaultOverdueConfig() services.OverdueConfig {
	return services.OverdueConfig{
		GraceDays:          3,
		BatchSize:          50,
		ReminderMilestones: []int{3, 7, 14},
	}
}

func TestScan_BumpsRiskAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newOverdueFixture(t, defaultOverdueConfig())

	f.addOverdue(t, 5)
	f.addOverdue(t, 10)

	result, err := f.scanner.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 0, result.Reminders, "days 5 and 10 are not milestones")

	assert.Equal(t, 2, f.contractRepo.RiskBumps(f.contract.TenantID))
	assert.Len(t, f.bus.EventsOf(domain.EventPaymentOverdue), 2)
}

func TestScan_RemindsOnMilestonesOnly(t *testing.T) {
	ctx := context.Background()
	f := newOverdueFixture(t, defaultOverdueConfig())

	f.addOverdue(t, 7)
	f.addOverdue(t, 8)
	f.addOverdue(t, 14)

	result, err := f.scanner.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Reminders)

	reminded := 0
	for _, event := range f.bus.EventsOf(domain.EventPaymentOverdue) {
		payload, ok := event.Payload.(domain.OverdueEventPayload)
		require.True(t, ok)
		if payload.Remind {
			reminded++
		}
	}
	assert.Equal(t, 2, reminded)
}

func TestScan_RespectsGracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newOverdueFixture(t, defaultOverdueConfig())

	f.addOverdue(t, 1) // inside the grace window
	f.addOverdue(t, 6)

	result, err := f.scanner.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
}

func TestScan_DryRunMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newOverdueFixture(t, defaultOverdueConfig())

	f.addOverdue(t, 7)
	f.addOverdue(t, 14)

	result, err := f.scanner.Scan(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.True(t, result.DryRun)

	assert.Equal(t, 0, f.contractRepo.RiskBumps(f.contract.TenantID))
	assert.Empty(t, f.bus.Events())
}

func TestScan_HonorsBatchSize(t *testing.T) {
	ctx := context.Background()
	cfg := defaultOverdueConfig()
	cfg.BatchSize = 2
	f := newOverdueFixture(t, cfg)

	for days := 5; days < 10; days++ {
		f.addOverdue(t, days)
	}

	result, err := f.scanner.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
}
