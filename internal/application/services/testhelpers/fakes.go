// Package testhelpers provides in-memory fakes for the application ports.
// Every fake is safe for concurrent use so tests can exercise the guard and
// the worker pool with real goroutines.
package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"kirapay/internal/application"
	"kirapay/internal/domain"
	"kirapay/internal/provider"
)

type kvEntry struct {
	value     string
	expiresAt time.Time
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// FakeKVStore implements application.KVStore on a mutex-guarded map with
// real TTL bookkeeping.
type FakeKVStore struct {
	mu      sync.Mutex
	entries map[string]kvEntry

	// SetIfAbsentErr, when set, is returned by SetIfAbsent.
	SetIfAbsentErr error
}

func NewFakeKVStore() *FakeKVStore {
	return &FakeKVStore{entries: make(map[string]kvEntry)}
}

func (f *FakeKVStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if f.SetIfAbsentErr != nil {
		return false, f.SetIfAbsentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	f.entries[key] = kvEntry{value: value, expiresAt: expiry(ttl)}
	return true, nil
}

func (f *FakeKVStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[key]
	if !ok || e.expired(time.Now()) {
		return "", application.ErrKeyNotFound
	}
	return e.value, nil
}

func (f *FakeKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = kvEntry{value: value, expiresAt: expiry(ttl)}
	return nil
}

func (f *FakeKVStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *FakeKVStore) Increment(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	var expiresAt time.Time
	if e, ok := f.entries[key]; ok && !e.expired(time.Now()) {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
		expiresAt = e.expiresAt
	}
	n++
	f.entries[key] = kvEntry{value: strconv.FormatInt(n, 10), expiresAt: expiresAt}
	return n, nil
}

func (f *FakeKVStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[key]; ok {
		e.expiresAt = at
		f.entries[key] = e
	}
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// FakePaymentRepository keeps payments in memory. Reads hand out copies, so
// two callers holding the result of FindByID see independent rows, the same
// way two workers each scanning the same database row would.
type FakePaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]domain.Payment

	CreateErr error
	UpdateErr error
}

func NewFakePaymentRepository() *FakePaymentRepository {
	return &FakePaymentRepository{payments: make(map[uuid.UUID]domain.Payment)}
}

func (f *FakePaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (f *FakePaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payments[payment.ID]; !ok {
		return domain.NewPaymentNotFoundError(payment.ID.String())
	}
	f.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (f *FakePaymentRepository) TransitionStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error {
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.payments[payment.ID]
	if !ok || stored.Status != from {
		return application.ErrStaleTransition
	}
	f.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (f *FakePaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, domain.NewPaymentNotFoundError(id.String())
	}
	copied := clonePayment(&p)
	return &copied, nil
}

func (f *FakePaymentRepository) FindOverduePending(ctx context.Context, dueBefore time.Time, limit int) ([]*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var overdue []*domain.Payment
	for _, p := range f.payments {
		if p.Status == domain.StatusPending && p.DueDate.Before(dueBefore) {
			copied := clonePayment(&p)
			overdue = append(overdue, &copied)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func clonePayment(p *domain.Payment) domain.Payment {
	copied := *p
	if p.Metadata != nil {
		copied.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}

// FakeContractRepository keeps contracts in memory and records risk bumps.
type FakeContractRepository struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]*domain.Contract
	riskBumps map[uuid.UUID]int

	AddToBalanceErr error
}

func NewFakeContractRepository(contracts ...*domain.Contract) *FakeContractRepository {
	f := &FakeContractRepository{
		contracts: make(map[uuid.UUID]*domain.Contract),
		riskBumps: make(map[uuid.UUID]int),
	}
	for _, c := range contracts {
		f.contracts[c.ID] = c
	}
	return f
}

func (f *FakeContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[id]
	if !ok {
		return nil, domain.NewContractNotFoundError(id.String())
	}
	return c, nil
}

func (f *FakeContractRepository) AddToBalance(ctx context.Context, contractID uuid.UUID, amountCents int64) error {
	if f.AddToBalanceErr != nil {
		return f.AddToBalanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[contractID]
	if !ok {
		return domain.NewContractNotFoundError(contractID.String())
	}
	c.BalanceCents += amountCents
	return nil
}

func (f *FakeContractRepository) IncrementTenantRisk(ctx context.Context, tenantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riskBumps[tenantID]++
	return nil
}

// RiskBumps returns how many times the tenant's risk was incremented.
func (f *FakeContractRepository) RiskBumps(tenantID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.riskBumps[tenantID]
}

// FakeJobRepository keeps job rows in memory.
type FakeJobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.Job
}

func NewFakeJobRepository() *FakeJobRepository {
	return &FakeJobRepository{jobs: make(map[uuid.UUID]domain.Job)}
}

func (f *FakeJobRepository) Create(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = *job
	return nil
}

func (f *FakeJobRepository) Update(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = *job
	return nil
}

func (f *FakeJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := j
	return &copied, nil
}

func (f *FakeJobRepository) FindDeliverable(ctx context.Context, limit int) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var deliverable []*domain.Job
	for _, j := range f.jobs {
		if j.Status == domain.JobQueued || j.Status == domain.JobRunning {
			copied := j
			deliverable = append(deliverable, &copied)
		}
	}
	sort.Slice(deliverable, func(i, j int) bool {
		return deliverable[i].CreatedAt.Before(deliverable[j].CreatedAt)
	})
	if len(deliverable) > limit {
		deliverable = deliverable[:limit]
	}
	return deliverable, nil
}

// FakeQueue records enqueued jobs instead of delivering them.
type FakeQueue struct {
	mu      sync.Mutex
	jobs    []*domain.Job
	delayed []*domain.Job

	EnqueueErr error
}

func NewFakeQueue() *FakeQueue {
	return &FakeQueue{}
}

func (f *FakeQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	if f.EnqueueErr != nil {
		return f.EnqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *FakeQueue) EnqueueAfter(ctx context.Context, job *domain.Job, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed = append(f.delayed, job)
	return nil
}

// Enqueued returns the immediately-enqueued jobs in order.
func (f *FakeQueue) Enqueued() []*domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Job(nil), f.jobs...)
}

// EnqueuedOf returns the enqueued jobs of one type.
func (f *FakeQueue) EnqueuedOf(jobType domain.JobType) []*domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Job
	for _, j := range f.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

// CaptureBus records published events for assertions.
type CaptureBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewCaptureBus() *CaptureBus {
	return &CaptureBus{}
}

func (b *CaptureBus) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns everything published so far.
func (b *CaptureBus) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

// EventsOf returns the published events of one type.
func (b *CaptureBus) EventsOf(eventType domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// FakeProviderClient implements provider.Client with an overridable charge
// function.
type FakeProviderClient struct {
	PaymentMethod domain.PaymentMethod
	ChargeFn      func(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResponse, error)

	mu    sync.Mutex
	calls int
}

func (f *FakeProviderClient) Method() domain.PaymentMethod {
	return f.PaymentMethod
}

func (f *FakeProviderClient) Charge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.ChargeFn(ctx, req)
}

// Calls returns how many times Charge was invoked.
func (f *FakeProviderClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeArtifactStore records uploads in memory.
type FakeArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	UploadErr error
}

func NewFakeArtifactStore() *FakeArtifactStore {
	return &FakeArtifactStore{objects: make(map[string][]byte)}
}

func (f *FakeArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.UploadErr != nil {
		return f.UploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *FakeArtifactStore) TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}

// Uploads returns how many objects were stored.
func (f *FakeArtifactStore) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
