package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirapay/internal/application/services"
	"kirapay/internal/application/services/testhelpers"
	"kirapay/internal/breaker"
	"kirapay/internal/domain"
	"kirapay/internal/idempotency"
	"kirapay/internal/interfaces/rest/handlers"
	"kirapay/internal/provider"
	"kirapay/internal/receipt"
)

type apiFixture struct {
	server   *httptest.Server
	jobRepo  *testhelpers.FakeJobRepository
	kv       *testhelpers.FakeKVStore
	contract *domain.Contract
	tenantID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := testhelpers.QuietLogger()

	tenantID := uuid.New()
	contract := testhelpers.ActiveContract(tenantID, 1500000)
	store := testhelpers.NewFakeKVStore()
	jobRepo := testhelpers.NewFakeJobRepository()

	guard := idempotency.NewGuard(store, idempotency.Config{
		InFlightTTL:  time.Minute,
		ResolvedTTL:  time.Hour,
		PollInterval: 10 * time.Millisecond,
		WaitBudget:   time.Second,
	}, logger)

	service := services.NewPaymentService(
		testhelpers.NewFakePaymentRepository(),
		testhelpers.NewFakeContractRepository(contract),
		guard,
		receipt.NewSequence(store, "RCP"),
		provider.NewRegistry(),
		breaker.NewRegistry(),
		testhelpers.NewFakeQueue(),
		testhelpers.NewCaptureBus(),
		logger,
		0.95,
		3,
	)

	h := handlers.NewHandlers(service, jobRepo, store, logger)
	server := httptest.NewServer(h.InitRouter(5*time.Second, logger))
	t.Cleanup(server.Close)

	return &apiFixture{
		server:   server,
		jobRepo:  jobRepo,
		kv:       store,
		contract: contract,
		tenantID: tenantID,
	}
}

func (f *apiFixture) createRequest(t *testing.T, body map[string]any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/payments", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) validBody() map[string]any {
	return map[string]any{
		"contract_id":  f.contract.ID.String(),
		"tenant_id":    f.tenantID.String(),
		"amount_cents": 1500000,
		"method":       "CASH",
		"due_date":     time.Now().Add(5 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func defaultHeaders() map[string]string {
	return map[string]string{
		"Idempotency-Key": "tok-" + uuid.NewString(),
		"X-Actor-ID":      "clerk-1",
	}
}

func TestCreatePayment_Accepted(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.createRequest(t, f.validBody(), defaultHeaders())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var payment services.PaymentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payment))
	assert.Equal(t, domain.StatusPending, payment.Status)
	assert.Regexp(t, `^RCP-\d{4}-\d{6}$`, payment.ReceiptNumber)
	assert.Equal(t, "/api/v1/payments/"+payment.PaymentID.String(), payment.StatusURL)
}

func TestCreatePayment_SameTokenSamePayment(t *testing.T) {
	f := newAPIFixture(t)
	headers := defaultHeaders()

	first := f.createRequest(t, f.validBody(), headers)
	require.Equal(t, http.StatusAccepted, first.StatusCode)
	var a services.PaymentResponse
	require.NoError(t, json.NewDecoder(first.Body).Decode(&a))

	second := f.createRequest(t, f.validBody(), headers)
	require.Equal(t, http.StatusAccepted, second.StatusCode)
	var b services.PaymentResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&b))

	assert.Equal(t, a.PaymentID, b.PaymentID)
}

func TestCreatePayment_MissingIdempotencyKey(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.createRequest(t, f.validBody(), map[string]string{"X-Actor-ID": "clerk-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestCreatePayment_MissingActor(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.createRequest(t, f.validBody(), map[string]string{"Idempotency-Key": "tok-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePayment_MalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/payments", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	for k, v := range defaultHeaders() {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePayment_InactiveContract(t *testing.T) {
	f := newAPIFixture(t)
	f.contract.Status = domain.ContractTerminated

	resp := f.createRequest(t, f.validBody(), defaultHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetPayment_RoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	created := f.createRequest(t, f.validBody(), defaultHeaders())
	require.Equal(t, http.StatusAccepted, created.StatusCode)
	var payment services.PaymentResponse
	require.NoError(t, json.NewDecoder(created.Body).Decode(&payment))

	resp, err := http.Get(f.server.URL + payment.StatusURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched services.PaymentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, payment.PaymentID, fetched.PaymentID)
	assert.Equal(t, domain.StatusPending, fetched.Status)
}

func TestGetPayment_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/payments/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetPayment_MalformedID(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/payments/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob_ReportsLiveProgress(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	job, err := domain.NewJob(domain.JobProcessPayment, domain.ProcessPaymentPayload{PaymentID: uuid.New()}, 3)
	require.NoError(t, err)
	job.Status = domain.JobRunning
	require.NoError(t, f.jobRepo.Create(ctx, job))
	require.NoError(t, f.kv.Set(ctx, fmt.Sprintf("jobs:progress:%s", job.ID), "40", time.Hour))

	resp, err := http.Get(f.server.URL + "/api/v1/jobs/" + job.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		JobID    uuid.UUID `json:"job_id"`
		Status   string    `json:"status"`
		Progress int       `json:"progress"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, job.ID, body.JobID)
	assert.Equal(t, "RUNNING", body.Status)
	assert.Equal(t, 40, body.Progress)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/jobs/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
