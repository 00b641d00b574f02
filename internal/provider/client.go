// Package provider holds the external payment provider clients and the
// strategy registry that selects one by payment method.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"kirapay/internal/domain"
)

// ChargeRequest is the single capability every provider implements.
type ChargeRequest struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	AmountCents   int64     `json:"amount_cents"`
	ReceiptNumber string    `json:"receipt_number"`
}

type ChargeResponse struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	PaidAt        time.Time       `json:"paid_at"`
	Raw           json.RawMessage `json:"-"`
}

// Client executes a charge against one external provider.
type Client interface {
	Method() domain.PaymentMethod
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
}

// HTTPClient is the shared transport for the mobile-money and card
// providers; they differ only in method tag, base URL and charge path.
type HTTPClient struct {
	method     domain.PaymentMethod
	name       string
	baseURL    string
	chargePath string
	httpClient *http.Client
}

func NewTelebirrClient(baseURL string, timeout time.Duration) *HTTPClient {
	return newHTTPClient(domain.MethodTelebirr, "telebirr", baseURL, "/api/v1/charges", timeout)
}

func NewCBEBirrClient(baseURL string, timeout time.Duration) *HTTPClient {
	return newHTTPClient(domain.MethodCBEBirr, "cbebirr", baseURL, "/api/v2/payments", timeout)
}

func NewChapaClient(baseURL string, timeout time.Duration) *HTTPClient {
	return newHTTPClient(domain.MethodChapa, "chapa", baseURL, "/v1/transaction/initialize", timeout)
}

func newHTTPClient(method domain.PaymentMethod, name, baseURL, chargePath string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		method:     method,
		name:       name,
		baseURL:    baseURL,
		chargePath: chargePath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Method() domain.PaymentMethod {
	return c.method
}

func (c *HTTPClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshalling charge request: %w", err)
	}

	url := c.baseURL + c.chargePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.PaymentID.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading %s response: %w", c.name, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, string(body))
		}
		return nil, &Error{
			Provider:   c.name,
			Code:       errResp.Err,
			Message:    errResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var chargeResp ChargeResponse
	if err := json.Unmarshal(body, &chargeResp); err != nil {
		return nil, fmt.Errorf("error decoding %s response: %w", c.name, err)
	}
	chargeResp.Raw = body

	return &chargeResp, nil
}
