package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Preapproval is a MercadoPago recurring-payment subscription.
type Preapproval struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	ExternalReference string     `json:"external_reference"`
	PayerID           int64      `json:"payer_id"`
	PreapprovalPlanID string     `json:"preapproval_plan_id"`
	NextPaymentDate   *time.Time `json:"next_payment_date"`
	InitPoint         string     `json:"init_point"`
}

// AutoRecurring is the billing cadence of a preapproval.
type AutoRecurring struct {
	Frequency         int       `json:"frequency"`
	FrequencyType     string    `json:"frequency_type"`
	TransactionAmount float64   `json:"transaction_amount"`
	CurrencyID        string    `json:"currency_id"`
	StartDate         time.Time `json:"start_date"`
}

// PreapprovalRequest is the body of POST /preapproval.
type PreapprovalRequest struct {
	Reason            string        `json:"reason"`
	ExternalReference string        `json:"external_reference"`
	PayerEmail        string        `json:"payer_email"`
	BackURL           string        `json:"back_url"`
	Status            string        `json:"status"`
	AutoRecurring     AutoRecurring `json:"auto_recurring"`
}

// MercadoPagoClient is the MercadoPago surface used by the application.
type MercadoPagoClient interface {
	GetPreapproval(ctx context.Context, id string) (*Preapproval, error)
	CreatePreapproval(ctx context.Context, req PreapprovalRequest) (*Preapproval, error)
}

// mercadoPagoClient talks to the MercadoPago REST API.
type mercadoPagoClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewMercadoPagoClient creates a REST client. The httpClient carries the timeout.
func NewMercadoPagoClient(baseURL, accessToken string, httpClient *http.Client) MercadoPagoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &mercadoPagoClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

// GetPreapproval fetches the authoritative state of a preapproval.
func (c *mercadoPagoClient) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	var out Preapproval
	if err := c.do(ctx, http.MethodGet, "/preapproval/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePreapproval creates a pending preapproval and returns it with its init_point.
func (c *mercadoPagoClient) CreatePreapproval(ctx context.Context, req PreapprovalRequest) (*Preapproval, error) {
	var out Preapproval
	if err := c.do(ctx, http.MethodPost, "/preapproval", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *mercadoPagoClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling mercadopago request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating mercadopago request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "mercadopago", Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   "mercadopago",
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding mercadopago response: %w", err)
	}
	return nil
}

// errorMessage extracts the provider's message from an error body.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}
