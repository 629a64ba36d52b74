// Package client talks to the posflow gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

// APIError is a non-2xx response decoded from the service error body.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Busy reports whether the request was refused because of lock contention.
// Nothing was committed, so the same request may be sent again.
func (e *APIError) Busy() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetry   time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRetryBudget bounds how long busy responses are retried. Zero disables
// retries.
func WithRetryBudget(d time.Duration) Option {
	return func(cl *Client) {
		cl.maxRetry = d
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetry:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type PlaceOrderInput struct {
	CustomerID    string                 `json:"customer_id"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method,omitempty"`
	TaxRate       *decimal.Decimal       `json:"tax_rate,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	Items         []checkout.LineRequest `json:"items"`
}

type Credit struct {
	CustomerID  string            `json:"customer_id"`
	Name        string            `json:"name"`
	CreditLimit decimal.Decimal   `json:"credit_limit"`
	Balance     decimal.Decimal   `json:"balance"`
	Available   decimal.Decimal   `json:"available"`
	Utilization decimal.Decimal   `json:"utilization"`
	Band        domain.CreditBand `json:"band"`
}

func (c *Client) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*checkout.Receipt, error) {
	var receipt checkout.Receipt
	if err := c.do(ctx, http.MethodPost, "/invoices", in, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) CancelOrder(ctx context.Context, invoiceID string) (*checkout.CancelResult, error) {
	var result checkout.CancelResult
	if err := c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(invoiceID)+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := c.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(invoiceID), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (c *Client) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.CustomerID != "" {
		query.Set("customer_id", filter.CustomerID)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/invoices"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var invoices []domain.Invoice
	if err := c.do(ctx, http.MethodGet, path, nil, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (c *Client) CustomerCredit(ctx context.Context, customerID string) (*Credit, error) {
	var credit Credit
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/credit", nil, &credit); err != nil {
		return nil, err
	}
	return &credit, nil
}

func (c *Client) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	path := "/products"
	if lowStockOnly {
		path += "?low_stock=true"
	}

	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// do sends the request, retrying with exponential backoff while the service
// answers busy. Any other failure is returned on the first attempt.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.maxRetry

	var policy backoff.BackOff = b
	if c.maxRetry <= 0 {
		policy = &backoff.StopBackOff{}
	}

	return backoff.Retry(func() error {
		err := c.send(ctx, method, path, body, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Busy() {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
