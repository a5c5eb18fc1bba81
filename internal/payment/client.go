package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/checkout-backend/internal/config"
)

// Client talks to a Stripe-shaped checkout API over HTTP. Every request
// carries the client timeout plus whatever deadline the caller's context has.
type Client struct {
	baseURL   string
	secretKey string
	httpc     *http.Client
}

func NewClient(cfg config.GatewayConfig) (*Client, error) {
	if cfg.SecretKey == "" || cfg.BaseURL == "" {
		return nil, ErrConfiguration
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpc:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// checkoutSessionResponse covers the field shapes providers use for the
// hosted page URL; normalization picks the first non-empty one.
type checkoutSessionResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	PaymentLink struct {
		URL string `json:"url"`
	} `json:"payment_link"`
}

func (c *Client) CreateHostedCheckout(ctx context.Context, params CheckoutParams) (string, error) {
	idemKey, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("gateway: failed to generate idempotency key: %w", err)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.ReturnURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", "Order total")
	if params.OrderID != "" {
		form.Set("client_reference_id", params.OrderID)
		form.Set("metadata[order_id]", params.OrderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gateway: failed to build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", idemKey.String())

	body, err := c.do(req, "create checkout session")
	if err != nil {
		return "", err
	}

	var session checkoutSessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return "", &GatewayError{Op: "create checkout session", Body: string(body), Err: err}
	}

	checkoutURL := session.URL
	if checkoutURL == "" {
		checkoutURL = session.PaymentLink.URL
	}
	if checkoutURL == "" {
		return "", &GatewayError{Op: "create checkout session", Body: string(body), Err: fmt.Errorf("response contains no checkout url")}
	}

	log.Info().Str("order_id", params.OrderID).Str("session_id", session.ID).Msg("gateway: checkout session created")
	return checkoutURL, nil
}

type paymentResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (c *Client) GetPayment(ctx context.Context, reference string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	body, err := c.do(req, "get payment")
	if err != nil {
		return nil, err
	}

	var p paymentResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &GatewayError{Op: "get payment", Body: string(body), Err: err}
	}

	return &Payment{
		Reference:   p.ID,
		Status:      normalizeStatus(p.Status),
		RawStatus:   p.Status,
		AmountMinor: p.Amount,
		Currency:    p.Currency,
	}, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// normalizeStatus collapses the provider status vocabulary to the two values
// the reconciliation protocol distinguishes.
func normalizeStatus(raw string) PaymentStatus {
	switch strings.ToLower(raw) {
	case "succeeded", "complete", "completed", "paid", "captured":
		return StatusCompleted
	default:
		return StatusOther
	}
}
