// Package payment is the boundary to the hosted-checkout provider. The rest
// of the service only ever sees the canonical shapes defined here; provider
// field naming and status vocabulary are normalized inside the client.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrConfiguration = errors.New("payment gateway is not configured")
	ErrInvalidAmount = errors.New("amount must be a positive finite number")
)

// PaymentStatus is the normalized provider payment state. Anything the
// provider reports that is not a settled payment maps to StatusOther.
type PaymentStatus string

const (
	StatusCompleted PaymentStatus = "completed"
	StatusOther     PaymentStatus = "other"
)

// Payment is the canonical view of a provider payment record.
type Payment struct {
	Reference   string
	Status      PaymentStatus
	RawStatus   string
	AmountMinor int64
	Currency    string
}

type CheckoutParams struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	ReturnURL   string
	CancelURL   string
}

type Gateway interface {
	// CreateHostedCheckout creates a provider-hosted checkout session and
	// returns its URL. Each call carries a fresh idempotency key: a repeat
	// checkout attempt is a new logical operation, only transport-level
	// retries of the same call are deduplicated.
	CreateHostedCheckout(ctx context.Context, params CheckoutParams) (string, error)
	// GetPayment fetches the authoritative payment record by its provider
	// reference.
	GetPayment(ctx context.Context, reference string) (*Payment, error)
}

// GatewayError carries the provider's raw error payload for operator
// diagnosis. Handlers must never echo Body to callers.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway: %s failed with status %d", e.Op, e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// MinorUnits converts a decimal currency amount to the integer minor-unit
// representation, rounding half away from zero at the cent boundary
// (19.945 -> 1995).
func MinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	minor := decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0)
	return minor.IntPart(), nil
}
