package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/checkout-backend/internal/events"
	"github.com/vasiliy-maslov/checkout-backend/internal/payment"
)

var ErrValidation = errors.New("validation error")

// maxListLimit caps admin listing regardless of what the caller asks for.
const maxListLimit = 200

// totalsTolerance absorbs float representation noise when checking that
// total = subtotal - discount + shipping_cost. Anything beyond half a cent
// is a real inconsistency.
const totalsTolerance = 0.005

type CreateOrderInput struct {
	OrderID         string          `json:"order_id"`
	Items           []Item          `json:"items"`
	Totals          Totals          `json:"totals"`
	Coupon          string          `json:"coupon"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	ClientTimestamp *time.Time      `json:"client_timestamp"`
}

type CheckoutInput struct {
	OrderID   string  `json:"order_id"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	ReturnURL string  `json:"return_url"`
	CancelURL string  `json:"cancel_url"`
}

// Snapshot is a client-reconstructed order used only to seed a row that was
// never created through CreateOrder. It is ignored whenever the order is
// already on file.
type Snapshot struct {
	Items           []Item          `json:"items"`
	Totals          Totals          `json:"totals"`
	Coupon          string          `json:"coupon"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
}

type ConfirmOrderInput struct {
	OrderID          string    `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	Snapshot         *Snapshot `json:"order,omitempty"`
}

type ConfirmOutcome string

const (
	OutcomePaid    ConfirmOutcome = "paid"
	OutcomeNotPaid ConfirmOutcome = "not_paid"
)

// ConfirmResult distinguishes a settled confirmation from a legitimate
// polling miss: OutcomeNotPaid is not an error, the caller simply retries
// later. ProviderStatus carries the raw provider status for that case.
type ConfirmResult struct {
	Outcome        ConfirmOutcome `json:"outcome"`
	ProviderStatus string         `json:"provider_status,omitempty"`
	Order          *Order         `json:"order,omitempty"`
}

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	InitiateCheckout(ctx context.Context, in CheckoutInput) (string, error)
	ConfirmOrder(ctx context.Context, in ConfirmOrderInput) (*ConfirmResult, error)
	ListOrders(ctx context.Context, limit int) ([]Order, error)
	SetShippingStatus(ctx context.Context, rowID uuid.UUID, shipped bool) (*Order, error)
}

type service struct {
	repo      Repository
	gateway   payment.Gateway
	publisher events.Publisher
}

func NewService(repo Repository, gateway payment.Gateway, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{repo: repo, gateway: gateway, publisher: publisher}
}

func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if err := validateTotals(in.Totals); err != nil {
		return nil, err
	}

	o := &Order{
		OrderID:         in.OrderID,
		Items:           in.Items,
		Totals:          in.Totals,
		Coupon:          in.Coupon,
		ShippingAddress: in.ShippingAddress,
		ClientTimestamp: in.ClientTimestamp,
	}

	created, err := s.repo.Create(ctx, o)
	if err != nil {
		if errors.Is(err, ErrDuplicateOrderID) {
			return nil, ErrDuplicateOrderID
		}
		log.Error().Err(err).Str("order_id", in.OrderID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Str("order_id", created.OrderID).Stringer("row_id", created.ID).Stringer("status", created.Status).Msg("service: order created")
	return created, nil
}

func (s *service) InitiateCheckout(ctx context.Context, in CheckoutInput) (string, error) {
	if in.Currency == "" {
		return "", fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if in.ReturnURL == "" || in.CancelURL == "" {
		return "", fmt.Errorf("%w: return_url and cancel_url are required", ErrValidation)
	}

	amountMinor, err := payment.MinorUnits(in.Total)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	checkoutURL, err := s.gateway.CreateHostedCheckout(ctx, payment.CheckoutParams{
		OrderID:     in.OrderID,
		AmountMinor: amountMinor,
		Currency:    in.Currency,
		ReturnURL:   in.ReturnURL,
		CancelURL:   in.CancelURL,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", in.OrderID).Msg("service: failed to create checkout session")
		return "", fmt.Errorf("service: failed to create checkout session: %w", err)
	}

	return checkoutURL, nil
}

func (s *service) ConfirmOrder(ctx context.Context, in ConfirmOrderInput) (*ConfirmResult, error) {
	if in.PaymentReference == "" {
		return nil, fmt.Errorf("%w: payment_reference is required", ErrValidation)
	}
	if in.OrderID == "" && in.Snapshot == nil {
		return nil, fmt.Errorf("%w: order_id is required", ErrValidation)
	}

	p, err := s.gateway.GetPayment(ctx, in.PaymentReference)
	if err != nil {
		log.Error().Err(err).Str("payment_reference", in.PaymentReference).Msg("service: failed to fetch payment from gateway")
		return nil, fmt.Errorf("service: failed to fetch payment: %w", err)
	}

	if p.Status != payment.StatusCompleted {
		log.Info().
			Str("order_id", in.OrderID).
			Str("payment_reference", in.PaymentReference).
			Str("provider_status", p.RawStatus).
			Msg("service: payment not completed yet")
		return &ConfirmResult{Outcome: OutcomeNotPaid, ProviderStatus: p.RawStatus}, nil
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID, err = synthesizeOrderID()
		if err != nil {
			return nil, fmt.Errorf("service: failed to synthesize order id: %w", err)
		}
		log.Warn().Str("order_id", orderID).Str("payment_reference", in.PaymentReference).Msg("service: confirming payment without an order id, synthesized one")
	}

	upsert := &Order{
		OrderID:          orderID,
		PaymentReference: in.PaymentReference,
	}
	// The snapshot only seeds a row that CreateOrder never wrote. When the
	// row exists, the upsert touches paid fields alone and the totals/items
	// on file win over anything the client sent.
	if in.Snapshot != nil {
		upsert.Items = in.Snapshot.Items
		upsert.Totals = in.Snapshot.Totals
		upsert.Coupon = in.Snapshot.Coupon
		upsert.ShippingAddress = in.Snapshot.ShippingAddress
	}

	confirmed, transitioned, err := s.repo.UpsertPaid(ctx, upsert)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("service: failed to persist paid order")
		return nil, fmt.Errorf("service: failed to persist paid order: %w", err)
	}

	if transitioned {
		log.Info().
			Str("order_id", confirmed.OrderID).
			Str("payment_reference", confirmed.PaymentReference).
			Stringer("payment_status", confirmed.PaymentStatus).
			Msg("service: order confirmed as paid")

		event := events.Event{
			Type:             events.TypeOrderPaid,
			OrderID:          confirmed.OrderID,
			PaymentReference: confirmed.PaymentReference,
			AmountTotal:      confirmed.Totals.Total,
			At:               time.Now().UTC(),
		}
		if pubErr := s.publisher.Publish(ctx, event); pubErr != nil {
			log.Error().Err(pubErr).Str("order_id", confirmed.OrderID).Msg("service: failed to publish paid event")
		}
	} else {
		log.Info().
			Str("order_id", confirmed.OrderID).
			Str("payment_reference", in.PaymentReference).
			Msg("service: order already paid, confirmation is a no-op")
	}

	return &ConfirmResult{Outcome: OutcomePaid, Order: confirmed}, nil
}

func (s *service) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	orders, err := s.repo.SelectRecent(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *service) SetShippingStatus(ctx context.Context, rowID uuid.UUID, shipped bool) (*Order, error) {
	updated, err := s.repo.UpdateShipping(ctx, rowID, shipped)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("row_id", rowID).Msg("service: order not found for shipping update")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("row_id", rowID).Msg("service: failed to update shipping status")
		return nil, fmt.Errorf("service: failed to update shipping status: %w", err)
	}

	log.Info().Str("order_id", updated.OrderID).Stringer("shipping_status", updated.ShippingStatus).Msg("service: shipping status updated")

	if shipped {
		event := events.Event{
			Type:    events.TypeOrderShipped,
			OrderID: updated.OrderID,
			At:      time.Now().UTC(),
		}
		if pubErr := s.publisher.Publish(ctx, event); pubErr != nil {
			log.Error().Err(pubErr).Str("order_id", updated.OrderID).Msg("service: failed to publish shipped event")
		}
	}

	return updated, nil
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for _, item := range items {
		if item.SKU == "" {
			return fmt.Errorf("%w: item sku is required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item quantity for %s must be greater than zero", ErrValidation, item.SKU)
		}
		if item.UnitPrice < 0 || !isFinite(item.UnitPrice) {
			return fmt.Errorf("%w: item unit price for %s must be a non-negative number", ErrValidation, item.SKU)
		}
	}
	return nil
}

func validateTotals(t Totals) error {
	for _, v := range []float64{t.Subtotal, t.Discount, t.ShippingCost, t.Total} {
		if v < 0 || !isFinite(v) {
			return fmt.Errorf("%w: totals must be non-negative numbers", ErrValidation)
		}
	}
	expected := t.Subtotal - t.Discount + t.ShippingCost
	if math.Abs(expected-t.Total) > totalsTolerance {
		return fmt.Errorf("%w: total %.2f does not match subtotal - discount + shipping_cost = %.2f", ErrValidation, t.Total, expected)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// synthesizeOrderID builds a fallback key for confirmations that arrive for
// orders never seen before. Timestamp first so the key still sorts roughly by
// arrival, uuid suffix so two confirms in the same instant cannot collide.
func synthesizeOrderID() (string, error) {
	suffix, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ord-%d-%s", time.Now().UnixNano(), suffix.String()[:8]), nil
}
