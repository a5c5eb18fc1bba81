package order

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusNew  Status = "new"
	StatusPaid Status = "paid"
)

func (s Status) String() string { return string(s) }

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) String() string { return string(s) }

type ShippingStatus string

const (
	ShippingNotShipped ShippingStatus = "not_shipped"
	ShippingShipped    ShippingStatus = "shipped"
)

func (s ShippingStatus) String() string { return string(s) }

type Item struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Totals struct {
	Subtotal     float64 `json:"subtotal"`
	Discount     float64 `json:"discount"`
	ShippingCost float64 `json:"shipping_cost"`
	Total        float64 `json:"total"`
}

// Order is the persisted record of a purchase and its payment/shipping state.
// ID is the storage row id; OrderID is the externally visible correlation key
// and is unique across rows.
type Order struct {
	ID               uuid.UUID       `json:"id"`
	OrderID          string          `json:"order_id"`
	Items            []Item          `json:"items"`
	Totals           Totals          `json:"totals"`
	Coupon           string          `json:"coupon,omitempty"`
	ShippingAddress  json.RawMessage `json:"shipping_address,omitempty"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	ShippingStatus   ShippingStatus  `json:"shipping_status"`
	ShippedAt        *time.Time      `json:"shipped_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ClientTimestamp  *time.Time      `json:"client_timestamp,omitempty"`
}
