package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/checkout-backend/internal/events"
	"github.com/vasiliy-maslov/checkout-backend/internal/order"
	"github.com/vasiliy-maslov/checkout-backend/internal/payment"
)

type mockRepository struct {
	createFunc         func(ctx context.Context, o *order.Order) (*order.Order, error)
	getByOrderIDFunc   func(ctx context.Context, orderID string) (*order.Order, error)
	upsertPaidFunc     func(ctx context.Context, o *order.Order) (*order.Order, bool, error)
	selectRecentFunc   func(ctx context.Context, limit int) ([]order.Order, error)
	updateShippingFunc func(ctx context.Context, rowID uuid.UUID, shipped bool) (*order.Order, error)
}

func (m *mockRepository) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	return m.createFunc(ctx, o)
}

func (m *mockRepository) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	return m.getByOrderIDFunc(ctx, orderID)
}

func (m *mockRepository) UpsertPaid(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	return m.upsertPaidFunc(ctx, o)
}

func (m *mockRepository) SelectRecent(ctx context.Context, limit int) ([]order.Order, error) {
	return m.selectRecentFunc(ctx, limit)
}

func (m *mockRepository) UpdateShipping(ctx context.Context, rowID uuid.UUID, shipped bool) (*order.Order, error) {
	return m.updateShippingFunc(ctx, rowID, shipped)
}

type mockGateway struct {
	createCheckoutFunc func(ctx context.Context, params payment.CheckoutParams) (string, error)
	getPaymentFunc     func(ctx context.Context, reference string) (*payment.Payment, error)
}

func (m *mockGateway) CreateHostedCheckout(ctx context.Context, params payment.CheckoutParams) (string, error) {
	return m.createCheckoutFunc(ctx, params)
}

func (m *mockGateway) GetPayment(ctx context.Context, reference string) (*payment.Payment, error) {
	return m.getPaymentFunc(ctx, reference)
}

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func validItems() []order.Item {
	return []order.Item{{SKU: "a", Quantity: 1, UnitPrice: 80}}
}

func validTotals() order.Totals {
	return order.Totals{Subtotal: 80, Discount: 0, ShippingCost: 0, Total: 80}
}

func TestService_CreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		items  []order.Item
		totals order.Totals
	}{
		{
			name:   "no_items",
			items:  nil,
			totals: validTotals(),
		},
		{
			name:   "zero_quantity",
			items:  []order.Item{{SKU: "a", Quantity: 0, UnitPrice: 80}},
			totals: validTotals(),
		},
		{
			name:   "missing_sku",
			items:  []order.Item{{Quantity: 1, UnitPrice: 80}},
			totals: validTotals(),
		},
		{
			name:   "negative_unit_price",
			items:  []order.Item{{SKU: "a", Quantity: 1, UnitPrice: -1}},
			totals: validTotals(),
		},
		{
			name:   "negative_discount",
			items:  validItems(),
			totals: order.Totals{Subtotal: 80, Discount: -5, ShippingCost: 0, Total: 85},
		},
		{
			name:   "inconsistent_total",
			items:  validItems(),
			totals: order.Totals{Subtotal: 80, Discount: 10, ShippingCost: 5, Total: 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				createFunc: func(ctx context.Context, o *order.Order) (*order.Order, error) {
					t.Fatal("repository must not be called for invalid input")
					return nil, nil
				},
			}
			svc := order.NewService(repo, &mockGateway{}, nil)

			_, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{Items: tt.items, Totals: tt.totals})
			assert.ErrorIs(t, err, order.ErrValidation)
		})
	}
}

func TestService_CreateOrder_Success(t *testing.T) {
	repo := &mockRepository{
		createFunc: func(ctx context.Context, o *order.Order) (*order.Order, error) {
			created := *o
			created.ID, _ = uuid.NewV4()
			created.Status = order.StatusNew
			created.PaymentStatus = order.PaymentPending
			created.ShippingStatus = order.ShippingNotShipped
			created.CreatedAt = time.Now().UTC()
			return &created, nil
		},
	}
	svc := order.NewService(repo, &mockGateway{}, nil)

	created, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{
		OrderID: "ORD-1",
		Items:   validItems(),
		Totals:  validTotals(),
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, created.Status)
	assert.Equal(t, order.PaymentPending, created.PaymentStatus)
	assert.Nil(t, created.PaidAt)
	assert.Equal(t, "ORD-1", created.OrderID)
}

func TestService_CreateOrder_DuplicateID(t *testing.T) {
	repo := &mockRepository{
		createFunc: func(ctx context.Context, o *order.Order) (*order.Order, error) {
			return nil, order.ErrDuplicateOrderID
		},
	}
	svc := order.NewService(repo, &mockGateway{}, nil)

	_, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{Items: validItems(), Totals: validTotals()})
	assert.ErrorIs(t, err, order.ErrDuplicateOrderID)
}

func TestService_InitiateCheckout(t *testing.T) {
	tests := []struct {
		name            string
		in              order.CheckoutInput
		wantErrIs       error
		wantAmountMinor int64
	}{
		{
			name: "converts_to_minor_units",
			in: order.CheckoutInput{
				OrderID:   "ORD-1",
				Total:     19.99,
				Currency:  "usd",
				ReturnURL: "https://shop.example/return",
				CancelURL: "https://shop.example/cancel",
			},
			wantAmountMinor: 1999,
		},
		{
			name: "rounds_half_away_from_zero",
			in: order.CheckoutInput{
				Total:     19.945,
				Currency:  "usd",
				ReturnURL: "https://shop.example/return",
				CancelURL: "https://shop.example/cancel",
			},
			wantAmountMinor: 1995,
		},
		{
			name: "zero_total",
			in: order.CheckoutInput{
				Total:     0,
				Currency:  "usd",
				ReturnURL: "https://shop.example/return",
				CancelURL: "https://shop.example/cancel",
			},
			wantErrIs: order.ErrValidation,
		},
		{
			name: "negative_total",
			in: order.CheckoutInput{
				Total:     -10,
				Currency:  "usd",
				ReturnURL: "https://shop.example/return",
				CancelURL: "https://shop.example/cancel",
			},
			wantErrIs: order.ErrValidation,
		},
		{
			name: "missing_currency",
			in: order.CheckoutInput{
				Total:     10,
				ReturnURL: "https://shop.example/return",
				CancelURL: "https://shop.example/cancel",
			},
			wantErrIs: order.ErrValidation,
		},
		{
			name: "missing_redirect_urls",
			in: order.CheckoutInput{
				Total:    10,
				Currency: "usd",
			},
			wantErrIs: order.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotParams payment.CheckoutParams
			gw := &mockGateway{
				createCheckoutFunc: func(ctx context.Context, params payment.CheckoutParams) (string, error) {
					gotParams = params
					return "https://pay.example/session/cs_123", nil
				},
			}
			svc := order.NewService(&mockRepository{}, gw, nil)

			url, err := svc.InitiateCheckout(context.Background(), tt.in)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://pay.example/session/cs_123", url)
			assert.Equal(t, tt.wantAmountMinor, gotParams.AmountMinor)
			assert.Equal(t, tt.in.Currency, gotParams.Currency)
		})
	}
}

func TestService_InitiateCheckout_GatewayFailure(t *testing.T) {
	gwErr := &payment.GatewayError{Op: "create checkout session", StatusCode: 500, Body: `{"error":"boom"}`}
	gw := &mockGateway{
		createCheckoutFunc: func(ctx context.Context, params payment.CheckoutParams) (string, error) {
			return "", gwErr
		},
	}
	svc := order.NewService(&mockRepository{}, gw, nil)

	_, err := svc.InitiateCheckout(context.Background(), order.CheckoutInput{
		Total:     10,
		Currency:  "usd",
		ReturnURL: "https://shop.example/return",
		CancelURL: "https://shop.example/cancel",
	})
	var got *payment.GatewayError
	assert.ErrorAs(t, err, &got)
}

func TestService_ConfirmOrder_Validation(t *testing.T) {
	svc := order.NewService(&mockRepository{}, &mockGateway{}, nil)

	_, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{OrderID: "ORD-1"})
	assert.ErrorIs(t, err, order.ErrValidation)

	_, err = svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{PaymentReference: "pay_ref_1"})
	assert.ErrorIs(t, err, order.ErrValidation)
}

func TestService_ConfirmOrder_NotPaid(t *testing.T) {
	gw := &mockGateway{
		getPaymentFunc: func(ctx context.Context, reference string) (*payment.Payment, error) {
			return &payment.Payment{
				Reference: reference,
				Status:    payment.StatusOther,
				RawStatus: "requires_payment_method",
			}, nil
		},
	}
	repo := &mockRepository{
		upsertPaidFunc: func(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
			t.Fatal("store must not be touched when the payment is not completed")
			return nil, false, nil
		},
	}
	pub := &recordingPublisher{}
	svc := order.NewService(repo, gw, pub)

	result, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{
		OrderID:          "ORD-1",
		PaymentReference: "pay_ref_1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.OutcomeNotPaid, result.Outcome)
	assert.Equal(t, "requires_payment_method", result.ProviderStatus)
	assert.Nil(t, result.Order)
	assert.Empty(t, pub.published)
}

func TestService_ConfirmOrder_GatewayFailure(t *testing.T) {
	gw := &mockGateway{
		getPaymentFunc: func(ctx context.Context, reference string) (*payment.Payment, error) {
			return nil, &payment.GatewayError{Op: "get payment", Err: errors.New("connection refused")}
		},
	}
	svc := order.NewService(&mockRepository{}, gw, nil)

	_, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{
		OrderID:          "ORD-1",
		PaymentReference: "pay_ref_1",
	})
	var gwErr *payment.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func TestService_ConfirmOrder_Paid(t *testing.T) {
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &mockGateway{
		getPaymentFunc: func(ctx context.Context, reference string) (*payment.Payment, error) {
			return &payment.Payment{
				Reference:   reference,
				Status:      payment.StatusCompleted,
				RawStatus:   "succeeded",
				AmountMinor: 8000,
				Currency:    "usd",
			}, nil
		},
	}
	var gotUpsert *order.Order
	repo := &mockRepository{
		upsertPaidFunc: func(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
			gotUpsert = o
			confirmed := *o
			confirmed.Status = order.StatusPaid
			confirmed.PaymentStatus = order.PaymentPaid
			confirmed.PaidAt = &paidAt
			confirmed.Totals = validTotals()
			return &confirmed, true, nil
		},
	}
	pub := &recordingPublisher{}
	svc := order.NewService(repo, gw, pub)

	result, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{
		OrderID:          "ORD-1",
		PaymentReference: "pay_ref_1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.OutcomePaid, result.Outcome)
	require.NotNil(t, result.Order)
	assert.Equal(t, order.PaymentPaid, result.Order.PaymentStatus)
	assert.Equal(t, "pay_ref_1", gotUpsert.PaymentReference)
	assert.Equal(t, "ORD-1", gotUpsert.OrderID)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeOrderPaid, pub.published[0].Type)
	assert.Equal(t, "ORD-1", pub.published[0].OrderID)
	assert.Equal(t, "pay_ref_1", pub.published[0].PaymentReference)
}

func TestService_ConfirmOrder_AlreadyPaidIsNoOp(t *testing.T) {
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	existing := &order.Order{
		OrderID:          "ORD-1",
		Status:           order.StatusPaid,
		PaymentStatus:    order.PaymentPaid,
		PaidAt:           &paidAt,
		PaymentReference: "pay_ref_1",
	}
	gw := &mockGateway{
		getPaymentFunc: func(ctx context.Context, reference string) (*payment.Payment, error) {
			return &payment.Payment{Reference: reference, Status: payment.StatusCompleted, RawStatus: "succeeded"}, nil
		},
	}
	repo := &mockRepository{
		upsertPaidFunc: func(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
			return existing, false, nil
		},
	}
	pub := &recordingPublisher{}
	svc := order.NewService(repo, gw, pub)

	// A duplicate confirm, even with a different reference, returns the
	// stored record and publishes nothing.
	result, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{
		OrderID:          "ORD-1",
		PaymentReference: "pay_ref_2",
	})
	require.NoError(t, err)
	assert.Equal(t, order.OutcomePaid, result.Outcome)
	diff := cmp.Diff(*existing, *result.Order)
	require.Empty(t, diff)
	assert.Empty(t, pub.published)
}

func TestService_ConfirmOrder_SnapshotSeedsMissingOrder(t *testing.T) {
	gw := &mockGateway{
		getPaymentFunc: func(ctx context.Context, reference string) (*payment.Payment, error) {
			return &payment.Payment{Reference: reference, Status: payment.StatusCompleted, RawStatus: "succeeded"}, nil
		},
	}
	var gotUpsert *order.Order
	repo := &mockRepository{
		upsertPaidFunc: func(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
			gotUpsert = o
			return o, true, nil
		},
	}
	svc := order.NewService(repo, gw, &recordingPublisher{})

	_, err := svc.ConfirmOrder(context.Background(), order.ConfirmOrderInput{
		PaymentReference: "pay_ref_1",
		Snapshot: &order.Snapshot{
			Items:  validItems(),
			Totals: validTotals(),
			Coupon: "SAVE10",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, validItems(), gotUpsert.Items)
	assert.Equal(t, validTotals(), gotUpsert.Totals)
	assert.Equal(t, "SAVE10", gotUpsert.Coupon)
	// No order_id supplied: the service synthesizes one instead of failing.
	assert.NotEmpty(t, gotUpsert.OrderID)
	assert.Contains(t, gotUpsert.OrderID, "ord-")
}

func TestService_ListOrders_CapsLimit(t *testing.T) {
	var gotLimit int
	repo := &mockRepository{
		selectRecentFunc: func(ctx context.Context, limit int) ([]order.Order, error) {
			gotLimit = limit
			return []order.Order{}, nil
		},
	}
	svc := order.NewService(repo, &mockGateway{}, nil)

	for _, limit := range []int{0, -1, 500} {
		_, err := svc.ListOrders(context.Background(), limit)
		require.NoError(t, err)
		assert.Equal(t, 200, gotLimit)
	}

	_, err := svc.ListOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, gotLimit)
}

func TestService_SetShippingStatus(t *testing.T) {
	rowID, _ := uuid.NewV4()
	shippedAt := time.Now().UTC()

	t.Run("shipped_publishes_event", func(t *testing.T) {
		repo := &mockRepository{
			updateShippingFunc: func(ctx context.Context, id uuid.UUID, shipped bool) (*order.Order, error) {
				return &order.Order{ID: id, OrderID: "ORD-1", ShippingStatus: order.ShippingShipped, ShippedAt: &shippedAt}, nil
			},
		}
		pub := &recordingPublisher{}
		svc := order.NewService(repo, &mockGateway{}, pub)

		updated, err := svc.SetShippingStatus(context.Background(), rowID, true)
		require.NoError(t, err)
		assert.Equal(t, order.ShippingShipped, updated.ShippingStatus)
		assert.NotNil(t, updated.ShippedAt)
		require.Len(t, pub.published, 1)
		assert.Equal(t, events.TypeOrderShipped, pub.published[0].Type)
	})

	t.Run("unshipped_no_event", func(t *testing.T) {
		repo := &mockRepository{
			updateShippingFunc: func(ctx context.Context, id uuid.UUID, shipped bool) (*order.Order, error) {
				return &order.Order{ID: id, OrderID: "ORD-1", ShippingStatus: order.ShippingNotShipped}, nil
			},
		}
		pub := &recordingPublisher{}
		svc := order.NewService(repo, &mockGateway{}, pub)

		updated, err := svc.SetShippingStatus(context.Background(), rowID, false)
		require.NoError(t, err)
		assert.Equal(t, order.ShippingNotShipped, updated.ShippingStatus)
		assert.Nil(t, updated.ShippedAt)
		assert.Empty(t, pub.published)
	})

	t.Run("not_found", func(t *testing.T) {
		repo := &mockRepository{
			updateShippingFunc: func(ctx context.Context, id uuid.UUID, shipped bool) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
		}
		svc := order.NewService(repo, &mockGateway{}, nil)

		_, err := svc.SetShippingStatus(context.Background(), rowID, true)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}
