package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrderID = errors.New("order with this ID already exists")
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository interface {
	// Create inserts a new order row. Returns ErrDuplicateOrderID when a row
	// with the same order_id already exists.
	Create(ctx context.Context, o *Order) (*Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	// UpsertPaid marks the order identified by o.OrderID as paid, inserting
	// the row if it does not exist yet. Paid fields are written only on the
	// pending->paid transition; for an already-paid order the stored row is
	// returned untouched. The bool reports whether this call performed the
	// transition.
	UpsertPaid(ctx context.Context, o *Order) (*Order, bool, error)
	SelectRecent(ctx context.Context, limit int) ([]Order, error)
	// UpdateShipping toggles shipping_status by row id, setting or clearing
	// shipped_at to match.
	UpdateShipping(ctx context.Context, rowID uuid.UUID, shipped bool) (*Order, error)
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, order_id, items, subtotal, discount, shipping_cost, total, coupon,
	shipping_address, status, payment_status, paid_at, payment_reference,
	shipping_status, shipped_at, created_at, client_timestamp`

func (r *postgresRepository) Create(ctx context.Context, o *Order) (*Order, error) {
	rowID := o.ID
	if rowID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("repository: failed to generate order row id: %w", err)
		}
		rowID = genID
	}

	orderID := o.OrderID
	if orderID == "" {
		// The store assigns the external key when the client did not supply one.
		orderID = rowID.String()
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to marshal items: %w", err)
	}

	createdAt := time.Now().UTC()

	query := `
		INSERT INTO orders (id, order_id, items, subtotal, discount, shipping_cost, total, coupon,
			shipping_address, status, payment_status, shipping_status, created_at, client_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + orderColumns

	row := r.db.QueryRow(ctx, query,
		rowID,
		orderID,
		itemsJSON,
		o.Totals.Subtotal,
		o.Totals.Discount,
		o.Totals.ShippingCost,
		o.Totals.Total,
		o.Coupon,
		nullableJSON(o.ShippingAddress),
		string(StatusNew),
		string(PaymentPending),
		string(ShippingNotShipped),
		createdAt,
		o.ClientTimestamp,
	)

	created, err := scanOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			log.Warn().Str("order_id", orderID).Msg("repository: duplicate order_id on insert")
			return nil, ErrDuplicateOrderID
		}
		return nil, fmt.Errorf("repository: failed to insert order %s: %w", orderID, err)
	}

	return created, nil
}

func (r *postgresRepository) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", orderID, err)
	}

	return o, nil
}

func (r *postgresRepository) UpsertPaid(ctx context.Context, o *Order) (*Order, bool, error) {
	rowID := o.ID
	if rowID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return nil, false, fmt.Errorf("repository: failed to generate order row id: %w", err)
		}
		rowID = genID
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, false, fmt.Errorf("repository: failed to marshal items: %w", err)
	}

	paidAt := time.Now().UTC()
	createdAt := paidAt
	if o.PaidAt != nil {
		paidAt = o.PaidAt.UTC()
	}

	// Single-statement upsert: the unique constraint on order_id decides the
	// insert-vs-update race, and the WHERE guard keeps paid fields write-once.
	// No row comes back when the order was already paid.
	query := `
		INSERT INTO orders (id, order_id, items, subtotal, discount, shipping_cost, total, coupon,
			shipping_address, status, payment_status, paid_at, payment_reference,
			shipping_status, created_at, client_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			payment_status = EXCLUDED.payment_status,
			paid_at = EXCLUDED.paid_at,
			payment_reference = EXCLUDED.payment_reference
		WHERE orders.payment_status <> 'paid'
		RETURNING ` + orderColumns

	row := r.db.QueryRow(ctx, query,
		rowID,
		o.OrderID,
		itemsJSON,
		o.Totals.Subtotal,
		o.Totals.Discount,
		o.Totals.ShippingCost,
		o.Totals.Total,
		o.Coupon,
		nullableJSON(o.ShippingAddress),
		string(StatusPaid),
		string(PaymentPaid),
		paidAt,
		o.PaymentReference,
		string(ShippingNotShipped),
		createdAt,
		o.ClientTimestamp,
	)

	upserted, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Already paid: return the stored row without touching it.
			existing, getErr := r.GetByOrderID(ctx, o.OrderID)
			if getErr != nil {
				return nil, false, fmt.Errorf("repository: failed to reload paid order %s: %w", o.OrderID, getErr)
			}
			return existing, false, nil
		}
		if isUniqueViolation(err) {
			// Lost the insert race on id (not order_id); the caller may retry.
			return nil, false, ErrDuplicateOrderID
		}
		return nil, false, fmt.Errorf("repository: failed to upsert paid order %s: %w", o.OrderID, err)
	}

	return upserted, true, nil
}

func (r *postgresRepository) SelectRecent(ctx context.Context, limit int) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query recent orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order row: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating recent orders: %w", err)
	}

	return orders, nil
}

func (r *postgresRepository) UpdateShipping(ctx context.Context, rowID uuid.UUID, shipped bool) (*Order, error) {
	status := ShippingNotShipped
	var shippedAt *time.Time
	if shipped {
		status = ShippingShipped
		now := time.Now().UTC()
		shippedAt = &now
	}

	query := `
		UPDATE orders
		SET shipping_status = $2, shipped_at = $3
		WHERE id = $1
		RETURNING ` + orderColumns

	o, err := scanOrder(r.db.QueryRow(ctx, query, rowID, string(status), shippedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Stringer("row_id", rowID).Msg("repository: order not found for shipping update")
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to update shipping for %s: %w", rowID, err)
	}

	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o          Order
		itemsRaw   []byte
		addressRaw []byte
		status     string
		payStatus  string
		shipStatus string
	)

	err := row.Scan(
		&o.ID,
		&o.OrderID,
		&itemsRaw,
		&o.Totals.Subtotal,
		&o.Totals.Discount,
		&o.Totals.ShippingCost,
		&o.Totals.Total,
		&o.Coupon,
		&addressRaw,
		&status,
		&payStatus,
		&o.PaidAt,
		&o.PaymentReference,
		&shipStatus,
		&o.ShippedAt,
		&o.CreatedAt,
		&o.ClientTimestamp,
	)
	if err != nil {
		return nil, err
	}

	o.Items = make([]Item, 0)
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
	}
	if len(addressRaw) > 0 {
		o.ShippingAddress = json.RawMessage(addressRaw)
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	o.ShippingStatus = ShippingStatus(shipStatus)

	return &o, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
