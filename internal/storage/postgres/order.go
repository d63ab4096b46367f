package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/actor"
	"github.com/oakmart/ordercore/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, customer_id, status, payment_method, total_price, discount_code, discount_amount,
		 receiver_name, receiver_phone, receiver_address, refund_status, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, ''), $12)`

	getOrderSQL = `SELECT id, customer_id, status, payment_method, total_price,
		COALESCE(discount_code, ''), discount_amount,
		receiver_name, receiver_phone, receiver_address,
		COALESCE(refund_status, ''), created_at
		FROM orders WHERE id = $1`

	getHistorySQL = `SELECT from_status, to_status, changed_by, changed_by_role, changed_at, note
		FROM order_status_changes WHERE order_id = $1 ORDER BY id`

	// The status guard makes the update optimistic: zero rows affected means
	// the order moved (or never existed) since it was read.
	transitionOrderSQL = `UPDATE orders
		SET status = $1,
		    refund_status = CASE
		        WHEN $1 = 'REFUND' AND refund_status IS NULL THEN 'PENDING'
		        ELSE refund_status
		    END
		WHERE id = $2 AND status = $3`

	insertChangeSQL = `INSERT INTO order_status_changes
		(order_id, from_status, to_status, changed_by, changed_by_role, changed_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	attachDiscountSQL = `UPDATE orders SET discount_code = $1, discount_amount = $2 WHERE id = $3`

	setRefundStatusSQL = `UPDATE orders SET refund_status = $1 WHERE id = $2 AND status = 'REFUND'`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, string(o.Status), string(o.PaymentMethod),
		o.TotalPrice, o.DiscountCode, o.DiscountAmount,
		o.Receiver.Name, o.Receiver.Phone, o.Receiver.Address,
		string(o.RefundStatus), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get loads an order together with its full status history.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}

	historyRows, err := r.pool.Query(ctx, getHistorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading history for order %q: %w", id, err)
	}
	history, err := pgx.CollectRows(historyRows, scanStatusChange)
	if err != nil {
		return nil, fmt.Errorf("loading history for order %q: %w", id, err)
	}
	o.StatusHistory = history

	return &o, nil
}

// ApplyTransition advances the order status and appends the history entry in
// one transaction. The UPDATE carries a status guard; when it affects no rows
// the transition lost a race (or the order does not exist) and nothing is
// written.
func (r *OrderRepository) ApplyTransition(ctx context.Context, orderID string, change order.StatusChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transition tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, transitionOrderSQL, string(change.To), orderID, string(change.From))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", orderID, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrStatusConflict
	}

	_, err = tx.Exec(ctx, insertChangeSQL,
		orderID, string(change.From), string(change.To),
		change.ChangedBy.ID, string(change.ChangedBy.Role),
		change.ChangedAt, change.Note,
	)
	if err != nil {
		return fmt.Errorf("appending status change for order %q: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transition for order %q: %w", orderID, err)
	}
	return nil
}

// AttachDiscount records the applied discount code and amount on the order.
func (r *OrderRepository) AttachDiscount(ctx context.Context, orderID, code string, amount decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, attachDiscountSQL, code, amount, orderID)
	if err != nil {
		return fmt.Errorf("attaching discount to order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetRefundStatus advances the refund payment state of an order in REFUND.
func (r *OrderRepository) SetRefundStatus(ctx context.Context, orderID string, status order.RefundStatus) error {
	tag, err := r.pool.Exec(ctx, setRefundStatusSQL, string(status), orderID)
	if err != nil {
		return fmt.Errorf("setting refund status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentMethod string
		refundStatus  string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &paymentMethod, &o.TotalPrice,
		&o.DiscountCode, &o.DiscountAmount,
		&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Address,
		&refundStatus, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.RefundStatus = order.RefundStatus(refundStatus)
	return o, err
}

func scanStatusChange(row pgx.CollectableRow) (order.StatusChange, error) {
	var (
		c    order.StatusChange
		from string
		to   string
		role string
	)
	err := row.Scan(&from, &to, &c.ChangedBy.ID, &role, &c.ChangedAt, &c.Note)
	c.From = order.Status(from)
	c.To = order.Status(to)
	c.ChangedBy.Role = actor.Role(role)
	return c, err
}
