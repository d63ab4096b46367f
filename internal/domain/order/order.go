package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusPaid        Status = "PAID"
	StatusReadyToShip Status = "READY_TO_SHIP"
	StatusShipping    Status = "SHIPPING"
	StatusCompleted   Status = "COMPLETED"
	StatusReturned    Status = "RETURNED"
	StatusCancelled   Status = "CANCELLED"
	StatusRefund      Status = "REFUND"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusReadyToShip, StatusShipping,
		StatusCompleted, StatusReturned, StatusCancelled, StatusRefund:
		return true
	}
	return false
}

// PaymentMethod selects which branch of the transition table applies.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentPrepaidWallet  PaymentMethod = "PREPAID_WALLET"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentPrepaidWallet
}

// RefundStatus is the companion payment state of an order in REFUND.
// It is empty for orders that never entered the refund sub-flow.
type RefundStatus string

const (
	RefundNone    RefundStatus = ""
	RefundPending RefundStatus = "PENDING"
	RefundSuccess RefundStatus = "SUCCESS"
)

// Receiver holds the delivery contact for an order. The fields are opaque
// to the lifecycle engine.
type Receiver struct {
	Name    string
	Phone   string
	Address string
}

// StatusChange is a single append-only entry in an order's status history.
type StatusChange struct {
	From      Status
	To        Status
	ChangedBy actor.Actor
	ChangedAt time.Time
	Note      string
}

// Order is an order with its current status and full status history.
//
// StatusHistory is always consistent with Status: the last entry's To equals
// Status, or the history is empty and Status is StatusPending.
type Order struct {
	ID             string
	CustomerID     string
	Status         Status
	PaymentMethod  PaymentMethod
	TotalPrice     decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Receiver       Receiver
	RefundStatus   RefundStatus
	CreatedAt      time.Time
	StatusHistory  []StatusChange
}

// Replay folds a status history onto the initial status and returns the
// resulting state. For a consistent order it equals Order.Status.
func Replay(history []StatusChange) Status {
	current := StatusPending
	for _, change := range history {
		current = change.To
	}
	return current
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)

	// ApplyTransition atomically sets the order status to change.To and
	// appends change to the history, guarded by the current status still
	// being change.From. It returns ErrStatusConflict when the guard fails
	// and ErrNotFound when the order does not exist.
	ApplyTransition(ctx context.Context, orderID string, change StatusChange) error

	// AttachDiscount records the applied discount code and amount on the order.
	AttachDiscount(ctx context.Context, orderID, code string, amount decimal.Decimal) error

	// SetRefundStatus advances the companion refund payment state. It only
	// applies to orders currently in REFUND.
	SetRefundStatus(ctx context.Context, orderID string, status RefundStatus) error
}
