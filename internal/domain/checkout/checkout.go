// Package checkout composes the discount engine and the order store:
// it creates orders and applies discount codes at order-creation time.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/domain/order"
)

// Input validation errors.
var (
	ErrNegativeSubtotal     = errors.New("subtotal must not be negative")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

// Request is the input for placing an order.
type Request struct {
	CustomerID    string
	PaymentMethod order.PaymentMethod
	Subtotal      decimal.Decimal
	DiscountCode  string
	Receiver      order.Receiver
}

// Result is the outcome of a checkout. DiscountErr is non-nil when a discount
// code was submitted but could not be applied; the order still stands at full
// price in that case.
type Result struct {
	Order       *order.Order
	Quote       *discount.Quote
	DiscountErr error
}

// Orchestrator sequences order creation and discount application. Subsequent
// status changes go through the order service, not through here.
type Orchestrator struct {
	orders    order.Repository
	discounts *discount.Engine
	now       func() time.Time
}

// New creates an Orchestrator.
func New(orders order.Repository, discounts *discount.Engine) *Orchestrator {
	return &Orchestrator{orders: orders, discounts: discounts, now: time.Now}
}

// PlaceOrder creates the order in PENDING with total price equal to the
// subtotal, then applies the discount code if one is attached. Discount
// failures are surfaced in the result but never block checkout.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	if req.Subtotal.IsNegative() {
		return nil, ErrNegativeSubtotal
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	ord := &order.Order{
		ID:             uuid.New().String(),
		CustomerID:     req.CustomerID,
		Status:         order.StatusPending,
		PaymentMethod:  req.PaymentMethod,
		TotalPrice:     req.Subtotal,
		DiscountAmount: decimal.Zero,
		Receiver:       req.Receiver,
		CreatedAt:      o.now().UTC(),
	}
	if err := o.orders.Create(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	res := &Result{Order: ord}
	if req.DiscountCode == "" {
		return res, nil
	}

	code := discount.NormalizeCode(req.DiscountCode)
	q, err := o.discounts.ApplyCode(ctx, code, req.Subtotal, ord.ID)
	if err != nil {
		res.DiscountErr = err
		return res, nil
	}

	if err := o.orders.AttachDiscount(ctx, ord.ID, code, q.DiscountAmount); err != nil {
		return nil, errors.Wrap(err, "attach discount")
	}
	ord.DiscountCode = code
	ord.DiscountAmount = q.DiscountAmount
	res.Quote = q
	return res, nil
}
