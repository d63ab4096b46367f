package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

// Service drives order lifecycles: it enforces the transition table, the
// role rules for each transition, and the refund sub-flow. All writes go
// through the Repository's atomic operations.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates a Service backed by the given repository.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Get loads an order with its full status history.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}

// RequestTransition moves the order to target if the transition table and the
// actor's role allow it. On success the appended StatusChange is returned.
func (s *Service) RequestTransition(ctx context.Context, orderID string, target Status, by actor.Actor, note string) (*StatusChange, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(o.PaymentMethod, o.Status, target) {
		return nil, &IllegalTransitionError{
			From:      o.Status,
			Requested: target,
			Legal:     LegalNextStatuses(o.PaymentMethod, o.Status),
		}
	}

	// Role authorization is a caller precondition, re-validated here.
	if err := authorizeTransition(o, target, by); err != nil {
		return nil, err
	}

	return s.commit(ctx, o, target, by, note)
}

// Cancel cancels the order. Customers may only cancel their own pending
// cash-on-delivery orders; staff may cancel any order still in PENDING.
func (s *Service) Cancel(ctx context.Context, orderID string, by actor.Actor, note string) (*StatusChange, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(o.PaymentMethod, o.Status, StatusCancelled) {
		return nil, errors.Wrapf(ErrCancelNotAllowed, "order in status %s", o.Status)
	}
	if by.Role == actor.RoleCustomer {
		if o.PaymentMethod != PaymentCashOnDelivery || o.CustomerID != by.ID {
			return nil, ErrCancelNotAllowed
		}
	} else if !by.Role.IsStaff() {
		return nil, ErrCancelNotAllowed
	}

	return s.commit(ctx, o, StatusCancelled, by, note)
}

// MarkReturned records a customer return. Staff only, and only for completed
// orders; this is a side-channel exempt from the forward table.
func (s *Service) MarkReturned(ctx context.Context, orderID string, by actor.Actor, note string) (*StatusChange, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !by.Role.IsStaff() {
		return nil, &UnauthorizedError{Role: by.Role, From: o.Status, Requested: StatusReturned}
	}
	if o.Status != StatusCompleted {
		return nil, &WrongStateError{Status: o.Status}
	}

	return s.commit(ctx, o, StatusReturned, by, note)
}

// InitiateRefund moves the order into the refund sub-flow. Staff only.
// Refunds start from COMPLETED or RETURNED orders, and from CANCELLED
// prepaid-wallet orders where money was already collected.
func (s *Service) InitiateRefund(ctx context.Context, orderID string, by actor.Actor, note string) (*StatusChange, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !by.Role.IsStaff() {
		return nil, &UnauthorizedError{Role: by.Role, From: o.Status, Requested: StatusRefund}
	}
	if !refundable(o) {
		return nil, &WrongStateError{Status: o.Status}
	}

	return s.commit(ctx, o, StatusRefund, by, note)
}

// ConfirmRefund marks the refund payment as completed. Idempotent: confirming
// an already-confirmed refund is a no-op.
func (s *Service) ConfirmRefund(ctx context.Context, orderID string, by actor.Actor) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !by.Role.IsStaff() {
		return &UnauthorizedError{Role: by.Role, From: o.Status, Requested: StatusRefund}
	}
	if o.Status != StatusRefund {
		return &WrongStateError{Status: o.Status}
	}
	if o.RefundStatus == RefundSuccess {
		return nil
	}

	if err := s.orders.SetRefundStatus(ctx, orderID, RefundSuccess); err != nil {
		return errors.Wrap(err, "confirm refund")
	}
	return nil
}

// commit appends the StatusChange and advances the order status in one
// repository transaction, then mirrors the change onto the loaded copy.
func (s *Service) commit(ctx context.Context, o *Order, target Status, by actor.Actor, note string) (*StatusChange, error) {
	change := StatusChange{
		From:      o.Status,
		To:        target,
		ChangedBy: by,
		ChangedAt: s.now().UTC(),
		Note:      note,
	}
	if err := s.orders.ApplyTransition(ctx, o.ID, change); err != nil {
		return nil, err
	}

	o.Status = target
	o.StatusHistory = append(o.StatusHistory, change)
	if target == StatusRefund && o.RefundStatus == RefundNone {
		o.RefundStatus = RefundPending
	}
	return &change, nil
}

func refundable(o *Order) bool {
	switch o.Status {
	case StatusCompleted, StatusReturned:
		return true
	case StatusCancelled:
		return o.PaymentMethod == PaymentPrepaidWallet
	}
	return false
}

// authorizeTransition enforces the per-transition role rules for targets in
// the forward table. Customers may only cancel, and only pending
// cash-on-delivery orders they own; everything else requires staff.
func authorizeTransition(o *Order, target Status, by actor.Actor) error {
	if by.Role.IsStaff() {
		return nil
	}
	if by.Role == actor.RoleCustomer &&
		target == StatusCancelled &&
		o.Status == StatusPending &&
		o.PaymentMethod == PaymentCashOnDelivery &&
		o.CustomerID == by.ID {
		return nil
	}
	return &UnauthorizedError{Role: by.Role, From: o.Status, Requested: target}
}
