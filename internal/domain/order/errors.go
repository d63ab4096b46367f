package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

var (
	// ErrNotFound is returned when no order exists for the given id.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when a transition loses a race and the
	// order is no longer in the status it was read at. Nothing is written.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrCancelNotAllowed is returned when the cancellation rules reject the
	// request (wrong state, wrong payment method, or wrong actor).
	ErrCancelNotAllowed = errors.New("cancellation not allowed")
)

// IllegalTransitionError indicates the requested status is not in the legal
// set for the order's current status and payment method. It carries the legal
// alternatives for display.
type IllegalTransitionError struct {
	From      Status
	Requested Status
	Legal     []Status
}

func (e *IllegalTransitionError) Error() string {
	if len(e.Legal) == 0 {
		return fmt.Sprintf("illegal transition %s -> %s: no further transitions allowed", e.From, e.Requested)
	}
	legal := make([]string, len(e.Legal))
	for i, s := range e.Legal {
		legal[i] = string(s)
	}
	return fmt.Sprintf("illegal transition %s -> %s: legal targets are %s",
		e.From, e.Requested, strings.Join(legal, ", "))
}

// UnauthorizedError indicates the actor's role is insufficient for the
// specific transition attempted.
type UnauthorizedError struct {
	Role      actor.Role
	From      Status
	Requested Status
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("role %s may not transition %s -> %s", e.Role, e.From, e.Requested)
}

// WrongStateError indicates a refund operation was attempted on an order that
// is not in the refund sub-flow (or a side-channel override from an
// unsupported source status).
type WrongStateError struct {
	Status Status
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("operation not applicable to order in status %s", e.Status)
}
