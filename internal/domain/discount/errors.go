package discount

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no discount exists for the given id or code.
	ErrNotFound = errors.New("discount not found")
	// ErrRedemptionNotFound is returned when no redemption is recorded for
	// an order reference.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrAlreadyRedeemed is returned by Repository.Redeem when the order
	// reference already holds a redemption.
	ErrAlreadyRedeemed = errors.New("order already redeemed this discount")
	// ErrUsageLimitReached is returned by Repository.Redeem when the guarded
	// increment finds the usage limit exhausted at commit time.
	ErrUsageLimitReached = errors.New("usage limit reached")
	// ErrUnauthorized is returned when the acting role may not perform the
	// requested administration operation.
	ErrUnauthorized = errors.New("actor not allowed")
)

// NotApprovedError indicates the discount is not in the APPROVED state.
type NotApprovedError struct {
	Status ApprovalStatus
}

func (e *NotApprovedError) Error() string {
	return fmt.Sprintf("discount is %s, not approved for use", e.Status)
}

// ExpiredError indicates the current time falls outside the validity window.
type ExpiredError struct {
	Start time.Time
	End   time.Time
	Now   time.Time
}

func (e *ExpiredError) Error() string {
	if e.Now.Before(e.Start) {
		return fmt.Sprintf("discount not valid until %s", e.Start.Format(time.RFC3339))
	}
	return fmt.Sprintf("discount expired at %s", e.End.Format(time.RFC3339))
}

// UsageExhaustedError indicates the usage limit has been consumed.
type UsageExhaustedError struct {
	Limit int
}

func (e *UsageExhaustedError) Error() string {
	return fmt.Sprintf("discount usage limit of %d reached", e.Limit)
}

// BelowMinimumError indicates the order value does not reach the discount's
// minimum. Shortfall is how much is missing.
type BelowMinimumError struct {
	MinOrderValue decimal.Decimal
	Shortfall     decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("order value below minimum of %s (short by %s)",
		e.MinOrderValue, e.Shortfall)
}
