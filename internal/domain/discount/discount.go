package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalStatus is the review state of a discount definition.
type ApprovalStatus string

const (
	// ApprovalPending is the initial state; the definition is still editable.
	ApprovalPending ApprovalStatus = "PENDING"
	// ApprovalApproved makes the discount redeemable within its window.
	ApprovalApproved ApprovalStatus = "APPROVED"
	// ApprovalRejected is set by a reviewer together with a reason.
	ApprovalRejected ApprovalStatus = "REJECTED"
	// ApprovalExpired marks an approved discount whose window has passed.
	ApprovalExpired ApprovalStatus = "EXPIRED"
	// ApprovalDisabled is the terminal state for deactivated or deleted
	// discounts. Rows are never removed; this preserves the audit trail.
	ApprovalDisabled ApprovalStatus = "DISABLED"
)

// Discount is a percentage discount definition with eligibility constraints
// and a usage counter.
//
// UsedCount is owned by the redemption path: it is only advanced through
// Repository.Redeem, never written directly by callers.
type Discount struct {
	ID                string
	Code              string // stored uppercase, matched case-insensitively
	Percent           int    // 1..100
	MinOrderValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal // nil = uncapped
	StartDate         time.Time
	EndDate           time.Time
	UsageLimit        *int // nil = unbounded
	UsedCount         int
	ApprovalStatus    ApprovalStatus
	RejectedReason    string
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Quote is the priced outcome of validating or applying a discount.
type Quote struct {
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Redemption associates a consumed discount use with one order reference.
// The (discount, order) pair is unique, which is what makes apply idempotent.
type Redemption struct {
	DiscountID  string
	OrderRef    string
	Amount      decimal.Decimal
	FinalAmount decimal.Decimal
	RedeemedAt  time.Time
}

// Repository defines persistence operations for discounts and redemptions.
type Repository interface {
	Create(ctx context.Context, d *Discount) error
	Update(ctx context.Context, d *Discount) error
	FindByID(ctx context.Context, id string) (*Discount, error)
	// FindByCode matches the code case-insensitively.
	FindByCode(ctx context.Context, code string) (*Discount, error)

	// FindRedemption returns the redemption recorded for the given order
	// reference, or ErrRedemptionNotFound.
	FindRedemption(ctx context.Context, discountID, orderRef string) (*Redemption, error)

	// Redeem inserts the redemption and increments used_count in one
	// transaction. The increment is guarded by used_count < usage_limit so
	// the counter never overshoots under concurrent commits. Returns
	// ErrAlreadyRedeemed when the order reference was redeemed before, and
	// ErrUsageLimitReached when the guard fails at commit time.
	Redeem(ctx context.Context, r *Redemption) error
}
