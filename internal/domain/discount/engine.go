package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine validates discount codes against order values and consumes usages.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate checks the code against the order value and returns the priced
// quote without consuming a usage.
func (e *Engine) Validate(ctx context.Context, code string, orderValue decimal.Decimal) (*Quote, error) {
	d, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	return quote(d, orderValue, e.now())
}

// Apply re-validates the discount and consumes exactly one usage for the
// given order reference. Applying twice for the same reference is a no-op
// returning the originally computed amounts.
func (e *Engine) Apply(ctx context.Context, discountID string, orderValue decimal.Decimal, orderRef string) (*Quote, error) {
	d, err := e.repo.FindByID(ctx, discountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	return e.apply(ctx, d, orderValue, orderRef)
}

// ApplyCode is Apply with a code lookup; checkout uses it since customers
// submit codes, not ids.
func (e *Engine) ApplyCode(ctx context.Context, code string, orderValue decimal.Decimal, orderRef string) (*Quote, error) {
	d, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	return e.apply(ctx, d, orderValue, orderRef)
}

func (e *Engine) apply(ctx context.Context, d *Discount, orderValue decimal.Decimal, orderRef string) (*Quote, error) {
	// Idempotence check before anything else: a reference that already
	// redeemed keeps its original amounts even if the discount has since
	// expired or been exhausted.
	existing, err := e.repo.FindRedemption(ctx, d.ID, orderRef)
	if err == nil {
		return &Quote{DiscountAmount: existing.Amount, FinalAmount: existing.FinalAmount}, nil
	}
	if !errors.Is(err, ErrRedemptionNotFound) {
		return nil, errors.Wrap(err, "find redemption")
	}

	// Re-validation is mandatory: the definition may have changed since an
	// earlier Validate call.
	q, err := quote(d, orderValue, e.now())
	if err != nil {
		return nil, err
	}

	err = e.repo.Redeem(ctx, &Redemption{
		DiscountID:  d.ID,
		OrderRef:    orderRef,
		Amount:      q.DiscountAmount,
		FinalAmount: q.FinalAmount,
		RedeemedAt:  e.now().UTC(),
	})
	switch {
	case err == nil:
		return q, nil
	case errors.Is(err, ErrAlreadyRedeemed):
		// Lost a race against another apply for the same reference.
		existing, ferr := e.repo.FindRedemption(ctx, d.ID, orderRef)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "find racing redemption")
		}
		return &Quote{DiscountAmount: existing.Amount, FinalAmount: existing.FinalAmount}, nil
	case errors.Is(err, ErrUsageLimitReached):
		// Validation passed on a stale counter; the guard is authoritative.
		limit := 0
		if d.UsageLimit != nil {
			limit = *d.UsageLimit
		}
		return nil, &UsageExhaustedError{Limit: limit}
	default:
		return nil, errors.Wrap(err, "redeem discount")
	}
}

// quote runs the eligibility checks in order, short-circuiting on the first
// failure, and prices the discount on success.
func quote(d *Discount, orderValue decimal.Decimal, now time.Time) (*Quote, error) {
	if d.ApprovalStatus != ApprovalApproved {
		return nil, &NotApprovedError{Status: d.ApprovalStatus}
	}
	if now.Before(d.StartDate) || now.After(d.EndDate) {
		return nil, &ExpiredError{Start: d.StartDate, End: d.EndDate, Now: now}
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return nil, &UsageExhaustedError{Limit: *d.UsageLimit}
	}
	if orderValue.LessThan(d.MinOrderValue) {
		return nil, &BelowMinimumError{
			MinOrderValue: d.MinOrderValue,
			Shortfall:     d.MinOrderValue.Sub(orderValue),
		}
	}

	raw := orderValue.Mul(decimal.NewFromInt(int64(d.Percent))).Div(hundred).Floor()
	amount := raw
	if d.MaxDiscountAmount != nil {
		amount = decimal.Min(raw, *d.MaxDiscountAmount)
	}

	return &Quote{
		DiscountAmount: amount,
		FinalAmount:    orderValue.Sub(amount),
	}, nil
}

// NormalizeCode canonicalizes a user-supplied code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
