package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

// Validation and state-guard errors for discount administration.
var (
	ErrCodeTooShort    = errors.New("discount code must be at least 3 characters")
	ErrInvalidPercent  = errors.New("discount percent must be between 1 and 100")
	ErrInvalidWindow   = errors.New("end date must be after start date")
	ErrNegativeAmount  = errors.New("amounts must not be negative")
	ErrReasonRequired  = errors.New("rejection reason is required")
	ErrNotEditable     = errors.New("discount is only editable while pending")
	ErrAlreadyReviewed = errors.New("discount already reviewed")
	ErrNotApprovedYet  = errors.New("only approved discounts can be deactivated")
	ErrNotDeactivated  = errors.New("only deactivated discounts can be reactivated")
)

// Params holds the definition fields for creating or editing a discount.
type Params struct {
	Code              string
	Percent           int
	MinOrderValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	UsageLimit        *int
}

// AdminService is the administration surface consumed by the approval
// workflow: create, edit while pending, review, and de/reactivate.
type AdminService struct {
	repo Repository
	now  func() time.Time
}

// NewAdminService creates an AdminService backed by the given repository.
func NewAdminService(repo Repository) *AdminService {
	return &AdminService{repo: repo, now: time.Now}
}

// Create registers a new discount in PENDING state. Staff only.
func (s *AdminService) Create(ctx context.Context, p Params, by actor.Actor) (*Discount, error) {
	if !by.Role.IsStaff() {
		return nil, ErrUnauthorized
	}
	if err := validateParams(p); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &Discount{
		ID:                uuid.New().String(),
		Code:              NormalizeCode(p.Code),
		Percent:           p.Percent,
		MinOrderValue:     p.MinOrderValue,
		MaxDiscountAmount: p.MaxDiscountAmount,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		UsageLimit:        p.UsageLimit,
		ApprovalStatus:    ApprovalPending,
		CreatedBy:         by.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, errors.Wrap(err, "create discount")
	}
	return d, nil
}

// Update edits a discount's definition. Only pending discounts are mutable.
func (s *AdminService) Update(ctx context.Context, id string, p Params, by actor.Actor) (*Discount, error) {
	if !by.Role.IsStaff() {
		return nil, ErrUnauthorized
	}
	if err := validateParams(p); err != nil {
		return nil, err
	}

	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.ApprovalStatus != ApprovalPending {
		return nil, ErrNotEditable
	}

	d.Code = NormalizeCode(p.Code)
	d.Percent = p.Percent
	d.MinOrderValue = p.MinOrderValue
	d.MaxDiscountAmount = p.MaxDiscountAmount
	d.StartDate = p.StartDate
	d.EndDate = p.EndDate
	d.UsageLimit = p.UsageLimit
	d.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, errors.Wrap(err, "update discount")
	}
	return d, nil
}

// Approve marks a pending discount as approved. Admin only.
func (s *AdminService) Approve(ctx context.Context, id string, by actor.Actor) (*Discount, error) {
	return s.review(ctx, id, by, ApprovalApproved, "")
}

// Reject marks a pending discount as rejected with a reason. Admin only.
func (s *AdminService) Reject(ctx context.Context, id, reason string, by actor.Actor) (*Discount, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.review(ctx, id, by, ApprovalRejected, reason)
}

func (s *AdminService) review(ctx context.Context, id string, by actor.Actor, to ApprovalStatus, reason string) (*Discount, error) {
	if by.Role != actor.RoleAdmin {
		return nil, ErrUnauthorized
	}

	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.ApprovalStatus != ApprovalPending {
		return nil, ErrAlreadyReviewed
	}

	d.ApprovalStatus = to
	d.RejectedReason = reason
	d.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, errors.Wrap(err, "review discount")
	}
	return d, nil
}

// Deactivate disables an approved discount. The row stays in storage as an
// audit record; redeemability ends immediately.
func (s *AdminService) Deactivate(ctx context.Context, id string, by actor.Actor) (*Discount, error) {
	return s.toggle(ctx, id, by, ApprovalApproved, ApprovalDisabled, ErrNotApprovedYet)
}

// Activate re-enables a previously deactivated discount.
func (s *AdminService) Activate(ctx context.Context, id string, by actor.Actor) (*Discount, error) {
	return s.toggle(ctx, id, by, ApprovalDisabled, ApprovalApproved, ErrNotDeactivated)
}

func (s *AdminService) toggle(ctx context.Context, id string, by actor.Actor, from, to ApprovalStatus, guardErr error) (*Discount, error) {
	if !by.Role.IsStaff() {
		return nil, ErrUnauthorized
	}

	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.ApprovalStatus != from {
		return nil, guardErr
	}

	d.ApprovalStatus = to
	d.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, errors.Wrap(err, "toggle discount")
	}
	return d, nil
}

func validateParams(p Params) error {
	if len(NormalizeCode(p.Code)) < 3 {
		return ErrCodeTooShort
	}
	if p.Percent < 1 || p.Percent > 100 {
		return ErrInvalidPercent
	}
	if !p.EndDate.After(p.StartDate) {
		return ErrInvalidWindow
	}
	if p.MinOrderValue.IsNegative() {
		return ErrNegativeAmount
	}
	if p.MaxDiscountAmount != nil && p.MaxDiscountAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
