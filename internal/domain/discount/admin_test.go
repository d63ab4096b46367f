package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

var (
	staffActor    = actor.Actor{ID: "staff-1", Role: actor.RoleStaff}
	adminActor    = actor.Actor{ID: "admin-1", Role: actor.RoleAdmin}
	customerActor = actor.Actor{ID: "cust-1", Role: actor.RoleCustomer}
)

func newTestAdmin(repo Repository) *AdminService {
	s := NewAdminService(repo)
	s.now = engineClock
	return s
}

func validParams() Params {
	return Params{
		Code:          "spring15",
		Percent:       15,
		MinOrderValue: decimal.NewFromInt(50000),
		StartDate:     engineClock(),
		EndDate:       engineClock().AddDate(0, 1, 0),
	}
}

func TestAdminCreate(t *testing.T) {
	repo := newDiscountRepo()
	admin := newTestAdmin(repo)

	d, err := admin.Create(context.Background(), validParams(), staffActor)
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "SPRING15", d.Code, "code stored uppercase")
	assert.Equal(t, ApprovalPending, d.ApprovalStatus)
	assert.Equal(t, staffActor.ID, d.CreatedBy)
	assert.Equal(t, 0, d.UsedCount)
}

func TestAdminCreate_CustomerForbidden(t *testing.T) {
	admin := newTestAdmin(newDiscountRepo())

	_, err := admin.Create(context.Background(), validParams(), customerActor)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"code too short", func(p *Params) { p.Code = "ab" }, ErrCodeTooShort},
		{"zero percent", func(p *Params) { p.Percent = 0 }, ErrInvalidPercent},
		{"over 100 percent", func(p *Params) { p.Percent = 101 }, ErrInvalidPercent},
		{"window inverted", func(p *Params) { p.EndDate = p.StartDate.Add(-time.Hour) }, ErrInvalidWindow},
		{"window empty", func(p *Params) { p.EndDate = p.StartDate }, ErrInvalidWindow},
		{"negative minimum", func(p *Params) { p.MinOrderValue = decimal.NewFromInt(-1) }, ErrNegativeAmount},
		{"negative cap", func(p *Params) {
			neg := decimal.NewFromInt(-5)
			p.MaxDiscountAmount = &neg
		}, ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := newTestAdmin(newDiscountRepo())
			p := validParams()
			tt.mutate(&p)

			_, err := admin.Create(context.Background(), p, staffActor)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdminUpdate_OnlyWhilePending(t *testing.T) {
	repo := newDiscountRepo()
	admin := newTestAdmin(repo)

	d, err := admin.Create(context.Background(), validParams(), staffActor)
	require.NoError(t, err)

	p := validParams()
	p.Percent = 25
	updated, err := admin.Update(context.Background(), d.ID, p, staffActor)
	require.NoError(t, err)
	assert.Equal(t, 25, updated.Percent)

	_, err = admin.Approve(context.Background(), d.ID, adminActor)
	require.NoError(t, err)

	_, err = admin.Update(context.Background(), d.ID, p, staffActor)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestAdminReview(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		repo := newDiscountRepo()
		admin := newTestAdmin(repo)
		d, _ := admin.Create(context.Background(), validParams(), staffActor)

		approved, err := admin.Approve(context.Background(), d.ID, adminActor)
		require.NoError(t, err)
		assert.Equal(t, ApprovalApproved, approved.ApprovalStatus)
	})

	t.Run("staff cannot review", func(t *testing.T) {
		repo := newDiscountRepo()
		admin := newTestAdmin(repo)
		d, _ := admin.Create(context.Background(), validParams(), staffActor)

		_, err := admin.Approve(context.Background(), d.ID, staffActor)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("reject requires reason", func(t *testing.T) {
		repo := newDiscountRepo()
		admin := newTestAdmin(repo)
		d, _ := admin.Create(context.Background(), validParams(), staffActor)

		_, err := admin.Reject(context.Background(), d.ID, "", adminActor)
		assert.ErrorIs(t, err, ErrReasonRequired)

		rejected, err := admin.Reject(context.Background(), d.ID, "duplicate of SPRING10", adminActor)
		require.NoError(t, err)
		assert.Equal(t, ApprovalRejected, rejected.ApprovalStatus)
		assert.Equal(t, "duplicate of SPRING10", rejected.RejectedReason)
	})

	t.Run("review is one-shot", func(t *testing.T) {
		repo := newDiscountRepo()
		admin := newTestAdmin(repo)
		d, _ := admin.Create(context.Background(), validParams(), staffActor)

		_, err := admin.Approve(context.Background(), d.ID, adminActor)
		require.NoError(t, err)

		_, err = admin.Reject(context.Background(), d.ID, "changed my mind", adminActor)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})
}

func TestAdminDeactivateActivate(t *testing.T) {
	repo := newDiscountRepo()
	admin := newTestAdmin(repo)

	d, _ := admin.Create(context.Background(), validParams(), staffActor)

	// Cannot deactivate before approval.
	_, err := admin.Deactivate(context.Background(), d.ID, staffActor)
	assert.ErrorIs(t, err, ErrNotApprovedYet)

	_, err = admin.Approve(context.Background(), d.ID, adminActor)
	require.NoError(t, err)

	disabled, err := admin.Deactivate(context.Background(), d.ID, staffActor)
	require.NoError(t, err)
	assert.Equal(t, ApprovalDisabled, disabled.ApprovalStatus)

	// Disabled codes no longer validate.
	e := newTestEngine(repo)
	_, err = e.Validate(context.Background(), "SPRING15", decimal.NewFromInt(100000))
	var notApproved *NotApprovedError
	require.ErrorAs(t, err, &notApproved)
	assert.Equal(t, ApprovalDisabled, notApproved.Status)

	// Cannot re-activate something that is not disabled.
	reactivated, err := admin.Activate(context.Background(), d.ID, staffActor)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, reactivated.ApprovalStatus)

	_, err = admin.Activate(context.Background(), d.ID, staffActor)
	assert.ErrorIs(t, err, ErrNotDeactivated)
}
