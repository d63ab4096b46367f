package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakmart/ordercore/internal/domain/discount"
)

const (
	discountColumns = `id, code, percent, min_order_value, max_discount_amount,
		start_date, end_date, usage_limit, used_count,
		approval_status, rejected_reason, created_by, created_at, updated_at`

	insertDiscountSQL = `INSERT INTO discounts
		(id, code, percent, min_order_value, max_discount_amount,
		 start_date, end_date, usage_limit, used_count,
		 approval_status, rejected_reason, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	updateDiscountSQL = `UPDATE discounts SET
		code = $2, percent = $3, min_order_value = $4, max_discount_amount = $5,
		start_date = $6, end_date = $7, usage_limit = $8,
		approval_status = $9, rejected_reason = $10, updated_at = $11
		WHERE id = $1`

	getDiscountByIDSQL   = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`
	getDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE UPPER(code) = UPPER($1)`

	getRedemptionSQL = `SELECT discount_id, order_ref, amount, final_amount, redeemed_at
		FROM discount_redemptions WHERE discount_id = $1 AND order_ref = $2`

	insertRedemptionSQL = `INSERT INTO discount_redemptions
		(discount_id, order_ref, amount, final_amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (discount_id, order_ref) DO NOTHING`

	// The WHERE guard is the usage reservation: under concurrent commits at
	// the limit boundary, only the transactions that still see headroom
	// advance the counter.
	incrementUsedSQL = `UPDATE discounts SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Create persists a new discount definition.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	_, err := r.pool.Exec(ctx, insertDiscountSQL,
		d.ID, d.Code, d.Percent, d.MinOrderValue, d.MaxDiscountAmount,
		d.StartDate, d.EndDate, d.UsageLimit, d.UsedCount,
		string(d.ApprovalStatus), d.RejectedReason, d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating discount %q: %w", d.Code, err)
	}
	return nil
}

// Update writes the definition and approval fields. The usage counter is
// deliberately not part of the statement; it only moves through Redeem.
func (r *DiscountRepository) Update(ctx context.Context, d *discount.Discount) error {
	tag, err := r.pool.Exec(ctx, updateDiscountSQL,
		d.ID, d.Code, d.Percent, d.MinOrderValue, d.MaxDiscountAmount,
		d.StartDate, d.EndDate, d.UsageLimit,
		string(d.ApprovalStatus), d.RejectedReason, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating discount %q: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// FindByID looks up a discount by its id.
func (r *DiscountRepository) FindByID(ctx context.Context, id string) (*discount.Discount, error) {
	return r.findOne(ctx, getDiscountByIDSQL, id)
}

// FindByCode looks up a discount by code, case-insensitively.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	return r.findOne(ctx, getDiscountByCodeSQL, code)
}

func (r *DiscountRepository) findOne(ctx context.Context, sql, arg string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding discount %q: %w", arg, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount %q: %w", arg, err)
	}
	return &d, nil
}

// FindRedemption returns the redemption recorded for the order reference.
func (r *DiscountRepository) FindRedemption(ctx context.Context, discountID, orderRef string) (*discount.Redemption, error) {
	rows, err := r.pool.Query(ctx, getRedemptionSQL, discountID, orderRef)
	if err != nil {
		return nil, fmt.Errorf("finding redemption for order %q: %w", orderRef, err)
	}

	red, err := pgx.CollectExactlyOneRow(rows, scanRedemption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("finding redemption for order %q: %w", orderRef, err)
	}
	return &red, nil
}

// Redeem inserts the redemption row and increments used_count in a single
// transaction. The insert goes first so a duplicate order reference aborts
// before the counter moves; the guarded increment then acts as the atomic
// reservation against usage_limit.
func (r *DiscountRepository) Redeem(ctx context.Context, red *discount.Redemption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redeem tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, insertRedemptionSQL,
		red.DiscountID, red.OrderRef, red.Amount, red.FinalAmount, red.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting redemption for order %q: %w", red.OrderRef, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrAlreadyRedeemed
	}

	tag, err = tx.Exec(ctx, incrementUsedSQL, red.DiscountID)
	if err != nil {
		return fmt.Errorf("incrementing uses of discount %q: %w", red.DiscountID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrUsageLimitReached
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redemption for order %q: %w", red.OrderRef, err)
	}
	return nil
}

func scanRedemption(row pgx.CollectableRow) (discount.Redemption, error) {
	var red discount.Redemption
	err := row.Scan(&red.DiscountID, &red.OrderRef, &red.Amount, &red.FinalAmount, &red.RedeemedAt)
	return red, err
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d              discount.Discount
		approvalStatus string
	)
	err := row.Scan(
		&d.ID, &d.Code, &d.Percent, &d.MinOrderValue, &d.MaxDiscountAmount,
		&d.StartDate, &d.EndDate, &d.UsageLimit, &d.UsedCount,
		&approvalStatus, &d.RejectedReason, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	d.ApprovalStatus = discount.ApprovalStatus(approvalStatus)
	return d, err
}
