package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, kind, value, minimum_amount, maximum_discount,
		usage_limit, used_count, active, valid_from, valid_until, created_at, updated_at`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByCodeForUpdateSQL = getCouponByCodeSQL + ` FOR UPDATE`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC`

	deactivateCouponSQL = `UPDATE coupons SET active = FALSE, updated_at = now() WHERE code = $1`

	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING code`

	couponCodeSQL = `SELECT code FROM coupons WHERE id = $1`

	// upsertCouponSQL keeps usage counters of existing codes.
	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			minimum_amount = EXCLUDED.minimum_amount,
			maximum_discount = EXCLUDED.maximum_discount,
			usage_limit = EXCLUDED.usage_limit,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			updated_at = EXCLUDED.updated_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Codes are stored normalized, see coupon.NormalizeCode.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses the given DB.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// Create stores a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.db.conn(ctx).Exec(ctx, createCouponSQL, couponArgs(c)...)
	if isUniqueViolation(err, "coupons_code_key") {
		return coupon.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts coupons or updates the rule of existing codes in one batch.
// Usage counters of existing codes are kept.
func (r *CouponRepository) Upsert(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(upsertCouponSQL, couponArgs(&coupons[i])...)
	}
	if err := r.db.conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

// FindByCode returns a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, getCouponByCodeSQL, code)
}

// FindByCodeForUpdate returns a coupon and row-locks it until the
// surrounding transaction ends.
func (r *CouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, getCouponByCodeForUpdateSQL, code)
}

func (r *CouponRepository) find(ctx context.Context, sql, code string) (*coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Deactivate disables a coupon.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deactivateCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem increments the usage counter unless the usage limit is reached.
// The check and the increment are one statement, so concurrent checkouts
// cannot redeem past the limit.
func (r *CouponRepository) Redeem(ctx context.Context, id uuid.UUID) error {
	var code string
	err := r.db.conn(ctx).QueryRow(ctx, redeemCouponSQL, id).Scan(&code)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("redeeming coupon %s: %w", id, err)
	}

	if err := r.db.conn(ctx).QueryRow(ctx, couponCodeSQL, id).Scan(&code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrNotFound
		}
		return fmt.Errorf("redeeming coupon %s: %w", id, err)
	}
	return &coupon.RejectedError{Code: code, Reason: coupon.ReasonExhausted}
}

func couponArgs(c *coupon.Coupon) []any {
	var usageLimit *int32
	if c.UsageLimit != nil {
		v := int32(*c.UsageLimit)
		usageLimit = &v
	}
	return []any{
		c.ID, c.Code, string(c.Kind), c.Value, c.MinimumAmount, c.MaximumDiscount,
		usageLimit, int32(c.UsedCount), c.Active, c.ValidFrom, c.ValidUntil, c.CreatedAt, c.UpdatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		kind       string
		usageLimit *int32
		usedCount  int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Value, &c.MinimumAmount, &c.MaximumDiscount,
		&usageLimit, &usedCount, &c.Active, &c.ValidFrom, &c.ValidUntil, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Kind = coupon.Kind(kind)
	if usageLimit != nil {
		v := int(*usageLimit)
		c.UsageLimit = &v
	}
	c.UsedCount = int(usedCount)
	return c, err
}
