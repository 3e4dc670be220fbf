package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
)

var _ repository.TenantRepository = (*tenantRepo)(nil)

// tenantRepo maps the tenant-type discriminant onto one of five concrete
// tables. Table names are resolved through a closed map; nothing here is
// built from caller-provided strings.
type tenantRepo struct{ pool *pgxpool.Pool }

func NewTenantRepo(pool *pgxpool.Pool) *tenantRepo {
	return &tenantRepo{pool: pool}
}

var tenantTables = map[model.TenantType]string{
	model.TenantWorker:          "workers",
	model.TenantEmployer:        "employers",
	model.TenantAccountant:      "accountants",
	model.TenantCleaningCompany: "cleaning_companies",
	model.TenantRegularUser:     "regular_users",
}

func tableFor(t model.TenantType) (string, error) {
	tbl, ok := tenantTables[t]
	if !ok {
		return "", domain.ErrUnknownTenantType
	}
	return tbl, nil
}

const tenantColumns = `profile_id, email, subscription_tier, subscription_status, external_customer_id, external_subscription_id, subscription_end_date, last_payment_date, last_authoritative_at, updated_at`

func scanTenant(row pgx.Row, t model.TenantType) (*model.TenantRecord, error) {
	rec := &model.TenantRecord{Type: t}
	var tier, status string
	if err := row.Scan(
		&rec.ProfileID, &rec.Email, &tier, &status,
		&rec.ExternalCustomerID, &rec.ExternalSubscriptionID,
		&rec.SubscriptionEndDate, &rec.LastPaymentDate,
		&rec.LastAuthoritativeAt, &rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.Tier = model.SubscriptionTier(tier)
	rec.Status = model.SubscriptionStatus(status)
	return rec, nil
}

func (r *tenantRepo) Save(ctx context.Context, tx repository.Tx, rec *model.TenantRecord) error {
	tbl, err := tableFor(rec.Type)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (profile_id) DO UPDATE SET
  email=$2, subscription_tier=$3, subscription_status=$4,
  external_customer_id=$5, external_subscription_id=$6,
  subscription_end_date=$7, last_payment_date=$8,
  last_authoritative_at=$9, updated_at=NOW();`, tbl, tenantColumns)

	_, err = execSQL(ctx, r.pool, tx, q,
		rec.ProfileID, rec.Email, string(rec.Tier), string(rec.Status),
		rec.ExternalCustomerID, rec.ExternalSubscriptionID,
		rec.SubscriptionEndDate, rec.LastPaymentDate, rec.LastAuthoritativeAt,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *tenantRepo) FindByProfileID(ctx context.Context, tx repository.Tx, t model.TenantType, profileID string) (*model.TenantRecord, error) {
	tbl, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE profile_id=$1;`, tenantColumns, tbl)
	row, err := pickRow(ctx, r.pool, tx, q, profileID)
	if err != nil {
		return nil, err
	}
	return scanTenant(row, t)
}

func (r *tenantRepo) FindByCustomerID(ctx context.Context, tx repository.Tx, t model.TenantType, customerID string) (*model.TenantRecord, error) {
	tbl, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE external_customer_id=$1 LIMIT 1;`, tenantColumns, tbl)
	row, err := pickRow(ctx, r.pool, tx, q, customerID)
	if err != nil {
		return nil, err
	}
	return scanTenant(row, t)
}

// updateSet is the shared partial-update SET clause. Placeholders:
// $2 tier, $3 status, $4 customer id, $5 clear-subscription flag,
// $6 subscription id, $7 period end, $8 last payment date.
func updateSet(tbl string) string {
	set := `
  subscription_tier = COALESCE($2::text, subscription_tier),
  subscription_status = COALESCE($3::text, subscription_status),
  external_customer_id = COALESCE($4::text, external_customer_id),
  external_subscription_id = CASE WHEN $5 THEN NULL ELSE COALESCE($6::text, external_subscription_id) END,
  subscription_end_date = COALESCE($7::timestamptz, subscription_end_date),
  last_payment_date = COALESCE($8::timestamptz, last_payment_date),
  updated_at = NOW()`
	if tbl == "regular_users" {
		// The duplicated premium flag is written only here, derived from the
		// same expressions, so it cannot drift from tier/status in-process.
		set += `,
  is_premium = (COALESCE($2::text, subscription_tier) = 'premium' AND COALESCE($3::text, subscription_status) = 'active')`
	}
	return set
}

func textPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func updateArgs(key string, upd repository.SubscriptionUpdate) []interface{} {
	return []interface{}{
		key,
		textPtr(upd.Tier),
		textPtr(upd.Status),
		upd.ExternalCustomerID,
		upd.ClearExternalSubscriptionID,
		upd.ExternalSubscriptionID,
		upd.SubscriptionEndDate,
		upd.LastPaymentDate,
	}
}

func (r *tenantRepo) ApplyAuthoritative(ctx context.Context, tx repository.Tx, t model.TenantType, profileID string, upd repository.SubscriptionUpdate) error {
	tbl, err := tableFor(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s,
  last_authoritative_at = NOW()
WHERE profile_id = $1;`, tbl, updateSet(tbl))

	tag, err := execSQL(ctx, r.pool, tx, q, updateArgs(profileID, upd)...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

func (r *tenantRepo) ApplyAuthoritativeByCustomer(ctx context.Context, tx repository.Tx, t model.TenantType, customerID string, upd repository.SubscriptionUpdate) (bool, error) {
	tbl, err := tableFor(t)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s,
  last_authoritative_at = NOW()
WHERE external_customer_id = $1;`, tbl, updateSet(tbl))

	tag, err := execSQL(ctx, r.pool, tx, q, updateArgs(customerID, upd)...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() >= 1, nil
}

// ApplyOptimistic leaves last_authoritative_at untouched and is fenced on it:
// the speculative write lands only while no authoritative write newer than
// notAfter exists on the row.
func (r *tenantRepo) ApplyOptimistic(ctx context.Context, tx repository.Tx, t model.TenantType, profileID string, upd repository.SubscriptionUpdate, notAfter time.Time) (bool, error) {
	tbl, err := tableFor(t)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s
WHERE profile_id = $1
  AND (last_authoritative_at IS NULL OR last_authoritative_at < $9::timestamptz);`, tbl, updateSet(tbl))

	args := append(updateArgs(profileID, upd), notAfter)
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() >= 1, nil
}
