package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, profile_id, tenant_type, amount, currency, status, payment_type, application_id, external_invoice_id, external_customer_id, checkout_session_id, failure_reason, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	p := &model.PaymentRecord{}
	var tenantType, status, paymentType string
	if err := row.Scan(
		&p.ID, &p.ProfileID, &tenantType, &p.Amount, &p.Currency, &status,
		&paymentType, &p.ApplicationID,
		&p.ExternalInvoiceID, &p.ExternalCustomerID, &p.CheckoutSessionID,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.TenantType = model.TenantType(tenantType)
	p.Status = model.PaymentStatus(status)
	p.PaymentType = model.PaymentType(paymentType)
	return p, nil
}

// Insert appends a ledger row. The partial unique index on external_invoice_id
// absorbs duplicate webhook delivery: the conflicting insert affects zero rows
// and Insert reports false.
func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) (bool, error) {
	const q = `
INSERT INTO payment_records (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (external_invoice_id) WHERE external_invoice_id IS NOT NULL DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ProfileID, string(p.TenantType), p.Amount, p.Currency, string(p.Status),
		string(p.PaymentType), p.ApplicationID,
		p.ExternalInvoiceID, p.ExternalCustomerID, p.CheckoutSessionID,
		p.FailureReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payment_records WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByCheckoutSession(ctx context.Context, tx repository.Tx, sessionID string) (*model.PaymentRecord, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payment_records WHERE checkout_session_id=$1 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// CompleteByCheckoutSession finalizes only a still-pending row, so re-delivery
// of the completing event is a no-op.
func (r *paymentRepo) CompleteByCheckoutSession(ctx context.Context, tx repository.Tx, sessionID string, invoiceID *string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE payment_records
   SET status = 'completed',
       external_invoice_id = COALESCE($2::text, external_invoice_id),
       updated_at = $3
 WHERE checkout_session_id = $1
   AND status = 'pending';`

	tag, err := execSQL(ctx, r.pool, tx, q, sessionID, invoiceID, paidAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, reason string) error {
	const q = `UPDATE payment_records SET status='failed', failure_reason=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) AttachCorrelation(ctx context.Context, tx repository.Tx, id string, customerID *string) error {
	const q = `UPDATE payment_records SET external_customer_id=COALESCE($2::text, external_customer_id), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payment_records WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
