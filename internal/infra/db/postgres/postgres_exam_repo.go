package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
)

var _ repository.ExamApplicationRepository = (*examRepo)(nil)

type examRepo struct{ pool *pgxpool.Pool }

func NewExamApplicationRepo(pool *pgxpool.Pool) *examRepo {
	return &examRepo{pool: pool}
}

func (r *examRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExamApplication, error) {
	const q = `SELECT id, profile_id, exam_id, payment_completed, created_at, updated_at FROM exam_applications WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	app := &model.ExamApplication{}
	if err := row.Scan(&app.ID, &app.ProfileID, &app.ExamID, &app.PaymentCompleted, &app.CreatedAt, &app.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return app, nil
}

// MarkPaymentCompleted flips the flag; setting it twice is a no-op, which is
// what duplicate webhook delivery needs.
func (r *examRepo) MarkPaymentCompleted(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE exam_applications SET payment_completed=TRUE, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() >= 1, nil
}
