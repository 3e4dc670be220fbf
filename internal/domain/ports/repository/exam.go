package repository

import (
	"context"

	"marketplace-billing/internal/domain/model"
)

type ExamApplicationRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.ExamApplication, error)
	// MarkPaymentCompleted is idempotent; returns false when no row matched.
	MarkPaymentCompleted(ctx context.Context, tx Tx, id string) (bool, error)
}
