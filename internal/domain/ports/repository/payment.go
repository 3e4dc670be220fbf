package repository

import (
	"context"
	"time"

	"marketplace-billing/internal/domain/model"
)

// PaymentRepository is the port over the append-only payment ledger.
type PaymentRepository interface {
	// Insert appends a ledger row. When the record carries an external invoice
	// id that already exists, the insert is silently dropped and Insert returns
	// false; duplicate webhook delivery must not duplicate ledger rows.
	Insert(ctx context.Context, tx Tx, p *model.PaymentRecord) (bool, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	FindByCheckoutSession(ctx context.Context, tx Tx, sessionID string) (*model.PaymentRecord, error)

	// CompleteByCheckoutSession finalizes the pending row created at checkout
	// time; returns false when no pending row matches the session id.
	CompleteByCheckoutSession(ctx context.Context, tx Tx, sessionID string, invoiceID *string, paidAt time.Time) (bool, error)

	// MarkFailed finalizes a pending row as failed with a reason.
	MarkFailed(ctx context.Context, tx Tx, id string, reason string) error

	// AttachCorrelation backfills the gateway customer id on an existing row.
	// Best-effort; callers tolerate failure.
	AttachCorrelation(ctx context.Context, tx Tx, id string, customerID *string) error

	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)
}
