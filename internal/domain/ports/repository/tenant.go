package repository

import (
	"context"
	"time"

	"marketplace-billing/internal/domain/model"
)

// SubscriptionUpdate is a partial write against one tenant record. Nil fields
// are left untouched; ClearExternalSubscriptionID removes the stored id
// (subscription deletion).
type SubscriptionUpdate struct {
	Tier                        *model.SubscriptionTier
	Status                      *model.SubscriptionStatus
	ExternalCustomerID          *string
	ExternalSubscriptionID      *string
	ClearExternalSubscriptionID bool
	SubscriptionEndDate         *time.Time
	LastPaymentDate             *time.Time
}

// TenantRepository is the port over the five tenant tables. Every method takes
// the tenant-type discriminant; the implementation maps it to a concrete table.
type TenantRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.TenantRecord) error
	FindByProfileID(ctx context.Context, tx Tx, t model.TenantType, profileID string) (*model.TenantRecord, error)
	FindByCustomerID(ctx context.Context, tx Tx, t model.TenantType, customerID string) (*model.TenantRecord, error)

	// ApplyAuthoritative applies a webhook-driven transition keyed by profile id
	// and stamps last_authoritative_at.
	ApplyAuthoritative(ctx context.Context, tx Tx, t model.TenantType, profileID string, upd SubscriptionUpdate) error

	// ApplyAuthoritativeByCustomer is the same transition keyed by the gateway
	// customer id. Returns false when no row matched.
	ApplyAuthoritativeByCustomer(ctx context.Context, tx Tx, t model.TenantType, customerID string, upd SubscriptionUpdate) (bool, error)

	// ApplyOptimistic applies a speculative client-path write. It is a no-op
	// (returns false) when an authoritative write newer than notAfter already
	// landed on the row.
	ApplyOptimistic(ctx context.Context, tx Tx, t model.TenantType, profileID string, upd SubscriptionUpdate, notAfter time.Time) (bool, error)
}
