package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ TenantResolver = (*tenantResolver)(nil)

// TenantResolver finds which of the five tenant tables owns a given key.
// Probe order is fixed; the first match wins. A customer id colliding across
// tables (should not occur) therefore resolves to the highest-priority table.
type TenantResolver interface {
	// ResolveByProfileID probes the given tables (or model.ProfileProbeOrder
	// when order is nil) for a record keyed by identity id.
	ResolveByProfileID(ctx context.Context, profileID string, order []model.TenantType) (*model.TenantRecord, error)

	// ResolveByCustomerID probes by gateway customer id.
	ResolveByCustomerID(ctx context.Context, customerID string, order []model.TenantType) (*model.TenantRecord, error)
}

type tenantResolver struct {
	tenants repository.TenantRepository
	log     *zerolog.Logger
}

func NewTenantResolver(tenants repository.TenantRepository, logger *zerolog.Logger) *tenantResolver {
	return &tenantResolver{tenants: tenants, log: logger}
}

func (r *tenantResolver) ResolveByProfileID(ctx context.Context, profileID string, order []model.TenantType) (*model.TenantRecord, error) {
	if profileID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if order == nil {
		order = model.ProfileProbeOrder
	}
	for _, t := range order {
		rec, err := r.tenants.FindByProfileID(ctx, repository.NoTX, t, profileID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return rec, nil
	}
	r.log.Debug().Str("profile_id", profileID).Msg("no tenant table matched identity")
	return nil, domain.ErrTenantNotFound
}

func (r *tenantResolver) ResolveByCustomerID(ctx context.Context, customerID string, order []model.TenantType) (*model.TenantRecord, error) {
	if customerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if order == nil {
		order = model.CustomerProbeOrder
	}
	for _, t := range order {
		rec, err := r.tenants.FindByCustomerID(ctx, repository.NoTX, t, customerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return rec, nil
	}
	return nil, domain.ErrTenantNotFound
}
