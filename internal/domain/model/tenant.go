package model

import (
	"time"

	"marketplace-billing/internal/domain"
)

// TenantType discriminates the five role-specific tenant tables.
type TenantType string

const (
	TenantWorker          TenantType = "worker"
	TenantEmployer        TenantType = "employer"
	TenantAccountant      TenantType = "accountant"
	TenantCleaningCompany TenantType = "cleaning_company"
	TenantRegularUser     TenantType = "regular_user"
)

// ProfileProbeOrder is the fixed priority in which tenant tables are probed
// when resolving an identity id. First match wins.
var ProfileProbeOrder = []TenantType{
	TenantCleaningCompany,
	TenantWorker,
	TenantEmployer,
	TenantRegularUser,
	TenantAccountant,
}

// CustomerProbeOrder is the fixed priority used when the only correlation key
// is the gateway customer id (invoice events). First match wins.
var CustomerProbeOrder = []TenantType{
	TenantWorker,
	TenantRegularUser,
	TenantEmployer,
	TenantCleaningCompany,
	TenantAccountant,
}

// SubscriptionProbeOrder covers subscription lifecycle events, which the
// gateway only emits for the two self-serve subscriber shapes.
var SubscriptionProbeOrder = []TenantType{
	TenantWorker,
	TenantRegularUser,
}

func ParseTenantType(s string) (TenantType, error) {
	switch TenantType(s) {
	case TenantWorker, TenantEmployer, TenantAccountant, TenantCleaningCompany, TenantRegularUser:
		return TenantType(s), nil
	}
	return "", domain.ErrUnknownTenantType
}

// LandingRoute maps a tenant type to its post-checkout landing route.
func (t TenantType) LandingRoute() string {
	switch t {
	case TenantCleaningCompany:
		return "/cleaning-company"
	case TenantEmployer:
		return "/employer"
	case TenantRegularUser:
		return "/regular-user?tab=subscription"
	default:
		return "/worker"
	}
}

type SubscriptionTier string

const (
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// StatusFromGateway maps a gateway subscription status onto ours.
// Anything the gateway reports that is neither active nor canceled
// (trialing, past_due, incomplete, ...) lands on inactive.
func StatusFromGateway(s string) SubscriptionStatus {
	switch s {
	case "active":
		return SubscriptionStatusActive
	case "canceled":
		return SubscriptionStatusCancelled
	default:
		return SubscriptionStatusInactive
	}
}

// TenantRecord is the subscription ledger row for one tenant, regardless of
// which of the five tables it lives in. Type carries the discriminant.
type TenantRecord struct {
	ProfileID              string
	Type                   TenantType
	Email                  string
	Tier                   SubscriptionTier
	Status                 SubscriptionStatus
	ExternalCustomerID     *string
	ExternalSubscriptionID *string
	SubscriptionEndDate    *time.Time
	LastPaymentDate        *time.Time
	// LastAuthoritativeAt is set only by webhook-driven writes. An optimistic
	// client write is applied only while its intent predates this timestamp.
	LastAuthoritativeAt *time.Time
	UpdatedAt           time.Time
}

func NewTenantRecord(profileID string, t TenantType, email string) (*TenantRecord, error) {
	if profileID == "" || email == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := ParseTenantType(string(t)); err != nil {
		return nil, err
	}
	status := SubscriptionStatusActive
	if t == TenantEmployer {
		// Employers start without a free tier; everything else gets basic for free.
		status = SubscriptionStatusInactive
	}
	return &TenantRecord{
		ProfileID: profileID,
		Type:      t,
		Email:     email,
		Tier:      TierBasic,
		Status:    status,
		UpdatedAt: time.Now(),
	}, nil
}

// IsPremium mirrors the regular_user duplicate flag; kept derived in-code so
// the repository is the only place the duplicated column is written.
func (r *TenantRecord) IsPremium() bool {
	return r.Tier == TierPremium && r.Status == SubscriptionStatusActive
}
