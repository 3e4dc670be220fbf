package model

import (
	"time"

	"marketplace-billing/internal/domain"
)

// IntentTTL is how long a checkout intent survives the redirect round-trip.
// Anything older is treated as absent.
const IntentTTL = 30 * time.Minute

// CheckoutIntent snapshots the caller's token pair immediately before control
// is handed to the external gateway. The redirect leaves our origin and may
// come back with the access token expired, so the snapshot is the only way to
// re-establish who started the checkout.
type CheckoutIntent struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TenantID     string     `json:"user_id"`
	TenantType   TenantType `json:"user_type"`
	CreatedAt    time.Time  `json:"timestamp"`
}

func NewCheckoutIntent(accessToken, refreshToken, tenantID string, t TenantType) (*CheckoutIntent, error) {
	if accessToken == "" || tenantID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &CheckoutIntent{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TenantID:     tenantID,
		TenantType:   t,
		CreatedAt:    time.Now(),
	}, nil
}

// Expired reports whether the intent is past its TTL at the given instant.
func (i *CheckoutIntent) Expired(now time.Time) bool {
	return now.Sub(i.CreatedAt) > IntentTTL
}
