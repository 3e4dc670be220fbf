package adapter

import (
	"context"

	"marketplace-billing/internal/domain/model"
)

// CreateCheckoutParams is what we hand the gateway when minting a checkout
// session. Metadata (tenant id/type, plan, payment type) rides along and comes
// back verbatim in the checkout.session.completed webhook.
type CreateCheckoutParams struct {
	PriceID       string
	TenantID      string
	TenantType    model.TenantType
	Email         string
	Plan          string // employer checkout carries "basic" | "premium"
	PaymentType   model.PaymentType
	ApplicationID string // exam-fee checkouts only
	SuccessURL    string
	CancelURL     string
}

// CheckoutSessionStatus is the gateway's view of a session, used by the
// reconciliation poller and the best-effort correlation lookup.
type CheckoutSessionStatus struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Status         string // open | complete | expired
	PaymentStatus  string // paid | unpaid
}

// CheckoutGateway is the outbound port to the external payment processor.
type CheckoutGateway interface {
	// CreateCheckoutSession mints a redirect-based checkout session and
	// returns the URL the browser must be sent to.
	CreateCheckoutSession(ctx context.Context, p CreateCheckoutParams) (redirectURL, sessionID string, err error)

	// GetCheckoutSession fetches the current state of a session by id.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error)
}
