package model

import (
	"encoding/json"
	"time"

	"marketplace-billing/internal/domain"
)

type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventInvoicePaid         EventType = "invoice.payment_succeeded"
	EventInvoiceFailed       EventType = "invoice.payment_failed"
)

// PaymentType discriminates what a completed checkout session paid for.
type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeExamFee      PaymentType = "exam_fee"
)

// WebhookEvent is the inbound gateway notification. It is never persisted;
// the only correlation keys back to a tenant are the external customer and
// subscription ids carried in the payload.
type WebhookEvent struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	if ev.Type == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ev, nil
}

// CheckoutMetadata was set by us at checkout-session creation time, so the
// completed event can be dispatched without re-probing tenant tables.
type CheckoutMetadata struct {
	UserID        string      `json:"userId"`
	UserType      string      `json:"userType"`
	Plan          string      `json:"plan"`
	PaymentType   PaymentType `json:"paymentType"`
	ApplicationID string      `json:"applicationId"`
}

type CheckoutSessionObject struct {
	ID           string           `json:"id"`
	Customer     string           `json:"customer"`
	Subscription string           `json:"subscription"`
	AmountTotal  int64            `json:"amount_total"`
	Currency     string           `json:"currency"`
	Metadata     CheckoutMetadata `json:"metadata"`
}

type SubscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"` // unix seconds
}

// PeriodEnd converts the gateway's unix timestamp, or nil when absent.
func (s *SubscriptionObject) PeriodEnd() *time.Time {
	if s.CurrentPeriodEnd <= 0 {
		return nil
	}
	t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
	return &t
}

type InvoiceObject struct {
	ID             string `json:"id"`
	Customer       string `json:"customer"`
	Subscription   string `json:"subscription"`
	AmountPaid     int64  `json:"amount_paid"`
	AmountDue      int64  `json:"amount_due"`
	Currency       string `json:"currency"`
	FailureMessage string `json:"failure_message"`
}

func (ev *WebhookEvent) CheckoutSession() (*CheckoutSessionObject, error) {
	var obj CheckoutSessionObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return &obj, nil
}

func (ev *WebhookEvent) Subscription() (*SubscriptionObject, error) {
	var obj SubscriptionObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return &obj, nil
}

func (ev *WebhookEvent) Invoice() (*InvoiceObject, error) {
	var obj InvoiceObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return &obj, nil
}
