package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"marketplace-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // checkout started; awaiting webhook confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // gateway confirmed the charge
	PaymentStatusFailed    PaymentStatus = "failed"    // gateway reported a failed attempt
)

// PaymentRecord is one append-only ledger row per payment attempt. Rows are
// never updated after insertion except to complete a pending checkout row or
// to backfill the checkout session correlation.
type PaymentRecord struct {
	ID                 string // ULID, sortable by creation time
	ProfileID          string
	TenantType         TenantType
	Amount             int64 // minor units
	Currency           string
	Status             PaymentStatus
	PaymentType        PaymentType // what the checkout paid for; settles differently
	ApplicationID      *string     // exam-fee checkouts carry the application to settle
	ExternalInvoiceID  *string     // unique when present; dedupes duplicate webhook delivery
	ExternalCustomerID *string
	CheckoutSessionID  *string
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewPaymentRecord(profileID string, t TenantType, amount int64, currency string, status PaymentStatus) (*PaymentRecord, error) {
	if profileID == "" || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentRecord{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ProfileID:   profileID,
		TenantType:  t,
		Amount:      amount,
		Currency:    currency,
		Status:      status,
		PaymentType: PaymentTypeSubscription,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
