package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/adapter"
	"marketplace-billing/internal/domain/ports/repository"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// PriceEntry binds a tenant type (or the exam fee) to a gateway price id.
// Amount/currency mirror the gateway's configuration so the pending ledger row
// can be written before the webhook arrives.
type PriceEntry struct {
	PriceID  string
	Amount   int64
	Currency string
}

// CheckoutConfig is the slice of service configuration the initiator needs.
type CheckoutConfig struct {
	Prices       map[model.TenantType]PriceEntry
	ExamFeePrice PriceEntry
	ReturnURL    string // absolute base of the payment return endpoint
	CancelURL    string
	LoginPath    string // re-auth prompt target on a lost session
}

type InitiateParams struct {
	AccessToken   string
	RefreshToken  string
	TenantID      string
	TenantType    model.TenantType
	Plan          string // employer checkouts carry "basic" | "premium"
	PaymentType   model.PaymentType
	ApplicationID string // exam-fee checkouts
}

type InitiateResult struct {
	RedirectURL string
	State       string
	SessionID   string
}

type CheckoutUseCase interface {
	// Initiate snapshots the caller's token pair, mints a gateway checkout
	// session and returns the redirect URL. The snapshot is written before the
	// gateway is contacted; if the gateway call fails no redirect happens and
	// the error is surfaced.
	Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error)

	// SelectBasicTier is the no-payment self-selection path.
	SelectBasicTier(ctx context.Context, accessToken string, t model.TenantType) error

	// FinalizeStale asks the gateway for the current state of a pending
	// checkout and settles the ledger row either way. Used by the poller.
	FinalizeStale(ctx context.Context, rec *model.PaymentRecord) error
}

type checkoutUC struct {
	cfg      CheckoutConfig
	sessions adapter.SessionProvider
	gateway  adapter.CheckoutGateway
	intents  repository.IntentCache
	payments repository.PaymentRepository
	tenants  repository.TenantRepository
	exams    repository.ExamApplicationRepository
	log      *zerolog.Logger
}

func NewCheckoutUseCase(
	cfg CheckoutConfig,
	sessions adapter.SessionProvider,
	gateway adapter.CheckoutGateway,
	intents repository.IntentCache,
	payments repository.PaymentRepository,
	tenants repository.TenantRepository,
	exams repository.ExamApplicationRepository,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		cfg:      cfg,
		sessions: sessions,
		gateway:  gateway,
		intents:  intents,
		payments: payments,
		tenants:  tenants,
		exams:    exams,
		log:      logger,
	}
}

func (u *checkoutUC) priceFor(p InitiateParams) (PriceEntry, error) {
	if p.PaymentType == model.PaymentTypeExamFee {
		if u.cfg.ExamFeePrice.PriceID == "" {
			return PriceEntry{}, fmt.Errorf("no exam fee price configured: %w", domain.ErrConfiguration)
		}
		return u.cfg.ExamFeePrice, nil
	}
	entry, ok := u.cfg.Prices[p.TenantType]
	if !ok || entry.PriceID == "" {
		return PriceEntry{}, fmt.Errorf("no price configured for tenant type %q: %w", p.TenantType, domain.ErrConfiguration)
	}
	return entry, nil
}

func (u *checkoutUC) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Initiate")()

	if _, err := model.ParseTenantType(string(p.TenantType)); err != nil {
		return nil, err
	}
	if p.PaymentType == "" {
		p.PaymentType = model.PaymentTypeSubscription
	}

	// Price lookup happens before anything else: a missing price id is a
	// configuration fault, not a runtime condition.
	price, err := u.priceFor(p)
	if err != nil {
		return nil, err
	}

	sess, err := u.sessions.Verify(ctx, p.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("checkout requires an active session: %w", domain.ErrAuthentication)
	}
	tenantID := sess.ProfileID
	if p.TenantID != "" && p.TenantID != tenantID {
		return nil, domain.ErrInvalidArgument
	}

	// Snapshot the token pair before we hand control to the gateway. The
	// redirect leaves our origin and may return with the access token expired.
	state := uuid.NewString()
	intent, err := model.NewCheckoutIntent(p.AccessToken, p.RefreshToken, tenantID, p.TenantType)
	if err != nil {
		return nil, err
	}
	if err := u.intents.Save(ctx, state, intent); err != nil {
		return nil, fmt.Errorf("save checkout intent: %w", err)
	}

	redirectURL, sessionID, err := u.gateway.CreateCheckoutSession(ctx, adapter.CreateCheckoutParams{
		PriceID:       price.PriceID,
		TenantID:      tenantID,
		TenantType:    p.TenantType,
		Email:         sess.Email,
		Plan:          p.Plan,
		PaymentType:   p.PaymentType,
		ApplicationID: p.ApplicationID,
		SuccessURL:    u.successURL(state, p.TenantType),
		CancelURL:     u.cfg.CancelURL,
	})
	if err != nil {
		metrics.IncCheckout("gateway_error")
		return nil, err
	}

	// Pending ledger row; the webhook (or the poller) finalizes it.
	rec, err := model.NewPaymentRecord(tenantID, p.TenantType, price.Amount, price.Currency, model.PaymentStatusPending)
	if err != nil {
		return nil, err
	}
	rec.CheckoutSessionID = &sessionID
	rec.PaymentType = p.PaymentType
	if p.PaymentType == model.PaymentTypeExamFee && p.ApplicationID != "" {
		rec.ApplicationID = &p.ApplicationID
	}
	if _, err := u.payments.Insert(ctx, repository.NoTX, rec); err != nil {
		// The gateway session exists either way; the poller cannot see this
		// checkout without the row, but the webhook path still works.
		u.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to record pending payment")
	}

	metrics.IncCheckout("initiated")
	return &InitiateResult{RedirectURL: redirectURL, State: state, SessionID: sessionID}, nil
}

func (u *checkoutUC) successURL(state string, t model.TenantType) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("user_type", string(t))
	q.Set("success", "true")
	// The gateway substitutes the placeholder with the real session id.
	return u.cfg.ReturnURL + "?" + q.Encode() + "&session_id={CHECKOUT_SESSION_ID}"
}

func (u *checkoutUC) SelectBasicTier(ctx context.Context, accessToken string, t model.TenantType) error {
	defer logging.TraceDuration(u.log, "CheckoutUC.SelectBasicTier")()

	sess, err := u.sessions.Verify(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("basic tier selection requires an active session: %w", domain.ErrAuthentication)
	}
	tier := model.TierBasic
	status := model.SubscriptionStatusActive
	return u.tenants.ApplyAuthoritative(ctx, repository.NoTX, t, sess.ProfileID, repository.SubscriptionUpdate{
		Tier:   &tier,
		Status: &status,
	})
}

func (u *checkoutUC) FinalizeStale(ctx context.Context, rec *model.PaymentRecord) error {
	if rec.CheckoutSessionID == nil {
		return domain.ErrInvalidArgument
	}
	st, err := u.gateway.GetCheckoutSession(ctx, *rec.CheckoutSessionID)
	if err != nil {
		return err
	}

	switch {
	case st.PaymentStatus == "paid":
		now := time.Now()
		if _, err := u.payments.CompleteByCheckoutSession(ctx, repository.NoTX, st.SessionID, nil, now); err != nil {
			return err
		}
		if rec.PaymentType == model.PaymentTypeExamFee {
			// Exam fees settle the application record, never the tenant tier.
			if rec.ApplicationID == nil {
				u.log.Warn().Str("payment_id", rec.ID).Msg("paid exam fee checkout carries no application id")
				metrics.IncReconciled("completed")
				return nil
			}
			matched, err := u.exams.MarkPaymentCompleted(ctx, repository.NoTX, *rec.ApplicationID)
			if err != nil {
				return err
			}
			if !matched {
				u.log.Warn().Str("application_id", *rec.ApplicationID).Msg("paid exam fee checkout matches no application")
			}
			metrics.IncReconciled("completed")
			return nil
		}
		tier := model.TierPremium
		status := model.SubscriptionStatusActive
		upd := repository.SubscriptionUpdate{
			Tier:            &tier,
			Status:          &status,
			LastPaymentDate: &now,
		}
		if st.CustomerID != "" {
			upd.ExternalCustomerID = &st.CustomerID
		}
		if st.SubscriptionID != "" {
			upd.ExternalSubscriptionID = &st.SubscriptionID
		}
		if err := u.tenants.ApplyAuthoritative(ctx, repository.NoTX, rec.TenantType, rec.ProfileID, upd); err != nil {
			return err
		}
		metrics.IncReconciled("completed")
	case st.Status == "expired":
		if err := u.payments.MarkFailed(ctx, repository.NoTX, rec.ID, "checkout session expired"); err != nil {
			return err
		}
		metrics.IncReconciled("expired")
	default:
		// Session still open; leave the row pending for the next sweep.
		metrics.IncReconciled("still_open")
	}
	return nil
}
