package usecase

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/adapter"
	"marketplace-billing/internal/domain/ports/repository"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
)

// Compile-time check
var _ ReturnUseCase = (*returnUC)(nil)

type ReturnOutcome string

const (
	// OutcomeVerified: session established, tenant resolved, optimistic state
	// written. The caller redirects to the landing route after the countdown.
	OutcomeVerified ReturnOutcome = "verified"
	// OutcomeReauth: the payment presumably succeeded but the session is lost.
	// The caller shows the re-authentication prompt and redirects to LoginURL.
	OutcomeReauth ReturnOutcome = "reauth"
)

type ReturnParams struct {
	AccessToken  string
	RefreshToken string
	State        string // checkout intent key from the return URL
	SessionID    string // gateway checkout session id, optional
	TypeHint     string // user_type query hint; fallback only
	SuccessFlag  bool   // success=true or payment_success=true
}

type ReturnResult struct {
	Outcome      ReturnOutcome
	TenantType   model.TenantType
	LandingRoute string
	LoginURL     string
	// Refreshed reissues the cookie pair when the session came back through a
	// refresh or an intent restore.
	Refreshed *adapter.TokenPair
}

// ReturnUseCase runs when the gateway redirects the user back to us. The
// redirect metadata cannot be trusted for anything but hints; the webhook
// remains the source of truth and the write here is strictly best-effort.
type ReturnUseCase interface {
	Process(ctx context.Context, p ReturnParams) (*ReturnResult, error)
}

type returnUC struct {
	cfg      CheckoutConfig
	sessions adapter.SessionProvider
	resolver TenantResolver
	tenants  repository.TenantRepository
	payments repository.PaymentRepository
	intents  repository.IntentCache
	gateway  adapter.CheckoutGateway
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReturnUseCase(
	cfg CheckoutConfig,
	sessions adapter.SessionProvider,
	resolver TenantResolver,
	tenants repository.TenantRepository,
	payments repository.PaymentRepository,
	intents repository.IntentCache,
	gateway adapter.CheckoutGateway,
	logger *zerolog.Logger,
) *returnUC {
	return &returnUC{
		cfg:      cfg,
		sessions: sessions,
		resolver: resolver,
		tenants:  tenants,
		payments: payments,
		intents:  intents,
		gateway:  gateway,
		log:      logger,
		now:      time.Now,
	}
}

func (u *returnUC) Process(ctx context.Context, p ReturnParams) (*ReturnResult, error) {
	defer logging.TraceDuration(u.log, "ReturnUC.Process")()

	sess, refreshed, intent := u.establishSession(ctx, p)
	if sess == nil {
		if p.SuccessFlag {
			// Degraded success: the gateway says the payment went through but
			// we cannot act as the user. Drop into the re-auth prompt; the
			// webhook will reconcile the ledger either way.
			metrics.IncReturn("degraded")
			t := u.hintedType(p.TypeHint)
			return &ReturnResult{
				Outcome:      OutcomeReauth,
				TenantType:   t,
				LandingRoute: t.LandingRoute(),
				LoginURL:     u.loginURL(t, true),
			}, nil
		}
		metrics.IncReturn("lost")
		t := u.hintedType(p.TypeHint)
		return &ReturnResult{
			Outcome:      OutcomeReauth,
			TenantType:   t,
			LandingRoute: t.LandingRoute(),
			LoginURL:     u.loginURL(t, false),
		}, nil
	}

	// Live identity id beats the URL hint.
	ctx = logging.WithProfileID(ctx, sess.ProfileID)
	rec, err := u.resolver.ResolveByProfileID(ctx, sess.ProfileID, nil)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			// Resolution misses are a data fault, not a user-facing failure;
			// land on the worker route but write nothing.
			u.log.Warn().Str("profile_id", sess.ProfileID).Msg("tenant resolution failed on payment return")
			metrics.IncReturn("tenant_not_found")
			return &ReturnResult{
				Outcome:      OutcomeVerified,
				TenantType:   model.TenantWorker,
				LandingRoute: model.TenantWorker.LandingRoute(),
				Refreshed:    refreshed,
			}, nil
		}
		return nil, err
	}

	ctx = logging.WithTenantType(ctx, string(rec.Type))
	if intent != nil {
		u.applyOptimistic(ctx, rec, intent)
	} else {
		metrics.IncOptimisticWrite("skipped")
	}

	if rec.Type == model.TenantRegularUser {
		u.recordClientPayment(ctx, rec, p.SessionID)
	}

	metrics.IncReturn("verified")
	return &ReturnResult{
		Outcome:      OutcomeVerified,
		TenantType:   rec.Type,
		LandingRoute: rec.Type.LandingRoute(),
		Refreshed:    refreshed,
	}, nil
}

// establishSession tries, in order: the live access token, the refresh token,
// and the preserved checkout intent. The intent is returned even when the
// session came from a live token so the optimistic write can be fenced by the
// intent's creation time.
func (u *returnUC) establishSession(ctx context.Context, p ReturnParams) (*adapter.Session, *adapter.TokenPair, *model.CheckoutIntent) {
	var intent *model.CheckoutIntent
	if p.State != "" {
		restored, err := u.intents.Restore(ctx, p.State)
		if err != nil {
			u.log.Warn().Err(err).Msg("intent restore failed")
		} else {
			intent = restored
		}
	}

	if p.AccessToken != "" {
		if sess, err := u.sessions.Verify(ctx, p.AccessToken); err == nil {
			u.consumeIntent(ctx, p.State, intent)
			return sess, nil, intent
		}
	}
	if p.RefreshToken != "" {
		if pair, sess, err := u.sessions.Refresh(ctx, p.RefreshToken); err == nil {
			u.consumeIntent(ctx, p.State, intent)
			return sess, pair, intent
		}
	}

	if intent == nil {
		return nil, nil, nil
	}
	if sess, err := u.sessions.Verify(ctx, intent.AccessToken); err == nil {
		u.consumeIntent(ctx, p.State, intent)
		return sess, &adapter.TokenPair{AccessToken: intent.AccessToken, RefreshToken: intent.RefreshToken}, intent
	}
	if pair, sess, err := u.sessions.Refresh(ctx, intent.RefreshToken); err == nil {
		u.consumeIntent(ctx, p.State, intent)
		return sess, pair, intent
	}
	return nil, nil, intent
}

func (u *returnUC) consumeIntent(ctx context.Context, state string, intent *model.CheckoutIntent) {
	if intent == nil || state == "" {
		return
	}
	if err := u.intents.Clear(ctx, state); err != nil {
		u.log.Warn().Err(err).Msg("intent clear failed")
	}
}

// applyOptimistic writes premium/active speculatively. The write is fenced on
// the intent's creation time against last_authoritative_at so it can never
// clobber a webhook transition that landed after the checkout started,
// whatever the arrival order. Without an intent the checkout start time is
// unknown and no fence exists, so nothing is written; the webhook owns the
// state then.
func (u *returnUC) applyOptimistic(ctx context.Context, rec *model.TenantRecord, intent *model.CheckoutIntent) {
	notAfter := intent.CreatedAt
	tier := model.TierPremium
	status := model.SubscriptionStatusActive
	applied, err := u.tenants.ApplyOptimistic(ctx, repository.NoTX, rec.Type, rec.ProfileID, repository.SubscriptionUpdate{
		Tier:   &tier,
		Status: &status,
	}, notAfter)
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("optimistic subscription write failed")
		return
	}
	if applied {
		metrics.IncOptimisticWrite("applied")
	} else {
		metrics.IncOptimisticWrite("superseded")
	}
}

// recordClientPayment is the regular_user extra: a client-path ledger row plus
// a best-effort correlation of the gateway ids. The checkout session id is the
// dedupe key; reloading the return page must not grow the ledger, so without
// one nothing is recorded and the invoice webhook carries the charge instead.
func (u *returnUC) recordClientPayment(ctx context.Context, rec *model.TenantRecord, sessionID string) {
	if sessionID == "" {
		return
	}
	log := logging.With(ctx, u.log)
	p, err := u.payments.FindByCheckoutSession(ctx, repository.NoTX, sessionID)
	switch {
	case err == nil && p.Status == model.PaymentStatusPending:
		if _, err := u.payments.CompleteByCheckoutSession(ctx, repository.NoTX, sessionID, nil, u.now()); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("client payment finalize failed")
			return
		}
	case err == nil:
		// Already settled by an earlier load or by the webhook.
		return
	case errors.Is(err, domain.ErrNotFound):
		entry := u.cfg.Prices[model.TenantRegularUser]
		currency := entry.Currency
		if currency == "" {
			currency = "usd"
		}
		p, err = model.NewPaymentRecord(rec.ProfileID, rec.Type, entry.Amount, currency, model.PaymentStatusCompleted)
		if err != nil {
			log.Error().Err(err).Msg("client payment record build failed")
			return
		}
		p.CheckoutSessionID = &sessionID
		if _, err := u.payments.Insert(ctx, repository.NoTX, p); err != nil {
			log.Error().Err(err).Msg("client payment record insert failed")
			return
		}
	default:
		log.Warn().Err(err).Str("session_id", sessionID).Msg("client payment lookup failed")
		return
	}
	st, err := u.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		// Correlation is best effort; the webhook carries the same ids.
		log.Warn().Err(err).Str("session_id", sessionID).Msg("correlation lookup failed")
		return
	}
	var custID, subID *string
	if st.CustomerID != "" {
		custID = &st.CustomerID
	}
	if st.SubscriptionID != "" {
		subID = &st.SubscriptionID
	}
	if custID != nil {
		if err := u.payments.AttachCorrelation(ctx, repository.NoTX, p.ID, custID); err != nil {
			log.Warn().Err(err).Msg("payment correlation attach failed")
		}
	}
	// Store the gateway ids on the tenant row too, so later subscription
	// events can correlate by customer id. Fenced like any client-path write.
	if custID != nil || subID != nil {
		if _, err := u.tenants.ApplyOptimistic(ctx, repository.NoTX, rec.Type, rec.ProfileID, repository.SubscriptionUpdate{
			ExternalCustomerID:     custID,
			ExternalSubscriptionID: subID,
		}, u.now()); err != nil {
			log.Warn().Err(err).Msg("tenant correlation write failed")
		}
	}
}

func (u *returnUC) hintedType(hint string) model.TenantType {
	if t, err := model.ParseTenantType(hint); err == nil {
		return t
	}
	return model.TenantWorker
}

func (u *returnUC) loginURL(t model.TenantType, paymentSuccess bool) string {
	path := u.cfg.LoginPath
	if path == "" {
		path = "/login"
	}
	q := url.Values{}
	if paymentSuccess {
		q.Set("payment_success", "true")
	}
	q.Set("user_type", string(t))
	return path + "?" + q.Encode()
}
