package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase applies gateway events to the subscription ledger. Events are
// at-least-once and unordered; every transition is a deterministic function of
// the event alone, so re-delivery and races between deliveries for the same
// customer are safe. Ledger inserts dedupe on the external invoice id.
//
// Any returned error makes the endpoint answer non-2xx, which makes the
// gateway retry the event later. That retry is also how the ordering gap is
// closed: a subscription event arriving before the checkout that stores the
// customer id fails tenant resolution, gets retried, and lands once the
// checkout.session.completed write is in.
type WebhookUseCase interface {
	Process(ctx context.Context, ev *model.WebhookEvent) error
}

type webhookUC struct {
	tenants  repository.TenantRepository
	payments repository.PaymentRepository
	exams    repository.ExamApplicationRepository
	resolver TenantResolver
	txm      repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(
	tenants repository.TenantRepository,
	payments repository.PaymentRepository,
	exams repository.ExamApplicationRepository,
	resolver TenantResolver,
	txm repository.TransactionManager,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		tenants:  tenants,
		payments: payments,
		exams:    exams,
		resolver: resolver,
		txm:      txm,
		log:      logger,
		now:      time.Now,
	}
}

func (u *webhookUC) Process(ctx context.Context, ev *model.WebhookEvent) error {
	defer logging.TraceDuration(u.log, "WebhookUC.Process")()

	var err error
	switch ev.Type {
	case model.EventCheckoutCompleted:
		err = u.onCheckoutCompleted(ctx, ev)
	case model.EventSubscriptionCreated, model.EventSubscriptionUpdated:
		err = u.onSubscriptionChanged(ctx, ev)
	case model.EventSubscriptionDeleted:
		err = u.onSubscriptionDeleted(ctx, ev)
	case model.EventInvoicePaid:
		err = u.onInvoicePaid(ctx, ev)
	case model.EventInvoiceFailed:
		err = u.onInvoiceFailed(ctx, ev)
	default:
		// Gateways emit far more event types than we subscribe to; unknown
		// types are acknowledged so they are not redelivered forever.
		logging.With(ctx, u.log).Debug().Str("event_type", string(ev.Type)).Msg("ignoring unhandled webhook event")
		metrics.IncWebhook(string(ev.Type), "ignored")
		return nil
	}

	if err != nil {
		metrics.IncWebhook(string(ev.Type), "error")
		return err
	}
	metrics.IncWebhook(string(ev.Type), "applied")
	return nil
}

// onCheckoutCompleted is the only transition that can dispatch on metadata
// instead of probing tables: the metadata was set by us at checkout time.
func (u *webhookUC) onCheckoutCompleted(ctx context.Context, ev *model.WebhookEvent) error {
	cs, err := ev.CheckoutSession()
	if err != nil {
		return err
	}

	if cs.Metadata.PaymentType == model.PaymentTypeExamFee {
		return u.onExamFeePaid(ctx, cs)
	}

	t, err := model.ParseTenantType(cs.Metadata.UserType)
	if err != nil {
		return fmt.Errorf("checkout metadata carries tenant type %q: %w", cs.Metadata.UserType, err)
	}
	if cs.Metadata.UserID == "" {
		return fmt.Errorf("checkout metadata missing user id: %w", domain.ErrInvalidArgument)
	}

	tier := model.TierPremium
	if cs.Metadata.Plan == string(model.TierBasic) {
		tier = model.TierBasic
	}
	status := model.SubscriptionStatusActive
	now := u.now()
	upd := repository.SubscriptionUpdate{
		Tier:            &tier,
		Status:          &status,
		LastPaymentDate: &now,
	}
	if cs.Customer != "" {
		upd.ExternalCustomerID = &cs.Customer
	}
	if cs.Subscription != "" {
		upd.ExternalSubscriptionID = &cs.Subscription
	}
	// Tenant upgrade and ledger settle land together or not at all; a half
	// applied completion would leave a pending row for a tenant already
	// premium, which the reconciler would then re-finalize.
	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.tenants.ApplyAuthoritative(ctx, tx, t, cs.Metadata.UserID, upd); err != nil {
			return err
		}
		// A return flow that already wrote a completed row leaves nothing
		// pending; the finalize is a no-op then.
		if cs.ID != "" {
			if _, err := u.payments.CompleteByCheckoutSession(ctx, tx, cs.ID, nil, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *webhookUC) onExamFeePaid(ctx context.Context, cs *model.CheckoutSessionObject) error {
	if cs.Metadata.ApplicationID == "" {
		return fmt.Errorf("exam fee checkout missing application id: %w", domain.ErrInvalidArgument)
	}
	matched, err := u.exams.MarkPaymentCompleted(ctx, repository.NoTX, cs.Metadata.ApplicationID)
	if err != nil {
		return err
	}
	if !matched {
		return fmt.Errorf("exam application %s: %w", cs.Metadata.ApplicationID, domain.ErrNotFound)
	}
	if cs.ID != "" {
		if _, err := u.payments.CompleteByCheckoutSession(ctx, repository.NoTX, cs.ID, nil, u.now()); err != nil {
			u.log.Warn().Err(err).Str("session_id", cs.ID).Msg("exam payment finalize failed")
		}
	}
	return nil
}

func (u *webhookUC) onSubscriptionChanged(ctx context.Context, ev *model.WebhookEvent) error {
	sub, err := ev.Subscription()
	if err != nil {
		return err
	}
	if sub.Customer == "" {
		return fmt.Errorf("subscription event missing customer: %w", domain.ErrInvalidArgument)
	}

	status := model.StatusFromGateway(sub.Status)
	upd := repository.SubscriptionUpdate{
		Status:              &status,
		SubscriptionEndDate: sub.PeriodEnd(),
	}
	if sub.ID != "" {
		upd.ExternalSubscriptionID = &sub.ID
	}

	matched := false
	for _, t := range model.SubscriptionProbeOrder {
		ok, err := u.tenants.ApplyAuthoritativeByCustomer(ctx, repository.NoTX, t, sub.Customer, upd)
		if err != nil {
			return err
		}
		matched = matched || ok
	}
	if !matched {
		// Likely delivered before the checkout stored the customer id; the
		// non-2xx response makes the gateway retry after that write lands.
		return fmt.Errorf("customer %s: %w", sub.Customer, domain.ErrTenantNotFound)
	}
	return nil
}

func (u *webhookUC) onSubscriptionDeleted(ctx context.Context, ev *model.WebhookEvent) error {
	sub, err := ev.Subscription()
	if err != nil {
		return err
	}
	if sub.Customer == "" {
		return fmt.Errorf("subscription event missing customer: %w", domain.ErrInvalidArgument)
	}

	tier := model.TierBasic
	status := model.SubscriptionStatusCancelled
	upd := repository.SubscriptionUpdate{
		Tier:                        &tier,
		Status:                      &status,
		ClearExternalSubscriptionID: true,
	}

	matched := false
	for _, t := range model.SubscriptionProbeOrder {
		ok, err := u.tenants.ApplyAuthoritativeByCustomer(ctx, repository.NoTX, t, sub.Customer, upd)
		if err != nil {
			return err
		}
		matched = matched || ok
	}
	if !matched {
		return fmt.Errorf("customer %s: %w", sub.Customer, domain.ErrTenantNotFound)
	}
	return nil
}

func (u *webhookUC) onInvoicePaid(ctx context.Context, ev *model.WebhookEvent) error {
	inv, err := ev.Invoice()
	if err != nil {
		return err
	}
	rec, err := u.resolver.ResolveByCustomerID(ctx, inv.Customer, model.CustomerProbeOrder)
	if err != nil {
		return err
	}

	currency := inv.Currency
	if currency == "" {
		currency = "usd"
	}
	p, err := model.NewPaymentRecord(rec.ProfileID, rec.Type, inv.AmountPaid, currency, model.PaymentStatusCompleted)
	if err != nil {
		return err
	}
	if inv.ID != "" {
		p.ExternalInvoiceID = &inv.ID
	}
	if inv.Customer != "" {
		p.ExternalCustomerID = &inv.Customer
	}
	inserted, err := u.payments.Insert(ctx, repository.NoTX, p)
	if err != nil {
		return err
	}
	if !inserted {
		// Duplicate delivery for an invoice id we already booked.
		u.log.Debug().Str("invoice_id", inv.ID).Msg("duplicate invoice payment delivery deduped")
		return nil
	}

	now := u.now()
	_, err = u.tenants.ApplyAuthoritativeByCustomer(ctx, repository.NoTX, rec.Type, inv.Customer, repository.SubscriptionUpdate{
		LastPaymentDate: &now,
	})
	return err
}

func (u *webhookUC) onInvoiceFailed(ctx context.Context, ev *model.WebhookEvent) error {
	inv, err := ev.Invoice()
	if err != nil {
		return err
	}
	rec, err := u.resolver.ResolveByCustomerID(ctx, inv.Customer, model.SubscriptionProbeOrder)
	if err != nil {
		return err
	}

	currency := inv.Currency
	if currency == "" {
		currency = "usd"
	}
	p, err := model.NewPaymentRecord(rec.ProfileID, rec.Type, inv.AmountDue, currency, model.PaymentStatusFailed)
	if err != nil {
		return err
	}
	reason := inv.FailureMessage
	if reason == "" {
		reason = "payment failed"
	}
	p.FailureReason = &reason
	if inv.ID != "" {
		p.ExternalInvoiceID = &inv.ID
	}
	if inv.Customer != "" {
		p.ExternalCustomerID = &inv.Customer
	}
	_, err = u.payments.Insert(ctx, repository.NoTX, p)
	return err
}
