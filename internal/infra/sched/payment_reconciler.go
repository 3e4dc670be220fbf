package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain/ports/repository"
	"marketplace-billing/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending checkouts and asks the
// gateway for their real state. This covers the cases where neither the return
// redirect nor the webhook landed: the user closed the tab, a delivery got
// dropped, or the process crashed mid-finalize.
type PaymentReconciler struct {
	uc         usecase.CheckoutUseCase
	payments   repository.PaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending checkout must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.CheckoutUseCase, payments repository.PaymentRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, payments: payments, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("payment-reconciler: list pending failed")
		return
	}
	for _, p := range pending {
		if p.CheckoutSessionID == nil {
			// Nothing to query the gateway with; the webhook is the only path.
			continue
		}
		if err := w.uc.FinalizeStale(ctx, p); err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("session_id", *p.CheckoutSessionID).Msg("payment-reconciler: finalize failed")
			continue
		}
		w.log.Info().Str("payment_id", p.ID).Msg("payment-reconciler: settled")
	}
}
