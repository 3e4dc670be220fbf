//go:build !integration

package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/adapter"
	"marketplace-billing/internal/usecase"
)

type returnDeps struct {
	sessions *MockSessionProvider
	tenants  *MockTenantRepo
	payments *MockPaymentRepo
	intents  *MockIntentCache
	gateway  *MockGateway
}

func newReturnDeps() *returnDeps {
	return &returnDeps{
		sessions: NewMockSessionProvider(),
		tenants:  NewMockTenantRepo(),
		payments: NewMockPaymentRepo(),
		intents:  NewMockIntentCache(),
		gateway:  &MockGateway{},
	}
}

func newReturnUC(deps *returnDeps) usecase.ReturnUseCase {
	resolver := usecase.NewTenantResolver(deps.tenants, newTestLogger())
	return usecase.NewReturnUseCase(
		testCheckoutConfig(),
		deps.sessions, resolver, deps.tenants, deps.payments, deps.intents, deps.gateway,
		newTestLogger(),
	)
}

func seedTenant(t *testing.T, deps *returnDeps, typ model.TenantType, profileID string) *model.TenantRecord {
	t.Helper()
	rec, err := model.NewTenantRecord(profileID, typ, profileID+"@example.test")
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if err := deps.tenants.Save(context.Background(), nil, rec); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return rec
}

func TestReturnUseCase_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("should verify via the live access token", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantWorker, "p-1")
		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-1"})
		intent, _ := model.NewCheckoutIntent("tok", "ref", "p-1", model.TenantWorker)
		_ = deps.intents.Save(ctx, "st-1", intent)
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{AccessToken: "tok", State: "st-1", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified {
			t.Fatalf("expected verified, got %s", res.Outcome)
		}
		if res.LandingRoute != "/worker" {
			t.Fatalf("unexpected landing route: %s", res.LandingRoute)
		}
		got := deps.tenants.Get(model.TenantWorker, "p-1")
		if got.Tier != model.TierPremium || got.Status != model.SubscriptionStatusActive {
			t.Fatalf("optimistic write missing: %+v", got)
		}
	})

	t.Run("should fall back to the refresh token and reissue the pair", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantCleaningCompany, "p-2")
		deps.sessions.AddRefresh("ref", &adapter.Session{ProfileID: "p-2"})
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{RefreshToken: "ref", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified || res.Refreshed == nil {
			t.Fatalf("expected verified with refreshed pair: %+v", res)
		}
		if res.LandingRoute != "/cleaning-company" {
			t.Fatalf("unexpected landing route: %s", res.LandingRoute)
		}
	})

	t.Run("should restore the session from the preserved intent and consume it", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantWorker, "p-3")
		deps.sessions.AddAccess("snapshot-tok", &adapter.Session{ProfileID: "p-3"})
		intent, _ := model.NewCheckoutIntent("snapshot-tok", "snapshot-ref", "p-3", model.TenantWorker)
		_ = deps.intents.Save(ctx, "state-1", intent)
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{State: "state-1", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified {
			t.Fatalf("expected verified, got %s", res.Outcome)
		}
		if res.Refreshed == nil || res.Refreshed.AccessToken != "snapshot-tok" {
			t.Fatal("restored pair must be handed back to the browser")
		}
		if deps.intents.Has("state-1") {
			t.Fatal("intent must be consumed on success")
		}
	})

	t.Run("should degrade to reauth when every session path fails", func(t *testing.T) {
		deps := newReturnDeps()
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{
			State:       "missing",
			TypeHint:    "employer",
			SuccessFlag: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeReauth {
			t.Fatalf("expected reauth, got %s", res.Outcome)
		}
		if !strings.HasPrefix(res.LoginURL, "/portal/login?") {
			t.Fatalf("login url must use the configured path: %s", res.LoginURL)
		}
		if !strings.Contains(res.LoginURL, "payment_success=true") {
			t.Fatalf("login url must flag the successful payment: %s", res.LoginURL)
		}
		if !strings.Contains(res.LoginURL, "user_type=employer") {
			t.Fatalf("login url must carry the type hint: %s", res.LoginURL)
		}
	})

	t.Run("should not flag payment success on a plain lost session", func(t *testing.T) {
		deps := newReturnDeps()
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{TypeHint: "worker"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeReauth {
			t.Fatalf("expected reauth, got %s", res.Outcome)
		}
		if strings.Contains(res.LoginURL, "payment_success") {
			t.Fatalf("no success flag expected: %s", res.LoginURL)
		}
	})

	t.Run("should land on the worker route without writing when no tenant matches", func(t *testing.T) {
		deps := newReturnDeps()
		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "ghost"})
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{AccessToken: "tok", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified || res.LandingRoute != "/worker" {
			t.Fatalf("unexpected result: %+v", res)
		}
		if deps.tenants.OptimisticWrites != 0 || deps.tenants.AuthoritativeWrites != 0 {
			t.Fatal("no write may happen when resolution fails")
		}
	})

	t.Run("should not clobber a newer authoritative write", func(t *testing.T) {
		deps := newReturnDeps()
		rec := seedTenant(t, deps, model.TenantWorker, "p-4")
		// A webhook downgraded this tenant after the checkout started.
		cancelled := model.SubscriptionStatusCancelled
		basic := model.TierBasic
		now := time.Now()
		rec.Tier = basic
		rec.Status = cancelled
		rec.LastAuthoritativeAt = &now
		_ = deps.tenants.Save(ctx, nil, rec)

		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-4"})
		intent, _ := model.NewCheckoutIntent("tok", "ref", "p-4", model.TenantWorker)
		intent.CreatedAt = now.Add(-time.Minute)
		_ = deps.intents.Save(ctx, "state-4", intent)
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{AccessToken: "tok", State: "state-4", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified {
			t.Fatalf("expected verified, got %s", res.Outcome)
		}
		got := deps.tenants.Get(model.TenantWorker, "p-4")
		if got.Status != model.SubscriptionStatusCancelled || got.Tier != model.TierBasic {
			t.Fatalf("authoritative state was clobbered: %+v", got)
		}
	})

	t.Run("should write nothing without an intent to fence on", func(t *testing.T) {
		deps := newReturnDeps()
		rec := seedTenant(t, deps, model.TenantWorker, "p-6")
		// A webhook cancelled this tenant just before the return page loaded.
		now := time.Now().Add(-time.Second)
		rec.Tier = model.TierBasic
		rec.Status = model.SubscriptionStatusCancelled
		rec.LastAuthoritativeAt = &now
		_ = deps.tenants.Save(ctx, nil, rec)

		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-6"})
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{AccessToken: "tok", SuccessFlag: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != usecase.OutcomeVerified {
			t.Fatalf("expected verified, got %s", res.Outcome)
		}
		got := deps.tenants.Get(model.TenantWorker, "p-6")
		if got.Status != model.SubscriptionStatusCancelled || got.Tier != model.TierBasic {
			t.Fatalf("authoritative cancellation clobbered without a fence: %+v", got)
		}
		if deps.tenants.OptimisticWrites != 0 {
			t.Fatal("no optimistic write may happen without an intent")
		}
	})

	t.Run("should record a client-path payment for regular users", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantRegularUser, "p-5")
		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-5"})
		deps.gateway.GetFunc = func(_ context.Context, id string) (*adapter.CheckoutSessionStatus, error) {
			return &adapter.CheckoutSessionStatus{
				SessionID: id, CustomerID: "cus_9", SubscriptionID: "sub_9",
				Status: "complete", PaymentStatus: "paid",
			}, nil
		}
		uc := newReturnUC(deps)

		res, err := uc.Process(ctx, usecase.ReturnParams{
			AccessToken: "tok",
			SessionID:   "cs_9",
			SuccessFlag: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.LandingRoute != "/regular-user?tab=subscription" {
			t.Fatalf("unexpected landing route: %s", res.LandingRoute)
		}
		if len(deps.payments.Records) != 1 {
			t.Fatalf("expected one ledger row, got %d", len(deps.payments.Records))
		}
		row := deps.payments.Records[0]
		if row.Status != model.PaymentStatusCompleted || row.Amount != 499 {
			t.Fatalf("unexpected ledger row: %+v", row)
		}
		if row.ExternalCustomerID == nil || *row.ExternalCustomerID != "cus_9" {
			t.Fatal("gateway customer id must be correlated onto the row")
		}
		got := deps.tenants.Get(model.TenantRegularUser, "p-5")
		if got.ExternalCustomerID == nil || *got.ExternalCustomerID != "cus_9" {
			t.Fatal("gateway customer id must be correlated onto the tenant")
		}
	})

	t.Run("should not duplicate the client-path row when the page reloads", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantRegularUser, "p-7")
		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-7"})
		uc := newReturnUC(deps)

		params := usecase.ReturnParams{AccessToken: "tok", SessionID: "cs_dup", SuccessFlag: true}
		for i := 0; i < 2; i++ {
			if _, err := uc.Process(ctx, params); err != nil {
				t.Fatalf("unexpected error on load %d: %v", i+1, err)
			}
		}
		if len(deps.payments.Records) != 1 {
			t.Fatalf("expected one client-path ledger row for session cs_dup, got %d", len(deps.payments.Records))
		}
	})

	t.Run("should settle a pending checkout row instead of inserting a second one", func(t *testing.T) {
		deps := newReturnDeps()
		seedTenant(t, deps, model.TenantRegularUser, "p-8")
		deps.sessions.AddAccess("tok", &adapter.Session{ProfileID: "p-8"})
		pending, _ := model.NewPaymentRecord("p-8", model.TenantRegularUser, 499, "usd", model.PaymentStatusPending)
		sessionID := "cs_pend"
		pending.CheckoutSessionID = &sessionID
		_, _ = deps.payments.Insert(ctx, nil, pending)
		uc := newReturnUC(deps)

		if _, err := uc.Process(ctx, usecase.ReturnParams{AccessToken: "tok", SessionID: "cs_pend", SuccessFlag: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(deps.payments.Records) != 1 {
			t.Fatalf("expected the pending row to be reused, got %d rows", len(deps.payments.Records))
		}
		if deps.payments.Records[0].Status != model.PaymentStatusCompleted {
			t.Fatalf("pending row must be completed, got %s", deps.payments.Records[0].Status)
		}
	})
}
