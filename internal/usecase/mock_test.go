//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/adapter"
	"marketplace-billing/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// -----------------------------
// Tenant repository mock
// -----------------------------

// MockTenantRepo keeps records per tenant type and reproduces the
// last-authoritative fencing semantics of the real repository.
type MockTenantRepo struct {
	mu      sync.RWMutex
	records map[model.TenantType]map[string]*model.TenantRecord

	// Optional error injection.
	FindErr  error
	ApplyErr error

	AuthoritativeWrites int
	OptimisticWrites    int
}

func NewMockTenantRepo() *MockTenantRepo {
	return &MockTenantRepo{records: make(map[model.TenantType]map[string]*model.TenantRecord)}
}

func (m *MockTenantRepo) Save(_ context.Context, _ repository.Tx, rec *model.TenantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[rec.Type] == nil {
		m.records[rec.Type] = make(map[string]*model.TenantRecord)
	}
	cp := *rec
	m.records[rec.Type][rec.ProfileID] = &cp
	return nil
}

func (m *MockTenantRepo) Get(t model.TenantType, profileID string) *model.TenantRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[t][profileID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (m *MockTenantRepo) FindByProfileID(_ context.Context, _ repository.Tx, t model.TenantType, profileID string) (*model.TenantRecord, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[t][profileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockTenantRepo) FindByCustomerID(_ context.Context, _ repository.Tx, t model.TenantType, customerID string) (*model.TenantRecord, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records[t] {
		if rec.ExternalCustomerID != nil && *rec.ExternalCustomerID == customerID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func applyUpdate(rec *model.TenantRecord, upd repository.SubscriptionUpdate) {
	if upd.Tier != nil {
		rec.Tier = *upd.Tier
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.ExternalCustomerID != nil {
		rec.ExternalCustomerID = upd.ExternalCustomerID
	}
	if upd.ClearExternalSubscriptionID {
		rec.ExternalSubscriptionID = nil
	} else if upd.ExternalSubscriptionID != nil {
		rec.ExternalSubscriptionID = upd.ExternalSubscriptionID
	}
	if upd.SubscriptionEndDate != nil {
		rec.SubscriptionEndDate = upd.SubscriptionEndDate
	}
	if upd.LastPaymentDate != nil {
		rec.LastPaymentDate = upd.LastPaymentDate
	}
	rec.UpdatedAt = time.Now()
}

func (m *MockTenantRepo) ApplyAuthoritative(_ context.Context, _ repository.Tx, t model.TenantType, profileID string, upd repository.SubscriptionUpdate) error {
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[t][profileID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	applyUpdate(rec, upd)
	now := time.Now()
	rec.LastAuthoritativeAt = &now
	m.AuthoritativeWrites++
	return nil
}

func (m *MockTenantRepo) ApplyAuthoritativeByCustomer(_ context.Context, _ repository.Tx, t model.TenantType, customerID string, upd repository.SubscriptionUpdate) (bool, error) {
	if m.ApplyErr != nil {
		return false, m.ApplyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := false
	for _, rec := range m.records[t] {
		if rec.ExternalCustomerID != nil && *rec.ExternalCustomerID == customerID {
			applyUpdate(rec, upd)
			now := time.Now()
			rec.LastAuthoritativeAt = &now
			matched = true
		}
	}
	if matched {
		m.AuthoritativeWrites++
	}
	return matched, nil
}

func (m *MockTenantRepo) ApplyOptimistic(_ context.Context, _ repository.Tx, t model.TenantType, profileID string, upd repository.SubscriptionUpdate, notAfter time.Time) (bool, error) {
	if m.ApplyErr != nil {
		return false, m.ApplyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[t][profileID]
	if !ok {
		return false, nil
	}
	if rec.LastAuthoritativeAt != nil && !rec.LastAuthoritativeAt.Before(notAfter) {
		return false, nil
	}
	applyUpdate(rec, upd)
	m.OptimisticWrites++
	return true, nil
}

// -----------------------------
// Payment ledger mock
// -----------------------------

type MockPaymentRepo struct {
	mu      sync.RWMutex
	Records []*model.PaymentRecord

	InsertErr error
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{}
}

func (m *MockPaymentRepo) Insert(_ context.Context, _ repository.Tx, p *model.PaymentRecord) (bool, error) {
	if m.InsertErr != nil {
		return false, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ExternalInvoiceID != nil {
		for _, r := range m.Records {
			if r.ExternalInvoiceID != nil && *r.ExternalInvoiceID == *p.ExternalInvoiceID {
				return false, nil
			}
		}
	}
	cp := *p
	m.Records = append(m.Records, &cp)
	return true, nil
}

func (m *MockPaymentRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.Records {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) FindByCheckoutSession(_ context.Context, _ repository.Tx, sessionID string) (*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if r.CheckoutSessionID != nil && *r.CheckoutSessionID == sessionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) CompleteByCheckoutSession(_ context.Context, _ repository.Tx, sessionID string, invoiceID *string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.Status == model.PaymentStatusPending && r.CheckoutSessionID != nil && *r.CheckoutSessionID == sessionID {
			r.Status = model.PaymentStatusCompleted
			if invoiceID != nil {
				r.ExternalInvoiceID = invoiceID
			}
			r.UpdatedAt = paidAt
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepo) MarkFailed(_ context.Context, _ repository.Tx, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.ID == id {
			r.Status = model.PaymentStatusFailed
			r.FailureReason = &reason
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockPaymentRepo) AttachCorrelation(_ context.Context, _ repository.Tx, id string, customerID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.ID == id {
			if customerID != nil {
				r.ExternalCustomerID = customerID
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockPaymentRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentRecord
	for _, r := range m.Records {
		if r.Status == model.PaymentStatusPending && r.CreatedAt.Before(olderThan) {
			cp := *r
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// -----------------------------
// Exam application mock
// -----------------------------

type MockExamRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ExamApplication
}

func NewMockExamRepo() *MockExamRepo {
	return &MockExamRepo{store: make(map[string]*model.ExamApplication)}
}

func (m *MockExamRepo) Add(app *model.ExamApplication) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.store[app.ID] = &cp
}

func (m *MockExamRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.ExamApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *MockExamRepo) MarkPaymentCompleted(_ context.Context, _ repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.store[id]
	if !ok {
		return false, nil
	}
	app.PaymentCompleted = true
	return true, nil
}

// -----------------------------
// Intent cache mock
// -----------------------------

type MockIntentCache struct {
	mu    sync.RWMutex
	store map[string]*model.CheckoutIntent

	SaveErr error
	Saves   int
	Clears  int
}

func NewMockIntentCache() *MockIntentCache {
	return &MockIntentCache{store: make(map[string]*model.CheckoutIntent)}
}

func (m *MockIntentCache) Save(_ context.Context, state string, intent *model.CheckoutIntent) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *intent
	m.store[state] = &cp
	m.Saves++
	return nil
}

func (m *MockIntentCache) Restore(_ context.Context, state string) (*model.CheckoutIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.store[state]
	if !ok {
		return nil, nil
	}
	cp := *intent
	return &cp, nil
}

func (m *MockIntentCache) Clear(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, state)
	m.Clears++
	return nil
}

func (m *MockIntentCache) Has(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[state]
	return ok
}

// -----------------------------
// Transaction manager mock
// -----------------------------

// MockTxManager runs the callback without a real transaction; the mocks
// ignore the tx handle anyway.
type MockTxManager struct{}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// -----------------------------
// Session provider mock
// -----------------------------

type MockSessionProvider struct {
	mu       sync.RWMutex
	access   map[string]*adapter.Session
	refresh  map[string]*adapter.Session
	refilled int
}

func NewMockSessionProvider() *MockSessionProvider {
	return &MockSessionProvider{
		access:  make(map[string]*adapter.Session),
		refresh: make(map[string]*adapter.Session),
	}
}

func (m *MockSessionProvider) AddAccess(token string, s *adapter.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access[token] = s
}

func (m *MockSessionProvider) AddRefresh(token string, s *adapter.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token] = s
}

func (m *MockSessionProvider) Verify(_ context.Context, accessToken string) (*adapter.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.access[accessToken]
	if !ok {
		return nil, domain.ErrAuthentication
	}
	cp := *s
	return &cp, nil
}

func (m *MockSessionProvider) Refresh(_ context.Context, refreshToken string) (*adapter.TokenPair, *adapter.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.refresh[refreshToken]
	if !ok {
		return nil, nil, domain.ErrAuthentication
	}
	m.refilled++
	pair := &adapter.TokenPair{
		AccessToken:  fmt.Sprintf("refreshed-access-%d", m.refilled),
		RefreshToken: fmt.Sprintf("refreshed-refresh-%d", m.refilled),
	}
	cp := *s
	m.access[pair.AccessToken] = &cp
	m.refresh[pair.RefreshToken] = &cp
	return pair, &cp, nil
}

// -----------------------------
// Checkout gateway mock
// -----------------------------

type MockGateway struct {
	mu sync.Mutex

	CreateFunc func(ctx context.Context, p adapter.CreateCheckoutParams) (string, string, error)
	GetFunc    func(ctx context.Context, sessionID string) (*adapter.CheckoutSessionStatus, error)

	Created []adapter.CreateCheckoutParams
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, p adapter.CreateCheckoutParams) (string, string, error) {
	m.mu.Lock()
	m.Created = append(m.Created, p)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return "https://gateway.example/pay/cs_test_1", "cs_test_1", nil
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSessionStatus, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, sessionID)
	}
	return &adapter.CheckoutSessionStatus{SessionID: sessionID, Status: "open", PaymentStatus: "unpaid"}, nil
}
