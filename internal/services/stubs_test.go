package services

import (
	"context"
	"sync"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	mu        sync.Mutex
	findByID  func(ctx context.Context, orderID string) (domain.Order, error)
	inserted  []domain.Order
	updated   []domain.Order
	insertErr error
	updateErr error
}

func (r *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r.findByID != nil {
		return r.findByID(ctx, orderID)
	}
	return domain.Order{}, stubRepoError{notFound: true}
}

func (r *stubOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, order)
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updated = append(r.updated, order)
	return nil
}

// stubEventRepo enforces the uniqueness constraint in memory, which is what
// the ledger relies on under concurrent marks.
type stubEventRepo struct {
	mu        sync.Mutex
	records   map[string]domain.ProcessedEvent
	existsErr error
	insertErr error
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{records: make(map[string]domain.ProcessedEvent)}
}

func (r *stubEventRepo) Exists(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.records[eventID]
	return ok, nil
}

func (r *stubEventRepo) Insert(_ context.Context, record domain.ProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.records[record.EventID]; ok {
		return stubRepoError{conflict: true}
	}
	r.records[record.EventID] = record
	return nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	err     error
}

func (r *stubAuditRepo) Append(_ context.Context, record domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

type stubAuditSink struct {
	mu        sync.Mutex
	published []domain.AuditRecord
	err       error
}

func (s *stubAuditSink) PublishAuditEvent(_ context.Context, record domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, record)
	return nil
}

// stubCounterRepo implements the plain repository without Swap.
type stubCounterRepo struct {
	mu     sync.Mutex
	counts map[string]int64
	incErr map[string]error
}

func newStubCounterRepo() *stubCounterRepo {
	return &stubCounterRepo{counts: make(map[string]int64)}
}

func (r *stubCounterRepo) Increment(_ context.Context, tenantID string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.incErr[tenantID]; err != nil {
		return 0, err
	}
	next := r.counts[tenantID] + delta
	if next < 0 {
		next = 0
	}
	r.counts[tenantID] = next
	return next, nil
}

func (r *stubCounterRepo) Set(_ context.Context, tenantID string, count int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count < 0 {
		count = 0
	}
	r.counts[tenantID] = count
	return nil
}

func (r *stubCounterRepo) Get(_ context.Context, tenantID string) (domain.TenantCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.counts[tenantID]
	if !ok {
		return domain.TenantCounter{}, stubRepoError{notFound: true}
	}
	return domain.TenantCounter{TenantID: tenantID, Count: count}, nil
}

// stubSwappingCounterRepo additionally supports the atomic swap.
type stubSwappingCounterRepo struct {
	stubCounterRepo
	swapErr error
}

func newStubSwappingCounterRepo() *stubSwappingCounterRepo {
	repo := &stubSwappingCounterRepo{}
	repo.counts = make(map[string]int64)
	return repo
}

func (r *stubSwappingCounterRepo) Swap(_ context.Context, fromTenantID, toTenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.swapErr != nil {
		return r.swapErr
	}
	from := r.counts[fromTenantID] - 1
	if from < 0 {
		from = 0
	}
	r.counts[fromTenantID] = from
	r.counts[toTenantID]++
	return nil
}

type stubListingSource struct {
	counts map[string]int64
	err    error
}

func (s *stubListingSource) CountActiveListings(_ context.Context, tenantID string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[tenantID], nil
}

type stubQuoteService struct {
	mu    sync.Mutex
	calls int
	quote func(ctx context.Context, items []domain.OrderItem, destination *domain.Address) (int64, error)
}

func (s *stubQuoteService) Quote(ctx context.Context, items []domain.OrderItem, destination *domain.Address) (int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.quote != nil {
		return s.quote(ctx, items, destination)
	}
	return 0, nil
}

type stubAuditor struct {
	mu       sync.Mutex
	attempts []OverrideAttempt
}

func (a *stubAuditor) RecordOverrideAttempt(_ context.Context, attempt OverrideAttempt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
}

func int64Ptr(v int64) *int64 { return &v }
