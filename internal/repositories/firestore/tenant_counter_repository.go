package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

const tenantCountersCollection = "tenant_counters"

// TenantCounterRepository maintains the per-tenant denormalized listing
// counts. Increment and Swap run inside Firestore transactions so concurrent
// writers serialise on the counter documents; stored counts are clamped at
// zero on every mutation.
type TenantCounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[domain.TenantCounter]
	clock    func() time.Time
}

// NewTenantCounterRepository constructs a Firestore-backed counter repository.
func NewTenantCounterRepository(provider *pfirestore.Provider) (*TenantCounterRepository, error) {
	if provider == nil {
		return nil, errors.New("tenant counter repository requires firestore provider")
	}
	return &TenantCounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[domain.TenantCounter](provider, tenantCountersCollection, nil),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Increment adjusts the tenant's count by delta inside a transaction and
// returns the resulting value. A missing counter document is treated as zero.
func (r *TenantCounterRepository) Increment(ctx context.Context, tenantID string, delta int64) (int64, error) {
	ref, err := r.counterRef(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var result int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := readCounter(tx, ref)
		if err != nil {
			return err
		}
		result = clampCount(current + delta)
		return tx.Set(ref, domain.TenantCounter{Count: result, UpdatedAt: r.clock()})
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Swap atomically decrements the source tenant and increments the destination
// tenant in a single transaction, so a reassigned listing is never counted
// twice or dropped between the two writes.
func (r *TenantCounterRepository) Swap(ctx context.Context, fromTenantID, toTenantID string) error {
	fromRef, err := r.counterRef(ctx, fromTenantID)
	if err != nil {
		return err
	}
	toRef, err := r.counterRef(ctx, toTenantID)
	if err != nil {
		return err
	}
	if fromRef.ID == toRef.ID {
		return nil
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fromCount, err := readCounter(tx, fromRef)
		if err != nil {
			return err
		}
		toCount, err := readCounter(tx, toRef)
		if err != nil {
			return err
		}
		now := r.clock()
		if err := tx.Set(fromRef, domain.TenantCounter{Count: clampCount(fromCount - 1), UpdatedAt: now}); err != nil {
			return err
		}
		return tx.Set(toRef, domain.TenantCounter{Count: clampCount(toCount + 1), UpdatedAt: now})
	})
}

// Set overwrites the tenant's count with an authoritative value.
func (r *TenantCounterRepository) Set(ctx context.Context, tenantID string, count int64) error {
	_, err := r.counters.Set(ctx, strings.TrimSpace(tenantID), domain.TenantCounter{
		Count:     clampCount(count),
		UpdatedAt: r.clock(),
	})
	return err
}

// Get fetches the tenant's counter document.
func (r *TenantCounterRepository) Get(ctx context.Context, tenantID string) (domain.TenantCounter, error) {
	doc, err := r.counters.Get(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return domain.TenantCounter{}, err
	}
	counter := doc.Data
	counter.TenantID = doc.ID
	return counter, nil
}

func (r *TenantCounterRepository) counterRef(ctx context.Context, tenantID string) (*firestore.DocumentRef, error) {
	return r.counters.DocumentRef(ctx, strings.TrimSpace(tenantID))
}

func readCounter(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		wrapped := pfirestore.WrapError(tenantCountersCollection+".get", err)
		var repoErr *pfirestore.Error
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return 0, nil
		}
		return 0, wrapped
	}
	var counter domain.TenantCounter
	if err := snap.DataTo(&counter); err != nil {
		return 0, err
	}
	return counter.Count, nil
}

func clampCount(count int64) int64 {
	if count < 0 {
		return 0
	}
	return count
}
