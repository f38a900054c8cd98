package repositories

import (
	"context"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
}

// ProcessedEventRepository records applied payment-processor events. Insert
// must be guarded by a storage-level uniqueness constraint on the event ID; a
// duplicate insert surfaces as a RepositoryError with IsConflict.
type ProcessedEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Insert(ctx context.Context, record domain.ProcessedEvent) error
}

// AuditRepository appends fee-override audit records.
type AuditRepository interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

// TenantCounterRepository maintains denormalized per-tenant listing counts.
// Increment clamps the stored count at zero.
type TenantCounterRepository interface {
	Increment(ctx context.Context, tenantID string, delta int64) (int64, error)
	Set(ctx context.Context, tenantID string, count int64) error
	Get(ctx context.Context, tenantID string) (domain.TenantCounter, error)
}

// TenantCounterSwapper is implemented by counter repositories whose store
// supports multi-document transactions. Counter services fall back to two
// independent increments when the repository does not implement it.
type TenantCounterSwapper interface {
	Swap(ctx context.Context, fromTenantID, toTenantID string) error
}

// ListingCountSource re-derives a tenant's listing count from the
// authoritative collection. Used by the counter repair path.
type ListingCountSource interface {
	CountActiveListings(ctx context.Context, tenantID string) (int64, error)
}
