package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bazaarhq/marketplace-api/internal/repositories"
)

// TenantCounterDeps bundles the counter synchronizer's collaborators.
type TenantCounterDeps struct {
	Counters repositories.TenantCounterRepository
	// Listings is the authoritative collection the repair path recounts
	// from. Optional; without it Recount is unavailable.
	Listings repositories.ListingCountSource
	Logger   Logger
}

type tenantCounterService struct {
	counters repositories.TenantCounterRepository
	listings repositories.ListingCountSource
	logger   Logger
}

// NewTenantCounterService constructs the tenant counter synchronizer.
func NewTenantCounterService(deps TenantCounterDeps) (TenantCounterService, error) {
	if deps.Counters == nil {
		return nil, errors.New("tenant counter service requires counter repository")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &tenantCounterService{
		counters: deps.Counters,
		listings: deps.Listings,
		logger:   logger,
	}, nil
}

// Increment adjusts the tenant's denormalized count. The repository clamps
// the stored value at zero.
func (s *tenantCounterService) Increment(ctx context.Context, tenantID string, delta int64) error {
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return fmt.Errorf("%w: tenant id is required", ErrTenantInvalidInput)
	}
	if _, err := s.counters.Increment(ctx, tenant, delta); err != nil {
		return fmt.Errorf("increment counter for tenant %s: %w", tenant, err)
	}
	return nil
}

// Swap moves one unit of count between tenants. When the repository supports
// multi-document transactions the pair lands atomically; otherwise the service
// falls back to two independent best-effort increments and relies on Recount
// to correct any drift.
func (s *tenantCounterService) Swap(ctx context.Context, fromTenantID, toTenantID string) error {
	from := strings.TrimSpace(fromTenantID)
	to := strings.TrimSpace(toTenantID)
	if from == "" || to == "" {
		return fmt.Errorf("%w: both tenant ids are required", ErrTenantInvalidInput)
	}
	if from == to {
		return nil
	}

	if swapper, ok := s.counters.(repositories.TenantCounterSwapper); ok {
		if err := swapper.Swap(ctx, from, to); err != nil {
			return fmt.Errorf("swap counters %s -> %s: %w", from, to, err)
		}
		return nil
	}

	s.logger(ctx, "counter.swap.fallback", map[string]any{
		"fromTenantId": from,
		"toTenantId":   to,
	})
	var errs []error
	if _, err := s.counters.Increment(ctx, from, -1); err != nil {
		errs = append(errs, fmt.Errorf("decrement tenant %s: %w", from, err))
	}
	if _, err := s.counters.Increment(ctx, to, 1); err != nil {
		errs = append(errs, fmt.Errorf("increment tenant %s: %w", to, err))
	}
	return errors.Join(errs...)
}

// Recount re-derives the tenant's count from the authoritative collection and
// overwrites the stored counter with it.
func (s *tenantCounterService) Recount(ctx context.Context, tenantID string) (int64, error) {
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return 0, fmt.Errorf("%w: tenant id is required", ErrTenantInvalidInput)
	}
	if s.listings == nil {
		return 0, errors.New("tenant counter service: no listing source configured")
	}

	count, err := s.listings.CountActiveListings(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("recount tenant %s: %w", tenant, err)
	}
	if err := s.counters.Set(ctx, tenant, count); err != nil {
		return 0, fmt.Errorf("store recounted value for tenant %s: %w", tenant, err)
	}
	s.logger(ctx, "counter.recounted", map[string]any{
		"tenantId": tenant,
		"count":    count,
	})
	return count, nil
}
