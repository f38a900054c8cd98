package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"
)

const listingsCollection = "products"

type listingDoc struct {
	SellerTenantID string `firestore:"sellerTenantId"`
	Status         string `firestore:"status"`
}

// ListingRepository reads the authoritative listing collection. The counter
// repair path uses it to re-derive a tenant's active listing count when the
// denormalized counter has drifted.
type ListingRepository struct {
	listings *pfirestore.BaseRepository[listingDoc]
}

// NewListingRepository constructs a Firestore-backed listing repository.
func NewListingRepository(provider *pfirestore.Provider) (*ListingRepository, error) {
	if provider == nil {
		return nil, errors.New("listing repository requires firestore provider")
	}
	return &ListingRepository{
		listings: pfirestore.NewBaseRepository[listingDoc](provider, listingsCollection, nil),
	}, nil
}

// CountActiveListings counts published listings owned by the tenant.
func (r *ListingRepository) CountActiveListings(ctx context.Context, tenantID string) (int64, error) {
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return 0, errors.New("listing repository: tenant id is required")
	}
	return r.listings.Count(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("sellerTenantId", "==", tenant).
			Where("status", "==", "published")
	})
}
