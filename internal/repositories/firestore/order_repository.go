package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, nil),
	}, nil
}

// FindByID fetches an order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data
	order.ID = doc.ID
	return order, nil
}

// Insert creates the order document, failing on a pre-existing ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.orders.Create(ctx, order.ID, order)
	return err
}

// Update overwrites the order document in a single atomic write.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	_, err := r.orders.Set(ctx, order.ID, order)
	return err
}
