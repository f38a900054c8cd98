package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/platform/idempotency"
	"github.com/bazaarhq/marketplace-api/internal/repositories"
)

// OrderServiceDeps bundles the order write service's collaborators.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Resolver AmountResolver
	// Counters keeps seller listing counts in step when an order moves
	// between tenants. Optional; counter drift is repairable.
	Counters TenantCounterService
	Keys     idempotency.Builder
	Clock    func() time.Time
	Logger   Logger
}

type orderService struct {
	orders   repositories.OrderRepository
	resolver AmountResolver
	counters TenantCounterService
	keys     idempotency.Builder
	clock    func() time.Time
	logger   Logger
	newID    func() string
}

// NewOrderService constructs the order write service.
func NewOrderService(deps OrderServiceDeps) (OrderWriteService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}
	if deps.Resolver == nil {
		return nil, errors.New("order service requires amount resolver")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		orders:   deps.Orders,
		resolver: deps.Resolver,
		counters: deps.Counters,
		keys:     deps.Keys,
		clock:    clock,
		logger:   logger,
		newID:    newOrderID,
	}, nil
}

// ApplyWrite validates the payload, reconciles the amounts block, and persists
// the order in one atomic document write. Counter moves on a seller tenant
// change are best-effort; they never fail the write.
func (s *orderService) ApplyWrite(ctx context.Context, grant SystemGrant, input OrderWriteInput) (domain.Order, error) {
	if err := validateWriteInput(input); err != nil {
		return domain.Order{}, err
	}

	switch input.Operation {
	case domain.OperationCreate:
		return s.applyCreate(ctx, grant, input)
	default:
		return s.applyUpdate(ctx, grant, input)
	}
}

func (s *orderService) applyCreate(ctx context.Context, grant SystemGrant, input OrderWriteInput) (domain.Order, error) {
	now := s.clock().UTC()

	order := domain.Order{
		ID:             strings.TrimSpace(input.OrderID),
		SellerTenantID: strings.TrimSpace(input.SellerTenantID),
		BuyerID:        strings.TrimSpace(input.BuyerID),
		Items:          input.Items,
		Destination:    input.Destination,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.ID == "" {
		order.ID = s.newID()
	}
	order.ProcessorIdempotencyKey = s.keys.Key(idempotency.KeyInput{
		Prefix:   "order",
		ActorID:  input.ActorID,
		TenantID: order.SellerTenantID,
		Payload: map[string]any{
			"orderId": order.ID,
			"buyerId": order.BuyerID,
			"items":   order.Items,
		},
	})

	resolution := s.resolver.Resolve(ctx, ResolveInput{
		Operation:   domain.OperationCreate,
		Grant:       grant,
		Items:       input.Items,
		FreshItems:  input.Items != nil,
		Payload:     input.Amounts,
		Destination: input.Destination,
		OrderID:     order.ID,
		ActorID:     input.ActorID,
	})
	amounts := resolution.Amounts
	order.Amounts = &amounts
	order.Total = resolution.Total
	if grant.Trusted() && input.PaidAt != nil {
		paidAt := input.PaidAt.UTC()
		order.PaidAt = &paidAt
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	s.logger(ctx, "order.created", map[string]any{
		"orderId":        order.ID,
		"sellerTenantId": order.SellerTenantID,
		"totalCents":     order.Total,
	})
	return order, nil
}

func (s *orderService) applyUpdate(ctx context.Context, grant SystemGrant, input OrderWriteInput) (domain.Order, error) {
	orderID := strings.TrimSpace(input.OrderID)

	persisted, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	order := persisted
	if input.Items != nil {
		order.Items = input.Items
	}
	if input.Destination != nil {
		order.Destination = input.Destination
	}
	newTenant := strings.TrimSpace(input.SellerTenantID)
	if newTenant != "" {
		order.SellerTenantID = newTenant
	}

	resolution := s.resolver.Resolve(ctx, ResolveInput{
		Operation:   domain.OperationUpdate,
		Grant:       grant,
		Items:       order.Items,
		FreshItems:  input.Items != nil,
		Payload:     input.Amounts,
		Persisted:   &persisted,
		Destination: order.Destination,
		OrderID:     orderID,
		ActorID:     input.ActorID,
	})
	amounts := resolution.Amounts
	order.Amounts = &amounts
	order.Total = resolution.Total
	order.UpdatedAt = s.clock().UTC()
	if grant.Trusted() && input.PaidAt != nil {
		paidAt := input.PaidAt.UTC()
		order.PaidAt = &paidAt
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	if order.SellerTenantID != persisted.SellerTenantID {
		s.moveTenantCount(ctx, persisted.SellerTenantID, order.SellerTenantID)
	}

	s.logger(ctx, "order.updated", map[string]any{
		"orderId":    orderID,
		"totalCents": order.Total,
	})
	return order, nil
}

// moveTenantCount shifts the denormalized seller count when the order changed
// hands. Best-effort: counter drift is repaired by a recount, a failed order
// write is not.
func (s *orderService) moveTenantCount(ctx context.Context, from, to string) {
	if s.counters == nil || from == "" || to == "" {
		return
	}
	if err := s.counters.Swap(ctx, from, to); err != nil {
		s.logger(ctx, "order.counter_swap.failed", map[string]any{
			"fromTenantId": from,
			"toTenantId":   to,
			"error":        err.Error(),
		})
	}
}

func validateWriteInput(input OrderWriteInput) error {
	if !input.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrOrderInvalidInput, input.Operation)
	}
	if input.Operation == domain.OperationUpdate && strings.TrimSpace(input.OrderID) == "" {
		return fmt.Errorf("%w: order id is required on update", ErrOrderInvalidInput)
	}
	if input.Operation == domain.OperationCreate {
		if strings.TrimSpace(input.SellerTenantID) == "" {
			return fmt.Errorf("%w: seller tenant id is required", ErrOrderInvalidInput)
		}
		if strings.TrimSpace(input.BuyerID) == "" {
			return fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
		}
	}
	for i, item := range input.Items {
		if err := validateItem(item); err != nil {
			return fmt.Errorf("%w: item %d: %v", ErrOrderInvalidInput, i, err)
		}
	}
	return nil
}

func validateItem(item domain.OrderItem) error {
	if strings.TrimSpace(item.ProductRef) == "" {
		return errors.New("product reference is required")
	}
	if item.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	if item.UnitAmount < 0 {
		return errors.New("unit amount must not be negative")
	}
	if !item.ShippingMode.Valid() {
		return fmt.Errorf("unknown shipping mode %q", item.ShippingMode)
	}
	if item.ShippingMode != domain.ShippingModeFlat && item.ShippingSubtotal != 0 {
		return errors.New("shipping subtotal is only valid on flat-mode lines")
	}
	if item.ShippingSubtotal < 0 {
		return errors.New("shipping subtotal must not be negative")
	}
	for name, v := range map[string]*int64{
		"amountSubtotalCents": item.AmountSubtotal,
		"amountTaxCents":      item.AmountTax,
		"amountTotalCents":    item.AmountTotal,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func newOrderID() string {
	return "ord_" + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.Monotonic(rand.Reader, 0)).String()
}
