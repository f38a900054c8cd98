package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/platform/httpx"
	"github.com/bazaarhq/marketplace-api/internal/platform/money"
	"github.com/bazaarhq/marketplace-api/internal/services"
)

const (
	maxOrderBodySize = 256 * 1024
	actorHeader      = "X-Actor-Id"
	anonymousActor   = "anonymous"
)

// Amount fields arrive as json numbers or strings from older clients; they are
// decoded loosely and coerced strictly so a malformed value is a 400, not a
// silent zero.
type orderAmountsRequest struct {
	ShippingTotalCents any `json:"shippingTotalCents"`
	DiscountTotalCents any `json:"discountTotalCents"`
	TaxTotalCents      any `json:"taxTotalCents"`
	PlatformFeeCents   any `json:"platformFeeCents"`
	StripeFeeCents     any `json:"stripeFeeCents"`
}

type orderItemRequest struct {
	ProductRef            string `json:"productRef"`
	Quantity              int64  `json:"quantity"`
	UnitAmountCents       any    `json:"unitAmountCents"`
	AmountSubtotalCents   any    `json:"amountSubtotalCents"`
	AmountTaxCents        any    `json:"amountTaxCents"`
	AmountTotalCents      any    `json:"amountTotalCents"`
	ShippingMode          string `json:"shippingMode"`
	ShippingSubtotalCents any    `json:"shippingSubtotalCents"`
}

type orderWriteRequest struct {
	SellerTenantID string               `json:"sellerTenantId"`
	BuyerID        string               `json:"buyerId"`
	Items          []orderItemRequest   `json:"items"`
	Amounts        *orderAmountsRequest `json:"amounts"`
	TotalCents     any                  `json:"totalCents"`
	Destination    *domain.Address      `json:"destination"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

// OrderHandlers exposes the order write endpoints. Client-originated writes
// always run without a system grant; trusted fee values only enter through
// the webhook surface.
type OrderHandlers struct {
	orders services.OrderWriteService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderWriteService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Patch("/{orderID}", h.updateOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	h.applyWrite(w, r, domain.OperationCreate, "")
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	h.applyWrite(w, r, domain.OperationUpdate, orderID)
}

func (h *OrderHandlers) applyWrite(w http.ResponseWriter, r *http.Request, op domain.Operation, orderID string) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req orderWriteRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodySize))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	input, err := buildWriteInput(req, op, orderID, actorID(r))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.ApplyWrite(ctx, services.NoGrant(), input)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	status := http.StatusOK
	if op == domain.OperationCreate {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(orderResponse{Order: order})
}

func buildWriteInput(req orderWriteRequest, op domain.Operation, orderID, actor string) (services.OrderWriteInput, error) {
	input := services.OrderWriteInput{
		Operation:      op,
		OrderID:        orderID,
		ActorID:        actor,
		SellerTenantID: strings.TrimSpace(req.SellerTenantID),
		BuyerID:        strings.TrimSpace(req.BuyerID),
		Destination:    req.Destination,
	}

	if req.Items != nil {
		items := make([]domain.OrderItem, 0, len(req.Items))
		for i, item := range req.Items {
			converted, err := buildItem(item)
			if err != nil {
				return services.OrderWriteInput{}, fmt.Errorf("items[%d]: %w", i, err)
			}
			items = append(items, converted)
		}
		input.Items = items
	}

	if req.Amounts != nil {
		amounts, err := buildAmounts(*req.Amounts)
		if err != nil {
			return services.OrderWriteInput{}, err
		}
		input.Amounts = amounts
	}

	total, err := optionalCents("totalCents", req.TotalCents)
	if err != nil {
		return services.OrderWriteInput{}, err
	}
	input.Amounts.Total = total

	return input, nil
}

func buildItem(req orderItemRequest) (domain.OrderItem, error) {
	unit, err := requiredCents("unitAmountCents", req.UnitAmountCents)
	if err != nil {
		return domain.OrderItem{}, err
	}
	item := domain.OrderItem{
		ProductRef:   strings.TrimSpace(req.ProductRef),
		Quantity:     req.Quantity,
		UnitAmount:   unit,
		ShippingMode: domain.ShippingMode(strings.TrimSpace(req.ShippingMode)),
	}

	shipping, err := optionalCents("shippingSubtotalCents", req.ShippingSubtotalCents)
	if err != nil {
		return domain.OrderItem{}, err
	}
	item.ShippingSubtotal = shipping.OrElse(0)

	for _, field := range []struct {
		name   string
		raw    any
		target **int64
	}{
		{"amountSubtotalCents", req.AmountSubtotalCents, &item.AmountSubtotal},
		{"amountTaxCents", req.AmountTaxCents, &item.AmountTax},
		{"amountTotalCents", req.AmountTotalCents, &item.AmountTotal},
	} {
		value, err := optionalCents(field.name, field.raw)
		if err != nil {
			return domain.OrderItem{}, err
		}
		*field.target = value.Pointer()
	}
	return item, nil
}

func buildAmounts(req orderAmountsRequest) (services.AmountsInput, error) {
	var (
		amounts services.AmountsInput
		err     error
	)
	fields := []struct {
		name   string
		raw    any
		target *money.Cents
	}{
		{"shippingTotalCents", req.ShippingTotalCents, &amounts.ShippingTotal},
		{"discountTotalCents", req.DiscountTotalCents, &amounts.DiscountTotal},
		{"taxTotalCents", req.TaxTotalCents, &amounts.TaxTotal},
		{"platformFeeCents", req.PlatformFeeCents, &amounts.PlatformFee},
		{"stripeFeeCents", req.StripeFeeCents, &amounts.ProcessorFee},
	}
	for _, field := range fields {
		if *field.target, err = optionalCents(field.name, field.raw); err != nil {
			return services.AmountsInput{}, err
		}
	}
	return amounts, nil
}

// optionalCents distinguishes an absent field from a malformed one: nil stays
// absent, a present-but-unparsable value is the caller's error.
func optionalCents(name string, raw any) (money.Cents, error) {
	if raw == nil {
		return money.None(), nil
	}
	v, ok := money.ToCentsStrict(raw, money.CoerceOptions{})
	if !ok {
		return money.None(), fmt.Errorf("%s must be an integer amount in cents", name)
	}
	return money.Explicit(v), nil
}

func requiredCents(name string, raw any) (int64, error) {
	v, err := optionalCents(name, raw)
	if err != nil {
		return 0, err
	}
	if !v.Set() {
		return 0, fmt.Errorf("%s is required", name)
	}
	return v.Value(), nil
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "order write failed, retry later", http.StatusInternalServerError))
	}
}

func actorID(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
		return actor
	}
	return anonymousActor
}
