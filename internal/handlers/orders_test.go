package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/services"
)

type stubOrderService struct {
	applyWrite func(ctx context.Context, grant services.SystemGrant, input services.OrderWriteInput) (domain.Order, error)
	calls      []services.OrderWriteInput
	grants     []services.SystemGrant
}

func (s *stubOrderService) ApplyWrite(ctx context.Context, grant services.SystemGrant, input services.OrderWriteInput) (domain.Order, error) {
	s.calls = append(s.calls, input)
	s.grants = append(s.grants, grant)
	if s.applyWrite != nil {
		return s.applyWrite(ctx, grant, input)
	}
	order := domain.Order{ID: input.OrderID}
	if order.ID == "" {
		order.ID = "ord_new"
	}
	return order, nil
}

func newOrdersRouter(service services.OrderWriteService) http.Handler {
	return NewRouter(WithOrderRoutes(NewOrderHandlers(service).Routes))
}

func TestCreateOrder(t *testing.T) {
	service := &stubOrderService{}
	router := newOrdersRouter(service)

	body := `{
		"sellerTenantId": "tenant_a",
		"buyerId": "buyer_1",
		"items": [
			{"productRef": "prod_1", "quantity": 2, "unitAmountCents": 1500, "shippingMode": "flat", "shippingSubtotalCents": 500}
		],
		"amounts": {"discountTotalCents": "250"},
		"totalCents": 3250
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("X-Actor-Id", "user_1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(service.calls) != 1 {
		t.Fatalf("service calls = %d, want 1", len(service.calls))
	}
	input := service.calls[0]
	if input.Operation != domain.OperationCreate || input.ActorID != "user_1" {
		t.Fatalf("input = %+v", input)
	}
	if len(input.Items) != 1 || input.Items[0].UnitAmount != 1500 || input.Items[0].ShippingSubtotal != 500 {
		t.Fatalf("items = %+v", input.Items)
	}
	if v, ok := input.Amounts.DiscountTotal.Get(); !ok || v != 250 {
		t.Fatalf("discount = %v (%v), want coerced string 250", v, ok)
	}
	if v, ok := input.Amounts.Total.Get(); !ok || v != 3250 {
		t.Fatalf("total = %v (%v), want 3250", v, ok)
	}
	if service.grants[0].Trusted() {
		t.Fatal("client write must never carry a system grant")
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.ID != "ord_new" {
		t.Fatalf("order id = %q", resp.Order.ID)
	}
}

func TestCreateOrderMalformedAmount(t *testing.T) {
	service := &stubOrderService{}
	router := newOrdersRouter(service)

	body := `{"sellerTenantId":"t","buyerId":"b","amounts":{"platformFeeCents":"lots"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed amount", rec.Code)
	}
	if len(service.calls) != 0 {
		t.Fatal("malformed payload must not reach the service")
	}
}

func TestCreateOrderMalformedJSON(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items": [`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest},
		{"not found", services.ErrOrderNotFound, http.StatusNotFound},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				applyWrite: func(context.Context, services.SystemGrant, services.OrderWriteInput) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			router := newOrdersRouter(service)

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_1", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestUpdateOrderPassesID(t *testing.T) {
	service := &stubOrderService{}
	router := newOrdersRouter(service)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_42", strings.NewReader(`{"amounts":{"platformFeeCents":999}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	input := service.calls[0]
	if input.Operation != domain.OperationUpdate || input.OrderID != "ord_42" {
		t.Fatalf("input = %+v", input)
	}
	if input.Items != nil {
		t.Fatal("absent items must stay nil so persisted lines remain effective")
	}
	if v, ok := input.Amounts.PlatformFee.Get(); !ok || v != 999 {
		t.Fatalf("platform fee = %v (%v)", v, ok)
	}
}
