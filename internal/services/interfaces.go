// Package services contains the order amount reconciliation engine and its
// collaborators: the amount precedence resolver, the shipping resolution
// sub-engine, the processed-event ledger, the override audit logger, and the
// tenant counter synchronizer.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/platform/money"
)

var (
	ErrOrderInvalidInput   = errors.New("order: invalid input")
	ErrOrderNotFound       = errors.New("order: not found")
	ErrWebhookInvalidEvent = errors.New("webhook: invalid event")
	ErrTenantInvalidInput  = errors.New("tenant counter: invalid input")
)

// AmountsInput is the payload-supplied amounts block. Every field is
// presence-aware so the resolver can tell "caller supplied 0" apart from
// "caller supplied nothing". The subtotal is never accepted from the payload;
// it is always derived from the item lines.
type AmountsInput struct {
	ShippingTotal money.Cents
	DiscountTotal money.Cents
	TaxTotal      money.Cents
	PlatformFee   money.Cents
	ProcessorFee  money.Cents
	// Total is the processor-captured amount. Honored only on create or
	// under a system grant.
	Total money.Cents
}

// OrderWriteInput is one order create or update request.
type OrderWriteInput struct {
	Operation      domain.Operation
	OrderID        string
	ActorID        string
	SellerTenantID string
	BuyerID        string
	// Items carries fresh item lines. A nil slice means the caller did not
	// supply lines on this write and the persisted ones remain effective.
	Items       []domain.OrderItem
	Amounts     AmountsInput
	Destination *domain.Address
	// PaidAt marks when the processor confirmed capture. Only system-trusted
	// writes set it.
	PaidAt *time.Time
}

// OrderWriteService coordinates validation, amount resolution, and the atomic
// document write for an order.
type OrderWriteService interface {
	ApplyWrite(ctx context.Context, grant SystemGrant, input OrderWriteInput) (domain.Order, error)
}

// ResolveInput is everything the amount precedence resolver consumes for one
// write. The resolver is a pure function of these inputs plus the shipping
// sub-engine it delegates to.
type ResolveInput struct {
	Operation domain.Operation
	Grant     SystemGrant
	// Items are the effective lines for this write: the payload's when
	// supplied, otherwise the persisted ones.
	Items []domain.OrderItem
	// FreshItems records whether the payload supplied the lines. A stale
	// persisted shipping total loses to a recompute when it did.
	FreshItems  bool
	Payload     AmountsInput
	Persisted   *domain.Order
	Destination *domain.Address
	OrderID     string
	ActorID     string
}

// Resolution is the authoritative outcome of a write's amount reconciliation.
type Resolution struct {
	Amounts domain.OrderAmounts
	Total   int64
}

// AmountResolver merges trusted grant values, payload input, persisted state,
// and computed defaults into one authoritative amounts block.
type AmountResolver interface {
	Resolve(ctx context.Context, input ResolveInput) Resolution
}

// ShippingInputs are the explicit shipping totals available to the shipping
// sub-engine, in descending precedence.
type ShippingInputs struct {
	FromGrant     money.Cents
	FromCreate    money.Cents
	FromPersisted money.Cents
	FreshLines    bool
}

// ShippingResolver decides the authoritative shipping total for a write.
type ShippingResolver interface {
	Resolve(ctx context.Context, items []domain.OrderItem, destination *domain.Address, inputs ShippingInputs) int64
}

// ShippingQuoteService is the external calculated-mode quote collaborator.
// Implementations may block; callers bound the call with a timeout and fail
// open to zero shipping on error.
type ShippingQuoteService interface {
	Quote(ctx context.Context, items []domain.OrderItem, destination *domain.Address) (int64, error)
}

// EventLedger records which upstream processor events have been applied.
type EventLedger interface {
	HasProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event. A concurrent duplicate insert is
	// success, not an error; the storage uniqueness constraint is the guard.
	MarkProcessed(ctx context.Context, eventID string) error
}

// OverrideAttempt describes a non-system actor's attempted fee override.
type OverrideAttempt struct {
	OrderID               string
	ActorID               string
	Operation             domain.Operation
	SystemTrusted         bool
	AttemptedPlatformFee  money.Cents
	AttemptedProcessorFee money.Cents
	Fields                []string
}

// OverrideAuditor records attempted fee overrides. Recording never fails the
// caller; every sink failure is swallowed.
type OverrideAuditor interface {
	RecordOverrideAttempt(ctx context.Context, attempt OverrideAttempt)
}

// AuditSink is an outbound fire-and-forget destination for audit events.
type AuditSink interface {
	PublishAuditEvent(ctx context.Context, record domain.AuditRecord) error
}

// TenantCounterService keeps denormalized per-tenant listing counts in step
// with the authoritative collection.
type TenantCounterService interface {
	Increment(ctx context.Context, tenantID string, delta int64) error
	Swap(ctx context.Context, fromTenantID, toTenantID string) error
	Recount(ctx context.Context, tenantID string) (int64, error)
}

// PaymentWebhookService applies verified processor events to orders.
type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// Logger is the event-plus-fields logging signature services accept.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}
