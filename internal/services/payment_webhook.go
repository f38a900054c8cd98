package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/bazaarhq/marketplace-api/internal/platform/money"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

// Metadata keys the checkout integration stamps onto processor objects.
const (
	metadataOrderID      = "orderId"
	metadataPlatformFee  = "platformFeeCents"
	metadataProcessorFee = "stripeFeeCents"
)

const webhookActorID = "system:stripe"

// PaymentWebhookDeps bundles the webhook processor's collaborators.
type PaymentWebhookDeps struct {
	Ledger EventLedger
	Orders OrderWriteService
	Clock  func() time.Time
	Logger Logger
}

type paymentWebhookService struct {
	ledger EventLedger
	orders OrderWriteService
	clock  func() time.Time
	logger Logger
}

// NewPaymentWebhookService constructs the processor-event applier. It is the
// only production construction site for a system grant.
func NewPaymentWebhookService(deps PaymentWebhookDeps) (PaymentWebhookService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("payment webhook service requires event ledger")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment webhook service requires order write service")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentWebhookService{
		ledger: deps.Ledger,
		orders: deps.Orders,
		clock:  clock,
		logger: logger,
	}, nil
}

// HandleEvent applies one verified processor event. Retried deliveries are
// no-ops: the ledger is consulted before any fee-affecting work and the event
// is marked processed only after the order write landed.
func (s *paymentWebhookService) HandleEvent(ctx context.Context, event stripe.Event) error {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return fmt.Errorf("%w: missing event id", ErrWebhookInvalidEvent)
	}

	processed, err := s.ledger.HasProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check ledger for event %s: %w", eventID, err)
	}
	if processed {
		s.logger(ctx, "webhook.event.duplicate", map[string]any{"eventId": eventID})
		return nil
	}

	var (
		grant SystemGrant
		input OrderWriteInput
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		grant, input, err = s.fromCheckoutSession(event)
	case stripe.EventTypePaymentIntentSucceeded:
		grant, input, err = s.fromPaymentIntent(event)
	default:
		s.logger(ctx, "webhook.event.ignored", map[string]any{
			"eventId": eventID,
			"type":    string(event.Type),
		})
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.orders.ApplyWrite(ctx, grant, input); err != nil {
		return fmt.Errorf("apply event %s: %w", eventID, err)
	}
	if err := s.ledger.MarkProcessed(ctx, eventID); err != nil {
		return err
	}

	s.logger(ctx, "webhook.event.applied", map[string]any{
		"eventId": eventID,
		"orderId": input.OrderID,
		"type":    string(event.Type),
	})
	return nil
}

// fromCheckoutSession extracts verified amounts from a completed checkout
// session. Session totals and the metadata fee stamps are the upstream truth;
// whatever is present there becomes a trusted fee.
func (s *paymentWebhookService) fromCheckoutSession(event stripe.Event) (SystemGrant, OrderWriteInput, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return SystemGrant{}, OrderWriteInput{}, fmt.Errorf("%w: decode checkout session: %v", ErrWebhookInvalidEvent, err)
	}
	orderID := strings.TrimSpace(session.Metadata[metadataOrderID])
	if orderID == "" {
		return SystemGrant{}, OrderWriteInput{}, fmt.Errorf("%w: checkout session %s carries no order id", ErrWebhookInvalidEvent, session.ID)
	}

	fees := TrustedFees{
		PlatformFee:  metadataCents(session.Metadata, metadataPlatformFee),
		ProcessorFee: metadataCents(session.Metadata, metadataProcessorFee),
	}
	if session.ShippingCost != nil {
		fees.ShippingTotal = money.Explicit(session.ShippingCost.AmountTotal)
	}
	if session.TotalDetails != nil {
		fees.DiscountTotal = money.Explicit(session.TotalDetails.AmountDiscount)
		fees.TaxTotal = money.Explicit(session.TotalDetails.AmountTax)
		if !fees.ShippingTotal.Set() {
			fees.ShippingTotal = money.Explicit(session.TotalDetails.AmountShipping)
		}
	}

	paidAt := s.clock().UTC()
	input := OrderWriteInput{
		Operation: domain.OperationUpdate,
		OrderID:   orderID,
		ActorID:   webhookActorID,
		Amounts:   AmountsInput{Total: money.Explicit(session.AmountTotal)},
		PaidAt:    &paidAt,
	}
	return NewSystemGrant(fees), input, nil
}

// fromPaymentIntent extracts what a payment intent reliably carries: the
// captured amount, and the platform fee when the intent ran with an
// application fee. No processor fee is available here and none is invented.
func (s *paymentWebhookService) fromPaymentIntent(event stripe.Event) (SystemGrant, OrderWriteInput, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return SystemGrant{}, OrderWriteInput{}, fmt.Errorf("%w: decode payment intent: %v", ErrWebhookInvalidEvent, err)
	}
	orderID := strings.TrimSpace(intent.Metadata[metadataOrderID])
	if orderID == "" {
		return SystemGrant{}, OrderWriteInput{}, fmt.Errorf("%w: payment intent %s carries no order id", ErrWebhookInvalidEvent, intent.ID)
	}

	fees := TrustedFees{
		PlatformFee:  metadataCents(intent.Metadata, metadataPlatformFee),
		ProcessorFee: metadataCents(intent.Metadata, metadataProcessorFee),
	}
	if !fees.PlatformFee.Set() && intent.ApplicationFeeAmount > 0 {
		fees.PlatformFee = money.Explicit(intent.ApplicationFeeAmount)
	}

	paidAt := s.clock().UTC()
	input := OrderWriteInput{
		Operation: domain.OperationUpdate,
		OrderID:   orderID,
		ActorID:   webhookActorID,
		Amounts:   AmountsInput{Total: money.Explicit(intent.AmountReceived)},
		PaidAt:    &paidAt,
	}
	return NewSystemGrant(fees), input, nil
}

// metadataCents reads an optional integer-cents metadata stamp. Absent or
// unparsable stamps stay absent rather than becoming a trusted zero.
func metadataCents(metadata map[string]string, key string) money.Cents {
	raw, ok := metadata[key]
	if !ok {
		return money.None()
	}
	v, ok := money.ToCentsStrict(raw, money.CoerceOptions{})
	if !ok {
		return money.None()
	}
	return money.Explicit(v)
}
