package services

import (
	"context"
	"errors"
	"math"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/platform/money"
)

// AmountResolverDeps bundles the resolver's collaborators.
type AmountResolverDeps struct {
	Shipping ShippingResolver
	Auditor  OverrideAuditor
	// PlatformFeeRate is the default take applied to the items subtotal when
	// no trusted or persisted platform fee exists.
	PlatformFeeRate float64
	Logger          Logger
}

type amountResolver struct {
	shipping ShippingResolver
	auditor  OverrideAuditor
	feeRate  float64
	logger   Logger
}

// NewAmountResolver constructs the amount precedence resolver.
func NewAmountResolver(deps AmountResolverDeps) (AmountResolver, error) {
	if deps.Shipping == nil {
		return nil, errors.New("amount resolver requires shipping resolver")
	}
	if deps.PlatformFeeRate < 0 || deps.PlatformFeeRate >= 1 {
		return nil, errors.New("amount resolver requires platform fee rate in [0, 1)")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &amountResolver{
		shipping: deps.Shipping,
		auditor:  deps.Auditor,
		feeRate:  deps.PlatformFeeRate,
		logger:   logger,
	}, nil
}

// Resolve merges, per field, the grant's trusted amounts, the payload, the
// persisted snapshot, and computed defaults into one authoritative block.
// Resolution is presence-aware throughout: an explicit zero from a higher
// source beats a positive value from a lower one. Payload amounts only apply
// on create or under a system grant; attempted fee overrides on a non-system
// update are discarded and routed to the override auditor instead of failing
// the write.
func (r *amountResolver) Resolve(ctx context.Context, input ResolveInput) Resolution {
	trusted := input.Grant.Fees()
	payloadApplies := input.Operation == domain.OperationCreate || input.Grant.Trusted()

	payload := input.Payload
	if !payloadApplies {
		r.auditDiscardedFees(ctx, input)
		payload = AmountsInput{Total: payload.Total}
	}

	var persisted persistedAmounts
	if input.Persisted != nil {
		persisted = newPersistedAmounts(input.Persisted)
	}

	subtotal := itemsSubtotal(input.Items)

	shipping := r.shipping.Resolve(ctx, input.Items, input.Destination, ShippingInputs{
		FromGrant:     trusted.ShippingTotal,
		FromCreate:    payload.ShippingTotal,
		FromPersisted: persisted.shipping,
		FreshLines:    input.FreshItems,
	})

	discount := resolveFee(trusted.DiscountTotal, payload.DiscountTotal, persisted.discount, 0)
	tax := resolveFee(trusted.TaxTotal, payload.TaxTotal, persisted.tax, 0)
	platformFee := resolveFee(trusted.PlatformFee, payload.PlatformFee, persisted.platformFee, r.defaultPlatformFee(subtotal))
	// The processor fee is only ever trusted or persisted; synthesizing one
	// would silently misstate seller payouts, so the default stays zero.
	processorFee := resolveFee(trusted.ProcessorFee, payload.ProcessorFee, persisted.processorFee, 0)

	amounts := domain.OrderAmounts{
		Subtotal:      nonNegative(subtotal),
		ShippingTotal: nonNegative(shipping),
		DiscountTotal: nonNegative(discount),
		TaxTotal:      nonNegative(tax),
		PlatformFee:   nonNegative(platformFee),
		ProcessorFee:  nonNegative(processorFee),
	}
	gross := amounts.Gross()
	sellerNet := gross - amounts.PlatformFee - amounts.ProcessorFee
	amounts.SellerNet = nonNegative(sellerNet)

	return Resolution{
		Amounts: amounts,
		Total:   r.resolveTotal(input, payloadApplies, persisted),
	}
}

// resolveFee walks the per-field precedence chain: trusted grant value,
// applicable payload value, persisted snapshot value, computed default.
func resolveFee(trusted, payload, persisted money.Cents, computed int64) int64 {
	return trusted.Or(payload).Or(persisted).OrElse(computed)
}

// resolveTotal pins the processor-captured total: payload input counts only on
// create or under a system grant, otherwise the persisted value stands.
func (r *amountResolver) resolveTotal(input ResolveInput, payloadApplies bool, persisted persistedAmounts) int64 {
	if payloadApplies && input.Payload.Total.Set() {
		return nonNegative(input.Payload.Total.Value())
	}
	return nonNegative(persisted.total.OrElse(0))
}

func (r *amountResolver) defaultPlatformFee(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotal) * r.feeRate))
}

// auditDiscardedFees routes attempted fee overrides on a non-system update to
// the auditor. Fire-and-forget: the write itself proceeds with the attempted
// values discarded.
func (r *amountResolver) auditDiscardedFees(ctx context.Context, input ResolveInput) {
	var persisted persistedAmounts
	if input.Persisted != nil {
		persisted = newPersistedAmounts(input.Persisted)
	}

	attempt := OverrideAttempt{
		OrderID:       input.OrderID,
		ActorID:       input.ActorID,
		Operation:     input.Operation,
		SystemTrusted: false,
	}
	if v, ok := input.Payload.PlatformFee.Get(); ok && v != persisted.platformFee.OrElse(r.defaultPlatformFee(itemsSubtotal(input.Items))) {
		attempt.AttemptedPlatformFee = input.Payload.PlatformFee
		attempt.Fields = append(attempt.Fields, "platformFeeCents")
	}
	if v, ok := input.Payload.ProcessorFee.Get(); ok && v != persisted.processorFee.OrElse(0) {
		attempt.AttemptedProcessorFee = input.Payload.ProcessorFee
		attempt.Fields = append(attempt.Fields, "stripeFeeCents")
	}
	if len(attempt.Fields) == 0 {
		return
	}

	r.logger(ctx, "order.fee_override.discarded", map[string]any{
		"orderId": input.OrderID,
		"actorId": input.ActorID,
		"fields":  attempt.Fields,
	})
	if r.auditor != nil {
		r.auditor.RecordOverrideAttempt(ctx, attempt)
	}
}

// itemsSubtotal derives the order subtotal item-by-item: a positive explicit
// line subtotal, then total minus tax when both are positive, then a positive
// line total, then unit amount times quantity.
func itemsSubtotal(items []domain.OrderItem) int64 {
	var sum int64
	for _, item := range items {
		sum += lineSubtotal(item)
	}
	return sum
}

func lineSubtotal(item domain.OrderItem) int64 {
	if v := money.FromPointer(item.AmountSubtotal); v.Positive() {
		return v.Value()
	}
	total := money.FromPointer(item.AmountTotal)
	tax := money.FromPointer(item.AmountTax)
	if total.Positive() && tax.Positive() {
		if net := total.Value() - tax.Value(); net > 0 {
			return net
		}
	}
	if total.Positive() {
		return total.Value()
	}
	return nonNegative(item.UnitAmount) * nonNegative(item.Quantity)
}

// persistedAmounts is the presence-aware view of a stored order's amounts
// block. A missing block means every field is absent; once the block exists
// every field in it is explicit, a stored zero included.
type persistedAmounts struct {
	shipping     money.Cents
	discount     money.Cents
	tax          money.Cents
	platformFee  money.Cents
	processorFee money.Cents
	total        money.Cents
}

func newPersistedAmounts(order *domain.Order) persistedAmounts {
	p := persistedAmounts{total: money.Explicit(order.Total)}
	if order.Amounts == nil {
		return p
	}
	p.shipping = money.Explicit(order.Amounts.ShippingTotal)
	p.discount = money.Explicit(order.Amounts.DiscountTotal)
	p.tax = money.Explicit(order.Amounts.TaxTotal)
	p.platformFee = money.Explicit(order.Amounts.PlatformFee)
	p.processorFee = money.Explicit(order.Amounts.ProcessorFee)
	return p
}
