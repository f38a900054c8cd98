package services

import (
	"context"
	"time"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

const defaultQuoteTimeout = 5 * time.Second

// ShippingResolverDeps bundles the shipping sub-engine's collaborators.
type ShippingResolverDeps struct {
	// Quotes is the external calculated-mode collaborator. Optional; without
	// one, calculated lines contribute zero.
	Quotes       ShippingQuoteService
	QuoteTimeout time.Duration
	Logger       Logger
}

type shippingResolver struct {
	quotes       ShippingQuoteService
	quoteTimeout time.Duration
	logger       Logger
}

// NewShippingResolver constructs the shipping resolution sub-engine.
func NewShippingResolver(deps ShippingResolverDeps) ShippingResolver {
	timeout := deps.QuoteTimeout
	if timeout <= 0 {
		timeout = defaultQuoteTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &shippingResolver{
		quotes:       deps.Quotes,
		quoteTimeout: timeout,
		logger:       logger,
	}
}

// Resolve picks the authoritative shipping total. A present grant amount is
// always honored, explicit zero included. Create-input and persisted amounts
// count only when strictly positive, and a persisted amount only when no
// fresh lines were supplied; otherwise the total is recomputed from the lines
// themselves, failing open to zero when the quote collaborator misbehaves.
func (r *shippingResolver) Resolve(ctx context.Context, items []domain.OrderItem, destination *domain.Address, inputs ShippingInputs) int64 {
	if inputs.FromGrant.Set() {
		return nonNegative(inputs.FromGrant.Value())
	}
	if inputs.FromCreate.Positive() {
		return inputs.FromCreate.Value()
	}
	if !inputs.FreshLines && inputs.FromPersisted.Positive() {
		return inputs.FromPersisted.Value()
	}
	if !shippingDerivable(items) {
		return 0
	}
	return r.recompute(ctx, items, destination)
}

// shippingDerivable reports whether the lines carry enough shipping signal to
// recompute from: any calculated line, or any flat line with a positive
// quantity-applied subtotal.
func shippingDerivable(items []domain.OrderItem) bool {
	for _, item := range items {
		if item.ShippingMode == domain.ShippingModeCalculated {
			return true
		}
		if item.ShippingMode == domain.ShippingModeFlat && item.ShippingSubtotal > 0 {
			return true
		}
	}
	return false
}

func (r *shippingResolver) recompute(ctx context.Context, items []domain.OrderItem, destination *domain.Address) int64 {
	var total int64
	needsQuote := false
	for _, item := range items {
		switch item.ShippingMode {
		case domain.ShippingModeFlat:
			// Flat subtotals are already quantity-applied upstream.
			total += nonNegative(item.ShippingSubtotal)
		case domain.ShippingModeCalculated:
			needsQuote = true
		}
	}
	if needsQuote {
		total += r.quoteCalculated(ctx, items, destination)
	}
	return total
}

func (r *shippingResolver) quoteCalculated(ctx context.Context, items []domain.OrderItem, destination *domain.Address) int64 {
	if r.quotes == nil {
		r.logger(ctx, "shipping.quote.unavailable", map[string]any{
			"reason": "no quote collaborator configured",
		})
		return 0
	}

	quoteCtx, cancel := context.WithTimeout(ctx, r.quoteTimeout)
	defer cancel()

	quoted, err := r.quotes.Quote(quoteCtx, items, destination)
	if err != nil {
		// Fail open to free shipping; blocking the sale over a quote
		// outage is the worse failure mode.
		r.logger(ctx, "shipping.quote.failed", map[string]any{
			"error": err.Error(),
		})
		return 0
	}
	return nonNegative(quoted)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
