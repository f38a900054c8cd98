package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/bazaarhq/marketplace-api/internal/platform/httpx"
	"github.com/bazaarhq/marketplace-api/internal/services"
)

// Stripe documents 64KiB as the webhook payload ceiling.
const maxWebhookBodySize = 64 * 1024

const signatureHeader = "Stripe-Signature"

// WebhookHandlers receives processor event deliveries. Signature verification
// happens here, before any event data is treated as trusted.
type WebhookHandlers struct {
	webhooks      services.PaymentWebhookService
	signingSecret string
	construct     func(payload []byte, header, secret string) (stripe.Event, error)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(webhooks services.PaymentWebhookService, signingSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		webhooks:      webhooks,
		signingSecret: signingSecret,
		construct:     webhook.ConstructEvent,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	event, err := h.construct(payload, r.Header.Get(signatureHeader), h.signingSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	if err := h.webhooks.HandleEvent(ctx, event); err != nil {
		if errors.Is(err, services.ErrWebhookInvalidEvent) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_event", "event payload is not applicable", http.StatusBadRequest))
			return
		}
		// 5xx prompts the processor to redeliver; the ledger makes the
		// retry safe.
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "event processing failed", http.StatusInternalServerError))
		return
	}

	w.WriteHeader(http.StatusOK)
}
