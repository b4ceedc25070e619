package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const webhookActorID = "payment-webhook"

// WebhookHandlers ingests payment provider callbacks. The /webhooks group is
// guarded by HMAC middleware configured at router construction.
type WebhookHandlers struct {
	orders services.OrderService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentEvent)
}

type paymentWebhookPayload struct {
	OrderID   string `json:"order_id"`
	Event     string `json:"event"`
	Reference string `json:"reference"`
}

// providerPaymentStatus maps provider event names onto the payment axis.
var providerPaymentStatus = map[string]domain.PaymentStatus{
	"payment.captured": domain.PaymentPaid,
	"payment.failed":   domain.PaymentFailed,
	"payment.refunded": domain.PaymentRefunded,
}

func (h *WebhookHandlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	target, ok := providerPaymentStatus[strings.TrimSpace(strings.ToLower(payload.Event))]
	if !ok {
		// Unknown events are acknowledged so the provider does not retry.
		writeJSONResponse(w, http.StatusOK, map[string]any{"ignored": true})
		return
	}

	notes := "payment provider event " + payload.Event
	if ref := strings.TrimSpace(payload.Reference); ref != "" {
		notes = fmt.Sprintf("%s (ref %s)", notes, ref)
	}

	order, err := h.orders.TransitionPayment(ctx, services.PaymentTransitionCommand{
		OrderID: strings.TrimSpace(payload.OrderID),
		Target:  target,
		ActorID: webhookActorID,
		Notes:   notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order_id":       order.ID,
		"payment_status": string(order.PaymentStatus),
	})
}
