package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/auth"
	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const (
	maxCheckoutBodySize  = 64 * 1024
	idempotencyKeyHeader = "Idempotency-Key"
)

type placeOrderLinePayload struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Lines           []placeOrderLinePayload `json:"lines"`
	ShippingAddress addressPayload          `json:"shipping_address"`
	DeliveryMode    string                  `json:"delivery_mode"`
	PaymentMethod   string                  `json:"payment_method"`
	CouponCode      string                  `json:"coupon_code"`
}

type orderQuotePayload struct {
	Lines          []orderItemPayload `json:"lines"`
	Subtotal       int64              `json:"subtotal"`
	DiscountTotal  int64              `json:"discount_total"`
	CouponDiscount int64              `json:"coupon_discount"`
	ShippingFee    int64              `json:"shipping_fee"`
	Total          int64              `json:"total"`
	Currency       string             `json:"currency"`
}

// CheckoutHandlers exposes order placement and price preview.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the checkout endpoints on the /orders group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	var guarded chi.Router = r
	if h.authn != nil {
		guarded = r.With(h.authn.RequireFirebaseAuth())
	}
	guarded.Post("/", h.placeOrder)
	guarded.Post("/preview", h.previewOrder)
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cmd, ok := h.decodeCommand(ctx, w, r, identity.UID)
	if !ok {
		return
	}
	cmd.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))

	order, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *CheckoutHandlers) previewOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cmd, ok := h.decodeCommand(ctx, w, r, identity.UID)
	if !ok {
		return
	}

	quote, err := h.checkout.PreviewOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	lines := make([]orderItemPayload, 0, len(quote.Lines))
	for _, item := range quote.Lines {
		lines = append(lines, orderItemPayload{
			ProductRef:        item.ProductRef,
			VariantRef:        cloneStringPointer(item.VariantRef),
			ProductName:       item.ProductName,
			Size:              item.Size,
			Color:             item.Color,
			Quantity:          item.Quantity,
			OriginalUnitPrice: item.OriginalUnitPrice,
			UnitPrice:         item.UnitPrice,
			DiscountAmount:    item.DiscountAmount,
			OfferTitle:        item.OfferTitle,
			Subtotal:          item.Subtotal,
		})
	}
	writeJSONResponse(w, http.StatusOK, orderQuotePayload{
		Lines:          lines,
		Subtotal:       quote.Subtotal,
		DiscountTotal:  quote.DiscountTotal,
		CouponDiscount: quote.CouponDiscount,
		ShippingFee:    quote.ShippingFee,
		Total:          quote.Total,
		Currency:       quote.Currency,
	})
}

func (h *CheckoutHandlers) decodeCommand(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) (services.PlaceOrderCommand, bool) {
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		}
		return services.PlaceOrderCommand{}, false
	}

	var payload placeOrderRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return services.PlaceOrderCommand{}, false
	}

	lines := make([]services.PlaceOrderLine, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		lines = append(lines, services.PlaceOrderLine{
			VariantID: strings.TrimSpace(line.VariantID),
			Quantity:  line.Quantity,
		})
	}

	return services.PlaceOrderCommand{
		CustomerID:      customerID,
		Lines:           lines,
		ShippingAddress: addressFromPayload(payload.ShippingAddress),
		DeliveryMode:    domain.DeliveryMode(strings.TrimSpace(strings.ToLower(payload.DeliveryMode))),
		PaymentMethod:   strings.TrimSpace(payload.PaymentMethod),
		CouponCode:      strings.TrimSpace(payload.CouponCode),
	}, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCouponNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_eligible", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
