package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const (
	maxAvailabilityVariants  = 50
	maxCouponValidateBytes = 4 * 1024
)

type variantPayload struct {
	ID              string `json:"id"`
	ProductRef      string `json:"product_ref"`
	ProductName     string `json:"product_name"`
	Size            string `json:"size,omitempty"`
	Color           string `json:"color,omitempty"`
	BasePrice       int64  `json:"base_price"`
	PriceAdjustment int64  `json:"price_adjustment,omitempty"`
	TotalStock      int    `json:"total_stock"`
	ReservedStock   int    `json:"reserved_stock"`
	Available       int    `json:"available"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type offerPayload struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	Value      int64    `json:"value"`
	Scope      string   `json:"scope"`
	ProductIDs []string `json:"product_ids,omitempty"`
	VariantIDs []string `json:"variant_ids,omitempty"`
	StartsAt   string   `json:"starts_at,omitempty"`
	EndsAt     string   `json:"ends_at,omitempty"`
}

type validateCouponRequest struct {
	Code       string `json:"code"`
	OrderValue int64  `json:"order_value"`
}

type validateCouponResponse struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Discount int64  `json:"discount,omitempty"`
	Code     string `json:"code,omitempty"`
	Type     string `json:"type,omitempty"`
	Value    int64  `json:"value,omitempty"`
}

// CatalogHandlers exposes the unauthenticated storefront endpoints.
type CatalogHandlers struct {
	stock         services.StockService
	promotions    services.PromotionService
	couponLimiter rateLimiter
}

// CatalogOption customises a CatalogHandlers instance.
type CatalogOption func(*CatalogHandlers)

// WithCouponRateLimit throttles coupon validation per client address.
func WithCouponRateLimit(limit int, window time.Duration) CatalogOption {
	return func(h *CatalogHandlers) {
		h.couponLimiter = newFixedWindowLimiter(limit, window, nil)
	}
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(stock services.StockService, promotions services.PromotionService, opts ...CatalogOption) *CatalogHandlers {
	handlers := &CatalogHandlers{
		stock:      stock,
		promotions: promotions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/availability", h.getAvailability)
	r.Get("/offers", h.listOffers)
	r.Post("/coupons:validate", h.validateCoupon)
}

func (h *CatalogHandlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	variantIDs := parseFilterValues(r.URL.Query()["variant_ids"])
	if len(variantIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "variant_ids is required", http.StatusBadRequest))
		return
	}
	if len(variantIDs) > maxAvailabilityVariants {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many variant ids requested", http.StatusBadRequest))
		return
	}

	variants, err := h.stock.GetAvailability(ctx, variantIDs)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	payload := make(map[string]variantPayload, len(variants))
	for id, variant := range variants {
		payload[id] = buildVariantPayload(variant)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"variants": payload})
}

func (h *CatalogHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}

	offers, err := h.promotions.ListActiveOffers(ctx)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	payload := make([]offerPayload, 0, len(offers))
	for _, offer := range offers {
		payload = append(payload, buildOfferPayload(offer))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"offers": payload})
}

func (h *CatalogHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.couponLimiter != nil && !h.couponLimiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many validation attempts", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCouponValidateBytes)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		}
		return
	}

	var payload validateCouponRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.promotions.ValidateCoupon(ctx, services.ValidateCouponCommand{
		Code:       strings.TrimSpace(payload.Code),
		OrderValue: payload.OrderValue,
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	response := validateCouponResponse{
		Valid:    result.Valid,
		Reason:   result.Reason,
		Discount: result.Discount,
	}
	if result.Coupon != nil {
		response.Code = result.Coupon.Code
		response.Type = string(result.Coupon.Type)
		response.Value = result.Coupon.Value
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStockTotalBelowReserved):
		httpx.WriteError(ctx, w, httpx.NewError("total_below_reserved", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOfferNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("offer_not_found", "offer not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func buildVariantPayload(variant services.Variant) variantPayload {
	return variantPayload{
		ID:              variant.ID,
		ProductRef:      variant.ProductRef,
		ProductName:     variant.ProductName,
		Size:            variant.Size,
		Color:           variant.Color,
		BasePrice:       variant.BasePrice,
		PriceAdjustment: variant.PriceAdjustment,
		TotalStock:      variant.TotalStock,
		ReservedStock:   variant.ReservedStock,
		Available:       variant.Available,
		UpdatedAt:       formatTime(variant.UpdatedAt),
	}
}

func buildOfferPayload(offer services.Offer) offerPayload {
	return offerPayload{
		ID:         offer.ID,
		Title:      offer.Title,
		Type:       string(offer.Type),
		Value:      offer.Value,
		Scope:      string(offer.Scope),
		ProductIDs: offer.ProductIDs,
		VariantIDs: offer.VariantIDs,
		StartsAt:   formatTime(offer.StartsAt),
		EndsAt:     formatTime(offer.EndsAt),
	}
}
