package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/auth"
	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const (
	maxAdminBodySize         = 64 * 1024
	defaultLowStockThreshold = 5
)

// AdminHandlers exposes the staff console: order lifecycle transitions,
// return decisions, inventory management, and promotion CRUD.
type AdminHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	returns    services.ReturnService
	stock      services.StockService
	promotions services.PromotionService
}

// AdminHandlersDeps bundles the services required by AdminHandlers.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Returns       services.ReturnService
	Stock         services.StockService
	Promotions    services.PromotionService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:      deps.Authenticator,
		orders:     deps.Orders,
		returns:    deps.Returns,
		stock:      deps.Stock,
		promotions: deps.Promotions,
	}
}

// Routes registers the /admin endpoints. Every route requires a staff or
// admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	var guarded chi.Router = r
	if h.authn != nil {
		guarded = r.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}

	guarded.Get("/orders", h.listOrders)
	guarded.Get("/orders/{orderID}", h.getOrder)
	guarded.Get("/orders/{orderID}/history", h.listHistory)
	guarded.Post("/orders/{orderID}:transition-fulfillment", h.transitionFulfillment)
	guarded.Post("/orders/{orderID}:transition-payment", h.transitionPayment)
	guarded.Post("/orders/{orderID}:cancel", h.cancelOrder)

	guarded.Get("/returns", h.listReturns)
	guarded.Post("/returns/{returnID}:decide", h.decideReturn)

	guarded.Put("/variants/{variantID}", h.upsertVariant)
	guarded.Post("/variants/{variantID}:adjust-stock", h.adjustStock)
	guarded.Get("/variants/low-stock", h.listLowStock)

	guarded.Get("/coupons", h.listCoupons)
	guarded.Put("/coupons/{code}", h.upsertCoupon)

	guarded.Post("/offers", h.upsertOffer)
	guarded.Put("/offers/{offerID}", h.upsertOffer)
	guarded.Delete("/offers/{offerID}", h.deleteOffer)
}

// Orders ---------------------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		CustomerID:        strings.TrimSpace(query.Get("customer_id")),
		FulfillmentStatus: parseFilterValues(query["fulfillment_status"]),
		PaymentStatus:     parseFilterValues(query["payment_status"]),
		DateRange:         dateRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummaryPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// Admin reads are not customer scoped.
	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	entries, err := h.orders.ListHistory(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]historyEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, historyEntryPayload{
			ID:             entry.ID,
			OrderID:        entry.OrderID,
			OldPayment:     string(entry.OldPayment),
			NewPayment:     string(entry.NewPayment),
			OldFulfillment: string(entry.OldFulfillment),
			NewFulfillment: string(entry.NewFulfillment),
			Notes:          entry.Notes,
			ActorID:        entry.ActorID,
			CreatedAt:      formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"history": payload})
}

type fulfillmentTransitionRequest struct {
	Target          string `json:"target"`
	Notes           string `json:"notes"`
	ShippingPartner string `json:"shipping_partner"`
	TrackingID      string `json:"tracking_id"`
	Expected        string `json:"expected"`
}

func (h *AdminHandlers) transitionFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var payload fulfillmentTransitionRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	cmd := services.FulfillmentTransitionCommand{
		OrderID:         orderID,
		Target:          domain.FulfillmentStatus(strings.TrimSpace(strings.ToLower(payload.Target))),
		ActorID:         identity.UID,
		Notes:           strings.TrimSpace(payload.Notes),
		ShippingPartner: strings.TrimSpace(payload.ShippingPartner),
		TrackingID:      strings.TrimSpace(payload.TrackingID),
	}
	if expected := strings.TrimSpace(strings.ToLower(payload.Expected)); expected != "" {
		status := domain.FulfillmentStatus(expected)
		cmd.Expected = &status
	}

	order, err := h.orders.TransitionFulfillment(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type paymentTransitionRequest struct {
	Target string `json:"target"`
	Notes  string `json:"notes"`
}

func (h *AdminHandlers) transitionPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var payload paymentTransitionRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	order, err := h.orders.TransitionPayment(ctx, services.PaymentTransitionCommand{
		OrderID: orderID,
		Target:  domain.PaymentStatus(strings.TrimSpace(strings.ToLower(payload.Target))),
		ActorID: identity.UID,
		Notes:   strings.TrimSpace(payload.Notes),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var payload cancelOrderRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	// Admin cancellations carry no CustomerID so the ownership check is skipped.
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// Returns --------------------------------------------------------------------

func (h *AdminHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultReturnPageSize, maxReturnPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.returns.ListReturns(ctx, services.ReturnListFilter{
		OrderID:    strings.TrimSpace(query.Get("order_id")),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		Status:     parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	items := make([]returnPayload, 0, len(page.Items))
	for _, request := range page.Items {
		items = append(items, buildReturnPayload(request))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"returns":         items,
		"next_page_token": page.NextPageToken,
	})
}

type decideReturnRequest struct {
	Decision  string `json:"decision"`
	AdminNote string `json:"admin_note"`
}

func (h *AdminHandlers) decideReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
	var payload decideReturnRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	cmd := services.DecideReturnCommand{
		ReturnID:  returnID,
		ActorID:   identity.UID,
		AdminNote: strings.TrimSpace(payload.AdminNote),
	}
	switch strings.TrimSpace(strings.ToLower(payload.Decision)) {
	case "approve":
		cmd.Approve = true
	case "complete":
		cmd.Approve = true
		cmd.Complete = true
	case "reject":
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "decision must be approve, reject, or complete", http.StatusBadRequest))
		return
	}

	request, err := h.returns.DecideReturn(ctx, cmd)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReturnPayload(request))
}

// Inventory ------------------------------------------------------------------

type upsertVariantRequest struct {
	ProductRef      string `json:"product_ref"`
	ProductName     string `json:"product_name"`
	Size            string `json:"size"`
	Color           string `json:"color"`
	BasePrice       int64  `json:"base_price"`
	PriceAdjustment int64  `json:"price_adjustment"`
	TotalStock      int    `json:"total_stock"`
}

func (h *AdminHandlers) upsertVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	var payload upsertVariantRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	variant, err := h.stock.UpsertVariant(ctx, services.UpsertVariantCommand{
		Variant: services.Variant{
			ID:              variantID,
			ProductRef:      strings.TrimSpace(payload.ProductRef),
			ProductName:     strings.TrimSpace(payload.ProductName),
			Size:            strings.TrimSpace(payload.Size),
			Color:           strings.TrimSpace(payload.Color),
			BasePrice:       payload.BasePrice,
			PriceAdjustment: payload.PriceAdjustment,
			TotalStock:      payload.TotalStock,
		},
		ActorID: identity.UID,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVariantPayload(variant))
}

type adjustStockRequest struct {
	NewTotal int    `json:"new_total"`
	Reason   string `json:"reason"`
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	var payload adjustStockRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	variant, err := h.stock.AdjustTotalStock(ctx, services.AdjustStockCommand{
		VariantID: variantID,
		NewTotal:  payload.NewTotal,
		ActorID:   identity.UID,
		Reason:    strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVariantPayload(variant))
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	threshold := defaultLowStockThreshold
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = value
	}
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.stock.ListLowStock(ctx, services.LowStockFilter{
		Threshold: threshold,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]variantPayload, 0, len(page.Items))
	for _, variant := range page.Items {
		items = append(items, buildVariantPayload(variant))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"variants":        items,
		"next_page_token": page.NextPageToken,
	})
}

// Promotions -----------------------------------------------------------------

type upsertCouponRequest struct {
	Type          string `json:"type"`
	Value         int64  `json:"value"`
	MinOrderValue int64  `json:"min_order_value"`
	MaxDiscount   int64  `json:"max_discount"`
	UsageLimit    *int   `json:"usage_limit"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	Active        bool   `json:"active"`
}

type couponPayload struct {
	Code          string `json:"code"`
	Type          string `json:"type"`
	Value         int64  `json:"value"`
	MinOrderValue int64  `json:"min_order_value,omitempty"`
	MaxDiscount   int64  `json:"max_discount,omitempty"`
	UsageLimit    *int   `json:"usage_limit,omitempty"`
	UsedCount     int    `json:"used_count"`
	StartsAt      string `json:"starts_at,omitempty"`
	EndsAt        string `json:"ends_at,omitempty"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.promotions.ListCoupons(ctx, services.CouponListFilter{
		ActiveOnly: strings.EqualFold(query.Get("active_only"), "true"),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"coupons":         items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) upsertCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	var payload upsertCouponRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	coupon := services.Coupon{
		Code:          code,
		Type:          domain.DiscountType(strings.TrimSpace(strings.ToLower(payload.Type))),
		Value:         payload.Value,
		MinOrderValue: payload.MinOrderValue,
		MaxDiscount:   payload.MaxDiscount,
		UsageLimit:    payload.UsageLimit,
		Active:        payload.Active,
	}
	if raw := strings.TrimSpace(payload.StartsAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		coupon.StartsAt = ts
	}
	if raw := strings.TrimSpace(payload.EndsAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ends_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		coupon.EndsAt = ts
	}

	saved, err := h.promotions.UpsertCoupon(ctx, services.UpsertCouponCommand{
		Coupon:  coupon,
		ActorID: identity.UID,
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(saved))
}

type upsertOfferRequest struct {
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	Value      int64    `json:"value"`
	Scope      string   `json:"scope"`
	ProductIDs []string `json:"product_ids"`
	VariantIDs []string `json:"variant_ids"`
	StartsAt   string   `json:"starts_at"`
	EndsAt     string   `json:"ends_at"`
}

func (h *AdminHandlers) upsertOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var payload upsertOfferRequest
	if !decodeAdminBody(ctx, w, r, &payload) {
		return
	}

	offer := services.Offer{
		ID:         strings.TrimSpace(chi.URLParam(r, "offerID")),
		Title:      strings.TrimSpace(payload.Title),
		Type:       domain.DiscountType(strings.TrimSpace(strings.ToLower(payload.Type))),
		Value:      payload.Value,
		Scope:      domain.OfferScope(strings.TrimSpace(strings.ToLower(payload.Scope))),
		ProductIDs: payload.ProductIDs,
		VariantIDs: payload.VariantIDs,
	}
	if raw := strings.TrimSpace(payload.StartsAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		offer.StartsAt = ts
	}
	if raw := strings.TrimSpace(payload.EndsAt); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ends_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		offer.EndsAt = ts
	}

	saved, err := h.promotions.UpsertOffer(ctx, services.UpsertOfferCommand{
		Offer:   offer,
		ActorID: identity.UID,
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if offer.ID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildOfferPayload(saved))
}

func (h *AdminHandlers) deleteOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	offerID := strings.TrimSpace(chi.URLParam(r, "offerID"))
	if offerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offer id is required", http.StatusBadRequest))
		return
	}

	if err := h.promotions.DeleteOffer(ctx, offerID); err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeAdminBody reads and unmarshals a JSON body, writing the error response
// itself when the payload is unusable.
func decodeAdminBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		Code:          coupon.Code,
		Type:          string(coupon.Type),
		Value:         coupon.Value,
		MinOrderValue: coupon.MinOrderValue,
		MaxDiscount:   coupon.MaxDiscount,
		UsageLimit:    coupon.UsageLimit,
		UsedCount:     coupon.UsedCount,
		StartsAt:      formatTime(coupon.StartsAt),
		EndsAt:        formatTime(coupon.EndsAt),
		Active:        coupon.Active,
		CreatedAt:     formatTime(coupon.CreatedAt),
		UpdatedAt:     formatTime(coupon.UpdatedAt),
	}
}
