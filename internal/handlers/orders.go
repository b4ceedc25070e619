package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/auth"
	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCancelBodySize = 4 * 1024
)

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes customer-facing order reads and cancellation.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the customer /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	var guarded chi.Router = r
	if h.authn != nil {
		guarded = r.With(h.authn.RequireFirebaseAuth())
	}
	guarded.Get("/", h.listOrders)
	guarded.Get("/{orderID}", h.getOrder)
	guarded.Get("/{orderID}/history", h.listHistory)
	guarded.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

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

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		CustomerID:        strings.TrimSpace(identity.UID),
		FulfillmentStatus: parseFilterValues(query["fulfillment_status"]),
		PaymentStatus:     parseFilterValues(query["payment_status"]),
		DateRange:         dateRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{CustomerID: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
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
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// Ownership check happens on the order read before history is exposed.
	if _, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{CustomerID: identity.UID}); err != nil {
		writeOrderError(ctx, w, err)
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

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var payload cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// Reason is optional on customer cancellations.
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    orderID,
		ActorID:    identity.UID,
		CustomerID: identity.UID,
		Reason:     strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another customer", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderMissingTracking):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_required", "shipping partner and tracking id are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type orderListResponse struct {
	Orders        []orderSummaryPayload `json:"orders"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID                string `json:"id"`
	OrderNumber       string `json:"order_number"`
	FulfillmentStatus string `json:"fulfillment_status"`
	PaymentStatus     string `json:"payment_status"`
	DeliveryMode      string `json:"delivery_mode"`
	ItemCount         int    `json:"item_count"`
	Total             int64  `json:"total"`
	Currency          string `json:"currency"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID                string  `json:"id"`
	ProductRef        string  `json:"product_ref"`
	VariantRef        *string `json:"variant_ref,omitempty"`
	ProductName       string  `json:"product_name"`
	Size              string  `json:"size,omitempty"`
	Color             string  `json:"color,omitempty"`
	Quantity          int     `json:"quantity"`
	OriginalUnitPrice int64   `json:"original_unit_price"`
	UnitPrice         int64   `json:"unit_price"`
	DiscountAmount    int64   `json:"discount_amount,omitempty"`
	OfferTitle        string  `json:"offer_title,omitempty"`
	Subtotal          int64   `json:"subtotal"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	OrderNumber       string             `json:"order_number"`
	CustomerID        string             `json:"customer_id"`
	ShippingAddress   addressPayload     `json:"shipping_address"`
	Items             []orderItemPayload `json:"items"`
	Subtotal          int64              `json:"subtotal"`
	DiscountTotal     int64              `json:"discount_total"`
	CouponCode        string             `json:"coupon_code,omitempty"`
	CouponDiscount    int64              `json:"coupon_discount,omitempty"`
	ShippingFee       int64              `json:"shipping_fee"`
	Total             int64              `json:"total"`
	Currency          string             `json:"currency"`
	PaymentMethod     string             `json:"payment_method"`
	PaymentStatus     string             `json:"payment_status"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	DeliveryMode      string             `json:"delivery_mode"`
	ShippingPartner   string             `json:"shipping_partner,omitempty"`
	TrackingID        string             `json:"tracking_id,omitempty"`
	CancelReason      *string            `json:"cancel_reason,omitempty"`
	CreatedAt         string             `json:"created_at"`
	UpdatedAt         string             `json:"updated_at,omitempty"`
	PackedAt          string             `json:"packed_at,omitempty"`
	ShippedAt         string             `json:"shipped_at,omitempty"`
	DeliveredAt       string             `json:"delivered_at,omitempty"`
	CancelledAt       string             `json:"cancelled_at,omitempty"`
	ReturnedAt        string             `json:"returned_at,omitempty"`
	PaidAt            string             `json:"paid_at,omitempty"`
	RefundedAt        string             `json:"refunded_at,omitempty"`
}

func buildOrderSummaryPayload(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		FulfillmentStatus: string(order.FulfillmentStatus),
		PaymentStatus:     string(order.PaymentStatus),
		DeliveryMode:      string(order.DeliveryMode),
		ItemCount:         len(order.Items),
		Total:             order.Total,
		Currency:          order.Currency,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:                item.ID,
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
	return orderPayload{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		ShippingAddress:   buildAddressPayload(order.ShippingAddress),
		Items:             items,
		Subtotal:          order.Subtotal,
		DiscountTotal:     order.DiscountTotal,
		CouponCode:        order.CouponCode,
		CouponDiscount:    order.CouponDiscount,
		ShippingFee:       order.ShippingFee,
		Total:             order.Total,
		Currency:          order.Currency,
		PaymentMethod:     order.PaymentMethod,
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		DeliveryMode:      string(order.DeliveryMode),
		ShippingPartner:   order.ShippingPartner,
		TrackingID:        order.TrackingID,
		CancelReason:      cloneStringPointer(order.CancelReason),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		PackedAt:          formatTime(pointerTime(order.PackedAt)),
		ShippedAt:         formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:       formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:       formatTime(pointerTime(order.CancelledAt)),
		ReturnedAt:        formatTime(pointerTime(order.ReturnedAt)),
		PaidAt:            formatTime(pointerTime(order.PaidAt)),
		RefundedAt:        formatTime(pointerTime(order.RefundedAt)),
	}
}

type historyEntryPayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	OldPayment     string `json:"old_payment"`
	NewPayment     string `json:"new_payment"`
	OldFulfillment string `json:"old_fulfillment"`
	NewFulfillment string `json:"new_fulfillment"`
	Notes          string `json:"notes,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}
