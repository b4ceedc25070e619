package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-shop/api/internal/platform/auth"
	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

const (
	defaultReturnPageSize = 20
	maxReturnPageSize     = 100
	maxReturnBodySize     = 16 * 1024
)

type requestReturnPayload struct {
	OrderID     string `json:"order_id"`
	OrderItemID string `json:"order_item_id"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes"`
}

type returnPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	OrderItemID string `json:"order_item_id"`
	ProductRef  string `json:"product_ref,omitempty"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes,omitempty"`
	Status      string `json:"status"`
	AdminNote   string `json:"admin_note,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	DecidedAt   string `json:"decided_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ReturnHandlers exposes customer-facing return claim endpoints.
type ReturnHandlers struct {
	authn   *auth.Authenticator
	returns services.ReturnService
}

// NewReturnHandlers constructs a new ReturnHandlers instance.
func NewReturnHandlers(authn *auth.Authenticator, returns services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{
		authn:   authn,
		returns: returns,
	}
}

// Routes registers the /returns endpoints.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	var guarded chi.Router = r
	if h.authn != nil {
		guarded = r.With(h.authn.RequireFirebaseAuth())
	}
	guarded.Post("/", h.requestReturn)
	guarded.Get("/", h.listReturns)
	guarded.Get("/{returnID}", h.getReturn)
}

func (h *ReturnHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxReturnBodySize)
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

	var payload requestReturnPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	request, err := h.returns.RequestReturn(ctx, services.RequestReturnCommand{
		OrderID:     strings.TrimSpace(payload.OrderID),
		OrderItemID: strings.TrimSpace(payload.OrderItemID),
		CustomerID:  identity.UID,
		Reason:      payload.Reason,
		Notes:       payload.Notes,
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReturnPayload(request))
}

func (h *ReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultReturnPageSize, maxReturnPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.returns.ListReturns(ctx, services.ReturnListFilter{
		CustomerID: identity.UID,
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

func (h *ReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
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
	if returnID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "return id is required", http.StatusBadRequest))
		return
	}

	request, err := h.returns.GetReturn(ctx, returnID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	if request.CustomerID != identity.UID && !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("return_not_found", "return not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReturnPayload(request))
}

func writeReturnError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReturnInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReturnNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_found", "return not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReturnNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_eligible", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReturnAlreadyOpen):
		httpx.WriteError(ctx, w, httpx.NewError("return_already_open", "an open return already exists for this item", http.StatusConflict))
	case errors.Is(err, services.ErrReturnInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		writeOrderError(ctx, w, err)
	}
}

func buildReturnPayload(request services.ReturnRequest) returnPayload {
	return returnPayload{
		ID:          request.ID,
		OrderID:     request.OrderID,
		OrderItemID: request.OrderItemID,
		ProductRef:  request.ProductRef,
		Reason:      request.Reason,
		Notes:       request.Notes,
		Status:      string(request.Status),
		AdminNote:   request.AdminNote,
		CreatedAt:   formatTime(request.CreatedAt),
		UpdatedAt:   formatTime(request.UpdatedAt),
		DecidedAt:   formatTime(pointerTime(request.DecidedAt)),
		CompletedAt: formatTime(pointerTime(request.CompletedAt)),
	}
}
