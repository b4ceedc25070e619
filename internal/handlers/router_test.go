package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/platform/auth"
	"github.com/vastra-shop/api/internal/services"
)

func TestRouterServesHealthProbes(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterUnknownRouteReturnsJSONError(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected %q error code, got %v", errorNotFoundCode, body["error"])
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestRouterMountsCatalogGroup(t *testing.T) {
	promotions := &stubPromotionService{
		listOffersFn: func(ctx context.Context) ([]services.Offer, error) {
			return []services.Offer{{ID: "off-1", Title: "Sale", Type: domain.DiscountFlat, Value: 50, Scope: domain.OfferScopeAll}}, nil
		},
	}
	router := NewRouter(
		WithCatalogRoutes(NewCatalogHandlers(&stubStockService{}, promotions).Routes),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/offers", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterSharesOrdersGroupBetweenCheckoutAndReads(t *testing.T) {
	checkout := &stubCheckoutService{
		previewFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.OrderQuote, error) {
			return services.OrderQuote{Currency: "INR"}, nil
		},
	}
	orders := &stubOrderService{
		getFn: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := NewRouter(
		WithCheckoutRoutes(NewCheckoutHandlers(nil, checkout).Routes),
		WithOrderRoutes(NewOrderHandlers(nil, orders).Routes),
		WithOrderMiddlewares(testIdentityMiddleware("cust-1")),
	)

	rr := httptest.NewRecorder()
	body := strings.NewReader(placeOrderBody)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/preview", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterAppliesWebhookMiddlewares(t *testing.T) {
	var middlewareHit bool
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middlewareHit = true
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/payments", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithWebhookMiddlewares(guard),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader("{}")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !middlewareHit {
		t.Fatalf("expected webhook middleware to run")
	}
}

func testIdentityMiddleware(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: uid})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
