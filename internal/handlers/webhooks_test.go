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
	"github.com/vastra-shop/api/internal/services"
)

func newWebhookTestRouter(orders services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandlers(orders).Routes(r)
	return r
}

func TestPaymentWebhookTransitionsPaymentAxis(t *testing.T) {
	cases := []struct {
		event  string
		target domain.PaymentStatus
	}{
		{event: "payment.captured", target: domain.PaymentPaid},
		{event: "payment.failed", target: domain.PaymentFailed},
		{event: "payment.refunded", target: domain.PaymentRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			var gotCmd services.PaymentTransitionCommand
			orders := &stubOrderService{
				transitionPaymentFn: func(ctx context.Context, cmd services.PaymentTransitionCommand) (services.Order, error) {
					gotCmd = cmd
					order := sampleOrder()
					order.PaymentStatus = cmd.Target
					return order, nil
				},
			}
			router := newWebhookTestRouter(orders)

			body := `{"order_id": "ord-1", "event": "` + tc.event + `", "reference": "pay_123"}`
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))

			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if gotCmd.OrderID != "ord-1" || gotCmd.Target != tc.target {
				t.Fatalf("unexpected command %+v", gotCmd)
			}
			if gotCmd.ActorID != webhookActorID {
				t.Fatalf("unexpected actor %q", gotCmd.ActorID)
			}
			if !strings.Contains(gotCmd.Notes, "pay_123") {
				t.Fatalf("expected reference in notes, got %q", gotCmd.Notes)
			}
		})
	}
}

func TestPaymentWebhookIgnoresUnknownEvents(t *testing.T) {
	orders := &stubOrderService{
		transitionPaymentFn: func(ctx context.Context, cmd services.PaymentTransitionCommand) (services.Order, error) {
			t.Fatalf("unknown events must not transition orders")
			return services.Order{}, nil
		},
	}
	router := newWebhookTestRouter(orders)

	body := `{"order_id": "ord-1", "event": "payment.created"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 acknowledgement, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["ignored"] != true {
		t.Fatalf("expected ignored flag, got %v", response)
	}
}

func TestPaymentWebhookMapsOrderNotFound(t *testing.T) {
	orders := &stubOrderService{
		transitionPaymentFn: func(ctx context.Context, cmd services.PaymentTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newWebhookTestRouter(orders)

	body := `{"order_id": "ord-99", "event": "payment.captured"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
