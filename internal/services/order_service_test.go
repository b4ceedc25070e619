package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func sequentialIDs(prefix string) func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s%d", prefix, counter)
	}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, variants *stubVariantRepo, events *captureOrderEvents, now time.Time) OrderService {
	t.Helper()
	deps := OrderServiceDeps{
		Orders:      orders,
		Variants:    variants,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("id-"),
	}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func courierOrder(id string) domain.Order {
	variantID := "var-1"
	return domain.Order{
		ID:                id,
		OrderNumber:       "VS-2025-000001",
		CustomerID:        "cust-1",
		FulfillmentStatus: domain.FulfillmentPending,
		PaymentStatus:     domain.PaymentPending,
		DeliveryMode:      domain.DeliveryCourier,
		Items: []domain.OrderItem{
			{ID: "itm-1", OrderID: id, VariantRef: &variantID, Quantity: 2},
		},
	}
}

func TestOrderServiceTransitionFulfillmentPendingToPacked(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")

	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != "ord-1" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return order, nil
		},
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			if update.ExpectedFulfillment == nil || *update.ExpectedFulfillment != domain.FulfillmentPending {
				t.Fatalf("expected CAS on pending, got %v", update.ExpectedFulfillment)
			}
			if update.History.OldFulfillment != domain.FulfillmentPending || update.History.NewFulfillment != domain.FulfillmentPacked {
				t.Fatalf("history axes wrong: %s -> %s", update.History.OldFulfillment, update.History.NewFulfillment)
			}
			return update.Order, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, events, now)

	updated, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.FulfillmentPacked,
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.FulfillmentStatus != domain.FulfillmentPacked {
		t.Fatalf("expected packed, got %s", updated.FulfillmentStatus)
	}
	if updated.PackedAt == nil || !updated.PackedAt.Equal(now) {
		t.Fatalf("expected packedAt stamped at %v", now)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
		t.Fatalf("expected one status event, got %+v", events.events)
	}
	if events.events[0].PreviousFulfillment != string(domain.FulfillmentPending) {
		t.Fatalf("event previous fulfillment wrong: %s", events.events[0].PreviousFulfillment)
	}
}

func TestOrderServiceRepeatedFulfillmentTargetLeavesAuditTrailAlone(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentPacked

	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return order, nil
		},
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			t.Fatalf("unexpected status write for a repeated target: %+v", update)
			return domain.Order{}, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, events, now)

	updated, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.FulfillmentPacked,
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("repeated transition: %v", err)
	}
	if updated.FulfillmentStatus != domain.FulfillmentPacked {
		t.Fatalf("expected packed, got %s", updated.FulfillmentStatus)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events for a repeated target, got %+v", events.events)
	}
}

func TestOrderServiceRepeatedPaymentTargetLeavesAuditTrailAlone(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.PaymentStatus = domain.PaymentPaid

	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return order, nil
		},
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			t.Fatalf("unexpected status write for a repeated target: %+v", update)
			return domain.Order{}, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, events, now)

	updated, err := svc.TransitionPayment(context.Background(), PaymentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.PaymentPaid,
		ActorID: "webhook",
	})
	if err != nil {
		t.Fatalf("repeated payment transition: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events for a repeated target, got %+v", events.events)
	}
}

func TestOrderServiceCourierShipmentRequiresTracking(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentPacked

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	_, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.FulfillmentShipped,
	})
	if !errors.Is(err, ErrOrderMissingTracking) {
		t.Fatalf("expected missing tracking error, got %v", err)
	}

	updated, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID:         "ord-1",
		Target:          domain.FulfillmentShipped,
		ShippingPartner: "bluedart",
		TrackingID:      "BD123",
	})
	if err != nil {
		t.Fatalf("transition with tracking: %v", err)
	}
	if updated.FulfillmentStatus != domain.FulfillmentShipped {
		t.Fatalf("expected shipped, got %s", updated.FulfillmentStatus)
	}
	if updated.ShippingPartner != "bluedart" || updated.TrackingID != "BD123" {
		t.Fatalf("tracking fields not persisted: %+v", updated)
	}
}

func TestOrderServiceSelfDeliverySkipsShipped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.DeliveryMode = domain.DeliverySelf
	order.FulfillmentStatus = domain.FulfillmentPacked

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	_, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID:         "ord-1",
		Target:          domain.FulfillmentShipped,
		ShippingPartner: "bluedart",
		TrackingID:      "BD123",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for self-delivery shipment, got %v", err)
	}

	updated, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.FulfillmentDelivered,
	})
	if err != nil {
		t.Fatalf("self delivery packed to delivered: %v", err)
	}
	if updated.FulfillmentStatus != domain.FulfillmentDelivered {
		t.Fatalf("expected delivered, got %s", updated.FulfillmentStatus)
	}
}

func TestOrderServiceCourierCannotSkipShipped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentPacked

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	_, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID: "ord-1",
		Target:  domain.FulfillmentDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestOrderServicePaymentTransitions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		from    domain.PaymentStatus
		to      domain.PaymentStatus
		wantErr bool
	}{
		{name: "pending to paid", from: domain.PaymentPending, to: domain.PaymentPaid},
		{name: "pending to failed", from: domain.PaymentPending, to: domain.PaymentFailed},
		{name: "failed retry to paid", from: domain.PaymentFailed, to: domain.PaymentPaid},
		{name: "paid to refunded", from: domain.PaymentPaid, to: domain.PaymentRefunded},
		{name: "pending to refunded rejected", from: domain.PaymentPending, to: domain.PaymentRefunded, wantErr: true},
		{name: "refunded is terminal", from: domain.PaymentRefunded, to: domain.PaymentPaid, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := courierOrder("ord-1")
			order.PaymentStatus = tc.from
			orders := &stubOrderRepo{
				findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
			}
			svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

			updated, err := svc.TransitionPayment(context.Background(), PaymentTransitionCommand{
				OrderID: "ord-1",
				Target:  tc.to,
			})
			if tc.wantErr {
				if !errors.Is(err, ErrOrderInvalidState) {
					t.Fatalf("expected invalid state, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if updated.PaymentStatus != tc.to {
				t.Fatalf("expected %s, got %s", tc.to, updated.PaymentStatus)
			}
			if tc.to == domain.PaymentPaid && updated.PaidAt == nil {
				t.Fatalf("expected paidAt stamped")
			}
		})
	}
}

func TestOrderServiceCancelReleasesStockAndRefundsPaidOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.PaymentStatus = domain.PaymentPaid

	var released *repositories.StockReleaseRequest
	variants := &stubVariantRepo{
		releaseFn: func(_ context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
			released = &req
			return repositories.StockReleaseResult{Released: map[string]bool{"itm-1": true}}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, variants, events, now)

	updated, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID:    "ord-1",
		CustomerID: "cust-1",
		Reason:     "changed my mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.FulfillmentStatus != domain.FulfillmentCancelled {
		t.Fatalf("expected cancelled, got %s", updated.FulfillmentStatus)
	}
	if updated.PaymentStatus != domain.PaymentRefunded || updated.RefundedAt == nil {
		t.Fatalf("paid order should be refunded on cancel: %+v", updated)
	}
	if updated.CancelReason == nil || *updated.CancelReason != "changed my mind" {
		t.Fatalf("cancel reason not recorded")
	}
	if released == nil {
		t.Fatalf("expected stock release")
	}
	if released.Event != "cancel" {
		t.Fatalf("expected cancel release event, got %s", released.Event)
	}
	if len(released.Lines) != 1 || released.Lines[0].Quantity != 2 || released.Lines[0].OrderItemID != "itm-1" {
		t.Fatalf("release lines wrong: %+v", released.Lines)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(events.events))
	}
}

func TestOrderServiceCancelRejectedAfterDispatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, status := range []domain.FulfillmentStatus{
		domain.FulfillmentShipped,
		domain.FulfillmentDelivered,
		domain.FulfillmentCancelled,
	} {
		order := courierOrder("ord-1")
		order.FulfillmentStatus = status
		orders := &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		}
		svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

		_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord-1"})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("status %s: expected invalid state, got %v", status, err)
		}
	}
}

func TestOrderServiceCancelForbiddenForOtherCustomer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID:    "ord-1",
		CustomerID: "cust-2",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOrderServiceGetOrderScopesToCustomer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	if _, err := svc.GetOrder(context.Background(), "ord-1", OrderReadOptions{CustomerID: "cust-1"}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord-1", OrderReadOptions{CustomerID: "cust-2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestOrderServiceTransitionConflictOnStaleExpectation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentPacked
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	expected := domain.FulfillmentPending
	_, err := svc.TransitionFulfillment(context.Background(), FulfillmentTransitionCommand{
		OrderID:  "ord-1",
		Target:   domain.FulfillmentPacked,
		Expected: &expected,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrderServiceNotFoundMapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, repositories.ErrOrderNotFound
		},
	}
	svc := newTestOrderService(t, orders, &stubVariantRepo{}, nil, now)

	_, err := svc.GetOrder(context.Background(), "ord-missing", OrderReadOptions{})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
