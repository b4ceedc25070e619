package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

func newTestReturnService(t *testing.T, returns *stubReturnRepo, orders *stubOrderRepo, variants *stubVariantRepo, now time.Time) ReturnService {
	t.Helper()
	svc, err := NewReturnService(ReturnServiceDeps{
		Returns:     returns,
		Orders:      orders,
		Variants:    variants,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("id-"),
	})
	if err != nil {
		t.Fatalf("new return service: %v", err)
	}
	return svc
}

func deliveredOrder(id string) domain.Order {
	order := courierOrder(id)
	order.FulfillmentStatus = domain.FulfillmentDelivered
	order.PaymentStatus = domain.PaymentPaid
	return order
}

func TestReturnServiceRequestOpensClaim(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")

	var inserted *domain.ReturnRequest
	returns := &stubReturnRepo{
		insertFn: func(_ context.Context, request domain.ReturnRequest) error {
			inserted = &request
			return nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			if update.Order.FulfillmentStatus != domain.FulfillmentReturnRequested {
				t.Fatalf("expected return_requested, got %s", update.Order.FulfillmentStatus)
			}
			if update.ExpectedFulfillment == nil || *update.ExpectedFulfillment != domain.FulfillmentDelivered {
				t.Fatalf("expected CAS on delivered")
			}
			return update.Order, nil
		},
	}
	svc := newTestReturnService(t, returns, orders, &stubVariantRepo{}, now)

	request, err := svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:     "ord-1",
		OrderItemID: "itm-1",
		CustomerID:  "cust-1",
		Reason:      "wrong size",
	})
	if err != nil {
		t.Fatalf("request return: %v", err)
	}
	if request.Status != domain.ReturnPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}
	if request.Reason != "wrong size" {
		t.Fatalf("reason wrong: %q", request.Reason)
	}
	if inserted == nil || inserted.OrderItemID != "itm-1" {
		t.Fatalf("claim not persisted: %+v", inserted)
	}
}

func TestReturnServiceRequestSanitisesReason(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")
	returns := &stubReturnRepo{}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestReturnService(t, returns, orders, &stubVariantRepo{}, now)

	request, err := svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:     "ord-1",
		OrderItemID: "itm-1",
		CustomerID:  "cust-1",
		Reason:      `<script>alert(1)</script>torn seam`,
	})
	if err != nil {
		t.Fatalf("request return: %v", err)
	}
	if request.Reason != "torn seam" {
		t.Fatalf("markup should be stripped, got %q", request.Reason)
	}
}

func TestReturnServiceRequestRejectsUndeliveredOrder(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	order := courierOrder("ord-1")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestReturnService(t, &stubReturnRepo{}, orders, &stubVariantRepo{}, now)

	_, err := svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:     "ord-1",
		OrderItemID: "itm-1",
		CustomerID:  "cust-1",
		Reason:      "wrong size",
	})
	if !errors.Is(err, ErrReturnNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}
}

func TestReturnServiceRequestRejectsDuplicateClaim(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")
	returns := &stubReturnRepo{
		findOpenFn: func(context.Context, string) (domain.ReturnRequest, error) {
			return domain.ReturnRequest{ID: "ret-1", Status: domain.ReturnPending}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestReturnService(t, returns, orders, &stubVariantRepo{}, now)

	_, err := svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:     "ord-1",
		OrderItemID: "itm-1",
		CustomerID:  "cust-1",
		Reason:      "wrong size",
	})
	if !errors.Is(err, ErrReturnAlreadyOpen) {
		t.Fatalf("expected already open, got %v", err)
	}
}

func TestReturnServiceRequestForbiddenForStranger(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
	}
	svc := newTestReturnService(t, &stubReturnRepo{}, orders, &stubVariantRepo{}, now)

	_, err := svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:     "ord-1",
		OrderItemID: "itm-1",
		CustomerID:  "cust-2",
		Reason:      "wrong size",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestReturnServiceApproveKeepsOrderUntouched(t *testing.T) {
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	returns := &stubReturnRepo{
		findFn: func(context.Context, string) (domain.ReturnRequest, error) {
			return domain.ReturnRequest{ID: "ret-1", OrderID: "ord-1", OrderItemID: "itm-1", Status: domain.ReturnPending}, nil
		},
	}
	orders := &stubOrderRepo{
		updateStatusFn: func(context.Context, repositories.OrderStatusUpdate) (domain.Order, error) {
			t.Fatalf("approval must not touch the order")
			return domain.Order{}, nil
		},
	}
	svc := newTestReturnService(t, returns, orders, &stubVariantRepo{}, now)

	request, err := svc.DecideReturn(context.Background(), DecideReturnCommand{
		ReturnID: "ret-1",
		ActorID:  "admin-1",
		Approve:  true,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if request.Status != domain.ReturnApproved {
		t.Fatalf("expected approved, got %s", request.Status)
	}
	if request.DecidedAt == nil {
		t.Fatalf("decidedAt not stamped")
	}
}

func TestReturnServiceRejectRevertsOrderToDelivered(t *testing.T) {
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentReturnRequested

	returns := &stubReturnRepo{
		findFn: func(context.Context, string) (domain.ReturnRequest, error) {
			return domain.ReturnRequest{ID: "ret-1", OrderID: "ord-1", OrderItemID: "itm-1", Status: domain.ReturnPending}, nil
		},
	}
	reverted := false
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			reverted = true
			if update.Order.FulfillmentStatus != domain.FulfillmentDelivered {
				t.Fatalf("expected revert to delivered, got %s", update.Order.FulfillmentStatus)
			}
			return update.Order, nil
		},
	}
	svc := newTestReturnService(t, returns, orders, &stubVariantRepo{}, now)

	request, err := svc.DecideReturn(context.Background(), DecideReturnCommand{
		ReturnID:  "ret-1",
		ActorID:   "admin-1",
		AdminNote: "outside window",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if request.Status != domain.ReturnRejected {
		t.Fatalf("expected rejected, got %s", request.Status)
	}
	if !reverted {
		t.Fatalf("order status was not reverted")
	}
}

func TestReturnServiceCompleteReleasesStockAndMarksReturned(t *testing.T) {
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	order := deliveredOrder("ord-1")
	order.FulfillmentStatus = domain.FulfillmentReturnRequested

	returns := &stubReturnRepo{
		findFn: func(context.Context, string) (domain.ReturnRequest, error) {
			return domain.ReturnRequest{ID: "ret-1", OrderID: "ord-1", OrderItemID: "itm-1", Status: domain.ReturnApproved}, nil
		},
	}
	var released *repositories.StockReleaseRequest
	variants := &stubVariantRepo{
		releaseFn: func(_ context.Context, req repositories.StockReleaseRequest) (repositories.StockReleaseResult, error) {
			released = &req
			return repositories.StockReleaseResult{Released: map[string]bool{"itm-1": true}}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		updateStatusFn: func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
			if update.Order.FulfillmentStatus != domain.FulfillmentReturned {
				t.Fatalf("expected returned, got %s", update.Order.FulfillmentStatus)
			}
			if update.Order.ReturnedAt == nil {
				t.Fatalf("returnedAt not stamped")
			}
			return update.Order, nil
		},
	}
	svc := newTestReturnService(t, returns, orders, variants, now)

	request, err := svc.DecideReturn(context.Background(), DecideReturnCommand{
		ReturnID: "ret-1",
		ActorID:  "admin-1",
		Approve:  true,
		Complete: true,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if request.Status != domain.ReturnCompleted || request.CompletedAt == nil {
		t.Fatalf("completion not recorded: %+v", request)
	}
	if released == nil {
		t.Fatalf("stock was not released")
	}
	if released.Event != "return" {
		t.Fatalf("expected return release event, got %s", released.Event)
	}
	if len(released.Lines) != 1 || released.Lines[0].Quantity != 2 || released.Lines[0].OrderItemID != "itm-1" {
		t.Fatalf("release lines wrong: %+v", released.Lines)
	}
}

func TestReturnServiceDecideClosedClaimRejected(t *testing.T) {
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	returns := &stubReturnRepo{
		findFn: func(context.Context, string) (domain.ReturnRequest, error) {
			return domain.ReturnRequest{ID: "ret-1", Status: domain.ReturnCompleted}, nil
		},
	}
	svc := newTestReturnService(t, returns, &stubOrderRepo{}, &stubVariantRepo{}, now)

	_, err := svc.DecideReturn(context.Background(), DecideReturnCommand{ReturnID: "ret-1", Approve: true, Complete: true})
	if !errors.Is(err, ErrReturnInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestReturnServiceGetReturnNotFound(t *testing.T) {
	now := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestReturnService(t, &stubReturnRepo{}, &stubOrderRepo{}, &stubVariantRepo{}, now)

	_, err := svc.GetReturn(context.Background(), "ret-missing")
	if !errors.Is(err, ErrReturnNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
