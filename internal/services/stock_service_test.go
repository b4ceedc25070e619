package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

func newTestStockService(t *testing.T, variants *stubVariantRepo, events *captureStockEvents, now time.Time) StockService {
	t.Helper()
	deps := StockServiceDeps{
		Variants: variants,
		Clock:    fixedClock(now),
	}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewStockService(deps)
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	return svc
}

func TestStockServiceAdjustTotalEmitsEvent(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	variants := &stubVariantRepo{
		findFn: func(_ context.Context, variantID string) (domain.Variant, error) {
			return domain.Variant{ID: variantID, ProductRef: "prod-1", TotalStock: 10, ReservedStock: 3, Available: 7}, nil
		},
		adjustFn: func(_ context.Context, req repositories.StockAdjustRequest) (domain.Variant, error) {
			if req.NewTotal != 15 {
				t.Fatalf("expected new total 15, got %d", req.NewTotal)
			}
			return domain.Variant{ID: req.VariantID, ProductRef: "prod-1", TotalStock: 15, ReservedStock: 3, Available: 12}, nil
		},
	}
	events := &captureStockEvents{}
	svc := newTestStockService(t, variants, events, now)

	variant, err := svc.AdjustTotalStock(context.Background(), AdjustStockCommand{
		VariantID: "var-1",
		NewTotal:  15,
		ActorID:   "admin-1",
		Reason:    "restock",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if variant.Available != 12 {
		t.Fatalf("expected available 12, got %d", variant.Available)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(events.events))
	}
	event := events.events[0]
	if event.Type != eventStockAdjust || event.DeltaTotal != 5 {
		t.Fatalf("event wrong: type=%s deltaTotal=%d", event.Type, event.DeltaTotal)
	}
	if event.Metadata["actorId"] != "admin-1" || event.Metadata["reason"] != "restock" {
		t.Fatalf("event metadata wrong: %+v", event.Metadata)
	}
}

func TestStockServiceAdjustRejectsTotalBelowReserved(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	variants := &stubVariantRepo{
		findFn: func(_ context.Context, variantID string) (domain.Variant, error) {
			return domain.Variant{ID: variantID, TotalStock: 10, ReservedStock: 8}, nil
		},
		adjustFn: func(context.Context, repositories.StockAdjustRequest) (domain.Variant, error) {
			return domain.Variant{}, repositories.NewStockError(repositories.StockErrorTotalBelowReserved, "total 5 below reserved 8", nil)
		},
	}
	svc := newTestStockService(t, variants, nil, now)

	_, err := svc.AdjustTotalStock(context.Background(), AdjustStockCommand{VariantID: "var-1", NewTotal: 5})
	if !errors.Is(err, ErrStockTotalBelowReserved) {
		t.Fatalf("expected total below reserved, got %v", err)
	}
}

func TestStockServiceAdjustValidation(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestStockService(t, &stubVariantRepo{}, nil, now)

	if _, err := svc.AdjustTotalStock(context.Background(), AdjustStockCommand{NewTotal: 5}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected invalid input for missing id, got %v", err)
	}
	if _, err := svc.AdjustTotalStock(context.Background(), AdjustStockCommand{VariantID: "var-1", NewTotal: -1}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected invalid input for negative total, got %v", err)
	}
}

func TestStockServiceGetAvailabilityRequiresIDs(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestStockService(t, &stubVariantRepo{}, nil, now)

	if _, err := svc.GetAvailability(context.Background(), nil); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStockServiceGetAvailabilityMapsVariantNotFound(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	variants := &stubVariantRepo{
		findManyFn: func(context.Context, []string) (map[string]domain.Variant, error) {
			return nil, repositories.NewStockError(repositories.StockErrorVariantNotFound, "var-ghost", nil)
		},
	}
	svc := newTestStockService(t, variants, nil, now)

	_, err := svc.GetAvailability(context.Background(), []string{"var-ghost"})
	if !errors.Is(err, ErrStockVariantNotFound) {
		t.Fatalf("expected variant not found, got %v", err)
	}
}

func TestStockServiceUpsertVariantValidation(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestStockService(t, &stubVariantRepo{}, nil, now)

	cases := []struct {
		name    string
		variant domain.Variant
	}{
		{name: "missing id", variant: domain.Variant{ProductRef: "prod-1"}},
		{name: "missing product ref", variant: domain.Variant{ID: "var-1"}},
		{name: "negative effective price", variant: domain.Variant{ID: "var-1", ProductRef: "prod-1", BasePrice: 100, PriceAdjustment: -200}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertVariant(context.Background(), UpsertVariantCommand{Variant: tc.variant}); !errors.Is(err, ErrStockInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestStockServiceUpsertVariantStampsTimestamps(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	variants := &stubVariantRepo{
		upsertFn: func(_ context.Context, variant domain.Variant) (domain.Variant, error) {
			if !variant.CreatedAt.Equal(now) || !variant.UpdatedAt.Equal(now) {
				t.Fatalf("timestamps not stamped: created=%v updated=%v", variant.CreatedAt, variant.UpdatedAt)
			}
			return variant, nil
		},
	}
	svc := newTestStockService(t, variants, nil, now)

	if _, err := svc.UpsertVariant(context.Background(), UpsertVariantCommand{
		Variant: domain.Variant{ID: "var-1", ProductRef: "prod-1", BasePrice: 500},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestStockServiceListLowStockPassesFilter(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	variants := &stubVariantRepo{
		listLowFn: func(_ context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.Variant], error) {
			if query.Threshold != 3 || query.PageSize != 10 || query.PageToken != "tok" {
				t.Fatalf("filter not forwarded: %+v", query)
			}
			return domain.CursorPage[domain.Variant]{
				Items: []domain.Variant{{ID: "var-1", Available: 2}},
			}, nil
		},
	}
	svc := newTestStockService(t, variants, nil, now)

	page, err := svc.ListLowStock(context.Background(), LowStockFilter{
		Threshold:  3,
		Pagination: domain.Pagination{PageSize: 10, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "var-1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
