package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

const (
	eventStockReserve = "stock.reserve"
	eventStockRelease = "stock.release"
	eventStockAdjust  = "stock.adjust"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates the requested quantity exceeds availability.
	ErrStockInsufficient = errors.New("stock: insufficient stock")
	// ErrStockVariantNotFound indicates the variant has no ledger record.
	ErrStockVariantNotFound = errors.New("stock: variant not found")
	// ErrStockTotalBelowReserved indicates an adjustment below committed units.
	ErrStockTotalBelowReserved = errors.New("stock: total below reserved")
)

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Variants repositories.VariantRepository
	Events   StockEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	repo   repositories.VariantRepository
	events StockEventPublisher
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Variants == nil {
		return nil, errors.New("stock service: variant repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		repo:   deps.Variants,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *stockService) GetAvailability(ctx context.Context, variantIDs []string) (map[string]Variant, error) {
	if len(variantIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one variant id is required", ErrStockInvalidInput)
	}
	variants, err := s.repo.FindMany(ctx, variantIDs)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return variants, nil
}

func (s *stockService) AdjustTotalStock(ctx context.Context, cmd AdjustStockCommand) (Variant, error) {
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return Variant{}, fmt.Errorf("%w: variant id is required", ErrStockInvalidInput)
	}
	if cmd.NewTotal < 0 {
		return Variant{}, fmt.Errorf("%w: total must be >= 0", ErrStockInvalidInput)
	}

	now := s.now()
	before, err := s.repo.FindByID(ctx, variantID)
	if err != nil {
		return Variant{}, s.mapRepositoryError(err)
	}

	variant, err := s.repo.AdjustTotal(ctx, repositories.StockAdjustRequest{
		VariantID: variantID,
		NewTotal:  cmd.NewTotal,
		Now:       now,
	})
	if err != nil {
		return Variant{}, s.mapRepositoryError(err)
	}

	metadata := map[string]any{}
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		metadata["actorId"] = actor
	}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}
	s.logEventFailure(ctx, s.emitStockEvent(ctx, eventStockAdjust, variant, stockDelta{Total: variant.TotalStock - before.TotalStock}, "", metadata))

	return variant, nil
}

func (s *stockService) UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (Variant, error) {
	variant := cmd.Variant
	if strings.TrimSpace(variant.ID) == "" {
		return Variant{}, fmt.Errorf("%w: variant id is required", ErrStockInvalidInput)
	}
	if strings.TrimSpace(variant.ProductRef) == "" {
		return Variant{}, fmt.Errorf("%w: product ref is required", ErrStockInvalidInput)
	}
	if variant.BasePrice < 0 || variant.BasePrice+variant.PriceAdjustment < 0 {
		return Variant{}, fmt.Errorf("%w: effective price must be >= 0", ErrStockInvalidInput)
	}

	now := s.now()
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	variant.UpdatedAt = now

	updated, err := s.repo.Upsert(ctx, variant)
	if err != nil {
		return Variant{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "variant_upserted", map[string]any{
		"variantId":  updated.ID,
		"productRef": updated.ProductRef,
		"actorId":    strings.TrimSpace(cmd.ActorID),
	})
	return updated, nil
}

func (s *stockService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[Variant], error) {
	page, err := s.repo.ListLowStock(ctx, repositories.LowStockQuery{
		Threshold: filter.Threshold,
		PageSize:  filter.Pagination.PageSize,
		PageToken: filter.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[Variant]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *stockService) now() time.Time {
	return s.clock()
}

func (s *stockService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrStockVariantNotFound, stockErr.Message)
		case repositories.StockErrorTotalBelowReserved:
			return fmt.Errorf("%w: %s", ErrStockTotalBelowReserved, stockErr.Message)
		case repositories.StockErrorInvalidRelease:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}

	return err
}

func (s *stockService) emitStockEvent(ctx context.Context, eventType string, variant Variant, delta stockDelta, orderRef string, metadata map[string]any) error {
	if s.events == nil {
		return nil
	}

	event := StockEvent{
		Type:          eventType,
		VariantID:     variant.ID,
		ProductRef:    variant.ProductRef,
		OrderRef:      strings.TrimSpace(orderRef),
		DeltaReserved: delta.Reserved,
		DeltaTotal:    delta.Total,
		TotalStock:    variant.TotalStock,
		ReservedStock: variant.ReservedStock,
		Available:     variant.Available,
		OccurredAt:    s.now(),
	}
	if len(metadata) > 0 {
		copied := make(map[string]any, len(metadata))
		for k, v := range metadata {
			copied[k] = v
		}
		event.Metadata = copied
	}

	return s.events.PublishStockEvent(ctx, event)
}

func (s *stockService) logEventFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if s.logger != nil {
		s.logger(ctx, "stock_event_publish_failed", map[string]any{"error": err.Error()})
	}
}

type stockDelta struct {
	Total    int
	Reserved int
}
