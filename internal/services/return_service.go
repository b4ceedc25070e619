package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

const returnIDPrefix = "ret_"

var (
	// ErrReturnInvalidInput signals the caller provided invalid data.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnNotFound indicates the return request could not be located.
	ErrReturnNotFound = errors.New("return: not found")
	// ErrReturnNotEligible indicates the order or item cannot be returned.
	ErrReturnNotEligible = errors.New("return: not eligible")
	// ErrReturnAlreadyOpen indicates the item already has an open claim.
	ErrReturnAlreadyOpen = errors.New("return: request already open")
	// ErrReturnInvalidState indicates the decision does not fit the claim state.
	ErrReturnInvalidState = errors.New("return: invalid state")
)

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Returns     repositories.ReturnRepository
	Orders      repositories.OrderRepository
	Variants    repositories.VariantRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	returns    repositories.ReturnRepository
	orders     repositories.OrderRepository
	variants   repositories.VariantRepository
	unitOfWork repositories.UnitOfWork
	sanitizer  *bluemonday.Policy
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("return service: variant repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &returnService{
		returns:    deps.Returns,
		orders:     deps.Orders,
		variants:   deps.Variants,
		unitOfWork: unit,
		sanitizer:  bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// RequestReturn opens a claim against a delivered item and flips the order to
// return_requested. Only one open claim per item is allowed.
func (s *returnService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (ReturnRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.OrderItemID)
	customerID := strings.TrimSpace(cmd.CustomerID)
	reason := s.sanitize(cmd.Reason)
	if orderID == "" || itemID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: order id and item id are required", ErrReturnInvalidInput)
	}
	if customerID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: customer id is required", ErrReturnInvalidInput)
	}
	if reason == "" {
		return ReturnRequest{}, fmt.Errorf("%w: reason is required", ErrReturnInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ReturnRequest{}, s.mapOrderError(err)
	}
	if order.CustomerID != customerID {
		return ReturnRequest{}, ErrOrderForbidden
	}
	if order.FulfillmentStatus != domain.FulfillmentDelivered {
		return ReturnRequest{}, fmt.Errorf("%w: order is not delivered", ErrReturnNotEligible)
	}

	item, found := findOrderItem(order, itemID)
	if !found {
		return ReturnRequest{}, fmt.Errorf("%w: item does not belong to order", ErrReturnInvalidInput)
	}

	if _, err := s.returns.FindOpenByItem(ctx, itemID); err == nil {
		return ReturnRequest{}, ErrReturnAlreadyOpen
	} else if !errors.Is(err, repositories.ErrReturnNotFound) {
		return ReturnRequest{}, err
	}

	now := s.now()
	request := ReturnRequest{
		ID:          returnIDPrefix + s.newID(),
		OrderID:     orderID,
		OrderItemID: itemID,
		ProductRef:  item.ProductRef,
		CustomerID:  customerID,
		Reason:      reason,
		Notes:       s.sanitize(cmd.Notes),
		Status:      domain.ReturnPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	prevFulfillment := order.FulfillmentStatus
	order.FulfillmentStatus = domain.FulfillmentReturnRequested
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.returns.Insert(txCtx, domain.ReturnRequest(request)); err != nil {
			return err
		}
		history := domain.StatusHistoryEntry{
			ID:             historyIDPrefix + s.newID(),
			OrderID:        orderID,
			OldPayment:     order.PaymentStatus,
			NewPayment:     order.PaymentStatus,
			OldFulfillment: prevFulfillment,
			NewFulfillment: order.FulfillmentStatus,
			Notes:          "return requested: " + reason,
			ActorID:        customerID,
			CreatedAt:      now,
		}
		if _, err := s.orders.UpdateStatus(txCtx, repositories.OrderStatusUpdate{
			Order:               order,
			ExpectedFulfillment: &prevFulfillment,
			History:             history,
		}); err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	s.publishEvent(ctx, order, prevFulfillment, customerID, now, map[string]any{
		"returnId": request.ID,
		"itemId":   itemID,
	})
	return request, nil
}

// DecideReturn records the admin decision. Rejection is terminal and reverts
// the order to delivered. Completion releases the reserved units exactly
// once through the release ledger and marks the order returned.
func (s *returnService) DecideReturn(ctx context.Context, cmd DecideReturnCommand) (ReturnRequest, error) {
	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}

	request, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, repositories.ErrReturnNotFound) {
			return ReturnRequest{}, ErrReturnNotFound
		}
		return ReturnRequest{}, err
	}

	now := s.now()
	adminNote := s.sanitize(cmd.AdminNote)
	actor := strings.TrimSpace(cmd.ActorID)

	switch {
	case !cmd.Approve:
		if request.Status != domain.ReturnPending {
			return ReturnRequest{}, fmt.Errorf("%w: only pending requests can be rejected", ErrReturnInvalidState)
		}
		return s.reject(ctx, request, adminNote, actor, now)
	case cmd.Complete:
		if request.Status != domain.ReturnPending && request.Status != domain.ReturnApproved {
			return ReturnRequest{}, fmt.Errorf("%w: request already closed", ErrReturnInvalidState)
		}
		return s.complete(ctx, request, adminNote, actor, now)
	default:
		if request.Status != domain.ReturnPending {
			return ReturnRequest{}, fmt.Errorf("%w: only pending requests can be approved", ErrReturnInvalidState)
		}
		request.Status = domain.ReturnApproved
		request.AdminNote = adminNote
		request.DecidedAt = &now
		request.UpdatedAt = now
		if err := s.returns.Update(ctx, domain.ReturnRequest(request)); err != nil {
			return ReturnRequest{}, err
		}
		return request, nil
	}
}

func (s *returnService) reject(ctx context.Context, request ReturnRequest, adminNote, actor string, now time.Time) (ReturnRequest, error) {
	order, err := s.orders.FindByID(ctx, request.OrderID)
	if err != nil {
		return ReturnRequest{}, s.mapOrderError(err)
	}

	request.Status = domain.ReturnRejected
	request.AdminNote = adminNote
	request.DecidedAt = &now
	request.UpdatedAt = now

	prevFulfillment := order.FulfillmentStatus
	order.FulfillmentStatus = domain.FulfillmentDelivered
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.returns.Update(txCtx, domain.ReturnRequest(request)); err != nil {
			return err
		}
		if prevFulfillment == domain.FulfillmentDelivered {
			return nil
		}
		history := domain.StatusHistoryEntry{
			ID:             historyIDPrefix + s.newID(),
			OrderID:        order.ID,
			OldPayment:     order.PaymentStatus,
			NewPayment:     order.PaymentStatus,
			OldFulfillment: prevFulfillment,
			NewFulfillment: order.FulfillmentStatus,
			Notes:          "return rejected",
			ActorID:        actor,
			CreatedAt:      now,
		}
		if _, err := s.orders.UpdateStatus(txCtx, repositories.OrderStatusUpdate{
			Order:               order,
			ExpectedFulfillment: &prevFulfillment,
			History:             history,
		}); err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	s.publishEvent(ctx, order, prevFulfillment, actor, now, map[string]any{"returnId": request.ID})
	return request, nil
}

func (s *returnService) complete(ctx context.Context, request ReturnRequest, adminNote, actor string, now time.Time) (ReturnRequest, error) {
	order, err := s.orders.FindByID(ctx, request.OrderID)
	if err != nil {
		return ReturnRequest{}, s.mapOrderError(err)
	}
	item, found := findOrderItem(order, request.OrderItemID)
	if !found {
		return ReturnRequest{}, fmt.Errorf("%w: order item missing", ErrReturnInvalidState)
	}

	request.Status = domain.ReturnCompleted
	if adminNote != "" {
		request.AdminNote = adminNote
	}
	if request.DecidedAt == nil {
		request.DecidedAt = &now
	}
	request.CompletedAt = &now
	request.UpdatedAt = now

	prevFulfillment := order.FulfillmentStatus
	order.FulfillmentStatus = domain.FulfillmentReturned
	order.ReturnedAt = &now
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if item.VariantRef != nil && strings.TrimSpace(*item.VariantRef) != "" {
			result, err := s.variants.Release(txCtx, repositories.StockReleaseRequest{
				Lines: []repositories.StockLine{{
					VariantID:   strings.TrimSpace(*item.VariantRef),
					OrderItemID: item.ID,
					Quantity:    item.Quantity,
				}},
				OrderRef: order.ID,
				Event:    releaseEventReturn,
				Reason:   "return completed",
				Now:      now,
			})
			if err != nil {
				return err
			}
			for itemID, excess := range result.Clamped {
				s.logger(txCtx, "stock_release_clamped", map[string]any{
					"orderId": order.ID,
					"itemId":  itemID,
					"excess":  excess,
					"event":   releaseEventReturn,
				})
			}
		}
		if err := s.returns.Update(txCtx, domain.ReturnRequest(request)); err != nil {
			return err
		}
		history := domain.StatusHistoryEntry{
			ID:             historyIDPrefix + s.newID(),
			OrderID:        order.ID,
			OldPayment:     order.PaymentStatus,
			NewPayment:     order.PaymentStatus,
			OldFulfillment: prevFulfillment,
			NewFulfillment: order.FulfillmentStatus,
			Notes:          "return completed",
			ActorID:        actor,
			CreatedAt:      now,
		}
		if _, err := s.orders.UpdateStatus(txCtx, repositories.OrderStatusUpdate{
			Order:               order,
			ExpectedFulfillment: &prevFulfillment,
			History:             history,
		}); err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return ReturnRequest{}, err
	}

	s.publishEvent(ctx, order, prevFulfillment, actor, now, map[string]any{"returnId": request.ID})
	return request, nil
}

func (s *returnService) GetReturn(ctx context.Context, returnID string) (ReturnRequest, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	request, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, repositories.ErrReturnNotFound) {
			return ReturnRequest{}, ErrReturnNotFound
		}
		return ReturnRequest{}, err
	}
	return request, nil
}

func (s *returnService) ListReturns(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error) {
	page, err := s.returns.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[ReturnRequest]{}, err
	}
	return page, nil
}

func (s *returnService) sanitize(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *returnService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	if errors.Is(err, repositories.ErrOrderStatusConflict) {
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}
	return err
}

func (s *returnService) publishEvent(ctx context.Context, order Order, prevFulfillment domain.FulfillmentStatus, actor string, now time.Time, metadata map[string]any) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:                orderEventStatusChanged,
		OrderID:             order.ID,
		OrderNumber:         order.OrderNumber,
		CustomerID:          order.CustomerID,
		PreviousFulfillment: string(prevFulfillment),
		CurrentFulfillment:  string(order.FulfillmentStatus),
		PreviousPayment:     string(order.PaymentStatus),
		CurrentPayment:      string(order.PaymentStatus),
		ActorID:             actor,
		OccurredAt:          now,
		Metadata:            metadata,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":  event.Type,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *returnService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *returnService) now() time.Time {
	return s.clock()
}

func findOrderItem(order Order, itemID string) (OrderItem, bool) {
	for _, item := range order.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}
