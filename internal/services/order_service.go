package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix   = "ord_"
	historyIDPrefix = "hist_"

	releaseEventCancel = "cancel"
	releaseEventReturn = "return"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderMissingTracking indicates a courier shipment lacks partner or tracking id.
	ErrOrderMissingTracking = errors.New("order: missing tracking info")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// fulfillmentTransitions lists admin-drivable moves on the fulfillment axis.
// Cancellation and the return states move through their own flows.
var fulfillmentTransitions = map[domain.FulfillmentStatus][]domain.FulfillmentStatus{
	domain.FulfillmentPending: {domain.FulfillmentPacked},
	domain.FulfillmentPacked:  {domain.FulfillmentShipped, domain.FulfillmentDelivered},
	domain.FulfillmentShipped: {domain.FulfillmentDelivered},
}

var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentPending: {domain.PaymentPaid, domain.PaymentFailed},
	domain.PaymentFailed:  {domain.PaymentPaid},
	domain.PaymentPaid:    {domain.PaymentRefunded},
}

// cancellableStatuses holds fulfillment states a customer or admin may still
// cancel from. Once goods leave the warehouse cancellation is closed.
var cancellableStatuses = []domain.FulfillmentStatus{
	domain.FulfillmentPending,
	domain.FulfillmentPacked,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type                string
	OrderID             string
	OrderNumber         string
	CustomerID          string
	PreviousFulfillment string
	CurrentFulfillment  string
	PreviousPayment     string
	CurrentPayment      string
	ActorID             string
	OccurredAt          time.Time
	Metadata            map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Variants    repositories.VariantRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	variants   repositories.VariantRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("order service: variant repository is required")
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

	return &orderService{
		orders:     deps.Orders,
		variants:   deps.Variants,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if customer := strings.TrimSpace(opts.CustomerID); customer != "" && order.CustomerID != customer {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListHistory(ctx context.Context, orderID string) ([]StatusHistoryEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	entries, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return entries, nil
}

func (s *orderService) TransitionFulfillment(ctx context.Context, cmd FulfillmentTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Target
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if cmd.Expected != nil && order.FulfillmentStatus != *cmd.Expected {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.Expected, order.FulfillmentStatus)
	}

	// A resubmitted target is answered without touching the audit trail.
	if order.FulfillmentStatus == target {
		return order, nil
	}

	now := s.now()
	prevFulfillment := order.FulfillmentStatus
	prevPayment := order.PaymentStatus

	if partner := strings.TrimSpace(cmd.ShippingPartner); partner != "" {
		order.ShippingPartner = partner
	}
	if tracking := strings.TrimSpace(cmd.TrackingID); tracking != "" {
		order.TrackingID = tracking
	}

	if err := s.applyFulfillmentTransition(&order, target, now); err != nil {
		return Order{}, err
	}

	history := s.historyEntry(order, prevPayment, prevFulfillment, cmd.ActorID, cmd.Notes, now)
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		Order:               order,
		ExpectedFulfillment: &prevFulfillment,
		History:             history,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishStatusEvent(ctx, updated, prevFulfillment, prevPayment, cmd.ActorID, now, map[string]any{
		"notes": strings.TrimSpace(cmd.Notes),
	})
	return updated, nil
}

func (s *orderService) TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Target
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Payment webhooks retry; a repeated target stays off the audit trail.
	if order.PaymentStatus == target {
		return order, nil
	}

	now := s.now()
	prevFulfillment := order.FulfillmentStatus
	prevPayment := order.PaymentStatus

	if err := applyPaymentTransition(&order, target, now); err != nil {
		return Order{}, err
	}

	history := s.historyEntry(order, prevPayment, prevFulfillment, cmd.ActorID, cmd.Notes, now)
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		Order:   order,
		History: history,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishStatusEvent(ctx, updated, prevFulfillment, prevPayment, cmd.ActorID, now, map[string]any{
		"notes": strings.TrimSpace(cmd.Notes),
	})
	return updated, nil
}

// Cancel closes an order before dispatch. Reserved units flow back through
// the release ledger, so retrying a cancellation never double-releases, and a
// paid order is marked refunded in the same transition.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if customer := strings.TrimSpace(cmd.CustomerID); customer != "" && order.CustomerID != customer {
		return Order{}, ErrOrderForbidden
	}
	if !slices.Contains(cancellableStatuses, order.FulfillmentStatus) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.FulfillmentStatus)
	}

	now := s.now()
	prevFulfillment := order.FulfillmentStatus
	prevPayment := order.PaymentStatus
	reason := strings.TrimSpace(cmd.Reason)

	order.FulfillmentStatus = domain.FulfillmentCancelled
	order.CancelReason = optionalString(reason)
	order.CancelledAt = &now
	order.UpdatedAt = now
	if order.PaymentStatus == domain.PaymentPaid {
		order.PaymentStatus = domain.PaymentRefunded
		order.RefundedAt = &now
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.releaseOrderStock(txCtx, order, releaseEventCancel, reason, now); err != nil {
			return err
		}
		history := s.historyEntry(order, prevPayment, prevFulfillment, cmd.ActorID, reason, now)
		if _, err := s.orders.UpdateStatus(txCtx, repositories.OrderStatusUpdate{
			Order:               order,
			ExpectedFulfillment: &prevFulfillment,
			History:             history,
		}); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.publishStatusEvent(ctx, order, prevFulfillment, prevPayment, cmd.ActorID, now, metadata)

	return order, nil
}

// releaseOrderStock returns every reserved line of the order through the
// release ledger keyed by (item, event).
func (s *orderService) releaseOrderStock(ctx context.Context, order Order, event, reason string, now time.Time) error {
	lines := make([]repositories.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		if item.VariantRef == nil || strings.TrimSpace(*item.VariantRef) == "" {
			continue
		}
		lines = append(lines, repositories.StockLine{
			VariantID:   strings.TrimSpace(*item.VariantRef),
			OrderItemID: item.ID,
			Quantity:    item.Quantity,
		})
	}
	if len(lines) == 0 {
		return nil
	}

	result, err := s.variants.Release(ctx, repositories.StockReleaseRequest{
		Lines:    lines,
		OrderRef: order.ID,
		Event:    event,
		Reason:   reason,
		Now:      now,
	})
	if err != nil {
		return err
	}
	for itemID, excess := range result.Clamped {
		s.logger(ctx, "stock_release_clamped", map[string]any{
			"orderId": order.ID,
			"itemId":  itemID,
			"excess":  excess,
			"event":   event,
		})
	}
	return nil
}

func (s *orderService) applyFulfillmentTransition(order *Order, target domain.FulfillmentStatus, now time.Time) error {
	current := order.FulfillmentStatus
	if !canTransitionFulfillment(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	switch target {
	case domain.FulfillmentShipped:
		// Self-delivered orders never pass through the courier stage.
		if order.DeliveryMode == domain.DeliverySelf {
			return fmt.Errorf("%w: self-delivery orders skip shipped", ErrOrderInvalidState)
		}
		if strings.TrimSpace(order.ShippingPartner) == "" || strings.TrimSpace(order.TrackingID) == "" {
			return ErrOrderMissingTracking
		}
	case domain.FulfillmentDelivered:
		if current == domain.FulfillmentPacked && order.DeliveryMode != domain.DeliverySelf {
			return fmt.Errorf("%w: courier orders must ship before delivery", ErrOrderInvalidState)
		}
	}

	order.FulfillmentStatus = target
	order.UpdatedAt = now
	updateFulfillmentTimestamps(order, target, now)
	return nil
}

func applyPaymentTransition(order *Order, target domain.PaymentStatus, now time.Time) error {
	current := order.PaymentStatus
	if !slices.Contains(paymentTransitions[current], target) {
		return fmt.Errorf("%w: payment %s to %s", ErrOrderInvalidState, current, target)
	}

	order.PaymentStatus = target
	order.UpdatedAt = now
	switch target {
	case domain.PaymentPaid:
		order.PaidAt = &now
	case domain.PaymentRefunded:
		order.RefundedAt = &now
	}
	return nil
}

func updateFulfillmentTimestamps(order *Order, status domain.FulfillmentStatus, now time.Time) {
	switch status {
	case domain.FulfillmentPacked:
		order.PackedAt = &now
	case domain.FulfillmentShipped:
		order.ShippedAt = &now
	case domain.FulfillmentDelivered:
		order.DeliveredAt = &now
	case domain.FulfillmentCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	case domain.FulfillmentReturned:
		order.ReturnedAt = &now
	}
}

func (s *orderService) historyEntry(order Order, prevPayment domain.PaymentStatus, prevFulfillment domain.FulfillmentStatus, actorID, notes string, now time.Time) StatusHistoryEntry {
	return StatusHistoryEntry{
		ID:             historyIDPrefix + s.newID(),
		OrderID:        order.ID,
		OldPayment:     prevPayment,
		NewPayment:     order.PaymentStatus,
		OldFulfillment: prevFulfillment,
		NewFulfillment: order.FulfillmentStatus,
		Notes:          strings.TrimSpace(notes),
		ActorID:        strings.TrimSpace(actorID),
		CreatedAt:      now,
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrOrderNotFound) || errors.Is(err, repositories.ErrOrderItemNotFound) {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	if errors.Is(err, repositories.ErrOrderStatusConflict) {
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) publishStatusEvent(ctx context.Context, order Order, prevFulfillment domain.FulfillmentStatus, prevPayment domain.PaymentStatus, actorID string, now time.Time, metadata map[string]any) {
	s.publishEvent(ctx, OrderEvent{
		Type:                orderEventStatusChanged,
		OrderID:             order.ID,
		OrderNumber:         order.OrderNumber,
		CustomerID:          order.CustomerID,
		PreviousFulfillment: string(prevFulfillment),
		CurrentFulfillment:  string(order.FulfillmentStatus),
		PreviousPayment:     string(prevPayment),
		CurrentPayment:      string(order.PaymentStatus),
		ActorID:             actorID,
		OccurredAt:          now,
		Metadata:            metadata,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransitionFulfillment(current, target domain.FulfillmentStatus) bool {
	if current == target {
		return true
	}
	return slices.Contains(fulfillmentTransitions[current], target)
}
