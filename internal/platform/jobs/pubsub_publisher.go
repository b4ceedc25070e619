package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/vastra-shop/api/internal/services"
)

// PubSubEventPublisher fans order and stock domain events out to Pub/Sub topics.
// Either topic may be nil, in which case events for that stream are dropped.
type PubSubEventPublisher struct {
	orderTopic *pubsub.Topic
	stockTopic *pubsub.Topic
	marshal    func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher. At least
// one topic must be provided.
func NewPubSubEventPublisher(orderTopic, stockTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil && stockTopic == nil {
		return nil, errors.New("pubsub event publisher: at least one topic is required")
	}
	return &PubSubEventPublisher{
		orderTopic: orderTopic,
		stockTopic: stockTopic,
		marshal:    json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order lifecycle event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if p.orderTopic == nil {
		return nil
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "actorId", event.ActorID)
	if total, ok := event.Metadata["total"].(int64); ok {
		currency, _ := event.Metadata["currency"].(string)
		setAttr(attrs, "displayTotal", formatDisplayAmount(currency, total))
	}

	result := p.orderTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishStockEvent enqueues a stock ledger event on the stock topic.
func (p *PubSubEventPublisher) PublishStockEvent(ctx context.Context, event services.StockEvent) error {
	if p == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if p.stockTopic == nil {
		return nil
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "variantId", event.VariantID)
	setAttr(attrs, "productRef", event.ProductRef)
	setAttr(attrs, "orderRef", event.OrderRef)

	result := p.stockTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish stock event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
