package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vastra-shop/api/internal/services"
)

func topicServer(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		srv.Close()
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	return srv, client
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	ctx := context.Background()
	srv, client := topicServer(t)
	defer srv.Close()
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic, nil)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.OrderEvent{
		Type:                "order.fulfillment_changed",
		OrderID:             "ord-1",
		OrderNumber:         "VS-2025-000042",
		CustomerID:          "cust-1",
		PreviousFulfillment: "packed",
		CurrentFulfillment:  "shipped",
		ActorID:             "staff-1",
		OccurredAt:          time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
		Metadata: map[string]any{
			"total":    int64(1299900),
			"currency": "INR",
		},
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.CurrentFulfillment != "shipped" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "order.fulfillment_changed" {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord-1" {
		t.Fatalf("expected order id attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["displayTotal"]; attr != "INR 12,999.00" {
		t.Fatalf("expected formatted total attribute, got %q", attr)
	}
}

func TestFormatDisplayAmount(t *testing.T) {
	cases := []struct {
		currency string
		minor    int64
		want     string
	}{
		{"INR", 1299900, "INR 12,999.00"},
		{"INR", 50, "INR 0.50"},
		{"", 123456, "1,234.56"},
		{"INR", -7550, "INR -75.50"},
	}
	for _, tc := range cases {
		if got := formatDisplayAmount(tc.currency, tc.minor); got != tc.want {
			t.Fatalf("formatDisplayAmount(%q, %d) = %q, want %q", tc.currency, tc.minor, got, tc.want)
		}
	}
}

func TestPubSubEventPublisherPublishesStockEvent(t *testing.T) {
	ctx := context.Background()
	srv, client := topicServer(t)
	defer srv.Close()
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "stock-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(nil, topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.StockEvent{
		Type:          "stock.reserved",
		VariantID:     "var-1",
		ProductRef:    "prd-1",
		OrderRef:      "ord-1",
		DeltaReserved: 2,
		TotalStock:    10,
		ReservedStock: 4,
		Available:     6,
		OccurredAt:    time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishStockEvent(ctx, event); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["variantId"]; attr != "var-1" {
		t.Fatalf("expected variant id attribute, got %q", attr)
	}

	var payload services.StockEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Available != 6 || payload.DeltaReserved != 2 {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestPubSubEventPublisherDropsWhenTopicMissing(t *testing.T) {
	srv, client := topicServer(t)
	defer srv.Close()
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(context.Background(), "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic, nil)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	if err := publisher.PublishStockEvent(context.Background(), services.StockEvent{Type: "stock.adjust"}); err != nil {
		t.Fatalf("expected stock events without a topic to be dropped, got %v", err)
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil, nil); err == nil {
		t.Fatal("expected error when no topics are provided")
	}
}
