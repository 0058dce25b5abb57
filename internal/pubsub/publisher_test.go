package pubsub

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/model"

	ps "cloud.google.com/go/pubsub"
)

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	if _, err := NewPublisher(context.Background(), cfg); err == nil {
		t.Fatal("expected error when project ID is empty")
	}
}

func TestPublisherReusesTopicHandles(t *testing.T) {
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	pub, err := NewPublisher(ctx, &config.Config{GCPProjectID: "test-project"})
	if err != nil {
		t.Fatalf("failed to create PubSubPublisher: %v", err)
	}
	defer pub.Close()

	first := pub.topic("quota-alerts-test")
	second := pub.topic("quota-alerts-test")
	if first != second {
		t.Fatal("expected the cached topic handle to be reused")
	}
	if other := pub.topic("plan-changes-test"); other == first {
		t.Fatal("expected distinct topics to get distinct handles")
	}
}

func TestPublishQuotaAlertWithEmulator(t *testing.T) {
	emulator := os.Getenv("PUBSUB_EMULATOR_HOST")
	if emulator == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	cfg := &config.Config{
		GCPProjectID:    "test-project",
		QuotaAlertTopic: "quota-alerts-test",
		PlanChangeTopic: "plan-changes-test",
	}
	pub, err := NewPublisher(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create PubSubPublisher: %v", err)
	}

	topic, err := pub.client.CreateTopic(ctx, cfg.QuotaAlertTopic)
	if err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	sub, err := pub.client.CreateSubscription(ctx, "quota-alerts-test-sub", ps.SubscriptionConfig{Topic: topic})
	if err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}

	alert := &model.QuotaAlert{
		UserID:              "user-1",
		QuotaType:           model.QuotaTypeVideoProcessing,
		AlertType:           model.AlertTypeWarning,
		ThresholdPercentage: 80,
		Message:             "80% of monthly video quota used",
		CreatedAt:           time.Now(),
	}
	payload, err := json.Marshal(QuotaAlertEvent{
		UserID:              alert.UserID,
		QuotaType:           alert.QuotaType,
		AlertType:           alert.AlertType,
		ThresholdPercentage: alert.ThresholdPercentage,
		Message:             alert.Message,
		CreatedAt:           alert.CreatedAt,
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	msgID, err := pub.Publish(ctx, cfg.QuotaAlertTopic, payload)
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected non-empty message ID")
	}

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan []byte, 1)
	go func() {
		sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m.Data
			m.Ack()
			cancel()
		})
	}()

	select {
	case data := <-c:
		var got QuotaAlertEvent
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("failed to unmarshal received event: %v", err)
		}
		if got.UserID != alert.UserID || got.ThresholdPercentage != 80 {
			t.Fatalf("unexpected event payload: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
