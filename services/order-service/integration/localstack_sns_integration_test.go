package integration

import (
	"context"
	"os"
	"testing"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
)

// This test runs only when RUN_LOCALSTACK_INTEGRATION=true and an endpoint is available at AWS_ENDPOINT or default localhost:4566
func TestSNSPublishOrderNotification_LocalStack(t *testing.T) {
	if os.Getenv("RUN_LOCALSTACK_INTEGRATION") != "true" {
		t.Skip("skipping localstack integration test; set RUN_LOCALSTACK_INTEGRATION=true to run")
	}

	cfg, err := awspkg.LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("failed to load aws config: %v", err)
	}
	sns := awspkg.NewSNSClient(cfg)
	topic := os.Getenv("ORDER_SNS_TOPIC_ARN")
	if topic == "" {
		t.Fatalf("ORDER_SNS_TOPIC_ARN must be set for integration test")
	}

	evt := models.OrderEvent{
		Type:         "order.confirmed",
		OrderID:      "integration-order",
		UserID:       "integration-user",
		DeliveryDate: time.Now().Format("2006-01-02"),
		Status:       "confirmed",
		OccurredAt:   time.Now().UTC(),
	}
	if err := sns.PublishEvent(context.Background(), topic, evt.Type, evt); err != nil {
		t.Fatalf("sns publish failed: %v", err)
	}
}
