package services

import (
	"context"
	"encoding/json"
	"errors"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"go.uber.org/zap"
)

type PaymentStatusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, orderID, eventType string) error
}

// SQSPaymentConsumer consumes payment events from SQS and updates the payment
// status of orders. Order status is never changed by payments.
type SQSPaymentConsumer struct {
	sqsConsumer *awspkg.SQSConsumer
	updater     PaymentStatusUpdater
	logger      *zap.Logger
}

// NewSQSPaymentConsumer creates a new SQS-based payment event consumer
func NewSQSPaymentConsumer(sqsConsumer *awspkg.SQSConsumer, updater PaymentStatusUpdater, logger *zap.Logger) *SQSPaymentConsumer {
	return &SQSPaymentConsumer{
		sqsConsumer: sqsConsumer,
		updater:     updater,
		logger:      logger,
	}
}

// Start begins polling the payment events queue
func (c *SQSPaymentConsumer) Start(ctx context.Context) {
	c.logger.Info("starting payment events queue consumer")

	err := c.sqsConsumer.StartPolling(ctx, c.handleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("payment events polling stopped", zap.Error(err))
	}
}

// handleMessage returns an error only when the message should be redelivered.
func (c *SQSPaymentConsumer) handleMessage(ctx context.Context, body string) error {
	// unwrap SNS envelope if present
	var snsEnvelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &snsEnvelope); err == nil && snsEnvelope.Message != "" {
		body = snsEnvelope.Message
	}

	var evt models.PaymentEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("dropping invalid payment event", zap.Error(err), zap.String("payload", body))
		return nil
	}
	if evt.OrderID == "" || evt.Type == "" {
		c.logger.Warn("dropping payment event with missing fields", zap.String("order_id", evt.OrderID), zap.String("type", evt.Type))
		return nil
	}

	err := c.updater.UpdatePaymentStatus(ctx, evt.OrderID, evt.Type)
	if errors.Is(err, repositories.ErrNotFound) {
		c.logger.Warn("payment event for unknown order", zap.String("order_id", evt.OrderID), zap.String("type", evt.Type))
		return nil
	}
	if err != nil {
		c.logger.Error("failed to apply payment event", zap.String("order_id", evt.OrderID), zap.String("type", evt.Type), zap.Error(err))
		return err
	}
	return nil
}
