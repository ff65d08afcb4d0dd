package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/logger"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/kafka"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const serviceName = "order-service"

// Error codes specific to orders.
const (
	CodeItemsUnavailable      = "ITEMS_UNAVAILABLE"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeStatusConflict        = "STATUS_CONFLICT"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeInventoryUnavailable  = "INVENTORY_UNAVAILABLE"
	CodeForbidden             = "FORBIDDEN"
)

type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// StatusResult is a committed status change. Warnings name inventory
// bookkeeping that did not complete; the change itself stands.
type StatusResult struct {
	Order    *models.Order `json:"order"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Dependencies wires an OrderService. Idempotency, Events, Notifier and Metrics
// are optional.
type Dependencies struct {
	Orders         repositories.OrderRepository
	Idempotency    repositories.IdempotencyStore
	Coordinator    *reservation.Coordinator
	Clock          dates.Clock
	Events         kafka.ProducerAPI
	Notifier       awspkg.SNSPublisher
	NotifyTopicArn string
	Metrics        awspkg.MetricsRecorder
	Logger         *zap.Logger
}

type OrderService struct {
	orders         repositories.OrderRepository
	idempotency    repositories.IdempotencyStore
	coordinator    *reservation.Coordinator
	machine        statemachine.Machine
	clock          dates.Clock
	events         kafka.ProducerAPI
	notifier       awspkg.SNSPublisher
	notifyTopicArn string
	metrics        awspkg.MetricsRecorder
	logger         *zap.Logger

	newID func() uuid.UUID
	// async runs fire-and-forget work
	async func(func())
}

func NewOrderService(d Dependencies) *OrderService {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		orders:         d.Orders,
		idempotency:    d.Idempotency,
		coordinator:    d.Coordinator,
		machine:        statemachine.New(d.Clock),
		clock:          d.Clock,
		events:         d.Events,
		notifier:       d.Notifier,
		notifyTopicArn: d.NotifyTopicArn,
		metrics:        d.Metrics,
		logger:         log,
		newID:          uuid.New,
		async:          func(f func()) { go f() },
	}
}

// CreateOrder validates and prices the request, reserves every line against the
// menu ledger and then stores the order as pending. The reservation is released
// again if the order cannot be stored. The returned bool is true when the
// Idempotency-Key matched an order created earlier.
func (s *OrderService) CreateOrder(ctx context.Context, userID, idempotencyKey string, req *models.CreateOrderRequest) (*models.Order, bool, *apperrors.Error) {
	log := logger.For(ctx, s.logger).With(zap.String("user_id", userID))

	order, items, verr := s.build(userID, req)
	if verr != nil {
		return nil, false, verr
	}

	if idempotencyKey != "" && s.idempotency != nil {
		existing, err := s.idempotency.Claim(ctx, userID, idempotencyKey)
		switch {
		case errors.Is(err, repositories.ErrIdempotencyInProgress):
			return nil, false, apperrors.Conflict(CodeIdempotencyInProgress, "A request with this Idempotency-Key is still being processed")
		case err != nil:
			// redis outage must not block ordering
			log.Warn("idempotency store unavailable", zap.Error(err))
			idempotencyKey = ""
		case existing != "":
			return s.replay(ctx, userID, existing)
		}
	}

	created, aerr := s.reserveAndStore(ctx, log, order, items)
	if idempotencyKey != "" && s.idempotency != nil {
		if aerr != nil {
			if err := s.idempotency.Release(ctx, userID, idempotencyKey); err != nil {
				log.Warn("failed to release idempotency key", zap.Error(err))
			}
		} else if err := s.idempotency.Complete(ctx, userID, idempotencyKey, created.ID.String()); err != nil {
			log.Warn("failed to complete idempotency key", zap.Error(err))
		}
	}
	if aerr != nil {
		return nil, false, aerr
	}
	return created, false, nil
}

func (s *OrderService) replay(ctx context.Context, userID, orderID string) (*models.Order, bool, *apperrors.Error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, false, apperrors.Internal(fmt.Errorf("stored idempotent order id %q: %w", orderID, err))
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, false, s.repoError(ctx, err, "Failed to fetch order")
	}
	if order.UserID != userID {
		return nil, false, apperrors.NotFound("Order not found")
	}
	return order, true, nil
}

// build validates the request and prices its lines.
func (s *OrderService) build(userID string, req *models.CreateOrderRequest) (*models.Order, []reservation.Item, *apperrors.Error) {
	if req == nil || len(req.Items) == 0 {
		return nil, nil, apperrors.Validation("At least one item is required")
	}
	date, err := dates.Parse(strings.TrimSpace(req.DeliveryDate))
	if err != nil {
		return nil, nil, apperrors.Validation(err.Error())
	}
	if s.clock.IsPast(date) {
		return nil, nil, apperrors.Validation("Delivery date is in the past")
	}

	lines := make([]models.OrderLine, 0, len(req.Items))
	items := make([]reservation.Item, 0, len(req.Items))
	total := 0
	for i, it := range req.Items {
		if it.UnitPrice <= 0 {
			return nil, nil, apperrors.Validation(fmt.Sprintf("Item %d: unit_price must be positive", i))
		}
		foodItemID := strings.TrimSpace(it.FoodItemID)
		line := models.OrderLine{
			Position:   i,
			FoodItemID: foodItemID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.UnitPrice * it.Quantity,
		}
		lines = append(lines, line)
		items = append(items, reservation.Item{FoodItemID: foodItemID, Quantity: it.Quantity})
		total += line.TotalPrice
	}
	if err := (reservation.Request{Date: date, Items: items}).Validate(); err != nil {
		return nil, nil, apperrors.Validation(strings.TrimPrefix(err.Error(), reservation.ErrInvalidItems.Error()+": "))
	}
	if req.DiscountAmount < 0 || req.DiscountAmount > total {
		return nil, nil, apperrors.Validation("discount_amount must be between 0 and the order total")
	}

	order := &models.Order{
		UserID:         userID,
		DeliveryDate:   date,
		TotalAmount:    total,
		DiscountAmount: req.DiscountAmount,
		FinalAmount:    total - req.DiscountAmount,
		Status:         statemachine.Pending,
		PaymentStatus:  models.PaymentPending,
		Notes:          strings.TrimSpace(req.Notes),
		Lines:          lines,
	}
	return order, items, nil
}

func (s *OrderService) reserveAndStore(ctx context.Context, log *zap.Logger, order *models.Order, items []reservation.Item) (*models.Order, *apperrors.Error) {
	order.ID = s.newID()
	order.ReservationID = s.newID().String()
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	log = log.With(zap.String("order_id", order.ID.String()), zap.String("reservation_id", order.ReservationID))

	req := reservation.Request{
		OrderID:     order.ID.String(),
		OperationID: order.ReservationID,
		Date:        order.DeliveryDate,
		Items:       items,
	}

	start := time.Now()
	res, err := s.coordinator.Reserve(ctx, req)
	s.recordLatency(awspkg.MetricReservationLatency, time.Since(start))
	s.recordFailures(len(res.Failures))
	if err != nil {
		if errors.Is(err, reservation.ErrInvalidItems) {
			return nil, apperrors.Validation(err.Error())
		}
		log.Error("reservation failed", zap.Error(err))
		return nil, apperrors.New(http.StatusServiceUnavailable, CodeInventoryUnavailable, "Inventory is temporarily unavailable, retry the order", err).
			WithDetails(details{"items": res.Items})
	}
	if !res.Success {
		s.recordCount(awspkg.MetricOrdersRejected, map[string]string{"Reason": "items_unavailable"})
		s.recordCount(awspkg.MetricInventoryUnavailable, nil)
		return nil, apperrors.Conflict(CodeItemsUnavailable, "Some items are not available for the delivery date").
			WithDetails(details{"items": res.Items, "unavailable": res.Unavailable()})
	}

	change := &models.OrderStatusChange{ToStatus: statemachine.Pending, Reason: "order placed", Actor: order.UserID}
	if err := s.orders.Create(ctx, order, change); err != nil {
		log.Error("failed to store order after reservation, releasing", zap.Error(err))
		failures, rerr := s.coordinator.Release(context.WithoutCancel(ctx), reservation.Request{
			OrderID:     req.OrderID,
			OperationID: req.OperationID + ":rollback",
			Date:        req.Date,
			Items:       items,
		})
		if rerr != nil {
			log.Error("rollback release rejected", zap.Error(rerr))
		}
		s.recordFailures(len(failures))
		return nil, apperrors.Internal(err)
	}

	log.Info("order created",
		zap.String("delivery_date", order.DeliveryDate),
		zap.Int("lines", len(order.Lines)),
		zap.Int("final_amount", order.FinalAmount),
	)
	s.recordCount(awspkg.MetricOrdersCreated, nil)
	s.recordValue(awspkg.MetricInventoryReserved, float64(totalQuantity(items)))
	s.publish(order, models.EventOrderCreated, "", "")
	return order, nil
}

// UpdateOrderStatus applies the transition table and guards and commits the new
// status. Customers may only cancel their own orders.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor auth.Identity, orderID uuid.UUID, target, reason string) (*StatusResult, *apperrors.Error) {
	to, err := statemachine.ParseStatus(target)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	order, aerr := s.orderFor(ctx, actor, orderID)
	if aerr != nil {
		return nil, aerr
	}
	if !actor.IsOperator() && to != statemachine.Cancelled {
		return nil, apperrors.New(http.StatusForbidden, CodeForbidden, "Only staff can change this status", nil)
	}
	return s.transition(ctx, actor, order, to, strings.TrimSpace(reason), order.Notes)
}

// CancelOrder moves the order to cancelled and appends the reason to its notes.
func (s *OrderService) CancelOrder(ctx context.Context, actor auth.Identity, orderID uuid.UUID, reason string) (*StatusResult, *apperrors.Error) {
	order, aerr := s.orderFor(ctx, actor, orderID)
	if aerr != nil {
		return nil, aerr
	}
	reason = strings.TrimSpace(reason)
	note := "Cancelled"
	if reason != "" {
		note = "Cancelled: " + reason
	}
	notes := note
	if order.Notes != "" {
		notes = order.Notes + "\n" + note
	}
	return s.transition(ctx, actor, order, statemachine.Cancelled, reason, notes)
}

func (s *OrderService) transition(ctx context.Context, actor auth.Identity, order *models.Order, to statemachine.Status, reason, notes string) (*StatusResult, *apperrors.Error) {
	log := logger.For(ctx, s.logger).With(zap.String("order_id", order.ID.String()), zap.String("actor", actor.UserID))
	from := order.Status

	if err := s.machine.Check(from, to, order.DeliveryDate); err != nil {
		var ite *statemachine.InvalidTransitionError
		if errors.As(err, &ite) {
			return nil, apperrors.Conflict(CodeInvalidTransition, ite.Error()).
				WithDetails(details{"from": ite.From, "to": ite.To, "reason": ite.Reason})
		}
		return nil, apperrors.Internal(err)
	}

	change := &models.OrderStatusChange{FromStatus: from, ToStatus: to, Reason: reason, Actor: actor.UserID}
	if err := s.orders.UpdateStatus(ctx, order.ID, from, to, notes, change); err != nil {
		if errors.Is(err, repositories.ErrStatusConflict) {
			return nil, apperrors.Conflict(CodeStatusConflict, "Order status changed concurrently, reload and retry")
		}
		return nil, s.repoError(ctx, err, "Failed to update order status")
	}
	order.Status = to
	order.Notes = notes
	log.Info("order status changed", zap.String("from", string(from)), zap.String("to", string(to)))
	s.recordCount(awspkg.MetricOrderStatusChanged, map[string]string{"To": string(to)})

	result := &StatusResult{Order: order}
	effects := statemachine.EffectsOf(to)
	if effects.ReleaseInventory {
		s.recordCount(awspkg.MetricOrdersCancelled, nil)
		result.Warnings = s.release(ctx, log, order)
	}
	if effects.Notify {
		s.notify(order, from)
	}
	s.publish(order, models.EventOrderStatusChanged, string(from), reason)
	return result, nil
}

// release returns every line of a cancelled order. Failures are logged and
// stored by the coordinator's sink; they become warnings here.
func (s *OrderService) release(ctx context.Context, log *zap.Logger, order *models.Order) []string {
	items := make([]reservation.Item, 0, len(order.Lines))
	for _, l := range order.Lines {
		items = append(items, reservation.Item{FoodItemID: l.FoodItemID, Quantity: l.Quantity})
	}
	failures, err := s.coordinator.Release(context.WithoutCancel(ctx), reservation.Request{
		OrderID:     order.ID.String(),
		OperationID: order.ReservationID + ":release",
		Date:        order.DeliveryDate,
		Items:       items,
	})
	if err != nil {
		log.Error("release rejected", zap.Error(err))
		return []string{"inventory release rejected: " + err.Error()}
	}

	s.recordValue(awspkg.MetricInventoryReleased, float64(totalQuantity(items)))
	s.recordFailures(len(failures))
	if len(failures) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(failures))
	for _, f := range failures {
		warnings = append(warnings, fmt.Sprintf("inventory for %s was not released and is queued for retry", f.FoodItemID))
	}
	return warnings
}

// GetOrder returns an order visible to actor.
func (s *OrderService) GetOrder(ctx context.Context, actor auth.Identity, orderID uuid.UUID) (*models.Order, *apperrors.Error) {
	return s.orderFor(ctx, actor, orderID)
}

// ListOrders pages orders. Customers only ever see their own.
func (s *OrderService) ListOrders(ctx context.Context, actor auth.Identity, filter repositories.ListFilter, page, limit int) (*OrderResponse, *apperrors.Error) {
	if !actor.IsOperator() {
		filter.UserID = actor.UserID
	}
	orders, total, err := s.orders.List(ctx, filter, page, limit)
	if err != nil {
		logger.For(ctx, s.logger).Error("failed to list orders", zap.String("user_id", actor.UserID), zap.Error(err))
		return nil, apperrors.Internal(err)
	}
	return &OrderResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

func (s *OrderService) History(ctx context.Context, actor auth.Identity, orderID uuid.UUID) ([]models.OrderStatusChange, *apperrors.Error) {
	if _, aerr := s.orderFor(ctx, actor, orderID); aerr != nil {
		return nil, aerr
	}
	changes, err := s.orders.History(ctx, orderID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return changes, nil
}

var paymentStatusByEvent = map[string]models.PaymentStatus{
	models.EventPaymentSucceeded: models.PaymentPaid,
	models.EventPaymentFailed:    models.PaymentFailed,
	models.EventPaymentRefunded:  models.PaymentRefunded,
}

// UpdatePaymentStatus records a payment outcome. It never touches the order
// status. Unknown event types are ignored.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID, eventType string) error {
	status, ok := paymentStatusByEvent[eventType]
	if !ok {
		s.logger.Debug("ignoring payment event", zap.String("type", eventType), zap.String("order_id", orderID))
		return nil
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	if err := s.orders.UpdatePaymentStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("payment status updated", zap.String("order_id", orderID), zap.String("payment_status", string(status)))
	s.recordCount(awspkg.MetricPaymentStatusUpdate, map[string]string{"PaymentStatus": string(status)})
	return nil
}

// orderFor loads the order and hides other customers' orders.
func (s *OrderService) orderFor(ctx context.Context, actor auth.Identity, orderID uuid.UUID) (*models.Order, *apperrors.Error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.repoError(ctx, err, "Failed to fetch order")
	}
	if !actor.IsOperator() && order.UserID != actor.UserID {
		return nil, apperrors.NotFound("Order not found")
	}
	return order, nil
}

func (s *OrderService) repoError(ctx context.Context, err error, msg string) *apperrors.Error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperrors.NotFound("Order not found")
	}
	logger.For(ctx, s.logger).Error(msg, zap.Error(err))
	return apperrors.Internal(err)
}

// notify is fire-and-forget; it must never delay or fail a status change.
func (s *OrderService) notify(order *models.Order, from statemachine.Status) {
	if s.notifier == nil || s.notifyTopicArn == "" {
		return
	}
	evt := s.event(order, "order."+string(order.Status), string(from), "")
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.PublishEvent(ctx, s.notifyTopicArn, evt.Type, evt); err != nil {
			s.logger.Warn("order notification failed", zap.String("order_id", evt.OrderID), zap.String("event_type", evt.Type), zap.Error(err))
		}
	})
}

func (s *OrderService) publish(order *models.Order, eventType, from, reason string) {
	if s.events == nil {
		return
	}
	evt := s.event(order, eventType, from, reason)
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// the producer logs its own failures
		_ = s.events.PublishOrderEvent(ctx, evt)
	})
}

func (s *OrderService) event(order *models.Order, eventType, from, reason string) models.OrderEvent {
	lines := make([]models.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	return models.OrderEvent{
		Type:           eventType,
		OrderID:        order.ID.String(),
		UserID:         order.UserID,
		DeliveryDate:   order.DeliveryDate,
		Status:         string(order.Status),
		PreviousStatus: from,
		FinalAmount:    order.FinalAmount,
		Lines:          lines,
		Reason:         reason,
		OccurredAt:     s.clock.Now().UTC(),
	}
}

func (s *OrderService) recordFailures(n int) {
	for i := 0; i < n; i++ {
		s.recordCount(awspkg.MetricCompensationFailed, nil)
	}
}

func (s *OrderService) recordCount(metric string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(ctx, metric, withService(dims))
	})
}

func (s *OrderService) recordValue(metric string, v float64) {
	if s.metrics == nil {
		return
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordValue(ctx, metric, v, withService(nil))
	})
}

func (s *OrderService) recordLatency(metric string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordLatency(ctx, metric, d, withService(nil))
	})
}

func withService(dims map[string]string) map[string]string {
	out := map[string]string{"Service": serviceName}
	for k, v := range dims {
		out[k] = v
	}
	return out
}

func totalQuantity(items []reservation.Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

type details = map[string]any

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
