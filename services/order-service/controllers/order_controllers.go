package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/services"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/statemachine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// OrderAPI is the part of *services.OrderService the HTTP layer uses.
type OrderAPI interface {
	CreateOrder(ctx context.Context, userID, idempotencyKey string, req *models.CreateOrderRequest) (*models.Order, bool, *apperrors.Error)
	GetOrder(ctx context.Context, actor auth.Identity, orderID uuid.UUID) (*models.Order, *apperrors.Error)
	ListOrders(ctx context.Context, actor auth.Identity, filter repositories.ListFilter, page, limit int) (*services.OrderResponse, *apperrors.Error)
	History(ctx context.Context, actor auth.Identity, orderID uuid.UUID) ([]models.OrderStatusChange, *apperrors.Error)
	UpdateOrderStatus(ctx context.Context, actor auth.Identity, orderID uuid.UUID, target, reason string) (*services.StatusResult, *apperrors.Error)
	CancelOrder(ctx context.Context, actor auth.Identity, orderID uuid.UUID, reason string) (*services.StatusResult, *apperrors.Error)
}

type OrderController struct {
	orderService OrderAPI
}

func NewOrderController(orderService OrderAPI) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

// CreateOrder handles order creation requests
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	key := strings.TrimSpace(ctx.GetHeader(HeaderIdempotencyKey))
	order, replayed, serviceErr := oc.orderService.CreateOrder(ctx.Request.Context(), identity.UserID, key, &req)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	ctx.JSON(status, gin.H{"order": order, "replayed": replayed})
}

// GetOrders returns paginated orders. Customers only see their own; operators
// may filter by user_id, status and delivery_date.
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	filter := repositories.ListFilter{
		UserID:       ctx.Query("user_id"),
		DeliveryDate: ctx.Query("delivery_date"),
	}
	if s := ctx.Query("status"); s != "" {
		st, err := statemachine.ParseStatus(s)
		if err != nil {
			_ = ctx.Error(apperrors.Validation(err.Error()))
			return
		}
		filter.Status = st
	}

	page, limit := parsePaginationParams(ctx)
	result, serviceErr := oc.orderService.ListOrders(ctx.Request.Context(), identity, filter, page, limit)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetOrderByID returns a specific order visible to the caller
func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	identity, orderID, ok := orderTarget(ctx)
	if !ok {
		return
	}

	order, serviceErr := oc.orderService.GetOrder(ctx.Request.Context(), identity, orderID)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// GetOrderHistory returns the committed status changes of an order, oldest first.
func (oc *OrderController) GetOrderHistory(ctx *gin.Context) {
	identity, orderID, ok := orderTarget(ctx)
	if !ok {
		return
	}

	changes, serviceErr := oc.orderService.History(ctx.Request.Context(), identity, orderID)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order_id": orderID, "history": changes})
}

// UpdateOrderStatus handles PATCH /orders/:id/status
func (oc *OrderController) UpdateOrderStatus(ctx *gin.Context) {
	identity, orderID, ok := orderTarget(ctx)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, serviceErr := oc.orderService.UpdateOrderStatus(ctx.Request.Context(), identity, orderID, req.Status, req.Reason)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// CancelOrder handles POST /orders/:id/cancel. The body is optional.
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	identity, orderID, ok := orderTarget(ctx)
	if !ok {
		return
	}

	var req models.CancelOrderRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
	}

	result, serviceErr := oc.orderService.CancelOrder(ctx.Request.Context(), identity, orderID, req.Reason)
	if serviceErr != nil {
		_ = ctx.Error(serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// orderTarget reads the caller and the :id parameter, writing the error
// response itself when either is missing.
func orderTarget(ctx *gin.Context) (auth.Identity, uuid.UUID, bool) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return auth.Identity{}, uuid.Nil, false
	}

	orderUUID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID format"})
		return auth.Identity{}, uuid.Nil, false
	}
	return identity, orderUUID, true
}

// parsePaginationParams extracts and validates pagination parameters
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const MaxLimit = 100
	const DefaultPage = 1
	const DefaultLimit = 10

	page := ctx.DefaultQuery("page", "1")
	limit := ctx.DefaultQuery("limit", "10")

	pageInt := DefaultPage
	limitInt := DefaultLimit

	if p, err := strconv.Atoi(page); err == nil && p > 0 {
		pageInt = p
	}

	if l, err := strconv.Atoi(limit); err == nil && l > 0 {
		limitInt = l
		if limitInt > MaxLimit {
			limitInt = MaxLimit
		}
	}

	return pageInt, limitInt
}
