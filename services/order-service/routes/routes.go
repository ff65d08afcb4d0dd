package routes

import (
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/middleware"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/controllers"
	"github.com/gin-gonic/gin"
)

// RegisterOrderRoutes mounts the order API. createLimit may be nil.
func RegisterOrderRoutes(r *gin.Engine, orders *controllers.OrderController, compensations *controllers.CompensationController, createLimit *middleware.RateLimiter) {
	orderRoutes := r.Group("/orders")
	orderRoutes.Use(auth.RequireIdentity())
	{
		if createLimit != nil {
			orderRoutes.POST("", middleware.RateLimit(createLimit), orders.CreateOrder)
		} else {
			orderRoutes.POST("", orders.CreateOrder)
		}
		orderRoutes.GET("", orders.GetOrders)
		orderRoutes.GET("/:id", orders.GetOrderByID)
		orderRoutes.GET("/:id/history", orders.GetOrderHistory)
		orderRoutes.PATCH("/:id/status", orders.UpdateOrderStatus)
		orderRoutes.POST("/:id/cancel", orders.CancelOrder)
	}

	adminRoutes := r.Group("/admin")
	adminRoutes.Use(auth.RequireIdentity(), auth.RequireOperator())
	{
		adminRoutes.GET("/orders", orders.GetOrders)
		if compensations != nil {
			adminRoutes.GET("/compensations", compensations.List)
			adminRoutes.POST("/compensations/:id/retry", compensations.Retry)
		}
	}
}
