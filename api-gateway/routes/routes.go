package routes

import (
	"github.com/AliakbarMohammadi/catring-313-sub001/api-gateway/middlewares"
	"github.com/AliakbarMohammadi/catring-313-sub001/api-gateway/utils"
	"github.com/gin-gonic/gin"
)

type Targets struct {
	OrderService string
	MenuService  string
}

// RegisterAllRoutes exposes the public API. The menu service's /inventory
// endpoints are internal to the order service and are not routed.
func RegisterAllRoutes(r *gin.Engine, fwd *utils.Forwarder, targets Targets, secretKey []byte) {
	menu := fwd.To(targets.MenuService)
	orders := fwd.To(targets.OrderService)

	// ===== PUBLIC ROUTES =====
	public := r.Group("/")
	public.GET("/menu/:date/inventory", menu)
	public.GET("/menu/:date/inventory/:foodItemId", menu)
	public.GET("/menu/:date/publication", menu)

	// ===== PROTECTED ROUTES (JWT Required) =====
	protected := r.Group("/")
	protected.Use(middlewares.JWTMiddleware(secretKey))

	protected.GET("/orders", orders)
	protected.POST("/orders", orders)
	protected.GET("/orders/:id", orders)
	protected.GET("/orders/:id/history", orders)
	protected.PATCH("/orders/:id/status", orders)
	protected.POST("/orders/:id/cancel", orders)

	// ===== ADMIN ROUTES (JWT + staff or admin role) =====
	admin := protected.Group("/")
	admin.Use(middlewares.AdminRoleMiddleware())

	admin.PUT("/menu/:date/inventory/:foodItemId", menu)
	admin.GET("/menu/:date/inventory/:foodItemId/entries", menu)
	admin.PUT("/menu/:date/publication", menu)

	admin.GET("/admin/orders", orders)
	admin.GET("/admin/compensations", orders)
	admin.POST("/admin/compensations/:id/retry", orders)
}
