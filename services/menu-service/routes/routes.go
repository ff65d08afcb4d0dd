package routes

import (
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/controllers"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, ctrl *controllers.LedgerController) {
	menu := r.Group("/menu/:date")
	{
		menu.GET("/inventory", ctrl.ListInventory)
		menu.GET("/inventory/:foodItemId", ctrl.GetInventory)
		menu.PUT("/inventory/:foodItemId", ctrl.SetInventory)
		menu.GET("/inventory/:foodItemId/entries", ctrl.ListEntries)
		menu.GET("/publication", ctrl.GetPublication)
		menu.PUT("/publication", ctrl.SetPublication)
	}

	// called by the order service
	inventory := r.Group("/inventory")
	{
		inventory.GET("/availability", ctrl.CheckAvailability)
		inventory.PATCH("/adjust", ctrl.Adjust)
		inventory.POST("/reserve", ctrl.Reserve)
		inventory.POST("/release", ctrl.Release)
	}
}
