package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
)

// GetOrderEvents handles GET /api/v1/admin/orders/:id/events - the order's
// history, oldest first
func GetOrderEvents(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	events, err := services.ListOrderEvents(c.Request.Context(), config.GetDB(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
	})
}
