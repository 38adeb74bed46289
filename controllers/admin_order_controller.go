package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/middleware"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
	"github.com/rs/zerolog/log"
)

// CancelOrderRequest represents the optional body of a cancel action
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// adminActor names the operator in order history
func adminActor(c *gin.Context) string {
	if user, err := middleware.GetCurrentUser(c); err == nil {
		return "admin:" + user.Auth0ID
	}
	return "admin"
}

// ListOrders handles GET /api/v1/admin/orders?date=&status=&payment_status=
// Overdue unpaid orders are expired before the list is read, so the admin
// never sees a stale PENDING order.
func ListOrders(c *gin.Context) {
	e := GetEngine()
	ctx := c.Request.Context()

	if n, err := e.Machine.ExpireOverdue(ctx); err != nil {
		log.Warn().Err(err).Int("expired", n).Msg("Opportunistic expiry failed")
	}

	filter := services.OrderFilter{
		Date:          c.Query("date"),
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
	}
	orders, err := e.Orders.ListOrders(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// GetAdminOrder handles GET /api/v1/admin/orders/:id - any order with items
func GetAdminOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := GetEngine().Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

type transitionFunc func(ctx context.Context, id uint, actor string) (*models.Order, error)

// runTransition wraps one state machine action as a handler
func runTransition(pick func(m *services.OrderStateMachine) transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIDParam(c)
		if !ok {
			return
		}

		order, err := pick(GetEngine().Machine)(c.Request.Context(), id, adminActor(c))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    order,
		})
	}
}

// ConfirmPayment handles POST /api/v1/admin/orders/:id/confirm-payment
var ConfirmPayment = runTransition(func(m *services.OrderStateMachine) transitionFunc { return m.ConfirmPayment })

// AdvanceOrder handles POST /api/v1/admin/orders/:id/advance
var AdvanceOrder = runTransition(func(m *services.OrderStateMachine) transitionFunc { return m.Advance })

// RevertOrder handles POST /api/v1/admin/orders/:id/revert
var RevertOrder = runTransition(func(m *services.OrderStateMachine) transitionFunc { return m.Revert })

// RestoreOrder handles POST /api/v1/admin/orders/:id/restore
var RestoreOrder = runTransition(func(m *services.OrderStateMachine) transitionFunc { return m.Restore })

// ExtendDeadline handles POST /api/v1/admin/orders/:id/extend-deadline
var ExtendDeadline = runTransition(func(m *services.OrderStateMachine) transitionFunc { return m.ExtendDeadline })

// CancelOrder handles POST /api/v1/admin/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	order, err := GetEngine().Machine.Cancel(c.Request.Context(), id, adminActor(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// ExpireOrders handles POST /api/v1/admin/orders/expire - runs the expiry sweep now
func ExpireOrders(c *gin.Context) {
	n, err := GetEngine().Machine.ExpireOverdue(c.Request.Context())
	if err != nil && n == 0 {
		respondError(c, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Int("expired", n).Msg("Expiry sweep partially failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"expired": n,
		},
	})
}
