package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ValidateCouponRequest represents a manual coupon check
type ValidateCouponRequest struct {
	Code        string `json:"code" binding:"required"`
	OrderAmount int64  `json:"order_amount" binding:"gte=0"`
}

// DeliveryFeeRequest represents a delivery fee lookup
type DeliveryFeeRequest struct {
	Address       string `json:"address" binding:"required"`
	AddressDetail string `json:"address_detail"`
}

// ListAutoCoupons handles GET /api/v1/coupons/auto?amount= - auto-apply
// coupons the amount qualifies for, best first
func ListAutoCoupons(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_AMOUNT",
				"message": "amount must be a non-negative integer",
			},
		})
		return
	}

	coupons, err := GetEngine().Orders.Pricing().ListAutoCoupons(c.Request.Context(), amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    coupons,
	})
}

// ValidateCoupon handles POST /api/v1/coupons/validate
func ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	coupon, err := GetEngine().Orders.Pricing().ValidateCoupon(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    coupon,
	})
}

// ResolveDeliveryFee handles POST /api/v1/delivery/fee
func ResolveDeliveryFee(c *gin.Context) {
	var req DeliveryFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	quote, err := GetEngine().Orders.Pricing().ResolveDeliveryFee(c.Request.Context(), req.Address, req.AddressDetail)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    quote,
	})
}
