package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/middleware"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
)

// Guests prove they placed an order with these headers on the by-id routes
const (
	OrderPhoneHeader    = "X-Order-Phone"
	OrderPasscodeHeader = "X-Order-Passcode"
)

// CartItemRequest is one cart line
type CartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0,lte=999"`
}

// DeliveryRequest is the delivery part of checkout and quote requests
type DeliveryRequest struct {
	DeliveryType  models.DeliveryType `json:"delivery_type" binding:"required,oneof=DELIVERY PICKUP"`
	Address       string              `json:"address"`
	AddressDetail string              `json:"address_detail"`
}

// QuoteRequest represents the request body for pricing a cart
type QuoteRequest struct {
	Items []CartItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryRequest
	CouponCode string `json:"coupon_code"`
}

// CreateOrderRequest represents the request body for checkout
type CreateOrderRequest struct {
	Items []CartItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryRequest
	CustomerName  string               `json:"customer_name" binding:"required"`
	CustomerPhone string               `json:"customer_phone" binding:"required"`
	Passcode      string               `json:"passcode"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CouponCode    string               `json:"coupon_code"`
	RequestNote   string               `json:"request_note"`
}

// LookupOrderRequest represents the guest order lookup form
type LookupOrderRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Passcode string `json:"passcode" binding:"required"`
}

func cartLines(items []CartItemRequest) []services.CartLine {
	lines := make([]services.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, services.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func (d DeliveryRequest) info() services.DeliveryInfo {
	return services.DeliveryInfo{Type: d.DeliveryType, Address: d.Address, AddressDetail: d.AddressDetail}
}

// signedInUserID returns the local user id when the request carried a valid
// token for a known profile
func signedInUserID(c *gin.Context) *uint {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		return nil
	}
	var user models.User
	if err := config.GetDB().Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		return nil
	}
	return &user.ID
}

// orderAccess collects what the caller presents as the order's owner
func orderAccess(c *gin.Context) services.OrderAccess {
	return services.OrderAccess{
		UserID:   signedInUserID(c),
		Phone:    c.GetHeader(OrderPhoneHeader),
		Passcode: c.GetHeader(OrderPasscodeHeader),
	}
}

// GetTodayMenu handles GET /api/v1/menu/today - lists today's orderable menu
func GetTodayMenu(c *gin.Context) {
	e := GetEngine()
	day := e.Orders.Today()

	offers, err := e.Catalog.ListDailyMenu(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"date":  day,
			"items": offers,
		},
	})
}

// QuoteOrder handles POST /api/v1/orders/quote - prices a cart without reserving
func QuoteOrder(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	quote, err := GetEngine().Orders.Quote(c.Request.Context(), cartLines(req.Items), req.DeliveryRequest.info(), req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    quote,
	})
}

// CreateOrder handles POST /api/v1/orders - checkout for guests and signed-in customers
func CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodBankTransfer
	}

	order, err := GetEngine().Orders.CreateOrder(c.Request.Context(), services.CreateOrderInput{
		Lines: cartLines(req.Items),
		Customer: services.CustomerInfo{
			Name:     req.CustomerName,
			Phone:    req.CustomerPhone,
			Passcode: req.Passcode,
			UserID:   signedInUserID(c),
		},
		Delivery:      req.DeliveryRequest.info(),
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
		RequestNote:   req.RequestNote,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// GetOrder handles GET /api/v1/orders/:id - order detail with items for the
// signed-in owner or a guest sending the checkout phone and passcode
func GetOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := GetEngine().Orders.AuthorizeOrder(c.Request.Context(), id, orderAccess(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// LookupOrder handles POST /api/v1/orders/lookup - guest lookup by phone and passcode
func LookupOrder(c *gin.Context) {
	var req LookupOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	id, err := GetEngine().Orders.LookupOrder(c.Request.Context(), req.Phone, req.Passcode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"order_id": id,
		},
	})
}

// NotifyPayment handles POST /api/v1/orders/:id/payment-notification - the
// customer reports the bank transfer as sent
func NotifyPayment(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}

	e := GetEngine()
	ctx := c.Request.Context()
	if _, err := e.Orders.AuthorizeOrder(ctx, id, orderAccess(c)); err != nil {
		respondError(c, err)
		return
	}

	order, err := e.Orders.NotifyPayment(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}
