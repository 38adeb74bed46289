package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/middleware"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2026-03-10 10:00 in Seoul
var orderTestStart = time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

type orderTestEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	store    *services.MockObjectStore
	notifier *services.MockNotifier

	mu  sync.Mutex
	now time.Time

	bulgogi models.Product
	plan    models.MenuPlan
}

func (env *orderTestEnv) clock() time.Time {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.now
}

func (env *orderTestEnv) advance(d time.Duration) {
	env.mu.Lock()
	env.now = env.now.Add(d)
	env.mu.Unlock()
}

// setupOrderTestEnv wires the engine on an in-memory database and mounts the
// routes with a fake auth layer: X-Test-User sets the token subject.
func setupOrderTestEnv(t *testing.T) *orderTestEnv {
	db := setupTestDB(t)
	config.SetDB(db)

	env := &orderTestEnv{
		db:       db,
		store:    services.NewMockObjectStore(),
		notifier: services.NewMockNotifier(),
		now:      orderTestStart,
	}

	opts := services.OrderOptions{
		Location:      time.FixedZone("KST", 9*60*60),
		PaymentWindow: 2 * time.Hour,
		Notifier:      env.notifier,
		Logger:        zerolog.Nop(),
		Clock:         env.clock,
	}
	SetEngine(&Engine{
		Orders:    services.NewOrderService(db, opts),
		Machine:   services.NewOrderStateMachine(db, opts),
		Catalog:   services.NewCatalogService(db),
		Manifests: services.NewManifestService(db, env.store, env.clock),
	})

	fakeAuth := func(c *gin.Context) {
		if sub := c.GetHeader("X-Test-User"); sub != "" {
			c.Set("user_id", sub)
		}
		c.Next()
	}

	router := setupTestRouter()
	v1 := router.Group("/api/v1", fakeAuth)
	{
		v1.GET("/menu/today", GetTodayMenu)
		v1.POST("/orders/quote", QuoteOrder)
		v1.POST("/orders", CreateOrder)
		v1.POST("/orders/lookup", LookupOrder)
		v1.GET("/orders/:id", GetOrder)
		v1.POST("/orders/:id/payment-notification", NotifyPayment)
		v1.GET("/coupons/auto", ListAutoCoupons)
		v1.POST("/coupons/validate", ValidateCoupon)
		v1.POST("/delivery/fee", ResolveDeliveryFee)
		v1.GET("/users/me/orders", GetMyOrders)

		admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
		admin.GET("/orders", ListOrders)
		admin.GET("/orders/:id", GetAdminOrder)
		admin.GET("/orders/:id/events", GetOrderEvents)
		admin.POST("/orders/:id/confirm-payment", ConfirmPayment)
		admin.POST("/orders/:id/advance", AdvanceOrder)
		admin.POST("/orders/:id/revert", RevertOrder)
		admin.POST("/orders/:id/cancel", CancelOrder)
		admin.POST("/orders/:id/restore", RestoreOrder)
		admin.POST("/orders/:id/extend-deadline", ExtendDeadline)
		admin.POST("/orders/expire", ExpireOrders)
		admin.POST("/exports/daily", ExportDailyManifest)
	}
	env.router = router

	// catalog fixtures
	env.bulgogi = models.Product{Name: "Bulgogi Box", Price: 5000, Type: "lunchbox", SaleStatus: models.ProductSelling}
	require.NoError(t, db.Create(&env.bulgogi).Error)
	limit := 10
	env.plan = models.MenuPlan{ProductID: env.bulgogi.ID, MenuDate: "2026-03-10", Price: 5000, QuantityLimit: &limit, Active: true}
	require.NoError(t, db.Create(&env.plan).Error)
	require.NoError(t, db.Create(&models.DeliveryZone{Name: "Gangnam", Areas: []string{"Gangnam"}, Price: 3000, Active: true}).Error)
	require.NoError(t, db.Create(&models.Coupon{Code: "WELCOME", Name: "Welcome", DiscountAmount: 2000, MinOrderAmount: 10000, Active: true}).Error)
	require.NoError(t, db.Create(&models.Coupon{Code: "AUTO500", Name: "Always", DiscountAmount: 500, Active: true, AutoApply: true}).Error)
	require.NoError(t, db.Create(&models.User{Auth0ID: "auth0|admin", Name: "Admin", Email: "admin@example.com", Role: middleware.RoleAdmin}).Error)
	require.NoError(t, db.Create(&models.User{Auth0ID: "auth0|minji", Name: "Minji", Email: "minji@example.com", Role: middleware.RoleCustomer}).Error)

	return env
}

func (env *orderTestEnv) do(t *testing.T, method, path, user string, body interface{}) (int, map[string]interface{}) {
	headers := map[string]string{}
	if user != "" {
		headers["X-Test-User"] = user
	}
	return env.request(t, method, path, headers, body)
}

// asGuest sends the phone and passcode checkoutBody places orders with
func (env *orderTestEnv) asGuest(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	return env.request(t, method, path, map[string]string{
		OrderPhoneHeader:    "010-1234-5678",
		OrderPasscodeHeader: "4321",
	}, body)
}

func (env *orderTestEnv) request(t *testing.T, method, path string, headers map[string]string, body interface{}) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "Response body: %s", w.Body.String())
	return w.Code, response
}

func (env *orderTestEnv) soldQuantity(t *testing.T) int {
	var plan models.MenuPlan
	require.NoError(t, env.db.First(&plan, env.plan.ID).Error)
	return plan.SoldQuantity
}

func checkoutBody(productID uint, qty int) map[string]interface{} {
	return map[string]interface{}{
		"items":          []map[string]interface{}{{"product_id": productID, "quantity": qty}},
		"delivery_type":  "DELIVERY",
		"address":        "Seoul Gangnam-gu 1",
		"customer_name":  "Kim Minji",
		"customer_phone": "010-1234-5678",
		"passcode":       "4321",
		"coupon_code":    "WELCOME",
	}
}

func errorCode(response map[string]interface{}) string {
	errData, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errData["code"].(string)
	return code
}

func (env *orderTestEnv) placeOrder(t *testing.T, qty int) uint {
	status, response := env.do(t, http.MethodPost, "/api/v1/orders", "", checkoutBody(env.bulgogi.ID, qty))
	require.Equal(t, http.StatusCreated, status, "%v", response)
	data := response["data"].(map[string]interface{})
	return uint(data["id"].(float64))
}

func TestCreateOrder(t *testing.T) {
	env := setupOrderTestEnv(t)

	status, response := env.do(t, http.MethodPost, "/api/v1/orders", "", checkoutBody(env.bulgogi.ID, 2))
	require.Equal(t, http.StatusCreated, status, "%v", response)
	assert.True(t, response["success"].(bool))

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "20260310-0001", data["order_number"])
	assert.Equal(t, float64(11000), data["total_amount"])
	assert.Equal(t, float64(3000), data["delivery_fee"])
	assert.Equal(t, float64(2000), data["discount_amount"])
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, "UNPAID", data["payment_status"])
	assert.Equal(t, "BANK_TRANSFER", data["payment_method"])
	assert.NotContains(t, data, "passcode_hash")
	assert.Nil(t, data["user_id"], "guest orders are not linked")
	assert.Len(t, data["items"], 1)
	assert.Equal(t, 2, env.soldQuantity(t))
}

func TestCreateOrderErrors(t *testing.T) {
	env := setupOrderTestEnv(t)

	tests := []struct {
		name       string
		modify     func(body map[string]interface{})
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing items",
			modify:     func(b map[string]interface{}) { delete(b, "items") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "zero quantity",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{{"product_id": 1, "quantity": 0}}
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "quantity above the per-product cap",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{{"product_id": 1, "quantity": 1000}}
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "quantity that would overflow the price",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{{"product_id": 1, "quantity": (1 << 61) + 1}}
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "split lines merging past the cap",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{
					{"product_id": 1, "quantity": 600},
					{"product_id": 1, "quantity": 600},
				}
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "QUANTITY_TOO_LARGE",
		},
		{
			name:       "bad delivery type",
			modify:     func(b map[string]interface{}) { b["delivery_type"] = "DRONE" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "product not on today's menu",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{{"product_id": 999, "quantity": 1}}
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "MENU_UNAVAILABLE",
		},
		{
			name:       "address outside every zone",
			modify:     func(b map[string]interface{}) { b["address"] = "Busan" },
			wantStatus: http.StatusNotFound,
			wantCode:   "NO_MATCHING_ZONE",
		},
		{
			name: "coupon below minimum",
			modify: func(b map[string]interface{}) {
				b["items"] = []map[string]interface{}{{"product_id": 1, "quantity": 1}}
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "COUPON_BELOW_MINIMUM",
		},
		{
			name:       "card payment",
			modify:     func(b map[string]interface{}) { b["payment_method"] = "CARD" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PAYMENT_METHOD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := checkoutBody(env.bulgogi.ID, 2)
			tt.modify(body)

			status, response := env.do(t, http.MethodPost, "/api/v1/orders", "", body)
			assert.Equal(t, tt.wantStatus, status, "%v", response)
			assert.False(t, response["success"].(bool))
			assert.Equal(t, tt.wantCode, errorCode(response))
		})
	}

	assert.Equal(t, 0, env.soldQuantity(t), "failed checkouts reserve nothing")
}

func TestCreateOrderLinksSignedInUser(t *testing.T) {
	env := setupOrderTestEnv(t)

	status, response := env.do(t, http.MethodPost, "/api/v1/orders", "auth0|minji", checkoutBody(env.bulgogi.ID, 2))
	require.Equal(t, http.StatusCreated, status, "%v", response)
	data := response["data"].(map[string]interface{})
	assert.NotNil(t, data["user_id"])

	env.placeOrder(t, 1) // guest

	status, response = env.do(t, http.MethodGet, "/api/v1/users/me/orders", "auth0|minji", nil)
	require.Equal(t, http.StatusOK, status)
	orders := response["data"].([]interface{})
	assert.Len(t, orders, 1)

	status, response = env.do(t, http.MethodGet, "/api/v1/users/me/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(response))
}

func TestQuoteOrder(t *testing.T) {
	env := setupOrderTestEnv(t)

	body := map[string]interface{}{
		"items":         []map[string]interface{}{{"product_id": env.bulgogi.ID, "quantity": 1}},
		"delivery_type": "PICKUP",
		"coupon_code":   "AUTO",
	}
	status, response := env.do(t, http.MethodPost, "/api/v1/orders/quote", "", body)
	require.Equal(t, http.StatusOK, status, "%v", response)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(5000), data["subtotal"])
	assert.Equal(t, float64(500), data["discount_amount"])
	assert.Equal(t, float64(4500), data["total_amount"])
	assert.Equal(t, 0, env.soldQuantity(t))
}

func TestGetOrder(t *testing.T) {
	env := setupOrderTestEnv(t)
	id := env.placeOrder(t, 1)

	status, response := env.asGuest(t, http.MethodGet, "/api/v1/orders/1", nil)
	require.Equal(t, http.StatusOK, status, "%v", response)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(id), data["id"])
	assert.Len(t, data["items"], 1)

	status, response = env.asGuest(t, http.MethodGet, "/api/v1/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ORDER_ID", errorCode(response))

	status, response = env.asGuest(t, http.MethodGet, "/api/v1/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ORDER_NOT_FOUND", errorCode(response))

	status, response = env.do(t, http.MethodGet, "/api/v1/admin/orders/1", "auth0|admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Kim Minji", response["data"].(map[string]interface{})["customer_name"])
}

func TestOrderRoutesRequireOwnership(t *testing.T) {
	env := setupOrderTestEnv(t)
	env.placeOrder(t, 1)

	status, response := env.do(t, http.MethodPost, "/api/v1/orders", "auth0|minji", checkoutBody(env.bulgogi.ID, 1))
	require.Equal(t, http.StatusCreated, status, "%v", response)
	memberOrder := uint(response["data"].(map[string]interface{})["id"].(float64))
	require.Equal(t, uint(2), memberOrder)

	strangers := []struct {
		name    string
		path    string
		headers map[string]string
	}{
		{"no credentials", "/api/v1/orders/1", nil},
		{"wrong passcode", "/api/v1/orders/1", map[string]string{OrderPhoneHeader: "01012345678", OrderPasscodeHeader: "0000"}},
		{"passcode without phone", "/api/v1/orders/1", map[string]string{OrderPasscodeHeader: "4321"}},
		{"other phone", "/api/v1/orders/1", map[string]string{OrderPhoneHeader: "01099998888", OrderPasscodeHeader: "4321"}},
		{"another signed-in customer", "/api/v1/orders/2", map[string]string{"X-Test-User": "auth0|admin"}},
		{"signed in without a profile", "/api/v1/orders/2", map[string]string{"X-Test-User": "auth0|ghost"}},
	}

	for _, tt := range strangers {
		t.Run(tt.name, func(t *testing.T) {
			status, response := env.request(t, http.MethodGet, tt.path, tt.headers, nil)
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "ORDER_NOT_FOUND", errorCode(response))
			assert.Nil(t, response["data"])

			status, response = env.request(t, http.MethodPost, tt.path+"/payment-notification", tt.headers, nil)
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "ORDER_NOT_FOUND", errorCode(response))
		})
	}

	var notified int64
	require.NoError(t, env.db.Model(&models.Order{}).Where("payment_notified = ?", true).Count(&notified).Error)
	assert.Zero(t, notified, "rejected callers change nothing")
	assert.Empty(t, env.notifier.OfType(services.NotificationPaymentNotified))

	status, response = env.do(t, http.MethodGet, "/api/v1/orders/2", "auth0|minji", nil)
	require.Equal(t, http.StatusOK, status, "%v", response)
	assert.Equal(t, float64(2), response["data"].(map[string]interface{})["id"])

	status, response = env.do(t, http.MethodPost, "/api/v1/orders/2/payment-notification", "auth0|minji", nil)
	require.Equal(t, http.StatusOK, status, "%v", response)
	assert.Equal(t, true, response["data"].(map[string]interface{})["payment_notified"])
}

func TestLookupOrder(t *testing.T) {
	env := setupOrderTestEnv(t)
	id := env.placeOrder(t, 2)

	status, response := env.do(t, http.MethodPost, "/api/v1/orders/lookup", "", map[string]string{
		"phone":    "01012345678",
		"passcode": "4321",
	})
	require.Equal(t, http.StatusOK, status, "%v", response)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(id), data["order_id"])

	status, response = env.do(t, http.MethodPost, "/api/v1/orders/lookup", "", map[string]string{
		"phone":    "01012345678",
		"passcode": "0000",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ORDER_NOT_FOUND", errorCode(response))

	status, _ = env.do(t, http.MethodPost, "/api/v1/orders/lookup", "", map[string]string{"phone": "010"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotifyPayment(t *testing.T) {
	env := setupOrderTestEnv(t)
	id := env.placeOrder(t, 1)

	status, response := env.asGuest(t, http.MethodPost, "/api/v1/orders/1/payment-notification", nil)
	require.Equal(t, http.StatusOK, status, "%v", response)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(id), data["id"])
	assert.Equal(t, true, data["payment_notified"])
	assert.Len(t, env.notifier.OfType(services.NotificationPaymentNotified), 1)
}

func TestTodayMenuAndPricingEndpoints(t *testing.T) {
	env := setupOrderTestEnv(t)

	status, response := env.do(t, http.MethodGet, "/api/v1/menu/today", "", nil)
	require.Equal(t, http.StatusOK, status)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "2026-03-10", data["date"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(10), items[0].(map[string]interface{})["remaining"])

	status, response = env.do(t, http.MethodGet, "/api/v1/coupons/auto?amount=3000", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, response["data"], 1)

	status, response = env.do(t, http.MethodGet, "/api/v1/coupons/auto?amount=lots", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_AMOUNT", errorCode(response))

	status, response = env.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]interface{}{
		"code":         "welcome",
		"order_amount": 9999,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "COUPON_BELOW_MINIMUM", errorCode(response))

	status, _ = env.do(t, http.MethodPost, "/api/v1/coupons/validate", "", map[string]interface{}{
		"code":         "welcome",
		"order_amount": 10000,
	})
	assert.Equal(t, http.StatusOK, status)

	status, response = env.do(t, http.MethodPost, "/api/v1/delivery/fee", "", map[string]string{"address": "Gangnam-gu 5"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3000), response["data"].(map[string]interface{})["fee"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(services.KindValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(services.KindNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(services.KindPolicy))
	assert.Equal(t, http.StatusConflict, statusFor(services.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(services.KindPersistence))
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	errData := response["error"].(map[string]interface{})
	assert.Equal(t, services.GenericFailureMessage, errData["message"])
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
