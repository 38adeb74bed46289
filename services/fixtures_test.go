package services

import (
	"sync"
	"testing"
	"time"

	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testLocation = time.FixedZone("KST", 9*60*60)

// 2026-03-10 10:00 KST
var testStart = time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

const testDay = "2026-03-10"

// testClock is a settable clock shared by the engine under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := config.OpenDatabase(":memory:")
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, models.Migrate(db), "Failed to migrate test database")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testEngine struct {
	db       *gorm.DB
	clock    *testClock
	notifier *MockNotifier
	orders   *OrderService
	machine  *OrderStateMachine
}

func newTestEngine(t *testing.T, tweak ...func(*OrderOptions)) *testEngine {
	db := setupTestDB(t)
	clock := newTestClock(testStart)
	notifier := NewMockNotifier()

	opts := OrderOptions{
		Location:      testLocation,
		PaymentWindow: 2 * time.Hour,
		Notifier:      notifier,
		Logger:        zerolog.Nop(),
		Clock:         clock.Now,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	return &testEngine{
		db:       db,
		clock:    clock,
		notifier: notifier,
		orders:   NewOrderService(db, opts),
		machine:  NewOrderStateMachine(db, opts),
	}
}

func intPtr(v int) *int {
	return &v
}

func createProduct(t *testing.T, db *gorm.DB, name string, price int64) models.Product {
	p := models.Product{Name: name, Price: price, Type: "lunchbox", SaleStatus: models.ProductSelling}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func createMenuPlan(t *testing.T, db *gorm.DB, product models.Product, day string, limit *int) models.MenuPlan {
	plan := models.MenuPlan{
		ProductID:     product.ID,
		MenuDate:      day,
		Price:         product.Price,
		QuantityLimit: limit,
		Active:        true,
	}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

func createZone(t *testing.T, db *gorm.DB, name string, price int64, areas ...string) models.DeliveryZone {
	zone := models.DeliveryZone{Name: name, Areas: areas, Price: price, Active: true}
	require.NoError(t, db.Create(&zone).Error)
	return zone
}

func createCoupon(t *testing.T, db *gorm.DB, code string, discount, minAmount int64, autoApply bool) models.Coupon {
	coupon := models.Coupon{
		Code:           code,
		Name:           code + " coupon",
		DiscountAmount: discount,
		MinOrderAmount: minAmount,
		Active:         true,
		AutoApply:      autoApply,
	}
	require.NoError(t, db.Create(&coupon).Error)
	return coupon
}

func soldQuantity(t *testing.T, db *gorm.DB, planID uint) int {
	var plan models.MenuPlan
	require.NoError(t, db.First(&plan, planID).Error)
	return plan.SoldQuantity
}

func pickupInput(lines ...CartLine) CreateOrderInput {
	return CreateOrderInput{
		Lines:         lines,
		Customer:      CustomerInfo{Name: "Kim Minji", Phone: "010-1234-5678", Passcode: "4321"},
		Delivery:      DeliveryInfo{Type: models.DeliveryTypePickup},
		PaymentMethod: models.PaymentMethodBankTransfer,
	}
}

func deliveryInput(address string, lines ...CartLine) CreateOrderInput {
	in := pickupInput(lines...)
	in.Delivery = DeliveryInfo{Type: models.DeliveryTypeDelivery, Address: address}
	return in
}

// counterValue sums every series of a counter family gathered from reg
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
