package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/utils"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// lookupBatchSize is how many of a phone number's orders are hash-checked per query
var lookupBatchSize = 50

// OrderOptions configures the order engine
type OrderOptions struct {
	Location             *time.Location
	PaymentWindow        time.Duration
	DeadlineExtension    time.Duration
	MaxRetries           int
	EnforceQuantityLimit bool

	Notifier Notifier
	Metrics  *Metrics
	Logger   zerolog.Logger
	Clock    Clock
}

func (o OrderOptions) withDefaults() OrderOptions {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.PaymentWindow <= 0 {
		o.PaymentWindow = 2 * time.Hour
	}
	if o.DeadlineExtension <= 0 {
		o.DeadlineExtension = time.Hour
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	return o
}

// OrderService turns carts into committed orders and serves order lookups
type OrderService struct {
	db      *gorm.DB
	pricing *PricingService
	ledger  *AvailabilityLedger
	opts    OrderOptions
	logger  zerolog.Logger
}

// NewOrderService creates the order transaction manager
func NewOrderService(db *gorm.DB, opts OrderOptions) *OrderService {
	opts = opts.withDefaults()
	return &OrderService{
		db:      db,
		pricing: NewPricingService(db, opts.Clock),
		ledger:  NewAvailabilityLedger(db, opts.EnforceQuantityLimit, opts.Metrics),
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "order_service").Logger(),
	}
}

// Pricing exposes the resolver used by checkout
func (s *OrderService) Pricing() *PricingService {
	return s.pricing
}

// Today returns the current business day (YYYY-MM-DD)
func (s *OrderService) Today() string {
	return utils.BusinessDay(s.opts.Clock.now(), s.opts.Location)
}

// Quote prices a cart against today's menu without reserving stock
func (s *OrderService) Quote(ctx context.Context, cart []CartLine, delivery DeliveryInfo, couponCode string) (*Quote, error) {
	return s.pricing.Quote(ctx, s.Today(), cart, delivery, couponCode)
}

// CreateOrder commits an order in one transaction: today's menu plans are
// looked up, stock is reserved, fees and discounts are priced and the order
// gets the next number of the day. Any failure rolls back every step.
// Order number conflicts rerun the transaction a bounded number of times.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, in)
	if err != nil {
		code := CodeOf(err)
		if code == "" {
			code = "UNKNOWN"
		}
		s.opts.Metrics.orderFailed(code)
		if KindOf(err) == KindPersistence {
			s.logger.Error().Err(err).Msg("Failed to create order")
		}
		return nil, err
	}

	s.opts.Metrics.orderCreated()
	s.logger.Info().
		Uint("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Int64("total_amount", order.TotalAmount).
		Msg("Order created")
	notify(ctx, s.opts.Notifier, s.logger, newNotification(NotificationOrderCreated, order, order.CreatedAt))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	lines, err := mergeCartLines(in.Lines)
	if err != nil {
		return nil, err
	}

	var passcodeHash string
	if in.Customer.Passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Customer.Passcode), bcrypt.DefaultCost)
		if err != nil {
			return nil, persistenceError(fmt.Errorf("hash passcode: %w", err))
		}
		passcodeHash = string(hash)
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		order, err := s.createOnce(ctx, in, lines, passcodeHash)
		if err == nil {
			return order, nil
		}
		if !IsConflict(err) {
			return nil, err
		}
		lastErr = err
		s.opts.Metrics.retriedOrderNumber()
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Order number conflict, retrying checkout")
	}
	return nil, persistenceError(fmt.Errorf("order number still conflicting after %d attempts: %w", s.opts.MaxRetries, lastErr))
}

func (s *OrderService) createOnce(ctx context.Context, in CreateOrderInput, lines []CartLine, passcodeHash string) (*models.Order, error) {
	now := s.opts.Clock.now()
	day := utils.BusinessDay(now, s.opts.Location)

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plans, err := loadDailyOffers(ctx, tx, day, lines)
		if err != nil {
			return err
		}

		priced, err := priceLines(plans, lines)
		if err != nil {
			return err
		}

		// reserve in menu plan order so concurrent checkouts lock rows consistently
		reserveOrder := make([]QuoteLine, len(priced))
		copy(reserveOrder, priced)
		sort.Slice(reserveOrder, func(i, j int) bool { return reserveOrder[i].MenuPlanID < reserveOrder[j].MenuPlanID })
		ledger := s.ledger.WithTx(tx)
		for _, l := range reserveOrder {
			if err := ledger.Reserve(ctx, l.MenuPlanID, l.Quantity); err != nil {
				return err
			}
		}

		quote, coupon, err := s.pricing.WithTx(tx).price(ctx, priced, in.Delivery, in.CouponCode)
		if err != nil {
			return err
		}

		number, err := s.nextOrderNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		order = models.Order{
			OrderNumber:      number,
			OrderDate:        day,
			CustomerName:     strings.TrimSpace(in.Customer.Name),
			CustomerPhone:    utils.NormalizePhone(in.Customer.Phone),
			PasscodeHash:     passcodeHash,
			UserID:           in.Customer.UserID,
			DeliveryType:     in.Delivery.Type,
			DeliveryZoneName: quote.ZoneName,
			DeliveryFee:      quote.DeliveryFee,
			DiscountAmount:   quote.DiscountAmount,
			Subtotal:         quote.Subtotal,
			TotalAmount:      quote.TotalAmount,
			RequestNote:      strings.TrimSpace(in.RequestNote),
			PaymentMethod:    in.PaymentMethod,
			Status:           models.OrderStatusPending,
			PaymentStatus:    models.PaymentStatusUnpaid,
			PaymentDeadline:  now.Add(s.opts.PaymentWindow),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if in.Delivery.Type == models.DeliveryTypeDelivery {
			order.Address = strings.TrimSpace(in.Delivery.Address)
			order.AddressDetail = strings.TrimSpace(in.Delivery.AddressDetail)
		}
		if coupon != nil {
			order.CouponID = &coupon.ID
		}
		for _, l := range priced {
			order.Items = append(order.Items, models.OrderItem{
				MenuPlanID:  l.MenuPlanID,
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				UnitPrice:   l.UnitPrice,
				Quantity:    l.Quantity,
				Amount:      l.Amount,
				CreatedAt:   now,
			})
		}

		if err := tx.Create(&order).Error; err != nil {
			if isDuplicateKey(err) {
				return conflictError("ORDER_NUMBER_CONFLICT", err)
			}
			return persistenceError(fmt.Errorf("insert order: %w", err))
		}

		return recordEvent(ctx, tx, &models.OrderEvent{
			OrderID:   order.ID,
			Action:    models.OrderActionCreated,
			ToStatus:  models.OrderStatusPending,
			Actor:     actorCustomer,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, asServiceError(err)
	}
	return &order, nil
}

// nextOrderNumber increments the per-day counter inside tx. The first order
// of a day seeds the counter from the orders already placed that day, and a
// racing seed insert surfaces as a conflict so the checkout is rerun.
func (s *OrderService) nextOrderNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	day := utils.OrderDay(now, s.opts.Location)

	res := tx.WithContext(ctx).
		Model(&models.OrderSequence{}).
		Where("day = ?", day).
		Updates(map[string]interface{}{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return "", persistenceError(fmt.Errorf("advance order sequence: %w", res.Error))
	}

	var seq models.OrderSequence
	if res.RowsAffected == 0 {
		var existing int64
		if err := tx.WithContext(ctx).Model(&models.Order{}).
			Where("order_date = ?", utils.BusinessDay(now, s.opts.Location)).
			Count(&existing).Error; err != nil {
			return "", persistenceError(fmt.Errorf("count orders of day: %w", err))
		}
		seq = models.OrderSequence{Day: day, LastValue: int(existing) + 1, UpdatedAt: now}
		if err := tx.WithContext(ctx).Create(&seq).Error; err != nil {
			if isDuplicateKey(err) {
				return "", conflictError("ORDER_NUMBER_CONFLICT", err)
			}
			return "", persistenceError(fmt.Errorf("seed order sequence: %w", err))
		}
	} else if err := tx.WithContext(ctx).Where("day = ?", day).First(&seq).Error; err != nil {
		return "", persistenceError(fmt.Errorf("read order sequence: %w", err))
	}

	number, err := utils.FormatOrderNumber(day, seq.LastValue)
	if err != nil {
		return "", policyError("DAILY_ORDER_LIMIT", "오늘 주문 접수가 마감되었습니다.")
	}
	return number, nil
}

// GetOrder returns an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	return findOrder(ctx, s.db, orderID)
}

// LookupOrder finds the most recent order placed with phone whose passcode
// matches, for guests without an account.
func (s *OrderService) LookupOrder(ctx context.Context, phone, passcode string) (uint, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" || passcode == "" {
		return 0, validationError("LOOKUP_INPUT_REQUIRED", "연락처와 주문 조회 비밀번호를 입력해 주세요.")
	}

	var beforeID uint
	for {
		q := s.db.WithContext(ctx).
			Select("id", "passcode_hash").
			Where("customer_phone = ? AND passcode_hash <> ?", phone, "")
		if beforeID > 0 {
			q = q.Where("id < ?", beforeID)
		}
		var batch []models.Order
		if err := q.Order("id DESC").Limit(lookupBatchSize).Find(&batch).Error; err != nil {
			return 0, persistenceError(err)
		}

		for _, o := range batch {
			if bcrypt.CompareHashAndPassword([]byte(o.PasscodeHash), []byte(passcode)) == nil {
				return o.ID, nil
			}
		}
		if len(batch) < lookupBatchSize {
			return 0, notFoundError("ORDER_NOT_FOUND", "주문 내역을 찾을 수 없습니다.")
		}
		beforeID = batch[len(batch)-1].ID
	}
}

// OrderAccess is what a customer presents to read or act on one order:
// the signed-in profile that placed it, or the checkout phone and passcode.
type OrderAccess struct {
	UserID   *uint
	Phone    string
	Passcode string
}

func (a OrderAccess) owns(o *models.Order) bool {
	if a.UserID != nil && o.UserID != nil && *a.UserID == *o.UserID {
		return true
	}
	if a.Passcode == "" || o.PasscodeHash == "" || utils.NormalizePhone(a.Phone) != o.CustomerPhone {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(o.PasscodeHash), []byte(a.Passcode)) == nil
}

// AuthorizeOrder returns the order when access proves the caller placed it.
// A failed check looks exactly like an unknown order id.
func (s *OrderService) AuthorizeOrder(ctx context.Context, orderID uint, access OrderAccess) (*models.Order, error) {
	order, err := findOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !access.owns(order) {
		return nil, notFoundError("ORDER_NOT_FOUND", "주문을 찾을 수 없습니다.")
	}
	return order, nil
}

// NotifyPayment records that the customer says they transferred the money.
// It protects the order from auto-expiry but does not confirm payment.
func (s *OrderService) NotifyPayment(ctx context.Context, orderID uint) (*models.Order, error) {
	now := s.opts.Clock.now()
	var order *models.Order
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order = o

		if o.Status != models.OrderStatusPending || o.PaymentStatus != models.PaymentStatusUnpaid {
			return policyError("ORDER_NOT_AWAITING_PAYMENT", "입금 대기 중인 주문이 아닙니다.")
		}
		if o.PaymentNotified {
			return nil
		}
		if now.After(o.PaymentDeadline) {
			return policyError("PAYMENT_DEADLINE_PASSED", "입금 기한이 지났습니다. 고객센터로 문의해 주세요.")
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_notified = ?", o.ID, false).
			Updates(map[string]interface{}{"payment_notified": true, "updated_at": now})
		if res.Error != nil {
			return persistenceError(res.Error)
		}
		if res.RowsAffected == 0 {
			return conflictError("ORDER_CONFLICT", errors.New("payment notification raced"))
		}
		o.PaymentNotified = true
		o.UpdatedAt = now
		changed = true

		return recordEvent(ctx, tx, &models.OrderEvent{
			OrderID:    o.ID,
			Action:     models.OrderActionPaymentNotified,
			FromStatus: o.Status,
			ToStatus:   o.Status,
			Actor:      actorCustomer,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	if changed {
		notify(ctx, s.opts.Notifier, s.logger, newNotification(NotificationPaymentNotified, order, now))
	}
	return order, nil
}

// OrderFilter narrows the admin order listing
type OrderFilter struct {
	Date          string // YYYY-MM-DD business day, optional
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	UserID        *uint
}

// ListOrders returns matching orders, newest first, with items
func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("Items")
	if f.Date != "" {
		q = q.Where("order_date = ?", f.Date)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, validationError("INVALID_STATUS", "알 수 없는 주문 상태입니다.")
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		if !f.PaymentStatus.Valid() {
			return nil, validationError("INVALID_PAYMENT_STATUS", "알 수 없는 결제 상태입니다.")
		}
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	var orders []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, persistenceError(err)
	}
	return orders, nil
}
