package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/utils"
	"gorm.io/gorm"
)

// AutoCouponCode asks checkout to apply the best auto-apply coupon
const AutoCouponCode = "AUTO"

// DeliveryQuote is the resolved delivery price for an address
type DeliveryQuote struct {
	ZoneID   uint   `json:"zone_id"`
	ZoneName string `json:"zone_name"`
	Fee      int64  `json:"fee"`
}

// PricingService computes delivery fees, coupon discounts and totals
type PricingService struct {
	db    *gorm.DB
	clock Clock
}

// NewPricingService creates a pricing resolver over db
func NewPricingService(db *gorm.DB, clock Clock) *PricingService {
	return &PricingService{db: db, clock: clock}
}

// WithTx returns a copy of the resolver that reads through tx
func (s *PricingService) WithTx(tx *gorm.DB) *PricingService {
	return &PricingService{db: tx, clock: s.clock}
}

// ComputeTotal is subtotal + fee - discount, never below zero
func ComputeTotal(subtotal, deliveryFee, discount int64) int64 {
	total := subtotal + deliveryFee - discount
	if total < 0 {
		return 0
	}
	return total
}

// ResolveDeliveryFee finds the cheapest active zone whose keywords appear in
// the address. Cheapest-first is deliberate: a more specific but pricier zone
// never wins over a cheaper match.
func (s *PricingService) ResolveDeliveryFee(ctx context.Context, address, extraAddress string) (*DeliveryQuote, error) {
	full := utils.JoinAddress(address, extraAddress)
	if full == "" {
		return nil, validationError("ADDRESS_REQUIRED", "배달 주소를 입력해 주세요.")
	}

	var zones []models.DeliveryZone
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("price ASC").
		Order("id ASC").
		Find(&zones).Error; err != nil {
		return nil, persistenceError(err)
	}

	for _, zone := range zones {
		if zone.Matches(full) {
			return &DeliveryQuote{ZoneID: zone.ID, ZoneName: zone.Name, Fee: zone.Price}, nil
		}
	}

	return nil, notFoundError("NO_MATCHING_ZONE", "배달 가능 지역이 아닙니다.")
}

// ValidateCoupon checks a manually entered code against an order amount
func (s *PricingService) ValidateCoupon(ctx context.Context, code string, orderAmount int64) (*models.Coupon, error) {
	code = models.NormalizeCouponCode(code)
	if code == "" {
		return nil, validationError("COUPON_CODE_REQUIRED", "쿠폰 코드를 입력해 주세요.")
	}

	var coupon models.Coupon
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("COUPON_NOT_FOUND", "존재하지 않는 쿠폰입니다.")
		}
		return nil, persistenceError(err)
	}

	now := s.clock.now()
	switch {
	case !coupon.Active:
		return nil, policyError("COUPON_INACTIVE", "사용할 수 없는 쿠폰입니다.")
	case orderAmount < coupon.MinOrderAmount:
		return nil, policyError("COUPON_BELOW_MINIMUM",
			fmt.Sprintf("%d원 이상 주문 시 사용할 수 있는 쿠폰입니다.", coupon.MinOrderAmount))
	case coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom):
		return nil, policyError("COUPON_NOT_YET_VALID", "아직 사용 기간이 아닌 쿠폰입니다.")
	case coupon.ValidUntil != nil && now.After(*coupon.ValidUntil):
		return nil, policyError("COUPON_EXPIRED", "사용 기간이 지난 쿠폰입니다.")
	}

	return &coupon, nil
}

// ListAutoCoupons returns every auto-apply coupon the order qualifies for,
// largest discount first.
func (s *PricingService) ListAutoCoupons(ctx context.Context, orderAmount int64) ([]models.Coupon, error) {
	var candidates []models.Coupon
	if err := s.db.WithContext(ctx).
		Where("active = ? AND auto_apply = ? AND min_order_amount <= ?", true, true, orderAmount).
		Order("discount_amount DESC").
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, persistenceError(err)
	}

	now := s.clock.now()
	coupons := make([]models.Coupon, 0, len(candidates))
	for _, c := range candidates {
		if c.InWindow(now) {
			coupons = append(coupons, c)
		}
	}
	return coupons, nil
}

// resolveCoupon turns the checkout coupon field into a coupon: "" means
// none, AUTO means the best auto coupon (possibly none), anything else is a code.
func (s *PricingService) resolveCoupon(ctx context.Context, code string, subtotal int64) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return nil, nil
	case strings.EqualFold(code, AutoCouponCode):
		coupons, err := s.ListAutoCoupons(ctx, subtotal)
		if err != nil || len(coupons) == 0 {
			return nil, err
		}
		return &coupons[0], nil
	}
	return s.ValidateCoupon(ctx, code, subtotal)
}

// QuoteLine is one priced cart line
type QuoteLine struct {
	ProductID   uint   `json:"product_id"`
	MenuPlanID  uint   `json:"menu_plan_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
}

// Quote is the full price breakdown of a candidate order
type Quote struct {
	Lines          []QuoteLine `json:"lines"`
	Subtotal       int64       `json:"subtotal"`
	DeliveryFee    int64       `json:"delivery_fee"`
	ZoneName       string      `json:"zone_name,omitempty"`
	CouponID       *uint       `json:"coupon_id,omitempty"`
	CouponName     string      `json:"coupon_name,omitempty"`
	DiscountAmount int64       `json:"discount_amount"`
	TotalAmount    int64       `json:"total_amount"`
}

// price fills in fee, discount and total for already priced lines
func (s *PricingService) price(ctx context.Context, lines []QuoteLine, delivery DeliveryInfo, couponCode string) (*Quote, *models.Coupon, error) {
	q := &Quote{Lines: lines}
	for _, l := range lines {
		subtotal, err := addAmount(q.Subtotal, l.Amount)
		if err != nil {
			return nil, nil, err
		}
		q.Subtotal = subtotal
	}

	if delivery.Type == models.DeliveryTypeDelivery {
		dq, err := s.ResolveDeliveryFee(ctx, delivery.Address, delivery.AddressDetail)
		if err != nil {
			return nil, nil, err
		}
		q.DeliveryFee = dq.Fee
		q.ZoneName = dq.ZoneName
	}
	gross, err := addAmount(q.Subtotal, q.DeliveryFee)
	if err != nil {
		return nil, nil, err
	}

	coupon, err := s.resolveCoupon(ctx, couponCode, q.Subtotal)
	if err != nil {
		return nil, nil, err
	}
	if coupon != nil {
		q.CouponID = &coupon.ID
		q.CouponName = coupon.Name
		// the recorded discount is what was actually taken off
		q.DiscountAmount = coupon.DiscountAmount
		if q.DiscountAmount > gross {
			q.DiscountAmount = gross
		}
	}

	q.TotalAmount = ComputeTotal(q.Subtotal, q.DeliveryFee, q.DiscountAmount)
	return q, coupon, nil
}

// Quote prices a cart against today's menu without reserving anything
func (s *PricingService) Quote(ctx context.Context, day string, cart []CartLine, delivery DeliveryInfo, couponCode string) (*Quote, error) {
	merged, err := mergeCartLines(cart)
	if err != nil {
		return nil, err
	}
	if err := delivery.validate(); err != nil {
		return nil, err
	}

	plans, err := loadDailyOffers(ctx, s.db, day, merged)
	if err != nil {
		return nil, err
	}

	lines, err := priceLines(plans, merged)
	if err != nil {
		return nil, err
	}

	q, _, err := s.price(ctx, lines, delivery, couponCode)
	return q, err
}

// priceLines prices every merged cart line at its menu plan price
func priceLines(plans map[uint]models.MenuPlan, lines []CartLine) ([]QuoteLine, error) {
	priced := make([]QuoteLine, 0, len(lines))
	for _, line := range lines {
		plan := plans[line.ProductID]
		amount, err := mulAmount(plan.Price, line.Quantity)
		if err != nil {
			return nil, err
		}
		priced = append(priced, QuoteLine{
			ProductID:   plan.ProductID,
			MenuPlanID:  plan.ID,
			ProductName: plan.Product.Name,
			UnitPrice:   plan.Price,
			Quantity:    line.Quantity,
			Amount:      amount,
		})
	}
	return priced, nil
}

func mulAmount(price int64, quantity int) (int64, error) {
	if quantity > 0 && price > math.MaxInt64/int64(quantity) {
		return 0, amountTooLarge()
	}
	return price * int64(quantity), nil
}

func addAmount(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, amountTooLarge()
	}
	return a + b, nil
}

func amountTooLarge() *ServiceError {
	return validationError("AMOUNT_TOO_LARGE", "주문 금액이 처리할 수 있는 범위를 넘었습니다.")
}
