package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/utils"
)

// CartLine is one product and quantity from the storefront cart. Client side
// prices are never accepted; the day's menu plan price is used instead.
type CartLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// CustomerInfo is the customer identity snapshot stored on the order
type CustomerInfo struct {
	Name     string
	Phone    string
	Passcode string // guest lookup passcode, stored only as a hash
	UserID   *uint
}

// DeliveryInfo says how the order is handed over
type DeliveryInfo struct {
	Type          models.DeliveryType
	Address       string
	AddressDetail string
}

// CreateOrderInput is everything checkout needs to commit an order
type CreateOrderInput struct {
	Lines         []CartLine
	Customer      CustomerInfo
	Delivery      DeliveryInfo
	PaymentMethod models.PaymentMethod
	CouponCode    string // "", a code, or AutoCouponCode
	RequestNote   string
}

// MaxLineQuantity is the most units of one product a single order may hold
const MaxLineQuantity = 999

const (
	minPasscodeLength = 4
	maxPasscodeLength = 20
	maxRequestNote    = 500
)

func (d DeliveryInfo) validate() error {
	switch d.Type {
	case models.DeliveryTypePickup:
		return nil
	case models.DeliveryTypeDelivery:
		if utils.JoinAddress(d.Address, d.AddressDetail) == "" {
			return validationError("ADDRESS_REQUIRED", "배달 주소를 입력해 주세요.")
		}
		return nil
	}
	return validationError("INVALID_DELIVERY_TYPE", "수령 방법을 선택해 주세요.")
}

func (in CreateOrderInput) validate() error {
	if len(in.Lines) == 0 {
		return validationError("EMPTY_CART", "장바구니가 비어 있습니다.")
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		return validationError("NAME_REQUIRED", "주문자 이름을 입력해 주세요.")
	}
	if len(utils.NormalizePhone(in.Customer.Phone)) < 9 {
		return validationError("PHONE_REQUIRED", "연락처를 정확히 입력해 주세요.")
	}
	if p := in.Customer.Passcode; p != "" {
		if n := utf8.RuneCountInString(p); n < minPasscodeLength || n > maxPasscodeLength {
			return validationError("INVALID_PASSCODE", "주문 조회 비밀번호는 4~20자로 입력해 주세요.")
		}
	}
	if utf8.RuneCountInString(in.RequestNote) > maxRequestNote {
		return validationError("NOTE_TOO_LONG", "요청 사항은 500자 이내로 입력해 주세요.")
	}
	if in.PaymentMethod != models.PaymentMethodBankTransfer {
		return validationError("INVALID_PAYMENT_METHOD", "무통장 입금만 가능합니다.")
	}
	return in.Delivery.validate()
}

// mergeCartLines rejects bad quantities and folds duplicate products into
// one line, sorted by product id. The per-product cap holds after merging.
func mergeCartLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, validationError("EMPTY_CART", "장바구니가 비어 있습니다.")
	}

	byProduct := make(map[uint]int, len(lines))
	for _, l := range lines {
		if l.ProductID == 0 {
			return nil, validationError("INVALID_PRODUCT", "상품 정보가 올바르지 않습니다.")
		}
		if l.Quantity <= 0 {
			return nil, validationError("INVALID_QUANTITY", "수량은 1개 이상이어야 합니다.")
		}
		if l.Quantity > MaxLineQuantity {
			return nil, quantityTooLarge()
		}
		byProduct[l.ProductID] += l.Quantity
	}

	merged := make([]CartLine, 0, len(byProduct))
	for id, qty := range byProduct {
		if qty > MaxLineQuantity {
			return nil, quantityTooLarge()
		}
		merged = append(merged, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func quantityTooLarge() *ServiceError {
	return validationError("QUANTITY_TOO_LARGE",
		fmt.Sprintf("한 메뉴는 %d개까지 주문할 수 있습니다.", MaxLineQuantity))
}
