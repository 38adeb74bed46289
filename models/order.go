package models

import (
	"time"
)

// DeliveryType says how the customer receives the order
type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "DELIVERY"
	DeliveryTypePickup   DeliveryType = "PICKUP"
)

// PaymentMethod is how the customer pays. Only manual bank transfer exists.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Order represents a customer's committed food order
type Order struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	OrderNumber   string `gorm:"type:varchar(20);uniqueIndex;not null" json:"order_number"` // YYYYMMDD-NNNN
	OrderDate     string `gorm:"type:varchar(10);index;not null" json:"order_date"`         // business day the order was placed on
	CustomerName  string `gorm:"not null" json:"customer_name"`
	CustomerPhone string `gorm:"not null;index" json:"customer_phone"`
	PasscodeHash  string `json:"-"`                              // bcrypt hash of the guest lookup passcode
	UserID        *uint  `gorm:"index" json:"user_id,omitempty"` // set when a signed-in customer placed the order

	DeliveryType     DeliveryType `gorm:"not null" json:"delivery_type"`
	Address          string       `json:"address"`
	AddressDetail    string       `json:"address_detail"`
	DeliveryZoneName string       `json:"delivery_zone_name,omitempty"`
	DeliveryFee      int64        `gorm:"not null;default:0" json:"delivery_fee"`

	CouponID       *uint `gorm:"index" json:"coupon_id,omitempty"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discount_amount"`
	Subtotal       int64 `gorm:"not null" json:"subtotal"`
	TotalAmount    int64 `gorm:"not null;check:total_amount >= 0" json:"total_amount"`

	RequestNote   string        `json:"request_note"`
	PaymentMethod PaymentMethod `gorm:"not null" json:"payment_method"`

	Status          OrderStatus   `gorm:"not null;index" json:"status"`
	PaymentStatus   PaymentStatus `gorm:"not null;index" json:"payment_status"`
	PaymentDeadline time.Time     `gorm:"not null;index" json:"payment_deadline"`
	PaymentNotified bool          `gorm:"not null" json:"payment_notified"`
	CancelReason    *string       `json:"cancel_reason,omitempty"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// OrderItem is an immutable order line. Product name and price are copied at
// creation so later catalog edits never change historical orders.
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	MenuPlanID  uint      `gorm:"not null;index" json:"menu_plan_id"`
	ProductID   uint      `gorm:"not null" json:"product_id"`
	ProductName string    `gorm:"not null" json:"product_name"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`
	Quantity    int       `gorm:"not null;check:quantity > 0" json:"quantity"`
	Amount      int64     `gorm:"not null" json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderSequence is the per-day counter behind order numbers
type OrderSequence struct {
	Day       string    `gorm:"primaryKey;type:varchar(8)" json:"day"` // YYYYMMDD
	LastValue int       `gorm:"not null" json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the OrderSequence model
func (OrderSequence) TableName() string {
	return "order_sequences"
}
