package models

import (
	"time"
)

// Order event actions
const (
	OrderActionCreated         = "CREATED"
	OrderActionConfirmPayment  = "CONFIRM_PAYMENT"
	OrderActionAdvance         = "ADVANCE"
	OrderActionRevert          = "REVERT"
	OrderActionCancel          = "CANCEL"
	OrderActionExpire          = "EXPIRE"
	OrderActionRestore         = "RESTORE"
	OrderActionExtendDeadline  = "EXTEND_DEADLINE"
	OrderActionPaymentNotified = "PAYMENT_NOTIFIED"
)

// OrderEvent is an append-only history entry for an order
type OrderEvent struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"order_id"`
	Order      Order       `gorm:"foreignKey:OrderID" json:"-"` // don't include full order in JSON
	Action     string      `gorm:"not null" json:"action"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	Reason     string      `gorm:"type:text" json:"reason,omitempty"`
	Actor      string      `json:"actor"` // admin subject, "customer" or "system"
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName specifies the table name for the OrderEvent model
func (OrderEvent) TableName() string {
	return "order_events"
}
