package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Coupon is a flat-amount discount. Auto-apply coupons are offered by policy
// (minimum amount and validity window); the rest are matched by code.
type Coupon struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Code           string         `gorm:"uniqueIndex;not null" json:"code"`
	Name           string         `gorm:"not null" json:"name"`
	DiscountAmount int64          `gorm:"not null;check:discount_amount >= 0" json:"discount_amount"`
	MinOrderAmount int64          `gorm:"not null;default:0" json:"min_order_amount"`
	Active         bool           `gorm:"not null" json:"active"`
	AutoApply      bool           `gorm:"not null" json:"auto_apply"`
	ValidFrom      *time.Time     `json:"valid_from"`
	ValidUntil     *time.Time     `json:"valid_until"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Coupon model
func (Coupon) TableName() string {
	return "coupons"
}

// BeforeSave keeps codes case-normalized so lookups can match exactly
func (c *Coupon) BeforeSave(tx *gorm.DB) error {
	c.Code = NormalizeCouponCode(c.Code)
	return nil
}

// NormalizeCouponCode trims and upper-cases a coupon code
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InWindow reports whether now falls inside the optional validity window
func (c Coupon) InWindow(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}
