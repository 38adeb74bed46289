package models

import (
	"time"
)

// MenuPlan binds a product to one calendar day with the price offered that day.
// SoldQuantity is owned by the availability ledger and is never written by a
// model save; see services.AvailabilityLedger.
type MenuPlan struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProductID     uint      `gorm:"not null;uniqueIndex:idx_menu_plans_day_product" json:"product_id"`
	Product       Product   `gorm:"foreignKey:ProductID" json:"product"`
	MenuDate      string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_menu_plans_day_product;index" json:"menu_date"` // YYYY-MM-DD
	Price         int64     `gorm:"not null;check:price >= 0" json:"price"`                                                  // price snapshot for the day
	QuantityLimit *int      `json:"quantity_limit"`                                                                          // nil means unlimited
	SoldQuantity  int       `gorm:"not null;default:0;check:sold_quantity >= 0" json:"sold_quantity"`
	Active        bool      `gorm:"not null" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for the MenuPlan model
func (MenuPlan) TableName() string {
	return "menu_plans"
}

// Remaining returns how many units can still be sold, or nil when the plan has no limit
func (m MenuPlan) Remaining() *int {
	if m.QuantityLimit == nil {
		return nil
	}
	left := *m.QuantityLimit - m.SoldQuantity
	if left < 0 {
		left = 0
	}
	return &left
}
