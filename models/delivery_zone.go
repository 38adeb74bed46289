package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DeliveryZone groups address keywords that share one flat delivery price
type DeliveryZone struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Areas     []string       `gorm:"serializer:json;type:text" json:"areas"`
	Price     int64          `gorm:"not null;check:price >= 0;index" json:"price"`
	Active    bool           `gorm:"not null" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the DeliveryZone model
func (DeliveryZone) TableName() string {
	return "delivery_zones"
}

// Matches reports whether any non-blank area keyword occurs in the address
func (z DeliveryZone) Matches(address string) bool {
	for _, area := range z.Areas {
		area = strings.TrimSpace(area)
		if area != "" && strings.Contains(address, area) {
			return true
		}
	}
	return false
}
