package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductSaleStatus is the catalog sale flag of a product
type ProductSaleStatus string

const (
	ProductSelling    ProductSaleStatus = "SELLING"
	ProductNotSelling ProductSaleStatus = "NOT_SELLING"
	ProductPending    ProductSaleStatus = "PENDING"
)

// Product represents a sellable item in the catalog. Catalog management owns
// it; the order engine only reads it.
type Product struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"not null" json:"name"`
	Price      int64             `gorm:"not null;check:price >= 0" json:"price"` // base unit price in KRW
	Type       string            `gorm:"index" json:"type"`                      // category tag, e.g. "lunchbox", "salad"
	SaleStatus ProductSaleStatus `gorm:"not null;default:'SELLING'" json:"sale_status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  gorm.DeletedAt    `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}
