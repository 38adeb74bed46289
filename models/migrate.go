package models

import "gorm.io/gorm"

// All lists every model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&MenuPlan{},
		&Coupon{},
		&DeliveryZone{},
		&Order{},
		&OrderItem{},
		&OrderSequence{},
		&OrderEvent{},
	}
}

// Migrate creates or updates the schema for every model
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
