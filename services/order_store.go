package services

import (
	"context"
	"errors"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	actorCustomer = "customer"
	actorSystem   = "system"
)

// findOrder loads an order and its items
func findOrder(ctx context.Context, db *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := db.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("ORDER_NOT_FOUND", "주문을 찾을 수 없습니다.")
		}
		return nil, persistenceError(err)
	}
	return &order, nil
}

// lockOrder loads an order FOR UPDATE inside tx, then its items. sqlite
// ignores the lock; writers are serialized there anyway.
func lockOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("ORDER_NOT_FOUND", "주문을 찾을 수 없습니다.")
		}
		return nil, persistenceError(err)
	}
	if err := tx.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("id ASC").
		Find(&order.Items).Error; err != nil {
		return nil, persistenceError(err)
	}
	return &order, nil
}

func recordEvent(ctx context.Context, tx *gorm.DB, event *models.OrderEvent) error {
	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return persistenceError(err)
	}
	return nil
}

// ListOrderEvents returns an order's history, oldest first
func ListOrderEvents(ctx context.Context, db *gorm.DB, orderID uint) ([]models.OrderEvent, error) {
	if _, err := findOrder(ctx, db, orderID); err != nil {
		return nil, err
	}

	var events []models.OrderEvent
	if err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, persistenceError(err)
	}
	return events, nil
}
