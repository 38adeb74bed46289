package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"gorm.io/gorm"
)

// AvailabilityLedger is the only writer of menu_plans.sold_quantity. Every
// change is a single atomic column update on the caller's transaction, so
// concurrent checkouts never lose an increment.
type AvailabilityLedger struct {
	db           *gorm.DB
	enforceLimit bool
	metrics      *Metrics
}

// NewAvailabilityLedger creates a ledger. With enforceLimit, reserve and
// reapply refuse to push sold_quantity past quantity_limit.
func NewAvailabilityLedger(db *gorm.DB, enforceLimit bool, metrics *Metrics) *AvailabilityLedger {
	return &AvailabilityLedger{db: db, enforceLimit: enforceLimit, metrics: metrics}
}

// WithTx returns a copy of the ledger bound to tx
func (l *AvailabilityLedger) WithTx(tx *gorm.DB) *AvailabilityLedger {
	return &AvailabilityLedger{db: tx, enforceLimit: l.enforceLimit, metrics: l.metrics}
}

// Reserve adds quantity to the plan's sold counter at checkout
func (l *AvailabilityLedger) Reserve(ctx context.Context, menuPlanID uint, quantity int) error {
	if err := l.increment(ctx, menuPlanID, quantity); err != nil {
		return err
	}
	l.metrics.reserved(quantity)
	return nil
}

// Reapply re-adds quantity when a cancelled order is restored
func (l *AvailabilityLedger) Reapply(ctx context.Context, menuPlanID uint, quantity int) error {
	if err := l.increment(ctx, menuPlanID, quantity); err != nil {
		return err
	}
	l.metrics.reserved(quantity)
	return nil
}

// Release takes quantity back off the sold counter, flooring at zero
func (l *AvailabilityLedger) Release(ctx context.Context, menuPlanID uint, quantity int) error {
	if quantity <= 0 {
		return validationError("INVALID_QUANTITY", "수량은 1개 이상이어야 합니다.")
	}

	res := l.db.WithContext(ctx).
		Model(&models.MenuPlan{}).
		Where("id = ?", menuPlanID).
		UpdateColumn("sold_quantity",
			gorm.Expr("CASE WHEN sold_quantity >= ? THEN sold_quantity - ? ELSE 0 END", quantity, quantity))
	if res.Error != nil {
		return persistenceError(fmt.Errorf("release menu plan %d: %w", menuPlanID, res.Error))
	}
	if res.RowsAffected == 0 {
		return notFoundError("MENU_PLAN_NOT_FOUND", "메뉴 정보를 찾을 수 없습니다.")
	}

	l.metrics.released(quantity)
	return nil
}

// SoldQuantity reads the current counter of a plan
func (l *AvailabilityLedger) SoldQuantity(ctx context.Context, menuPlanID uint) (int, error) {
	var plan models.MenuPlan
	if err := l.db.WithContext(ctx).Select("id", "sold_quantity").First(&plan, menuPlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, notFoundError("MENU_PLAN_NOT_FOUND", "메뉴 정보를 찾을 수 없습니다.")
		}
		return 0, persistenceError(err)
	}
	return plan.SoldQuantity, nil
}

func (l *AvailabilityLedger) increment(ctx context.Context, menuPlanID uint, quantity int) error {
	if quantity <= 0 {
		return validationError("INVALID_QUANTITY", "수량은 1개 이상이어야 합니다.")
	}

	q := l.db.WithContext(ctx).Model(&models.MenuPlan{}).Where("id = ?", menuPlanID)
	if l.enforceLimit {
		q = q.Where("quantity_limit IS NULL OR sold_quantity + ? <= quantity_limit", quantity)
	}

	res := q.UpdateColumn("sold_quantity", gorm.Expr("sold_quantity + ?", quantity))
	if res.Error != nil {
		return persistenceError(fmt.Errorf("reserve menu plan %d: %w", menuPlanID, res.Error))
	}
	if res.RowsAffected == 0 {
		if l.enforceLimit {
			if _, err := l.SoldQuantity(ctx, menuPlanID); err != nil {
				return err
			}
			return policyError("SOLD_OUT", "준비된 수량이 모두 판매되었습니다.")
		}
		return notFoundError("MENU_PLAN_NOT_FOUND", "메뉴 정보를 찾을 수 없습니다.")
	}
	return nil
}
