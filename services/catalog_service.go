package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"gorm.io/gorm"
)

// DailyOffer is the read-only view of a product's menu plan for one day
type DailyOffer struct {
	MenuPlanID    uint   `json:"menu_plan_id"`
	ProductID     uint   `json:"product_id"`
	ProductName   string `json:"product_name"`
	ProductType   string `json:"product_type"`
	MenuDate      string `json:"menu_date"`
	Price         int64  `json:"price"`
	QuantityLimit *int   `json:"quantity_limit"`
	SoldQuantity  int    `json:"sold_quantity"`
	Remaining     *int   `json:"remaining"`
}

// CatalogService reads menu plans. Catalog editing lives elsewhere.
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService creates a catalog reader
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListDailyMenu returns every orderable offer for day
func (s *CatalogService) ListDailyMenu(ctx context.Context, day string) ([]DailyOffer, error) {
	var plans []models.MenuPlan
	if err := s.db.WithContext(ctx).
		Preload("Product").
		Where("menu_date = ? AND active = ?", day, true).
		Order("id ASC").
		Find(&plans).Error; err != nil {
		return nil, persistenceError(err)
	}

	offers := make([]DailyOffer, 0, len(plans))
	for _, p := range plans {
		if p.Product.ID == 0 || p.Product.SaleStatus != models.ProductSelling {
			continue
		}
		offers = append(offers, toDailyOffer(p))
	}
	return offers, nil
}

func toDailyOffer(p models.MenuPlan) DailyOffer {
	return DailyOffer{
		MenuPlanID:    p.ID,
		ProductID:     p.ProductID,
		ProductName:   p.Product.Name,
		ProductType:   p.Product.Type,
		MenuDate:      p.MenuDate,
		Price:         p.Price,
		QuantityLimit: p.QuantityLimit,
		SoldQuantity:  p.SoldQuantity,
		Remaining:     p.Remaining(),
	}
}

// loadDailyOffers returns the active plan of day for every cart product,
// keyed by product id. A product without one fails the whole lookup.
func loadDailyOffers(ctx context.Context, db *gorm.DB, day string, lines []CartLine) (map[uint]models.MenuPlan, error) {
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	var plans []models.MenuPlan
	if err := db.WithContext(ctx).
		Preload("Product").
		Where("menu_date = ? AND active = ? AND product_id IN ?", day, true, ids).
		Find(&plans).Error; err != nil {
		return nil, persistenceError(err)
	}

	byProduct := make(map[uint]models.MenuPlan, len(plans))
	for _, p := range plans {
		// soft-deleted or unlisted products cannot be sold even with a plan
		if p.Product.ID == 0 || p.Product.SaleStatus != models.ProductSelling {
			continue
		}
		byProduct[p.ProductID] = p
	}

	for _, id := range ids {
		if _, ok := byProduct[id]; !ok {
			return nil, menuUnavailable(id)
		}
	}
	return byProduct, nil
}

func menuUnavailable(productID uint) *ServiceError {
	return &ServiceError{
		Kind:    KindNotFound,
		Code:    "MENU_UNAVAILABLE",
		Message: fmt.Sprintf("오늘 주문할 수 없는 메뉴가 포함되어 있습니다. (상품 #%d)", productID),
		Err:     errors.New("no active menu plan for product today"),
	}
}
