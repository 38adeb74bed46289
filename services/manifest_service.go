package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/utils"
	"gorm.io/gorm"
)

const manifestURLTTL = time.Hour

// ManifestItem is one line of a packing manifest
type ManifestItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
}

// ManifestOrder is one order in a daily manifest
type ManifestOrder struct {
	OrderNumber   string               `json:"order_number"`
	CustomerName  string               `json:"customer_name"`
	CustomerPhone string               `json:"customer_phone"`
	DeliveryType  models.DeliveryType  `json:"delivery_type"`
	Address       string               `json:"address,omitempty"`
	RequestNote   string               `json:"request_note,omitempty"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	TotalAmount   int64                `json:"total_amount"`
	Items         []ManifestItem       `json:"items"`
}

// Manifest is the exported document
type Manifest struct {
	Date        string          `json:"date"`
	GeneratedAt time.Time       `json:"generated_at"`
	Orders      []ManifestOrder `json:"orders"`
	Totals      map[string]int  `json:"totals"` // product name -> units
}

// ManifestExport describes a stored manifest
type ManifestExport struct {
	Key        string `json:"key"`
	URL        string `json:"url"`
	OrderCount int    `json:"order_count"`
}

// ManifestService exports a day's live orders as a packing manifest
type ManifestService struct {
	db    *gorm.DB
	store ObjectStore
	clock Clock
}

// NewManifestService creates the exporter
func NewManifestService(db *gorm.DB, store ObjectStore, clock Clock) *ManifestService {
	return &ManifestService{db: db, store: store, clock: clock}
}

// Build assembles the manifest of every non-cancelled order of day
func (s *ManifestService) Build(ctx context.Context, day string) (*Manifest, error) {
	if _, err := time.Parse(utils.MenuDateLayout, day); err != nil {
		return nil, validationError("INVALID_DATE", "날짜 형식이 올바르지 않습니다. (YYYY-MM-DD)")
	}

	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Where("order_date = ? AND status <> ?", day, models.OrderStatusCancelled).
		Order("order_number ASC").
		Find(&orders).Error; err != nil {
		return nil, persistenceError(err)
	}

	m := &Manifest{
		Date:        day,
		GeneratedAt: s.clock.now(),
		Orders:      make([]ManifestOrder, 0, len(orders)),
		Totals:      make(map[string]int),
	}
	for _, o := range orders {
		mo := ManifestOrder{
			OrderNumber:   o.OrderNumber,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			DeliveryType:  o.DeliveryType,
			Address:       utils.JoinAddress(o.Address, o.AddressDetail),
			RequestNote:   o.RequestNote,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			TotalAmount:   o.TotalAmount,
			Items:         make([]ManifestItem, 0, len(o.Items)),
		}
		for _, item := range o.Items {
			mo.Items = append(mo.Items, ManifestItem{
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				Amount:      item.Amount,
			})
			m.Totals[item.ProductName] += item.Quantity
		}
		m.Orders = append(m.Orders, mo)
	}
	return m, nil
}

// ExportDaily builds the manifest of day, stores it under
// manifests/<day>/<uuid>.json and returns a temporary download URL.
func (s *ManifestService) ExportDaily(ctx context.Context, day string) (*ManifestExport, error) {
	if s.store == nil {
		return nil, policyError("EXPORT_UNAVAILABLE", "파일 저장소가 설정되지 않았습니다.")
	}

	m, err := s.Build(ctx, day)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, persistenceError(fmt.Errorf("encode manifest: %w", err))
	}

	key := fmt.Sprintf("manifests/%s/%s.json", day, uuid.NewString())
	if err := s.store.PutObject(ctx, key, "application/json", body); err != nil {
		return nil, persistenceError(err)
	}

	url, err := s.store.PresignGet(ctx, key, manifestURLTTL)
	if err != nil {
		// nobody can download it, so don't leave it behind
		if delErr := s.store.DeleteObject(ctx, key); delErr != nil {
			err = errors.Join(err, fmt.Errorf("remove unsigned manifest %s: %w", key, delErr))
		}
		return nil, persistenceError(err)
	}

	return &ManifestExport{Key: key, URL: url, OrderCount: len(m.Orders)}, nil
}
