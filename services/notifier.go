package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Notification types
const (
	NotificationOrderCreated    = "order.created"
	NotificationPaymentNotified = "payment.notified"
	NotificationStatusChanged   = "order.status_changed"
	NotificationOrderExpired    = "order.expired"
)

// Notification is what the engine tells the outside world after a commit
type Notification struct {
	Type          string               `json:"type"`
	OrderID       uint                 `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	CustomerName  string               `json:"customer_name"`
	CustomerPhone string               `json:"customer_phone"`
	TotalAmount   int64                `json:"total_amount"`
	Action        string               `json:"action,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// Notifier delivers notifications (SMS gateway, admin console, ...).
// Delivery failures never undo the business operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

func newNotification(kind string, o *models.Order, now time.Time) Notification {
	return Notification{
		Type:          kind,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		TotalAmount:   o.TotalAmount,
		OccurredAt:    now,
	}
}

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

// Notify logs n
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.Info().
		Str("type", n.Type).
		Uint("order_id", n.OrderID).
		Str("order_number", n.OrderNumber).
		Str("status", string(n.Status)).
		Str("payment_status", string(n.PaymentStatus)).
		Int64("total_amount", n.TotalAmount).
		Str("reason", n.Reason).
		Msg("order notification")
	return nil
}

// NATSNotifier publishes notifications as JSON on "<prefix>.<type>"
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSNotifier connects to url and publishes under prefix
func NewNATSNotifier(url, prefix string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("lunchbox-orders-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, prefix: prefix}, nil
}

// Notify publishes n
func (n *NATSNotifier) Notify(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	subject := n.prefix + "." + notification.Type
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}

// notify sends n and logs failures instead of returning them
func notify(ctx context.Context, notifier Notifier, logger zerolog.Logger, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		logger.Warn().Err(err).
			Str("type", n.Type).
			Uint("order_id", n.OrderID).
			Msg("Failed to deliver notification")
	}
}
