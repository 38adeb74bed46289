package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ExpiryReason is the cancel reason written by auto-expiry
const ExpiryReason = "입금 기한 만료"

type ledgerEffect int

const (
	ledgerNone ledgerEffect = iota
	ledgerRelease
	ledgerReapply
)

// transition describes one state machine action. decide inspects the locked
// order and returns the target state; noop means the order is already where
// the action would put it.
type transition struct {
	action string
	decide func(o *models.Order, now time.Time) (target, error)
}

type target struct {
	status   models.OrderStatus
	payment  models.PaymentStatus
	deadline time.Time
	ledger   ledgerEffect
	noop     bool
}

// OrderStateMachine moves orders through their lifecycle and keeps the
// availability ledger in step with cancellations and restores.
type OrderStateMachine struct {
	db     *gorm.DB
	ledger *AvailabilityLedger
	opts   OrderOptions
	logger zerolog.Logger
}

// NewOrderStateMachine creates the state machine
func NewOrderStateMachine(db *gorm.DB, opts OrderOptions) *OrderStateMachine {
	opts = opts.withDefaults()
	return &OrderStateMachine{
		db:     db,
		ledger: NewAvailabilityLedger(db, opts.EnforceQuantityLimit, opts.Metrics),
		opts:   opts,
		logger: opts.Logger.With().Str("component", "order_state").Logger(),
	}
}

func invalidTransition(o *models.Order, action string) *ServiceError {
	return policyError("INVALID_TRANSITION",
		fmt.Sprintf("현재 상태(%s)에서는 처리할 수 없는 요청입니다.", o.Status)).
		withCause(fmt.Errorf("%s not allowed from %s/%s", action, o.Status, o.PaymentStatus))
}

// ConfirmPayment marks a PENDING order as paid and CONFIRMED
func (m *OrderStateMachine) ConfirmPayment(ctx context.Context, orderID uint, actor string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, "", transition{
		action: models.OrderActionConfirmPayment,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if o.Status != models.OrderStatusPending || o.PaymentStatus != models.PaymentStatusUnpaid {
				if o.PaymentStatus == models.PaymentStatusPaid && o.Status != models.OrderStatusCancelled {
					return target{}, policyError("ALREADY_PAID", "이미 입금 확인된 주문입니다.")
				}
				return target{}, invalidTransition(o, models.OrderActionConfirmPayment)
			}
			return target{status: models.OrderStatusConfirmed, payment: models.PaymentStatusPaid}, nil
		},
	})
}

// Advance moves a paid order one step forward: CONFIRMED → PREPARING → READY → COMPLETED
func (m *OrderStateMachine) Advance(ctx context.Context, orderID uint, actor string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, "", transition{
		action: models.OrderActionAdvance,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if o.Status == models.OrderStatusPending {
				return target{}, policyError("PAYMENT_NOT_CONFIRMED", "입금 확인 후 진행할 수 있습니다.")
			}
			next, ok := o.Status.Next()
			if !ok {
				return target{}, invalidTransition(o, models.OrderActionAdvance)
			}
			return target{status: next, payment: o.PaymentStatus}, nil
		},
	})
}

// Revert undoes the last forward step. Reverting CONFIRMED also undoes the
// payment confirmation.
func (m *OrderStateMachine) Revert(ctx context.Context, orderID uint, actor string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, "", transition{
		action: models.OrderActionRevert,
		decide: func(o *models.Order, now time.Time) (target, error) {
			prev, ok := o.Status.Previous()
			if !ok {
				return target{}, invalidTransition(o, models.OrderActionRevert)
			}
			payment := o.PaymentStatus
			if prev == models.OrderStatusPending {
				payment = models.PaymentStatusUnpaid
			}
			return target{status: prev, payment: payment}, nil
		},
	})
}

// Cancel cancels an active order and releases its stock. Cancelling an
// already cancelled order changes nothing, so stock is never released twice.
func (m *OrderStateMachine) Cancel(ctx context.Context, orderID uint, actor, reason string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, strings.TrimSpace(reason), transition{
		action: models.OrderActionCancel,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if o.Status == models.OrderStatusCancelled {
				return target{noop: true}, nil
			}
			if !o.Status.Cancellable() {
				return target{}, policyError("ORDER_COMPLETED", "완료된 주문은 취소할 수 없습니다.")
			}
			return target{status: models.OrderStatusCancelled, payment: o.PaymentStatus, ledger: ledgerRelease}, nil
		},
	})
}

// Restore brings a cancelled order back to PENDING+UNPAID and re-reserves its
// stock. A deadline that already passed is renewed with a fresh payment window.
func (m *OrderStateMachine) Restore(ctx context.Context, orderID uint, actor string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, "", transition{
		action: models.OrderActionRestore,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if o.Status != models.OrderStatusCancelled {
				return target{}, policyError("ORDER_NOT_CANCELLED", "취소된 주문만 복구할 수 있습니다.")
			}
			t := target{status: models.OrderStatusPending, payment: models.PaymentStatusUnpaid, ledger: ledgerReapply}
			if !o.PaymentDeadline.After(now) {
				t.deadline = now.Add(m.opts.PaymentWindow)
			}
			return t, nil
		},
	})
}

// ExtendDeadline pushes the payment deadline of an unpaid order back by the
// configured extension without touching its status.
func (m *OrderStateMachine) ExtendDeadline(ctx context.Context, orderID uint, actor string) (*models.Order, error) {
	return m.apply(ctx, orderID, actor, "", transition{
		action: models.OrderActionExtendDeadline,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if o.Status != models.OrderStatusPending || o.PaymentStatus != models.PaymentStatusUnpaid {
				return target{}, policyError("ORDER_NOT_AWAITING_PAYMENT", "입금 대기 중인 주문이 아닙니다.")
			}
			return target{
				status:   o.Status,
				payment:  o.PaymentStatus,
				deadline: o.PaymentDeadline.Add(m.opts.DeadlineExtension),
			}, nil
		},
	})
}

// expire cancels one overdue order. Every condition is rechecked under the
// row lock; an order that was paid, notified or extended meanwhile is left alone.
func (m *OrderStateMachine) expire(ctx context.Context, orderID uint) (bool, error) {
	expired := false
	_, err := m.apply(ctx, orderID, actorSystem, ExpiryReason, transition{
		action: models.OrderActionExpire,
		decide: func(o *models.Order, now time.Time) (target, error) {
			if !isOverdue(o, now) {
				return target{noop: true}, nil
			}
			expired = true
			return target{status: models.OrderStatusCancelled, payment: o.PaymentStatus, ledger: ledgerRelease}, nil
		},
	})
	return expired && err == nil, err
}

// isOverdue is the auto-expiry rule. Notified orders wait for an admin.
func isOverdue(o *models.Order, now time.Time) bool {
	return o.Status == models.OrderStatusPending &&
		o.PaymentStatus == models.PaymentStatusUnpaid &&
		!o.PaymentNotified &&
		now.After(o.PaymentDeadline)
}

// ExpireOverdue cancels every unpaid, un-notified order past its deadline,
// one transaction per order, and returns how many were cancelled.
func (m *OrderStateMachine) ExpireOverdue(ctx context.Context) (int, error) {
	now := m.opts.Clock.now()

	var ids []uint
	if err := m.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_status = ? AND payment_notified = ? AND payment_deadline < ?",
			models.OrderStatusPending, models.PaymentStatusUnpaid, false, now).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, persistenceError(err)
	}

	count := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		expired, err := m.expire(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Uint("order_id", id).Msg("Failed to expire order")
			errs = append(errs, err)
			continue
		}
		if expired {
			count++
		}
	}

	m.opts.Metrics.expired(count)
	if count > 0 {
		m.logger.Info().Int("expired", count).Msg("Expired unpaid orders")
	}
	return count, errors.Join(errs...)
}

// apply runs one transition in a single transaction: lock, decide, move
// stock for every item, guarded status update, history event.
func (m *OrderStateMachine) apply(ctx context.Context, orderID uint, actor, reason string, tr transition) (*models.Order, error) {
	now := m.opts.Clock.now()
	if actor == "" {
		actor = actorSystem
	}

	var order *models.Order
	var from models.OrderStatus
	changed := false

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order = o
		from = o.Status

		t, err := tr.decide(o, now)
		if err != nil {
			return err
		}
		if t.noop {
			return nil
		}
		if !models.Compatible(t.status, t.payment) {
			return policyError("INVALID_TRANSITION", "허용되지 않는 상태 조합입니다.").
				withCause(fmt.Errorf("%s would produce %s/%s", tr.action, t.status, t.payment))
		}

		ledger := m.ledger.WithTx(tx)
		for _, item := range o.Items {
			switch t.ledger {
			case ledgerRelease:
				err = ledger.Release(ctx, item.MenuPlanID, item.Quantity)
			case ledgerReapply:
				err = ledger.Reapply(ctx, item.MenuPlanID, item.Quantity)
			}
			if err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"status":         t.status,
			"payment_status": t.payment,
			"updated_at":     now,
		}
		if !t.deadline.IsZero() {
			updates["payment_deadline"] = t.deadline
		}
		switch t.status {
		case models.OrderStatusCancelled:
			if reason != "" {
				updates["cancel_reason"] = reason
			}
		case models.OrderStatusPending:
			if from == models.OrderStatusCancelled {
				updates["cancel_reason"] = nil
			}
		}

		// guarded on the state we decided from; a concurrent writer makes this miss
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND payment_status = ?", o.ID, o.Status, o.PaymentStatus).
			Updates(updates)
		if res.Error != nil {
			return persistenceError(res.Error)
		}
		if res.RowsAffected == 0 {
			return conflictError("ORDER_CONFLICT", fmt.Errorf("order %d changed during %s", o.ID, tr.action))
		}

		if err := recordEvent(ctx, tx, &models.OrderEvent{
			OrderID:    o.ID,
			Action:     tr.action,
			FromStatus: from,
			ToStatus:   t.status,
			Reason:     reason,
			Actor:      actor,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		o.Status = t.status
		o.PaymentStatus = t.payment
		o.UpdatedAt = now
		if !t.deadline.IsZero() {
			o.PaymentDeadline = t.deadline
		}
		if t.status == models.OrderStatusCancelled && reason != "" {
			o.CancelReason = &reason
		}
		if t.status == models.OrderStatusPending && from == models.OrderStatusCancelled {
			o.CancelReason = nil
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	if changed {
		m.opts.Metrics.transitioned(tr.action)
		m.logger.Info().
			Uint("order_id", order.ID).
			Str("action", tr.action).
			Str("from", string(from)).
			Str("to", string(order.Status)).
			Str("actor", actor).
			Msg("Order transition")

		kind := NotificationStatusChanged
		if tr.action == models.OrderActionExpire {
			kind = NotificationOrderExpired
		}
		n := newNotification(kind, order, now)
		n.Action = tr.action
		n.Reason = reason
		notify(ctx, m.opts.Notifier, m.logger, n)
	}
	return order, nil
}
