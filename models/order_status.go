package models

// OrderStatus is the fulfilment axis of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus is the payment axis of an order
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// forward progress after payment confirmation
var fulfilmentFlow = []OrderStatus{
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether an order in s may move to CANCELLED
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady:
		return true
	}
	return false
}

// Next returns the status after s in the fulfilment flow.
// PENDING is excluded: leaving it goes through payment confirmation.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for i := 0; i < len(fulfilmentFlow)-1; i++ {
		if fulfilmentFlow[i] == s {
			return fulfilmentFlow[i+1], true
		}
	}
	return "", false
}

// Previous returns the status one step back, used to undo operator mistakes
func (s OrderStatus) Previous() (OrderStatus, bool) {
	if s == OrderStatusConfirmed {
		return OrderStatusPending, true
	}
	for i := 1; i < len(fulfilmentFlow); i++ {
		if fulfilmentFlow[i] == s {
			return fulfilmentFlow[i-1], true
		}
	}
	return "", false
}

// Valid reports whether p is a known payment status
func (p PaymentStatus) Valid() bool {
	return p == PaymentStatusUnpaid || p == PaymentStatusPaid
}

// Compatible is the two-axis matrix: anything past PENDING implies PAID,
// PENDING implies UNPAID and CANCELLED accepts either.
func Compatible(s OrderStatus, p PaymentStatus) bool {
	switch s {
	case OrderStatusPending:
		return p == PaymentStatusUnpaid
	case OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted:
		return p == PaymentStatusPaid
	case OrderStatusCancelled:
		return p.Valid()
	}
	return false
}
