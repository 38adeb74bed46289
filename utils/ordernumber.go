package utils

import (
	"fmt"
	"time"
)

const (
	// MenuDateLayout is the storage format of a business day
	MenuDateLayout = "2006-01-02"
	// OrderDayLayout is the date prefix of an order number
	OrderDayLayout = "20060102"
	// MaxDailySequence is the largest sequence a 4-digit order number can hold
	MaxDailySequence = 9999
)

// OrderNumberError is returned when a sequence does not fit an order number
type OrderNumberError struct {
	Code    string
	Message string
}

func (e *OrderNumberError) Error() string {
	return e.Message
}

// BusinessDay returns t's calendar day in loc as YYYY-MM-DD
func BusinessDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(MenuDateLayout)
}

// OrderDay returns t's calendar day in loc as YYYYMMDD
func OrderDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(OrderDayLayout)
}

// FormatOrderNumber builds "YYYYMMDD-NNNN" from a day key and a 1-based sequence
func FormatOrderNumber(day string, seq int) (string, error) {
	if seq < 1 || seq > MaxDailySequence {
		return "", &OrderNumberError{
			Code:    "SEQUENCE_OUT_OF_RANGE",
			Message: fmt.Sprintf("daily sequence %d is outside 1..%d", seq, MaxDailySequence),
		}
	}
	return fmt.Sprintf("%s-%04d", day, seq), nil
}
