package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod — способ оплаты, выбранный на кассе.
type PaymentMethod string

const (
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodDigital PaymentMethod = "digital"
	PaymentMethodOther   PaymentMethod = "other"
)

// Valid сообщает, входит ли способ в допустимый набор.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodDigital, PaymentMethodOther:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod разбирает способ оплаты из строки.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, raw)
	}
	return m, nil
}

// PaymentStatus описывает ответ платёжного провайдера.
type PaymentStatus string

const (
	// PaymentStatusCaptured — деньги списаны.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusDeclined — провайдер отклонил платёж.
	PaymentStatusDeclined PaymentStatus = "declined"
	// PaymentStatusFailed — техническая ошибка, исход неизвестен.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentRequest — запрос на списание по одной попытке оплаты.
type PaymentRequest struct {
	SessionID string
	Attempt   int
	Method    PaymentMethod
	Amount    decimal.Decimal
}
