package domain

import "fmt"

// CheckoutState описывает состояние одной попытки оплаты.
type CheckoutState string

const (
	// CheckoutIdle — диалог оплаты закрыт.
	CheckoutIdle CheckoutState = "idle"
	// CheckoutAwaitingMethod — диалог открыт, ждём выбора способа оплаты.
	CheckoutAwaitingMethod CheckoutState = "awaiting_payment_method"
	// CheckoutProcessing — платёж отправлен, ждём исхода.
	CheckoutProcessing CheckoutState = "processing"
	// CheckoutCompleted — платёж прошёл, корзина очищена.
	CheckoutCompleted CheckoutState = "completed"
	// CheckoutDeclined — платёж отклонён, корзина сохранена для повтора.
	CheckoutDeclined CheckoutState = "declined"
)

// Checkout — машина состояний оплаты. Методы не меняют получателя,
// а возвращают новое состояние.
type Checkout struct {
	State      CheckoutState
	Method     PaymentMethod
	DialogOpen bool
	// Attempt увеличивается при каждом переходе в processing.
	Attempt   int
	Failure   string
	ReceiptID string
}

// NewCheckout возвращает закрытый диалог оплаты.
func NewCheckout() Checkout {
	return Checkout{State: CheckoutIdle}
}

func (c Checkout) invalid(event string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidCheckoutTransition, event, c.State)
}

// CanInitiate сообщает, можно ли начать оплату (кнопка оплаты активна).
func (c Checkout) CanInitiate(cart Cart) bool {
	return c.State != CheckoutProcessing && !cart.IsEmpty()
}

// Open открывает диалог оплаты. Новая попытка начинается с выбора способа.
func (c Checkout) Open(cart Cart) (Checkout, error) {
	switch c.State {
	case CheckoutProcessing:
		return c, ErrCheckoutInProgress
	case CheckoutAwaitingMethod:
		return c, nil
	}
	if cart.IsEmpty() {
		return c, ErrEmptyCart
	}
	return Checkout{
		State:      CheckoutAwaitingMethod,
		Method:     cart.PaymentMethod,
		DialogOpen: true,
		Attempt:    c.Attempt,
	}, nil
}

// SelectMethod выбирает способ оплаты. После отказа возвращает к выбору способа.
func (c Checkout) SelectMethod(m PaymentMethod) (Checkout, error) {
	if c.State != CheckoutAwaitingMethod && c.State != CheckoutDeclined {
		if c.State == CheckoutProcessing {
			return c, ErrCheckoutInProgress
		}
		return c, c.invalid("select_method")
	}
	if !m.Valid() {
		return c, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, m)
	}
	c.State = CheckoutAwaitingMethod
	c.Method = m
	c.DialogOpen = true
	return c, nil
}

// Begin переводит попытку в processing.
func (c Checkout) Begin(cart Cart) (Checkout, error) {
	switch c.State {
	case CheckoutProcessing:
		return c, ErrCheckoutInProgress
	case CheckoutAwaitingMethod, CheckoutDeclined:
	default:
		return c, c.invalid("confirm")
	}
	if cart.IsEmpty() {
		return c, ErrEmptyCart
	}
	if !c.Method.Valid() {
		return c, ErrPaymentMethodRequired
	}
	c.State = CheckoutProcessing
	c.Attempt++
	c.Failure = ""
	c.ReceiptID = ""
	return c, nil
}

// Complete фиксирует успешную оплату и закрывает диалог.
func (c Checkout) Complete(receiptID string) (Checkout, error) {
	if c.State != CheckoutProcessing {
		return c, c.invalid("complete")
	}
	c.State = CheckoutCompleted
	c.DialogOpen = false
	c.Failure = ""
	c.ReceiptID = receiptID
	return c, nil
}

// Decline фиксирует отказ. Диалог остаётся в прежнем состоянии видимости,
// чтобы пользователь мог выбрать другой способ и повторить.
func (c Checkout) Decline(reason string) (Checkout, error) {
	if c.State != CheckoutProcessing {
		return c, c.invalid("decline")
	}
	c.State = CheckoutDeclined
	c.Failure = reason
	return c, nil
}

// Dismiss закрывает диалог. Во время processing попытка не отменяется:
// исход платежа всё равно применится к корзине.
func (c Checkout) Dismiss() Checkout {
	if c.State == CheckoutProcessing {
		c.DialogOpen = false
		return c
	}
	return Checkout{State: CheckoutIdle, Method: c.Method, Attempt: c.Attempt}
}
