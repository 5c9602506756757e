package domain

import "errors"

var (
	// ErrEmptyCart — попытка открыть или подтвердить оплату пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentDeclined — платёж отклонён провайдером (бизнес-ошибка, повторять нельзя).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentTemporary — временная ошибка платёжного провайдера, можно повторить попытку.
	ErrPaymentTemporary = errors.New("payment temporary error")
	// ErrPaymentMethodRequired — подтверждение оплаты без выбранного способа.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrUnknownPaymentMethod — способ оплаты вне допустимого набора.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrCheckoutInProgress — оплата уже обрабатывается, новая попытка запрещена.
	ErrCheckoutInProgress = errors.New("checkout is already processing")
	// ErrInvalidCheckoutTransition — переход не разрешён из текущего состояния оплаты.
	ErrInvalidCheckoutTransition = errors.New("invalid checkout transition")

	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductIDInvalid — идентификатор товара должен быть положительным.
	ErrProductIDInvalid = errors.New("product id must be positive")
	// ErrDuplicateProduct — в каталоге два товара с одинаковым идентификатором.
	ErrDuplicateProduct = errors.New("duplicate product id")
	// ErrProductNameRequired — у товара пустое название.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrProductPriceNegative — отрицательная цена товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// ErrProductStockNegative — отрицательный остаток на складе.
	ErrProductStockNegative = errors.New("product stock must be non-negative")
	// ErrUnknownCategory — категория вне закрытого набора.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownSortKey — неизвестный ключ сортировки.
	ErrUnknownSortKey = errors.New("unknown sort key")

	// ErrSessionNotFound возвращается, если кассовая сессия не найдена.
	ErrSessionNotFound = errors.New("session not found")
	// ErrReceiptNotFound возвращается, если чек не найден в репозитории.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrReceiptExists — чек с таким ID уже сохранён.
	ErrReceiptExists = errors.New("receipt already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsCheckoutRejected проверяет, отклонена ли операция оплаты на границе
// (пустая корзина, параллельная попытка или недопустимый переход).
func IsCheckoutRejected(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrCheckoutInProgress) ||
		errors.Is(err, ErrInvalidCheckoutTransition) ||
		errors.Is(err, ErrPaymentMethodRequired)
}
