package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine — позиция чека с зафиксированными ценой и названием.
type ReceiptLine struct {
	ProductID ProductID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Receipt — результат успешной оплаты.
type Receipt struct {
	ID            string
	SessionID     string
	Lines         []ReceiptLine
	Totals        Totals
	Method        PaymentMethod
	CustomerLabel string
	CreatedAt     time.Time
}

// NewReceipt фиксирует содержимое корзины на момент завершения оплаты.
func NewReceipt(id, sessionID string, cart Cart, catalog Catalog, taxRate decimal.Decimal, method PaymentMethod, now time.Time) Receipt {
	lines := make([]ReceiptLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		p, ok := catalog.Product(line.ProductID)
		if !ok {
			continue
		}
		lines = append(lines, ReceiptLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			LineTotal: p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	return Receipt{
		ID:            id,
		SessionID:     sessionID,
		Lines:         lines,
		Totals:        ComputeTotals(cart, catalog, taxRate),
		Method:        method,
		CustomerLabel: cart.CustomerLabel,
		CreatedAt:     now,
	}
}
