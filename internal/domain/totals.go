package domain

import "github.com/shopspring/decimal"

// DefaultTaxRate — фиксированная ставка налога (8%).
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Totals — производные суммы корзины. Не хранятся, считаются заново.
type Totals struct {
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// ComputeTotals пересчитывает суммы по текущим позициям корзины:
// subtotal = Σ qty×price, tax = subtotal×rate, total = subtotal+tax.
// Позиции без товара в каталоге в денежные суммы не входят.
func ComputeTotals(cart Cart, catalog Catalog, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	count := 0

	for _, line := range cart.Lines {
		count += line.Quantity
		p, ok := catalog.Product(line.ProductID)
		if !ok {
			continue
		}
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tax := subtotal.Mul(taxRate)
	return Totals{
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal.Add(tax),
		ItemCount: count,
	}
}

// Money форматирует сумму с округлением до центов (только для отображения).
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
