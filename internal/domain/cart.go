package domain

import (
	"math"
	"strings"
	"time"
)

// CartLine — позиция корзины. Quantity всегда больше нуля:
// позиция с нулевым количеством удаляется, а не хранится.
type CartLine struct {
	ProductID ProductID
	Quantity  int
}

// Cart — неизменяемый снимок корзины. Каждая мутация возвращает новый Cart,
// исходный снимок не меняется. Позиции идут в порядке первого добавления.
type Cart struct {
	Lines         []CartLine
	CustomerLabel string
	PaymentMethod PaymentMethod
}

func (c Cart) clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	c.Lines = lines
	return c
}

func (c Cart) indexOf(id ProductID) int {
	for i, line := range c.Lines {
		if line.ProductID == id {
			return i
		}
	}
	return -1
}

// Add добавляет одну единицу товара: увеличивает существующую позицию или
// добавляет новую в конец. Остаток на складе не проверяется. Вместе с корзиной
// возвращается уведомление «добавлено» для слоя представления.
func (c Cart) Add(p Product, now time.Time) (Cart, Notification) {
	next := c.clone()
	if i := next.indexOf(p.ID); i >= 0 {
		next.Lines[i].Quantity++
	} else {
		next.Lines = append(next.Lines, CartLine{ProductID: p.ID, Quantity: 1})
	}
	return next, NewNotification(p, now)
}

// ChangeQuantity прибавляет delta к количеству. Если результат <= 0,
// позиция удаляется целиком. Отсутствующая позиция игнорируется.
// Количество насыщается на math.MaxInt.
func (c Cart) ChangeQuantity(id ProductID, delta int) Cart {
	i := c.indexOf(id)
	if i < 0 {
		return c
	}
	next := c.clone()
	current := next.Lines[i].Quantity
	qty := current + delta
	if delta > 0 && delta > math.MaxInt-current {
		qty = math.MaxInt
	}
	if qty <= 0 {
		next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
		return next
	}
	next.Lines[i].Quantity = qty
	return next
}

// Remove удаляет позицию, если она есть.
func (c Cart) Remove(id ProductID) Cart {
	i := c.indexOf(id)
	if i < 0 {
		return c
	}
	next := c.clone()
	next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
	return next
}

// Clear удаляет все позиции и сбрасывает метку покупателя.
// Выбранный способ оплаты сохраняется.
func (c Cart) Clear() Cart {
	return Cart{PaymentMethod: c.PaymentMethod}
}

// WithCustomerLabel задаёт произвольную метку покупателя.
func (c Cart) WithCustomerLabel(label string) Cart {
	next := c.clone()
	next.CustomerLabel = strings.TrimSpace(label)
	return next
}

// WithPaymentMethod задаёт способ оплаты.
func (c Cart) WithPaymentMethod(m PaymentMethod) Cart {
	next := c.clone()
	next.PaymentMethod = m
	return next
}

// Line возвращает позицию по товару.
func (c Cart) Line(id ProductID) (CartLine, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// Quantity возвращает количество товара в корзине (0, если позиции нет).
func (c Cart) Quantity(id ProductID) int {
	line, _ := c.Line(id)
	return line.Quantity
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
