package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Session — явное состояние одной кассы: критерии витрины, корзина,
// состояние оплаты и последнее уведомление.
type Session struct {
	ID            string
	Criteria      domain.Criteria
	Cart          domain.Cart
	Checkout      domain.Checkout
	LastAdded     *domain.Notification
	LastReceiptID string
	OpenedAt      time.Time
	// Version растёт при каждом изменении состояния.
	Version uint64
}

func newSession(id string, now time.Time) Session {
	return Session{
		ID:       id,
		Criteria: domain.DefaultCriteria(),
		Checkout: domain.NewCheckout(),
		OpenedAt: now,
	}
}

// Snapshot — неизменяемое представление сессии для отрисовки.
type Snapshot struct {
	SessionID     string
	Version       uint64
	Criteria      domain.Criteria
	Cart          domain.Cart
	Checkout      domain.Checkout
	Visible       []domain.Product
	Totals        domain.Totals
	Notification  *domain.Notification
	CanCheckout   bool
	LastReceiptID string
}

func buildSnapshot(s Session, catalog domain.Catalog, taxRate decimal.Decimal, now time.Time) Snapshot {
	cart := s.Cart
	cart.Lines = append([]domain.CartLine(nil), s.Cart.Lines...)

	snapshot := Snapshot{
		SessionID:     s.ID,
		Version:       s.Version,
		Criteria:      s.Criteria,
		Cart:          cart,
		Checkout:      s.Checkout,
		Visible:       domain.VisibleProducts(catalog, s.Criteria),
		Totals:        domain.ComputeTotals(s.Cart, catalog, taxRate),
		CanCheckout:   s.Checkout.CanInitiate(s.Cart),
		LastReceiptID: s.LastReceiptID,
	}
	if s.LastAdded != nil && s.LastAdded.Active(now) {
		n := *s.LastAdded
		snapshot.Notification = &n
	}
	return snapshot
}
