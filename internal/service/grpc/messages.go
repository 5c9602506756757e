package grpcsvc

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/pos"
)

// Запросы PosService.

type OpenSessionRequest struct {
	CustomerLabel string `json:"customer_label,omitempty"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type UpdateCriteriaRequest struct {
	SessionID string `json:"session_id"`
	Search    string `json:"search"`
	Category  string `json:"category"`
	Sort      string `json:"sort"`
}

type CartItemRequest struct {
	SessionID string `json:"session_id"`
	ProductID int64  `json:"product_id"`
}

type ChangeQuantityRequest struct {
	SessionID string `json:"session_id"`
	ProductID int64  `json:"product_id"`
	Delta     int    `json:"delta"`
}

type SetCustomerRequest struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
}

type SelectPaymentMethodRequest struct {
	SessionID string `json:"session_id"`
	Method    string `json:"method"`
}

type GetReceiptRequest struct {
	ReceiptID string `json:"receipt_id"`
}

type ListReceiptsRequest struct {
	SessionID string `json:"session_id"`
	PageSize  int    `json:"page_size,omitempty"`
}

type GetCatalogRequest struct{}

// Ответы PosService.

type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Category   string `json:"category"`
	Stock      int    `json:"stock"`
	Glyph      string `json:"glyph,omitempty"`
	Popularity int    `json:"popularity"`
}

type CartLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type Totals struct {
	Subtotal  string `json:"subtotal"`
	Tax       string `json:"tax"`
	Total     string `json:"total"`
	ItemCount int    `json:"item_count"`
}

type Criteria struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Sort     string `json:"sort"`
}

type Checkout struct {
	State      string `json:"state"`
	Method     string `json:"method,omitempty"`
	DialogOpen bool   `json:"dialog_open"`
	Attempt    int    `json:"attempt"`
	Failure    string `json:"failure,omitempty"`
	ReceiptID  string `json:"receipt_id,omitempty"`
}

type Notification struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ExpiresUnix int64  `json:"expires_unix_ms"`
}

type Session struct {
	ID            string        `json:"id"`
	Version       uint64        `json:"version"`
	Criteria      Criteria      `json:"criteria"`
	Lines         []CartLine    `json:"lines"`
	CustomerLabel string        `json:"customer_label,omitempty"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Totals        Totals        `json:"totals"`
	Checkout      Checkout      `json:"checkout"`
	Visible       []Product     `json:"visible"`
	Notification  *Notification `json:"notification,omitempty"`
	CanCheckout   bool          `json:"can_checkout"`
	LastReceiptID string        `json:"last_receipt_id,omitempty"`
}

type SessionResponse struct {
	Session Session `json:"session"`
}

type CloseSessionResponse struct {
	SessionID string `json:"session_id"`
}

type Receipt struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	Lines         []CartLine `json:"lines"`
	Totals        Totals     `json:"totals"`
	Method        string     `json:"method"`
	CustomerLabel string     `json:"customer_label,omitempty"`
	CreatedUnix   int64      `json:"created_unix"`
}

type ReceiptResponse struct {
	Receipt Receipt `json:"receipt"`
}

type ListReceiptsResponse struct {
	Receipts []Receipt `json:"receipts"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unix_time"`
}

type TimelineResponse struct {
	SessionID string          `json:"session_id"`
	Events    []TimelineEvent `json:"events"`
}

type CatalogResponse struct {
	Products   []Product `json:"products"`
	Categories []string  `json:"categories"`
}

func toProduct(p domain.Product) Product {
	return Product{
		ID:         int64(p.ID),
		Name:       p.Name,
		Price:      domain.Money(p.Price),
		Category:   string(p.Category),
		Stock:      p.Stock,
		Glyph:      p.Glyph,
		Popularity: p.Popularity,
	}
}

func toProducts(products []domain.Product) []Product {
	result := make([]Product, 0, len(products))
	for _, p := range products {
		result = append(result, toProduct(p))
	}
	return result
}

func toTotals(t domain.Totals) Totals {
	return Totals{
		Subtotal:  domain.Money(t.Subtotal),
		Tax:       domain.Money(t.Tax),
		Total:     domain.Money(t.Total),
		ItemCount: t.ItemCount,
	}
}

func toSession(s pos.Snapshot, catalog domain.Catalog) Session {
	lines := make([]CartLine, 0, len(s.Cart.Lines))
	for _, line := range s.Cart.Lines {
		view := CartLine{ProductID: int64(line.ProductID), Quantity: line.Quantity}
		if p, ok := catalog.Product(line.ProductID); ok {
			view.Name = p.Name
			view.UnitPrice = domain.Money(p.Price)
			view.LineTotal = domain.Money(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		lines = append(lines, view)
	}

	session := Session{
		ID:      s.SessionID,
		Version: s.Version,
		Criteria: Criteria{
			Search:   s.Criteria.Search,
			Category: string(s.Criteria.Category),
			Sort:     string(s.Criteria.Sort),
		},
		Lines:         lines,
		CustomerLabel: s.Cart.CustomerLabel,
		PaymentMethod: string(s.Cart.PaymentMethod),
		Totals:        toTotals(s.Totals),
		Checkout: Checkout{
			State:      string(s.Checkout.State),
			Method:     string(s.Checkout.Method),
			DialogOpen: s.Checkout.DialogOpen,
			Attempt:    s.Checkout.Attempt,
			Failure:    s.Checkout.Failure,
			ReceiptID:  s.Checkout.ReceiptID,
		},
		Visible:       toProducts(s.Visible),
		CanCheckout:   s.CanCheckout,
		LastReceiptID: s.LastReceiptID,
	}
	if s.Notification != nil {
		session.Notification = &Notification{
			ProductID:   int64(s.Notification.ProductID),
			ProductName: s.Notification.ProductName,
			ExpiresUnix: s.Notification.ExpiresAt.UnixMilli(),
		}
	}
	return session
}

func toReceipt(r domain.Receipt) Receipt {
	lines := make([]CartLine, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, CartLine{
			ProductID: int64(line.ProductID),
			Name:      line.Name,
			UnitPrice: domain.Money(line.UnitPrice),
			Quantity:  line.Quantity,
			LineTotal: domain.Money(line.LineTotal),
		})
	}
	return Receipt{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Lines:         lines,
		Totals:        toTotals(r.Totals),
		Method:        string(r.Method),
		CustomerLabel: r.CustomerLabel,
		CreatedUnix:   r.CreatedAt.Unix(),
	}
}

func toTimeline(events []domain.TimelineEvent) []TimelineEvent {
	result := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return result
}
