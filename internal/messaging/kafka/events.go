package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// Checkout события
	EventTypeCheckoutCompleted EventType = "checkout.completed"
	EventTypeCheckoutDeclined  EventType = "checkout.declined"

	// Cart события
	EventTypeCartCleared EventType = "cart.cleared"
)

// Known сообщает, публикует ли касса события этого типа.
func (t EventType) Known() bool {
	switch t {
	case EventTypeCheckoutCompleted, EventTypeCheckoutDeclined, EventTypeCartCleared:
		return true
	}
	return false
}

// AggregateTypeSession — тип агрегата для outbox-сообщений кассовой сессии.
const AggregateTypeSession = "pos_session"

// Topics для Kafka
const (
	TopicCheckoutEvents  = "pos.checkout.events"
	TopicDeadLetterQueue = "pos.dlq" // Dead Letter Queue для failed messages
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderReplayedFrom  = "x-replayed-from"
)

// CheckoutEvent представляет событие кассовой сессии
type CheckoutEvent struct {
	EventType EventType      `json:"event_type"`
	SessionID string         `json:"session_id"`
	ReceiptID string         `json:"receipt_id,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Method    string         `json:"method,omitempty"`
	Subtotal  string         `json:"subtotal,omitempty"`
	Tax       string         `json:"tax,omitempty"`
	Total     string         `json:"total,omitempty"`
	ItemCount int            `json:"item_count,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewCheckoutEvent создает новое событие кассовой сессии
func NewCheckoutEvent(eventType EventType, sessionID string, at time.Time) *CheckoutEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return &CheckoutEvent{
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: at.UTC(),
	}
}

// WithTotals заполняет денежные поля события.
func (e *CheckoutEvent) WithTotals(totals domain.Totals) *CheckoutEvent {
	e.Subtotal = domain.Money(totals.Subtotal)
	e.Tax = domain.Money(totals.Tax)
	e.Total = domain.Money(totals.Total)
	e.ItemCount = totals.ItemCount
	return e
}

// NewCompletedEvent строит событие успешной оплаты по чеку.
func NewCompletedEvent(receipt domain.Receipt, attempt int) *CheckoutEvent {
	event := NewCheckoutEvent(EventTypeCheckoutCompleted, receipt.SessionID, receipt.CreatedAt)
	event.ReceiptID = receipt.ID
	event.Attempt = attempt
	event.Method = string(receipt.Method)
	if receipt.CustomerLabel != "" {
		event.Metadata = map[string]any{"customer_label": receipt.CustomerLabel}
	}
	return event.WithTotals(receipt.Totals)
}

// NewDeclinedEvent строит событие отказа в оплате.
func NewDeclinedEvent(sessionID string, attempt int, method domain.PaymentMethod, totals domain.Totals, reason string, at time.Time) *CheckoutEvent {
	event := NewCheckoutEvent(EventTypeCheckoutDeclined, sessionID, at)
	event.Attempt = attempt
	event.Method = string(method)
	event.Reason = reason
	return event.WithTotals(totals)
}

// ParseCheckoutEvent разбирает событие, разворачивая конверт outbox.
// Сообщение без конверта разбирается как само событие.
func ParseCheckoutEvent(message *sarama.ConsumerMessage) (*CheckoutEvent, error) {
	envelope, err := ParseEnvelope(message)
	if err != nil {
		return nil, err
	}
	raw := []byte(envelope.Payload)
	if len(raw) == 0 {
		raw = message.Value
	}

	var event CheckoutEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode checkout event: %w", err)
	}
	if event.EventType == "" {
		event.EventType = EventType(envelope.EventType)
	}
	return &event, nil
}

// Validate проверяет, что событие можно доставить потребителям.
func (e *CheckoutEvent) Validate() error {
	if !e.EventType.Known() {
		return fmt.Errorf("unknown checkout event type %q", e.EventType)
	}
	if e.SessionID == "" {
		return fmt.Errorf("checkout event %s has no session_id", e.EventType)
	}
	return nil
}
