package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// Charge списывает сумму попытки оплаты. Отказ провайдера возвращается как ErrPaymentDeclined.
	Charge(ctx context.Context, req PaymentRequest) (PaymentStatus, error)
}

// TaskHandle идентифицирует запланированную задачу.
type TaskHandle uint64

// Scheduler откладывает выполнение функции и позволяет отменить его.
type Scheduler interface {
	// Schedule выполнит fn не раньше чем через delay.
	Schedule(delay time.Duration, fn func()) TaskHandle
	// Cancel отменяет задачу; false, если она уже выполнена или неизвестна.
	Cancel(handle TaskHandle) bool
}

// ReceiptRepository хранит чеки завершённых оплат.
type ReceiptRepository interface {
	// Save сохраняет чек. ErrReceiptExists, если ID уже занят.
	Save(receipt Receipt) error
	// Get возвращает чек или ErrReceiptNotFound.
	Get(id string) (Receipt, error)
	// ListBySession возвращает чеки сессии от новых к старым.
	ListBySession(sessionID string, limit int) ([]Receipt, error)
}

// TimelineRepository хранит события жизненного цикла оплаты по сессиям.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(sessionID string) ([]TimelineEvent, error)
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
