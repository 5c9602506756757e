package domain

import "time"

// NotificationTTL — сколько показывается уведомление «товар добавлен».
const NotificationTTL = 2000 * time.Millisecond

// Notification — полезная нагрузка уведомления о последнем добавленном товаре.
// Скрывает уведомление слой представления, движок лишь отдаёт срок.
type Notification struct {
	ProductID   ProductID
	ProductName string
	At          time.Time
	ExpiresAt   time.Time
}

// NewNotification создаёт уведомление для товара.
func NewNotification(p Product, now time.Time) Notification {
	return Notification{
		ProductID:   p.ID,
		ProductName: p.Name,
		At:          now,
		ExpiresAt:   now.Add(NotificationTTL),
	}
}

// Active сообщает, отображается ли ещё уведомление.
func (n Notification) Active(now time.Time) bool {
	return now.Before(n.ExpiresAt)
}
