package domain

import "time"

// Типы событий таймлайна оплаты.
const (
	TimelineCheckoutOpened    = "CheckoutOpened"
	TimelineCheckoutDismissed = "CheckoutDismissed"
	TimelineCheckoutStarted   = "CheckoutProcessing"
	TimelineCheckoutCompleted = "CheckoutCompleted"
	TimelineCheckoutDeclined  = "CheckoutDeclined"
	TimelineCartCleared       = "CartCleared"
)

// TimelineEvent описывает событие в жизненном цикле кассовой сессии.
type TimelineEvent struct {
	SessionID string
	Type      string
	Reason    string
	Occurred  time.Time
}
