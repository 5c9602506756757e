package pos

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
)

// Операции корзины для метрик.
const (
	opAdd            = "add"
	opChangeQuantity = "change_quantity"
	opRemove         = "remove"
	opClear          = "clear"
	opCustomerLabel  = "customer_label"
)

// Terminal — одна касса. Все операции выполняются под мьютексом до конца,
// единственная асинхронная граница: задача оплаты в планировщике.
type Terminal struct {
	mu         sync.Mutex
	deps       Dependencies
	logger     *log.Entry
	session    Session
	pending    domain.TaskHandle
	lastActive time.Time
}

// NewTerminal создаёт кассу с пустой корзиной.
func NewTerminal(id string, deps Dependencies) *Terminal {
	deps = deps.withDefaults()
	now := deps.Now()
	return &Terminal{
		deps:       deps,
		logger:     deps.Logger.WithField("session_id", id),
		session:    newSession(id, now),
		lastActive: now,
	}
}

// ID возвращает идентификатор сессии.
func (t *Terminal) ID() string {
	return t.session.ID
}

// Snapshot возвращает текущее представление сессии.
func (t *Terminal) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Terminal) snapshotLocked() Snapshot {
	return buildSnapshot(t.session, t.deps.Catalog, *t.deps.TaxRate, t.deps.Now())
}

// LastActive возвращает время последней операции.
func (t *Terminal) LastActive() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActive
}

// Processing сообщает, ожидает ли касса исхода платежа.
func (t *Terminal) Processing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Checkout.State == domain.CheckoutProcessing
}

func (t *Terminal) touchLocked() {
	t.session.Version++
	t.lastActive = t.deps.Now()
}

// SetSearch задаёт строку поиска.
func (t *Terminal) SetSearch(query string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.session.Criteria.Search = query
	t.touchLocked()
	return t.snapshotLocked()
}

// SetCategory задаёт фильтр по категории.
func (t *Terminal) SetCategory(category domain.Category) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if category != domain.CategoryAll && !category.Valid() {
		return t.snapshotLocked(), fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	t.session.Criteria.Category = category
	t.touchLocked()
	return t.snapshotLocked(), nil
}

// SetSort задаёт ключ сортировки.
func (t *Terminal) SetSort(key domain.SortKey) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parsed, err := domain.ParseSortKey(string(key))
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.Criteria.Sort = parsed
	t.touchLocked()
	return t.snapshotLocked(), nil
}

// SetCriteria заменяет критерии целиком.
func (t *Terminal) SetCriteria(criteria domain.Criteria) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	category, err := domain.ParseCategory(string(criteria.Category))
	if err != nil {
		return t.snapshotLocked(), err
	}
	sort, err := domain.ParseSortKey(string(criteria.Sort))
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.Criteria = domain.Criteria{Search: criteria.Search, Category: category, Sort: sort}
	t.touchLocked()
	return t.snapshotLocked(), nil
}

// mutateCartLocked применяет изменение корзины. Пока платёж обрабатывается,
// корзина заморожена: исход применяется к тому составу, который был оплачен.
func (t *Terminal) mutateCartLocked(op string, fn func(domain.Cart) domain.Cart) error {
	if t.session.Checkout.State == domain.CheckoutProcessing {
		return domain.ErrCheckoutInProgress
	}
	t.session.Cart = fn(t.session.Cart)
	t.touchLocked()
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordCartMutation(op)
	}
	return nil
}

// AddToCart добавляет одну единицу товара из каталога.
func (t *Terminal) AddToCart(id domain.ProductID) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	product, ok := t.deps.Catalog.Product(id)
	if !ok {
		return t.snapshotLocked(), fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}

	var notification domain.Notification
	err := t.mutateCartLocked(opAdd, func(c domain.Cart) domain.Cart {
		next, n := c.Add(product, t.deps.Now())
		notification = n
		return next
	})
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.LastAdded = &notification

	t.logger.WithFields(log.Fields{
		"product_id": id,
		"quantity":   t.session.Cart.Quantity(id),
	}).Debug("product added to cart")
	return t.snapshotLocked(), nil
}

// ChangeQuantity меняет количество позиции на delta; для отсутствующей позиции ничего не делает.
func (t *Terminal) ChangeQuantity(id domain.ProductID, delta int) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.mutateCartLocked(opChangeQuantity, func(c domain.Cart) domain.Cart {
		return c.ChangeQuantity(id, delta)
	})
	return t.snapshotLocked(), err
}

// RemoveFromCart удаляет позицию целиком.
func (t *Terminal) RemoveFromCart(id domain.ProductID) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.mutateCartLocked(opRemove, func(c domain.Cart) domain.Cart {
		return c.Remove(id)
	})
	return t.snapshotLocked(), err
}

// ClearCart очищает корзину и метку покупателя.
func (t *Terminal) ClearCart() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hadLines := !t.session.Cart.IsEmpty()
	if err := t.mutateCartLocked(opClear, domain.Cart.Clear); err != nil {
		return t.snapshotLocked(), err
	}
	if hadLines {
		t.recordLocked(domain.TimelineCartCleared, "manual")
		t.enqueueLocked(kafka.NewCheckoutEvent(kafka.EventTypeCartCleared, t.session.ID, t.deps.Now()))
	}
	return t.snapshotLocked(), nil
}

// SetCustomerLabel задаёт свободную метку покупателя.
func (t *Terminal) SetCustomerLabel(label string) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.mutateCartLocked(opCustomerLabel, func(c domain.Cart) domain.Cart {
		return c.WithCustomerLabel(label)
	})
	return t.snapshotLocked(), err
}

// OpenCheckout открывает диалог оплаты.
func (t *Terminal) OpenCheckout() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasOpen := t.session.Checkout.State == domain.CheckoutAwaitingMethod
	next, err := t.session.Checkout.Open(t.session.Cart)
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.Checkout = next
	t.touchLocked()
	if !wasOpen {
		t.recordLocked(domain.TimelineCheckoutOpened, "")
	}
	return t.snapshotLocked(), nil
}

// SelectPaymentMethod выбирает способ оплаты в открытом диалоге.
func (t *Terminal) SelectPaymentMethod(method domain.PaymentMethod) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.session.Checkout.SelectMethod(method)
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.Checkout = next
	t.session.Cart = t.session.Cart.WithPaymentMethod(method)
	t.touchLocked()
	return t.snapshotLocked(), nil
}

// ConfirmCheckout переводит попытку в processing и отправляет платёж.
func (t *Terminal) ConfirmCheckout() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.session.Checkout.Begin(t.session.Cart)
	if err != nil {
		return t.snapshotLocked(), err
	}
	t.session.Checkout = next
	t.touchLocked()

	charged := t.session.Cart
	totals := domain.ComputeTotals(charged, t.deps.Catalog, *t.deps.TaxRate)
	attempt := next.Attempt
	t.recordLocked(domain.TimelineCheckoutStarted, string(next.Method))

	req := domain.PaymentRequest{
		SessionID: t.session.ID,
		Attempt:   attempt,
		Method:    next.Method,
		Amount:    totals.Total,
	}
	t.pending = t.deps.Processor.Submit(req, func(result checkout.Result) {
		t.finish(attempt, charged, result)
	})
	return t.snapshotLocked(), nil
}

// DismissCheckout закрывает диалог. Во время processing платёж не отменяется.
func (t *Terminal) DismissCheckout() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.session.Checkout
	t.session.Checkout = prev.Dismiss()
	t.touchLocked()
	if prev.DialogOpen {
		t.recordLocked(domain.TimelineCheckoutDismissed, string(prev.State))
	}
	return t.snapshotLocked()
}

// Close отменяет незавершённый платёж; используется при удалении сессии.
func (t *Terminal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != 0 && t.deps.Processor.Cancel(t.pending) {
		t.logger.Warn("pending payment canceled on session close")
	}
	t.pending = 0
}

// finish применяет исход платежа. Устаревшие исходы игнорируются.
func (t *Terminal) finish(attempt int, charged domain.Cart, result checkout.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.session.Checkout
	if current.State != domain.CheckoutProcessing || current.Attempt != attempt {
		t.logger.WithField("attempt", attempt).Warn("stale payment outcome ignored")
		return
	}
	t.pending = 0
	now := t.deps.Now()

	if !result.Approved() {
		reason := domain.ErrPaymentDeclined.Error()
		if result.Err != nil {
			reason = result.Err.Error()
		}
		next, err := current.Decline(reason)
		if err != nil {
			t.logger.WithError(err).Error("decline transition failed")
			return
		}
		t.session.Checkout = next
		t.touchLocked()

		totals := domain.ComputeTotals(charged, t.deps.Catalog, *t.deps.TaxRate)
		t.recordLocked(domain.TimelineCheckoutDeclined, reason)
		t.enqueueLocked(kafka.NewDeclinedEvent(t.session.ID, attempt, current.Method, totals, reason, now))
		if t.deps.Metrics != nil {
			t.deps.Metrics.RecordCheckoutDeclined()
		}
		t.logger.WithFields(log.Fields{
			"attempt": attempt,
			"method":  current.Method,
			"reason":  reason,
		}).Warn("checkout declined")
		return
	}

	receipt := domain.NewReceipt(t.deps.NewID(), t.session.ID, charged, t.deps.Catalog, *t.deps.TaxRate, current.Method, now)
	if t.deps.Receipts != nil {
		if err := t.deps.Receipts.Save(receipt); err != nil {
			t.logger.WithError(err).WithField("receipt_id", receipt.ID).Error("failed to save receipt")
		}
	}

	next, err := current.Complete(receipt.ID)
	if err != nil {
		t.logger.WithError(err).Error("complete transition failed")
		return
	}
	t.session.Checkout = next
	t.session.Cart = t.session.Cart.Clear()
	t.session.LastReceiptID = receipt.ID
	t.touchLocked()

	t.recordLocked(domain.TimelineCheckoutCompleted, receipt.ID)
	t.recordLocked(domain.TimelineCartCleared, "checkout")
	t.enqueueLocked(kafka.NewCompletedEvent(receipt, attempt))
	t.enqueueLocked(kafka.NewCheckoutEvent(kafka.EventTypeCartCleared, t.session.ID, now))
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordCheckoutCompleted(receipt.Totals.Total.InexactFloat64())
	}

	t.logger.WithFields(log.Fields{
		"attempt":    attempt,
		"method":     current.Method,
		"receipt_id": receipt.ID,
		"total":      domain.Money(receipt.Totals.Total),
		"duration":   result.Duration,
	}).Info("checkout completed")
}

func (t *Terminal) recordLocked(eventType, reason string) {
	if t.deps.Timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		SessionID: t.session.ID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  t.deps.Now(),
	}
	if err := t.deps.Timeline.Append(event); err != nil {
		t.logger.WithError(err).WithField("event", eventType).Warn("failed to append timeline event")
		return
	}
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordTimelineEvent()
	}
}

func (t *Terminal) enqueueLocked(event *kafka.CheckoutEvent) {
	if t.deps.Outbox == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.logger.WithError(err).Warn("failed to marshal outbox payload")
		return
	}
	_, err = t.deps.Outbox.Enqueue(domain.OutboxMessage{
		ID:            t.deps.NewID(),
		AggregateType: kafka.AggregateTypeSession,
		AggregateID:   t.session.ID,
		EventType:     string(event.EventType),
		Payload:       payload,
	})
	if err != nil {
		t.logger.WithError(err).WithField("event", event.EventType).Warn("failed to enqueue outbox event")
		return
	}
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordOutboxEvent()
	}
}
