package payment

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// SimulatedGateway — детерминированная замена внешнего платёжного провайдера.
// Одобряет всё, кроме явно отключённых способов оплаты или внедрённой ошибки.
// Задержку обработки моделирует планировщик, а не шлюз.
type SimulatedGateway struct {
	mu       sync.Mutex
	declined map[domain.PaymentMethod]bool
	failWith error
	calls    int
	logger   *log.Entry
}

// Option настраивает SimulatedGateway.
type Option func(*SimulatedGateway)

// WithDeclinedMethods задаёт способы оплаты, которые всегда отклоняются.
func WithDeclinedMethods(methods ...domain.PaymentMethod) Option {
	return func(g *SimulatedGateway) {
		for _, m := range methods {
			g.declined[m] = true
		}
	}
}

// WithLogger задаёт logger шлюза.
func WithLogger(logger *log.Entry) Option {
	return func(g *SimulatedGateway) {
		g.logger = logger
	}
}

// NewSimulatedGateway создаёт шлюз, одобряющий платежи по умолчанию.
func NewSimulatedGateway(options ...Option) *SimulatedGateway {
	g := &SimulatedGateway{declined: make(map[domain.PaymentMethod]bool)}
	for _, option := range options {
		option(g)
	}
	if g.logger == nil {
		g.logger = log.WithField("component", "payment-gateway")
	}
	return g
}

// InjectFailure заставляет все следующие списания вернуть err (nil снимает сбой).
func (g *SimulatedGateway) InjectFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

// Charge применяет детерминированные правила к запросу.
func (g *SimulatedGateway) Charge(ctx context.Context, req domain.PaymentRequest) (domain.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	fields := log.Fields{
		"session_id": req.SessionID,
		"attempt":    req.Attempt,
		"method":     req.Method,
		"amount":     domain.Money(req.Amount),
	}

	if err := ctx.Err(); err != nil {
		return domain.PaymentStatusFailed, err
	}
	if g.failWith != nil {
		g.logger.WithFields(fields).WithError(g.failWith).Debug("injected payment failure")
		return domain.PaymentStatusFailed, g.failWith
	}
	if g.declined[req.Method] {
		g.logger.WithFields(fields).Info("payment declined by simulated gateway")
		return domain.PaymentStatusDeclined, domain.ErrPaymentDeclined
	}

	g.logger.WithFields(fields).Debug("payment captured by simulated gateway")
	return domain.PaymentStatusCaptured, nil
}

// Calls возвращает число обращений к шлюзу.
func (g *SimulatedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var _ domain.PaymentGateway = (*SimulatedGateway)(nil)
