package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

const (
	// DefaultDelay — фиксированная задержка обработки платежа.
	DefaultDelay         = 1500 * time.Millisecond
	defaultChargeTimeout = 5 * time.Second
)

// Result — исход одной попытки оплаты.
type Result struct {
	Status   domain.PaymentStatus
	Err      error
	Duration time.Duration
}

// Approved сообщает, списаны ли деньги.
func (r Result) Approved() bool {
	return r.Err == nil && r.Status == domain.PaymentStatusCaptured
}

// Option настраивает Processor.
type Option func(*Processor)

// WithDelay задаёт задержку обработки платежа.
func WithDelay(delay time.Duration) Option {
	return func(p *Processor) {
		p.delay = delay
	}
}

// WithChargeTimeout ограничивает время одного обращения к шлюзу.
func WithChargeTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		p.chargeTimeout = timeout
	}
}

// WithLogger задаёт logger процессора.
func WithLogger(logger *log.Entry) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor отвечает за асинхронную границу оплаты: откладывает обращение
// к шлюзу на фиксированную задержку и передаёт исход в callback.
type Processor struct {
	gateway       domain.PaymentGateway
	scheduler     domain.Scheduler
	delay         time.Duration
	chargeTimeout time.Duration
	logger        *log.Entry
	metrics       *metrics.POSMetrics
}

// NewProcessor создаёт процессор оплаты.
func NewProcessor(gateway domain.PaymentGateway, scheduler domain.Scheduler, options ...Option) *Processor {
	p := &Processor{
		gateway:       gateway,
		scheduler:     scheduler,
		delay:         DefaultDelay,
		chargeTimeout: defaultChargeTimeout,
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "checkout-processor")
	}
	if p.delay < 0 {
		p.delay = 0
	}
	if p.chargeTimeout <= 0 {
		p.chargeTimeout = defaultChargeTimeout
	}
	return p
}

// Delay возвращает задержку обработки.
func (p *Processor) Delay() time.Duration {
	return p.delay
}

// Submit планирует списание. done вызывается ровно один раз из задачи
// планировщика, если её не отменили.
func (p *Processor) Submit(req domain.PaymentRequest, done func(Result)) domain.TaskHandle {
	submitted := time.Now()
	if p.metrics != nil {
		p.metrics.RecordCheckoutStarted()
	}

	p.logger.WithFields(log.Fields{
		"session_id": req.SessionID,
		"attempt":    req.Attempt,
		"method":     req.Method,
		"amount":     domain.Money(req.Amount),
		"delay":      p.delay,
	}).Info("payment submitted")

	return p.scheduler.Schedule(p.delay, func() {
		result := p.charge(req)
		result.Duration = time.Since(submitted)
		if p.metrics != nil {
			p.metrics.RecordCheckoutDuration(result.Duration)
		}
		done(result)
	})
}

// Cancel отменяет запланированное списание.
func (p *Processor) Cancel(handle domain.TaskHandle) bool {
	return p.scheduler.Cancel(handle)
}

func (p *Processor) charge(req domain.PaymentRequest) Result {
	ctx, cancel := context.WithTimeout(context.Background(), p.chargeTimeout)
	defer cancel()

	fields := log.Fields{
		"session_id": req.SessionID,
		"attempt":    req.Attempt,
		"method":     req.Method,
	}

	status, err := p.gateway.Charge(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentDeclined) {
			err = fmt.Errorf("%w: %w", domain.ErrPaymentDeclined, err)
		}
		if status == domain.PaymentStatusCaptured || status == "" {
			status = domain.PaymentStatusFailed
		}
		p.logger.WithError(err).WithFields(fields).Warn("payment failed")
		return Result{Status: status, Err: err}
	}

	if status != domain.PaymentStatusCaptured {
		p.logger.WithField("status", status).WithFields(fields).Warn("unexpected payment status")
		return Result{
			Status: status,
			Err:    fmt.Errorf("%w: status %s", domain.ErrPaymentDeclined, status),
		}
	}

	p.logger.WithFields(fields).Info("payment captured")
	return Result{Status: status}
}
