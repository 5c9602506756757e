package payment

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryingGateway оборачивает шлюз повторами временных ошибок.
type RetryingGateway struct {
	next   domain.PaymentGateway
	config RetryConfig
	logger *log.Entry
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingGateway создаёт шлюз с retry логикой.
func NewRetryingGateway(next domain.PaymentGateway, config RetryConfig, logger *log.Entry) *RetryingGateway {
	if logger == nil {
		logger = log.WithField("component", "payment-retry")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &RetryingGateway{
		next:   next,
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Charge повторяет списание, пока ошибка временная и попытки не исчерпаны.
func (g *RetryingGateway) Charge(ctx context.Context, req domain.PaymentRequest) (domain.PaymentStatus, error) {
	var (
		status  domain.PaymentStatus
		lastErr error
	)
	delay := g.config.InitialDelay

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		status, lastErr = g.next.Charge(ctx, req)
		if lastErr == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"session_id": req.SessionID,
					"attempt":    attempt,
				}).Info("payment succeeded after retry")
			}
			return status, nil
		}

		if !shouldRetry(lastErr) {
			return status, lastErr
		}

		if attempt < g.config.MaxAttempts {
			g.logger.WithError(lastErr).WithFields(log.Fields{
				"session_id": req.SessionID,
				"attempt":    attempt,
				"delay":      delay,
			}).Warn("payment failed, retrying")

			if err := g.sleep(ctx, delay); err != nil {
				return domain.PaymentStatusFailed, err
			}

			// Экспоненциальная задержка с ограничением
			delay = time.Duration(float64(delay) * g.config.BackoffFactor)
			if g.config.MaxDelay > 0 && delay > g.config.MaxDelay {
				delay = g.config.MaxDelay
			}
		}
	}

	g.logger.WithError(lastErr).WithFields(log.Fields{
		"session_id":   req.SessionID,
		"max_attempts": g.config.MaxAttempts,
	}).Error("payment failed after all retry attempts")
	return status, lastErr
}

// shouldRetry повторяет только временные ошибки провайдера.
func shouldRetry(err error) bool {
	if errors.Is(err, domain.ErrPaymentDeclined) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrPaymentTemporary)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.PaymentGateway = (*RetryingGateway)(nil)
