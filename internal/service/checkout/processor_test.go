package checkout

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/scheduler"
	"github.com/vladislavdragonenkov/pos/internal/service/payment"
)

func request() domain.PaymentRequest {
	return domain.PaymentRequest{
		SessionID: "session-1",
		Attempt:   1,
		Method:    domain.PaymentMethodCash,
		Amount:    decimal.RequireFromString("43.20"),
	}
}

func newProcessor(gateway domain.PaymentGateway, clock *scheduler.Manual) *Processor {
	return NewProcessor(gateway, clock,
		WithDelay(DefaultDelay),
		WithMetrics(metrics.NewPOSMetricsWithRegisterer(prometheus.NewRegistry())),
	)
}

func TestProcessor_ChargesAfterDelay(t *testing.T) {
	clock := scheduler.NewManual()
	gateway := payment.NewMockService()
	p := newProcessor(gateway, clock)

	var results []Result
	p.Submit(request(), func(r Result) { results = append(results, r) })

	clock.Advance(DefaultDelay - time.Millisecond)
	assert.Empty(t, results)
	assert.Equal(t, 0, gateway.CallCount())

	clock.Advance(time.Millisecond)
	require.Len(t, results, 1)
	assert.True(t, results[0].Approved())
	assert.Equal(t, domain.PaymentStatusCaptured, results[0].Status)
	assert.Equal(t, 1, gateway.CallCount())
}

func TestProcessor_DeclineIsReported(t *testing.T) {
	clock := scheduler.NewManual()
	gateway := payment.NewSimulatedGateway(payment.WithDeclinedMethods(domain.PaymentMethodCash))
	p := newProcessor(gateway, clock)

	var got Result
	p.Submit(request(), func(r Result) { got = r })
	clock.Advance(DefaultDelay)

	assert.False(t, got.Approved())
	require.ErrorIs(t, got.Err, domain.ErrPaymentDeclined)
	assert.Equal(t, domain.PaymentStatusDeclined, got.Status)
}

func TestProcessor_GatewayErrorMapsToDecline(t *testing.T) {
	clock := scheduler.NewManual()
	gateway := payment.NewMockService()
	gateway.Status = domain.PaymentStatusFailed
	gateway.Err = errors.New("provider unreachable")
	p := newProcessor(gateway, clock)

	var got Result
	p.Submit(request(), func(r Result) { got = r })
	clock.Advance(DefaultDelay)

	require.ErrorIs(t, got.Err, domain.ErrPaymentDeclined)
	assert.Contains(t, got.Err.Error(), "provider unreachable")
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
}

func TestProcessor_UnexpectedStatusMapsToDecline(t *testing.T) {
	clock := scheduler.NewManual()
	gateway := payment.NewMockService()
	gateway.Status = domain.PaymentStatusFailed
	p := newProcessor(gateway, clock)

	var got Result
	p.Submit(request(), func(r Result) { got = r })
	clock.Advance(DefaultDelay)

	require.ErrorIs(t, got.Err, domain.ErrPaymentDeclined)
}

func TestProcessor_Cancel(t *testing.T) {
	clock := scheduler.NewManual()
	gateway := payment.NewMockService()
	p := newProcessor(gateway, clock)

	called := false
	handle := p.Submit(request(), func(Result) { called = true })
	require.True(t, p.Cancel(handle))

	clock.Advance(time.Hour)
	assert.False(t, called)
	assert.Equal(t, 0, gateway.CallCount())
	assert.False(t, p.Cancel(handle))
}

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(payment.NewMockService(), scheduler.NewManual(), WithDelay(-time.Second))
	assert.Equal(t, time.Duration(0), p.Delay())

	p = NewProcessor(payment.NewMockService(), scheduler.NewManual())
	assert.Equal(t, DefaultDelay, p.Delay())
}
