package pos

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/scheduler"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	"github.com/vladislavdragonenkov/pos/internal/service/payment"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

const (
	productA      domain.ProductID = 1
	productB      domain.ProductID = 2
	productIPhone domain.ProductID = 3
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock    *testClock
	sched    *scheduler.Manual
	gateway  *payment.SimulatedGateway
	receipts domain.ReceiptRepository
	timeline domain.TimelineRepository
	outbox   *memory.OutboxRepository
	registry *Registry
}

func testCatalog(t testing.TB) domain.Catalog {
	t.Helper()
	catalog, err := domain.NewCatalog([]domain.Product{
		{ID: productA, Name: "A", Price: decimal.RequireFromString("10.00"), Category: domain.CategoryElectronics, Stock: 5, Popularity: 10},
		{ID: productB, Name: "B", Price: decimal.RequireFromString("20.00"), Category: domain.CategoryClothing, Stock: 5, Popularity: 30},
		{ID: productIPhone, Name: "iPhone 14 Pro", Price: decimal.RequireFromString("999.00"), Category: domain.CategoryElectronics, Stock: 2, Popularity: 95},
	})
	require.NoError(t, err)
	return catalog
}

func newHarness(t testing.TB, options ...payment.Option) *harness {
	t.Helper()

	h := &harness{
		clock:    &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		sched:    scheduler.NewManual(),
		gateway:  payment.NewSimulatedGateway(options...),
		receipts: memory.NewReceiptRepository(),
		timeline: memory.NewTimelineRepository(),
		outbox:   memory.NewOutboxRepository(),
	}

	posMetrics := metrics.NewPOSMetricsWithRegisterer(prometheus.NewRegistry())
	var seq int
	var seqMu sync.Mutex

	h.registry = NewRegistry(Dependencies{
		Catalog:   testCatalog(t),
		Processor: checkout.NewProcessor(h.gateway, h.sched, checkout.WithMetrics(posMetrics)),
		Receipts:  h.receipts,
		Timeline:  h.timeline,
		Outbox:    h.outbox,
		Metrics:   posMetrics,
		Now:       h.clock.Now,
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	return h
}

// advance двигает и часы, и планировщик.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.sched.Advance(d)
}

func (h *harness) timelineTypes(t testing.TB, sessionID string) []string {
	t.Helper()
	events, err := h.timeline.List(sessionID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func (h *harness) outboxTypes() []string {
	pending := h.outbox.AllPending()
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	return types
}

func mustSnapshot(t testing.TB) func(Snapshot, error) Snapshot {
	return func(s Snapshot, err error) Snapshot {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

// readyForPayment собирает корзину и открывает оплату выбранным способом.
func readyForPayment(t testing.TB, terminal *Terminal, method domain.PaymentMethod, items ...domain.ProductID) {
	t.Helper()
	must := mustSnapshot(t)
	for _, id := range items {
		must(terminal.AddToCart(id))
	}
	must(terminal.OpenCheckout())
	must(terminal.SelectPaymentMethod(method))
}
