package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/catalog"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
)

func envelopeMessage(t *testing.T, event *kafka.CheckoutEvent) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	raw, err := json.Marshal(kafka.Envelope{
		ID:            "outbox-1",
		AggregateType: kafka.AggregateTypeSession,
		AggregateID:   event.SessionID,
		EventType:     string(event.EventType),
		Payload:       payload,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicCheckoutEvents, Value: raw}
}

func TestSalesTally_AccumulatesCompletedReceipts(t *testing.T) {
	tally := newSalesTally(log.WithField("test", "tally"))
	products := catalog.Seed()

	cart := domain.Cart{Lines: []domain.CartLine{{ProductID: 9, Quantity: 2}}}
	receipt := domain.NewReceipt("r-1", "s-1", cart, products, domain.DefaultTaxRate, domain.PaymentMethodCash, time.Now())

	for i := 0; i < 2; i++ {
		require.NoError(t, tally.handle(context.Background(), envelopeMessage(t, kafka.NewCompletedEvent(receipt, 1))))
	}
	declined := kafka.NewDeclinedEvent("s-2", 1, domain.PaymentMethodCard, receipt.Totals, "card declined", time.Now())
	require.NoError(t, tally.handle(context.Background(), envelopeMessage(t, declined)))

	fields := tally.fields()
	assert.Equal(t, 2, fields["completed"])
	assert.Equal(t, 1, fields["declined"])
	assert.Equal(t, "51.84", fields["revenue"], "2 x 25.92")
	assert.Equal(t, "3.84", fields["tax"])
	assert.Equal(t, map[string]int{"cash": 2}, fields["methods"])
}

func TestSalesTally_RejectsMalformedMessages(t *testing.T) {
	tally := newSalesTally(log.WithField("test", "tally"))

	err := tally.handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not-json")})
	assert.Error(t, err)

	broken := kafka.NewCheckoutEvent(kafka.EventTypeCheckoutCompleted, "s-1", time.Now())
	broken.Total = "lots"
	assert.Error(t, tally.handle(context.Background(), envelopeMessage(t, broken)))
	assert.Equal(t, 0, tally.fields()["completed"])
}

func TestSalesTally_IgnoresUnknownEvents(t *testing.T) {
	tally := newSalesTally(log.WithField("test", "tally"))

	event := kafka.NewCheckoutEvent("session.renamed", "s-1", time.Now())
	require.NoError(t, tally.handle(context.Background(), envelopeMessage(t, event)))
	assert.Equal(t, 0, tally.fields()["completed"])
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	os.Args = append([]string{"pos-events"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs
	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestReadConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	withFlagArgs(t, []string{"-brokers= a:9092 , b:9092", "-max-retries=5"}, func() {
		cfg, err := readConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.brokers)
		assert.Equal(t, kafka.TopicCheckoutEvents, cfg.topic)
		assert.Equal(t, 5, cfg.maxRetries)
		assert.True(t, cfg.withDLQ)
	})

	withFlagArgs(t, []string{}, func() {
		_, err := readConfig()
		assert.ErrorContains(t, err, "brokers are required")
	})

	withFlagArgs(t, []string{"-brokers=a:9092", "-max-retries=0"}, func() {
		_, err := readConfig()
		assert.ErrorContains(t, err, "max-retries")
	})
}
