package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
)

const defaultReportInterval = 30 * time.Second

type config struct {
	brokers        []string
	groupID        string
	topic          string
	maxRetries     int
	withDLQ        bool
	reportInterval time.Duration
}

// salesTally сводит поток событий оплаты в итоги смены.
type salesTally struct {
	mu        sync.Mutex
	completed int
	declined  int
	cleared   int
	revenue   decimal.Decimal
	tax       decimal.Decimal
	byMethod  map[string]int
	logger    *log.Entry
}

func newSalesTally(logger *log.Entry) *salesTally {
	return &salesTally{byMethod: make(map[string]int), logger: logger}
}

// handle — kafka.MessageHandler. Ошибка разбора уводит сообщение в retry/DLQ.
func (t *salesTally) handle(_ context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.ParseCheckoutEvent(message)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.EventType {
	case kafka.EventTypeCheckoutCompleted:
		total, err := decimal.NewFromString(event.Total)
		if err != nil {
			return fmt.Errorf("completed event %s has invalid total %q: %w", event.ReceiptID, event.Total, err)
		}
		tax, err := decimal.NewFromString(event.Tax)
		if err != nil {
			return fmt.Errorf("completed event %s has invalid tax %q: %w", event.ReceiptID, event.Tax, err)
		}
		t.completed++
		t.revenue = t.revenue.Add(total)
		t.tax = t.tax.Add(tax)
		t.byMethod[event.Method]++
	case kafka.EventTypeCheckoutDeclined:
		t.declined++
	case kafka.EventTypeCartCleared:
		t.cleared++
	default:
		t.logger.WithField("event_type", event.EventType).Debug("ignoring unknown event type")
		return nil
	}

	t.logger.WithFields(log.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"receipt_id": event.ReceiptID,
		"total":      event.Total,
	}).Info("checkout event")
	return nil
}

func (t *salesTally) fields() log.Fields {
	t.mu.Lock()
	defer t.mu.Unlock()

	methods := make(map[string]int, len(t.byMethod))
	for k, v := range t.byMethod {
		methods[k] = v
	}
	return log.Fields{
		"completed": t.completed,
		"declined":  t.declined,
		"cleared":   t.cleared,
		"revenue":   domain.Money(t.revenue),
		"tax":       domain.Money(t.tax),
		"methods":   methods,
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.groupID, "group", "pos-events", "consumer group id")
	flag.StringVar(&cfg.topic, "topic", kafka.TopicCheckoutEvents, "checkout events topic")
	flag.IntVar(&cfg.maxRetries, "max-retries", 3, "processing attempts before a message goes to DLQ")
	flag.BoolVar(&cfg.withDLQ, "dlq", true, "send unprocessable messages to the DLQ topic")
	flag.DurationVar(&cfg.reportInterval, "report-interval", defaultReportInterval, "how often to log the sales summary")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.groupID) == "":
		return config{}, fmt.Errorf("group is required")
	case strings.TrimSpace(cfg.topic) == "":
		return config{}, fmt.Errorf("topic is required")
	case cfg.maxRetries <= 0:
		return config{}, fmt.Errorf("max-retries must be > 0")
	case cfg.reportInterval <= 0:
		return config{}, fmt.Errorf("report-interval must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	var dlqProducer *kafka.Producer
	if cfg.withDLQ {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return fmt.Errorf("create dlq producer: %w", err)
		}
		defer func() { _ = producer.Close() }()
		dlqProducer = producer
	}

	tally := newSalesTally(logger)
	consumer, err := kafka.NewConsumer(cfg.brokers, cfg.groupID, []string{cfg.topic}, tally.handle,
		kafka.WithMaxAttempts(cfg.maxRetries),
		kafka.WithDeadLetters(dlqProducer, kafka.TopicDeadLetterQueue),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.WithFields(tally.fields()).Info("final sales summary")
			return consumer.Stop()
		case <-ticker.C:
			logger.WithFields(tally.fields()).Info("sales summary")
		}
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "pos-events")
	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("pos-events exited with error")
	}
}
