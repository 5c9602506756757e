// dlq-reprocess возвращает события кассы из DLQ в топик событий.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	events      map[kafka.EventType]bool
	sessionID   string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// accepts применяет фильтры по типу события и сессии.
func (c config) accepts(event *kafka.CheckoutEvent) bool {
	if len(c.events) > 0 && !c.events[event.EventType] {
		return false
	}
	return c.sessionID == "" || c.sessionID == event.SessionID
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "dlq-reprocess")

	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("dlq replay failed")
	}
}

func readConfig(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		cfg     config
		brokers string
		events  string
	)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCheckoutEvents, "topic for replayed checkout events")
	fs.StringVar(&events, "events", "", "comma-separated event types to replay (default: all)")
	fs.StringVar(&cfg.sessionID, "session", "", "replay only events of this session")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max dead letters to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events instead of a dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokers)

	cfg.events = make(map[kafka.EventType]bool)
	for _, name := range splitList(events) {
		eventType := kafka.EventType(name)
		if !eventType.Known() {
			return config{}, fmt.Errorf("unknown event type %q", name)
		}
		cfg.events[eventType] = true
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "" || strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("source-topic and target-topic are required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, errors.New("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	client, err := sarama.NewClient(cfg.brokers, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	var sink messageSink
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		sink = producer
	}

	reader := &partitionReader{offsets: client, partitions: consumer, topic: cfg.sourceTopic, idle: cfg.idleTimeout}
	replay := newReplayer(cfg, sink, logger)
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"execute":      cfg.execute,
	}).Info("dlq replay started")

	err = reader.Read(ctx, cfg.limit, replay.visit)
	logger.WithFields(replay.stats.fields()).Info("dlq replay finished")
	return err
}

// messageSink — получатель восстановленных событий (*kafka.Producer).
type messageSink interface {
	Send(msg kafka.Message) error
}

type replayStats struct {
	scanned  int
	replayed int
	filtered int
	skipped  int
	byType   map[kafka.EventType]int
}

func (s replayStats) fields() log.Fields {
	fields := log.Fields{
		"scanned":  s.scanned,
		"replayed": s.replayed,
		"filtered": s.filtered,
		"skipped":  s.skipped,
	}
	types := make([]string, 0, len(s.byType))
	for eventType := range s.byType {
		types = append(types, string(eventType))
	}
	sort.Strings(types)
	for _, eventType := range types {
		fields["replayed_"+eventType] = s.byType[kafka.EventType(eventType)]
	}
	return fields
}

type replayer struct {
	cfg    config
	sink   messageSink
	logger *log.Entry
	now    func() time.Time
	stats  replayStats
}

func newReplayer(cfg config, sink messageSink, logger *log.Entry) *replayer {
	return &replayer{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		stats:  replayStats{byType: make(map[kafka.EventType]int)},
	}
}

// visit обрабатывает одну запись DLQ. Нераспознанные записи пропускаются,
// ошибка отправки прерывает прогон.
func (r *replayer) visit(msg *sarama.ConsumerMessage) error {
	r.stats.scanned++
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	candidate, err := decodeDeadLetter(msg, r.cfg.targetTopic, r.now())
	if err != nil {
		r.stats.skipped++
		entry.WithError(err).Warn("dead letter skipped")
		return nil
	}
	if !r.cfg.accepts(candidate.event) {
		r.stats.filtered++
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"session_id": candidate.event.SessionID,
		"event_type": candidate.event.EventType,
		"topic":      candidate.message.Topic,
	})
	if r.cfg.execute {
		if r.sink == nil {
			return errors.New("execute mode requires a producer")
		}
		if err := r.sink.Send(candidate.message); err != nil {
			return fmt.Errorf("replay offset %d: %w", msg.Offset, err)
		}
		entry.Info("checkout event replayed")
	} else {
		entry.Info("replay candidate")
	}
	r.stats.replayed++
	r.stats.byType[candidate.event.EventType]++
	return nil
}

type replayCandidate struct {
	message kafka.Message
	event   *kafka.CheckoutEvent
}

// decodeDeadLetter восстанавливает исходное событие из записи DLQ.
// Поддерживаются записи consumer-а (kafka.FailedMessage) и outbox worker-а
// (конверт с outbox.DeadLetter внутри).
func decodeDeadLetter(msg *sarama.ConsumerMessage, targetTopic string, now time.Time) (replayCandidate, error) {
	var out kafka.Message
	if failed, ok := kafka.ParseFailedMessage(msg.Value); ok {
		out = kafka.Message{Topic: targetTopic, Key: failed.Key, Value: []byte(failed.Value)}
	} else {
		envelope, err := kafka.ParseEnvelope(msg)
		if err != nil {
			return replayCandidate{}, err
		}
		letter, err := outbox.ParseDeadLetter(envelope.Payload)
		if err != nil {
			return replayCandidate{}, err
		}
		if out, err = kafka.EnvelopeFor(letter.Message(), now).Message(targetTopic); err != nil {
			return replayCandidate{}, err
		}
	}

	event, err := kafka.ParseCheckoutEvent(&sarama.ConsumerMessage{Value: out.Value})
	if err != nil {
		return replayCandidate{}, err
	}
	if err := event.Validate(); err != nil {
		return replayCandidate{}, err
	}
	if out.Key == "" {
		out.Key = event.SessionID
	}
	out.Headers = map[string]string{
		kafka.HeaderEventType:    string(event.EventType),
		kafka.HeaderReplayedFrom: fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
	}
	return replayCandidate{message: out, event: event}, nil
}
