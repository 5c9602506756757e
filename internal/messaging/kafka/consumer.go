package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultConsumerAttempts   = 3
	defaultConsumerRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// FailedMessage — запись DLQ о сообщении, которое не удалось обработать.
type FailedMessage struct {
	Topic     string    `json:"original_topic"`
	Partition int32     `json:"original_partition"`
	Offset    int64     `json:"original_offset"`
	Key       string    `json:"original_key"`
	Value     string    `json:"original_value"`
	Error     string    `json:"error_message"`
	Attempts  int       `json:"retry_count"`
	FailedAt  time.Time `json:"failed_at"`
}

// ParseFailedMessage распознаёт запись DLQ, оставленную Consumer.
// Второй результат false, если raw не является такой записью.
func ParseFailedMessage(raw []byte) (FailedMessage, bool) {
	var failed FailedMessage
	if err := json.Unmarshal(raw, &failed); err != nil || failed.Value == "" {
		return FailedMessage{}, false
	}
	return failed, true
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetters направляет необработанные сообщения в topic через producer.
func WithDeadLetters(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithMaxAttempts ограничивает общее число попыток обработки сообщения,
// включая попытки до повторной доставки из DLQ.
func WithMaxAttempts(attempts int) ConsumerOption {
	return func(c *Consumer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryDelay задаёт паузу между попытками.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithConsumerLogger задаёт логгер.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает топики в составе consumer group.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	dlq         *Producer
	dlqTopic    string
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
	wg          sync.WaitGroup
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		dlqTopic:    TopicDeadLetterQueue,
		maxAttempts: defaultConsumerAttempts,
		retryDelay:  defaultConsumerRetryDelay,
		now:         time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// NewConsumer подключает consumer group к брокерам.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, options...), nil
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if c.group == nil {
		return fmt.Errorf("kafka consumer group is not initialized")
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance.
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("consumer group session ended")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if c.group == nil {
		return nil
	}
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает партицию. Сообщение помечается прочитанным,
// если обработчик справился или сообщение ушло в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				c.logger.WithError(err).WithFields(messageFields(message)).Error("message left unacknowledged")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process вызывает обработчик в пределах оставшегося бюджета попыток.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	previous := priorAttempts(message)
	budget := max(c.maxAttempts-previous, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		if attempt >= budget {
			break
		}
		c.logger.WithError(err).WithFields(messageFields(message)).WithField("attempt", previous+attempt).Warn("message handler failed, retrying")
		if err := sleepContext(ctx, c.retryDelay); err != nil {
			return err
		}
	}

	if c.dlq == nil {
		return err
	}
	if dlqErr := c.deadLetter(message, err, previous+budget); dlqErr != nil {
		return fmt.Errorf("dead-letter after %v: %w", err, dlqErr)
	}
	c.logger.WithFields(messageFields(message)).WithField("dlq_topic", c.dlqTopic).Warn("message moved to dlq")
	return nil
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, cause error, attempts int) error {
	now := c.now().UTC()
	body, err := json.Marshal(FailedMessage{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       string(message.Key),
		Value:     string(message.Value),
		Error:     cause.Error(),
		Attempts:  attempts,
		FailedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("encode failed message: %w", err)
	}
	return c.dlq.Send(Message{
		Topic: c.dlqTopic,
		Key:   string(message.Key),
		Value: body,
		Headers: map[string]string{
			HeaderRetryCount:    strconv.Itoa(attempts),
			HeaderOriginalTopic: message.Topic,
			HeaderErrorMessage:  cause.Error(),
			HeaderFailedAt:      now.Format(time.RFC3339),
		},
	})
}

// priorAttempts читает число уже сделанных попыток из заголовка.
func priorAttempts(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func messageFields(message *sarama.ConsumerMessage) log.Fields {
	return log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
