package kafka

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Message — исходящее сообщение с готовым телом.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (m Message) record() *sarama.ProducerMessage {
	names := make([]string, 0, len(m.Headers))
	for name := range m.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]sarama.RecordHeader, 0, len(names))
	for _, name := range names {
		headers = append(headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(m.Headers[name])})
	}

	record := &sarama.ProducerMessage{
		Topic:   m.Topic,
		Value:   sarama.ByteEncoder(m.Value),
		Headers: headers,
	}
	if m.Key != "" {
		record.Key = sarama.StringEncoder(m.Key)
	}
	return record
}

// ProducerConfig — настройки sarama для синхронной доставки без дублей:
// подтверждение всеми репликами и идемпотентный producer.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Producer синхронно отправляет события кассы.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам с ProducerConfig.
func NewProducer(brokers []string) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(sync, nil), nil
}

// NewProducerFrom оборачивает готовый SyncProducer.
func NewProducerFrom(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sync, logger: logger}
}

// Send отправляет сообщение и ждёт подтверждения брокера.
func (p *Producer) Send(msg Message) error {
	if p == nil || p.sync == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	if msg.Topic == "" {
		return fmt.Errorf("kafka message topic is required")
	}

	entry := p.logger.WithFields(log.Fields{"topic": msg.Topic, "key": msg.Key})
	partition, offset, err := p.sync.SendMessage(msg.record())
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message delivered")
	return nil
}

// PublishJSON кодирует v в JSON и отправляет его в topic.
func (p *Producer) PublishJSON(topic, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return p.Send(Message{Topic: topic, Key: key, Value: body})
}

// Close освобождает соединения с брокерами.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
