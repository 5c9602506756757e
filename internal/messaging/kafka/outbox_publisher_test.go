package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func completedOutboxMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateTypeSession,
		AggregateID:   "session-123",
		EventType:     string(EventTypeCheckoutCompleted),
		Payload:       []byte(`{"event_type":"checkout.completed","session_id":"session-123","receipt_id":"receipt-1"}`),
	}
}

func TestOutboxPublisher_PublishEnvelope(t *testing.T) {
	publishedAt := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	sync := mocks.NewSyncProducer(t, nil)
	var sent *sarama.ProducerMessage
	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		sent = msg
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFrom(sync, quietLogger()), "")
	publisher.now = func() time.Time { return publishedAt }
	assert.Equal(t, TopicCheckoutEvents, publisher.Topic())

	require.NoError(t, publisher.Publish(completedOutboxMessage()))
	require.NoError(t, sync.Close())

	require.NotNil(t, sent)
	assert.Equal(t, TopicCheckoutEvents, sent.Topic)
	assert.Equal(t, []string{"x-event-type=checkout.completed"}, recordHeaders(sent))
	key, err := sent.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "session-123", string(key))

	value, err := sent.Value.Encode()
	require.NoError(t, err)
	event, err := ParseCheckoutEvent(&sarama.ConsumerMessage{Value: value})
	require.NoError(t, err)
	assert.Equal(t, "receipt-1", event.ReceiptID)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(value, &envelope))
	assert.Equal(t, "outbox-1", envelope.ID)
	assert.Equal(t, AggregateTypeSession, envelope.AggregateType)
	assert.True(t, envelope.PublishedAt.Equal(publishedAt))
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFrom(sync, quietLogger()), TopicDeadLetterQueue)
	err := publisher.Publish(completedOutboxMessage())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sync.Close())
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	var publisher *OutboxTopicPublisher
	require.Error(t, publisher.Publish(completedOutboxMessage()))
	require.Error(t, NewOutboxPublisher(nil, "").Publish(completedOutboxMessage()))
}

func TestEnvelope_KeyFallsBackToID(t *testing.T) {
	msg := completedOutboxMessage()
	msg.AggregateID = ""

	out, err := EnvelopeFor(msg, time.Now()).Message(TopicDeadLetterQueue)
	require.NoError(t, err)
	assert.Equal(t, "outbox-1", out.Key)
	assert.Equal(t, TopicDeadLetterQueue, out.Topic)
}

func TestEnvelope_InvalidPayload(t *testing.T) {
	msg := completedOutboxMessage()
	msg.Payload = []byte("{not json")

	_, err := EnvelopeFor(msg, time.Now()).Message(TopicCheckoutEvents)
	require.Error(t, err)
}

func TestParseEnvelope(t *testing.T) {
	envelope, err := ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"id":"o-1","aggregate_id":"s-1","event_type":"cart.cleared","payload":{}}`)})
	require.NoError(t, err)
	assert.Equal(t, "s-1", envelope.Key())

	_, err = ParseEnvelope(&sarama.ConsumerMessage{Value: []byte("[")})
	require.Error(t, err)
}
