package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// Topics для Kafka
const (
	TopicLedgerEvents    = "ledger.obligation.events"
	TopicDeadLetterQueue = "ledger.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// Envelope — обёртка outbox-сообщения в топике событий леджера.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение для публикации.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// ParseEnvelope парсит Envelope из сообщения
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("envelope %q has empty event_type", envelope.ID)
	}
	return &envelope, nil
}

// ParseLedgerEvent достаёт событие леджера из сообщения топика событий.
func ParseLedgerEvent(message *sarama.ConsumerMessage) (domain.LedgerEvent, error) {
	envelope, err := ParseEnvelope(message)
	if err != nil {
		return domain.LedgerEvent{}, err
	}
	if envelope.AggregateType != domain.AggregateObligation {
		return domain.LedgerEvent{}, fmt.Errorf("unexpected aggregate type %q", envelope.AggregateType)
	}
	return domain.ParseLedgerEvent(envelope.Payload)
}
