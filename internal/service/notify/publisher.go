package notify

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const defaultDispatchTimeout = 5 * time.Second

// OutboxPublisher доставляет события outbox прямо в Dispatcher, минуя брокер.
// Используется, когда Kafka не настроена.
type OutboxPublisher struct {
	dispatcher *Dispatcher
	timeout    time.Duration
}

// NewOutboxPublisher создаёт in-process publisher.
func NewOutboxPublisher(dispatcher *Dispatcher) *OutboxPublisher {
	return &OutboxPublisher{dispatcher: dispatcher, timeout: defaultDispatchTimeout}
}

// Publish разбирает событие и передаёт его Dispatcher.
func (p *OutboxPublisher) Publish(msg domain.OutboxMessage) error {
	event, err := domain.ParseLedgerEvent(msg.Payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.dispatcher.Handle(ctx, event)
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
