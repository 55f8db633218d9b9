package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// LogNotifier пишет уведомление в лог вместо отправки письма.
// Рендеринг и доставка email живут во внешнем сервисе.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "log-notifier")
	}
	return &LogNotifier{logger: logger}
}

// Notify логирует уведомление.
func (n *LogNotifier) Notify(_ context.Context, notification domain.Notification) error {
	event := notification.Event
	n.logger.WithFields(log.Fields{
		"event_type":      event.EventType,
		"obligation_id":   event.ObligationID,
		"number":          event.Number,
		"recipient":       notification.Recipient.Email,
		"remaining_minor": event.RemainingMinor,
	}).Info(Subject(event))
	return nil
}

// Subject формирует тему письма по событию.
func Subject(event domain.LedgerEvent) string {
	switch event.EventType {
	case domain.EventObligationCreated:
		return fmt.Sprintf("%s %s issued", kindTitle(event.Kind), event.Number)
	case domain.EventObligationSettled:
		return fmt.Sprintf("%s %s is fully settled", kindTitle(event.Kind), event.Number)
	case domain.EventObligationOverdue:
		return fmt.Sprintf("%s %s is overdue", kindTitle(event.Kind), event.Number)
	default:
		return fmt.Sprintf("%s %s: %s", kindTitle(event.Kind), event.Number, event.EventType)
	}
}

func kindTitle(kind domain.ObligationKind) string {
	switch kind {
	case domain.ObligationKindInvoice:
		return "Invoice"
	case domain.ObligationKindCustomerDebt:
		return "Debt"
	case domain.ObligationKindTraderCharge:
		return "Trader charge"
	default:
		return "Obligation"
	}
}
