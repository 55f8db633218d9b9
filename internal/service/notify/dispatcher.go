package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const maxRemembered = 10000

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_notifications_total",
	Help: "Ledger notifications grouped by event type and result.",
}, []string{"event_type", "result"})

// Dispatcher решает, какие события леджера требуют уведомления, находит
// получателя в справочнике и передаёт уведомление Notifier.
// Уведомления отправляются при создании обязательства, просрочке и полном погашении.
type Dispatcher struct {
	directory domain.CounterpartyDirectory
	notifier  domain.Notifier
	logger    *log.Entry

	mu   sync.Mutex
	sent map[string]struct{}
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(directory domain.CounterpartyDirectory, notifier domain.Notifier, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "notify-dispatcher")
	}
	return &Dispatcher{
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		sent:      make(map[string]struct{}),
	}
}

// Notifiable сообщает, нужно ли уведомление для события.
func Notifiable(eventType domain.LedgerEventType) bool {
	switch eventType {
	case domain.EventObligationCreated, domain.EventObligationOverdue, domain.EventObligationSettled:
		return true
	default:
		return false
	}
}

// Handle обрабатывает одно событие. Ошибка означает, что доставку стоит повторить;
// неизвестный контрагент не повторяется.
func (d *Dispatcher) Handle(ctx context.Context, event domain.LedgerEvent) error {
	eventType := string(event.EventType)
	if !Notifiable(event.EventType) {
		notificationsTotal.WithLabelValues(eventType, "skipped").Inc()
		return nil
	}

	key := eventType + "/" + event.ObligationID
	if d.alreadySent(key) {
		notificationsTotal.WithLabelValues(eventType, "duplicate").Inc()
		return nil
	}

	entry := d.logger.WithFields(log.Fields{
		"event_type":       eventType,
		"obligation_id":    event.ObligationID,
		"counterparty_ref": event.CounterpartyRef,
	})

	recipient, err := d.directory.DisplayInfo(ctx, event.CounterpartyRef)
	if err != nil {
		if errors.Is(err, domain.ErrCounterpartyUnknown) {
			entry.WithError(err).Warn("notification dropped: unknown counterparty")
			notificationsTotal.WithLabelValues(eventType, "dropped").Inc()
			return nil
		}
		notificationsTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("resolve recipient %s: %w", event.CounterpartyRef, err)
	}

	if err := d.notifier.Notify(ctx, domain.Notification{Event: event, Recipient: recipient}); err != nil {
		entry.WithError(err).Warn("notification delivery failed")
		notificationsTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("notify %s: %w", key, err)
	}

	d.remember(key)
	notificationsTotal.WithLabelValues(eventType, "sent").Inc()
	entry.Debug("notification sent")
	return nil
}

func (d *Dispatcher) alreadySent(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[key]
	return ok
}

// remember запоминает отправленное уведомление; Kafka доставляет at-least-once.
func (d *Dispatcher) remember(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) >= maxRemembered {
		d.sent = make(map[string]struct{})
	}
	d.sent[key] = struct{}{}
}
