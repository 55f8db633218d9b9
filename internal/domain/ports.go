package domain

import (
	"context"
	"time"
)

// LedgerTx — операции внутри одной транзакции леджера.
// Lock* берут строку на запись до конца транзакции.
type LedgerTx interface {
	// NextSequence атомарно увеличивает счётчик (kind, period) и возвращает новое значение.
	NextSequence(ctx context.Context, kind ObligationKind, period string) (int64, error)

	InsertObligation(ctx context.Context, o Obligation) error
	LockObligation(ctx context.Context, id string) (Obligation, error)
	UpdateObligation(ctx context.Context, o Obligation) error
	ReplaceLineItems(ctx context.Context, obligationID string, items []LineItem) error

	InsertSettlement(ctx context.Context, s Settlement) error

	InsertAccount(ctx context.Context, a CreditAccount) error
	LockAccount(ctx context.Context, id string) (CreditAccount, error)
	UpdateAccount(ctx context.Context, a CreditAccount) error

	// EnqueueOutbox пишет событие в outbox в той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// LedgerReader — чтение состояния леджера без блокировок.
type LedgerReader interface {
	GetObligation(ctx context.Context, id string) (Obligation, error)
	ListByCounterparty(ctx context.Context, counterpartyRef string, filter ObligationFilter) ([]Obligation, error)
	ListOverdue(ctx context.Context, limit int) ([]Obligation, error)
	// ListOverdueCandidates возвращает pending/partial с due_date < now и id > afterID по возрастанию id.
	ListOverdueCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]Obligation, error)
	ListSettlements(ctx context.Context, obligationID string) ([]Settlement, error)
	GetAccount(ctx context.Context, id string) (CreditAccount, error)
}

// ReportView — агрегаты поверх одного согласованного снимка.
type ReportView interface {
	Statistics(ctx context.Context, filter StatisticsFilter) (LedgerStatistics, error)
	Aging(ctx context.Context, asOf time.Time) (AgingReport, error)
	Revenue(ctx context.Context, query RevenueQuery) ([]RevenuePoint, error)
	AccountStandings(ctx context.Context) ([]AccountStanding, error)
}

// LedgerStore — хранилище леджера.
type LedgerStore interface {
	LedgerReader
	// Atomic выполняет fn в одной транзакции: ошибка fn откатывает все изменения.
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error
	// ReportSnapshot выполняет fn над снимком, не видящим параллельных записей.
	ReportSnapshot(ctx context.Context, fn func(view ReportView) error) error
}

// CounterpartyInfo — отображаемые данные контрагента.
type CounterpartyInfo struct {
	Ref         string
	DisplayName string
	Email       string
}

// CounterpartyDirectory — внешний справочник пользователей и оптовиков.
type CounterpartyDirectory interface {
	Exists(ctx context.Context, ref string) (bool, error)
	DisplayInfo(ctx context.Context, ref string) (CounterpartyInfo, error)
}

// Notification — событие леджера с получателем уведомления.
type Notification struct {
	Event     LedgerEvent
	Recipient CounterpartyInfo
}

// Notifier доставляет уведомления о событиях леджера (email и т.п.).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

const (
	// DefaultOutboxBatch — размер выборки PullPending при limit <= 0.
	DefaultOutboxBatch = 100
	// MaxOutboxAttempts — после стольких неудачных публикаций событие помечается failed.
	MaxOutboxAttempts = 5
)

// OutboxRepository — сторона outbox, которую читает воркер публикации.
// MarkFailed возвращает событие в очередь, пока не исчерпан MaxOutboxAttempts.
type OutboxRepository interface {
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	// CreateProcessing сравнивает ttl существующей записи с now вызывающей стороны.
	CreateProcessing(key, requestHash string, now, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// Attempts — число уже неудачных циклов публикации; заполняется при PullPending.
	Attempts int
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
