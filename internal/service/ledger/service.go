package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
)

// Service реализует операции леджера: нумерацию, обязательства, погашения,
// кредитные счета и отчёты. Все изменения идут через LedgerStore.Atomic.
type Service struct {
	store     domain.LedgerStore
	directory domain.CounterpartyDirectory
	logger    *log.Entry
	metrics   *metrics.LedgerMetrics
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithDirectory задаёт справочник контрагентов. Без него контрагенты не проверяются.
func WithDirectory(directory domain.CounterpartyDirectory) Option {
	return func(s *Service) {
		s.directory = directory
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики леджера.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис леджера.
func NewService(store domain.LedgerStore, options ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.New().WithField("component", "ledger")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// enqueueEvent пишет событие об обязательстве в outbox текущей транзакции.
func enqueueEvent(ctx context.Context, tx domain.LedgerTx, eventType domain.LedgerEventType, o domain.Obligation, settlement *domain.Settlement, at time.Time) error {
	msg, err := domain.NewLedgerEvent(eventType, o, settlement, at).OutboxMessage()
	if err != nil {
		return err
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

// releaseAccount списывает amount с баланса счёта. Обрезание баланса до нуля
// означает рассинхрон и только логируется.
func (s *Service) releaseAccount(ctx context.Context, tx domain.LedgerTx, accountID string, amount int64, at time.Time) error {
	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return err
	}
	clamped, err := account.Release(amount, at)
	if err != nil {
		return err
	}
	if clamped > 0 {
		s.logger.WithFields(log.Fields{
			"account_id":    accountID,
			"amount_minor":  amount,
			"clamped_minor": clamped,
		}).Warn("account release exceeded balance, clamped to zero")
	}
	return tx.UpdateAccount(ctx, account)
}

// chargeAccount начисляет amount на счёт с проверкой лимита.
func (s *Service) chargeAccount(ctx context.Context, tx domain.LedgerTx, account domain.CreditAccount, amount int64, at time.Time) error {
	if err := account.Charge(amount, at); err != nil {
		if errors.Is(err, domain.ErrCreditLimitExceeded) {
			s.metrics.RecordCreditRejection()
		}
		return err
	}
	return tx.UpdateAccount(ctx, account)
}
