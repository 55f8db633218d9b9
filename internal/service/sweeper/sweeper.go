package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 200
)

// Options задаёт параметры свипа просрочек.
type Options struct {
	Logger    *log.Entry
	Metrics   *metrics.LedgerMetrics
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задаёт logger для свипа.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики леджера.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithInterval задаёт интервал между прогонами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер страницы кандидатов.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени для фоновых прогонов.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Failure — ошибка перевода одного обязательства в overdue.
type Failure struct {
	ObligationID string
	Err          error
}

// Report — итог одного прогона.
type Report struct {
	Promoted int
	Failures []Failure
}

// Sweeper переводит pending/partial обязательства с прошедшим сроком в overdue.
// Каждое обязательство обновляется в своей транзакции, ошибка одной строки
// не прерывает прогон.
type Sweeper struct {
	store     domain.LedgerStore
	logger    *log.Entry
	metrics   *metrics.LedgerMetrics
	interval  time.Duration
	batchSize int
	clock     func() time.Time

	// один прогон за раз: фоновый и ручной через HTTP не пересекаются
	mu sync.Mutex
}

// New создаёт свип просрочек.
func New(store domain.LedgerStore, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "overdue-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Sweeper{
		store:     store,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		clock:     opts.Clock,
	}
}

// Run запускает периодический свип до отмены ctx. Первый прогон сразу.
func (s *Sweeper) Run(ctx context.Context) {
	if s.store == nil {
		s.logger.Warn("overdue sweeper is disabled: store is nil")
		return
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx, s.clock().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.WithError(err).Warn("overdue sweep failed")
		return
	}
	if report.Promoted > 0 || len(report.Failures) > 0 {
		s.logger.WithFields(log.Fields{
			"promoted": report.Promoted,
			"failures": len(report.Failures),
		}).Info("overdue sweep completed")
	}
}

// Sweep обходит кандидатов страницами по возрастанию id и переводит их в overdue.
// Повторный прогон без промежуточных записей ничего не меняет.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.IsZero() {
		now = s.clock()
	}
	now = now.UTC()
	started := time.Now()

	var report Report
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := s.store.ListOverdueCandidates(ctx, now, afterID, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list overdue candidates: %w", err)
		}

		for _, candidate := range page {
			afterID = candidate.ID

			promoted, err := s.promote(ctx, candidate.ID, now)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return report, ctxErr
				}
				s.logger.WithError(err).WithField("obligation_id", candidate.ID).Warn("failed to mark obligation overdue")
				report.Failures = append(report.Failures, Failure{ObligationID: candidate.ID, Err: err})
				continue
			}
			if promoted {
				report.Promoted++
			}
		}

		if len(page) < s.batchSize {
			break
		}
	}

	s.metrics.RecordSweep(report.Promoted, len(report.Failures), time.Since(started), s.clock())
	return report, nil
}

// promote перепроверяет строку под блокировкой: между выборкой и транзакцией
// обязательство могли погасить или отменить.
func (s *Sweeper) promote(ctx context.Context, id string, now time.Time) (bool, error) {
	var (
		promoted bool
		previous domain.ObligationStatus
	)
	err := s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		o, err := tx.LockObligation(ctx, id)
		if err != nil {
			return err
		}
		if !o.OverdueCandidate(now) {
			return nil
		}
		previous = o.Status
		if err := o.MarkOverdue(now); err != nil {
			return err
		}
		if err := tx.UpdateObligation(ctx, o); err != nil {
			return err
		}
		o.Version++

		msg, err := domain.NewLedgerEvent(domain.EventObligationOverdue, o, nil, now).OutboxMessage()
		if err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return err
		}
		promoted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if promoted {
		s.metrics.RecordTransition(string(previous), string(domain.ObligationStatusOverdue))
	}
	return promoted, nil
}
