package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
	"github.com/vladislavdragonenkov/ledger/internal/service/directory"
	"github.com/vladislavdragonenkov/ledger/internal/service/httpapi"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/ledger/internal/service/notify"
	"github.com/vladislavdragonenkov/ledger/internal/service/outbox"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
)

// Components — сервис леджера, HTTP API и фоновые воркеры.
type Components struct {
	Ledger       *ledger.Service
	Sweeper      *sweeper.Sweeper
	API          *httpapi.API
	OutboxWorker *outbox.Worker
	Cleanup      *idempotency.CleanupWorker
	Directory    *directory.StaticDirectory
}

// NewComponents собирает компоненты поверх выбранного хранилища.
// Без Kafka события outbox доставляются in-process в notify.Dispatcher.
func NewComponents(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) (*Components, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if deps == nil || deps.store == nil {
		return nil, fmt.Errorf("storage is not initialized")
	}

	entries, err := directory.ParseEntries(cfg.Counterparties)
	if err != nil {
		return nil, fmt.Errorf("parse counterparties: %w", err)
	}
	dir := directory.NewStaticDirectory(entries...)
	ledgerMetrics := metrics.NewLedgerMetrics()

	ledgerOptions := []ledger.Option{
		ledger.WithLogger(logger.WithField("layer", "ledger")),
		ledger.WithMetrics(ledgerMetrics),
	}
	// без справочника контрагенты не проверяются: режим локальной разработки
	if len(entries) > 0 {
		ledgerOptions = append(ledgerOptions, ledger.WithDirectory(dir))
	} else {
		logger.Warn("counterparty directory is empty, counterparty refs are not validated")
	}
	service := ledger.NewService(deps.store, ledgerOptions...)

	sweep := sweeper.New(deps.store,
		sweeper.WithLogger(logger.WithField("layer", "sweeper")),
		sweeper.WithMetrics(ledgerMetrics),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithBatchSize(cfg.SweepBatchSize),
	)

	guard := idempotency.NewGuard(deps.idempotencyRepo,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithGuardLogger(logger.WithField("layer", "idempotency")),
	)
	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	api := httpapi.New(service,
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithSweeper(sweep),
		httpapi.WithIdempotency(guard),
	)

	publisher, dlq := outboxPublishers(cfg, producer, dir, logger)
	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlq != nil {
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(dlq))
	}

	return &Components{
		Ledger:       service,
		Sweeper:      sweep,
		API:          api,
		OutboxWorker: outbox.NewWorker(deps.outboxRepo, publisher, workerOptions...),
		Cleanup:      cleanup,
		Directory:    dir,
	}, nil
}

func outboxPublishers(cfg Config, producer *kafka.Producer, dir domain.CounterpartyDirectory, logger *log.Entry) (publisher, dlq domain.OutboxPublisher) {
	if producer != nil {
		return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	}
	dispatcher := notify.NewDispatcher(dir, notify.NewLogNotifier(logger.WithField("layer", "notifier")), logger.WithField("layer", "notify"))
	return notify.NewOutboxPublisher(dispatcher), nil
}
