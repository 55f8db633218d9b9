package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ledger/internal/health"
	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/storage/memory"
	"github.com/vladislavdragonenkov/ledger/internal/storage/postgres"
)

const storagePingTimeout = 2 * time.Second

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	store           domain.LedgerStore
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies поднимает in-memory или PostgreSQL хранилище.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		store := memory.NewLedgerStore()
		logger.Info("using in-memory ledger storage")
		return &runtimeDependencies{
			store:           store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  healthcheck.NewStorageChecker("memory", store, storagePingTimeout),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", driver)
		}
		pg, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		logger.Info("using postgres ledger storage")
		return &runtimeDependencies{
			store:           postgres.NewLedgerStore(pg),
			outboxRepo:      postgres.NewOutboxRepository(pg),
			idempotencyRepo: postgres.NewIdempotencyRepository(pg),
			storageChecker:  healthcheck.NewStorageChecker("postgres", pg, storagePingTimeout),
			closeFn:         pg.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
