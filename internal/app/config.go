package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска ledger-service.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	KafkaTopic   string

	// Counterparties — начальный справочник контрагентов ("ref=Name,ref2").
	Counterparties string

	SweepInterval  time.Duration
	SweepBatchSize int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	OutboxMaxAge       time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	LogLevel string
}

// DefaultConfig возвращает настройки для локального запуска in-memory.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		SweepInterval:               time.Minute,
		SweepBatchSize:              200,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OutboxMaxPending:            1000,
		OutboxMaxAge:                5 * time.Minute,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    "info",
	}
}

// LoadConfig читает LEDGER_* из окружения поверх DefaultConfig.
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{getenv: getenv}

	env.str("LEDGER_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("LEDGER_METRICS_ADDR", &cfg.MetricsAddr)
	env.str("LEDGER_POSTGRES_DSN", &cfg.PostgresDSN)
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	env.str("LEDGER_STORAGE_DRIVER", &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	env.boolean("LEDGER_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	env.str("LEDGER_KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("LEDGER_KAFKA_TOPIC", &cfg.KafkaTopic)
	env.str("LEDGER_COUNTERPARTIES", &cfg.Counterparties)

	env.duration("LEDGER_SWEEP_INTERVAL", &cfg.SweepInterval)
	env.integer("LEDGER_SWEEP_BATCH", &cfg.SweepBatchSize)

	env.duration("LEDGER_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("LEDGER_OUTBOX_BATCH", &cfg.OutboxBatchSize)
	env.integer("LEDGER_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("LEDGER_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	env.integer("LEDGER_OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)
	env.duration("LEDGER_OUTBOX_MAX_AGE", &cfg.OutboxMaxAge)

	env.duration("LEDGER_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	env.duration("LEDGER_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("LEDGER_IDEMPOTENCY_CLEANUP_BATCH", &cfg.IdempotencyCleanupBatchSize)

	env.str("LEDGER_LOG_LEVEL", &cfg.LogLevel)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("LEDGER_POSTGRES_DSN is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http address is empty")
	}
	positive := map[string]int64{
		"LEDGER_SWEEP_INTERVAL":               int64(c.SweepInterval),
		"LEDGER_SWEEP_BATCH":                  int64(c.SweepBatchSize),
		"LEDGER_OUTBOX_POLL_INTERVAL":         int64(c.OutboxPollInterval),
		"LEDGER_OUTBOX_BATCH":                 int64(c.OutboxBatchSize),
		"LEDGER_OUTBOX_MAX_ATTEMPTS":          int64(c.OutboxMaxAttempts),
		"LEDGER_IDEMPOTENCY_TTL":              int64(c.IdempotencyTTL),
		"LEDGER_IDEMPOTENCY_CLEANUP_INTERVAL": int64(c.IdempotencyCleanupInterval),
		"LEDGER_IDEMPOTENCY_CLEANUP_BATCH":    int64(c.IdempotencyCleanupBatchSize),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.OutboxRetryDelay < 0 {
		return fmt.Errorf("LEDGER_OUTBOX_RETRY_DELAY must not be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LEDGER_LOG_LEVEL: %w", err)
	}
	return nil
}

// Brokers возвращает список брокеров Kafka.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// envReader запоминает первую ошибку разбора.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(name string) (string, bool) {
	v := strings.TrimSpace(r.getenv(name))
	return v, v != ""
}

func (r *envReader) fail(name, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", name, value, err)
	}
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.lookup(name); ok {
		*dst = v
	}
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = n
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = d
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = b
}
