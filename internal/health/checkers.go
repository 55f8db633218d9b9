package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const defaultPingTimeout = 2 * time.Second

// Pinger — хранилище, умеющее проверить соединение.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker проверяет доступность хранилища леджера.
type StorageChecker struct {
	name    string
	pinger  Pinger
	timeout time.Duration
}

// NewStorageChecker создаёт проверку хранилища с таймаутом на ping.
func NewStorageChecker(name string, pinger Pinger, timeout time.Duration) *StorageChecker {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &StorageChecker{name: name, pinger: pinger, timeout: timeout}
}

// Check выполняет ping хранилища
func (c *StorageChecker) Check() Check {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.pinger.Ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// OutboxChecker помечает сервис degraded, когда события леджера слишком долго
// ждут публикации. Леджер при этом продолжает принимать запросы.
type OutboxChecker struct {
	repo       domain.OutboxRepository
	maxAge     time.Duration
	maxPending int
	now        func() time.Time
}

// NewOutboxChecker создаёт проверку backlog outbox. Нулевые пороги не проверяются.
func NewOutboxChecker(repo domain.OutboxRepository, maxAge time.Duration, maxPending int) *OutboxChecker {
	return &OutboxChecker{repo: repo, maxAge: maxAge, maxPending: maxPending, now: time.Now}
}

// Check оценивает размер backlog и возраст самого старого неопубликованного события.
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	check := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.repo.Stats()
	switch {
	case err != nil:
		check.Status = StatusDegraded
		check.Message = err.Error()
	case c.maxPending > 0 && stats.PendingCount > c.maxPending:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending events exceed limit %d", stats.PendingCount, c.maxPending)
	case stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() && c.maxAge > 0:
		if age := c.now().Sub(stats.OldestPendingAt); age > c.maxAge {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d pending events, oldest is %s old", stats.PendingCount, age.Truncate(time.Second))
		}
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
