package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func enqueueForTest(t *testing.T, ledger domain.LedgerStore, msgs ...domain.OutboxMessage) {
	t.Helper()

	err := ledger.Atomic(context.Background(), func(tx domain.LedgerTx) error {
		for _, msg := range msgs {
			if err := tx.EnqueueOutbox(context.Background(), msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue outbox: %v", err)
	}
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewLedgerStore(store)
	repo := NewOutboxRepository(store)

	enqueueForTest(t, ledger,
		domain.OutboxMessage{
			ID:            "outbox-1",
			AggregateType: domain.AggregateObligation,
			AggregateID:   "obl-1",
			EventType:     string(domain.EventObligationCreated),
			Payload:       []byte(`{"event_type":"obligation.created"}`),
		},
		domain.OutboxMessage{
			AggregateType: domain.AggregateObligation,
			AggregateID:   "obl-1",
			EventType:     string(domain.EventSettlementRecorded),
			Payload:       []byte(`{"event_type":"settlement.recorded"}`),
		},
	)

	pending, err := repo.PullPending(0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[1].ID == "" {
		t.Fatal("expected generated id for outbox message")
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent("outbox-1"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	after, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after mark: %v", err)
	}
	if len(after) != 1 || after[0].ID == "outbox-1" {
		t.Fatalf("expected only the second message, got %+v", after)
	}
}

func TestOutboxRepository_PostgresMarkFailedRetries(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewLedgerStore(store)
	repo := NewOutboxRepository(store)

	enqueueForTest(t, ledger, domain.OutboxMessage{ID: "outbox-retry", AggregateID: "obl-2", Payload: []byte(`{}`)})

	for i := 1; i < domain.MaxOutboxAttempts; i++ {
		if err := repo.MarkFailed("outbox-retry"); err != nil {
			t.Fatalf("mark failed #%d: %v", i, err)
		}
	}
	stats, _ := repo.Stats()
	if stats.PendingCount != 1 {
		t.Fatalf("message must stay pending before the last attempt, got %d", stats.PendingCount)
	}

	if err := repo.MarkFailed("outbox-retry"); err != nil {
		t.Fatalf("final mark failed: %v", err)
	}
	stats, _ = repo.Stats()
	if stats.PendingCount != 0 {
		t.Fatalf("message must leave pending after the last attempt, got %d", stats.PendingCount)
	}
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark sent missing id, got %v", err)
	}
	if err := repo.MarkFailed("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark failed missing id, got %v", err)
	}
}

func TestOutboxRepository_PostgresRolledBackEventsAreInvisible(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ledger := NewLedgerStore(store)
	repo := NewOutboxRepository(store)

	boom := errors.New("boom")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{AggregateID: "obl-3", Payload: []byte(`{}`)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("rolled back event must not be pending, got %d", stats.PendingCount)
	}
}
