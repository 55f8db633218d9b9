package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing("settle-obl-1", "hash-1", time.Now().UTC(), ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusProcessing, created.Status)
	}

	got, err := repo.Get("settle-obl-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "hash-1" {
		t.Fatalf("expected request_hash hash-1, got %s", got.RequestHash)
	}
	if !got.TTLAt.Equal(ttl) {
		t.Fatalf("expected ttl %s, got %s", ttl, got.TTLAt)
	}
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("settle-obl-2", "hash-a", time.Now().UTC(), ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	if _, err := repo.CreateProcessing("settle-obl-2", "hash-a", time.Now().UTC(), ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}

	if _, err := repo.CreateProcessing("settle-obl-2", "hash-b", time.Now().UTC(), ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestIdempotencyRepository_MarkDoneAndDeleteExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	expiredTTL := time.Now().UTC().Add(-time.Minute)
	activeTTL := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("idem-expired", "hash-expired", time.Now().UTC(), expiredTTL); err != nil {
		t.Fatalf("CreateProcessing expired failed: %v", err)
	}
	if _, err := repo.CreateProcessing("idem-active", "hash-active", time.Now().UTC(), activeTTL); err != nil {
		t.Fatalf("CreateProcessing active failed: %v", err)
	}

	if err := repo.MarkDone("idem-active", []byte(`{"ok":true}`), 200); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	active, err := repo.Get("idem-active")
	if err != nil {
		t.Fatalf("Get active failed: %v", err)
	}
	if active.Status != domain.IdempotencyStatusDone {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusDone, active.Status)
	}
	if active.HTTPStatus != 200 {
		t.Fatalf("expected http status 200, got %d", active.HTTPStatus)
	}

	removed, err := repo.DeleteExpired(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected removed=1, got %d", removed)
	}

	if _, err := repo.Get("idem-expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected expired key to be deleted, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeyCanBeReused(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing("create-obl-1", "hash-a", time.Now().UTC(), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	created, err := repo.CreateProcessing("create-obl-1", "hash-b", time.Now().UTC(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("expected expired key to be reusable, got %v", err)
	}
	if created.RequestHash != "hash-b" {
		t.Fatalf("expected new request hash, got %s", created.RequestHash)
	}
}

func TestIdempotencyRepository_DeleteExpiredRespectsLimit(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	base := time.Now().UTC().Add(-time.Hour)

	for i, key := range []string{"k-1", "k-2", "k-3"} {
		if _, err := repo.CreateProcessing(key, "hash", time.Now().UTC(), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("CreateProcessing %s failed: %v", key, err)
		}
	}

	removed, err := repo.DeleteExpired(time.Now().UTC(), 2)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
	if _, err := repo.Get("k-3"); err != nil {
		t.Fatalf("expected newest expired key to survive the batch, got %v", err)
	}
}

func TestIdempotencyRepository_CallerClockDecidesExpiry(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	ttl := now.Add(time.Hour)

	if _, err := repo.CreateProcessing("settle-obl-3", "hash-a", now, ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	// По настенным часам ttl давно истёк, но для вызывающей стороны ключ ещё жив.
	if _, err := repo.CreateProcessing("settle-obl-3", "hash-a", now.Add(time.Minute), ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if _, err := repo.CreateProcessing("settle-obl-3", "hash-b", now.Add(time.Minute), ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	later := ttl.Add(time.Second)
	created, err := repo.CreateProcessing("settle-obl-3", "hash-b", later, later.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected key to be reclaimed after ttl, got %v", err)
	}
	if !created.CreatedAt.Equal(later) {
		t.Fatalf("expected created_at %s, got %s", later, created.CreatedAt)
	}
}
