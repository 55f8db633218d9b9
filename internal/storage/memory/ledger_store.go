package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type sequenceKey struct {
	kind   domain.ObligationKind
	period string
}

// LedgerStore — in-memory реализация LedgerStore.
// Запись идёт через одну транзакцию за раз, изменения применяются только при коммите.
type LedgerStore struct {
	mu          sync.RWMutex
	obligations map[string]domain.Obligation
	numbers     map[string]string
	settlements map[string][]domain.Settlement
	accounts    map[string]domain.CreditAccount
	sequences   map[sequenceKey]int64
	outbox      *outboxRepositoryInMemory
}

// NewLedgerStore создаёт пустое in-memory хранилище леджера.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		obligations: make(map[string]domain.Obligation),
		numbers:     make(map[string]string),
		settlements: make(map[string][]domain.Settlement),
		accounts:    make(map[string]domain.CreditAccount),
		sequences:   make(map[sequenceKey]int64),
		outbox:      NewOutboxRepository(),
	}
}

// Outbox возвращает outbox, в который коммитятся события транзакций.
func (s *LedgerStore) Outbox() *outboxRepositoryInMemory {
	return s.outbox
}

// Ping всегда успешен для in-memory хранилища.
func (s *LedgerStore) Ping(context.Context) error {
	return nil
}

// Atomic выполняет fn под единственной блокировкой записи.
func (s *LedgerStore) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newLedgerTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// ReportSnapshot держит блокировку чтения на всё время fn, поэтому все агрегаты
// видят одно и то же состояние.
func (s *LedgerStore) ReportSnapshot(ctx context.Context, fn func(view domain.ReportView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&reportView{s: s})
}

func (s *LedgerStore) GetObligation(_ context.Context, id string) (domain.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.obligations[id]
	if !ok {
		return domain.Obligation{}, domain.ErrObligationNotFound
	}
	return o.Clone(), nil
}

func (s *LedgerStore) ListByCounterparty(_ context.Context, counterpartyRef string, filter domain.ObligationFilter) ([]domain.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Obligation, 0)
	for _, o := range s.obligations {
		if o.CounterpartyRef != counterpartyRef || !filter.Matches(o) {
			continue
		}
		result = append(result, o.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *LedgerStore) ListOverdue(_ context.Context, limit int) ([]domain.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Obligation, 0)
	for _, o := range s.obligations {
		if o.Status == domain.ObligationStatusOverdue {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := dueOrZero(result[i]), dueOrZero(result[j])
		if di.Equal(dj) {
			return result[i].ID < result[j].ID
		}
		return di.Before(dj)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *LedgerStore) ListOverdueCandidates(_ context.Context, now time.Time, afterID string, limit int) ([]domain.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Obligation, 0)
	for _, o := range s.obligations {
		if o.ID <= afterID || !o.OverdueCandidate(now) {
			continue
		}
		result = append(result, o.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *LedgerStore) ListSettlements(_ context.Context, obligationID string) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.obligations[obligationID]; !ok {
		return nil, domain.ErrObligationNotFound
	}
	return append([]domain.Settlement(nil), s.settlements[obligationID]...), nil
}

func (s *LedgerStore) GetAccount(_ context.Context, id string) (domain.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.CreditAccount{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func dueOrZero(o domain.Obligation) time.Time {
	if o.DueDate == nil {
		return time.Time{}
	}
	return *o.DueDate
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
