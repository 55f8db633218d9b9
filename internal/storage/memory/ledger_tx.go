package memory

import (
	"context"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// ledgerTx накапливает изменения поверх состояния LedgerStore.
// Все методы вызываются под s.mu, поэтому чтение базовых map безопасно.
type ledgerTx struct {
	s           *LedgerStore
	obligations map[string]domain.Obligation
	numbers     map[string]string
	settlements []domain.Settlement
	accounts    map[string]domain.CreditAccount
	sequences   map[sequenceKey]int64
	outbox      []domain.OutboxMessage
}

func newLedgerTx(s *LedgerStore) *ledgerTx {
	return &ledgerTx{
		s:           s,
		obligations: make(map[string]domain.Obligation),
		numbers:     make(map[string]string),
		accounts:    make(map[string]domain.CreditAccount),
		sequences:   make(map[sequenceKey]int64),
	}
}

func (tx *ledgerTx) NextSequence(_ context.Context, kind domain.ObligationKind, period string) (int64, error) {
	key := sequenceKey{kind: kind, period: period}
	current, ok := tx.sequences[key]
	if !ok {
		current = tx.s.sequences[key]
	}
	current++
	tx.sequences[key] = current
	return current, nil
}

func (tx *ledgerTx) InsertObligation(_ context.Context, o domain.Obligation) error {
	if _, ok := tx.obligation(o.ID); ok {
		return domain.ErrVersionConflict
	}
	if _, ok := tx.numbers[o.Number]; ok {
		return domain.ErrVersionConflict
	}
	if _, ok := tx.s.numbers[o.Number]; ok {
		return domain.ErrVersionConflict
	}
	tx.obligations[o.ID] = o.Clone()
	tx.numbers[o.Number] = o.ID
	return nil
}

func (tx *ledgerTx) LockObligation(_ context.Context, id string) (domain.Obligation, error) {
	o, ok := tx.obligation(id)
	if !ok {
		return domain.Obligation{}, domain.ErrObligationNotFound
	}
	return o.Clone(), nil
}

// UpdateObligation сохраняет поля строки обязательства; позиции меняет ReplaceLineItems.
func (tx *ledgerTx) UpdateObligation(_ context.Context, o domain.Obligation) error {
	current, ok := tx.obligation(o.ID)
	if !ok {
		return domain.ErrObligationNotFound
	}
	if current.Version != o.Version {
		return domain.ErrVersionConflict
	}
	next := o.Clone()
	next.LineItems = current.LineItems
	next.Number = current.Number
	next.Version = current.Version + 1
	tx.obligations[o.ID] = next
	return nil
}

func (tx *ledgerTx) ReplaceLineItems(_ context.Context, obligationID string, items []domain.LineItem) error {
	current, ok := tx.obligation(obligationID)
	if !ok {
		return domain.ErrObligationNotFound
	}
	current.LineItems = append([]domain.LineItem(nil), items...)
	tx.obligations[obligationID] = current
	return nil
}

func (tx *ledgerTx) InsertSettlement(_ context.Context, s domain.Settlement) error {
	if _, ok := tx.obligation(s.ObligationID); !ok {
		return domain.ErrObligationNotFound
	}
	tx.settlements = append(tx.settlements, s)
	return nil
}

func (tx *ledgerTx) InsertAccount(_ context.Context, a domain.CreditAccount) error {
	if _, ok := tx.account(a.ID); ok {
		return domain.ErrVersionConflict
	}
	tx.accounts[a.ID] = a
	return nil
}

func (tx *ledgerTx) LockAccount(_ context.Context, id string) (domain.CreditAccount, error) {
	acc, ok := tx.account(id)
	if !ok {
		return domain.CreditAccount{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (tx *ledgerTx) UpdateAccount(_ context.Context, a domain.CreditAccount) error {
	current, ok := tx.account(a.ID)
	if !ok {
		return domain.ErrAccountNotFound
	}
	if current.Version != a.Version {
		return domain.ErrVersionConflict
	}
	a.Version = current.Version + 1
	tx.accounts[a.ID] = a
	return nil
}

func (tx *ledgerTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (tx *ledgerTx) obligation(id string) (domain.Obligation, bool) {
	if o, ok := tx.obligations[id]; ok {
		return o, true
	}
	o, ok := tx.s.obligations[id]
	return o, ok
}

func (tx *ledgerTx) account(id string) (domain.CreditAccount, bool) {
	if a, ok := tx.accounts[id]; ok {
		return a, true
	}
	a, ok := tx.s.accounts[id]
	return a, ok
}

func (tx *ledgerTx) commit() {
	s := tx.s
	for id, o := range tx.obligations {
		s.obligations[id] = o
	}
	for number, id := range tx.numbers {
		s.numbers[number] = id
	}
	for _, settlement := range tx.settlements {
		s.settlements[settlement.ObligationID] = append(s.settlements[settlement.ObligationID], settlement)
	}
	for id, acc := range tx.accounts {
		s.accounts[id] = acc
	}
	for key, value := range tx.sequences {
		s.sequences[key] = value
	}
	for _, msg := range tx.outbox {
		_, _ = s.outbox.Enqueue(msg)
	}
}

var _ domain.LedgerTx = (*ledgerTx)(nil)
