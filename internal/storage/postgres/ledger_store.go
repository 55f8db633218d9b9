package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type ledgerStore struct {
	db *sql.DB
}

// NewLedgerStore создаёт PostgreSQL-реализацию LedgerStore.
func NewLedgerStore(store *Store) domain.LedgerStore {
	return &ledgerStore{db: store.DB()}
}

// Atomic выполняет fn в транзакции READ COMMITTED; строки, взятые через Lock*,
// остаются заблокированными FOR UPDATE до коммита.
func (s *ledgerStore) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// ReportSnapshot выполняет fn в транзакции REPEATABLE READ READ ONLY:
// все запросы fn видят один снимок базы.
func (s *ledgerStore) ReportSnapshot(ctx context.Context, fn func(view domain.ReportView) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin report snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	return fn(&reportView{q: tx})
}

func (s *ledgerStore) GetObligation(ctx context.Context, id string) (domain.Obligation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getObligation(ctx, s.db, id, false)
}

func (s *ledgerStore) ListByCounterparty(ctx context.Context, counterpartyRef string, filter domain.ObligationFilter) ([]domain.Obligation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where = []string{"counterparty_ref = $1"}
		args  = []any{counterpartyRef}
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		where = append(where, "status = ANY($"+strconv.Itoa(len(args))+")")
	}

	query := `SELECT ` + obligationColumns + `
		FROM obligations
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return queryObligations(ctx, s.db, query, args...)
}

func (s *ledgerStore) ListOverdue(ctx context.Context, limit int) ([]domain.Obligation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + obligationColumns + `
		FROM obligations
		WHERE status = 'overdue'
		ORDER BY due_date ASC NULLS FIRST, id ASC`
	if limit > 0 {
		return queryObligations(ctx, s.db, query+" LIMIT $1", limit)
	}
	return queryObligations(ctx, s.db, query)
}

func (s *ledgerStore) ListOverdueCandidates(ctx context.Context, now time.Time, afterID string, limit int) ([]domain.Obligation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + obligationColumns + `
		FROM obligations
		WHERE status IN ('pending', 'partial')
		  AND due_date IS NOT NULL
		  AND due_date < $1
		  AND id > $2
		ORDER BY id ASC`
	if limit > 0 {
		return queryObligations(ctx, s.db, query+" LIMIT $3", now.UTC(), afterID, limit)
	}
	return queryObligations(ctx, s.db, query, now.UTC(), afterID)
}

func (s *ledgerStore) ListSettlements(ctx context.Context, obligationID string) ([]domain.Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM obligations WHERE id = $1)`, obligationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check obligation exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrObligationNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, obligation_id, amount_minor, method, recorded_by, reference, settled_at
		FROM settlements
		WHERE obligation_id = $1
		ORDER BY settled_at ASC, id ASC
	`, obligationID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Settlement, 0)
	for rows.Next() {
		var (
			settlement domain.Settlement
			method     string
		)
		if err := rows.Scan(
			&settlement.ID, &settlement.ObligationID, &settlement.AmountMinor, &method,
			&settlement.RecordedBy, &settlement.Reference, &settlement.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement row: %w", err)
		}
		settlement.Method = domain.SettlementMethod(method)
		settlement.SettledAt = settlement.SettledAt.UTC()
		result = append(result, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement rows: %w", err)
	}
	return result, nil
}

func (s *ledgerStore) GetAccount(ctx context.Context, id string) (domain.CreditAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getAccount(ctx, s.db, id, false)
}

func getObligation(ctx context.Context, q queryer, id string, forUpdate bool) (domain.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	o, err := scanObligation(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Obligation{}, domain.ErrObligationNotFound
		}
		return domain.Obligation{}, fmt.Errorf("select obligation: %w", err)
	}

	single := []domain.Obligation{o}
	if err := attachLineItems(ctx, q, single); err != nil {
		return domain.Obligation{}, err
	}
	return single[0], nil
}

func getAccount(ctx context.Context, q queryer, id string, forUpdate bool) (domain.CreditAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM credit_accounts WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	a, err := scanAccount(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CreditAccount{}, domain.ErrAccountNotFound
		}
		return domain.CreditAccount{}, fmt.Errorf("select credit account: %w", err)
	}
	return a, nil
}

var _ domain.LedgerStore = (*ledgerStore)(nil)
