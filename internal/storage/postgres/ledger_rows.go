package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const (
	obligationColumns = `
		id, number, kind, counterparty_ref, currency, total_minor, settled_minor, status,
		due_date, account_id, cancel_reason, version, created_at, updated_at, settled_at, cancelled_at`

	accountColumns = `
		id, holder_ref, holder_kind, currency, credit_limit_minor, balance_minor,
		status, version, created_at, updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (domain.Obligation, error) {
	var (
		o                               domain.Obligation
		kind, status                    string
		accountID                       sql.NullString
		dueDate, settledAt, cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&o.ID, &o.Number, &kind, &o.CounterpartyRef, &o.Currency, &o.TotalMinor, &o.SettledMinor, &status,
		&dueDate, &accountID, &o.CancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt, &settledAt, &cancelledAt,
	); err != nil {
		return domain.Obligation{}, err
	}

	o.Kind = domain.ObligationKind(kind)
	o.Status = domain.ObligationStatus(status)
	o.AccountID = accountID.String
	o.DueDate = timePtr(dueDate)
	o.SettledAt = timePtr(settledAt)
	o.CancelledAt = timePtr(cancelledAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func scanAccount(row rowScanner) (domain.CreditAccount, error) {
	var (
		a                  domain.CreditAccount
		holderKind, status string
	)
	if err := row.Scan(
		&a.ID, &a.HolderRef, &holderKind, &a.Currency, &a.CreditLimitMinor, &a.BalanceMinor,
		&status, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return domain.CreditAccount{}, err
	}
	a.HolderKind = domain.HolderKind(holderKind)
	a.Status = domain.AccountStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func queryObligations(ctx context.Context, q queryer, query string, args ...any) ([]domain.Obligation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Obligation, 0)
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan obligation row: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligation rows: %w", err)
	}
	// Курсор закрыт до загрузки позиций, чтобы не держать второе соединение.
	rows.Close()

	if err := attachLineItems(ctx, q, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachLineItems загружает позиции для всех обязательств одним запросом.
func attachLineItems(ctx context.Context, q queryer, obligations []domain.Obligation) error {
	if len(obligations) == 0 {
		return nil
	}

	ids := make([]string, 0, len(obligations))
	index := make(map[string]int, len(obligations))
	for i, o := range obligations {
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT obligation_id, id, description, qty, unit_price_minor
		FROM obligation_line_items
		WHERE obligation_id = ANY($1)
		ORDER BY obligation_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			obligationID string
			item         domain.LineItem
		)
		if err := rows.Scan(&obligationID, &item.ID, &item.Description, &item.Qty, &item.UnitPriceMinor); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		i := index[obligationID]
		obligations[i].LineItems = append(obligations[i].LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line items: %w", err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
