package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type ledgerTx struct {
	tx *sql.Tx
}

// NextSequence увеличивает счётчик upsert-ом: строка (kind, period) блокируется
// до конца транзакции, поэтому параллельные выдачи сериализуются.
func (t *ledgerTx) NextSequence(ctx context.Context, kind domain.ObligationKind, period string) (int64, error) {
	var value int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_sequences (kind, period, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, period) DO UPDATE
		SET value = ledger_sequences.value + 1
		RETURNING value
	`, string(kind), period).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence value: %w", err)
	}
	return value, nil
}

func (t *ledgerTx) InsertObligation(ctx context.Context, o domain.Obligation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO obligations (
			id, number, kind, counterparty_ref, currency, total_minor, settled_minor, status,
			due_date, account_id, cancel_reason, version, created_at, updated_at, settled_at, cancelled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		o.ID, o.Number, string(o.Kind), o.CounterpartyRef, o.Currency, o.TotalMinor, o.SettledMinor, string(o.Status),
		nullTime(o.DueDate), nullString(o.AccountID), o.CancelReason, o.Version, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
		nullTime(o.SettledAt), nullTime(o.CancelledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("insert obligation: %w", err)
	}

	return t.insertLineItems(ctx, o.ID, o.LineItems)
}

func (t *ledgerTx) LockObligation(ctx context.Context, id string) (domain.Obligation, error) {
	return getObligation(ctx, t.tx, id, true)
}

func (t *ledgerTx) UpdateObligation(ctx context.Context, o domain.Obligation) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE obligations
		SET total_minor = $1,
		    settled_minor = $2,
		    status = $3,
		    due_date = $4,
		    cancel_reason = $5,
		    settled_at = $6,
		    cancelled_at = $7,
		    updated_at = $8,
		    version = version + 1
		WHERE id = $9
		  AND version = $10
	`,
		o.TotalMinor, o.SettledMinor, string(o.Status), nullTime(o.DueDate), o.CancelReason,
		nullTime(o.SettledAt), nullTime(o.CancelledAt), o.UpdatedAt.UTC(), o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update obligation: %w", err)
	}
	return t.checkVersioned(ctx, res, "obligations", o.ID, domain.ErrObligationNotFound)
}

func (t *ledgerTx) ReplaceLineItems(ctx context.Context, obligationID string, items []domain.LineItem) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM obligation_line_items WHERE obligation_id = $1`, obligationID); err != nil {
		return fmt.Errorf("delete line items: %w", err)
	}
	return t.insertLineItems(ctx, obligationID, items)
}

func (t *ledgerTx) InsertSettlement(ctx context.Context, s domain.Settlement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO settlements (
			id, obligation_id, amount_minor, method, recorded_by, reference, settled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		s.ID, s.ObligationID, s.AmountMinor, string(s.Method), s.RecordedBy, s.Reference, s.SettledAt.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrObligationNotFound
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (t *ledgerTx) InsertAccount(ctx context.Context, a domain.CreditAccount) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO credit_accounts (
			id, holder_ref, holder_kind, currency, credit_limit_minor, balance_minor,
			status, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		a.ID, a.HolderRef, string(a.HolderKind), a.Currency, a.CreditLimitMinor, a.BalanceMinor,
		string(a.Status), a.Version, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert credit account: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockAccount(ctx context.Context, id string) (domain.CreditAccount, error) {
	return getAccount(ctx, t.tx, id, true)
}

func (t *ledgerTx) UpdateAccount(ctx context.Context, a domain.CreditAccount) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE credit_accounts
		SET credit_limit_minor = $1,
		    balance_minor = $2,
		    status = $3,
		    updated_at = $4,
		    version = version + 1
		WHERE id = $5
		  AND version = $6
	`,
		a.CreditLimitMinor, a.BalanceMinor, string(a.Status), a.UpdatedAt.UTC(), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("update credit account: %w", err)
	}
	return t.checkVersioned(ctx, res, "credit_accounts", a.ID, domain.ErrAccountNotFound)
}

func (t *ledgerTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (t *ledgerTx) insertLineItems(ctx context.Context, obligationID string, items []domain.LineItem) error {
	for position, item := range items {
		if item.ID == "" {
			item.ID = domain.NewID(domain.IDPrefixLineItem)
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO obligation_line_items (
				id, obligation_id, position, description, qty, unit_price_minor
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			item.ID, obligationID, position, item.Description, item.Qty, item.UnitPriceMinor,
		); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

// checkVersioned различает отсутствующую строку и устаревшую версию,
// когда UPDATE ... AND version = $n ничего не затронул.
func (t *ledgerTx) checkVersioned(ctx context.Context, res sql.Result, table, id string, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var found string
	err = t.tx.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("check %s exists: %w", table, err)
	}
	return domain.ErrVersionConflict
}

var _ domain.LedgerTx = (*ledgerTx)(nil)
