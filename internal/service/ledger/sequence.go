package ledger

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// NextNumber выдаёт следующий номер вида kind в периоде periodKey.
// Пустой periodKey означает текущий период схемы.
func (s *Service) NextNumber(ctx context.Context, kind domain.ObligationKind, periodKey string) (string, error) {
	scheme, err := domain.SchemeFor(kind)
	if err != nil {
		return "", err
	}
	periodKey = strings.TrimSpace(periodKey)
	if periodKey == "" {
		periodKey = scheme.PeriodKey(s.clock())
	}
	if !scheme.ValidPeriodKey(periodKey) {
		return "", domain.ErrPeriodKeyInvalid
	}

	var number string
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		var err error
		number, err = nextNumber(ctx, tx, kind, scheme, periodKey)
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// nextNumber увеличивает счётчик в рамках транзакции tx: откат транзакции
// возвращает и номер.
func nextNumber(ctx context.Context, tx domain.LedgerTx, kind domain.ObligationKind, scheme domain.SequenceScheme, periodKey string) (string, error) {
	value, err := tx.NextSequence(ctx, kind, periodKey)
	if err != nil {
		return "", err
	}
	return scheme.Format(periodKey, value)
}
