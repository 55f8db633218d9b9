package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const defaultListLimit = 100

// CreateObligationInput — параметры нового обязательства.
// Если переданы позиции, итог считается по ним; явный TotalMinor должен с ним совпасть.
type CreateObligationInput struct {
	Kind            domain.ObligationKind
	CounterpartyRef string
	Currency        string
	TotalMinor      int64
	LineItems       []domain.LineItem
	DueDate         *time.Time
	AccountID       string
}

func (in CreateObligationInput) normalize() (CreateObligationInput, error) {
	if !in.Kind.Valid() {
		return in, domain.ErrKindInvalid
	}
	in.CounterpartyRef = strings.TrimSpace(in.CounterpartyRef)
	if in.CounterpartyRef == "" {
		return in, domain.ErrCounterpartyRequired
	}
	in.Currency = domain.NormalizeCurrency(in.Currency)
	if in.Currency == "" {
		return in, domain.ErrCurrencyRequired
	}
	if len(in.LineItems) > 0 {
		sum, err := domain.SumLineItems(in.LineItems)
		if err != nil {
			return in, err
		}
		if in.TotalMinor != 0 && in.TotalMinor != sum {
			return in, domain.ErrAmountMismatch
		}
		in.TotalMinor = sum
	}
	if in.TotalMinor <= 0 || in.TotalMinor > domain.MaxAmountMinor {
		return in, domain.ErrInvalidAmount
	}
	in.AccountID = strings.TrimSpace(in.AccountID)
	if in.AccountID != "" && !in.Kind.SupportsAccount() {
		return in, domain.ErrAccountNotAllowed
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		in.DueDate = &due
	}
	return in, nil
}

// CreateObligation создаёт обязательство в статусе pending. Для счёта сначала
// начисляется сумма на кредитный счёт, затем выдаётся номер; всё в одной транзакции.
func (s *Service) CreateObligation(ctx context.Context, input CreateObligationInput) (obligation domain.Obligation, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("create_obligation", started, err) }()

	in, err := input.normalize()
	if err != nil {
		return domain.Obligation{}, err
	}
	if err := s.checkCounterparty(ctx, in.CounterpartyRef); err != nil {
		return domain.Obligation{}, err
	}
	scheme, err := domain.SchemeFor(in.Kind)
	if err != nil {
		return domain.Obligation{}, err
	}

	now := s.clock()
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		if in.AccountID != "" {
			account, err := tx.LockAccount(ctx, in.AccountID)
			if err != nil {
				return err
			}
			if account.Currency != in.Currency {
				return domain.ErrCurrencyMismatch
			}
			if err := s.chargeAccount(ctx, tx, account, in.TotalMinor, now); err != nil {
				return err
			}
		}

		number, err := nextNumber(ctx, tx, in.Kind, scheme, scheme.PeriodKey(now))
		if err != nil {
			return err
		}

		obligation = domain.Obligation{
			ID:              domain.NewID(domain.IDPrefixObligation),
			Number:          number,
			Kind:            in.Kind,
			CounterpartyRef: in.CounterpartyRef,
			Currency:        in.Currency,
			TotalMinor:      in.TotalMinor,
			Status:          domain.ObligationStatusPending,
			DueDate:         in.DueDate,
			AccountID:       in.AccountID,
			LineItems:       withLineItemIDs(in.LineItems),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertObligation(ctx, obligation); err != nil {
			return err
		}
		return enqueueEvent(ctx, tx, domain.EventObligationCreated, obligation, nil, now)
	})
	if err != nil {
		return domain.Obligation{}, err
	}

	s.metrics.RecordObligationCreated(string(obligation.Kind))
	s.logger.WithFields(log.Fields{
		"obligation_id": obligation.ID,
		"number":        obligation.Number,
		"account_id":    obligation.AccountID,
	}).Info("obligation created")
	return obligation, nil
}

// UpdateLineItems заменяет позиции обязательства, пока по нему не было погашений.
// Разница итогов начисляется на счёт или списывается с него.
func (s *Service) UpdateLineItems(ctx context.Context, id string, items []domain.LineItem) (obligation domain.Obligation, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("update_line_items", started, err) }()

	now := s.clock()
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		o, err := tx.LockObligation(ctx, id)
		if err != nil {
			return err
		}
		delta, err := o.ReplaceLineItems(withLineItemIDs(items), now)
		if err != nil {
			return err
		}

		if o.AccountBacked() && delta != 0 {
			if delta > 0 {
				account, err := tx.LockAccount(ctx, o.AccountID)
				if err != nil {
					return err
				}
				if err := s.chargeAccount(ctx, tx, account, delta, now); err != nil {
					return err
				}
			} else if err := s.releaseAccount(ctx, tx, o.AccountID, -delta, now); err != nil {
				return err
			}
		}

		if err := tx.UpdateObligation(ctx, o); err != nil {
			return err
		}
		if err := tx.ReplaceLineItems(ctx, o.ID, o.LineItems); err != nil {
			return err
		}
		o.Version++
		obligation = o
		return enqueueEvent(ctx, tx, domain.EventObligationUpdated, o, nil, now)
	})
	if err != nil {
		return domain.Obligation{}, err
	}

	s.logger.WithFields(log.Fields{
		"obligation_id": obligation.ID,
		"total_minor":   obligation.TotalMinor,
	}).Info("obligation line items replaced")
	return obligation, nil
}

// CancelObligation отменяет обязательство без погашений и возвращает начисление на счёт.
func (s *Service) CancelObligation(ctx context.Context, id, reason string) (obligation domain.Obligation, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("cancel_obligation", started, err) }()

	now := s.clock()
	var previous domain.ObligationStatus
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		o, err := tx.LockObligation(ctx, id)
		if err != nil {
			return err
		}
		previous = o.Status
		charged := o.RemainingMinor()
		if err := o.Cancel(reason, now); err != nil {
			return err
		}
		if err := tx.UpdateObligation(ctx, o); err != nil {
			return err
		}
		if o.AccountBacked() && charged > 0 {
			if err := s.releaseAccount(ctx, tx, o.AccountID, charged, now); err != nil {
				return err
			}
		}
		o.Version++
		obligation = o
		return enqueueEvent(ctx, tx, domain.EventObligationCancelled, o, nil, now)
	})
	if err != nil {
		return domain.Obligation{}, err
	}

	s.metrics.RecordTransition(string(previous), string(obligation.Status))
	s.logger.WithFields(log.Fields{
		"obligation_id": obligation.ID,
		"number":        obligation.Number,
		"reason":        obligation.CancelReason,
	}).Info("obligation cancelled")
	return obligation, nil
}

// GetObligation возвращает обязательство с позициями.
func (s *Service) GetObligation(ctx context.Context, id string) (domain.Obligation, error) {
	return s.store.GetObligation(ctx, id)
}

// ListByCounterparty возвращает обязательства контрагента, новые первыми.
func (s *Service) ListByCounterparty(ctx context.Context, counterpartyRef string, filter domain.ObligationFilter) ([]domain.Obligation, error) {
	counterpartyRef = strings.TrimSpace(counterpartyRef)
	if counterpartyRef == "" {
		return nil, domain.ErrCounterpartyRequired
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.ErrKindInvalid
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.store.ListByCounterparty(ctx, counterpartyRef, filter)
}

// ListOverdue возвращает просроченные обязательства.
func (s *Service) ListOverdue(ctx context.Context, limit int) ([]domain.Obligation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListOverdue(ctx, limit)
}

// ListSettlements возвращает историю погашений обязательства.
func (s *Service) ListSettlements(ctx context.Context, obligationID string) ([]domain.Settlement, error) {
	return s.store.ListSettlements(ctx, obligationID)
}

func (s *Service) checkCounterparty(ctx context.Context, ref string) error {
	if s.directory == nil {
		return nil
	}
	ok, err := s.directory.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check counterparty %s: %w", ref, err)
	}
	if !ok {
		return domain.ErrCounterpartyUnknown
	}
	return nil
}

func withLineItemIDs(items []domain.LineItem) []domain.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.LineItem, len(items))
	for i, item := range items {
		item.Description = strings.TrimSpace(item.Description)
		if item.ID == "" {
			item.ID = domain.NewID(domain.IDPrefixLineItem)
		}
		out[i] = item
	}
	return out
}
