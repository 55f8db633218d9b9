package ledger

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// SettlementResult — записанное погашение и состояние обязательства после него.
type SettlementResult struct {
	Settlement domain.Settlement
	Obligation domain.Obligation
}

// RecordSettlement записывает погашение одной транзакцией: блокирует обязательство,
// вставляет запись, пересчитывает статус и возвращает сумму на кредитный счёт.
// Сумма больше остатка отклоняется, а не урезается.
func (s *Service) RecordSettlement(ctx context.Context, req domain.SettlementRequest) (result SettlementResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("record_settlement", started, err) }()

	req.ObligationID = strings.TrimSpace(req.ObligationID)
	req.RecordedBy = strings.TrimSpace(req.RecordedBy)
	req.Reference = strings.TrimSpace(req.Reference)
	if err := req.Validate(); err != nil {
		return SettlementResult{}, err
	}

	now := s.clock()
	var previous domain.ObligationStatus
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		o, err := tx.LockObligation(ctx, req.ObligationID)
		if err != nil {
			return err
		}
		previous = o.Status
		if err := o.ApplySettlement(req.AmountMinor, now); err != nil {
			return err
		}

		settlement := domain.Settlement{
			ID:           domain.NewID(domain.IDPrefixSettlement),
			ObligationID: o.ID,
			AmountMinor:  req.AmountMinor,
			Method:       req.Method,
			RecordedBy:   req.RecordedBy,
			Reference:    req.Reference,
			SettledAt:    now,
		}
		if err := tx.InsertSettlement(ctx, settlement); err != nil {
			return err
		}
		if err := tx.UpdateObligation(ctx, o); err != nil {
			return err
		}
		if o.AccountBacked() {
			if err := s.releaseAccount(ctx, tx, o.AccountID, req.AmountMinor, now); err != nil {
				return err
			}
		}
		o.Version++

		if err := enqueueEvent(ctx, tx, domain.EventSettlementRecorded, o, &settlement, now); err != nil {
			return err
		}
		if o.Status == domain.ObligationStatusSettled {
			if err := enqueueEvent(ctx, tx, domain.EventObligationSettled, o, &settlement, now); err != nil {
				return err
			}
		}
		result = SettlementResult{Settlement: settlement, Obligation: o}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	o := result.Obligation
	s.metrics.RecordSettlement(string(req.Method), o.Currency, req.AmountMinor)
	s.metrics.RecordTransition(string(previous), string(o.Status))
	s.logger.WithFields(log.Fields{
		"obligation_id":   o.ID,
		"settlement_id":   result.Settlement.ID,
		"amount_minor":    req.AmountMinor,
		"remaining_minor": o.RemainingMinor(),
		"status":          o.Status,
	}).Info("settlement recorded")
	return result, nil
}
