package ledger

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// OpenAccount открывает активный кредитный счёт с нулевым балансом.
func (s *Service) OpenAccount(ctx context.Context, spec domain.AccountSpec) (domain.CreditAccount, error) {
	if err := spec.Validate(); err != nil {
		return domain.CreditAccount{}, err
	}
	holderRef := strings.TrimSpace(spec.HolderRef)
	if err := s.checkCounterparty(ctx, holderRef); err != nil {
		return domain.CreditAccount{}, err
	}

	now := s.clock()
	account := domain.CreditAccount{
		ID:               domain.NewID(domain.IDPrefixAccount),
		HolderRef:        holderRef,
		HolderKind:       spec.HolderKind,
		Currency:         domain.NormalizeCurrency(spec.Currency),
		CreditLimitMinor: spec.CreditLimitMinor,
		Status:           domain.AccountStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return domain.CreditAccount{}, err
	}

	s.logger.WithFields(log.Fields{
		"account_id":  account.ID,
		"holder_ref":  account.HolderRef,
		"limit_minor": account.CreditLimitMinor,
	}).Info("credit account opened")
	return account, nil
}

// GetAccount возвращает кредитный счёт.
func (s *Service) GetAccount(ctx context.Context, id string) (domain.CreditAccount, error) {
	return s.store.GetAccount(ctx, id)
}

// Charge начисляет amount на счёт. При нарушении лимита счёт не меняется.
func (s *Service) Charge(ctx context.Context, accountID string, amount int64) (account domain.CreditAccount, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("account_charge", started, err) }()

	if amount <= 0 {
		return domain.CreditAccount{}, domain.ErrInvalidAmount
	}
	now := s.clock()
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		locked, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := s.chargeAccount(ctx, tx, locked, amount, now); err != nil {
			return err
		}
		account, err = tx.LockAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return domain.CreditAccount{}, err
	}
	return account, nil
}

// Release уменьшает баланс счёта на amount, не опуская его ниже нуля.
func (s *Service) Release(ctx context.Context, accountID string, amount int64) (account domain.CreditAccount, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("account_release", started, err) }()

	if amount <= 0 {
		return domain.CreditAccount{}, domain.ErrInvalidAmount
	}
	now := s.clock()
	err = s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := s.releaseAccount(ctx, tx, accountID, amount, now); err != nil {
			return err
		}
		account, err = tx.LockAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return domain.CreditAccount{}, err
	}
	return account, nil
}

// GetStanding возвращает баланс, лимит и доступный остаток счёта.
// Имя владельца подтягивается из справочника, если он настроен.
func (s *Service) GetStanding(ctx context.Context, accountID string) (domain.AccountStanding, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.AccountStanding{}, err
	}
	standing := account.Standing()
	standing.DisplayName = s.displayName(ctx, account.HolderRef)
	return standing, nil
}

// SetCreditLimit меняет лимит счёта; лимит ниже текущего баланса отклоняется.
func (s *Service) SetCreditLimit(ctx context.Context, accountID string, limit int64) (domain.CreditAccount, error) {
	now := s.clock()
	var account domain.CreditAccount
	err := s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		locked, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := locked.SetCreditLimit(limit, now); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}
		locked.Version++
		account = locked
		return nil
	})
	if err != nil {
		return domain.CreditAccount{}, err
	}

	s.logger.WithFields(log.Fields{
		"account_id":  account.ID,
		"limit_minor": account.CreditLimitMinor,
	}).Info("credit limit changed")
	return account, nil
}

// SetAccountStatus активирует или замораживает счёт. Неактивный счёт
// не принимает начислений, но списания по нему проходят.
func (s *Service) SetAccountStatus(ctx context.Context, accountID string, status domain.AccountStatus) (domain.CreditAccount, error) {
	if !status.Valid() {
		return domain.CreditAccount{}, domain.ErrAccountStatusInvalid
	}
	now := s.clock()
	var account domain.CreditAccount
	err := s.store.Atomic(ctx, func(tx domain.LedgerTx) error {
		locked, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if locked.Status == status {
			account = locked
			return nil
		}
		locked.Status = status
		locked.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}
		locked.Version++
		account = locked
		return nil
	})
	if err != nil {
		return domain.CreditAccount{}, err
	}

	s.logger.WithFields(log.Fields{
		"account_id": account.ID,
		"status":     account.Status,
	}).Info("credit account status set")
	return account, nil
}

// displayName не считает ошибку справочника фатальной: отчёт строится и без имени.
func (s *Service) displayName(ctx context.Context, ref string) string {
	if s.directory == nil {
		return ""
	}
	info, err := s.directory.DisplayInfo(ctx, ref)
	if err != nil {
		s.logger.WithError(err).WithField("holder_ref", ref).Warn("counterparty display info unavailable")
		return ""
	}
	return info.DisplayName
}
