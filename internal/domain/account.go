package domain

import (
	"strings"
	"time"
)

// HolderKind — кто держит кредитный счёт.
type HolderKind string

const (
	HolderKindCustomer HolderKind = "customer"
	HolderKindTrader   HolderKind = "trader"
)

// Valid проверяет, что вид держателя поддерживается.
func (k HolderKind) Valid() bool {
	return k == HolderKindCustomer || k == HolderKindTrader
}

// AccountStatus — состояние кредитного счёта.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Valid проверяет, что статус счёта поддерживается.
func (s AccountStatus) Valid() bool {
	return s == AccountStatusActive || s == AccountStatusInactive
}

// CreditAccount держит кредитный лимит и текущий баланс непогашенных начислений.
type CreditAccount struct {
	ID               string
	HolderRef        string
	HolderKind       HolderKind
	Currency         string
	CreditLimitMinor int64
	BalanceMinor     int64
	Status           AccountStatus
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableMinor возвращает свободный остаток лимита.
func (a CreditAccount) AvailableMinor() int64 {
	available := a.CreditLimitMinor - a.BalanceMinor
	if available < 0 {
		return 0
	}
	return available
}

// Standing возвращает текущее положение счёта.
func (a CreditAccount) Standing() AccountStanding {
	return AccountStanding{
		AccountID:      a.ID,
		HolderRef:      a.HolderRef,
		HolderKind:     a.HolderKind,
		Currency:       a.Currency,
		Status:         a.Status,
		BalanceMinor:   a.BalanceMinor,
		LimitMinor:     a.CreditLimitMinor,
		AvailableMinor: a.AvailableMinor(),
	}
}

// Charge увеличивает баланс, если лимит это допускает; иначе счёт не меняется.
func (a *CreditAccount) Charge(amount int64, at time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Status != AccountStatusActive {
		return ErrAccountInactive
	}
	if amount > a.CreditLimitMinor-a.BalanceMinor {
		return ErrCreditLimitExceeded
	}
	a.BalanceMinor += amount
	a.UpdatedAt = at
	return nil
}

// Release уменьшает баланс с полом в нуле.
// Возвращает величину, на которую пришлось обрезать списание.
func (a *CreditAccount) Release(amount int64, at time.Time) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var clamped int64
	if amount > a.BalanceMinor {
		clamped = amount - a.BalanceMinor
		a.BalanceMinor = 0
	} else {
		a.BalanceMinor -= amount
	}
	a.UpdatedAt = at
	return clamped, nil
}

// SetCreditLimit меняет лимит, не допуская его опускания ниже баланса.
func (a *CreditAccount) SetCreditLimit(limit int64, at time.Time) error {
	if limit < 0 {
		return ErrCreditLimitNegative
	}
	if limit < a.BalanceMinor {
		return ErrCreditLimitExceeded
	}
	a.CreditLimitMinor = limit
	a.UpdatedAt = at
	return nil
}

// AccountSpec — параметры открытия счёта.
type AccountSpec struct {
	HolderRef        string
	HolderKind       HolderKind
	Currency         string
	CreditLimitMinor int64
}

// Validate проверяет параметры открытия счёта.
func (s AccountSpec) Validate() error {
	if strings.TrimSpace(s.HolderRef) == "" {
		return ErrHolderRequired
	}
	if !s.HolderKind.Valid() {
		return ErrHolderKindInvalid
	}
	if NormalizeCurrency(s.Currency) == "" {
		return ErrCurrencyRequired
	}
	if s.CreditLimitMinor < 0 {
		return ErrCreditLimitNegative
	}
	return nil
}

// AccountStanding — {balance, limit, available} по счёту.
type AccountStanding struct {
	AccountID      string
	HolderRef      string
	HolderKind     HolderKind
	DisplayName    string
	Currency       string
	Status         AccountStatus
	BalanceMinor   int64
	LimitMinor     int64
	AvailableMinor int64
}
