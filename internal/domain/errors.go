package domain

import "errors"

var (
	// ErrObligationNotFound возвращается, если обязательство не найдено.
	ErrObligationNotFound = errors.New("obligation not found")
	// ErrAccountNotFound возвращается, если кредитный счёт не найден.
	ErrAccountNotFound = errors.New("credit account not found")
	// ErrSettlementNotFound возвращается, если погашение не найдено.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrObligationLocked — правка позиций после начала погашений или вне статуса pending.
	ErrObligationLocked = errors.New("obligation is locked for line item changes")
	// ErrHasSettlements — отмена обязательства, по которому уже есть погашения.
	ErrHasSettlements = errors.New("obligation has settlements")
	// ErrOversettlementRejected — сумма погашения превышает остаток.
	ErrOversettlementRejected = errors.New("settlement exceeds remaining amount")
	// ErrCreditLimitExceeded — начисление нарушило бы кредитный лимит счёта.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	// ErrSequenceExhausted — номер не помещается в ширину формата.
	ErrSequenceExhausted = errors.New("sequence exhausted")
	// ErrInvalidAmount — нулевая или отрицательная сумма.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInvalidTransition — переход вне графа статусов обязательства.
	ErrInvalidTransition = errors.New("invalid obligation status transition")
	// ErrAccountInactive — операция над неактивным счётом.
	ErrAccountInactive = errors.New("credit account is inactive")
	// ErrCurrencyMismatch — валюта обязательства не совпадает с валютой счёта.
	ErrCurrencyMismatch = errors.New("currency does not match account currency")
	// ErrAmountMismatch — итог не совпадает с суммой позиций.
	ErrAmountMismatch = errors.New("total amount does not match line items sum")
	// ErrCounterpartyUnknown — контрагент не найден в справочнике.
	ErrCounterpartyUnknown = errors.New("counterparty is unknown")
	// ErrAccountNotAllowed — счёт указан для вида, который не работает со счетами.
	ErrAccountNotAllowed = errors.New("obligation kind does not support credit accounts")

	// Ошибки валидации входных данных.
	ErrKindInvalid             = errors.New("obligation kind is invalid")
	ErrCounterpartyRequired    = errors.New("counterparty_ref is required")
	ErrCurrencyRequired        = errors.New("currency is required")
	ErrLineItemQtyInvalid      = errors.New("line item qty must be greater than zero")
	ErrLineItemPriceInvalid    = errors.New("line item unit price must be non-negative")
	ErrLineItemDescRequired    = errors.New("line item description is required")
	ErrSettlementMethodInvalid = errors.New("settlement method is invalid")
	ErrRecordedByRequired      = errors.New("recorded_by is required")
	ErrCreditLimitNegative     = errors.New("credit limit must be non-negative")
	ErrHolderRequired          = errors.New("holder_ref is required")
	ErrHolderKindInvalid       = errors.New("holder kind is invalid")
	ErrAccountStatusInvalid    = errors.New("account status is invalid")
	ErrPeriodKeyInvalid        = errors.New("sequence period key is invalid")
	ErrGranularityInvalid      = errors.New("report granularity must be month or day")
	ErrReportRangeInvalid      = errors.New("report range start must be before its end")

	// ErrVersionConflict сигнализирует о конкурентной записи одной строки.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки хранилища ключей идемпотентности.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}

// IsValidation проверяет, является ли ошибка ошибкой входных данных.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsIdempotencyConflict проверяет конфликт по ключу идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

var validationErrors = []error{
	ErrInvalidAmount,
	ErrAmountMismatch,
	ErrKindInvalid,
	ErrCounterpartyRequired,
	ErrCurrencyRequired,
	ErrLineItemQtyInvalid,
	ErrLineItemPriceInvalid,
	ErrLineItemDescRequired,
	ErrSettlementMethodInvalid,
	ErrRecordedByRequired,
	ErrCreditLimitNegative,
	ErrHolderRequired,
	ErrHolderKindInvalid,
	ErrAccountStatusInvalid,
	ErrPeriodKeyInvalid,
	ErrGranularityInvalid,
	ErrReportRangeInvalid,
	ErrAccountNotAllowed,
}
