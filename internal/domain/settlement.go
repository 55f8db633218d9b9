package domain

import (
	"strings"
	"time"
)

// SettlementMethod — способ, которым поступили деньги.
type SettlementMethod string

const (
	SettlementMethodCash         SettlementMethod = "cash"
	SettlementMethodBankTransfer SettlementMethod = "bank_transfer"
	SettlementMethodCard         SettlementMethod = "card"
	SettlementMethodWallet       SettlementMethod = "wallet"
	SettlementMethodOther        SettlementMethod = "other"
)

// Valid проверяет, что способ относится к поддерживаемым значениям.
func (m SettlementMethod) Valid() bool {
	switch m {
	case SettlementMethodCash, SettlementMethodBankTransfer, SettlementMethodCard,
		SettlementMethodWallet, SettlementMethodOther:
		return true
	default:
		return false
	}
}

// Settlement — неизменяемая запись о погашении обязательства.
// Исправления делаются новой записью, а не правкой истории.
type Settlement struct {
	ID           string
	ObligationID string
	AmountMinor  int64
	Method       SettlementMethod
	RecordedBy   string
	Reference    string
	SettledAt    time.Time
}

// SettlementRequest — входные данные для записи погашения.
type SettlementRequest struct {
	ObligationID string
	AmountMinor  int64
	Method       SettlementMethod
	RecordedBy   string
	Reference    string
}

// Validate проверяет запрос без обращения к хранилищу.
func (r SettlementRequest) Validate() error {
	if r.AmountMinor <= 0 {
		return ErrInvalidAmount
	}
	if !r.Method.Valid() {
		return ErrSettlementMethodInvalid
	}
	if strings.TrimSpace(r.RecordedBy) == "" {
		return ErrRecordedByRequired
	}
	return nil
}

// SumSettlements возвращает сумму погашений.
func SumSettlements(settlements []Settlement) int64 {
	var total int64
	for _, s := range settlements {
		total += s.AmountMinor
	}
	return total
}
