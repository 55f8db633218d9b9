package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LedgerEventType — тип события леджера для transactional outbox.
type LedgerEventType string

const (
	EventObligationCreated   LedgerEventType = "obligation.created"
	EventObligationUpdated   LedgerEventType = "obligation.updated"
	EventObligationSettled   LedgerEventType = "obligation.settled"
	EventObligationOverdue   LedgerEventType = "obligation.overdue"
	EventObligationCancelled LedgerEventType = "obligation.cancelled"
	EventSettlementRecorded  LedgerEventType = "settlement.recorded"
)

// AggregateObligation — тип агрегата в outbox-сообщениях.
const AggregateObligation = "obligation"

// LedgerEvent — полезная нагрузка outbox-сообщения.
type LedgerEvent struct {
	EventType       LedgerEventType  `json:"event_type"`
	ObligationID    string           `json:"obligation_id"`
	Number          string           `json:"number"`
	Kind            ObligationKind   `json:"kind"`
	CounterpartyRef string           `json:"counterparty_ref"`
	AccountID       string           `json:"account_id,omitempty"`
	Currency        string           `json:"currency"`
	Status          ObligationStatus `json:"status"`
	TotalMinor      int64            `json:"total_minor"`
	SettledMinor    int64            `json:"settled_minor"`
	RemainingMinor  int64            `json:"remaining_minor"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	SettlementID    string           `json:"settlement_id,omitempty"`
	AmountMinor     int64            `json:"amount_minor,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// NewLedgerEvent собирает событие по состоянию обязательства.
func NewLedgerEvent(eventType LedgerEventType, o Obligation, settlement *Settlement, at time.Time) LedgerEvent {
	event := LedgerEvent{
		EventType:       eventType,
		ObligationID:    o.ID,
		Number:          o.Number,
		Kind:            o.Kind,
		CounterpartyRef: o.CounterpartyRef,
		AccountID:       o.AccountID,
		Currency:        o.Currency,
		Status:          o.Status,
		TotalMinor:      o.TotalMinor,
		SettledMinor:    o.SettledMinor,
		RemainingMinor:  o.RemainingMinor(),
		DueDate:         o.DueDate,
		OccurredAt:      at.UTC(),
	}
	if settlement != nil {
		event.SettlementID = settlement.ID
		event.AmountMinor = settlement.AmountMinor
	}
	return event
}

// OutboxMessage упаковывает событие в сообщение outbox.
func (e LedgerEvent) OutboxMessage() (OutboxMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal ledger event %s: %w", e.EventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateObligation,
		AggregateID:   e.ObligationID,
		EventType:     string(e.EventType),
		Payload:       payload,
	}, nil
}

// ParseLedgerEvent разбирает полезную нагрузку outbox-сообщения.
func ParseLedgerEvent(payload []byte) (LedgerEvent, error) {
	var event LedgerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return LedgerEvent{}, fmt.Errorf("unmarshal ledger event: %w", err)
	}
	if event.EventType == "" {
		return LedgerEvent{}, fmt.Errorf("ledger event has empty event_type")
	}
	return event, nil
}
