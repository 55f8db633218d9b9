package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxAmountMinor — верхняя граница любой суммы в минорных единицах.
// При ней произведение и сумма позиций не переполняют int64.
const MaxAmountMinor int64 = 100_000_000_000_000_000

// ObligationKind задаёт вид денежного обязательства.
type ObligationKind string

const (
	// ObligationKindInvoice — счёт клиенту, разовый, без кредитного счёта.
	ObligationKindInvoice ObligationKind = "invoice"
	// ObligationKindCustomerDebt — долг покупателя, может списываться на кредитный счёт.
	ObligationKindCustomerDebt ObligationKind = "customer_debt"
	// ObligationKindTraderCharge — начисление оптовику по его кредитному счёту.
	ObligationKindTraderCharge ObligationKind = "trader_charge"
)

// ObligationKinds перечисляет все поддерживаемые виды.
var ObligationKinds = []ObligationKind{
	ObligationKindInvoice,
	ObligationKindCustomerDebt,
	ObligationKindTraderCharge,
}

// Valid проверяет, что вид относится к поддерживаемым.
func (k ObligationKind) Valid() bool {
	switch k {
	case ObligationKindInvoice, ObligationKindCustomerDebt, ObligationKindTraderCharge:
		return true
	default:
		return false
	}
}

// SupportsAccount сообщает, может ли обязательство этого вида ссылаться на кредитный счёт.
func (k ObligationKind) SupportsAccount() bool {
	return k == ObligationKindCustomerDebt || k == ObligationKindTraderCharge
}

// ObligationStatus описывает состояние обязательства.
type ObligationStatus string

const (
	ObligationStatusPending   ObligationStatus = "pending"
	ObligationStatusPartial   ObligationStatus = "partial"
	ObligationStatusSettled   ObligationStatus = "settled"
	ObligationStatusOverdue   ObligationStatus = "overdue"
	ObligationStatusCancelled ObligationStatus = "cancelled"
)

// ObligationStatuses перечисляет все статусы в порядке жизненного цикла.
var ObligationStatuses = []ObligationStatus{
	ObligationStatusPending,
	ObligationStatusPartial,
	ObligationStatusSettled,
	ObligationStatusOverdue,
	ObligationStatusCancelled,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ObligationStatus) Valid() bool {
	switch s {
	case ObligationStatusPending, ObligationStatusPartial, ObligationStatusSettled,
		ObligationStatusOverdue, ObligationStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s ObligationStatus) Terminal() bool {
	return s == ObligationStatusSettled || s == ObligationStatusCancelled
}

// Open сообщает, что по обязательству ещё ожидаются деньги.
func (s ObligationStatus) Open() bool {
	return s == ObligationStatusPending || s == ObligationStatusPartial || s == ObligationStatusOverdue
}

// TransitionTrigger — событие, которое двигает обязательство по графу статусов.
type TransitionTrigger string

const (
	TriggerPartialSettlement TransitionTrigger = "partial_settlement"
	TriggerFullSettlement    TransitionTrigger = "full_settlement"
	TriggerDuePassed         TransitionTrigger = "due_passed"
	TriggerCancel            TransitionTrigger = "cancel"
)

type transitionKey struct {
	from    ObligationStatus
	trigger TransitionTrigger
}

// obligationTransitions — полный граф допустимых переходов.
var obligationTransitions = map[transitionKey]ObligationStatus{
	{ObligationStatusPending, TriggerPartialSettlement}: ObligationStatusPartial,
	{ObligationStatusPending, TriggerFullSettlement}:    ObligationStatusSettled,
	{ObligationStatusPending, TriggerDuePassed}:         ObligationStatusOverdue,
	{ObligationStatusPending, TriggerCancel}:            ObligationStatusCancelled,
	{ObligationStatusPartial, TriggerPartialSettlement}: ObligationStatusPartial,
	{ObligationStatusPartial, TriggerFullSettlement}:    ObligationStatusSettled,
	{ObligationStatusPartial, TriggerDuePassed}:         ObligationStatusOverdue,
	{ObligationStatusPartial, TriggerCancel}:            ObligationStatusCancelled,
	{ObligationStatusOverdue, TriggerPartialSettlement}: ObligationStatusOverdue,
	{ObligationStatusOverdue, TriggerFullSettlement}:    ObligationStatusSettled,
}

// NextStatus возвращает статус после trigger или ErrInvalidTransition.
func NextStatus(from ObligationStatus, trigger TransitionTrigger) (ObligationStatus, error) {
	to, ok := obligationTransitions[transitionKey{from: from, trigger: trigger}]
	if !ok {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// LineItem — позиция счёта.
type LineItem struct {
	ID             string
	Description    string
	Qty            int64
	UnitPriceMinor int64
}

// TotalMinor возвращает сумму позиции в минорных единицах.
func (li LineItem) TotalMinor() int64 {
	return li.Qty * li.UnitPriceMinor
}

// Validate проверяет одну позицию.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return ErrLineItemDescRequired
	}
	if li.Qty <= 0 {
		return ErrLineItemQtyInvalid
	}
	if li.UnitPriceMinor < 0 {
		return ErrLineItemPriceInvalid
	}
	if li.UnitPriceMinor > MaxAmountMinor {
		return fmt.Errorf("line item unit price exceeds %d: %w", MaxAmountMinor, ErrInvalidAmount)
	}
	if li.UnitPriceMinor > 0 && li.Qty > MaxAmountMinor/li.UnitPriceMinor {
		return fmt.Errorf("line item total exceeds %d: %w", MaxAmountMinor, ErrInvalidAmount)
	}
	return nil
}

// SumLineItems валидирует позиции и возвращает их сумму.
func SumLineItems(items []LineItem) (int64, error) {
	var total int64
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, err
		}
		itemTotal := item.TotalMinor()
		if total > MaxAmountMinor-itemTotal {
			return 0, fmt.Errorf("line items total exceeds %d: %w", MaxAmountMinor, ErrInvalidAmount)
		}
		total += itemTotal
	}
	return total, nil
}

// Obligation — денежное требование, ожидающее погашения.
type Obligation struct {
	ID              string
	Number          string
	Kind            ObligationKind
	CounterpartyRef string
	Currency        string
	TotalMinor      int64
	SettledMinor    int64
	Status          ObligationStatus
	DueDate         *time.Time
	AccountID       string
	LineItems       []LineItem
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SettledAt       *time.Time
	CancelledAt     *time.Time
}

// RemainingMinor возвращает непогашенный остаток.
func (o Obligation) RemainingMinor() int64 {
	remaining := o.TotalMinor - o.SettledMinor
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AccountBacked сообщает, привязано ли обязательство к кредитному счёту.
func (o Obligation) AccountBacked() bool {
	return o.AccountID != ""
}

// PastDue сообщает, что срок прошёл к моменту now.
func (o Obligation) PastDue(now time.Time) bool {
	return o.DueDate != nil && o.DueDate.Before(now)
}

// OverdueCandidate сообщает, должен ли свип перевести обязательство в overdue.
func (o Obligation) OverdueCandidate(now time.Time) bool {
	if o.Status != ObligationStatusPending && o.Status != ObligationStatusPartial {
		return false
	}
	return o.PastDue(now)
}

// ApplySettlement пересчитывает агрегаты после погашения amount.
// Обязательство не меняется при ошибке.
func (o *Obligation) ApplySettlement(amount int64, at time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if o.Status.Terminal() {
		if o.Status == ObligationStatusSettled {
			return ErrOversettlementRejected
		}
		return ErrInvalidTransition
	}
	if amount > o.RemainingMinor() {
		return ErrOversettlementRejected
	}

	trigger := TriggerPartialSettlement
	if amount == o.RemainingMinor() {
		trigger = TriggerFullSettlement
	}
	next, err := NextStatus(o.Status, trigger)
	if err != nil {
		return err
	}

	o.SettledMinor += amount
	o.Status = next
	o.UpdatedAt = at
	if next == ObligationStatusSettled {
		settledAt := at
		o.SettledAt = &settledAt
	}
	return nil
}

// MarkOverdue переводит обязательство в overdue.
func (o *Obligation) MarkOverdue(at time.Time) error {
	next, err := NextStatus(o.Status, TriggerDuePassed)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Cancel переводит обязательство в cancelled, если погашений ещё не было.
func (o *Obligation) Cancel(reason string, at time.Time) error {
	if o.SettledMinor > 0 {
		return ErrHasSettlements
	}
	next, err := NextStatus(o.Status, TriggerCancel)
	if err != nil {
		return err
	}
	o.Status = next
	o.CancelReason = strings.TrimSpace(reason)
	o.UpdatedAt = at
	cancelledAt := at
	o.CancelledAt = &cancelledAt
	return nil
}

// ReplaceLineItems заменяет позиции и пересчитывает итог.
// Возвращает разницу нового и старого итога.
func (o *Obligation) ReplaceLineItems(items []LineItem, at time.Time) (int64, error) {
	if o.Status != ObligationStatusPending || o.SettledMinor != 0 {
		return 0, ErrObligationLocked
	}
	total, err := SumLineItems(items)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, ErrInvalidAmount
	}
	delta := total - o.TotalMinor
	o.LineItems = append([]LineItem(nil), items...)
	o.TotalMinor = total
	o.UpdatedAt = at
	return delta, nil
}

// ValidateInvariants проверяет денежные инварианты обязательства.
func (o Obligation) ValidateInvariants() []error {
	var errs []error
	if !o.Kind.Valid() {
		errs = append(errs, ErrKindInvalid)
	}
	if strings.TrimSpace(o.CounterpartyRef) == "" {
		errs = append(errs, ErrCounterpartyRequired)
	}
	if strings.TrimSpace(o.Currency) == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.TotalMinor <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if o.SettledMinor < 0 || o.SettledMinor > o.TotalMinor {
		errs = append(errs, ErrOversettlementRejected)
	}
	if o.AccountID != "" && !o.Kind.SupportsAccount() {
		errs = append(errs, ErrAccountNotAllowed)
	}
	if len(o.LineItems) > 0 {
		total, err := SumLineItems(o.LineItems)
		if err != nil {
			errs = append(errs, err)
		} else if total != o.TotalMinor {
			errs = append(errs, ErrAmountMismatch)
		}
	}
	return errs
}

// Clone возвращает глубокую копию обязательства.
func (o Obligation) Clone() Obligation {
	dst := o
	dst.LineItems = append([]LineItem(nil), o.LineItems...)
	if o.DueDate != nil {
		due := *o.DueDate
		dst.DueDate = &due
	}
	if o.SettledAt != nil {
		settled := *o.SettledAt
		dst.SettledAt = &settled
	}
	if o.CancelledAt != nil {
		cancelled := *o.CancelledAt
		dst.CancelledAt = &cancelled
	}
	return dst
}

// NormalizeCurrency приводит код валюты к верхнему регистру.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ObligationFilter ограничивает выборку обязательств.
type ObligationFilter struct {
	Kind     ObligationKind
	Statuses []ObligationStatus
	Limit    int
}

// Matches сообщает, попадает ли обязательство под фильтр.
func (f ObligationFilter) Matches(o Obligation) bool {
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if o.Status == status {
			return true
		}
	}
	return false
}
