package domain

import (
	"fmt"
	"time"
)

// PeriodGranularity задаёт, на какой период сбрасывается нумерация.
type PeriodGranularity string

const (
	PeriodYear  PeriodGranularity = "year"
	PeriodMonth PeriodGranularity = "month"
	PeriodDay   PeriodGranularity = "day"
)

// SequenceScheme описывает формат человекочитаемого номера для вида обязательства.
type SequenceScheme struct {
	Prefix      string
	Granularity PeriodGranularity
	Width       int
}

var sequenceSchemes = map[ObligationKind]SequenceScheme{
	ObligationKindInvoice:      {Prefix: "INV", Granularity: PeriodYear, Width: 6},
	ObligationKindCustomerDebt: {Prefix: "DBT", Granularity: PeriodMonth, Width: 5},
	ObligationKindTraderCharge: {Prefix: "TRD", Granularity: PeriodMonth, Width: 5},
}

// SchemeFor возвращает схему нумерации для вида.
func SchemeFor(kind ObligationKind) (SequenceScheme, error) {
	scheme, ok := sequenceSchemes[kind]
	if !ok {
		return SequenceScheme{}, ErrKindInvalid
	}
	return scheme, nil
}

// PeriodKey возвращает ключ периода (YYYY или YYYYMM) для момента at в UTC.
func (s SequenceScheme) PeriodKey(at time.Time) string {
	at = at.UTC()
	if s.Granularity == PeriodMonth {
		return fmt.Sprintf("%04d%02d", at.Year(), int(at.Month()))
	}
	return fmt.Sprintf("%04d", at.Year())
}

// MaxValue — наибольшее значение, помещающееся в ширину.
func (s SequenceScheme) MaxValue() int64 {
	limit := int64(1)
	for i := 0; i < s.Width; i++ {
		limit *= 10
	}
	return limit - 1
}

// Format собирает номер {PREFIX}-{period}-{seq}.
func (s SequenceScheme) Format(periodKey string, value int64) (string, error) {
	if value <= 0 {
		return "", fmt.Errorf("sequence value must be positive, got %d", value)
	}
	if value > s.MaxValue() {
		return "", ErrSequenceExhausted
	}
	return fmt.Sprintf("%s-%s-%0*d", s.Prefix, periodKey, s.Width, value), nil
}

// ValidPeriodKey проверяет, что ключ периода соответствует гранулярности схемы.
func (s SequenceScheme) ValidPeriodKey(periodKey string) bool {
	layout := "2006"
	if s.Granularity == PeriodMonth {
		layout = "200601"
	}
	if len(periodKey) != len(layout) {
		return false
	}
	_, err := time.Parse(layout, periodKey)
	return err == nil
}
