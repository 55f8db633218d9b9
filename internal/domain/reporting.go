package domain

import (
	"math"
	"sort"
	"time"
)

// StatusTotals — количество и суммы по одному статусу.
type StatusTotals struct {
	Status         ObligationStatus
	Count          int
	TotalMinor     int64
	SettledMinor   int64
	RemainingMinor int64
}

// CurrencyStatistics — сводка по обязательствам одной валюты.
type CurrencyStatistics struct {
	Currency       string
	ByStatus       []StatusTotals
	Count          int
	TotalMinor     int64
	SettledMinor   int64
	RemainingMinor int64
}

// NewCurrencyStatistics создаёт сводку с нулевыми строками всех статусов.
func NewCurrencyStatistics(currency string) CurrencyStatistics {
	stats := CurrencyStatistics{
		Currency: currency,
		ByStatus: make([]StatusTotals, 0, len(ObligationStatuses)),
	}
	for _, status := range ObligationStatuses {
		stats.ByStatus = append(stats.ByStatus, StatusTotals{Status: status})
	}
	return stats
}

// AddTotals учитывает строку статуса, уже посчитанную хранилищем.
func (c *CurrencyStatistics) AddTotals(line StatusTotals) {
	for i := range c.ByStatus {
		if c.ByStatus[i].Status != line.Status {
			continue
		}
		c.ByStatus[i].Count += line.Count
		c.ByStatus[i].TotalMinor += line.TotalMinor
		c.ByStatus[i].SettledMinor += line.SettledMinor
		c.ByStatus[i].RemainingMinor += line.RemainingMinor
		c.Count += line.Count
		c.TotalMinor += line.TotalMinor
		c.SettledMinor += line.SettledMinor
		c.RemainingMinor += line.RemainingMinor
		return
	}
}

// LedgerStatistics — сводка по обязательствам. Суммы в минорных единицах
// разных валют не складываются, поэтому они разбиты по валютам.
type LedgerStatistics struct {
	Count      int
	ByCurrency []CurrencyStatistics
}

// Add учитывает одно обязательство.
func (s *LedgerStatistics) Add(o Obligation) {
	s.AddTotals(o.Currency, StatusTotals{
		Status:         o.Status,
		Count:          1,
		TotalMinor:     o.TotalMinor,
		SettledMinor:   o.SettledMinor,
		RemainingMinor: o.RemainingMinor(),
	})
}

// AddTotals учитывает агрегированную строку (currency, status).
func (s *LedgerStatistics) AddTotals(currency string, line StatusTotals) {
	if !line.Status.Valid() {
		return
	}
	i := sort.Search(len(s.ByCurrency), func(i int) bool { return s.ByCurrency[i].Currency >= currency })
	if i == len(s.ByCurrency) || s.ByCurrency[i].Currency != currency {
		s.ByCurrency = append(s.ByCurrency, CurrencyStatistics{})
		copy(s.ByCurrency[i+1:], s.ByCurrency[i:])
		s.ByCurrency[i] = NewCurrencyStatistics(currency)
	}
	s.ByCurrency[i].AddTotals(line)
	s.Count += line.Count
}

// Currency возвращает сводку по валюте; для валюты без обязательств она нулевая.
func (s LedgerStatistics) Currency(currency string) CurrencyStatistics {
	currency = NormalizeCurrency(currency)
	for _, stats := range s.ByCurrency {
		if stats.Currency == currency {
			return stats
		}
	}
	return NewCurrencyStatistics(currency)
}

// StatisticsFilter ограничивает выборку для статистики.
type StatisticsFilter struct {
	Kind            ObligationKind
	CounterpartyRef string
	Currency        string
	CreatedFrom     time.Time
	CreatedTo       time.Time
}

// Matches сообщает, попадает ли обязательство под фильтр.
func (f StatisticsFilter) Matches(o Obligation) bool {
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.CounterpartyRef != "" && o.CounterpartyRef != f.CounterpartyRef {
		return false
	}
	if f.Currency != "" && o.Currency != NormalizeCurrency(f.Currency) {
		return false
	}
	if !f.CreatedFrom.IsZero() && o.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !o.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	return true
}

// AgingBucket — корзина просрочки.
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	Aging61To90  AgingBucket = "61-90"
	AgingOver90  AgingBucket = "90+"
)

// AgingBuckets перечисляет корзины в порядке возрастания просрочки.
var AgingBuckets = []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, Aging61To90, AgingOver90}

// DaysPastDue возвращает число начатых суток просрочки: час после срока уже даёт 1.
func DaysPastDue(o Obligation, now time.Time) int {
	if o.DueDate == nil || !o.DueDate.Before(now) {
		return 0
	}
	return int(math.Ceil(now.Sub(*o.DueDate).Hours() / 24))
}

// AgingBucketFor относит открытое обязательство к корзине на момент now.
// Без срока обязательство считается текущим.
func AgingBucketFor(o Obligation, now time.Time) AgingBucket {
	days := DaysPastDue(o, now)
	switch {
	case days == 0:
		return AgingCurrent
	case days <= 30:
		return Aging1To30
	case days <= 60:
		return Aging31To60
	case days <= 90:
		return Aging61To90
	default:
		return AgingOver90
	}
}

// AgingLine — итог по корзине.
type AgingLine struct {
	Bucket         AgingBucket
	Count          int
	RemainingMinor int64
}

// CurrencyAging — корзины просрочки одной валюты в фиксированном порядке.
type CurrencyAging struct {
	Currency string
	Lines    []AgingLine
}

func newCurrencyAging(currency string) CurrencyAging {
	lines := make([]AgingLine, 0, len(AgingBuckets))
	for _, bucket := range AgingBuckets {
		lines = append(lines, AgingLine{Bucket: bucket})
	}
	return CurrencyAging{Currency: currency, Lines: lines}
}

// Line возвращает строку корзины.
func (c CurrencyAging) Line(bucket AgingBucket) AgingLine {
	for _, line := range c.Lines {
		if line.Bucket == bucket {
			return line
		}
	}
	return AgingLine{Bucket: bucket}
}

// AgingReport — непогашенные остатки по корзинам, отдельно для каждой валюты.
type AgingReport struct {
	AsOf       time.Time
	ByCurrency []CurrencyAging
}

// NewAgingReport создаёт пустой отчёт на момент asOf.
func NewAgingReport(asOf time.Time) AgingReport {
	return AgingReport{AsOf: asOf}
}

// Add учитывает открытое обязательство.
func (r *AgingReport) Add(o Obligation) {
	if !o.Status.Open() {
		return
	}
	i := sort.Search(len(r.ByCurrency), func(i int) bool { return r.ByCurrency[i].Currency >= o.Currency })
	if i == len(r.ByCurrency) || r.ByCurrency[i].Currency != o.Currency {
		r.ByCurrency = append(r.ByCurrency, CurrencyAging{})
		copy(r.ByCurrency[i+1:], r.ByCurrency[i:])
		r.ByCurrency[i] = newCurrencyAging(o.Currency)
	}

	bucket := AgingBucketFor(o, r.AsOf)
	lines := r.ByCurrency[i].Lines
	for j := range lines {
		if lines[j].Bucket == bucket {
			lines[j].Count++
			lines[j].RemainingMinor += o.RemainingMinor()
			return
		}
	}
}

// Currency возвращает корзины валюты; для валюты без открытых обязательств они нулевые.
func (r AgingReport) Currency(currency string) CurrencyAging {
	currency = NormalizeCurrency(currency)
	for _, aging := range r.ByCurrency {
		if aging.Currency == currency {
			return aging
		}
	}
	return newCurrencyAging(currency)
}

// RevenuePoint — сумма погашений за период.
type RevenuePoint struct {
	Period           string
	SettlementsCount int
	AmountMinor      int64
}

// RevenueQuery — параметры отчёта по выручке.
type RevenueQuery struct {
	From        time.Time
	To          time.Time
	Granularity PeriodGranularity
	Currency    string
}

// PeriodLabel возвращает метку периода для момента at (YYYY-MM или YYYY-MM-DD).
func (q RevenueQuery) PeriodLabel(at time.Time) string {
	at = at.UTC()
	if q.Granularity == PeriodDay {
		return at.Format("2006-01-02")
	}
	return at.Format("2006-01")
}

// Contains сообщает, попадает ли момент в полуинтервал [From, To).
func (q RevenueQuery) Contains(at time.Time) bool {
	if !q.From.IsZero() && at.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !at.Before(q.To) {
		return false
	}
	return true
}
