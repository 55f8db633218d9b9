package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// reportView читает map хранилища напрямую: вызывающий держит s.mu.RLock.
type reportView struct {
	s *LedgerStore
}

func (v *reportView) Statistics(_ context.Context, filter domain.StatisticsFilter) (domain.LedgerStatistics, error) {
	var stats domain.LedgerStatistics
	for _, o := range v.s.obligations {
		if filter.Matches(o) {
			stats.Add(o)
		}
	}
	return stats, nil
}

func (v *reportView) Aging(_ context.Context, asOf time.Time) (domain.AgingReport, error) {
	report := domain.NewAgingReport(asOf)
	for _, o := range v.s.obligations {
		report.Add(o)
	}
	return report, nil
}

func (v *reportView) Revenue(_ context.Context, query domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	currency := domain.NormalizeCurrency(query.Currency)
	points := make(map[string]*domain.RevenuePoint)
	for obligationID, settlements := range v.s.settlements {
		o := v.s.obligations[obligationID]
		if currency != "" && o.Currency != currency {
			continue
		}
		for _, settlement := range settlements {
			if !query.Contains(settlement.SettledAt) {
				continue
			}
			label := query.PeriodLabel(settlement.SettledAt)
			point, ok := points[label]
			if !ok {
				point = &domain.RevenuePoint{Period: label}
				points[label] = point
			}
			point.SettlementsCount++
			point.AmountMinor += settlement.AmountMinor
		}
	}

	result := make([]domain.RevenuePoint, 0, len(points))
	for _, point := range points {
		result = append(result, *point)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period < result[j].Period })
	return result, nil
}

func (v *reportView) AccountStandings(_ context.Context) ([]domain.AccountStanding, error) {
	result := make([]domain.AccountStanding, 0, len(v.s.accounts))
	for _, acc := range v.s.accounts {
		result = append(result, acc.Standing())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

var _ domain.ReportView = (*reportView)(nil)
