package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const snapshotAttempts = 3

// ObligationSnapshot — согласованный срез обязательства для рендеринга документов.
type ObligationSnapshot struct {
	Obligation   domain.Obligation
	Settlements  []domain.Settlement
	Counterparty domain.CounterpartyInfo
}

// Overview — статистика, aging и положение счетов из одного снимка.
type Overview struct {
	Statistics domain.LedgerStatistics
	Aging      domain.AgingReport
	Standings  []domain.AccountStanding
}

// Snapshot читает обязательство и его погашения. Если сумма погашений не сходится
// с агрегатом (запись прошла между чтениями), чтение повторяется.
func (s *Service) Snapshot(ctx context.Context, id string) (ObligationSnapshot, error) {
	for attempt := 0; attempt < snapshotAttempts; attempt++ {
		o, err := s.store.GetObligation(ctx, id)
		if err != nil {
			return ObligationSnapshot{}, err
		}
		settlements, err := s.store.ListSettlements(ctx, id)
		if err != nil {
			return ObligationSnapshot{}, err
		}
		if domain.SumSettlements(settlements) != o.SettledMinor {
			continue
		}
		return ObligationSnapshot{
			Obligation:   o,
			Settlements:  settlements,
			Counterparty: s.counterpartyInfo(ctx, o.CounterpartyRef),
		}, nil
	}
	return ObligationSnapshot{}, fmt.Errorf("snapshot obligation %s: %w", id, domain.ErrVersionConflict)
}

// Statistics возвращает количество и суммы по статусам.
func (s *Service) Statistics(ctx context.Context, filter domain.StatisticsFilter) (domain.LedgerStatistics, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return domain.LedgerStatistics{}, domain.ErrKindInvalid
	}
	if rangeInverted(filter.CreatedFrom, filter.CreatedTo) {
		return domain.LedgerStatistics{}, domain.ErrReportRangeInvalid
	}

	var stats domain.LedgerStatistics
	err := s.store.ReportSnapshot(ctx, func(view domain.ReportView) error {
		var err error
		stats, err = view.Statistics(ctx, filter)
		return err
	})
	return stats, err
}

// Aging раскладывает остатки открытых обязательств по корзинам просрочки на момент asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (domain.AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.clock()
	}
	var report domain.AgingReport
	err := s.store.ReportSnapshot(ctx, func(view domain.ReportView) error {
		var err error
		report, err = view.Aging(ctx, asOf.UTC())
		return err
	})
	return report, err
}

// RevenueByPeriod суммирует погашения по месяцам или дням в полуинтервале [From, To).
func (s *Service) RevenueByPeriod(ctx context.Context, query domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	switch query.Granularity {
	case "":
		query.Granularity = domain.PeriodMonth
	case domain.PeriodMonth, domain.PeriodDay:
	default:
		return nil, domain.ErrGranularityInvalid
	}
	if rangeInverted(query.From, query.To) {
		return nil, domain.ErrReportRangeInvalid
	}

	var points []domain.RevenuePoint
	err := s.store.ReportSnapshot(ctx, func(view domain.ReportView) error {
		var err error
		points, err = view.Revenue(ctx, query)
		return err
	})
	return points, err
}

// AccountStandings возвращает положение всех счетов с именами владельцев.
func (s *Service) AccountStandings(ctx context.Context) ([]domain.AccountStanding, error) {
	var standings []domain.AccountStanding
	err := s.store.ReportSnapshot(ctx, func(view domain.ReportView) error {
		var err error
		standings, err = view.AccountStandings(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.enrichStandings(ctx, standings)
	return standings, nil
}

// Overview собирает основные отчёты в одном снимке хранилища.
func (s *Service) Overview(ctx context.Context, asOf time.Time) (Overview, error) {
	if asOf.IsZero() {
		asOf = s.clock()
	}
	var overview Overview
	err := s.store.ReportSnapshot(ctx, func(view domain.ReportView) error {
		var err error
		if overview.Statistics, err = view.Statistics(ctx, domain.StatisticsFilter{}); err != nil {
			return err
		}
		if overview.Aging, err = view.Aging(ctx, asOf.UTC()); err != nil {
			return err
		}
		overview.Standings, err = view.AccountStandings(ctx)
		return err
	})
	if err != nil {
		return Overview{}, err
	}
	s.enrichStandings(ctx, overview.Standings)
	return overview, nil
}

func (s *Service) enrichStandings(ctx context.Context, standings []domain.AccountStanding) {
	if s.directory == nil {
		return
	}
	for i := range standings {
		standings[i].DisplayName = s.displayName(ctx, standings[i].HolderRef)
	}
}

func (s *Service) counterpartyInfo(ctx context.Context, ref string) domain.CounterpartyInfo {
	info := domain.CounterpartyInfo{Ref: ref}
	if s.directory == nil {
		return info
	}
	found, err := s.directory.DisplayInfo(ctx, ref)
	if err != nil {
		s.logger.WithError(err).WithField("counterparty_ref", ref).Warn("counterparty display info unavailable")
		return info
	}
	return found
}

func rangeInverted(from, to time.Time) bool {
	return !from.IsZero() && !to.IsZero() && !from.Before(to)
}
