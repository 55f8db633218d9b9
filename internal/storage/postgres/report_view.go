package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// reportView выполняет запросы внутри транзакции снимка ReportSnapshot.
type reportView struct {
	q queryer
}

func (v *reportView) Statistics(ctx context.Context, filter domain.StatisticsFilter) (domain.LedgerStatistics, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Kind != "" {
		add("kind = ?", string(filter.Kind))
	}
	if filter.CounterpartyRef != "" {
		add("counterparty_ref = ?", filter.CounterpartyRef)
	}
	if filter.Currency != "" {
		add("currency = ?", domain.NormalizeCurrency(filter.Currency))
	}
	if !filter.CreatedFrom.IsZero() {
		add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		add("created_at < ?", filter.CreatedTo.UTC())
	}

	query := `
		SELECT currency, status, COUNT(*), COALESCE(SUM(total_minor), 0), COALESCE(SUM(settled_minor), 0),
		       COALESCE(SUM(GREATEST(total_minor - settled_minor, 0)), 0)
		FROM obligations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY currency, status"

	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.LedgerStatistics{}, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var stats domain.LedgerStatistics
	for rows.Next() {
		var (
			line     domain.StatusTotals
			currency string
			status   string
		)
		if err := rows.Scan(&currency, &status, &line.Count, &line.TotalMinor, &line.SettledMinor, &line.RemainingMinor); err != nil {
			return domain.LedgerStatistics{}, fmt.Errorf("scan statistics row: %w", err)
		}
		line.Status = domain.ObligationStatus(status)
		stats.AddTotals(currency, line)
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerStatistics{}, fmt.Errorf("iterate statistics rows: %w", err)
	}
	return stats, nil
}

// Aging читает открытые обязательства и раскладывает их по корзинам
// той же функцией, что и in-memory хранилище.
func (v *reportView) Aging(ctx context.Context, asOf time.Time) (domain.AgingReport, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT currency, status, due_date, total_minor, settled_minor
		FROM obligations
		WHERE status IN ('pending', 'partial', 'overdue')
	`)
	if err != nil {
		return domain.AgingReport{}, fmt.Errorf("query aging: %w", err)
	}
	defer rows.Close()

	report := domain.NewAgingReport(asOf)
	for rows.Next() {
		var (
			o       domain.Obligation
			status  string
			dueDate sql.NullTime
		)
		if err := rows.Scan(&o.Currency, &status, &dueDate, &o.TotalMinor, &o.SettledMinor); err != nil {
			return domain.AgingReport{}, fmt.Errorf("scan aging row: %w", err)
		}
		o.Status = domain.ObligationStatus(status)
		o.DueDate = timePtr(dueDate)
		report.Add(o)
	}
	if err := rows.Err(); err != nil {
		return domain.AgingReport{}, fmt.Errorf("iterate aging rows: %w", err)
	}
	return report, nil
}

func (v *reportView) Revenue(ctx context.Context, query domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	layout := "YYYY-MM"
	if query.Granularity == domain.PeriodDay {
		layout = "YYYY-MM-DD"
	}

	var (
		where = []string{"TRUE"}
		args  = []any{layout}
	)
	if currency := domain.NormalizeCurrency(query.Currency); currency != "" {
		args = append(args, currency)
		where = append(where, "o.currency = $"+strconv.Itoa(len(args)))
	}
	if !query.From.IsZero() {
		args = append(args, query.From.UTC())
		where = append(where, "s.settled_at >= $"+strconv.Itoa(len(args)))
	}
	if !query.To.IsZero() {
		args = append(args, query.To.UTC())
		where = append(where, "s.settled_at < $"+strconv.Itoa(len(args)))
	}

	rows, err := v.q.QueryContext(ctx, `
		SELECT to_char(s.settled_at AT TIME ZONE 'UTC', $1) AS period,
		       COUNT(*), COALESCE(SUM(s.amount_minor), 0)
		FROM settlements s
		JOIN obligations o ON o.id = s.obligation_id
		WHERE `+strings.Join(where, " AND ")+`
		GROUP BY period
		ORDER BY period
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query revenue: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RevenuePoint, 0)
	for rows.Next() {
		var point domain.RevenuePoint
		if err := rows.Scan(&point.Period, &point.SettlementsCount, &point.AmountMinor); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		result = append(result, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue rows: %w", err)
	}
	return result, nil
}

func (v *reportView) AccountStandings(ctx context.Context) ([]domain.AccountStanding, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM credit_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query account standings: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AccountStanding, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		result = append(result, acc.Standing())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return result, nil
}

var _ domain.ReportView = (*reportView)(nil)
