package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func TestAgingBucketFor(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		v := now.Add(-time.Duration(d) * 24 * time.Hour)
		return &v
	}
	future := now.Add(time.Hour)
	hoursAgo := func(h int) *time.Time {
		v := now.Add(-time.Duration(h) * time.Hour)
		return &v
	}

	cases := []struct {
		name string
		due  *time.Time
		want domain.AgingBucket
	}{
		{name: "no due date", due: nil, want: domain.AgingCurrent},
		{name: "not yet due", due: &future, want: domain.AgingCurrent},
		{name: "due right now", due: &now, want: domain.AgingCurrent},
		{name: "12 hours", due: hoursAgo(12), want: domain.Aging1To30},
		{name: "1 day", due: daysAgo(1), want: domain.Aging1To30},
		{name: "30 days", due: daysAgo(30), want: domain.Aging1To30},
		{name: "30 days and 1 hour", due: hoursAgo(30*24 + 1), want: domain.Aging31To60},
		{name: "31 days", due: daysAgo(31), want: domain.Aging31To60},
		{name: "75 days", due: daysAgo(75), want: domain.Aging61To90},
		{name: "91 days", due: daysAgo(91), want: domain.AgingOver90},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := domain.Obligation{DueDate: tc.due, Status: domain.ObligationStatusPending}
			if got := domain.AgingBucketFor(o, now); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDaysPastDue_CountsStartedDays(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	cases := []struct {
		due  *time.Time
		want int
	}{
		{due: nil, want: 0},
		{due: at(-time.Minute), want: 0},
		{due: at(time.Minute), want: 1},
		{due: at(24 * time.Hour), want: 1},
		{due: at(25 * time.Hour), want: 2},
	}
	for _, tc := range cases {
		o := domain.Obligation{DueDate: tc.due, Status: domain.ObligationStatusOverdue}
		if got := domain.DaysPastDue(o, now); got != tc.want {
			t.Fatalf("due %v: expected %d days, got %d", tc.due, tc.want, got)
		}
	}
}

func TestAgingReport_SkipsClosedObligations(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(-10 * 24 * time.Hour)

	report := domain.NewAgingReport(now)
	report.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusOverdue, DueDate: &due, TotalMinor: 100, SettledMinor: 25})
	report.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusSettled, DueDate: &due, TotalMinor: 100, SettledMinor: 100})
	report.Add(domain.Obligation{Currency: "EUR", Status: domain.ObligationStatusCancelled, DueDate: &due, TotalMinor: 50})
	report.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusPending, TotalMinor: 10})

	if len(report.ByCurrency) != 1 {
		t.Fatalf("expected only USD, got %+v", report.ByCurrency)
	}
	usd := report.Currency("usd")
	if len(usd.Lines) != len(domain.AgingBuckets) {
		t.Fatalf("expected %d lines, got %d", len(domain.AgingBuckets), len(usd.Lines))
	}
	if line := usd.Line(domain.AgingCurrent); line.Count != 1 || line.RemainingMinor != 10 {
		t.Fatalf("unexpected current line: %+v", line)
	}
	if line := usd.Line(domain.Aging1To30); line.Count != 1 || line.RemainingMinor != 75 {
		t.Fatalf("unexpected 1-30 line: %+v", line)
	}
}

func TestAgingReport_KeepsCurrenciesApart(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(-40 * 24 * time.Hour)

	report := domain.NewAgingReport(now)
	report.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusOverdue, DueDate: &due, TotalMinor: 1000})
	report.Add(domain.Obligation{Currency: "JPY", Status: domain.ObligationStatusOverdue, DueDate: &due, TotalMinor: 1000})
	report.Add(domain.Obligation{Currency: "EUR", Status: domain.ObligationStatusPending, TotalMinor: 300})

	if got := []string{report.ByCurrency[0].Currency, report.ByCurrency[1].Currency, report.ByCurrency[2].Currency}; got[0] != "EUR" || got[1] != "JPY" || got[2] != "USD" {
		t.Fatalf("expected currencies sorted, got %v", got)
	}
	for _, currency := range []string{"USD", "JPY"} {
		if line := report.Currency(currency).Line(domain.Aging31To60); line.Count != 1 || line.RemainingMinor != 1000 {
			t.Fatalf("%s: unexpected 31-60 line: %+v", currency, line)
		}
	}
	if line := report.Currency("GBP").Line(domain.AgingCurrent); line.Count != 0 {
		t.Fatalf("expected empty line for absent currency, got %+v", line)
	}
}

func TestLedgerStatistics_KeepsCurrenciesApart(t *testing.T) {
	var stats domain.LedgerStatistics
	stats.Add(domain.Obligation{Currency: "JPY", Status: domain.ObligationStatusPending, TotalMinor: 5000})
	stats.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusPartial, TotalMinor: 5000, SettledMinor: 1000})
	stats.Add(domain.Obligation{Currency: "USD", Status: domain.ObligationStatusSettled, TotalMinor: 200, SettledMinor: 200})

	if stats.Count != 3 || len(stats.ByCurrency) != 2 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
	jpy := stats.Currency("JPY")
	if jpy.Count != 1 || jpy.TotalMinor != 5000 || jpy.RemainingMinor != 5000 {
		t.Fatalf("unexpected JPY totals: %+v", jpy)
	}
	usd := stats.Currency("USD")
	if usd.Count != 2 || usd.TotalMinor != 5200 || usd.SettledMinor != 1200 || usd.RemainingMinor != 4000 {
		t.Fatalf("unexpected USD totals: %+v", usd)
	}
	if len(usd.ByStatus) != len(domain.ObligationStatuses) {
		t.Fatalf("expected a line per status, got %d", len(usd.ByStatus))
	}
	for _, line := range usd.ByStatus {
		if line.Status == domain.ObligationStatusPartial && line.RemainingMinor != 4000 {
			t.Fatalf("unexpected partial line: %+v", line)
		}
	}
}

func TestRevenueQuery_PeriodLabel(t *testing.T) {
	at := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	monthly := domain.RevenueQuery{Granularity: domain.PeriodMonth}
	if got := monthly.PeriodLabel(at); got != "2026-02" {
		t.Fatalf("expected 2026-02, got %s", got)
	}
	daily := domain.RevenueQuery{Granularity: domain.PeriodDay}
	if got := daily.PeriodLabel(at); got != "2026-02-14" {
		t.Fatalf("expected 2026-02-14, got %s", got)
	}

	window := domain.RevenueQuery{From: at, To: at.Add(time.Hour)}
	if !window.Contains(at) || window.Contains(at.Add(time.Hour)) {
		t.Fatal("expected half-open [From, To) window")
	}
}

func TestLedgerEvent_RoundTripThroughOutbox(t *testing.T) {
	o := makeObligation()
	settlement := domain.Settlement{ID: "stl-1", ObligationID: o.ID, AmountMinor: 60}
	_ = o.ApplySettlement(60, o.CreatedAt)

	msg, err := domain.NewLedgerEvent(domain.EventSettlementRecorded, o, &settlement, o.CreatedAt).OutboxMessage()
	if err != nil {
		t.Fatalf("outbox message: %v", err)
	}
	if msg.AggregateType != domain.AggregateObligation || msg.AggregateID != o.ID {
		t.Fatalf("unexpected aggregate: %+v", msg)
	}

	event, err := domain.ParseLedgerEvent(msg.Payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.RemainingMinor != 40 || event.SettlementID != "stl-1" || event.Status != domain.ObligationStatusPartial {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := domain.ParseLedgerEvent([]byte(`{"obligation_id":"x"}`)); err == nil {
		t.Fatal("expected error for event without type")
	}
}
