package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func TestSequenceScheme_Format(t *testing.T) {
	at := time.Date(2026, 7, 4, 23, 0, 0, 0, time.UTC)

	cases := []struct {
		kind  domain.ObligationKind
		value int64
		want  string
	}{
		{kind: domain.ObligationKindInvoice, value: 1, want: "INV-2026-000001"},
		{kind: domain.ObligationKindInvoice, value: 999999, want: "INV-2026-999999"},
		{kind: domain.ObligationKindCustomerDebt, value: 42, want: "DBT-202607-00042"},
		{kind: domain.ObligationKindTraderCharge, value: 7, want: "TRD-202607-00007"},
	}

	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			scheme, err := domain.SchemeFor(tc.kind)
			if err != nil {
				t.Fatalf("scheme: %v", err)
			}
			got, err := scheme.Format(scheme.PeriodKey(at), tc.value)
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSequenceScheme_Exhausted(t *testing.T) {
	scheme, _ := domain.SchemeFor(domain.ObligationKindTraderCharge)
	if scheme.MaxValue() != 99999 {
		t.Fatalf("expected max 99999, got %d", scheme.MaxValue())
	}
	if _, err := scheme.Format("202601", 100000); !errors.Is(err, domain.ErrSequenceExhausted) {
		t.Fatalf("expected ErrSequenceExhausted, got %v", err)
	}
}

func TestSequenceScheme_PeriodKeyUsesUTC(t *testing.T) {
	scheme, _ := domain.SchemeFor(domain.ObligationKindCustomerDebt)
	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2026, 1, 1, 1, 0, 0, 0, loc)

	if got := scheme.PeriodKey(at); got != "202512" {
		t.Fatalf("expected 202512, got %s", got)
	}
}

func TestSchemeFor_UnknownKind(t *testing.T) {
	if _, err := domain.SchemeFor("loan"); !errors.Is(err, domain.ErrKindInvalid) {
		t.Fatalf("expected ErrKindInvalid, got %v", err)
	}
}

func TestSequenceScheme_ValidPeriodKey(t *testing.T) {
	invoice, _ := domain.SchemeFor(domain.ObligationKindInvoice)
	debt, _ := domain.SchemeFor(domain.ObligationKindCustomerDebt)

	cases := []struct {
		scheme domain.SequenceScheme
		key    string
		want   bool
	}{
		{invoice, "2026", true},
		{invoice, "202604", false},
		{invoice, "20x6", false},
		{debt, "202604", true},
		{debt, "202613", false},
		{debt, "2026", false},
	}
	for _, tc := range cases {
		if got := tc.scheme.ValidPeriodKey(tc.key); got != tc.want {
			t.Errorf("%s ValidPeriodKey(%q) = %v, want %v", tc.scheme.Prefix, tc.key, got, tc.want)
		}
	}
}
