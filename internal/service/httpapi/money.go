package httpapi

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// minorExponents — валюты, у которых число знаков после запятой отличается от двух.
var minorExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

var maxMinor = decimal.NewFromInt(domain.MaxAmountMinor)

func currencyExponent(currency string) int32 {
	if exp, ok := minorExponents[domain.NormalizeCurrency(currency)]; ok {
		return exp
	}
	return 2
}

// ParseAmount переводит сумму в основных единицах ("12.50") в минорные.
// Лишние знаки после запятой не округляются, а отклоняются.
func ParseAmount(raw, currency string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("amount is empty: %w", domain.ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number: %w", raw, domain.ErrInvalidAmount)
	}

	exp := currencyExponent(currency)
	minor := amount.Shift(exp)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places for %s: %w", raw, exp, currency, domain.ErrInvalidAmount)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %q is out of range: %w", raw, domain.ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// FormatAmount переводит минорные единицы в строку в основных единицах.
func FormatAmount(minor int64, currency string) string {
	exp := currencyExponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}
