package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberRunPattern matches a digit followed by any run of digits, separators
// and whitespace (including non-breaking space), e.g. "1 234,56" or "12.99".
var numberRunPattern = regexp.MustCompile(`\d[\d\s\x{00A0}\x{202F}.,]*`)

// ParseLocaleNumber converts locale-ambiguous numeric text into a decimal.
//
// Everything except digits, commas and periods is dropped. When both
// separators are present the comma is a thousands separator; a lone comma is
// the decimal point; a lone period is left alone. The policy is fixed and does
// not depend on the runtime locale.
func ParseLocaleNumber(raw string) (decimal.Decimal, error) {
	cleaned := cleanNumberString(raw)
	if !strings.ContainsAny(cleaned, "0123456789") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumberFormat, raw)
	}

	hasComma := strings.Contains(cleaned, ",")
	hasPeriod := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasPeriod:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumberFormat, raw)
	}
	return value, nil
}

// cleanNumberString keeps only digits, commas and periods.
func cleanNumberString(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FirstNumber returns the first digit run in text, parsed.
func FirstNumber(text string) (decimal.Decimal, bool) {
	run := numberRunPattern.FindString(text)
	if run == "" {
		return decimal.Zero, false
	}
	value, err := ParseLocaleNumber(run)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// AllNumbers parses every digit run in text, skipping runs that do not parse.
func AllNumbers(text string) []decimal.Decimal {
	var values []decimal.Decimal
	for _, run := range numberRunPattern.FindAllString(text, -1) {
		value, err := ParseLocaleNumber(run)
		if err != nil {
			continue
		}
		values = append(values, value)
	}
	return values
}

// FormatPrice renders a price with no fractional digits when it is whole and
// two otherwise.
func FormatPrice(price decimal.Decimal) string {
	if price.Equal(price.Truncate(0)) {
		return price.StringFixed(0)
	}
	return price.StringFixed(2)
}
