package cli

import (
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no display currency is configured.
const DefaultCurrency = "GBP"

// Placeholder is shown for undefined values.
const Placeholder = "—"

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// FormatMoney renders amount in currency, e.g. "£1,100.00". Amounts are
// rounded to the currency's minor unit. Unknown currencies fall back to the
// plain decimal followed by the code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(currency)
	if code == "" {
		code = DefaultCurrency
	}

	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}

	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// FormatOptionalMoney renders an optional amount or the placeholder.
func FormatOptionalMoney(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return Placeholder
	}
	return FormatMoney(amount.Decimal, currency)
}

// FormatPercent renders a rate such as 0.1 as "10.00%", or the placeholder
// when undefined.
func FormatPercent(rate decimal.NullDecimal) string {
	if !rate.Valid {
		return Placeholder
	}
	return rate.Decimal.Shift(2).StringFixed(2) + "%"
}

// FormatBool renders an optional flag as yes/no, or the placeholder.
func FormatBool(b *bool) string {
	if b == nil {
		return Placeholder
	}
	if *b {
		return SuccessStyle.Render("yes")
	}
	return ErrorStyle.Render("no")
}

// FormatDays renders an optional day gap.
func FormatDays(days *int) string {
	if days == nil {
		return Placeholder
	}
	return strconv.Itoa(*days)
}
