// Package derive computes the fields of a balance observation that depend on
// its chronological predecessor. Every function is pure.
//
// A derived field depends only on the observation's own date, amount and
// topup and on its predecessor's date and amount. Changing any of those on a
// node therefore invalidates the node itself and its successor, and nothing
// further down the chain.
package derive

import (
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// Precision is the number of decimal places kept by divisions.
const Precision int32 = 16

var daysPerYear = decimal.NewFromInt(365)

// InterestIncrease returns the balance growth not attributable to the topup
// made at this observation.
func InterestIncrease(b *model.Balance) decimal.Decimal {
	return b.Amount.Sub(b.Topup)
}

// DaysSince returns the whole days between pred and b, or nil without a
// predecessor.
func DaysSince(b, pred *model.Balance) *int {
	if pred == nil {
		return nil
	}
	days := b.Date.DaysSince(pred.Date)
	return &days
}

// APR returns the simple annualized rate implied by growth since pred. It is
// undefined without a predecessor, for a zero day gap, and for a zero
// predecessor balance.
func APR(b, pred *model.Balance) decimal.NullDecimal {
	if pred == nil || pred.Amount.IsZero() {
		return decimal.NullDecimal{}
	}
	days := b.Date.DaysSince(pred.Date)
	if days == 0 {
		return decimal.NullDecimal{}
	}

	growth := InterestIncrease(b).DivRound(pred.Amount, Precision).Sub(decimal.NewFromInt(1))
	// Multiplying before dividing by the day gap keeps 1000 -> 1100 over a
	// year at exactly 0.1.
	apr := growth.Mul(daysPerYear).DivRound(decimal.NewFromInt(int64(days)), Precision)
	return decimal.NewNullDecimal(apr)
}

// Derive computes both derived fields of b against pred.
func Derive(b, pred *model.Balance) model.Derived {
	return model.Derived{
		APR:                  APR(b, pred),
		DaysSincePredecessor: DaysSince(b, pred),
	}
}

// Affects reports whether moving a node from before to after changes any
// input of a derived field.
func Affects(before, after *model.Balance) bool {
	return before.Date != after.Date ||
		!before.Amount.Equal(after.Amount) ||
		!before.Topup.Equal(after.Topup)
}
