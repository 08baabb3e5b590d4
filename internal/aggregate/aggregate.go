// Package aggregate summarizes an account's balance chain. Summaries are
// computed from the stored derived values on every read and never re-derive
// an APR.
package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/derive"
	"github.com/Veraticus/savings-tracker/internal/model"
)

// Summary holds the account-level figures. Invalid decimals and a nil
// BalanceOK mean the figure is undefined, which is distinct from zero.
type Summary struct {
	StartingBalance decimal.NullDecimal
	CurrentBalance  decimal.NullDecimal
	TotalTopup      decimal.NullDecimal
	AverageAPR      decimal.NullDecimal
	Returns         decimal.NullDecimal
	BalanceOK       *bool
	Observations    int
}

// Point is one value of a per-observation series.
type Point struct {
	Value   decimal.NullDecimal
	Balance *model.Balance
}

// Summarize computes the summary of an account from its chain, which must be
// in chronological order.
func Summarize(account *model.Account, balances []model.Balance) Summary {
	s := Summary{Observations: len(balances)}

	if len(balances) > 0 {
		first, last := &balances[0], &balances[len(balances)-1]
		s.StartingBalance = decimal.NewNullDecimal(first.Amount)
		s.CurrentBalance = decimal.NewNullDecimal(last.Amount)
		s.TotalTopup = decimal.NewNullDecimal(totalTopup(balances))
	}

	s.AverageAPR = AverageAPR(balances)
	s.Returns = Returns(balances)
	s.BalanceOK = BalanceOK(account, s.CurrentBalance)
	return s
}

// AverageAPR returns the day-weighted mean APR over observations with a
// defined APR, or undefined when there are none.
func AverageAPR(balances []model.Balance) decimal.NullDecimal {
	var weighted, days decimal.Decimal
	for i := range balances {
		b := &balances[i]
		if !b.APR.Valid || b.DaysSincePredecessor == nil {
			continue
		}
		d := decimal.NewFromInt(int64(*b.DaysSincePredecessor))
		weighted = weighted.Add(b.APR.Decimal.Mul(d))
		days = days.Add(d)
	}
	if days.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(weighted.DivRound(days, derive.Precision))
}

// Returns is the growth of the account not explained by money paid in: the
// current balance less the starting balance and every later topup. The first
// observation's topup is part of the starting balance and is not subtracted
// again. It is undefined with fewer than two observations.
func Returns(balances []model.Balance) decimal.NullDecimal {
	if len(balances) < 2 {
		return decimal.NullDecimal{}
	}
	first, last := &balances[0], &balances[len(balances)-1]
	paidIn := totalTopup(balances).Sub(first.Topup)
	return decimal.NewNullDecimal(last.Amount.Sub(first.Amount).Sub(paidIn))
}

// ReturnsSeries returns the cumulative returns at each observation.
func ReturnsSeries(balances []model.Balance) []Point {
	points := make([]Point, len(balances))
	paidIn := decimal.Zero
	for i := range balances {
		points[i] = Point{Balance: &balances[i]}
		if i == 0 {
			continue
		}
		paidIn = paidIn.Add(balances[i].Topup)
		points[i].Value = decimal.NewNullDecimal(balances[i].Amount.Sub(balances[0].Amount).Sub(paidIn))
	}
	return points
}

// APRSeries returns each observation's APR.
func APRSeries(balances []model.Balance) []Point {
	points := make([]Point, len(balances))
	for i := range balances {
		points[i] = Point{Balance: &balances[i], Value: balances[i].APR}
	}
	return points
}

// BalanceSeries returns each observation's amount.
func BalanceSeries(balances []model.Balance) []Point {
	points := make([]Point, len(balances))
	for i := range balances {
		points[i] = Point{Balance: &balances[i], Value: decimal.NewNullDecimal(balances[i].Amount)}
	}
	return points
}

// BalanceOK reports whether the current balance lies within the account's
// interest bounds. Without bounds it is always true; with bounds and no
// observations it is undefined.
func BalanceOK(account *model.Account, current decimal.NullDecimal) *bool {
	ok := true
	if !account.HasBounds() {
		return &ok
	}
	if !current.Valid {
		return nil
	}
	if account.InterestMin.Valid && current.Decimal.LessThan(account.InterestMin.Decimal) {
		ok = false
	}
	if account.InterestMax.Valid && current.Decimal.GreaterThan(account.InterestMax.Decimal) {
		ok = false
	}
	return &ok
}

func totalTopup(balances []model.Balance) decimal.Decimal {
	total := decimal.Zero
	for i := range balances {
		total = total.Add(balances[i].Topup)
	}
	return total
}
