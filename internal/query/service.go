package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/aggregate"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/engine"
	"github.com/Veraticus/savings-tracker/internal/model"
)

// Source provides consistent copies of account chains.
type Source interface {
	Snapshot(ctx context.Context, accountID int64) (engine.Snapshot, error)
	Snapshots(ctx context.Context) ([]engine.Snapshot, error)
}

// Service answers search and query calls from engine snapshots.
type Service struct {
	source Source
	logger *slog.Logger
}

// NewService creates a query service over source.
func NewService(source Source) *Service {
	return &Service{
		source: source,
		logger: slog.Default().With("component", "query"),
	}
}

// Search returns the supported target names.
func (s *Service) Search() []string {
	out := make([]string, len(Targets))
	copy(out, Targets)
	return out
}

// Query answers every target in order. A target that fails is replaced by a
// TargetError and does not abort the others.
func (s *Service) Query(ctx context.Context, req Request) ([]any, error) {
	if req.Targets == nil {
		return nil, fmt.Errorf("%w: missing targets", common.ErrMalformedRequest)
	}

	results := make([]any, 0, len(req.Targets))
	for _, target := range req.Targets {
		answers, err := s.answer(ctx, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("Query target failed", "target", target.Target, "error", err)
			results = append(results, TargetError{Target: target.Target, Error: err.Error()})
			continue
		}
		results = append(results, answers...)
	}
	return results, nil
}

func (s *Service) answer(ctx context.Context, target Target) ([]any, error) {
	switch target.Target {
	case TargetAccounts:
		table, err := s.AccountsTable(ctx, target.Data)
		if err != nil {
			return nil, err
		}
		return []any{table}, nil
	case TargetBalances, TargetAPRs, TargetReturns:
		series, err := s.TimeSeries(ctx, target.Target)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(series))
		for i := range series {
			out[i] = series[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownTarget, target.Target)
	}
}

// AccountsTable returns the accounts table, limited to one account when data
// names a primary key.
func (s *Service) AccountsTable(ctx context.Context, data *TargetData) (Table, error) {
	id, limited, err := data.AccountID()
	if err != nil {
		return Table{}, err
	}

	var snaps []engine.Snapshot
	if limited {
		snap, err := s.source.Snapshot(ctx, id)
		if err != nil {
			return Table{}, err
		}
		snaps = []engine.Snapshot{snap}
	} else {
		all, err := s.source.Snapshots(ctx)
		if err != nil {
			return Table{}, err
		}
		snaps = all
	}

	table := Table{
		Type:    "table",
		Columns: AccountColumns,
		Rows:    make([][]any, 0, len(snaps)),
	}
	for i := range snaps {
		table.Rows = append(table.Rows, AccountRow(&snaps[i].Account, aggregate.Summarize(&snaps[i].Account, snaps[i].Balances)))
	}
	return table, nil
}

// AccountRow renders one account in AccountColumns order.
func AccountRow(account *model.Account, summary aggregate.Summary) []any {
	return []any{
		Number(summary.StartingBalance),
		Number(summary.CurrentBalance),
		Number(summary.TotalTopup),
		Number(summary.AverageAPR),
		Number(summary.Returns),
		Bool(summary.BalanceOK),
		account.DisplayName(),
		account.BankName,
		account.AccountName,
		account.AccountNumber,
		account.SortCode,
		Number(decimal.NewNullDecimal(account.PredictedInterest)),
		Number(account.InterestMin),
		Number(account.InterestMax),
		account.InstantWithdrawal,
	}
}

// TimeSeries returns one series per account for a series target.
func (s *Service) TimeSeries(ctx context.Context, target string) ([]Series, error) {
	var pick func([]model.Balance) []aggregate.Point
	switch target {
	case TargetBalances:
		pick = aggregate.BalanceSeries
	case TargetAPRs:
		pick = aggregate.APRSeries
	case TargetReturns:
		pick = aggregate.ReturnsSeries
	default:
		return nil, fmt.Errorf("%w: %q is not a series", common.ErrUnknownTarget, target)
	}

	snaps, err := s.source.Snapshots(ctx)
	if err != nil {
		return nil, err
	}

	series := make([]Series, 0, len(snaps))
	for i := range snaps {
		points := pick(snaps[i].Balances)
		datapoints := make([]Datapoint, len(points))
		for j, p := range points {
			datapoints[j] = Datapoint{Number(p.Value), EpochMillis(p.Balance.Date)}
		}
		series = append(series, Series{
			Target:     snaps[i].Account.DisplayName(),
			Datapoints: datapoints,
		})
	}
	return series, nil
}

// Number converts an optional decimal to a JSON number, or nil when undefined.
func Number(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return json.Number(d.Decimal.String())
}

// Bool converts an optional bool to a JSON value, or nil when undefined.
func Bool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// EpochMillis returns midnight UTC of date in milliseconds since the epoch.
func EpochMillis(date civil.Date) int64 {
	return date.In(time.UTC).UnixMilli()
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, common.ErrMalformedRequest)
}
