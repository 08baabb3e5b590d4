// Package importer places balance observations from external sources into
// account chains.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// Ledger is the part of the engine an import needs.
type Ledger interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	HasObservationOn(ctx context.Context, accountID int64, date civil.Date) (bool, error)
	AddBalance(ctx context.Context, accountID int64, date civil.Date, amount, topup decimal.Decimal) (model.Balance, error)
}

// Result summarizes one import run.
type Result struct {
	Added      []model.Balance
	Unmatched  []string // External IDs with no linked account
	Duplicates int
	Skipped    int // Observations found while dry-running
}

// Importer matches observations to accounts and adds them as balances.
type Importer struct {
	ledger Ledger
	logger *slog.Logger
	dryRun bool
}

// New creates an importer. With dryRun set nothing is written.
func New(ledger Ledger, dryRun bool) *Importer {
	return &Importer{
		ledger: ledger,
		dryRun: dryRun,
		logger: slog.Default().With("component", "importer"),
	}
}

type dayKey struct {
	date      civil.Date
	accountID int64
}

// Import adds every observation whose external ID matches an account's
// ExternalID (or, failing that, its AccountNumber) and whose account has no
// balance on that date yet. Imported balances carry no topup.
func (i *Importer) Import(ctx context.Context, observations []model.Observation) (Result, error) {
	var result Result

	accounts, err := i.ledger.ListAccounts(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list accounts: %w", err)
	}
	index := indexAccounts(accounts)

	unmatched := make(map[string]bool)
	seen := make(map[dayKey]bool)

	for _, obs := range observations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		account, ok := index[obs.ExternalID]
		if !ok {
			if !unmatched[obs.ExternalID] {
				unmatched[obs.ExternalID] = true
				i.logger.Warn("No account linked to external ID",
					"external_id", obs.ExternalID,
					"source", obs.Source)
			}
			continue
		}

		key := dayKey{accountID: account.ID, date: obs.Date}
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true

		exists, err := i.ledger.HasObservationOn(ctx, account.ID, obs.Date)
		if err != nil {
			return result, fmt.Errorf("failed to check account %d on %s: %w", account.ID, obs.Date, err)
		}
		if exists {
			result.Duplicates++
			continue
		}

		if i.dryRun {
			result.Skipped++
			i.logger.Info("Would add balance",
				"account", account.DisplayName(),
				"date", obs.Date.String(),
				"amount", obs.Amount.String())
			continue
		}

		balance, err := i.ledger.AddBalance(ctx, account.ID, obs.Date, obs.Amount, decimal.Zero)
		if err != nil {
			return result, fmt.Errorf("failed to add balance for %s on %s: %w", account.DisplayName(), obs.Date, err)
		}
		result.Added = append(result.Added, balance)
		i.logger.Debug("Added balance",
			"account", account.DisplayName(),
			"balance_id", balance.ID,
			"date", obs.Date.String())
	}

	for id := range unmatched {
		result.Unmatched = append(result.Unmatched, id)
	}
	sort.Strings(result.Unmatched)

	return result, nil
}

// indexAccounts maps external identifiers to accounts. An explicit ExternalID
// wins over an AccountNumber that happens to collide with it.
func indexAccounts(accounts []model.Account) map[string]model.Account {
	index := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		if a.AccountNumber != "" {
			index[a.AccountNumber] = a
		}
	}
	for _, a := range accounts {
		if a.ExternalID != "" {
			index[a.ExternalID] = a
		}
	}
	return index
}
