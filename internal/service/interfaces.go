// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/savings-tracker/internal/model"
)

// AccountStore persists account metadata.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	// DeleteAccount removes the account and every balance in its chain.
	DeleteAccount(ctx context.Context, id int64) error
}

// ChainStore is the narrow persistence contract used by the recompute engine.
type ChainStore interface {
	// LoadChain returns every balance of the account in chain order.
	LoadChain(ctx context.Context, accountID int64) ([]*model.Balance, error)
	// Persist applies one chain change atomically.
	Persist(ctx context.Context, change *model.ChainChange) error
	// LocateBalance returns the account that owns the balance.
	LocateBalance(ctx context.Context, balanceID string) (int64, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	AccountStore
	ChainStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// BalanceFetcher retrieves current balances from a remote source.
type BalanceFetcher interface {
	GetBalances(ctx context.Context) ([]model.Observation, error)
}

// TableWriter exports a header and rows to an external destination.
type TableWriter interface {
	WriteTable(ctx context.Context, header []string, rows [][]any) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
