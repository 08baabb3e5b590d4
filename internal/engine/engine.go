// Package engine keeps every account's balance chain consistent. Each mutation
// changes the chain structurally, recomputes the derived fields it
// invalidated and persists the result while holding the account's write lock,
// so no reader ever observes a stale APR or day gap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/chain"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

// Engine owns the in-memory chains of all accounts.
type Engine struct {
	store   Store
	logger  *slog.Logger
	ledgers map[int64]*ledger
	newID   func() string
	config  Config
	mu      sync.Mutex
}

// Config holds configuration options for the engine.
type Config struct {
	TieBreak chain.TieBreak
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TieBreak: chain.TieBreakSequence,
	}
}

// BalanceEdit lists the caller-settable fields to change. Nil fields are kept.
type BalanceEdit struct {
	Amount *decimal.Decimal
	Topup  *decimal.Decimal
	Date   *civil.Date
}

// Snapshot is a consistent copy of one account and its chain.
type Snapshot struct {
	Account  model.Account
	Balances []model.Balance
}

// ledger is one account's chain and the lock that serializes its mutations.
type ledger struct {
	chain   *chain.Chain
	account model.Account
	id      int64
	mu      sync.RWMutex
	loaded  bool
	deleted bool
	// evicted is set when the first load failed; the ledger has left the
	// registry and holders must fetch a fresh one.
	evicted bool
}

// New creates an engine with the default configuration.
func New(store Store) *Engine {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(store Store, config Config) *Engine {
	return &Engine{
		store:   store,
		config:  config,
		logger:  slog.Default().With("component", "engine"),
		ledgers: make(map[int64]*ledger),
		newID:   uuid.NewString,
	}
}

// CreateAccount stores a new account with an empty chain.
func (e *Engine) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	l := &ledger{
		id:      account.ID,
		account: *account,
		chain:   chain.New(account.ID, e.config.TieBreak),
		loaded:  true,
	}

	e.mu.Lock()
	e.ledgers[account.ID] = l
	e.mu.Unlock()

	e.logger.Info("Created account", "account_id", account.ID, "name", account.DisplayName())
	return nil
}

// Account returns the current metadata of an account.
func (e *Engine) Account(ctx context.Context, accountID int64) (model.Account, error) {
	var account model.Account
	err := e.withRead(ctx, accountID, func(l *ledger) error {
		account = l.account
		return nil
	})
	return account, err
}

// ListAccounts returns every account ordered by ID.
func (e *Engine) ListAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// UpdateAccount replaces an account's metadata. Bounds and names do not feed
// derived fields, so the chain is left untouched.
func (e *Engine) UpdateAccount(ctx context.Context, account *model.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	return e.withWrite(ctx, account.ID, func(l *ledger) error {
		if err := e.store.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		l.account = *account
		return nil
	})
}

// DeleteAccount removes an account and its whole chain.
func (e *Engine) DeleteAccount(ctx context.Context, accountID int64) error {
	return e.withWrite(ctx, accountID, func(l *ledger) error {
		if err := e.store.DeleteAccount(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		l.deleted = true
		e.forget(l)
		e.logger.Info("Deleted account", "account_id", accountID, "balances", l.chain.Len())
		return nil
	})
}

// AddBalance inserts a new observation anywhere in the account's chain.
func (e *Engine) AddBalance(ctx context.Context, accountID int64, date civil.Date, amount, topup decimal.Decimal) (model.Balance, error) {
	var added model.Balance
	err := e.withWrite(ctx, accountID, func(l *ledger) error {
		b := &model.Balance{
			ID:        e.newID(),
			AccountID: accountID,
			Date:      date,
			Amount:    amount,
			Topup:     topup,
		}
		change, err := l.chain.Insert(b)
		if err != nil {
			return err
		}
		if err := e.apply(ctx, l, change); err != nil {
			return err
		}
		added = *b
		return nil
	})
	return added, err
}

// UpdateBalance edits an observation, moving it within the chain if its date
// changes.
func (e *Engine) UpdateBalance(ctx context.Context, accountID int64, balanceID string, edit BalanceEdit) (model.Balance, error) {
	var updated model.Balance
	err := e.withWrite(ctx, accountID, func(l *ledger) error {
		b, ok := l.chain.Get(balanceID)
		if !ok {
			return fmt.Errorf("%w: balance %s in account %d", common.ErrNotFound, balanceID, accountID)
		}

		amount, topup, date := b.Amount, b.Topup, b.Date
		if edit.Amount != nil {
			amount = *edit.Amount
		}
		if edit.Topup != nil {
			topup = *edit.Topup
		}
		if edit.Date != nil {
			date = *edit.Date
		}

		change, err := l.chain.Update(balanceID, amount, topup, date)
		if err != nil {
			return err
		}
		if err := e.apply(ctx, l, change); err != nil {
			return err
		}
		updated = *b
		return nil
	})
	return updated, err
}

// DeleteBalance removes an observation and re-links its successor to its
// former predecessor.
func (e *Engine) DeleteBalance(ctx context.Context, accountID int64, balanceID string) error {
	return e.withWrite(ctx, accountID, func(l *ledger) error {
		if _, ok := l.chain.Get(balanceID); !ok {
			return fmt.Errorf("%w: balance %s in account %d", common.ErrNotFound, balanceID, accountID)
		}
		change, err := l.chain.Delete(balanceID)
		if err != nil {
			return err
		}
		return e.apply(ctx, l, change)
	})
}

// LocateBalance returns the account that owns a balance.
func (e *Engine) LocateBalance(ctx context.Context, balanceID string) (int64, error) {
	accountID, err := e.store.LocateBalance(ctx, balanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to locate balance %s: %w", balanceID, err)
	}
	return accountID, nil
}

// Snapshot returns a consistent copy of an account and its chain.
func (e *Engine) Snapshot(ctx context.Context, accountID int64) (Snapshot, error) {
	var snap Snapshot
	err := e.withRead(ctx, accountID, func(l *ledger) error {
		snap = l.snapshot()
		return nil
	})
	return snap, err
}

// Snapshots returns a copy of every account, ordered by account ID. Accounts
// deleted while the snapshots are taken are skipped.
func (e *Engine) Snapshots(ctx context.Context) ([]Snapshot, error) {
	accounts, err := e.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(accounts))
	for _, account := range accounts {
		snap, err := e.Snapshot(ctx, account.ID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// HasObservationOn reports whether the account already has a balance on date.
func (e *Engine) HasObservationOn(ctx context.Context, accountID int64, date civil.Date) (bool, error) {
	var found bool
	err := e.withRead(ctx, accountID, func(l *ledger) error {
		found = len(l.chain.OnDate(date)) > 0
		return nil
	})
	return found, err
}

// Recompute reloads every chain from storage, re-derives it and persists any
// stale values found. It returns the number of balances repaired.
func (e *Engine) Recompute(ctx context.Context) (int, error) {
	accounts, err := e.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		l := e.lockLedger(account.ID)
		var (
			repaired int
			err      error
		)
		if !l.deleted {
			repaired, err = e.load(ctx, l)
		}
		l.mu.Unlock()

		total += repaired
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return total, err
		}
	}

	e.logger.Info("Recomputed all chains", "accounts", len(accounts), "repaired", total)
	return total, nil
}

// apply recomputes what change invalidated and persists the result. On
// failure both the derived values and the structural change are reverted.
func (e *Engine) apply(ctx context.Context, l *ledger, change chain.Change) error {
	result := Recompute(l.chain, change)

	if err := e.store.Persist(ctx, chainChange(l.id, change, result.Updates)); err != nil {
		Rollback(result.Updates)
		l.chain.Revert(change)
		return fmt.Errorf("failed to persist %s balance: %w", change.Kind, err)
	}

	e.logger.Debug("Applied chain change",
		"account_id", l.id,
		"balance_id", change.Node.ID,
		"kind", change.Kind.String(),
		"recomputed", len(result.Recomputed),
		"updated", len(result.Updates))
	return nil
}

// chainChange collects everything a mutation wrote.
func chainChange(accountID int64, change chain.Change, updates []Update) *model.ChainChange {
	cc := &model.ChainChange{AccountID: accountID}
	switch change.Kind {
	case chain.Inserted:
		cc.Created = change.Node
	case chain.Deleted:
		cc.Deleted = change.Node
	case chain.Updated:
		cc.Updated = append(cc.Updated, change.Node)
	}
	for _, u := range updates {
		if u.Node != change.Node {
			cc.Updated = append(cc.Updated, u.Node)
		}
	}
	return cc
}

// withWrite runs fn holding the account's write lock.
func (e *Engine) withWrite(ctx context.Context, accountID int64, fn func(*ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if accountID <= 0 {
		return fmt.Errorf("%w: account %d", common.ErrNotFound, accountID)
	}

	l := e.lockLedger(accountID)
	defer l.mu.Unlock()

	if err := e.ensureLoaded(ctx, l); err != nil {
		return err
	}
	return fn(l)
}

// withRead runs fn holding the account's read lock.
func (e *Engine) withRead(ctx context.Context, accountID int64, fn func(*ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if accountID <= 0 {
		return fmt.Errorf("%w: account %d", common.ErrNotFound, accountID)
	}

	for {
		l := e.ledger(accountID)

		l.mu.RLock()
		if l.evicted {
			l.mu.RUnlock()
			continue
		}
		if !l.loaded && !l.deleted {
			l.mu.RUnlock()

			l.mu.Lock()
			if l.evicted {
				l.mu.Unlock()
				continue
			}
			err := e.ensureLoaded(ctx, l)
			l.mu.Unlock()
			if err != nil {
				return err
			}

			l.mu.RLock()
		}

		err := e.readLedger(l, fn)
		l.mu.RUnlock()
		return err
	}
}

// readLedger must be called with the read lock held.
func (e *Engine) readLedger(l *ledger, fn func(*ledger) error) error {
	if l.deleted {
		return fmt.Errorf("%w: account %d", common.ErrNotFound, l.id)
	}
	return fn(l)
}

// lockLedger returns the account's registered ledger with its write lock held.
func (e *Engine) lockLedger(accountID int64) *ledger {
	for {
		l := e.ledger(accountID)
		l.mu.Lock()
		if !l.evicted {
			return l
		}
		l.mu.Unlock()
	}
}

// ledger returns the registered ledger of the account, creating an unloaded
// one on first use.
func (e *Engine) ledger(accountID int64) *ledger {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.ledgers[accountID]
	if !ok {
		l = &ledger{id: accountID}
		e.ledgers[accountID] = l
	}
	return l
}

func (e *Engine) forget(l *ledger) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledgers[l.id] == l {
		delete(e.ledgers, l.id)
	}
}

// evict drops a ledger that never loaded so a failed read does not stay
// registered. It must be called with the write lock held.
func (e *Engine) evict(l *ledger) {
	if l.loaded {
		return
	}
	l.evicted = true
	e.forget(l)
}

// ensureLoaded must be called with the write lock held.
func (e *Engine) ensureLoaded(ctx context.Context, l *ledger) error {
	if l.deleted {
		return fmt.Errorf("%w: account %d", common.ErrNotFound, l.id)
	}
	if l.loaded {
		return nil
	}
	_, err := e.load(ctx, l)
	return err
}

// load reads the account and its chain from storage, repairs stale derived
// values and returns how many balances it repaired. It must be called with
// the write lock held.
func (e *Engine) load(ctx context.Context, l *ledger) (int, error) {
	account, err := e.store.GetAccount(ctx, l.id)
	if errors.Is(err, common.ErrNotFound) {
		l.deleted = true
		e.forget(l)
		return 0, fmt.Errorf("%w: account %d", common.ErrNotFound, l.id)
	}
	if err != nil {
		e.evict(l)
		return 0, fmt.Errorf("failed to load account %d: %w", l.id, err)
	}

	balances, err := e.store.LoadChain(ctx, l.id)
	if err != nil {
		e.evict(l)
		return 0, fmt.Errorf("failed to load chain for account %d: %w", l.id, err)
	}

	c, err := chain.Load(l.id, e.config.TieBreak, balances)
	if err != nil {
		e.evict(l)
		return 0, fmt.Errorf("failed to build chain for account %d: %w", l.id, err)
	}

	updates := RecomputeAll(c)
	if len(updates) > 0 {
		repair := &model.ChainChange{AccountID: l.id}
		for _, u := range updates {
			repair.Updated = append(repair.Updated, u.Node)
		}
		if err := e.store.Persist(ctx, repair); err != nil {
			e.evict(l)
			return 0, fmt.Errorf("failed to persist repaired chain for account %d: %w", l.id, err)
		}
		e.logger.Warn("Repaired stale derived values", "account_id", l.id, "balances", len(updates))
	}

	l.account = *account
	l.chain = c
	l.loaded = true
	return len(updates), nil
}

func (l *ledger) snapshot() Snapshot {
	nodes := l.chain.All()
	balances := make([]model.Balance, len(nodes))
	for i, b := range nodes {
		balances[i] = *b
	}
	return Snapshot{Account: l.account, Balances: balances}
}
