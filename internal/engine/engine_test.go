package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/savings-tracker/internal/chain"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
	"github.com/Veraticus/savings-tracker/internal/testutil"
)

var errStoreDown = errors.New("store down")

// recordingStore wraps a real store, records persisted changes and can be
// told to fail.
type recordingStore struct {
	Store
	failPersist    error
	failGetAccount error
	changes        []recordedChange
	mu             sync.Mutex
}

func (s *recordingStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	failure := s.failGetAccount
	s.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	return s.Store.GetAccount(ctx, id)
}

func (s *recordingStore) setFailGetAccount(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGetAccount = err
}

type recordedChange struct {
	created string
	deleted string
	updated []string
}

func (s *recordingStore) Persist(ctx context.Context, change *model.ChainChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPersist != nil {
		return s.failPersist
	}

	rec := recordedChange{}
	if change.Created != nil {
		rec.created = change.Created.ID
	}
	if change.Deleted != nil {
		rec.deleted = change.Deleted.ID
	}
	for _, b := range change.Updated {
		rec.updated = append(rec.updated, b.ID)
	}
	s.changes = append(s.changes, rec)
	return s.Store.Persist(ctx, change)
}

func (s *recordingStore) last() recordedChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes[len(s.changes)-1]
}

type fixture struct {
	engine  *Engine
	store   *recordingStore
	db      *testutil.TestDB
	account *model.Account
	ids     map[int]string
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := &recordingStore{Store: db.Storage}
	e := NewWithConfig(store, config)

	account := &model.Account{BankName: "Test Bank", AccountName: "Saver"}
	require.NoError(t, e.CreateAccount(context.Background(), account))

	return &fixture{engine: e, store: store, db: db, account: account, ids: make(map[int]string)}
}

// add inserts a balance on testutil.Day(day) and remembers its ID by day.
func (f *fixture) add(t *testing.T, day int, amount string) model.Balance {
	t.Helper()
	b, err := f.engine.AddBalance(context.Background(), f.account.ID, testutil.Day(day), testutil.Dec(t, amount), decimal.Zero)
	require.NoError(t, err)
	f.ids[day] = b.ID
	return b
}

func (f *fixture) balances(t *testing.T) []model.Balance {
	t.Helper()
	snap, err := f.engine.Snapshot(context.Background(), f.account.ID)
	require.NoError(t, err)
	return snap.Balances
}

func (f *fixture) byID(t *testing.T, id string) model.Balance {
	t.Helper()
	for _, b := range f.balances(t) {
		if b.ID == id {
			return b
		}
	}
	t.Fatalf("balance %s not found", id)
	return model.Balance{}
}

func assertAPR(t *testing.T, b model.Balance, want string) {
	t.Helper()
	require.True(t, b.APR.Valid, "APR of %s should be defined", b.ID)
	assert.Equal(t, want, b.APR.Decimal.Round(6).String(), "APR of %s", b.ID)
}

func assertDays(t *testing.T, b model.Balance, want int) {
	t.Helper()
	require.NotNil(t, b.DaysSincePredecessor, "days of %s should be defined", b.ID)
	assert.Equal(t, want, *b.DaysSincePredecessor, "days of %s", b.ID)
}

// assertConsistent reloads the chain and checks every stored value is current.
func assertConsistent(t *testing.T, f *fixture) {
	t.Helper()
	stored, err := f.db.Storage.LoadChain(context.Background(), f.account.ID)
	require.NoError(t, err)
	c, err := chain.Load(f.account.ID, chain.TieBreakSequence, stored)
	require.NoError(t, err)
	assert.Empty(t, RecomputeAll(c), "stored chain has stale derived values")
}

func TestEngine_YearOfGrowth(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	first := f.add(t, 0, "1000")
	second := f.add(t, 365, "1100")

	assert.False(t, first.APR.Valid)
	assert.Nil(t, first.DaysSincePredecessor)
	assertAPR(t, second, "0.1")
	assertDays(t, second, 365)
	assert.True(t, second.APR.Decimal.Equal(decimal.RequireFromString("0.1")))

	assertConsistent(t, f)
}

func TestEngine_InsertInMiddle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")
	f.add(t, 365, "1100")

	middle := f.add(t, 180, "1050")

	assertAPR(t, middle, "0.101389")
	assertDays(t, middle, 180)

	last := f.byID(t, f.ids[365])
	assertAPR(t, last, "0.093951")
	assertDays(t, last, 185)

	change := f.store.last()
	assert.Equal(t, middle.ID, change.created)
	assert.Equal(t, []string{f.ids[365]}, change.updated)

	assertConsistent(t, f)
}

func TestEngine_InsertNewEarliest(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 10, "1000")
	f.add(t, 20, "1010")
	f.add(t, 40, "1020")

	before := map[string]model.Balance{}
	for _, b := range f.balances(t) {
		before[b.ID] = b
	}

	head := f.add(t, 0, "990")
	assert.False(t, head.APR.Valid)

	change := f.store.last()
	assert.Equal(t, []string{f.ids[10]}, change.updated, "only the old first node is recomputed")

	for _, b := range f.balances(t) {
		switch b.ID {
		case head.ID:
		case f.ids[10]:
			assertDays(t, b, 10)
			assert.True(t, b.APR.Valid)
		default:
			prev := before[b.ID]
			assert.True(t, b.Derived().Equal(prev.Derived()), "balance %s changed", b.ID)
		}
	}
	assertConsistent(t, f)
}

func TestEngine_DeleteMiddle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")
	f.add(t, 180, "1050")
	f.add(t, 365, "1100")
	f.add(t, 400, "1110")
	untouched := f.byID(t, f.ids[400])

	require.NoError(t, f.engine.DeleteBalance(context.Background(), f.account.ID, f.ids[180]))

	balances := f.balances(t)
	require.Len(t, balances, 3)

	successor := f.byID(t, f.ids[365])
	assertAPR(t, successor, "0.1")
	assertDays(t, successor, 365)

	after := f.byID(t, f.ids[400])
	assert.True(t, after.Derived().Equal(untouched.Derived()))
	assert.Equal(t, f.ids[180], f.store.last().deleted)
	assert.Equal(t, []string{f.ids[365]}, f.store.last().updated)

	assertConsistent(t, f)
}

func TestEngine_DeleteFirstAndLast(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")
	f.add(t, 10, "1001")
	f.add(t, 20, "1002")

	ctx := context.Background()
	require.NoError(t, f.engine.DeleteBalance(ctx, f.account.ID, f.ids[0]))
	newFirst := f.byID(t, f.ids[10])
	assert.False(t, newFirst.APR.Valid)
	assert.Nil(t, newFirst.DaysSincePredecessor)

	require.NoError(t, f.engine.DeleteBalance(ctx, f.account.ID, f.ids[20]))
	assert.Len(t, f.balances(t), 1)
	assert.Empty(t, f.store.last().updated)

	assertConsistent(t, f)
}

func TestEngine_UpdateMovesNode(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")
	f.add(t, 100, "1010")
	f.add(t, 200, "1020")
	f.add(t, 300, "1030")

	newDate := testutil.Day(250)
	moved, err := f.engine.UpdateBalance(context.Background(), f.account.ID, f.ids[100], BalanceEdit{Date: &newDate})
	require.NoError(t, err)

	assertDays(t, moved, 50)
	assertDays(t, f.byID(t, f.ids[200]), 200)
	assertDays(t, f.byID(t, f.ids[300]), 50)

	change := f.store.last()
	assert.ElementsMatch(t, []string{f.ids[100], f.ids[200], f.ids[300]}, change.updated)

	assertConsistent(t, f)
}

func TestEngine_UpdateAmountRecomputesSuccessor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")
	f.add(t, 365, "1100")

	amount := testutil.Dec(t, "1050")
	topup := testutil.Dec(t, "0")
	updated, err := f.engine.UpdateBalance(context.Background(), f.account.ID, f.ids[0], BalanceEdit{Amount: &amount, Topup: &topup})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))

	assertAPR(t, f.byID(t, f.ids[365]), "0.047619")
	assertConsistent(t, f)
}

func TestEngine_TopupExcludedFromGrowth(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1000")

	b, err := f.engine.AddBalance(context.Background(), f.account.ID, testutil.Day(365), testutil.Dec(t, "1600"), testutil.Dec(t, "500"))
	require.NoError(t, err)
	assertAPR(t, b, "0.1")
}

func TestEngine_SameDateZeroGap(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	first := f.add(t, 5, "100")

	second, err := f.engine.AddBalance(context.Background(), f.account.ID, testutil.Day(5), testutil.Dec(t, "101"), decimal.Zero)
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
	assert.False(t, second.APR.Valid, "zero day gap leaves APR undefined")
	assertDays(t, second, 0)

	has, err := f.engine.HasObservationOn(context.Background(), f.account.ID, testutil.Day(5))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestEngine_RejectTieBreak(t *testing.T) {
	f := newFixture(t, Config{TieBreak: chain.TieBreakReject})
	f.add(t, 5, "100")

	_, err := f.engine.AddBalance(context.Background(), f.account.ID, testutil.Day(5), testutil.Dec(t, "101"), decimal.Zero)
	require.ErrorIs(t, err, common.ErrInvalidOrdering)
	assert.Len(t, f.balances(t), 1)
}

func TestEngine_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		mutate func(t *testing.T, f *fixture) error
		name   string
	}{
		{
			name: "insert",
			mutate: func(t *testing.T, f *fixture) error {
				_, err := f.engine.AddBalance(ctx, f.account.ID, testutil.Day(50), testutil.Dec(t, "5000"), decimal.Zero)
				return err
			},
		},
		{
			name: "update with move",
			mutate: func(t *testing.T, f *fixture) error {
				date := testutil.Day(500)
				amount := testutil.Dec(t, "1")
				_, err := f.engine.UpdateBalance(ctx, f.account.ID, f.ids[0], BalanceEdit{Date: &date, Amount: &amount})
				return err
			},
		},
		{
			name: "delete",
			mutate: func(_ *testing.T, f *fixture) error {
				return f.engine.DeleteBalance(ctx, f.account.ID, f.ids[100])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			f.add(t, 0, "1000")
			f.add(t, 100, "1010")
			f.add(t, 200, "1020")
			before := f.balances(t)

			f.store.failPersist = errStoreDown
			err := tt.mutate(t, f)
			require.ErrorIs(t, err, errStoreDown)
			f.store.failPersist = nil

			assert.Equal(t, before, f.balances(t))
			assertConsistent(t, f)

			// The chain still accepts mutations afterwards.
			f.add(t, 300, "1030")
			assertConsistent(t, f)
		})
	}
}

func TestEngine_NotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.engine.AddBalance(ctx, 999, testutil.Day(0), decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.engine.Snapshot(ctx, 999)
	require.ErrorIs(t, err, common.ErrNotFound)

	amount := decimal.NewFromInt(1)
	_, err = f.engine.UpdateBalance(ctx, f.account.ID, "missing", BalanceEdit{Amount: &amount})
	require.ErrorIs(t, err, common.ErrNotFound)

	err = f.engine.DeleteBalance(ctx, f.account.ID, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.engine.LocateBalance(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func registered(e *Engine) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ledgers)
}

func TestEngine_NonPositiveAccountID(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	before := registered(f.engine)

	for id := int64(0); id >= -50; id-- {
		_, err := f.engine.Snapshot(ctx, id)
		require.ErrorIs(t, err, common.ErrNotFound, "account %d", id)
	}

	_, err := f.engine.Account(ctx, -5)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.engine.AddBalance(ctx, 0, testutil.Day(0), decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, f.engine.DeleteBalance(ctx, -1, "missing"), common.ErrNotFound)

	assert.Equal(t, before, registered(f.engine))
}

func TestEngine_FailedLoadIsNotRetained(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	other := &model.Account{BankName: "Other Bank", AccountName: "Saver"}
	require.NoError(t, f.db.Storage.CreateAccount(ctx, other))
	before := registered(f.engine)

	f.store.setFailGetAccount(errStoreDown)
	for i := 0; i < 10; i++ {
		_, err := f.engine.Snapshot(ctx, other.ID)
		require.ErrorIs(t, err, errStoreDown)
	}
	assert.Equal(t, before, registered(f.engine))

	f.store.setFailGetAccount(nil)
	snap, err := f.engine.Snapshot(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Other Bank Saver", snap.Account.DisplayName())
	assert.Equal(t, before+1, registered(f.engine))
}

func TestEngine_LocateBalance(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	b := f.add(t, 0, "1")

	owner, err := f.engine.LocateBalance(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, f.account.ID, owner)
}

func TestEngine_AccountLifecycle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.add(t, 0, "1")

	updated := *f.account
	updated.InterestMin = decimal.NewNullDecimal(decimal.NewFromInt(500))
	require.NoError(t, f.engine.UpdateAccount(ctx, &updated))

	account, err := f.engine.Account(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.InterestMin.Valid)

	invalid := updated
	invalid.BankName = ""
	require.ErrorIs(t, f.engine.UpdateAccount(ctx, &invalid), model.ErrInvalidAccount)

	require.NoError(t, f.engine.DeleteAccount(ctx, f.account.ID))

	_, err = f.engine.Snapshot(ctx, f.account.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.engine.AddBalance(ctx, f.account.ID, testutil.Day(1), decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, common.ErrNotFound)

	snaps, err := f.engine.Snapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestEngine_LoadRepairsStaleValues(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.CreateAccount("Bank", "Stale")

	stale := decimal.NewNullDecimal(decimal.NewFromInt(42))
	wrongDays := 7
	for i, b := range []*model.Balance{
		{ID: "a", AccountID: account.ID, Date: testutil.Day(0), Seq: 1, Amount: decimal.NewFromInt(1000)},
		{ID: "b", AccountID: account.ID, Date: testutil.Day(365), Seq: 2, Amount: decimal.NewFromInt(1100), APR: stale, DaysSincePredecessor: &wrongDays},
	} {
		require.NoError(t, db.Storage.Persist(ctx, &model.ChainChange{AccountID: account.ID, Created: b}), "balance %d", i)
	}

	e := New(db.Storage)
	snap, err := e.Snapshot(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, snap.Balances, 2)
	assertAPR(t, snap.Balances[1], "0.1")
	assertDays(t, snap.Balances[1], 365)

	stored, err := db.Storage.LoadChain(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored[1].APR.Decimal.Equal(decimal.RequireFromString("0.1")), "repair is persisted")

	repaired, err := e.Recompute(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired, "a consistent chain needs no repair")
}

func TestEngine_Snapshots(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.add(t, 0, "1")

	second := &model.Account{BankName: "Other", AccountName: "Bank"}
	require.NoError(t, f.engine.CreateAccount(ctx, second))

	snaps, err := f.engine.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, f.account.ID, snaps[0].Account.ID)
	assert.Len(t, snaps[0].Balances, 1)
	assert.Equal(t, second.ID, snaps[1].Account.ID)
	assert.Empty(t, snaps[1].Balances)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, 0, "1")

	snap := f.balances(t)
	snap[0].Amount = decimal.NewFromInt(999)

	assert.True(t, f.balances(t)[0].Amount.Equal(decimal.NewFromInt(1)))
}

func TestEngine_ConcurrentMutations(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Interleave dates so inserts land all over the chain.
			day := (i * 37) % 101
			_, err := f.engine.AddBalance(ctx, f.account.ID, testutil.Day(day), decimal.NewFromInt(int64(1000+i)), decimal.Zero)
			if err != nil {
				errs <- fmt.Errorf("insert %d: %w", i, err)
			}
		}(i)
	}

	// Readers run alongside writers and must always see a consistent chain.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := f.engine.Snapshot(ctx, f.account.ID)
			if err != nil {
				errs <- err
				return
			}
			nodes := make([]*model.Balance, len(snap.Balances))
			for j := range snap.Balances {
				nodes[j] = &snap.Balances[j]
			}
			c, err := chain.Load(f.account.ID, chain.TieBreakSequence, nodes)
			if err != nil {
				errs <- err
				return
			}
			if updates := RecomputeAll(c); len(updates) > 0 {
				errs <- fmt.Errorf("reader observed %d stale balances", len(updates))
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Len(t, f.balances(t), 40)
	assertConsistent(t, f)
}

func TestEngine_CanceledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.AddBalance(ctx, f.account.ID, testutil.Day(0), decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, context.Canceled)
}
