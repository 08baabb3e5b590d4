package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

func TestSQLiteStorage_PersistAndLoadChain(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Chain")

	late := testBalance("late", account.ID, "2024-12-31", 2, "1100")
	early := testBalance("early", account.ID, "2024-01-01", 1, "1000")
	early.Topup = decimal.NewFromInt(1000)

	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Created: late}))
	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Created: early}))

	// Derived values written through an update survive a reload.
	days := 365
	late.APR = decimal.NewNullDecimal(decimal.RequireFromString("0.1"))
	late.DaysSincePredecessor = &days
	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Updated: []*model.Balance{late}}))

	chain, err := store.LoadChain(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	assert.Equal(t, "early", chain[0].ID)
	assert.Equal(t, early.Date, chain[0].Date)
	assert.True(t, chain[0].Topup.Equal(decimal.NewFromInt(1000)))
	assert.False(t, chain[0].APR.Valid)
	assert.Nil(t, chain[0].DaysSincePredecessor)

	assert.Equal(t, "late", chain[1].ID)
	assert.Equal(t, int64(2), chain[1].Seq)
	require.True(t, chain[1].APR.Valid)
	assert.True(t, chain[1].APR.Decimal.Equal(decimal.RequireFromString("0.1")))
	require.NotNil(t, chain[1].DaysSincePredecessor)
	assert.Equal(t, 365, *chain[1].DaysSincePredecessor)
}

func TestSQLiteStorage_PersistDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Chain")
	b := testBalance("b1", account.ID, "2024-02-01", 1, "10")
	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Created: b}))

	owner, err := store.LocateBalance(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, owner)

	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Deleted: b}))

	_, err = store.LocateBalance(ctx, "b1")
	require.ErrorIs(t, err, common.ErrNotFound)

	err = store.Persist(ctx, &model.ChainChange{AccountID: account.ID, Deleted: b})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_PersistIsAtomic(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Chain")
	created := testBalance("new", account.ID, "2024-03-01", 1, "10")
	missing := testBalance("ghost", account.ID, "2024-04-01", 2, "10")

	err := store.Persist(ctx, &model.ChainChange{
		AccountID: account.ID,
		Created:   created,
		Updated:   []*model.Balance{missing},
	})
	require.ErrorIs(t, err, common.ErrNotFound)

	chain, err := store.LoadChain(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, chain, "failed change must not leave a partial write")
}

func TestSQLiteStorage_PersistValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Chain")

	tests := []struct {
		change  *model.ChainChange
		wantErr error
		name    string
	}{
		{name: "nil change", wantErr: ErrNilParameter},
		{name: "missing account", change: &model.ChainChange{}, wantErr: ErrInvalidID},
		{
			name: "wrong account",
			change: &model.ChainChange{
				AccountID: account.ID,
				Created:   testBalance("x", account.ID+1, "2024-01-01", 1, "1"),
			},
			wantErr: model.ErrInvalidBalance,
		},
		{
			name: "create and delete",
			change: &model.ChainChange{
				AccountID: account.ID,
				Created:   testBalance("x", account.ID, "2024-01-01", 1, "1"),
				Deleted:   testBalance("y", account.ID, "2024-01-01", 2, "1"),
			},
			wantErr: model.ErrInvalidBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, store.Persist(ctx, tt.change), tt.wantErr)
		})
	}

	require.NoError(t, store.Persist(ctx, &model.ChainChange{AccountID: account.ID}))
}
