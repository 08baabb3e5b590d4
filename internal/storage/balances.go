package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

// LoadChain returns every balance of the account in chain order.
func (s *SQLiteStorage) LoadChain(ctx context.Context, accountID int64) ([]*model.Balance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, seq, amount, topup, apr, days_since_predecessor
		FROM balances
		WHERE account_id = ?
		ORDER BY date, seq`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var balances []*model.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}
	return balances, nil
}

// Persist applies one chain change in a single transaction.
func (s *SQLiteStorage) Persist(ctx context.Context, change *model.ChainChange) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateChainChange(change); err != nil {
		return err
	}
	if change.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if change.Created != nil {
		if err := s.insertBalanceTx(ctx, tx, change.Created); err != nil {
			return err
		}
	}

	if change.Deleted != nil {
		result, err := tx.ExecContext(ctx, `DELETE FROM balances WHERE id = ? AND account_id = ?`,
			change.Deleted.ID, change.AccountID)
		if err != nil {
			return fmt.Errorf("failed to delete balance: %w", err)
		}
		if err := expectOneRow(result, "balance", change.Deleted.ID); err != nil {
			return err
		}
	}

	for _, b := range change.Updated {
		if err := s.updateBalanceTx(ctx, tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LocateBalance returns the account that owns the balance.
func (s *SQLiteStorage) LocateBalance(ctx context.Context, balanceID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(balanceID, "balanceID"); err != nil {
		return 0, err
	}

	var accountID int64
	err := s.db.QueryRowContext(ctx, `SELECT account_id FROM balances WHERE id = ?`, balanceID).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: balance %s", common.ErrNotFound, balanceID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to locate balance: %w", err)
	}
	return accountID, nil
}

func (s *SQLiteStorage) insertBalanceTx(ctx context.Context, tx *sql.Tx, b *model.Balance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (id, account_id, date, seq, amount, topup, apr, days_since_predecessor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.AccountID,
		b.Date.String(),
		b.Seq,
		b.Amount.String(),
		b.Topup.String(),
		b.APR,
		nullDays(b.DaysSincePredecessor),
	)
	if err != nil {
		return fmt.Errorf("failed to insert balance %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) updateBalanceTx(ctx context.Context, tx *sql.Tx, b *model.Balance) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET
			date = ?, seq = ?, amount = ?, topup = ?, apr = ?, days_since_predecessor = ?
		WHERE id = ? AND account_id = ?`,
		b.Date.String(),
		b.Seq,
		b.Amount.String(),
		b.Topup.String(),
		b.APR,
		nullDays(b.DaysSincePredecessor),
		b.ID,
		b.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance %s: %w", b.ID, err)
	}
	return expectOneRow(result, "balance", b.ID)
}

func scanBalance(row rowScanner) (*model.Balance, error) {
	var (
		b    model.Balance
		date string
		days sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.AccountID, &date, &b.Seq, &b.Amount, &b.Topup, &b.APR, &days); err != nil {
		return nil, err
	}

	parsed, err := civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q for balance %s: %w", date, b.ID, err)
	}
	b.Date = parsed

	if days.Valid {
		d := int(days.Int64)
		b.DaysSincePredecessor = &d
	}
	return &b, nil
}

func nullDays(days *int) sql.NullInt64 {
	if days == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*days), Valid: true}
}
