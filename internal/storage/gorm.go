package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
	"github.com/Veraticus/savings-tracker/internal/service"
)

var _ service.Storage = (*GormStorage)(nil)

// PostgresConfig holds the connection settings for a PostgreSQL database.
type PostgresConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int
}

// DSN returns the connection string for the configuration.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		sslMode)
}

// GormStorage implements the Storage interface on top of GORM.
type GormStorage struct {
	db *gorm.DB
}

type accountRecord struct {
	CreatedAt         time.Time           `gorm:"autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"autoUpdateTime"`
	InterestMin       decimal.NullDecimal `gorm:"type:numeric"`
	InterestMax       decimal.NullDecimal `gorm:"type:numeric"`
	PredictedInterest decimal.Decimal     `gorm:"type:numeric;not null;default:0"`
	BankName          string              `gorm:"not null"`
	AccountName       string              `gorm:"not null"`
	AccountNumber     string              `gorm:"not null;default:''"`
	SortCode          string              `gorm:"not null;default:''"`
	ExternalID        string              `gorm:"index;not null;default:''"`
	ID                int64               `gorm:"primaryKey;autoIncrement"`
	InstantWithdrawal bool                `gorm:"not null;default:false"`
}

func (accountRecord) TableName() string { return "accounts" }

type balanceRecord struct {
	Date                 time.Time           `gorm:"type:date;not null;uniqueIndex:idx_balances_key,priority:2"`
	CreatedAt            time.Time           `gorm:"autoCreateTime"`
	Amount               decimal.Decimal     `gorm:"type:numeric;not null"`
	Topup                decimal.Decimal     `gorm:"type:numeric;not null;default:0"`
	APR                  decimal.NullDecimal `gorm:"type:numeric"`
	DaysSincePredecessor *int
	ID                   string `gorm:"primaryKey"`
	AccountID            int64  `gorm:"not null;uniqueIndex:idx_balances_key,priority:1"`
	Seq                  int64  `gorm:"not null;uniqueIndex:idx_balances_key,priority:3"`
}

func (balanceRecord) TableName() string { return "balances" }

// NewPostgresStorage opens a PostgreSQL database through GORM.
func NewPostgresStorage(dsn string) (*GormStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}
	return NewGormStorage(postgres.Open(dsn))
}

// NewGormStorage opens a database with any GORM dialector.
func NewGormStorage(dialector gorm.Dialector) (*GormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &GormStorage{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *GormStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&accountRecord{}, &balanceRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAccount inserts a new account and sets its ID.
func (s *GormStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	record := toAccountRecord(account)
	record.ID = 0
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.ID = record.ID
	account.CreatedAt = record.CreatedAt
	account.UpdatedAt = record.UpdatedAt
	return nil
}

// GetAccount retrieves an account by ID.
func (s *GormStorage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	var record accountRecord
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: account %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account := record.toModel()
	return &account, nil
}

// ListAccounts returns every account ordered by ID.
func (s *GormStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var records []accountRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(records))
	for _, r := range records {
		accounts = append(accounts, r.toModel())
	}
	return accounts, nil
}

// UpdateAccount replaces an account's metadata.
func (s *GormStorage) UpdateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	if err := validateID(account.ID, "account.ID"); err != nil {
		return err
	}

	record := toAccountRecord(account)
	result := s.db.WithContext(ctx).Model(&accountRecord{}).Where("id = ?", account.ID).
		Select("*").Omit("id", "created_at").Updates(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: account %d", common.ErrNotFound, account.ID)
	}
	account.UpdatedAt = record.UpdatedAt
	return nil
}

// DeleteAccount removes an account and all of its balances.
func (s *GormStorage) DeleteAccount(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&balanceRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete balances: %w", err)
		}
		result := tx.Delete(&accountRecord{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: account %d", common.ErrNotFound, id)
		}
		return nil
	})
}

// LoadChain returns every balance of the account in chain order.
func (s *GormStorage) LoadChain(ctx context.Context, accountID int64) ([]*model.Balance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	var records []balanceRecord
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("date, seq").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}

	balances := make([]*model.Balance, 0, len(records))
	for _, r := range records {
		balances = append(balances, r.toModel())
	}
	return balances, nil
}

// Persist applies one chain change in a single transaction.
func (s *GormStorage) Persist(ctx context.Context, change *model.ChainChange) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateChainChange(change); err != nil {
		return err
	}
	if change.Empty() {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.Created != nil {
			record := toBalanceRecord(change.Created)
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to insert balance %s: %w", record.ID, err)
			}
		}

		if change.Deleted != nil {
			result := tx.Where("id = ? AND account_id = ?", change.Deleted.ID, change.AccountID).Delete(&balanceRecord{})
			if result.Error != nil {
				return fmt.Errorf("failed to delete balance: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: balance %s", common.ErrNotFound, change.Deleted.ID)
			}
		}

		for _, b := range change.Updated {
			record := toBalanceRecord(b)
			result := tx.Model(&balanceRecord{}).
				Where("id = ? AND account_id = ?", b.ID, b.AccountID).
				Updates(map[string]any{
					"date":                   record.Date,
					"seq":                    record.Seq,
					"amount":                 record.Amount,
					"topup":                  record.Topup,
					"apr":                    record.APR,
					"days_since_predecessor": record.DaysSincePredecessor,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update balance %s: %w", b.ID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: balance %s", common.ErrNotFound, b.ID)
			}
		}
		return nil
	})
}

// LocateBalance returns the account that owns the balance.
func (s *GormStorage) LocateBalance(ctx context.Context, balanceID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(balanceID, "balanceID"); err != nil {
		return 0, err
	}

	var record balanceRecord
	err := s.db.WithContext(ctx).Select("account_id").Where("id = ?", balanceID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: balance %s", common.ErrNotFound, balanceID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to locate balance: %w", err)
	}
	return record.AccountID, nil
}

func toAccountRecord(a *model.Account) accountRecord {
	return accountRecord{
		ID:                a.ID,
		BankName:          a.BankName,
		AccountName:       a.AccountName,
		AccountNumber:     a.AccountNumber,
		SortCode:          a.SortCode,
		ExternalID:        a.ExternalID,
		PredictedInterest: a.PredictedInterest,
		InterestMin:       a.InterestMin,
		InterestMax:       a.InterestMax,
		InstantWithdrawal: a.InstantWithdrawal,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func (r accountRecord) toModel() model.Account {
	return model.Account{
		ID:                r.ID,
		BankName:          r.BankName,
		AccountName:       r.AccountName,
		AccountNumber:     r.AccountNumber,
		SortCode:          r.SortCode,
		ExternalID:        r.ExternalID,
		PredictedInterest: r.PredictedInterest,
		InterestMin:       r.InterestMin,
		InterestMax:       r.InterestMax,
		InstantWithdrawal: r.InstantWithdrawal,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func toBalanceRecord(b *model.Balance) balanceRecord {
	return balanceRecord{
		ID:                   b.ID,
		AccountID:            b.AccountID,
		Date:                 b.Date.In(time.UTC),
		Seq:                  b.Seq,
		Amount:               b.Amount,
		Topup:                b.Topup,
		APR:                  b.APR,
		DaysSincePredecessor: b.DaysSincePredecessor,
	}
}

func (r balanceRecord) toModel() *model.Balance {
	return &model.Balance{
		ID:                   r.ID,
		AccountID:            r.AccountID,
		Date:                 civil.DateOf(r.Date.UTC()),
		Seq:                  r.Seq,
		Amount:               r.Amount,
		Topup:                r.Topup,
		APR:                  r.APR,
		DaysSincePredecessor: r.DaysSincePredecessor,
	}
}
