package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/savings-tracker/internal/chain"
	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/config"
	"github.com/Veraticus/savings-tracker/internal/engine"
	"github.com/Veraticus/savings-tracker/internal/service"
	"github.com/Veraticus/savings-tracker/internal/storage"
)

// app bundles the storage and engine used by a command.
type app struct {
	store    service.Storage
	engine   *engine.Engine
	currency string
}

// initStorage opens the configured backend and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	var store service.Storage
	switch dbConfig.Driver {
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(dbConfig.DSN)
	default:
		store, err = storage.NewSQLiteStorage(dbConfig.Path)
	}
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Opened database", "driver", dbConfig.Driver)
	return store, nil
}

// initApp opens storage and builds the engine with the configured tie-break
// policy.
func initApp(ctx context.Context) (*app, error) {
	tieBreak, err := chain.ParseTieBreak(viper.GetString("chain.tie_break"))
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(viper.GetString("display.currency"))
	if currency == "" {
		currency = cli.DefaultCurrency
	}
	if !cli.ValidCurrency(currency) {
		return nil, fmt.Errorf("%w: unknown display currency %q", common.ErrInvalidConfig, currency)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	return &app{
		store:    store,
		engine:   engine.NewWithConfig(store, engine.Config{TieBreak: tieBreak}),
		currency: currency,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// parseAccountID parses a positive account ID argument.
func parseAccountID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid account ID %q", arg), err)
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD or "today".
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "today") {
		return civil.DateOf(time.Now()), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, common.NewUserError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s), err)
	}
	return d, nil
}

var amountReplacer = strings.NewReplacer(",", "", "£", "", "$", "", "€", "", " ", "")

// parseAmount parses a money amount, ignoring currency symbols and thousands
// separators.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amountReplacer.Replace(strings.TrimSpace(s)))
	if err != nil {
		return decimal.Zero, common.NewUserError(fmt.Sprintf("invalid amount %q", s), err)
	}
	return d, nil
}

// parseOptionalAmount parses an amount flag where empty means unset.
func parseOptionalAmount(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// parseRate parses an annual rate given as a fraction ("0.05") or a
// percentage ("5%").
func parseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	percent := strings.HasSuffix(s, "%")
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return decimal.Zero, common.NewUserError(fmt.Sprintf("invalid rate %q", s), err)
	}
	if percent {
		d = d.Shift(-2)
	}
	return d, nil
}
