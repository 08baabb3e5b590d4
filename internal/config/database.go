package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/storage"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultDatabasePath is the SQLite file used when none is configured.
const DefaultDatabasePath = "~/.local/share/savings/savings.db"

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver   string
	Path     string // SQLite file
	DSN      string // Postgres DSN; built from Postgres when empty
	Postgres storage.PostgresConfig
}

// LoadDatabaseConfig reads the database.* keys.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Driver: strings.ToLower(strings.TrimSpace(viper.GetString("database.driver"))),
		Path:   viper.GetString("database.path"),
		DSN:    viper.GetString("database.dsn"),
		Postgres: storage.PostgresConfig{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.name"),
			SSLMode:  viper.GetString("database.sslmode"),
		},
	}

	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			cfg.Path = DefaultDatabasePath
		}
		cfg.Path = ExpandPath(cfg.Path)
	case DriverPostgres:
		if cfg.DSN == "" {
			if cfg.Postgres.Host == "" || cfg.Postgres.DBName == "" {
				return nil, fmt.Errorf("%w: postgres needs database.dsn or database.host and database.name", common.ErrMissingConfig)
			}
			if cfg.Postgres.Port == 0 {
				cfg.Postgres.Port = 5432
			}
			cfg.DSN = cfg.Postgres.DSN()
		}
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, cfg.Driver)
	}

	return cfg, nil
}
