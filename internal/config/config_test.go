package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/savings-tracker/internal/common"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SAVINGS_TEST_DIR", "/srv/savings")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "home", input: "~", want: home},
		{name: "home relative", input: "~/data/savings.db", want: filepath.Join(home, "data/savings.db")},
		{name: "env var", input: "$SAVINGS_TEST_DIR/savings.db", want: "/srv/savings/savings.db"},
		{name: "absolute", input: "/tmp/savings.db", want: "/tmp/savings.db"},
		{name: "tilde user form untouched", input: "~other/x", want: "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SAVINGS_TEST_FROM_FILE=loaded\nSAVINGS_TEST_PRESET=file\n"), 0600))

	t.Setenv("SAVINGS_TEST_PRESET", "process")
	t.Setenv("SAVINGS_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("SAVINGS_TEST_FROM_FILE"))

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("SAVINGS_TEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("SAVINGS_TEST_PRESET"), "existing variables are not overridden")
}

func TestLoadDatabaseConfig(t *testing.T) {
	tests := []struct {
		settings map[string]any
		check    func(t *testing.T, cfg *DatabaseConfig)
		wantIs   error
		name     string
	}{
		{
			name:     "defaults to sqlite",
			settings: map[string]any{},
			check: func(t *testing.T, cfg *DatabaseConfig) {
				t.Helper()
				assert.Equal(t, DriverSQLite, cfg.Driver)
				assert.Equal(t, ExpandPath(DefaultDatabasePath), cfg.Path)
			},
		},
		{
			name:     "explicit sqlite path",
			settings: map[string]any{"database.driver": "SQLite", "database.path": "/tmp/x.db"},
			check: func(t *testing.T, cfg *DatabaseConfig) {
				t.Helper()
				assert.Equal(t, DriverSQLite, cfg.Driver)
				assert.Equal(t, "/tmp/x.db", cfg.Path)
			},
		},
		{
			name: "postgres from parts",
			settings: map[string]any{
				"database.driver":   "postgres",
				"database.host":     "db",
				"database.user":     "savings",
				"database.password": "secret",
				"database.name":     "savings",
			},
			check: func(t *testing.T, cfg *DatabaseConfig) {
				t.Helper()
				assert.Equal(t, "host=db port=5432 user=savings password=secret dbname=savings sslmode=disable", cfg.DSN)
			},
		},
		{
			name:     "postgres dsn wins",
			settings: map[string]any{"database.driver": "postgres", "database.dsn": "postgres://u@h/db"},
			check: func(t *testing.T, cfg *DatabaseConfig) {
				t.Helper()
				assert.Equal(t, "postgres://u@h/db", cfg.DSN)
			},
		},
		{
			name:     "postgres without host",
			settings: map[string]any{"database.driver": "postgres"},
			wantIs:   common.ErrMissingConfig,
		},
		{
			name:     "unknown driver",
			settings: map[string]any{"database.driver": "mysql"},
			wantIs:   common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range tt.settings {
				viper.Set(k, v)
			}

			cfg, err := LoadDatabaseConfig()
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadPlaidConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("PLAID_CLIENT_ID", "env-client")
	t.Setenv("PLAID_SECRET", "env-secret")
	t.Setenv("PLAID_ACCESS_TOKEN", "")
	t.Setenv("PLAID_ENV", "")

	_, err := LoadPlaidConfig()
	require.ErrorIs(t, err, common.ErrMissingConfig)

	viper.Set("plaid.access_token", "token")
	viper.Set("plaid.client_id", "viper-client")
	cfg, err := LoadPlaidConfig()
	require.NoError(t, err)
	assert.Equal(t, "viper-client", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.Secret)
	assert.Equal(t, "sandbox", cfg.Environment)
}

func TestLoadSheetsConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range []string{
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(key, "")
	}

	_, err := LoadSheetsConfig()
	require.ErrorIs(t, err, common.ErrMissingConfig)

	t.Setenv("SAVINGS_TEST_KEYS", "/keys")
	viper.Set("sheets.service_account_path", "$SAVINGS_TEST_KEYS/sa.json")
	viper.Set("sheets.sheet_name", "Summary")
	viper.Set("sheets.formatting", false)

	cfg, err := LoadSheetsConfig()
	require.NoError(t, err)
	assert.Equal(t, "/keys/sa.json", cfg.ServiceAccountPath)
	assert.Equal(t, "Summary", cfg.SheetName)
	assert.False(t, cfg.EnableFormatting)
}

func TestLoadSimpleFINConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("SIMPLEFIN_ACCESS_URL", "")
	t.Setenv("SIMPLEFIN_TOKEN", "env-token")
	t.Setenv("HOME", "/home/saver")

	cfg := LoadSimpleFINConfig()
	assert.Empty(t, cfg.AccessURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "/home/saver/.local/share/savings/simplefin_auth.json", cfg.StateFile)

	viper.Set("simplefin.access_url", "https://user:pw@bridge.example.com/simplefin")
	viper.Set("simplefin.state_file", "/tmp/auth.json")
	cfg = LoadSimpleFINConfig()
	assert.Equal(t, "https://user:pw@bridge.example.com/simplefin", cfg.AccessURL)
	assert.Equal(t, "/tmp/auth.json", cfg.StateFile)
}
