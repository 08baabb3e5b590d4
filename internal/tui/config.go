package tui

import (
	"context"
	"time"

	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/engine"
	"github.com/Veraticus/savings-tracker/internal/tui/themes"
)

// Source provides the account chains shown by the dashboard.
type Source interface {
	Snapshots(ctx context.Context) ([]engine.Snapshot, error)
}

// Config holds TUI configuration.
type Config struct {
	Source      Source
	Currency    string
	Theme       themes.Theme
	Width       int
	Height      int
	LoadTimeout time.Duration
}

// Option configures the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Currency:    cli.DefaultCurrency,
		Theme:       themes.Default,
		Width:       100,
		Height:      30,
		LoadTimeout: 10 * time.Second,
	}
}

// WithSource sets the account source.
func WithSource(source Source) Option {
	return func(c *Config) {
		c.Source = source
	}
}

// WithCurrency sets the display currency.
func WithCurrency(currency string) Option {
	return func(c *Config) {
		if currency != "" {
			c.Currency = currency
		}
	}
}

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}
