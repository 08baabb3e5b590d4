// Package tui implements the read-only terminal dashboard of account
// summaries and balance chains.
package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/savings-tracker/internal/aggregate"
	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/engine"
	"github.com/Veraticus/savings-tracker/internal/tui/themes"
)

// Screen identifies the active screen.
type Screen int

// Available screens.
const (
	ScreenAccounts Screen = iota
	ScreenBalances
)

// chromeHeight is the number of lines taken by the title, status and help.
const chromeHeight = 7

// Model is the main TUI model.
type Model struct {
	err      error
	keys     KeyMap
	help     help.Model
	config   Config
	snaps    []engine.Snapshot
	accounts table.Model
	balances table.Model
	screen   Screen
	selected int
	width    int
	height   int
	loading  bool
	quitting bool
}

// New creates the dashboard model.
func New(opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := Model{
		config:   cfg,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		width:    cfg.Width,
		height:   cfg.Height,
		loading:  true,
		accounts: newTable(accountColumns(), cfg.Theme),
		balances: newTable(balanceColumns(), cfg.Theme),
	}
	m.resize()
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.loadSnapshots()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case snapshotsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.snaps = msg.snaps
			m.accounts.SetRows(m.accountRows())
			if m.selected >= len(m.snaps) {
				m.screen = ScreenAccounts
				m.selected = 0
			}
			if m.screen == ScreenBalances {
				m.balances.SetRows(m.balanceRows(m.selected))
			}
		}
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKeys(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if m.screen == ScreenBalances {
		m.balances, cmd = m.balances.Update(msg)
	} else {
		m.accounts, cmd = m.accounts.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return nil, true

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m.loadSnapshots(), true

	case key.Matches(msg, m.keys.Select) && m.screen == ScreenAccounts:
		if len(m.snaps) == 0 {
			return nil, true
		}
		m.selected = m.accounts.Cursor()
		m.balances.SetRows(m.balanceRows(m.selected))
		m.balances.SetCursor(0)
		m.screen = ScreenBalances
		return nil, true

	case key.Matches(msg, m.keys.Back) && m.screen == ScreenBalances:
		m.screen = ScreenAccounts
		return nil, true
	}
	return nil, false
}

func (m *Model) resize() {
	h := m.height - chromeHeight
	if m.help.ShowAll {
		h -= 2
	}
	if h < 3 {
		h = 3
	}
	m.accounts.SetHeight(h)
	m.balances.SetHeight(h)
}

// CurrentScreen returns the active screen.
func (m Model) CurrentScreen() Screen {
	return m.screen
}

// Selected returns the snapshot shown in the balances view, if any.
func (m Model) Selected() (engine.Snapshot, bool) {
	if m.selected < 0 || m.selected >= len(m.snaps) {
		return engine.Snapshot{}, false
	}
	return m.snaps[m.selected], true
}

func newTable(columns []table.Column, theme themes.Theme) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = theme.Header
	styles.Selected = theme.Selected
	t.SetStyles(styles)
	return t
}

func accountColumns() []table.Column {
	return []table.Column{
		{Title: "Account", Width: 28},
		{Title: "Current", Width: 14},
		{Title: "Avg APR", Width: 9},
		{Title: "Returns", Width: 12},
		{Title: "Topups", Width: 12},
		{Title: "In Bounds", Width: 9},
		{Title: "Obs", Width: 5},
	}
}

func balanceColumns() []table.Column {
	return []table.Column{
		{Title: "Date", Width: 12},
		{Title: "Balance", Width: 14},
		{Title: "Topup", Width: 12},
		{Title: "Days", Width: 6},
		{Title: "APR", Width: 9},
	}
}

func (m Model) accountRows() []table.Row {
	currency := m.config.Currency
	rows := make([]table.Row, 0, len(m.snaps))
	for i := range m.snaps {
		snap := &m.snaps[i]
		s := aggregate.Summarize(&snap.Account, snap.Balances)
		rows = append(rows, table.Row{
			snap.Account.DisplayName(),
			cli.FormatOptionalMoney(s.CurrentBalance, currency),
			cli.FormatPercent(s.AverageAPR),
			cli.FormatOptionalMoney(s.Returns, currency),
			cli.FormatOptionalMoney(s.TotalTopup, currency),
			boolCell(s.BalanceOK),
			strconv.Itoa(s.Observations),
		})
	}
	return rows
}

func (m Model) balanceRows(index int) []table.Row {
	if index < 0 || index >= len(m.snaps) {
		return nil
	}
	currency := m.config.Currency
	balances := m.snaps[index].Balances
	rows := make([]table.Row, 0, len(balances))
	for i := range balances {
		b := &balances[i]
		rows = append(rows, table.Row{
			b.Date.String(),
			cli.FormatMoney(b.Amount, currency),
			cli.FormatMoney(b.Topup, currency),
			cli.FormatDays(b.DaysSincePredecessor),
			cli.FormatPercent(b.APR),
		})
	}
	return rows
}

// boolCell renders a flag without styling; table cells are measured by width.
func boolCell(b *bool) string {
	switch {
	case b == nil:
		return cli.Placeholder
	case *b:
		return "yes"
	default:
		return "no"
	}
}

func nullPercent(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
