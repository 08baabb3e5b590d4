package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/savings-tracker/internal/aggregate"
	"github.com/Veraticus/savings-tracker/internal/cli"
)

// View renders the current model state.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	theme := m.config.Theme
	var b strings.Builder

	switch m.screen {
	case ScreenBalances:
		b.WriteString(m.balancesHeader())
		b.WriteString("\n\n")
		b.WriteString(m.balances.View())
	default:
		b.WriteString(theme.Title.Render(cli.ChartIcon + " Savings accounts"))
		b.WriteString("\n\n")
		if len(m.snaps) == 0 && !m.loading && m.err == nil {
			b.WriteString(theme.Subtitle.Render("No accounts yet. Add one with `savings accounts add`."))
		} else {
			b.WriteString(m.accounts.View())
		}
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}

func (m Model) balancesHeader() string {
	theme := m.config.Theme
	snap, ok := m.Selected()
	if !ok {
		return theme.Title.Render(cli.BankIcon + " Balances")
	}

	s := aggregate.Summarize(&snap.Account, snap.Balances)
	title := theme.Title.Render(cli.BankIcon + " " + snap.Account.DisplayName())
	details := theme.Subtitle.Render(fmt.Sprintf(
		"Start %s  Current %s  Avg APR %s  Returns %s  Predicted %s",
		cli.FormatOptionalMoney(s.StartingBalance, m.config.Currency),
		cli.FormatOptionalMoney(s.CurrentBalance, m.config.Currency),
		cli.FormatPercent(s.AverageAPR),
		cli.FormatOptionalMoney(s.Returns, m.config.Currency),
		cli.FormatPercent(nullPercent(snap.Account.PredictedInterest)),
	))
	return lipgloss.JoinVertical(lipgloss.Left, title, details)
}

func (m Model) statusLine() string {
	theme := m.config.Theme
	switch {
	case m.err != nil:
		return theme.StatusError.Render("Error: " + m.err.Error())
	case m.loading:
		return theme.StatusWarning.Render("Loading...")
	default:
		return theme.StatusSuccess.Render(fmt.Sprintf("%d accounts", len(m.snaps)))
	}
}
