package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

var errNoSource = errors.New("no account source configured")

// loadSnapshots reads every account chain in the background.
func (m Model) loadSnapshots() tea.Cmd {
	source := m.config.Source
	timeout := m.config.LoadTimeout
	return func() tea.Msg {
		if source == nil {
			return snapshotsLoadedMsg{err: errNoSource}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		snaps, err := source.Snapshots(ctx)
		return snapshotsLoadedMsg{snaps: snaps, err: err}
	}
}
