package tui

import "github.com/Veraticus/savings-tracker/internal/engine"

// snapshotsLoadedMsg carries a fresh read of every account chain.
type snapshotsLoadedMsg struct {
	err   error
	snaps []engine.Snapshot
}
