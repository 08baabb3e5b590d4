package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/cli"
)

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive every balance chain and repair stale values",
		Long: `Reload every account's chain from the database, re-derive the day gaps and
APRs of all observations and persist any value that was out of date. A
consistent database is left untouched.`,
		Args: cobra.NoArgs,
		RunE: runRecompute,
	}
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	repaired, err := a.engine.Recompute(ctx)
	if err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}

	msg := cli.FormatSuccess("All chains are consistent")
	if repaired > 0 {
		msg = cli.FormatWarning(fmt.Sprintf("Repaired %d balances", repaired))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}
