package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/tui"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"tui"},
		Short:   "Browse accounts and balances in a terminal dashboard",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(ctx,
				tui.WithSource(a.engine),
				tui.WithCurrency(a.currency),
			)
		},
	}
}
