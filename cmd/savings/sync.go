package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/config"
	"github.com/Veraticus/savings-tracker/internal/importer"
	"github.com/Veraticus/savings-tracker/internal/plaid"
	"github.com/Veraticus/savings-tracker/internal/service"
	"github.com/Veraticus/savings-tracker/internal/simplefin"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record today's balances from a remote source",
	}
	cmd.AddCommand(syncPlaidCmd())
	cmd.AddCommand(syncSimpleFINCmd())
	return cmd
}

func syncPlaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Record today's current balance of every Plaid-linked account",
		Long: `Fetch the current balance of every account behind the configured Plaid
access token and record it as today's observation. Plaid accounts are
matched by account_id against each account's external ID.

Configuration: plaid.client_id, plaid.secret, plaid.environment and
plaid.access_token (or PLAID_CLIENT_ID, PLAID_SECRET, PLAID_ENV and
PLAID_ACCESS_TOKEN).`,
		Args: cobra.NoArgs,
		RunE: runSyncPlaid,
	}
	cmd.Flags().BoolP("dry-run", "d", false, "Preview without saving")
	return cmd
}

func runSyncPlaid(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	plaidConfig, err := config.LoadPlaidConfig()
	if err != nil {
		return err
	}
	client, err := plaid.NewClient(*plaidConfig)
	if err != nil {
		return common.NewUserError("could not create Plaid client", err)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return syncBalances(cmd, a, client, dryRun)
}

func syncSimpleFINCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simplefin",
		Short: "Record the latest balance of every SimpleFIN account",
		Long: `Fetch the latest balance of every account behind a SimpleFIN Bridge
connection and record it on the date SimpleFIN reports it for. Accounts are
matched by SimpleFIN account ID against each account's external ID.

Configuration: simplefin.access_url, or simplefin.token (a setup token,
claimed once and saved to simplefin.state_file). SIMPLEFIN_ACCESS_URL and
SIMPLEFIN_TOKEN are read as well.`,
		Args: cobra.NoArgs,
		RunE: runSyncSimpleFIN,
	}
	cmd.Flags().BoolP("dry-run", "d", false, "Preview without saving")
	return cmd
}

func runSyncSimpleFIN(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()

	sfConfig := config.LoadSimpleFINConfig()
	accessURL := sfConfig.AccessURL
	if accessURL == "" {
		state, err := simplefin.LoadOrClaim(ctx, nil, sfConfig.Token, sfConfig.StateFile)
		if err != nil {
			return common.NewUserError("SimpleFIN is not connected; set simplefin.token to a setup token", err)
		}
		accessURL = state.AccessURL
	}

	client, err := simplefin.NewClient(accessURL, nil)
	if err != nil {
		return err
	}

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return syncBalances(cmd, a, client, dryRun)
}

// syncBalances imports the observations of a remote source.
func syncBalances(cmd *cobra.Command, a *app, source service.BalanceFetcher, dryRun bool) error {
	ctx := cmd.Context()
	observations, err := source.GetBalances(ctx)
	if err != nil {
		return common.NewUserError("could not fetch balances", err)
	}

	result, err := importer.New(a.engine, dryRun).Import(ctx, observations)
	if err != nil {
		return err
	}
	return printImportResult(cmd.OutOrStdout(), result, dryRun, a.currency)
}
