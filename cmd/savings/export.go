package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/savings-tracker/internal/aggregate"
	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/config"
	"github.com/Veraticus/savings-tracker/internal/engine"
	"github.com/Veraticus/savings-tracker/internal/query"
	"github.com/Veraticus/savings-tracker/internal/service"
	"github.com/Veraticus/savings-tracker/internal/sheets"
)

const defaultTokenFile = "~/.config/savings/sheets-token.json"

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export account summaries",
	}
	cmd.AddCommand(exportSheetsCmd())
	return cmd
}

func exportSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the accounts table to Google Sheets",
		Long: `Write the accounts table (the same columns the query server returns) to a
Google Sheets spreadsheet, replacing the sheet's previous contents.

Authenticate with a service account (sheets.service_account_path) or with
OAuth2 (sheets.client_id, sheets.client_secret and sheets.refresh_token).
Pass --login to run the OAuth2 consent flow and save the token.`,
		Args: cobra.NoArgs,
		RunE: runExportSheets,
	}
	cmd.Flags().Bool("login", false, "Run the OAuth2 consent flow if no saved token exists")
	cmd.Flags().String("spreadsheet-id", "", "Spreadsheet to update (default: create one)")
	_ = viper.BindPFlag("sheets.spreadsheet_id", cmd.Flags().Lookup("spreadsheet-id"))
	return cmd
}

func runExportSheets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if login, _ := cmd.Flags().GetBool("login"); login {
		if err := loginSheets(ctx); err != nil {
			return err
		}
	}

	sheetsConfig, err := config.LoadSheetsConfig()
	if err != nil {
		return common.NewUserError("Google Sheets is not configured", err)
	}

	writer, err := sheets.NewWriter(ctx, *sheetsConfig, slog.Default())
	if err != nil {
		return err
	}

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := exportAccounts(ctx, a.engine, writer)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d accounts to Google Sheets", count)))
	return err
}

// exportAccounts writes one row per account in query column order.
func exportAccounts(ctx context.Context, source *engine.Engine, writer service.TableWriter) (int, error) {
	snaps, err := source.Snapshots(ctx)
	if err != nil {
		return 0, err
	}

	header := make([]string, len(query.AccountColumns))
	for i, col := range query.AccountColumns {
		header[i] = col.Text
	}

	rows := make([][]any, 0, len(snaps))
	for i := range snaps {
		summary := aggregate.Summarize(&snaps[i].Account, snaps[i].Balances)
		rows = append(rows, query.AccountRow(&snaps[i].Account, summary))
	}

	if err := writer.WriteTable(ctx, header, rows); err != nil {
		return 0, fmt.Errorf("failed to export accounts: %w", err)
	}
	return len(rows), nil
}

// loginSheets obtains an OAuth2 refresh token and makes it the configured one.
func loginSheets(ctx context.Context) error {
	tokenFile := viper.GetString("sheets.token_file")
	if tokenFile == "" {
		tokenFile = defaultTokenFile
	}

	oauth := sheets.OAuth2Config{
		ClientID:     firstSet(viper.GetString("sheets.client_id"), os.Getenv("GOOGLE_SHEETS_CLIENT_ID")),
		ClientSecret: firstSet(viper.GetString("sheets.client_secret"), os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")),
		TokenFile:    config.ExpandPath(tokenFile),
		CallbackAddr: viper.GetString("sheets.callback_addr"),
	}
	if oauth.ClientID == "" || oauth.ClientSecret == "" {
		return common.NewUserError("--login needs sheets.client_id and sheets.client_secret", common.ErrMissingConfig)
	}

	token, err := sheets.GetOrCreateToken(ctx, oauth)
	if err != nil {
		return fmt.Errorf("google sign-in failed: %w", err)
	}
	viper.Set("sheets.refresh_token", token.RefreshToken)
	return nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
