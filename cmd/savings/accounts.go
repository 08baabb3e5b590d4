package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/aggregate"
	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account", "acct"},
		Short:   "Manage savings accounts",
		Long:    `Create, list, inspect, edit and delete the savings accounts whose balances are tracked.`,
	}

	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsShowCmd())
	cmd.AddCommand(accountsEditCmd())
	cmd.AddCommand(accountsDeleteCmd())

	return cmd
}

// addAccountFlags registers the account metadata flags shared by add and edit.
func addAccountFlags(cmd *cobra.Command) {
	cmd.Flags().String("bank", "", "Bank name")
	cmd.Flags().String("name", "", "Account name")
	cmd.Flags().String("number", "", "Account number")
	cmd.Flags().String("sort-code", "", "Sort code")
	cmd.Flags().String("external-id", "", "OFX ACCTID or Plaid account_id used to match imports")
	cmd.Flags().String("interest", "", "Advertised annual rate, as 0.05 or 5%")
	cmd.Flags().String("min", "", "Lowest balance that still earns interest")
	cmd.Flags().String("max", "", "Highest balance that still earns interest")
	cmd.Flags().Bool("instant", false, "Withdrawals are instant")
}

// applyAccountFlags copies every changed flag onto account.
func applyAccountFlags(cmd *cobra.Command, account *model.Account) error {
	flags := cmd.Flags()
	strFields := map[string]*string{
		"bank":        &account.BankName,
		"name":        &account.AccountName,
		"number":      &account.AccountNumber,
		"sort-code":   &account.SortCode,
		"external-id": &account.ExternalID,
	}
	for name, field := range strFields {
		if flags.Changed(name) {
			v, _ := flags.GetString(name)
			*field = strings.TrimSpace(v)
		}
	}

	if flags.Changed("interest") {
		v, _ := flags.GetString("interest")
		rate, err := parseRate(v)
		if err != nil {
			return err
		}
		account.PredictedInterest = rate
	}

	bounds := map[string]*decimal.NullDecimal{
		"min": &account.InterestMin,
		"max": &account.InterestMax,
	}
	for name, field := range bounds {
		if flags.Changed(name) {
			v, _ := flags.GetString(name)
			d, err := parseOptionalAmount(v)
			if err != nil {
				return err
			}
			*field = d
		}
	}

	if flags.Changed("instant") {
		account.InstantWithdrawal, _ = flags.GetBool("instant")
	}
	return nil
}

func accountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a savings account",
		Example: `  savings accounts add --bank Marcus --name "Online Saver" --interest 4.1%
  savings accounts add --bank Chase --name Saver --min 1000 --max 85000 --instant`,
		Args: cobra.NoArgs,
		RunE: runAccountsAdd,
	}
	addAccountFlags(cmd)
	_ = cmd.MarkFlagRequired("bank")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runAccountsAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var account model.Account
	if err := applyAccountFlags(cmd, &account); err != nil {
		return err
	}
	if err := a.engine.CreateAccount(ctx, &account); err != nil {
		return common.NewUserError("could not add account", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added account %d: %s", account.ID, account.DisplayName())))
	return err
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts with their current balance and average APR",
		Args:    cobra.NoArgs,
		RunE:    runAccountsList,
	}
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, err := a.engine.Snapshots(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(snaps) == 0 {
		_, err = fmt.Fprintln(out, cli.FormatInfo("No accounts yet. Add one with `savings accounts add`."))
		return err
	}

	header := []string{"ID", "Bank", "Account", "Current", "Avg APR", "Predicted", "Balance OK", "Obs"}
	rows := make([][]string, 0, len(snaps))
	for i := range snaps {
		snap := &snaps[i]
		s := aggregate.Summarize(&snap.Account, snap.Balances)
		rows = append(rows, []string{
			strconv.FormatInt(snap.Account.ID, 10),
			snap.Account.BankName,
			snap.Account.AccountName,
			cli.FormatOptionalMoney(s.CurrentBalance, a.currency),
			cli.FormatPercent(s.AverageAPR),
			cli.FormatPercent(decimal.NewNullDecimal(snap.Account.PredictedInterest)),
			cli.FormatBool(s.BalanceOK),
			strconv.Itoa(s.Observations),
		})
	}

	_, err = fmt.Fprintln(out, cli.RenderTable(header, rows))
	return err
}

func accountsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account's details and summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsShow,
	}
}

func runAccountsShow(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.engine.Snapshot(ctx, id)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("account %d not found", id), err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(snap.Account.DisplayName(), describeAccount(&snap.Account, snap.Balances, a.currency)))
	return err
}

// describeAccount renders the metadata and summary lines shown by show.
func describeAccount(account *model.Account, balances []model.Balance, currency string) string {
	s := aggregate.Summarize(account, balances)
	lines := []struct {
		label string
		value string
	}{
		{"ID", strconv.FormatInt(account.ID, 10)},
		{"Account number", orPlaceholder(account.AccountNumber)},
		{"Sort code", orPlaceholder(account.SortCode)},
		{"External ID", orPlaceholder(account.ExternalID)},
		{"Predicted interest", cli.FormatPercent(decimal.NewNullDecimal(account.PredictedInterest))},
		{"Interest min", cli.FormatOptionalMoney(account.InterestMin, currency)},
		{"Interest max", cli.FormatOptionalMoney(account.InterestMax, currency)},
		{"Instant withdrawal", cli.FormatBool(&account.InstantWithdrawal)},
		{"Observations", strconv.Itoa(s.Observations)},
		{"Starting balance", cli.FormatOptionalMoney(s.StartingBalance, currency)},
		{"Current balance", cli.FormatOptionalMoney(s.CurrentBalance, currency)},
		{"Total topup", cli.FormatOptionalMoney(s.TotalTopup, currency)},
		{"Average APR", cli.FormatPercent(s.AverageAPR)},
		{"Returns", cli.FormatOptionalMoney(s.Returns, currency)},
		{"Balance OK", cli.FormatBool(s.BalanceOK)},
	}

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-20s %s", line.label+":", line.value)
	}
	return b.String()
}

func orPlaceholder(s string) string {
	if s == "" {
		return cli.Placeholder
	}
	return s
}

func accountsEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <account-id>",
		Short: "Edit an account's metadata",
		Long: `Edit an account's metadata. Only the flags given are changed; pass an
empty --min or --max to remove a bound.`,
		Example: `  savings accounts edit 3 --interest 4.5%
  savings accounts edit 3 --max ""`,
		Args: cobra.ExactArgs(1),
		RunE: runAccountsEdit,
	}
	addAccountFlags(cmd)
	return cmd
}

func runAccountsEdit(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().NFlag() == 0 {
		return common.NewUserError("nothing to change, pass at least one flag", nil)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := a.engine.Account(ctx, id)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("account %d not found", id), err)
	}
	if err := applyAccountFlags(cmd, &account); err != nil {
		return err
	}
	if err := a.engine.UpdateAccount(ctx, &account); err != nil {
		return common.NewUserError("could not update account", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated account %d: %s", account.ID, account.DisplayName())))
	return err
}

func accountsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and every balance recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsDelete,
	}
	cmd.Flags().BoolP("yes", "y", false, "Confirm the deletion")
	return cmd
}

func runAccountsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return common.NewUserError("deleting an account removes all of its balances; rerun with --yes to confirm", nil)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.DeleteAccount(ctx, id); err != nil {
		return common.NewUserError(fmt.Sprintf("could not delete account %d", id), err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted account %d", id)))
	return err
}
