package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/common"
	"github.com/Veraticus/savings-tracker/internal/engine"
)

func balancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "balances",
		Aliases: []string{"balance", "bal"},
		Short:   "Record and manage balance observations",
		Long: `Record point-in-time balances of an account. Every change re-derives the
days since the previous check and the realised APR of the affected
observations.`,
	}

	cmd.AddCommand(balancesAddCmd())
	cmd.AddCommand(balancesListCmd())
	cmd.AddCommand(balancesEditCmd())
	cmd.AddCommand(balancesDeleteCmd())

	return cmd
}

func balancesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <account-id>",
		Short: "Record a balance observation",
		Example: `  savings balances add 3 --amount 1100
  savings balances add 3 --date 2024-06-30 --amount 5250.10 --topup 250`,
		Args: cobra.ExactArgs(1),
		RunE: runBalancesAdd,
	}
	cmd.Flags().String("date", "today", "Observation date (YYYY-MM-DD)")
	cmd.Flags().String("amount", "", "Balance on that date")
	cmd.Flags().String("topup", "0", "Funds added since the previous observation")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runBalancesAdd(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}

	dateStr, _ := cmd.Flags().GetString("date")
	amountStr, _ := cmd.Flags().GetString("amount")
	topupStr, _ := cmd.Flags().GetString("topup")

	date, err := parseDate(dateStr)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	topup, err := parseAmount(topupStr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.engine.AddBalance(ctx, id, date, amount, topup)
	if err != nil {
		return common.NewUserError("could not record balance", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded %s on %s (APR %s) as %s",
		cli.FormatMoney(b.Amount, a.currency), b.Date, cli.FormatPercent(b.APR), b.ID)))
	return err
}

func balancesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list <account-id>",
		Aliases: []string{"ls"},
		Short:   "List an account's observations in date order",
		Args:    cobra.ExactArgs(1),
		RunE:    runBalancesList,
	}
}

func runBalancesList(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, cli.FormatTitle(snap.Account.DisplayName())); err != nil {
		return err
	}
	if len(snap.Balances) == 0 {
		_, err = fmt.Fprintln(out, cli.FormatInfo("No balances recorded yet."))
		return err
	}

	header := []string{"Date", "Balance", "Topup", "Days", "APR", "ID"}
	rows := make([][]string, 0, len(snap.Balances))
	for i := range snap.Balances {
		b := &snap.Balances[i]
		rows = append(rows, []string{
			b.Date.String(),
			cli.FormatMoney(b.Amount, a.currency),
			cli.FormatMoney(b.Topup, a.currency),
			cli.FormatDays(b.DaysSincePredecessor),
			cli.FormatPercent(b.APR),
			b.ID,
		})
	}

	_, err = fmt.Fprintln(out, cli.RenderTable(header, rows))
	return err
}

func balancesEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <balance-id>",
		Short: "Edit an observation's date, amount or topup",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalancesEdit,
	}
	cmd.Flags().String("date", "", "New observation date (YYYY-MM-DD)")
	cmd.Flags().String("amount", "", "New balance")
	cmd.Flags().String("topup", "", "New topup")
	return cmd
}

// balanceEdit builds an edit from the flags that were given.
func balanceEdit(cmd *cobra.Command) (engine.BalanceEdit, error) {
	var edit engine.BalanceEdit
	flags := cmd.Flags()

	if flags.Changed("date") {
		v, _ := flags.GetString("date")
		d, err := parseDate(v)
		if err != nil {
			return edit, err
		}
		edit.Date = &d
	}
	if flags.Changed("amount") {
		v, _ := flags.GetString("amount")
		d, err := parseAmount(v)
		if err != nil {
			return edit, err
		}
		edit.Amount = &d
	}
	if flags.Changed("topup") {
		v, _ := flags.GetString("topup")
		d, err := parseAmount(v)
		if err != nil {
			return edit, err
		}
		edit.Topup = &d
	}

	if edit.Date == nil && edit.Amount == nil && edit.Topup == nil {
		return edit, common.NewUserError("nothing to change, pass --date, --amount or --topup", nil)
	}
	return edit, nil
}

func runBalancesEdit(cmd *cobra.Command, args []string) error {
	edit, err := balanceEdit(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	accountID, err := a.engine.LocateBalance(ctx, args[0])
	if err != nil {
		return common.NewUserError(fmt.Sprintf("balance %s not found", args[0]), err)
	}

	b, err := a.engine.UpdateBalance(ctx, accountID, args[0], edit)
	if err != nil {
		return common.NewUserError("could not update balance", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated %s: %s on %s (APR %s)",
		b.ID, cli.FormatMoney(b.Amount, a.currency), b.Date, cli.FormatPercent(b.APR))))
	return err
}

func balancesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <balance-id>",
		Short: "Delete an observation",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalancesDelete,
	}
}

func runBalancesDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	accountID, err := a.engine.LocateBalance(ctx, args[0])
	if err != nil {
		return common.NewUserError(fmt.Sprintf("balance %s not found", args[0]), err)
	}
	if err := a.engine.DeleteBalance(ctx, accountID, args[0]); err != nil {
		return common.NewUserError("could not delete balance", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted balance "+args[0]))
	return err
}
