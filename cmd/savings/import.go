package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/importer"
	"github.com/Veraticus/savings-tracker/internal/model"
	"github.com/Veraticus/savings-tracker/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import balance observations from files",
	}
	cmd.AddCommand(importOFXCmd())
	return cmd
}

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Import ledger balances from OFX/QFX files",
		Long: `Import the ledger balance of every statement in OFX or QFX (Quicken) files
exported from your bank. Statements are matched to accounts by their
external ID, or failing that their account number. Dates that already have
a balance are skipped.`,
		Example: `  # Import a single file
  savings import ofx ~/Downloads/marcus_jan_2024.qfx

  # Import every QFX file in a directory
  savings import ofx ~/Downloads/*.qfx

  # Preview without saving
  savings import ofx --dry-run ~/Downloads/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	return cmd
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

// parseOFXFiles reads every file and collects its observations. Files that
// fail to parse are reported and skipped.
func parseOFXFiles(cmd *cobra.Command, files []string) ([]model.Observation, int) {
	parser := ofx.NewParser()
	bar := newProgressBar(cmd.ErrOrStderr(), len(files), "Reading statements...")

	var (
		observations []model.Observation
		failed       int
	)
	for _, path := range files {
		obs, err := parseOFXFile(cmd, parser, path)
		if err != nil {
			failed++
			slog.Warn("Failed to parse file", "file", path, "error", err)
		}
		observations = append(observations, obs...)
		_ = bar.Add(1)
	}
	return observations, failed
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]model.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(cmd.Context(), f)
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to import")
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Importing OFX files", "file_count", len(files), "dry_run", dryRun)
	observations, failed := parseOFXFiles(cmd, files)

	result, err := importer.New(a.engine, dryRun).Import(ctx, observations)
	if err != nil {
		return err
	}

	if failed > 0 {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d of %d files could not be read", failed, len(files)))); err != nil {
			return err
		}
	}
	return printImportResult(cmd.OutOrStdout(), result, dryRun, a.currency)
}

// printImportResult reports what an import added, skipped and could not match.
func printImportResult(w io.Writer, result importer.Result, dryRun bool, currency string) error {
	var b strings.Builder

	if dryRun {
		b.WriteString(cli.FormatInfo(fmt.Sprintf("Dry run: %d balances would be added", result.Skipped)))
	} else {
		b.WriteString(cli.FormatSuccess(fmt.Sprintf("Added %d balances", len(result.Added))))
		for i := range result.Added {
			added := &result.Added[i]
			fmt.Fprintf(&b, "\n  account %d  %s  %s  APR %s",
				added.AccountID, added.Date, cli.FormatMoney(added.Amount, currency), cli.FormatPercent(added.APR))
		}
	}
	if result.Duplicates > 0 {
		b.WriteString("\n")
		b.WriteString(cli.FormatInfo(fmt.Sprintf("%d observations already recorded", result.Duplicates)))
	}
	if len(result.Unmatched) > 0 {
		b.WriteString("\n")
		b.WriteString(cli.FormatWarning(fmt.Sprintf("No account linked to %s; set --external-id on the account",
			strings.Join(result.Unmatched, ", "))))
	}

	_, err := fmt.Fprintln(w, b.String())
	return err
}
