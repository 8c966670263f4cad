package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fundboard/internal/cli"
	"fundboard/internal/refresh"
)

func newCheckCmd(a *app) *cobra.Command {
	var commit bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one refresh cycle and print the dashboard values",
		Long: "Fetch the spreadsheet once and compare it with the stored snapshot.\n" +
			"Nothing is written unless --commit is given.",
		PreRunE: func(*cobra.Command, []string) error {
			return a.setup(true, false)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.check(cmd.Context(), cmd.OutOrStdout(), commit)
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "Persist the new snapshot and history like the service would")
	return cmd
}

func (a *app) check(ctx context.Context, w io.Writer, commit bool) error {
	cfg := a.cfg

	repo, err := cli.InitSQLite(a.logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	src, err := cli.NewSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init %s source: %w", cfg.DataSource, err)
	}

	orch := refresh.New(src, repo, refresh.Options{Logger: a.logger, DryRun: !commit})
	out, err := orch.Refresh(ctx)
	if err != nil {
		return err
	}
	if out == nil {
		fmt.Fprintln(w, "The spreadsheet is empty; nothing to compare.")
		return nil
	}

	d := out.Display(cfg.Location())
	row := func(label, value string) { fmt.Fprintf(w, "  %-18s %s\n", label, value) }

	fmt.Fprintf(w, "Source: %s (%d rows)\n", out.Source, out.Rows)
	row("Collected", d.TotalText+" $")
	row("Goal", d.GoalText)
	row("Remaining", d.RemainingText)
	row("Expenses", d.ExpensesText)
	row("Progress", fmt.Sprintf("%.1f %%", d.Percentage))
	if d.AsOfDate != "" {
		row("As of", d.AsOfDate)
	}
	row("Snapshot", out.Snapshot)
	row("Changed", fmt.Sprintf("%t", out.Changed))
	row("Celebrate", fmt.Sprintf("%t", out.Celebrate))
	if d.LastUpdateText != "" {
		row("Last update", d.LastUpdateText)
	}
	if !commit {
		fmt.Fprintln(w, "(dry run, state not saved)")
	}
	return nil
}
