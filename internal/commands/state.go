package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fundboard/internal/cli"
	"fundboard/internal/storage"
)

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted change-detection state",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup(false, false)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshot, change time and history size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.showState(cmd.Context(), cmd.OutOrStdout())
		},
	}

	var withHistory bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored snapshot so the next cycle adopts a new baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.resetState(cmd.Context(), cmd.OutOrStdout(), withHistory)
		},
	}
	reset.Flags().BoolVar(&withHistory, "history", false, "Also delete the change history")

	cmd.AddCommand(show, reset)
	return cmd
}

func (a *app) showState(ctx context.Context, w io.Writer) error {
	path := a.cfg.SQLiteDBPath
	repo, err := cli.InitSQLite(a.logger, path)
	if err != nil {
		return err
	}
	defer repo.Close()

	st, err := repo.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	count, err := repo.CountHistory(ctx)
	if err != nil {
		return fmt.Errorf("count history: %w", err)
	}
	theme, err := repo.Theme(ctx)
	if err != nil {
		return fmt.Errorf("load theme: %w", err)
	}
	version, dirty, err := storage.SchemaVersion(path)
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}

	snapshot := st.LastSnapshot
	if snapshot == "" {
		snapshot = "(none, next cycle sets the baseline)"
	}
	changed := "(never)"
	if st.HasChange {
		changed = st.LastChange.In(a.cfg.Location()).Format(time.RFC3339)
	}

	fmt.Fprintf(w, "Database: %s (schema v%d", path, version)
	if dirty {
		fmt.Fprint(w, ", dirty")
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "  %-14s %s\n", "Snapshot", snapshot)
	fmt.Fprintf(w, "  %-14s %s\n", "Last total", st.LastTotal.StringFixed(2))
	fmt.Fprintf(w, "  %-14s %s\n", "Last change", changed)
	fmt.Fprintf(w, "  %-14s %d\n", "History", count)
	fmt.Fprintf(w, "  %-14s %s\n", "Theme", theme)
	return nil
}

func (a *app) resetState(ctx context.Context, w io.Writer, withHistory bool) error {
	repo, err := cli.InitSQLite(a.logger, a.cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.ResetState(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintln(w, "Change-detection state cleared.")

	if withHistory {
		if err := repo.ClearHistory(ctx); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		fmt.Fprintln(w, "Change history cleared.")
	}
	return nil
}
