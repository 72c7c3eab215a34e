package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/middleware"
	"schema-migrator/internal/usecase"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Apply, inspect and maintain migration artifacts against the target database",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migratePreviewCmd())
	cmd.AddCommand(migrateMarkAppliedCmd())
	cmd.AddCommand(migrateRehashCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Validate log, artifacts and database, then apply all pending migrations in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := usecase.ApplyOptions{}
			if !yes {
				opts.Confirm = confirmPending(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runApply(cmd, opts, "APPLY_MIGRATIONS")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking for confirmation")
	return cmd
}

func migrateMarkAppliedCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "mark-applied",
		Short: "Record pending migrations as applied without executing them",
		Long: "Verify checksums and record every pending migration as applied without running its SQL.\n" +
			"The database is trusted to already match the artifacts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := usecase.ApplyOptions{MarkApplied: true}
			if !yes {
				opts.Confirm = confirmPending(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runApply(cmd, opts, "MARK_APPLIED")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Proceed without asking for confirmation")
	return cmd
}

func runApply(cmd *cobra.Command, opts usecase.ApplyOptions, operation string) error {
	ctx := cmd.Context()
	svc, closeDB, err := newMigrationService()
	if err != nil {
		return err
	}
	defer closeDB()

	result, err := svc.ApplyMigrations(ctx, opts)
	if result != nil {
		for _, m := range result.Applied {
			middleware.WriteAuditLog(ctx, operation, m.Identifier, middleware.ResultSuccess)
		}
	}
	if errors.Is(err, domain.ErrApplyCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled; nothing was applied.")
		return nil
	}
	if err != nil {
		middleware.WriteAuditLog(ctx, operation, failedIdentifier(err), middleware.ResultFailed)
		printViolations(cmd.ErrOrStderr(), err)
		return fmt.Errorf("migration failed: %w", err)
	}

	if output == "json" {
		return printJSON(cmd, result)
	}
	printUnlogged(cmd.ErrOrStderr(), result.Unlogged)
	verb := "Applied"
	if result.MarkedApplied {
		verb = "Marked"
	}
	if len(result.Applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d migration(s) successfully.\n", verb, len(result.Applied))
	}
	return nil
}

func failedIdentifier(err error) string {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Identifier
	}
	var tampered *domain.ChecksumMismatchError
	if errors.As(err, &tampered) {
		return tampered.Identifier
	}
	return ""
}

func printUnlogged(w io.Writer, unlogged []string) {
	for _, id := range unlogged {
		fmt.Fprintf(w, "Skipped %s: artifact is not in the migration log.\n", id)
	}
}

func printViolations(w io.Writer, err error) {
	var coherence *domain.CoherenceError
	if !errors.As(err, &coherence) {
		return
	}
	fmt.Fprintln(w, "Migration state is not coherent:")
	for _, v := range coherence.Violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}
}

// confirmPending は未適用一覧を表示し、続行してよいかを尋ねる。
func confirmPending(in io.Reader, out io.Writer) usecase.ConfirmFunc {
	return func(ctx context.Context, pending []*domain.Migration) (bool, error) {
		fmt.Fprintf(out, "%d pending migration(s):\n", len(pending))
		for _, m := range pending {
			fmt.Fprintf(out, "  %s\n", m.Identifier)
		}
		fmt.Fprint(out, "Proceed? [y/N]: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := newMigrationService()
			if err != nil {
				return err
			}
			defer closeDB()

			migrations, err := svc.GetMigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			if output == "json" {
				return printJSON(cmd, migrations)
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "IDENTIFIER\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "----------\t------\t----------")
			for _, m := range migrations {
				appliedAt := "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				status := string(domain.MigrationStatusPending)
				if m.Status == domain.MigrationStatusApplied {
					status = string(domain.MigrationStatusApplied)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Identifier, status, appliedAt)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		},
	}
}

func migratePreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show pending migrations and their SQL without changing the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := newMigrationService()
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := svc.Preview(cmd.Context())
			if err != nil {
				printViolations(cmd.ErrOrStderr(), err)
				return fmt.Errorf("preview failed: %w", err)
			}
			if output == "json" {
				return printJSON(cmd, result)
			}
			printUnlogged(cmd.ErrOrStderr(), result.Unlogged)
			if len(result.Pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
				return nil
			}
			for _, m := range result.Pending {
				fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n%s\n", m.Identifier, strings.TrimRight(m.SQL, "\n"))
			}
			return nil
		},
	}
}

func migrateRehashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rehash",
		Short: "Recompute logged checksums from the artifacts on disk",
		Long: "Accept deliberate edits to migration artifacts by recomputing their checksums in the log.\n" +
			"Migrations already applied with the old checksum will then fail validation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newGenerateService()
			if err != nil {
				return err
			}
			changed, err := svc.Rehash(cmd.Context())
			if err != nil {
				return fmt.Errorf("rehash failed: %w", err)
			}
			if output == "json" {
				return printJSON(cmd, map[string]any{"changed": changed})
			}
			if len(changed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All checksums are up to date.")
				return nil
			}
			for _, id := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "rehashed %s\n", id)
			}
			return nil
		},
	}
}
