package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/schemadiff"
	"schema-migrator/internal/usecase"
)

// initCmd は既存データベースのスキーマをスナップショットとして取り込む。
func initCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Record the current schema as the baseline snapshot without generating a migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(cmd, schemaPath)
			if err != nil {
				return err
			}
			svc, err := newGenerateService()
			if err != nil {
				return err
			}
			if err := svc.Init(cmd.Context(), snapshot); err != nil {
				return fmt.Errorf("init failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", cfg.SnapshotPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Current schema as JSON (\"-\" for stdin)")
	cmd.MarkFlagRequired("schema")
	return cmd
}

// renameFlags はリネーム指定のフラグ群。
type renameFlags struct {
	tables      []string
	columns     []string
	interactive bool
}

func (f *renameFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.tables, "rename-table", nil, "Table rename as From:To (repeatable)")
	cmd.Flags().StringArrayVar(&f.columns, "rename-column", nil, "Column rename as Table.From:To (repeatable)")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "Ask about each rename candidate")
}

func (f *renameFlags) options(cmd *cobra.Command, name string) (usecase.GenerateOptions, error) {
	mappings, err := parseRenames(f.tables, f.columns)
	if err != nil {
		return usecase.GenerateOptions{}, err
	}
	opts := usecase.GenerateOptions{Name: name, Renames: mappings}
	if f.interactive {
		opts.Prompter = newStdinPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return opts, nil
}

// parseRenames は"From:To"と"Table.From:To"形式のリネーム指定を解釈する。
func parseRenames(tables, columns []string) (domain.RenameMappings, error) {
	var m domain.RenameMappings
	for _, s := range tables {
		from, to, ok := strings.Cut(s, ":")
		if !ok || from == "" || to == "" {
			return m, domain.NewValidationError("invalid --rename-table %q, expected From:To", s)
		}
		m.Tables = append(m.Tables, domain.TableRename{From: from, To: to})
	}
	for _, s := range columns {
		lhs, to, ok := strings.Cut(s, ":")
		if !ok || to == "" {
			return m, domain.NewValidationError("invalid --rename-column %q, expected Table.From:To", s)
		}
		table, from, ok := strings.Cut(lhs, ".")
		if !ok || table == "" || from == "" {
			return m, domain.NewValidationError("invalid --rename-column %q, expected Table.From:To", s)
		}
		m.Columns = append(m.Columns, domain.ColumnRename{Table: table, From: from, To: to})
	}
	return m, nil
}

// stdinPrompter は端末上でリネーム候補を1つずつ確認する。
type stdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinPrompter(in io.Reader, out io.Writer) *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(in), out: out}
}

func (p *stdinPrompter) ConfirmTableRename(r domain.TableRename) (bool, error) {
	return p.ask(fmt.Sprintf("Was table %q renamed to %q? [y/N]: ", r.From, r.To))
}

func (p *stdinPrompter) ConfirmColumnRename(r domain.ColumnRename) (bool, error) {
	return p.ask(fmt.Sprintf("Was column %q.%q renamed to %q? [y/N]: ", r.Table, r.From, r.To))
}

func (p *stdinPrompter) ask(question string) (bool, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

var _ schemadiff.RenamePrompter = (*stdinPrompter)(nil)

// diffCmd は保存済みスナップショットとの差分を表示する。何も書き込まない。
func diffCmd() *cobra.Command {
	var schemaPath string
	var renames renameFlags
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the structural difference between the saved snapshot and the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(cmd, schemaPath)
			if err != nil {
				return err
			}
			snapshot.Normalize()
			svc, err := newGenerateService()
			if err != nil {
				return err
			}
			opts, err := renames.options(cmd, "")
			if err != nil {
				return err
			}
			diff, err := svc.Diff(cmd.Context(), snapshot, opts)
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(cmd, diff)
			}
			if diff.IsEmpty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
				return nil
			}
			printDiff(cmd.OutOrStdout(), diff)

			candidates := schemadiff.Candidates(diff)
			for _, r := range candidates.Tables {
				fmt.Fprintf(cmd.OutOrStdout(), "hint: table %s may have been renamed to %s (--rename-table %s:%s)\n", r.From, r.To, r.From, r.To)
			}
			for _, r := range candidates.Columns {
				fmt.Fprintf(cmd.OutOrStdout(), "hint: column %s.%s may have been renamed to %s (--rename-column %s.%s:%s)\n",
					r.Table, r.From, r.To, r.Table, r.From, r.To)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Current schema as JSON (\"-\" for stdin)")
	cmd.MarkFlagRequired("schema")
	renames.register(cmd)
	return cmd
}

func printDiff(w io.Writer, d *domain.DiffResult) {
	for _, e := range d.AddedEnums {
		fmt.Fprintf(w, "+ enum %s (%s)\n", e.Name, strings.Join(e.Values, ", "))
	}
	for _, e := range d.AlteredEnums {
		fmt.Fprintf(w, "~ enum %s +[%s] -[%s]\n", e.Name, strings.Join(e.AddedValues, ", "), strings.Join(e.RemovedValues, ", "))
	}
	for _, e := range d.RemovedEnums {
		fmt.Fprintf(w, "- enum %s\n", e.Name)
	}
	for _, r := range d.RenamedTables {
		fmt.Fprintf(w, "> table %s -> %s\n", r.From, r.To)
	}
	for _, t := range d.AddedTables {
		fmt.Fprintf(w, "+ table %s\n", t.Name)
	}
	for _, t := range d.RemovedTables {
		fmt.Fprintf(w, "- table %s\n", t.Name)
	}
	for _, td := range d.AlteredTables {
		fmt.Fprintf(w, "~ table %s\n", td.Table)
		for _, r := range td.RenamedColumns {
			fmt.Fprintf(w, "    > column %s -> %s\n", r.From, r.To)
		}
		for _, c := range td.AddedColumns {
			fmt.Fprintf(w, "    + column %s %s\n", c.Name, c.Type)
		}
		for _, c := range td.RemovedColumns {
			fmt.Fprintf(w, "    - column %s\n", c.Name)
		}
		for _, c := range td.AlteredColumns {
			fmt.Fprintf(w, "    ~ column %s\n", c.Name)
		}
		if td.PrimaryKey != nil {
			fmt.Fprintln(w, "    ~ primary key")
		}
		for _, u := range td.AddedUniques {
			fmt.Fprintf(w, "    + unique %s\n", u.Name)
		}
		for _, u := range td.RemovedUniques {
			fmt.Fprintf(w, "    - unique %s\n", u.Name)
		}
		for _, ix := range td.AddedIndexes {
			fmt.Fprintf(w, "    + index %s\n", ix.Name)
		}
		for _, ix := range td.RemovedIndexes {
			fmt.Fprintf(w, "    - index %s\n", ix.Name)
		}
		for _, fk := range td.AddedForeignKeys {
			fmt.Fprintf(w, "    + foreign key %s\n", fk.Name)
		}
		for _, fk := range td.RemovedForeignKeys {
			fmt.Fprintf(w, "    - foreign key %s\n", fk.Name)
		}
		for _, r := range td.RenamedConstraints {
			fmt.Fprintf(w, "    > %s %s -> %s\n", strings.ReplaceAll(string(r.Kind), "_", " "), r.From, r.To)
		}
	}
}

// generateCmd は差分から新しい成果物を生成する。
func generateCmd() *cobra.Command {
	var schemaPath, name string
	var renames renameFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a migration artifact from the schema difference",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(cmd, schemaPath)
			if err != nil {
				return err
			}
			svc, err := newGenerateService()
			if err != nil {
				return err
			}
			opts, err := renames.options(cmd, name)
			if err != nil {
				return err
			}

			result, err := svc.Generate(cmd.Context(), snapshot, opts)
			if errors.Is(err, domain.ErrNoChanges) {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes detected; nothing generated.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("generate failed: %w", err)
			}

			if output == "json" {
				return printJSON(cmd, map[string]any{
					"identifier": result.Migration.Identifier,
					"checksum":   result.Migration.Checksum,
					"path":       result.Migration.FilePath,
					"operations": len(result.Plan.Up),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s (%d operation(s))\n", result.Migration.FilePath, len(result.Plan.Up))
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Current schema as JSON (\"-\" for stdin)")
	cmd.Flags().StringVar(&name, "name", "", "Migration name (required)")
	cmd.MarkFlagRequired("schema")
	cmd.MarkFlagRequired("name")
	renames.register(cmd)
	return cmd
}
