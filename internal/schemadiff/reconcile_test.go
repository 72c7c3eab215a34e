package schemadiff

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"schema-migrator/internal/domain"
)

// renameTable はスナップショットのテーブル名と、それを参照する外部キーを書き換える。
// 名前の無い制約は新しいテーブル名で再度名付けされる。
func renameTable(s *domain.Snapshot, from, to string) {
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name == from {
			t.Name = to
			if t.PrimaryKey != nil {
				t.PrimaryKey.Name = ""
			}
			for j := range t.UniqueConstraints {
				t.UniqueConstraints[j].Name = ""
			}
			for j := range t.Indexes {
				t.Indexes[j].Name = ""
			}
			for j := range t.ForeignKeys {
				t.ForeignKeys[j].Name = ""
			}
		}
		for j := range t.ForeignKeys {
			if t.ForeignKeys[j].ReferencedTable == from {
				t.ForeignKeys[j].ReferencedTable = to
			}
		}
	}
	s.Normalize()
}

func TestCandidates_PairsByPosition(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "User", "Account")

	c := Candidates(Diff(prev, curr))
	want := []domain.TableRename{{From: "User", To: "Account"}}
	if d := cmp.Diff(want, c.Tables); d != "" {
		t.Errorf("table candidates mismatch (-want +got):\n%s", d)
	}
}

func TestReconcile_TableRename(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "User", "Account")

	out, err := Reconcile(Diff(prev, curr), domain.RenameMappings{
		Tables: []domain.TableRename{{From: "User", To: "Account"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(out.AddedTables) != 0 || len(out.RemovedTables) != 0 {
		t.Errorf("expected rename to consume the add/remove pair, got added=%d removed=%d", len(out.AddedTables), len(out.RemovedTables))
	}
	if d := cmp.Diff([]domain.TableRename{{From: "User", To: "Account"}}, out.RenamedTables); d != "" {
		t.Errorf("renamed tables mismatch (-want +got):\n%s", d)
	}
	// 制約名の変化は削除+追加ではなくリネームとして残る
	if len(out.AlteredTables) != 1 || out.AlteredTables[0].Table != "Account" {
		t.Fatalf("expected only the constraint renames on Account, got %+v", out.AlteredTables)
	}
	td := out.AlteredTables[0]
	if len(td.AddedUniques)+len(td.RemovedUniques)+len(td.AddedColumns)+len(td.RemovedColumns) != 0 || td.PrimaryKey != nil {
		t.Errorf("expected no residual table changes, got %+v", td)
	}
	want := []domain.ConstraintRename{
		{Table: "Account", Kind: domain.ConstraintUnique, From: "User_email_key", To: "Account_email_key", Columns: []string{"email"}},
		{Table: "Account", Kind: domain.ConstraintPrimaryKey, From: "User_pkey", To: "Account_pkey", Columns: []string{"id"}},
	}
	if d := cmp.Diff(want, td.RenamedConstraints); d != "" {
		t.Errorf("renamed constraints mismatch (-want +got):\n%s", d)
	}
}

func TestReconcile_TableRenameKeepsExplicitConstraintNames(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	account, _ := curr.Table("User")
	account.Name = "Account"
	post, _ := curr.Table("Post")
	post.ForeignKeys[0].ReferencedTable = "Account"

	out, err := Reconcile(Diff(prev, curr), domain.RenameMappings{
		Tables: []domain.TableRename{{From: "User", To: "Account"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	// 名前が変わらなければ付け替えも不要
	if len(out.AlteredTables) != 0 {
		t.Errorf("expected no residual table changes, got %+v", out.AlteredTables)
	}
}

func TestReconcile_TableRenameKeepsRealChanges(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "User", "Account")
	account, _ := curr.Table("Account")
	account.Columns = append(account.Columns, domain.Column{Name: "name", Type: "text"})

	out, err := Reconcile(Diff(prev, curr), domain.RenameMappings{
		Tables: []domain.TableRename{{From: "User", To: "Account"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(out.AlteredTables) != 1 || out.AlteredTables[0].Table != "Account" {
		t.Fatalf("expected Account to carry the column change, got %+v", out.AlteredTables)
	}
	td := out.AlteredTables[0]
	if len(td.AddedColumns) != 1 || td.AddedColumns[0].Name != "name" {
		t.Errorf("expected name to be added, got %+v", td.AddedColumns)
	}
	if td.PrimaryKey != nil || len(td.AddedUniques) != 0 || len(td.RemovedUniques) != 0 {
		t.Errorf("expected renamed constraints to be filtered, got pk=%+v uniques=%v/%v", td.PrimaryKey, td.AddedUniques, td.RemovedUniques)
	}
}

func TestReconcile_ColumnRename(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	post, _ := curr.Table("Post")
	post.Columns[1].Name = "writerId"
	post.Indexes = []domain.Index{{Columns: []string{"writerId"}}}
	post.ForeignKeys = []domain.ForeignKey{{Columns: []string{"writerId"}, ReferencedTable: "User", ReferencedColumns: []string{"id"}}}
	curr.Normalize()

	diff := Diff(prev, curr)
	candidates := Candidates(diff)
	if d := cmp.Diff([]domain.ColumnRename{{Table: "Post", From: "authorId", To: "writerId"}}, candidates.Columns); d != "" {
		t.Fatalf("column candidates mismatch (-want +got):\n%s", d)
	}

	out, err := Reconcile(diff, domain.RenameMappings{Columns: candidates.Columns})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(out.AlteredTables) != 1 {
		t.Fatalf("expected 1 altered table, got %d", len(out.AlteredTables))
	}
	td := out.AlteredTables[0]
	if len(td.AddedColumns) != 0 || len(td.RemovedColumns) != 0 {
		t.Errorf("expected the column pair to be consumed, got added=%v removed=%v", td.AddedColumns, td.RemovedColumns)
	}
	if len(td.AddedIndexes)+len(td.RemovedIndexes)+len(td.AddedForeignKeys)+len(td.RemovedForeignKeys) != 0 {
		t.Errorf("expected index and foreign key renames to be filtered, got %+v", td)
	}
	if len(td.RenamedColumns) != 1 {
		t.Errorf("expected 1 column rename, got %+v", td.RenamedColumns)
	}
	want := []domain.ConstraintRename{
		{Table: "Post", Kind: domain.ConstraintIndex, From: "Post_authorId_idx", To: "Post_writerId_idx", Columns: []string{"writerId"}},
		{Table: "Post", Kind: domain.ConstraintForeignKey, From: "Post_authorId_fkey", To: "Post_writerId_fkey", Columns: []string{"writerId"}},
	}
	if d := cmp.Diff(want, td.RenamedConstraints); d != "" {
		t.Errorf("renamed constraints mismatch (-want +got):\n%s", d)
	}
}

func TestReconcile_ColumnRenameWithTypeChange(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	post, _ := curr.Table("Post")
	post.Columns[2] = domain.Column{Name: "headline", Type: "varchar(200)", NotNull: true}

	out, err := Reconcile(Diff(prev, curr), domain.RenameMappings{
		Columns: []domain.ColumnRename{{Table: "Post", From: "title", To: "headline"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	td := out.AlteredTables[0]
	if len(td.AlteredColumns) != 1 {
		t.Fatalf("expected the type change to survive the rename, got %+v", td.AlteredColumns)
	}
	ch := td.AlteredColumns[0]
	if ch.Name != "headline" || ch.From.Type != "text" || ch.To.Type != "varchar(200)" {
		t.Errorf("unexpected change %+v", ch)
	}
}

func TestReconcile_UnmatchedMappingIsRejected(t *testing.T) {
	diff := Diff(blogSchema(), blogSchema())

	_, err := Reconcile(diff, domain.RenameMappings{Tables: []domain.TableRename{{From: "Nope", To: "Other"}}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "User", "Account")
	diff := Diff(prev, curr)

	if _, err := Reconcile(diff, domain.RenameMappings{Tables: []domain.TableRename{{From: "User", To: "Account"}}}); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(diff.AddedTables) != 1 || len(diff.RemovedTables) != 1 {
		t.Error("input diff must be left untouched")
	}
}

// scriptedPrompter は決められた回答を返すRenamePrompter。
type scriptedPrompter struct {
	tables   bool
	columns  bool
	askedFor []string
}

func (p *scriptedPrompter) ConfirmTableRename(c domain.TableRename) (bool, error) {
	p.askedFor = append(p.askedFor, "table:"+c.From+"->"+c.To)
	return p.tables, nil
}

func (p *scriptedPrompter) ConfirmColumnRename(c domain.ColumnRename) (bool, error) {
	p.askedFor = append(p.askedFor, "column:"+c.Table+"."+c.From+"->"+c.To)
	return p.columns, nil
}

func TestResolveRenames_ConfirmedAndDeclined(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "User", "Account")

	// 承認した場合はリネームになる
	p := &scriptedPrompter{tables: true}
	out, err := ResolveRenames(Diff(prev, curr), p)
	if err != nil {
		t.Fatalf("ResolveRenames failed: %v", err)
	}
	if len(out.RenamedTables) != 1 {
		t.Errorf("expected rename to be applied, got %+v", out.RenamedTables)
	}

	// 拒否した場合は削除+追加のまま
	p = &scriptedPrompter{tables: false}
	out, err = ResolveRenames(Diff(prev, curr), p)
	if err != nil {
		t.Fatalf("ResolveRenames failed: %v", err)
	}
	if len(out.RenamedTables) != 0 || len(out.AddedTables) != 1 || len(out.RemovedTables) != 1 {
		t.Errorf("expected drop and create, got %+v", out)
	}
	if d := cmp.Diff([]string{"table:User->Account"}, p.askedFor); d != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", d)
	}
}

func TestResolveRenames_ColumnsAfterTables(t *testing.T) {
	prev := blogSchema()
	curr := blogSchema()
	renameTable(curr, "Post", "Article")
	article, _ := curr.Table("Article")
	article.Columns[2].Name = "headline"

	p := &scriptedPrompter{tables: true, columns: true}
	out, err := ResolveRenames(Diff(prev, curr), p)
	if err != nil {
		t.Fatalf("ResolveRenames failed: %v", err)
	}
	want := []string{"table:Post->Article", "column:Article.title->headline"}
	if d := cmp.Diff(want, p.askedFor); d != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", d)
	}
	if len(out.AlteredTables) != 1 || len(out.AlteredTables[0].RenamedColumns) != 1 {
		t.Fatalf("expected the column rename on Article, got %+v", out.AlteredTables)
	}
}
