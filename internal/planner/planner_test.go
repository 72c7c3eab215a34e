package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"schema-migrator/internal/domain"
	"schema-migrator/internal/schemadiff"
)

func strPtr(s string) *string { return &s }

func userTable() domain.Table {
	return domain.Table{
		Name: "User",
		Columns: []domain.Column{
			{Name: "id", Type: "integer", NotNull: true, IsAutoincrement: true},
			{Name: "email", Type: "text", NotNull: true},
			{Name: "role", Type: "Role", NotNull: true, IsEnum: true, Default: strPtr("'USER'")},
		},
		PrimaryKey:        &domain.PrimaryKey{Columns: []string{"id"}},
		UniqueConstraints: []domain.UniqueConstraint{{Columns: []string{"email"}}},
	}
}

func postTable() domain.Table {
	return domain.Table{
		Name: "Post",
		Columns: []domain.Column{
			{Name: "id", Type: "integer", NotNull: true, IsAutoincrement: true},
			{Name: "authorId", Type: "integer", NotNull: true},
			{Name: "title", Type: "text", NotNull: true},
		},
		PrimaryKey:  &domain.PrimaryKey{Columns: []string{"id"}},
		Indexes:     []domain.Index{{Columns: []string{"authorId"}}},
		ForeignKeys: []domain.ForeignKey{{Columns: []string{"authorId"}, ReferencedTable: "User", ReferencedColumns: []string{"id"}}},
	}
}

func snapshot(tables ...domain.Table) *domain.Snapshot {
	s := &domain.Snapshot{
		Enums:  []domain.Enum{{Name: "Role", Values: []string{"USER", "ADMIN"}}},
		Tables: tables,
	}
	s.Normalize()
	return s
}

func kinds(ops []domain.Operation) []domain.OperationKind {
	out := make([]domain.OperationKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func indexOf(ops []domain.Operation, kind domain.OperationKind, table string) int {
	for i, op := range ops {
		if op.Kind == kind && op.Table == table {
			return i
		}
	}
	return -1
}

func TestPlan_EmptyDiff(t *testing.T) {
	s := snapshot(userTable(), postTable())
	plan, err := Plan(schemadiff.Diff(s, snapshot(userTable(), postTable())), domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !plan.IsEmpty() || len(plan.Down) != 0 {
		t.Errorf("expected empty plan, got up=%v down=%v", kinds(plan.Up), kinds(plan.Down))
	}
}

func TestPlan_UnknownDialect(t *testing.T) {
	if _, err := Plan(&domain.DiffResult{}, domain.Dialect("oracle")); err == nil {
		t.Error("expected an error for an unknown dialect")
	}
}

func TestPlan_DialectAlias(t *testing.T) {
	diff := schemadiff.Diff(nil, snapshot(userTable()))

	plan, err := Plan(diff, domain.Dialect("postgresql"))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Dialect != domain.DialectPostgres {
		t.Errorf("expected dialect %s, got %s", domain.DialectPostgres, plan.Dialect)
	}
	// 別名でもネイティブの列挙型として扱われる
	if len(plan.Up) == 0 || plan.Up[0].Kind != domain.OpCreateEnum {
		t.Fatalf("expected the enum to be created first, got %v", kinds(plan.Up))
	}
	for _, op := range plan.Up {
		if op.EnumValues != nil {
			t.Errorf("expected no inlined enum values for %s, got %v", op.Kind, op.EnumValues)
		}
	}
}

func TestPlan_CreatesReferencedTableFirst(t *testing.T) {
	// Postを先に並べても、参照先のUserが先に作られる
	diff := schemadiff.Diff(nil, snapshot(postTable(), userTable()))

	plan, err := Plan(diff, domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []domain.OperationKind{
		domain.OpCreateEnum,
		domain.OpCreateTable, // User
		domain.OpCreateTable, // Post
		domain.OpAddUnique,
		domain.OpCreateIndex,
		domain.OpAddForeignKey,
	}
	if d := cmp.Diff(want, kinds(plan.Up)); d != "" {
		t.Fatalf("operation kinds mismatch (-want +got):\n%s", d)
	}
	if plan.Up[1].Table != "User" || plan.Up[2].Table != "Post" {
		t.Errorf("expected User before Post, got %s, %s", plan.Up[1].Table, plan.Up[2].Table)
	}
}

func TestPlan_SQLiteInlinesForeignKeys(t *testing.T) {
	diff := schemadiff.Diff(nil, snapshot(userTable(), postTable()))

	plan, err := Plan(diff, domain.DialectSQLite)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if i := indexOf(plan.Up, domain.OpAddForeignKey, "Post"); i >= 0 {
		t.Errorf("expected no separate foreign key operation, found at %d", i)
	}
	i := indexOf(plan.Up, domain.OpCreateTable, "Post")
	if i < 0 || !plan.Up[i].InlineForeignKeys {
		t.Errorf("expected Post to be created with inline foreign keys")
	}
	// 列挙型を持たない方言では値の一覧が操作に添付される
	if got := plan.Up[indexOf(plan.Up, domain.OpCreateTable, "User")].EnumValues["Role"]; len(got) != 2 {
		t.Errorf("expected Role values to be attached, got %v", got)
	}
}

func TestPlan_DropsReferrersBeforeReferencedTables(t *testing.T) {
	diff := schemadiff.Diff(snapshot(userTable(), postTable()), &domain.Snapshot{
		Enums: []domain.Enum{{Name: "Role", Values: []string{"USER", "ADMIN"}}},
	})

	plan, err := Plan(diff, domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	post := indexOf(plan.Up, domain.OpDropTable, "Post")
	user := indexOf(plan.Up, domain.OpDropTable, "User")
	if post < 0 || user < 0 || post > user {
		t.Errorf("expected Post to be dropped before User, got up=%v", kinds(plan.Up))
	}
}

func TestPlan_DestructiveBeforeAdditive(t *testing.T) {
	prev := snapshot(userTable(), postTable())
	currPost := postTable()
	// authorIdを削除し、代わりにownerIdを参照に使う
	currPost.Columns = []domain.Column{
		currPost.Columns[0],
		{Name: "ownerId", Type: "integer", NotNull: true},
		currPost.Columns[2],
	}
	currPost.Indexes = []domain.Index{{Columns: []string{"ownerId"}}}
	currPost.ForeignKeys = []domain.ForeignKey{{Columns: []string{"ownerId"}, ReferencedTable: "User", ReferencedColumns: []string{"id"}}}
	curr := snapshot(userTable(), currPost)

	plan, err := Plan(schemadiff.Diff(prev, curr), domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	dropFK := indexOf(plan.Up, domain.OpDropForeignKey, "Post")
	dropIdx := indexOf(plan.Up, domain.OpDropIndex, "Post")
	addCol := indexOf(plan.Up, domain.OpAddColumn, "Post")
	dropCol := indexOf(plan.Up, domain.OpDropColumn, "Post")
	addIdx := indexOf(plan.Up, domain.OpCreateIndex, "Post")
	addFK := indexOf(plan.Up, domain.OpAddForeignKey, "Post")

	if !(dropFK < dropIdx && dropIdx < addCol && addCol < dropCol && dropCol < addIdx && addIdx < addFK) {
		t.Errorf("unexpected order: %v", kinds(plan.Up))
	}
}

func TestPlan_AlterColumnEmitsOnlyChangedAttributes(t *testing.T) {
	prev := snapshot(userTable())
	u := userTable()
	u.Columns[1].Type = "varchar(320)"
	u.Columns[1].Default = strPtr("''")
	curr := snapshot(u)

	plan, err := Plan(schemadiff.Diff(prev, curr), domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []domain.OperationKind{domain.OpAlterColumnType, domain.OpAlterColumnDefault}
	if d := cmp.Diff(want, kinds(plan.Up)); d != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", d)
	}
	// 逆操作は逆順で元の状態に戻す
	wantDown := []domain.OperationKind{domain.OpAlterColumnDefault, domain.OpAlterColumnType}
	if d := cmp.Diff(wantDown, kinds(plan.Down)); d != "" {
		t.Fatalf("down kinds mismatch (-want +got):\n%s", d)
	}
	if plan.Down[1].Column.Type != "text" {
		t.Errorf("expected type to revert to text, got %s", plan.Down[1].Column.Type)
	}
}

func TestPlan_RemovedEnumValueIsWarning(t *testing.T) {
	prev := snapshot(userTable())
	curr := snapshot(userTable())
	curr.Enums[0].Values = []string{"ADMIN", "EDITOR"} // USERを削除しEDITORを追加

	plan, err := Plan(schemadiff.Diff(prev, curr), domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []domain.OperationKind{domain.OpAddEnumValue, domain.OpWarning}
	if d := cmp.Diff(want, kinds(plan.Up)); d != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", d)
	}
	if plan.Up[0].Value != "EDITOR" {
		t.Errorf("expected EDITOR to be added, got %q", plan.Up[0].Value)
	}
}

func TestPlan_RenamesComeFirst(t *testing.T) {
	prev := snapshot(userTable(), postTable())
	p := postTable()
	p.Name = "Article"
	p.Columns = append(p.Columns, domain.Column{Name: "body", Type: "text"})
	curr := snapshot(userTable(), p)

	diff, err := schemadiff.Reconcile(schemadiff.Diff(prev, curr), domain.RenameMappings{
		Tables: []domain.TableRename{{From: "Post", To: "Article"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	plan, err := Plan(diff, domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []domain.OperationKind{
		domain.OpRenameTable,
		domain.OpRenameConstraint, // Article_authorId_idx
		domain.OpRenameConstraint, // Article_authorId_fkey
		domain.OpRenameConstraint, // Article_pkey
		domain.OpAddColumn,
	}
	if d := cmp.Diff(want, kinds(plan.Up)); d != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", d)
	}
	if plan.Up[4].Table != "Article" {
		t.Errorf("expected column to be added to the renamed table, got %s", plan.Up[4].Table)
	}
}

func TestPlan_ConstraintNamesFollowTableRename(t *testing.T) {
	prev := snapshot(userTable(), postTable())
	p := postTable()
	p.Name = "Article"
	curr := snapshot(userTable(), p)

	diff, err := schemadiff.Reconcile(schemadiff.Diff(prev, curr), domain.RenameMappings{
		Tables: []domain.TableRename{{From: "Post", To: "Article"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	plan, err := Plan(diff, domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	sim := newSimulator(prev)
	for _, op := range plan.Up {
		sim.apply(t, op)
	}
	if d := cmp.Diff(curr, sim.snapshot(), ordered); d != "" {
		t.Fatalf("up did not reach the current constraint names (-want +got):\n%s", d)
	}
	for _, op := range plan.Down {
		sim.apply(t, op)
	}
	if d := cmp.Diff(prev, sim.snapshot(), ordered); d != "" {
		t.Fatalf("down did not restore the previous constraint names (-want +got):\n%s", d)
	}
}

func TestSortByDependency_CycleFallsBackToInputOrder(t *testing.T) {
	a := domain.Table{Name: "A", ForeignKeys: []domain.ForeignKey{{Name: "a_b", ReferencedTable: "B"}}}
	b := domain.Table{Name: "B", ForeignKeys: []domain.ForeignKey{{Name: "b_a", ReferencedTable: "A"}}}
	c := domain.Table{Name: "C", ForeignKeys: []domain.ForeignKey{{Name: "c_c", ReferencedTable: "C"}}}

	got := sortByDependency([]domain.Table{a, b, c})
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	// Cは自己参照のみで即座に処理可能、AとBの循環は元の順序で解消する
	if d := cmp.Diff([]string{"C", "A", "B"}, names); d != "" {
		t.Errorf("order mismatch (-want +got):\n%s", d)
	}
}

// simulator は操作列をスナップショットに適用する最小限のモデル。
// リネームに伴う参照の追従はデータベースと同じように振る舞う。
type simulator struct {
	tables map[string]*domain.Table
	enums  map[string][]string
}

func newSimulator(s *domain.Snapshot) *simulator {
	sim := &simulator{tables: map[string]*domain.Table{}, enums: map[string][]string{}}
	for _, e := range s.Enums {
		sim.enums[e.Name] = append([]string(nil), e.Values...)
	}
	for _, t := range s.Tables {
		t := copyTable(t)
		sim.tables[t.Name] = &t
	}
	return sim
}

func copyTable(t domain.Table) domain.Table {
	out := t
	out.Columns = append([]domain.Column(nil), t.Columns...)
	if t.PrimaryKey != nil {
		pk := *t.PrimaryKey
		out.PrimaryKey = &pk
	}
	out.UniqueConstraints = append([]domain.UniqueConstraint(nil), t.UniqueConstraints...)
	out.Indexes = append([]domain.Index(nil), t.Indexes...)
	out.ForeignKeys = append([]domain.ForeignKey(nil), t.ForeignKeys...)
	return out
}

func rename(cols []string, from, to string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c == from {
			c = to
		}
		out[i] = c
	}
	return out
}

func (s *simulator) apply(t *testing.T, op domain.Operation) {
	t.Helper()
	tbl := s.tables[op.Table]
	switch op.Kind {
	case domain.OpWarning:
	case domain.OpCreateEnum:
		s.enums[op.Enum.Name] = append([]string(nil), op.Enum.Values...)
	case domain.OpAddEnumValue:
		s.enums[op.Enum.Name] = append(s.enums[op.Enum.Name], op.Value)
	case domain.OpDropEnum:
		delete(s.enums, op.Enum.Name)
	case domain.OpRenameTable:
		moved := s.tables[op.From]
		delete(s.tables, op.From)
		moved.Name = op.To
		s.tables[op.To] = moved
		for _, other := range s.tables {
			for i := range other.ForeignKeys {
				if other.ForeignKeys[i].ReferencedTable == op.From {
					other.ForeignKeys[i].ReferencedTable = op.To
				}
			}
		}
	case domain.OpRenameColumn:
		for i := range tbl.Columns {
			if tbl.Columns[i].Name == op.From {
				tbl.Columns[i].Name = op.To
			}
		}
		if tbl.PrimaryKey != nil {
			tbl.PrimaryKey.Columns = rename(tbl.PrimaryKey.Columns, op.From, op.To)
		}
		for i := range tbl.UniqueConstraints {
			tbl.UniqueConstraints[i].Columns = rename(tbl.UniqueConstraints[i].Columns, op.From, op.To)
		}
		for i := range tbl.Indexes {
			tbl.Indexes[i].Columns = rename(tbl.Indexes[i].Columns, op.From, op.To)
		}
		for _, other := range s.tables {
			for i := range other.ForeignKeys {
				fk := &other.ForeignKeys[i]
				if other == tbl {
					fk.Columns = rename(fk.Columns, op.From, op.To)
				}
				if fk.ReferencedTable == op.Table {
					fk.ReferencedColumns = rename(fk.ReferencedColumns, op.From, op.To)
				}
			}
		}
	case domain.OpRenameConstraint:
		r := op.Rename
		found := false
		switch r.Kind {
		case domain.ConstraintPrimaryKey:
			if tbl.PrimaryKey != nil && tbl.PrimaryKey.Name == r.From {
				tbl.PrimaryKey.Name, found = r.To, true
			}
		case domain.ConstraintUnique:
			for i := range tbl.UniqueConstraints {
				if tbl.UniqueConstraints[i].Name == r.From {
					tbl.UniqueConstraints[i].Name, found = r.To, true
				}
			}
		case domain.ConstraintIndex:
			for i := range tbl.Indexes {
				if tbl.Indexes[i].Name == r.From {
					tbl.Indexes[i].Name, found = r.To, true
				}
			}
		case domain.ConstraintForeignKey:
			for i := range tbl.ForeignKeys {
				if tbl.ForeignKeys[i].Name == r.From {
					tbl.ForeignKeys[i].Name, found = r.To, true
				}
			}
		}
		if !found {
			t.Fatalf("rename of missing %s %s on %s", r.Kind, r.From, op.Table)
		}
	case domain.OpCreateTable:
		created := copyTable(*op.TableDef)
		created.UniqueConstraints = nil
		created.Indexes = nil
		if !op.InlineForeignKeys {
			created.ForeignKeys = nil
		}
		s.tables[created.Name] = &created
	case domain.OpDropTable:
		delete(s.tables, op.Table)
	case domain.OpAddColumn:
		tbl.Columns = append(tbl.Columns, *op.Column)
	case domain.OpDropColumn:
		kept := tbl.Columns[:0]
		for _, c := range tbl.Columns {
			if c.Name != op.Column.Name {
				kept = append(kept, c)
			}
		}
		tbl.Columns = kept
	case domain.OpAlterColumnType, domain.OpAlterColumnNull, domain.OpAlterColumnDefault:
		c, ok := tbl.Column(op.Column.Name)
		if !ok {
			t.Fatalf("alter of missing column %s.%s", op.Table, op.Column.Name)
		}
		if !c.Equal(*op.OldColumn) {
			t.Fatalf("alter of %s.%s from unexpected state %+v", op.Table, c.Name, *c)
		}
		*c = *op.Column
	case domain.OpAddPrimaryKey:
		pk := *op.PrimaryKey
		tbl.PrimaryKey = &pk
	case domain.OpDropPrimaryKey:
		tbl.PrimaryKey = nil
	case domain.OpAddUnique:
		tbl.UniqueConstraints = append(tbl.UniqueConstraints, *op.Unique)
	case domain.OpDropUnique:
		tbl.UniqueConstraints = removeNamed(tbl.UniqueConstraints, op.Unique.Name, func(u domain.UniqueConstraint) string { return u.Name })
	case domain.OpCreateIndex:
		tbl.Indexes = append(tbl.Indexes, *op.Index)
	case domain.OpDropIndex:
		tbl.Indexes = removeNamed(tbl.Indexes, op.Index.Name, func(ix domain.Index) string { return ix.Name })
	case domain.OpAddForeignKey:
		tbl.ForeignKeys = append(tbl.ForeignKeys, *op.ForeignKey)
	case domain.OpDropForeignKey:
		tbl.ForeignKeys = removeNamed(tbl.ForeignKeys, op.ForeignKey.Name, func(fk domain.ForeignKey) string { return fk.Name })
	default:
		t.Fatalf("simulator does not support %s", op.Kind)
	}
}

func removeNamed[T any](items []T, name string, nameOf func(T) string) []T {
	var out []T
	for _, it := range items {
		if nameOf(it) != name {
			out = append(out, it)
		}
	}
	return out
}

func (s *simulator) snapshot() *domain.Snapshot {
	out := &domain.Snapshot{}
	for name, values := range s.enums {
		out.Enums = append(out.Enums, domain.Enum{Name: name, Values: values})
	}
	for _, t := range s.tables {
		out.Tables = append(out.Tables, *t)
	}
	return out
}

// ordered は要素の順序に依存しない比較オプション。
var ordered = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b domain.Table) bool { return a.Name < b.Name }),
	cmpopts.SortSlices(func(a, b domain.Enum) bool { return a.Name < b.Name }),
	cmpopts.SortSlices(func(a, b domain.Column) bool { return a.Name < b.Name }),
	cmpopts.SortSlices(func(a, b domain.UniqueConstraint) bool { return a.Name < b.Name }),
	cmpopts.SortSlices(func(a, b domain.Index) bool { return a.Name < b.Name }),
	cmpopts.SortSlices(func(a, b domain.ForeignKey) bool { return a.Name < b.Name }),
}

// structural は順序と制約名に依存しない比較オプション。
// 主キーの変更などで再作成された制約は生成時の名前になるため名前は比較しない。
var structural = cmp.Options{
	ordered,
	cmpopts.IgnoreFields(domain.PrimaryKey{}, "Name"),
	cmpopts.IgnoreFields(domain.UniqueConstraint{}, "Name"),
	cmpopts.IgnoreFields(domain.Index{}, "Name"),
	cmpopts.IgnoreFields(domain.ForeignKey{}, "Name"),
}

func TestPlan_UpThenDownRestoresSchema(t *testing.T) {
	comment := domain.Table{
		Name: "Comment",
		Columns: []domain.Column{
			{Name: "id", Type: "integer", NotNull: true},
			{Name: "postId", Type: "integer", NotNull: true},
		},
		PrimaryKey:  &domain.PrimaryKey{Columns: []string{"id"}},
		ForeignKeys: []domain.ForeignKey{{Columns: []string{"postId"}, ReferencedTable: "Post", ReferencedColumns: []string{"id"}}},
	}
	prev := snapshot(userTable(), postTable(), comment)

	u := userTable()
	u.Columns[1].NotNull = false
	u.Columns = append(u.Columns, domain.Column{Name: "status", Type: "Status", IsEnum: true})
	u.Indexes = []domain.Index{{Columns: []string{"role"}}}
	p := postTable()
	p.Name = "Article"
	p.Columns[2].Name = "headline"
	p.PrimaryKey.Columns = []string{"id", "authorId"}
	tag := domain.Table{
		Name:    "Tag",
		Columns: []domain.Column{{Name: "id", Type: "integer", NotNull: true}, {Name: "articleId", Type: "integer"}},
		ForeignKeys: []domain.ForeignKey{
			{Columns: []string{"articleId"}, ReferencedTable: "Article", ReferencedColumns: []string{"id"}},
		},
	}
	curr := snapshot(u, p, tag)
	curr.Enums = append(curr.Enums, domain.Enum{Name: "Status", Values: []string{"ACTIVE", "BANNED"}})

	diff, err := schemadiff.Reconcile(schemadiff.Diff(prev, curr), domain.RenameMappings{
		Tables:  []domain.TableRename{{From: "Post", To: "Article"}},
		Columns: []domain.ColumnRename{{Table: "Article", From: "title", To: "headline"}},
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	for _, dialect := range []domain.Dialect{domain.DialectPostgres, domain.DialectMySQL, domain.DialectSQLite} {
		t.Run(string(dialect), func(t *testing.T) {
			plan, err := Plan(diff, dialect)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}

			sim := newSimulator(prev)
			for _, op := range plan.Up {
				sim.apply(t, op)
			}
			if d := cmp.Diff(curr, sim.snapshot(), structural); d != "" {
				t.Fatalf("up did not reach the current schema (-want +got):\n%s", d)
			}

			for _, op := range plan.Down {
				sim.apply(t, op)
			}
			if d := cmp.Diff(prev, sim.snapshot(), structural); d != "" {
				t.Fatalf("down did not restore the previous schema (-want +got):\n%s", d)
			}
		})
	}
}

func TestPlan_DownIsReverseOfUp(t *testing.T) {
	diff := schemadiff.Diff(nil, snapshot(userTable(), postTable()))
	plan, err := Plan(diff, domain.DialectPostgres)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	got := kinds(plan.Down)
	want := []domain.OperationKind{
		domain.OpDropForeignKey,
		domain.OpDropIndex,
		domain.OpDropUnique,
		domain.OpDropTable, // Post
		domain.OpDropTable, // User
		domain.OpDropEnum,
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("down kinds mismatch (-want +got):\n%s", d)
	}
	if plan.Down[3].Table != "Post" || plan.Down[4].Table != "User" {
		t.Errorf("expected Post to be dropped before User, got %s, %s", plan.Down[3].Table, plan.Down[4].Table)
	}
}
