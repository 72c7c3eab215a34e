package schemadiff

import (
	"schema-migrator/internal/domain"
)

// RenamePrompter はリネーム候補を呼び出し元に確認するためのコールバック。
type RenamePrompter interface {
	ConfirmTableRename(candidate domain.TableRename) (bool, error)
	ConfirmColumnRename(candidate domain.ColumnRename) (bool, error)
}

// Candidates は削除と追加の組からリネーム候補を推定する。
// i番目の削除テーブルとi番目の追加テーブルを組にする位置ベースの推定で、
// 複数の曖昧なリネームが同時にある場合の正しさは保証しない。
func Candidates(diff *domain.DiffResult) domain.RenameCandidates {
	var c domain.RenameCandidates
	if diff == nil {
		return c
	}
	for i := 0; i < len(diff.RemovedTables) && i < len(diff.AddedTables); i++ {
		c.Tables = append(c.Tables, domain.TableRename{
			From: diff.RemovedTables[i].Name,
			To:   diff.AddedTables[i].Name,
		})
	}
	for _, td := range diff.AlteredTables {
		for i := 0; i < len(td.RemovedColumns) && i < len(td.AddedColumns); i++ {
			c.Columns = append(c.Columns, domain.ColumnRename{
				Table: td.Table,
				From:  td.RemovedColumns[i].Name,
				To:    td.AddedColumns[i].Name,
			})
		}
	}
	return c
}

// Reconcile は確定済みのリネーム指定を差分に適用する。入力の差分は変更しない。
// 各指定はちょうど1つの削除と1つの追加を消費し、対応する組が無ければエラーを返す。
func Reconcile(diff *domain.DiffResult, mappings domain.RenameMappings) (*domain.DiffResult, error) {
	out := cloneDiff(diff)

	for _, m := range mappings.Tables {
		ri := indexOfTable(out.RemovedTables, m.From)
		ai := indexOfTable(out.AddedTables, m.To)
		if ri < 0 || ai < 0 {
			return nil, domain.NewValidationError("table rename %s -> %s does not match a removed/added table pair", m.From, m.To)
		}
		old := out.RemovedTables[ri]
		curr := out.AddedTables[ai]
		out.RemovedTables = append(out.RemovedTables[:ri], out.RemovedTables[ri+1:]...)
		out.AddedTables = append(out.AddedTables[:ai], out.AddedTables[ai+1:]...)
		out.RenamedTables = append(out.RenamedTables, domain.TableRename{From: m.From, To: m.To})

		out.AlteredTables = append(out.AlteredTables, diffTable(&old, &curr))
	}

	for _, m := range mappings.Columns {
		ti := indexOfTableDiff(out.AlteredTables, m.Table)
		if ti < 0 {
			return nil, domain.NewValidationError("column rename %s.%s -> %s: table has no column changes", m.Table, m.From, m.To)
		}
		td := &out.AlteredTables[ti]
		ri := indexOfColumn(td.RemovedColumns, m.From)
		ai := indexOfColumn(td.AddedColumns, m.To)
		if ri < 0 || ai < 0 {
			return nil, domain.NewValidationError("column rename %s.%s -> %s does not match a removed/added column pair", m.Table, m.From, m.To)
		}
		old := td.RemovedColumns[ri]
		curr := td.AddedColumns[ai]
		td.RemovedColumns = append(td.RemovedColumns[:ri], td.RemovedColumns[ri+1:]...)
		td.AddedColumns = append(td.AddedColumns[:ai], td.AddedColumns[ai+1:]...)
		td.RenamedColumns = append(td.RenamedColumns, domain.ColumnRename{Table: m.Table, From: m.From, To: m.To})

		if !old.Equal(curr) {
			// リネーム後の名前で変更を適用する
			from := old
			from.Name = m.To
			td.AlteredColumns = append(td.AlteredColumns, domain.ColumnChange{Name: m.To, From: from, To: curr})
		}
	}

	filterRenameArtifacts(out)
	return out, nil
}

// ResolveRenames は推定したリネーム候補をprompterに確認し、承認されたものを適用する。
// テーブル候補を先に確定し、その結果に対してカラム候補を確認する。
func ResolveRenames(diff *domain.DiffResult, prompter RenamePrompter) (*domain.DiffResult, error) {
	if prompter == nil {
		return cloneDiff(diff), nil
	}

	var mappings domain.RenameMappings
	for _, c := range Candidates(diff).Tables {
		ok, err := prompter.ConfirmTableRename(c)
		if err != nil {
			return nil, err
		}
		if ok {
			mappings.Tables = append(mappings.Tables, c)
		}
	}

	withTables, err := Reconcile(diff, mappings)
	if err != nil {
		return nil, err
	}

	for _, c := range Candidates(withTables).Columns {
		ok, err := prompter.ConfirmColumnRename(c)
		if err != nil {
			return nil, err
		}
		if ok {
			mappings.Columns = append(mappings.Columns, c)
		}
	}
	if len(mappings.Columns) == 0 {
		return withTables, nil
	}
	return Reconcile(diff, mappings)
}

// filterRenameArtifacts はリネームによって名前だけが変わった制約・インデックス・外部キーの
// 削除+追加の組を取り除き、名前が変わったものはRenamedConstraintsに記録する。
// データベース上の名前はテーブル・カラムのリネームに追従しないため、明示的に付け替える。
func filterRenameArtifacts(out *domain.DiffResult) {
	if len(out.RenamedTables) == 0 && !hasColumnRenames(out) {
		return
	}

	tableRenames := make(map[string]string, len(out.RenamedTables))
	renamedTo := make(map[string]bool, len(out.RenamedTables))
	for _, r := range out.RenamedTables {
		tableRenames[r.From] = r.To
		renamedTo[r.To] = true
	}
	columnRenames := make(map[string]map[string]string)
	for _, td := range out.AlteredTables {
		for _, r := range td.RenamedColumns {
			if columnRenames[r.Table] == nil {
				columnRenames[r.Table] = make(map[string]string)
			}
			columnRenames[r.Table][r.From] = r.To
		}
	}

	kept := out.AlteredTables[:0]
	for _, td := range out.AlteredTables {
		tr := translator{
			tableRenamed:  renamedTo[td.Table],
			columns:       columnRenames[td.Table],
			tableRenames:  tableRenames,
			columnRenames: columnRenames,
		}

		renamed := func(kind domain.ConstraintKind, from, to string, cols []string) {
			if from != to {
				td.RenamedConstraints = append(td.RenamedConstraints, domain.ConstraintRename{
					Table: td.Table, Kind: kind, From: from, To: to, Columns: append([]string(nil), cols...),
				})
			}
		}

		td.AddedUniques, td.RemovedUniques = dropPairs(td.AddedUniques, td.RemovedUniques,
			func(removed, added domain.UniqueConstraint) bool {
				cols, changed := tr.columnsOf(removed.Columns)
				return (changed || tr.tableRenamed) && domain.EqualStrings(cols, added.Columns)
			},
			func(removed, added domain.UniqueConstraint) {
				renamed(domain.ConstraintUnique, removed.Name, added.Name, added.Columns)
			})
		td.AddedIndexes, td.RemovedIndexes = dropPairs(td.AddedIndexes, td.RemovedIndexes,
			func(removed, added domain.Index) bool {
				cols, changed := tr.columnsOf(removed.Columns)
				return (changed || tr.tableRenamed) && domain.EqualStrings(cols, added.Columns)
			},
			func(removed, added domain.Index) {
				renamed(domain.ConstraintIndex, removed.Name, added.Name, added.Columns)
			})
		td.AddedForeignKeys, td.RemovedForeignKeys = dropPairs(td.AddedForeignKeys, td.RemovedForeignKeys,
			func(removed, added domain.ForeignKey) bool {
				return tr.sameForeignKey(removed, added)
			},
			func(removed, added domain.ForeignKey) {
				renamed(domain.ConstraintForeignKey, removed.Name, added.Name, added.Columns)
			})

		if pk := td.PrimaryKey; pk != nil && pk.From != nil && pk.To != nil {
			cols, changed := tr.columnsOf(pk.From.Columns)
			if (changed || tr.tableRenamed) && domain.EqualStrings(cols, pk.To.Columns) {
				renamed(domain.ConstraintPrimaryKey, pk.From.Name, pk.To.Name, pk.To.Columns)
				td.PrimaryKey = nil
			}
		}

		if !td.IsEmpty() {
			kept = append(kept, td)
		}
	}
	out.AlteredTables = kept
}

type translator struct {
	tableRenamed  bool
	columns       map[string]string
	tableRenames  map[string]string
	columnRenames map[string]map[string]string
}

// columnsOf はカラム名をリネーム後の名前に変換し、変化があったかを返す。
func (t translator) columnsOf(cols []string) ([]string, bool) {
	return renameAll(cols, t.columns)
}

func (t translator) sameForeignKey(removed, added domain.ForeignKey) bool {
	cols, colsChanged := t.columnsOf(removed.Columns)

	refTable := removed.ReferencedTable
	refChanged := false
	if to, ok := t.tableRenames[refTable]; ok {
		refTable = to
		refChanged = true
	}
	refCols, refColsChanged := renameAll(removed.ReferencedColumns, t.columnRenames[refTable])

	if !(t.tableRenamed || colsChanged || refChanged || refColsChanged) {
		return false
	}
	return refTable == added.ReferencedTable &&
		domain.EqualStrings(cols, added.Columns) &&
		domain.EqualStrings(refCols, added.ReferencedColumns)
}

func renameAll(cols []string, renames map[string]string) ([]string, bool) {
	out := make([]string, len(cols))
	changed := false
	for i, c := range cols {
		if to, ok := renames[c]; ok {
			out[i] = to
			changed = true
			continue
		}
		out[i] = c
	}
	return out, changed
}

// dropPairs はmatchする削除・追加の組を1対1で取り除き、取り除いた組ごとにpairedを呼ぶ。
func dropPairs[T any](added, removed []T, match func(removed, added T) bool, paired func(removed, added T)) ([]T, []T) {
	used := make([]bool, len(added))
	var keptRemoved []T
	for _, r := range removed {
		found := false
		for i, a := range added {
			if !used[i] && match(r, a) {
				used[i] = true
				found = true
				paired(r, a)
				break
			}
		}
		if !found {
			keptRemoved = append(keptRemoved, r)
		}
	}
	var keptAdded []T
	for i, a := range added {
		if !used[i] {
			keptAdded = append(keptAdded, a)
		}
	}
	return keptAdded, keptRemoved
}

func hasColumnRenames(d *domain.DiffResult) bool {
	for _, td := range d.AlteredTables {
		if len(td.RenamedColumns) > 0 {
			return true
		}
	}
	return false
}

func indexOfTable(tables []domain.Table, name string) int {
	for i := range tables {
		if tables[i].Name == name {
			return i
		}
	}
	return -1
}

func indexOfTableDiff(diffs []domain.TableDiff, name string) int {
	for i := range diffs {
		if diffs[i].Table == name {
			return i
		}
	}
	return -1
}

func indexOfColumn(cols []domain.Column, name string) int {
	for i := range cols {
		if cols[i].Name == name {
			return i
		}
	}
	return -1
}

func cloneDiff(d *domain.DiffResult) *domain.DiffResult {
	out := &domain.DiffResult{}
	if d == nil {
		return out
	}
	for _, t := range d.AddedTables {
		out.AddedTables = append(out.AddedTables, cloneTable(t))
	}
	for _, t := range d.RemovedTables {
		out.RemovedTables = append(out.RemovedTables, cloneTable(t))
	}
	for _, td := range d.AlteredTables {
		out.AlteredTables = append(out.AlteredTables, cloneTableDiff(td))
	}
	out.RenamedTables = append(out.RenamedTables, d.RenamedTables...)
	for _, e := range d.AddedEnums {
		out.AddedEnums = append(out.AddedEnums, cloneEnum(e))
	}
	for _, e := range d.RemovedEnums {
		out.RemovedEnums = append(out.RemovedEnums, cloneEnum(e))
	}
	for _, e := range d.AlteredEnums {
		out.AlteredEnums = append(out.AlteredEnums, domain.EnumDiff{
			Name:          e.Name,
			AddedValues:   append([]string(nil), e.AddedValues...),
			RemovedValues: append([]string(nil), e.RemovedValues...),
		})
	}
	if d.Enums != nil {
		out.Enums = make(map[string]domain.Enum, len(d.Enums))
		for k, e := range d.Enums {
			out.Enums[k] = cloneEnum(e)
		}
	}
	return out
}

func cloneTableDiff(td domain.TableDiff) domain.TableDiff {
	out := domain.TableDiff{
		Table:          td.Table,
		AddedColumns:   append([]domain.Column(nil), td.AddedColumns...),
		RemovedColumns: append([]domain.Column(nil), td.RemovedColumns...),
		AlteredColumns: append([]domain.ColumnChange(nil), td.AlteredColumns...),
		RenamedColumns: append([]domain.ColumnRename(nil), td.RenamedColumns...),
	}
	for _, r := range td.RenamedConstraints {
		r.Columns = append([]string(nil), r.Columns...)
		out.RenamedConstraints = append(out.RenamedConstraints, r)
	}
	for _, u := range td.AddedUniques {
		out.AddedUniques = append(out.AddedUniques, domain.UniqueConstraint{Name: u.Name, Columns: append([]string(nil), u.Columns...)})
	}
	for _, u := range td.RemovedUniques {
		out.RemovedUniques = append(out.RemovedUniques, domain.UniqueConstraint{Name: u.Name, Columns: append([]string(nil), u.Columns...)})
	}
	for _, ix := range td.AddedIndexes {
		out.AddedIndexes = append(out.AddedIndexes, domain.Index{Name: ix.Name, Columns: append([]string(nil), ix.Columns...)})
	}
	for _, ix := range td.RemovedIndexes {
		out.RemovedIndexes = append(out.RemovedIndexes, domain.Index{Name: ix.Name, Columns: append([]string(nil), ix.Columns...)})
	}
	for _, fk := range td.AddedForeignKeys {
		out.AddedForeignKeys = append(out.AddedForeignKeys, cloneForeignKey(fk))
	}
	for _, fk := range td.RemovedForeignKeys {
		out.RemovedForeignKeys = append(out.RemovedForeignKeys, cloneForeignKey(fk))
	}
	if td.PrimaryKey != nil {
		out.PrimaryKey = &domain.PrimaryKeyChange{
			From: clonePrimaryKey(td.PrimaryKey.From),
			To:   clonePrimaryKey(td.PrimaryKey.To),
		}
	}
	return out
}
