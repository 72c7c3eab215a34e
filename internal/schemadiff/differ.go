// Package schemadiff はスナップショット間の構造差分とリネーム調停を提供する。
package schemadiff

import (
	"schema-migrator/internal/domain"
)

// Diff は直前のスナップショットと現在のスナップショットの構造差分を計算する。
// prevがnilの場合は空のデータベースとして扱う。
// テーブル・カラムのリネームはここでは検出せず、削除+追加の組として現れる。
func Diff(prev, curr *domain.Snapshot) *domain.DiffResult {
	if prev == nil {
		prev = &domain.Snapshot{}
	}
	if curr == nil {
		curr = &domain.Snapshot{}
	}

	result := &domain.DiffResult{
		Enums: make(map[string]domain.Enum, len(curr.Enums)),
	}

	prevTables := make(map[string]*domain.Table, len(prev.Tables))
	for i := range prev.Tables {
		prevTables[prev.Tables[i].Name] = &prev.Tables[i]
	}
	currTables := make(map[string]*domain.Table, len(curr.Tables))
	for i := range curr.Tables {
		currTables[curr.Tables[i].Name] = &curr.Tables[i]
	}

	for i := range curr.Tables {
		t := &curr.Tables[i]
		old, ok := prevTables[t.Name]
		if !ok {
			result.AddedTables = append(result.AddedTables, cloneTable(*t))
			continue
		}
		if td := diffTable(old, t); !td.IsEmpty() {
			result.AlteredTables = append(result.AlteredTables, td)
		}
	}
	for i := range prev.Tables {
		if _, ok := currTables[prev.Tables[i].Name]; !ok {
			result.RemovedTables = append(result.RemovedTables, cloneTable(prev.Tables[i]))
		}
	}

	diffEnums(prev.Enums, curr.Enums, result)
	return result
}

// diffTable は同名テーブルの内部構造を名前単位で比較する。
// 結果のTableにはcurrの名前を使う。
func diffTable(old, curr *domain.Table) domain.TableDiff {
	td := domain.TableDiff{Table: curr.Name}

	oldCols := make(map[string]domain.Column, len(old.Columns))
	for _, c := range old.Columns {
		oldCols[c.Name] = c
	}
	newCols := make(map[string]struct{}, len(curr.Columns))
	for _, c := range curr.Columns {
		newCols[c.Name] = struct{}{}
		prev, ok := oldCols[c.Name]
		if !ok {
			td.AddedColumns = append(td.AddedColumns, c)
			continue
		}
		if !prev.Equal(c) {
			td.AlteredColumns = append(td.AlteredColumns, domain.ColumnChange{Name: c.Name, From: prev, To: c})
		}
	}
	for _, c := range old.Columns {
		if _, ok := newCols[c.Name]; !ok {
			td.RemovedColumns = append(td.RemovedColumns, c)
		}
	}

	td.AddedUniques, td.RemovedUniques = diffNamed(old.UniqueConstraints, curr.UniqueConstraints,
		func(u domain.UniqueConstraint) string { return u.Name },
		func(a, b domain.UniqueConstraint) bool { return domain.EqualStrings(a.Columns, b.Columns) })
	td.AddedIndexes, td.RemovedIndexes = diffNamed(old.Indexes, curr.Indexes,
		func(ix domain.Index) string { return ix.Name },
		func(a, b domain.Index) bool { return domain.EqualStrings(a.Columns, b.Columns) })
	td.AddedForeignKeys, td.RemovedForeignKeys = diffNamed(old.ForeignKeys, curr.ForeignKeys,
		func(fk domain.ForeignKey) string { return fk.Name },
		func(a, b domain.ForeignKey) bool { return a.Equal(b) })

	if !old.PrimaryKey.Equal(curr.PrimaryKey) {
		td.PrimaryKey = &domain.PrimaryKeyChange{
			From: clonePrimaryKey(old.PrimaryKey),
			To:   clonePrimaryKey(curr.PrimaryKey),
		}
	}

	return td
}

// diffNamed は名前をキーに集合差分を取る。同名で定義が異なるものは削除+追加とする。
func diffNamed[T any](old, curr []T, name func(T) string, same func(a, b T) bool) (added, removed []T) {
	oldByName := make(map[string]T, len(old))
	for _, o := range old {
		oldByName[name(o)] = o
	}
	newByName := make(map[string]T, len(curr))
	for _, n := range curr {
		newByName[name(n)] = n
	}

	for _, o := range old {
		n, ok := newByName[name(o)]
		if !ok || !same(o, n) {
			removed = append(removed, o)
		}
	}
	for _, n := range curr {
		o, ok := oldByName[name(n)]
		if !ok || !same(o, n) {
			added = append(added, n)
		}
	}
	return added, removed
}

func diffEnums(prev, curr []domain.Enum, result *domain.DiffResult) {
	prevEnums := make(map[string]domain.Enum, len(prev))
	for _, e := range prev {
		prevEnums[e.Name] = e
	}
	currEnums := make(map[string]struct{}, len(curr))

	for _, e := range curr {
		result.Enums[e.Name] = cloneEnum(e)
		currEnums[e.Name] = struct{}{}

		old, ok := prevEnums[e.Name]
		if !ok {
			result.AddedEnums = append(result.AddedEnums, cloneEnum(e))
			continue
		}
		added := subtract(e.Values, old.Values)
		removed := subtract(old.Values, e.Values)
		if len(added) > 0 || len(removed) > 0 {
			result.AlteredEnums = append(result.AlteredEnums, domain.EnumDiff{
				Name:          e.Name,
				AddedValues:   added,
				RemovedValues: removed,
			})
		}
	}
	for _, e := range prev {
		if _, ok := currEnums[e.Name]; !ok {
			result.RemovedEnums = append(result.RemovedEnums, cloneEnum(e))
		}
	}
}

// subtract はaに含まれbに含まれない値をaの順序で返す。
func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func cloneTable(t domain.Table) domain.Table {
	out := domain.Table{
		Name:       t.Name,
		Columns:    append([]domain.Column(nil), t.Columns...),
		PrimaryKey: clonePrimaryKey(t.PrimaryKey),
	}
	for _, u := range t.UniqueConstraints {
		out.UniqueConstraints = append(out.UniqueConstraints, domain.UniqueConstraint{
			Name: u.Name, Columns: append([]string(nil), u.Columns...),
		})
	}
	for _, ix := range t.Indexes {
		out.Indexes = append(out.Indexes, domain.Index{
			Name: ix.Name, Columns: append([]string(nil), ix.Columns...),
		})
	}
	for _, fk := range t.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, cloneForeignKey(fk))
	}
	return out
}

func clonePrimaryKey(pk *domain.PrimaryKey) *domain.PrimaryKey {
	if pk == nil {
		return nil
	}
	return &domain.PrimaryKey{Name: pk.Name, Columns: append([]string(nil), pk.Columns...)}
}

func cloneForeignKey(fk domain.ForeignKey) domain.ForeignKey {
	return domain.ForeignKey{
		Name:              fk.Name,
		Columns:           append([]string(nil), fk.Columns...),
		ReferencedTable:   fk.ReferencedTable,
		ReferencedColumns: append([]string(nil), fk.ReferencedColumns...),
	}
}

func cloneEnum(e domain.Enum) domain.Enum {
	return domain.Enum{Name: e.Name, Values: append([]string(nil), e.Values...)}
}
