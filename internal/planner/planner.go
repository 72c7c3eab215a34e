// Package planner は調停済みの差分から順序付きのDDL操作列を組み立てる。
package planner

import (
	"fmt"

	"schema-migrator/internal/domain"
)

// MigrationPlan は前進(Up)と後退(Down)の操作列。
// DownはUpの逆操作をスタック順に並べたもので、Upの適用順のちょうど逆になる。
type MigrationPlan struct {
	// Dialect は計画に使った正規化済みの方言。SQLへの変換もこの方言で行う。
	Dialect domain.Dialect
	Up      []domain.Operation
	Down    []domain.Operation
}

// IsEmpty は生成すべき操作が無いかを返す。
func (p *MigrationPlan) IsEmpty() bool {
	return p == nil || len(p.Up) == 0
}

type builder struct {
	dialect    domain.Dialect
	enumValues map[string][]string
	up         []domain.Operation
	down       []domain.Operation

	// 同じ差分で行われたリネーム（旧名→新名）。削除テーブルの再作成時に参照先を引く。
	tableRenames  map[string]string
	columnRenames map[string]map[string]string
}

// emit はUpに操作を追加し、その逆操作をDownの先頭に積む。
func (b *builder) emit(op domain.Operation) {
	if b.enumValues != nil {
		op.EnumValues = b.enumValues
	}
	b.up = append(b.up, op)
	inv := b.inverse(op)
	if len(inv) > 0 {
		b.down = append(inv, b.down...)
	}
}

// Plan は差分を方言に応じた順序付き操作列に変換する。
// 依存関係は型→テーブル→制約→インデックスの順に流れ、
// 破壊的操作は名前・参照を解放してから追加操作が再利用する。
func Plan(diff *domain.DiffResult, dialect domain.Dialect) (*MigrationPlan, error) {
	d, err := domain.ParseDialect(string(dialect))
	if err != nil {
		return nil, err
	}
	b := &builder{dialect: d}
	if diff == nil || diff.IsEmpty() {
		return &MigrationPlan{Dialect: d}, nil
	}
	if !d.NativeEnums() {
		b.enumValues = enumValues(diff)
	}
	inlineFKs := !d.AlterConstraints()
	b.collectRenames(diff)

	// 1. 列挙型の作成と値の追加
	for i := range diff.AddedEnums {
		e := diff.AddedEnums[i]
		b.emit(domain.Operation{Kind: domain.OpCreateEnum, Enum: &e})
	}
	for _, ed := range diff.AlteredEnums {
		for _, v := range ed.AddedValues {
			b.emit(domain.Operation{Kind: domain.OpAddEnumValue, Enum: &domain.Enum{Name: ed.Name}, Value: v})
		}
		for _, v := range ed.RemovedValues {
			b.emit(domain.Operation{
				Kind: domain.OpWarning,
				Message: fmt.Sprintf("value %q was removed from enum %s; it is left in place because enum values cannot be dropped safely",
					v, ed.Name),
			})
		}
	}

	// 2. テーブルのリネーム、カラムのリネーム、最後に名前が追従しない制約・インデックスのリネーム
	for _, r := range diff.RenamedTables {
		b.emit(domain.Operation{Kind: domain.OpRenameTable, From: r.From, To: r.To})
	}
	for _, td := range diff.AlteredTables {
		for _, r := range td.RenamedColumns {
			b.emit(domain.Operation{Kind: domain.OpRenameColumn, Table: td.Table, From: r.From, To: r.To})
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.RenamedConstraints {
			r := td.RenamedConstraints[i]
			b.emit(domain.Operation{Kind: domain.OpRenameConstraint, Table: td.Table, Rename: &r})
		}
	}

	// 3. 新規テーブルを参照先が先になるよう作成
	added := sortByDependency(diff.AddedTables)
	for i := range added {
		t := added[i]
		b.emit(domain.Operation{Kind: domain.OpCreateTable, Table: t.Name, TableDef: &t, InlineForeignKeys: inlineFKs})
	}

	// 4. 削除テーブルを参照元から順に削除
	removed := sortByDependency(diff.RemovedTables)
	for i := len(removed) - 1; i >= 0; i-- {
		t := removed[i]
		b.emit(domain.Operation{Kind: domain.OpDropTable, Table: t.Name, TableDef: &t, InlineForeignKeys: inlineFKs})
	}

	// 5. 変更された主キーを旧定義で削除
	for _, td := range diff.AlteredTables {
		if td.PrimaryKey != nil && td.PrimaryKey.From != nil {
			b.emit(domain.Operation{Kind: domain.OpDropPrimaryKey, Table: td.Table, PrimaryKey: td.PrimaryKey.From})
		}
	}

	// 6. 外部キーの削除（参照カラムの削除より前）
	for _, td := range diff.AlteredTables {
		for i := range td.RemovedForeignKeys {
			fk := td.RemovedForeignKeys[i]
			b.emit(domain.Operation{Kind: domain.OpDropForeignKey, Table: td.Table, ForeignKey: &fk})
		}
	}

	// 7. 一意制約、次にインデックスの削除
	for _, td := range diff.AlteredTables {
		for i := range td.RemovedUniques {
			u := td.RemovedUniques[i]
			b.emit(domain.Operation{Kind: domain.OpDropUnique, Table: td.Table, Unique: &u})
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.RemovedIndexes {
			ix := td.RemovedIndexes[i]
			b.emit(domain.Operation{Kind: domain.OpDropIndex, Table: td.Table, Index: &ix})
		}
	}

	// 8. カラムの追加、次に削除
	for _, td := range diff.AlteredTables {
		for i := range td.AddedColumns {
			c := td.AddedColumns[i]
			b.emit(domain.Operation{Kind: domain.OpAddColumn, Table: td.Table, Column: &c})
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.RemovedColumns {
			c := td.RemovedColumns[i]
			b.emit(domain.Operation{Kind: domain.OpDropColumn, Table: td.Table, Column: &c})
		}
	}

	// 9. 既存カラムの変更（型→NULL可否→デフォルト）
	for _, td := range diff.AlteredTables {
		for _, ch := range td.AlteredColumns {
			b.alterColumn(td.Table, ch)
		}
	}

	// 10. 新しい主キーの追加
	for _, td := range diff.AlteredTables {
		if td.PrimaryKey != nil && td.PrimaryKey.To != nil {
			b.emit(domain.Operation{Kind: domain.OpAddPrimaryKey, Table: td.Table, PrimaryKey: td.PrimaryKey.To})
		}
	}

	// 11. 一意制約、次にインデックスの追加
	for _, t := range added {
		for i := range t.UniqueConstraints {
			u := t.UniqueConstraints[i]
			b.emit(domain.Operation{Kind: domain.OpAddUnique, Table: t.Name, Unique: &u})
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.AddedUniques {
			u := td.AddedUniques[i]
			b.emit(domain.Operation{Kind: domain.OpAddUnique, Table: td.Table, Unique: &u})
		}
	}
	for _, t := range added {
		for i := range t.Indexes {
			ix := t.Indexes[i]
			b.emit(domain.Operation{Kind: domain.OpCreateIndex, Table: t.Name, Index: &ix})
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.AddedIndexes {
			ix := td.AddedIndexes[i]
			b.emit(domain.Operation{Kind: domain.OpCreateIndex, Table: td.Table, Index: &ix})
		}
	}

	// 12. 外部キーの追加
	if !inlineFKs {
		for _, t := range added {
			for i := range t.ForeignKeys {
				fk := t.ForeignKeys[i]
				b.emit(domain.Operation{Kind: domain.OpAddForeignKey, Table: t.Name, ForeignKey: &fk})
			}
		}
	}
	for _, td := range diff.AlteredTables {
		for i := range td.AddedForeignKeys {
			fk := td.AddedForeignKeys[i]
			b.emit(domain.Operation{Kind: domain.OpAddForeignKey, Table: td.Table, ForeignKey: &fk})
		}
	}

	// 13. 参照が全て無くなった後で列挙型を削除
	for i := range diff.RemovedEnums {
		e := diff.RemovedEnums[i]
		b.emit(domain.Operation{Kind: domain.OpDropEnum, Enum: &e})
	}

	return &MigrationPlan{Dialect: d, Up: b.up, Down: b.down}, nil
}

func (b *builder) collectRenames(diff *domain.DiffResult) {
	b.tableRenames = make(map[string]string, len(diff.RenamedTables))
	for _, r := range diff.RenamedTables {
		b.tableRenames[r.From] = r.To
	}
	b.columnRenames = make(map[string]map[string]string)
	for _, td := range diff.AlteredTables {
		for _, r := range td.RenamedColumns {
			if b.columnRenames[r.Table] == nil {
				b.columnRenames[r.Table] = make(map[string]string)
			}
			b.columnRenames[r.Table][r.From] = r.To
		}
	}
}

// alterColumn は値が実際に異なる属性だけを型・NULL可否・デフォルトの順に変更する。
// 各操作は直前の状態を保持し、逆操作で元に戻せるようにする。
func (b *builder) alterColumn(table string, ch domain.ColumnChange) {
	cur := ch.From
	cur.Name = ch.Name

	if cur.Type != ch.To.Type || cur.IsArray != ch.To.IsArray || cur.IsEnum != ch.To.IsEnum || cur.IsAutoincrement != ch.To.IsAutoincrement {
		next := cur
		next.Type = ch.To.Type
		next.IsArray = ch.To.IsArray
		next.IsEnum = ch.To.IsEnum
		next.IsAutoincrement = ch.To.IsAutoincrement
		b.emitAlter(domain.OpAlterColumnType, table, cur, next)
		cur = next
	}
	if cur.NotNull != ch.To.NotNull {
		next := cur
		next.NotNull = ch.To.NotNull
		b.emitAlter(domain.OpAlterColumnNull, table, cur, next)
		cur = next
	}
	if !defaultsEqual(cur.Default, ch.To.Default) {
		next := cur
		next.Default = ch.To.Default
		b.emitAlter(domain.OpAlterColumnDefault, table, cur, next)
	}
}

func (b *builder) emitAlter(kind domain.OperationKind, table string, from, to domain.Column) {
	b.emit(domain.Operation{Kind: kind, Table: table, OldColumn: &from, Column: &to})
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// enumValues は現在および削除された列挙型の値を名前で引けるようにする。
func enumValues(diff *domain.DiffResult) map[string][]string {
	values := make(map[string][]string, len(diff.Enums)+len(diff.RemovedEnums))
	for _, e := range diff.RemovedEnums {
		values[e.Name] = e.Values
	}
	for name, e := range diff.Enums {
		values[name] = e.Values
	}
	return values
}
