package planner

import (
	"fmt"

	"schema-migrator/internal/domain"
)

// inverse はopを取り消す操作列を返す。取り消せない操作には警告注釈を返す。
func (b *builder) inverse(op domain.Operation) []domain.Operation {
	inv := domain.Operation{Table: op.Table, EnumValues: op.EnumValues}

	switch op.Kind {
	case domain.OpCreateEnum:
		inv.Kind = domain.OpDropEnum
		inv.Enum = op.Enum
	case domain.OpDropEnum:
		inv.Kind = domain.OpCreateEnum
		inv.Enum = op.Enum
	case domain.OpAddEnumValue:
		inv.Kind = domain.OpWarning
		inv.Message = fmt.Sprintf("value %q added to enum %s is left in place because enum values cannot be dropped safely",
			op.Value, op.Enum.Name)
	case domain.OpWarning:
		return nil
	case domain.OpRenameTable:
		inv.Kind = domain.OpRenameTable
		inv.From, inv.To = op.To, op.From
	case domain.OpRenameColumn:
		inv.Kind = domain.OpRenameColumn
		inv.From, inv.To = op.To, op.From
	case domain.OpRenameConstraint:
		r := *op.Rename
		r.From, r.To = r.To, r.From
		inv.Kind = domain.OpRenameConstraint
		inv.Rename = &r
	case domain.OpCreateTable:
		inv.Kind = domain.OpDropTable
		inv.TableDef = op.TableDef
		inv.InlineForeignKeys = op.InlineForeignKeys
	case domain.OpDropTable:
		return b.recreateTable(op)
	case domain.OpAddColumn:
		inv.Kind = domain.OpDropColumn
		inv.Column = op.Column
	case domain.OpDropColumn:
		inv.Kind = domain.OpAddColumn
		inv.Column = op.Column
	case domain.OpAlterColumnType, domain.OpAlterColumnNull, domain.OpAlterColumnDefault:
		inv.Kind = op.Kind
		inv.Column, inv.OldColumn = op.OldColumn, op.Column
	case domain.OpAddPrimaryKey:
		inv.Kind = domain.OpDropPrimaryKey
		inv.PrimaryKey = op.PrimaryKey
	case domain.OpDropPrimaryKey:
		inv.Kind = domain.OpAddPrimaryKey
		inv.PrimaryKey = op.PrimaryKey
	case domain.OpAddUnique:
		inv.Kind = domain.OpDropUnique
		inv.Unique = op.Unique
	case domain.OpDropUnique:
		inv.Kind = domain.OpAddUnique
		inv.Unique = op.Unique
	case domain.OpCreateIndex:
		inv.Kind = domain.OpDropIndex
		inv.Index = op.Index
	case domain.OpDropIndex:
		inv.Kind = domain.OpCreateIndex
		inv.Index = op.Index
	case domain.OpAddForeignKey:
		inv.Kind = domain.OpDropForeignKey
		inv.ForeignKey = op.ForeignKey
	case domain.OpDropForeignKey:
		inv.Kind = domain.OpAddForeignKey
		inv.ForeignKey = op.ForeignKey
	default:
		return nil
	}
	return []domain.Operation{inv}
}

// recreateTable は削除したテーブルを制約・インデックスごと再作成する操作列を返す。
// 逆操作ではリネームの取り消しより先に実行されるため、外部キーの参照先は
// リネーム後の名前で作成し、後続のリネーム取り消しで元の名前に追従させる。
func (b *builder) recreateTable(op domain.Operation) []domain.Operation {
	t := b.translateReferences(*op.TableDef)
	ops := []domain.Operation{{
		Kind:              domain.OpCreateTable,
		Table:             t.Name,
		TableDef:          t,
		InlineForeignKeys: op.InlineForeignKeys,
		EnumValues:        op.EnumValues,
	}}
	for i := range t.UniqueConstraints {
		ops = append(ops, domain.Operation{Kind: domain.OpAddUnique, Table: t.Name, Unique: &t.UniqueConstraints[i], EnumValues: op.EnumValues})
	}
	for i := range t.Indexes {
		ops = append(ops, domain.Operation{Kind: domain.OpCreateIndex, Table: t.Name, Index: &t.Indexes[i], EnumValues: op.EnumValues})
	}
	if !op.InlineForeignKeys {
		for i := range t.ForeignKeys {
			ops = append(ops, domain.Operation{Kind: domain.OpAddForeignKey, Table: t.Name, ForeignKey: &t.ForeignKeys[i], EnumValues: op.EnumValues})
		}
	}
	return ops
}

func (b *builder) translateReferences(t domain.Table) *domain.Table {
	out := t
	out.ForeignKeys = make([]domain.ForeignKey, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		ref := fk.ReferencedTable
		if to, ok := b.tableRenames[ref]; ok {
			ref = to
		}
		cols := make([]string, len(fk.ReferencedColumns))
		for j, c := range fk.ReferencedColumns {
			if to, ok := b.columnRenames[ref][c]; ok {
				c = to
			}
			cols[j] = c
		}
		out.ForeignKeys[i] = domain.ForeignKey{
			Name:              fk.Name,
			Columns:           append([]string(nil), fk.Columns...),
			ReferencedTable:   ref,
			ReferencedColumns: cols,
		}
	}
	return &out
}
