// Package sqlgen は抽象DDL操作を方言ごとのSQL文に変換する。
package sqlgen

import (
	"fmt"
	"strings"

	"schema-migrator/internal/domain"
)

// Compile は単一の操作をSQL文に変換する。
// 実行文は";"で終わり、警告注釈は"--"で始まる。方言上何もしない操作は空文字列を返す。
// 方言が安全に表現できない操作はErrUnsupportedOperationを返す。
func Compile(op domain.Operation, dialect domain.Dialect) (string, error) {
	c := compiler{d: dialect, enums: op.EnumValues}

	switch op.Kind {
	case domain.OpWarning:
		return "-- WARNING: " + strings.ReplaceAll(op.Message, "\n", " "), nil
	case domain.OpCreateEnum:
		if !dialect.NativeEnums() {
			return "", nil
		}
		return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", c.quote(op.Enum.Name), literals(op.Enum.Values)), nil
	case domain.OpAddEnumValue:
		switch dialect {
		case domain.DialectPostgres:
			return fmt.Sprintf("ALTER TYPE %s ADD VALUE %s;", c.quote(op.Enum.Name), literal(op.Value)), nil
		case domain.DialectMySQL:
			return "", unsupported(op, dialect, "enum columns must be redefined to accept new values")
		}
		return "", nil
	case domain.OpDropEnum:
		if !dialect.NativeEnums() {
			return "", nil
		}
		return fmt.Sprintf("DROP TYPE %s;", c.quote(op.Enum.Name)), nil
	case domain.OpRenameTable:
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", c.quote(op.From), c.quote(op.To)), nil
	case domain.OpRenameColumn:
		return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", c.quote(op.Table), c.quote(op.From), c.quote(op.To)), nil
	case domain.OpRenameConstraint:
		return c.renameConstraint(op), nil
	case domain.OpCreateTable:
		return c.createTable(op.TableDef, op.InlineForeignKeys), nil
	case domain.OpDropTable:
		return fmt.Sprintf("DROP TABLE %s;", c.quote(op.Table)), nil
	case domain.OpAddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", c.quote(op.Table), c.columnDef(*op.Column, false)), nil
	case domain.OpDropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", c.quote(op.Table), c.quote(op.Column.Name)), nil
	case domain.OpAlterColumnType, domain.OpAlterColumnNull, domain.OpAlterColumnDefault:
		return c.alterColumn(op)
	case domain.OpAddPrimaryKey:
		switch dialect {
		case domain.DialectPostgres:
			return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s);",
				c.quote(op.Table), c.quote(op.PrimaryKey.Name), c.quoteList(op.PrimaryKey.Columns)), nil
		case domain.DialectMySQL:
			return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);", c.quote(op.Table), c.quoteList(op.PrimaryKey.Columns)), nil
		}
		return "", unsupported(op, dialect, "primary keys of existing tables cannot be altered")
	case domain.OpDropPrimaryKey:
		switch dialect {
		case domain.DialectPostgres:
			return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", c.quote(op.Table), c.quote(op.PrimaryKey.Name)), nil
		case domain.DialectMySQL:
			return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY;", c.quote(op.Table)), nil
		}
		return "", unsupported(op, dialect, "primary keys of existing tables cannot be altered")
	case domain.OpAddUnique:
		if dialect == domain.DialectSQLite {
			return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s);",
				c.quote(op.Unique.Name), c.quote(op.Table), c.quoteList(op.Unique.Columns)), nil
		}
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);",
			c.quote(op.Table), c.quote(op.Unique.Name), c.quoteList(op.Unique.Columns)), nil
	case domain.OpDropUnique:
		switch dialect {
		case domain.DialectPostgres:
			return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", c.quote(op.Table), c.quote(op.Unique.Name)), nil
		case domain.DialectMySQL:
			return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s;", c.quote(op.Table), c.quote(op.Unique.Name)), nil
		}
		return fmt.Sprintf("DROP INDEX %s;", c.quote(op.Unique.Name)), nil
	case domain.OpCreateIndex:
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
			c.quote(op.Index.Name), c.quote(op.Table), c.quoteList(op.Index.Columns)), nil
	case domain.OpDropIndex:
		if dialect == domain.DialectMySQL {
			return fmt.Sprintf("DROP INDEX %s ON %s;", c.quote(op.Index.Name), c.quote(op.Table)), nil
		}
		return fmt.Sprintf("DROP INDEX %s;", c.quote(op.Index.Name)), nil
	case domain.OpAddForeignKey:
		if !dialect.AlterConstraints() {
			return "", unsupported(op, dialect, "foreign keys cannot be added to existing tables")
		}
		return fmt.Sprintf("ALTER TABLE %s ADD %s;", c.quote(op.Table), c.foreignKey(*op.ForeignKey)), nil
	case domain.OpDropForeignKey:
		switch dialect {
		case domain.DialectPostgres:
			return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", c.quote(op.Table), c.quote(op.ForeignKey.Name)), nil
		case domain.DialectMySQL:
			return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s;", c.quote(op.Table), c.quote(op.ForeignKey.Name)), nil
		}
		return "", unsupported(op, dialect, "foreign keys cannot be dropped from existing tables")
	}
	return "", fmt.Errorf("%w: unknown operation kind %q", domain.ErrUnsupportedOperation, op.Kind)
}

type compiler struct {
	d     domain.Dialect
	enums map[string][]string
}

func (c compiler) quote(ident string) string {
	if c.d == domain.DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (c compiler) quoteList(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = c.quote(id)
	}
	return strings.Join(quoted, ", ")
}

func literal(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func literals(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = literal(v)
	}
	return strings.Join(out, ", ")
}

// columnType はカラムの型を方言に合わせて展開する。
func (c compiler) columnType(col domain.Column) string {
	typ := col.Type
	if col.IsEnum {
		switch c.d {
		case domain.DialectPostgres:
			typ = c.quote(col.Type)
		case domain.DialectMySQL:
			typ = "ENUM(" + literals(c.enums[col.Type]) + ")"
		default:
			typ = "TEXT"
		}
	}
	if col.IsArray {
		switch c.d {
		case domain.DialectPostgres:
			typ += "[]"
		case domain.DialectMySQL:
			typ = "JSON"
		default:
			typ = "TEXT"
		}
	}
	return typ
}

// columnDef はカラム定義句を返す。sqlitePKがtrueの場合はSQLiteの自動採番主キーとして展開する。
func (c compiler) columnDef(col domain.Column, sqlitePK bool) string {
	var sb strings.Builder
	sb.WriteString(c.quote(col.Name))
	sb.WriteString(" ")
	if sqlitePK {
		sb.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
		return sb.String()
	}
	sb.WriteString(c.columnType(col))
	if col.NotNull {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(*col.Default)
	}
	if col.IsAutoincrement {
		switch c.d {
		case domain.DialectPostgres:
			sb.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
		case domain.DialectMySQL:
			sb.WriteString(" AUTO_INCREMENT")
		}
	}
	return sb.String()
}

func (c compiler) foreignKey(fk domain.ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		c.quote(fk.Name), c.quoteList(fk.Columns), c.quote(fk.ReferencedTable), c.quoteList(fk.ReferencedColumns))
}

func (c compiler) createTable(t *domain.Table, inlineFKs bool) string {
	// SQLiteの自動採番は単一カラムのINTEGER PRIMARY KEYでのみ表現できる
	sqliteAutoPK := ""
	if c.d == domain.DialectSQLite && t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 {
		if col, ok := t.Column(t.PrimaryKey.Columns[0]); ok && col.IsAutoincrement {
			sqliteAutoPK = col.Name
		}
	}

	var lines []string
	for _, col := range t.Columns {
		lines = append(lines, c.columnDef(col, col.Name == sqliteAutoPK))
	}
	if t.PrimaryKey != nil && sqliteAutoPK == "" {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", c.quote(t.PrimaryKey.Name), c.quoteList(t.PrimaryKey.Columns)))
	}
	if inlineFKs {
		for _, fk := range t.ForeignKeys {
			lines = append(lines, c.foreignKey(fk))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n);", c.quote(t.Name), strings.Join(lines, ",\n    "))
}

func (c compiler) alterColumn(op domain.Operation) (string, error) {
	col := *op.Column
	table := c.quote(op.Table)
	name := c.quote(col.Name)

	switch c.d {
	case domain.DialectPostgres:
		switch op.Kind {
		case domain.OpAlterColumnType:
			return c.alterColumnTypePostgres(op, table, name), nil
		case domain.OpAlterColumnNull:
			if col.NotNull {
				return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;", table, name), nil
			}
			return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", table, name), nil
		}
	case domain.DialectMySQL:
		if op.Kind != domain.OpAlterColumnDefault {
			return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s;", table, c.columnDef(col, false)), nil
		}
	default:
		return "", unsupported(op, c.d, "existing columns cannot be altered")
	}

	if col.Default == nil {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT;", table, name), nil
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;", table, name, *col.Default), nil
}

// alterColumnTypePostgres は型の変更とIDENTITYの付け外しを別々の文として出力する。
// OldColumnが無い場合は型が変わったものとして扱う。
func (c compiler) alterColumnTypePostgres(op domain.Operation, table, name string) string {
	col := *op.Column
	typeChanged, identityChanged := true, col.IsAutoincrement
	if old := op.OldColumn; old != nil {
		typeChanged = old.Type != col.Type || old.IsArray != col.IsArray || old.IsEnum != col.IsEnum
		identityChanged = old.IsAutoincrement != col.IsAutoincrement
	}

	var stmts []string
	if typeChanged {
		typ := c.columnType(col)
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s USING %s::%s;", table, name, typ, name, typ))
	}
	if identityChanged {
		if col.IsAutoincrement {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ADD GENERATED BY DEFAULT AS IDENTITY;", table, name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP IDENTITY IF EXISTS;", table, name))
		}
	}
	return strings.Join(stmts, "\n")
}

// renameConstraint はテーブル・カラムのリネームに追従しない制約・インデックス名を付け替える。
func (c compiler) renameConstraint(op domain.Operation) string {
	r := op.Rename
	table := c.quote(op.Table)
	from, to := c.quote(r.From), c.quote(r.To)

	switch c.d {
	case domain.DialectPostgres:
		if r.Kind == domain.ConstraintIndex {
			return fmt.Sprintf("ALTER INDEX %s RENAME TO %s;", from, to)
		}
		return fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s;", table, from, to)
	case domain.DialectMySQL:
		switch r.Kind {
		case domain.ConstraintUnique, domain.ConstraintIndex:
			return fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s;", table, from, to)
		case domain.ConstraintForeignKey:
			return fmt.Sprintf("-- WARNING: foreign key %s on %s keeps its name %s; MySQL cannot rename foreign keys", r.To, op.Table, r.From)
		}
		// 主キーの名前は常にPRIMARY
		return ""
	default:
		// SQLiteのインデックスは作り直す。主キーと外部キーはテーブル定義の一部で個別に削除されることもない
		switch r.Kind {
		case domain.ConstraintUnique:
			return fmt.Sprintf("DROP INDEX %s;\nCREATE UNIQUE INDEX %s ON %s (%s);", from, to, table, c.quoteList(r.Columns))
		case domain.ConstraintIndex:
			return fmt.Sprintf("DROP INDEX %s;\nCREATE INDEX %s ON %s (%s);", from, to, table, c.quoteList(r.Columns))
		}
		return ""
	}
}

func unsupported(op domain.Operation, d domain.Dialect, reason string) error {
	target := op.Table
	if target == "" && op.Enum != nil {
		target = op.Enum.Name
	}
	return fmt.Errorf("%w: %s on %s (%s): %s", domain.ErrUnsupportedOperation, op.Kind, target, d, reason)
}
