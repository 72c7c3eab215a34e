package domain

// OperationKind は抽象DDL操作の種類を表す。
type OperationKind string

const (
	OpCreateEnum         OperationKind = "create_enum"
	OpAddEnumValue       OperationKind = "add_enum_value"
	OpDropEnum           OperationKind = "drop_enum"
	OpWarning            OperationKind = "warning"
	OpRenameTable        OperationKind = "rename_table"
	OpRenameColumn       OperationKind = "rename_column"
	OpRenameConstraint   OperationKind = "rename_constraint"
	OpCreateTable        OperationKind = "create_table"
	OpDropTable          OperationKind = "drop_table"
	OpAddColumn          OperationKind = "add_column"
	OpDropColumn         OperationKind = "drop_column"
	OpAlterColumnType    OperationKind = "alter_column_type"
	OpAlterColumnNull    OperationKind = "alter_column_nullability"
	OpAlterColumnDefault OperationKind = "alter_column_default"
	OpAddPrimaryKey      OperationKind = "add_primary_key"
	OpDropPrimaryKey     OperationKind = "drop_primary_key"
	OpAddUnique          OperationKind = "add_unique"
	OpDropUnique         OperationKind = "drop_unique"
	OpCreateIndex        OperationKind = "create_index"
	OpDropIndex          OperationKind = "drop_index"
	OpAddForeignKey      OperationKind = "add_foreign_key"
	OpDropForeignKey     OperationKind = "drop_foreign_key"
)

// Operation は方言非依存の単一DDL操作を表す。
// 種類ごとに必要なフィールドだけが設定される。
type Operation struct {
	Kind  OperationKind `json:"kind"`
	Table string        `json:"table,omitempty"`

	// リネーム元・先（テーブル/カラム）
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	TableDef *Table  `json:"tableDef,omitempty"`
	Column   *Column `json:"column,omitempty"`
	// OldColumn はカラム変更前の定義。逆操作の生成に使う。
	OldColumn *Column `json:"oldColumn,omitempty"`

	PrimaryKey *PrimaryKey       `json:"primaryKey,omitempty"`
	Unique     *UniqueConstraint `json:"unique,omitempty"`
	Index      *Index            `json:"index,omitempty"`
	ForeignKey *ForeignKey       `json:"foreignKey,omitempty"`
	Rename     *ConstraintRename `json:"rename,omitempty"`

	Enum  *Enum  `json:"enum,omitempty"`
	Value string `json:"value,omitempty"`

	// InlineForeignKeys はCREATE TABLE内に外部キーを含めるかどうか。
	InlineForeignKeys bool `json:"inlineForeignKeys,omitempty"`
	// EnumValues は列挙型名→値。ネイティブ列挙型を持たない方言でのカラム型展開に使う。
	EnumValues map[string][]string `json:"-"`

	// Message は実行されない警告注釈の本文。
	Message string `json:"message,omitempty"`
}

// Dialect は対象データベースの方言を表す。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect は文字列から方言を解釈する。
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case DialectPostgres, DialectMySQL, DialectSQLite:
		return Dialect(s), nil
	case "postgresql":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	}
	return "", NewValidationError("unknown dialect %q", s)
}

// TransactionalDDL はDDLをトランザクション内で実行できる方言かを返す。
func (d Dialect) TransactionalDDL() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// NativeEnums は独立した列挙型を持つ方言かを返す。
func (d Dialect) NativeEnums() bool {
	return d == DialectPostgres
}

// AlterConstraints は既存テーブルへ制約を追加・削除できる方言かを返す。
func (d Dialect) AlterConstraints() bool {
	return d != DialectSQLite
}
