package domain

// DiffResult は2つのスナップショット間の構造差分を表す。
type DiffResult struct {
	AddedTables   []Table       `json:"addedTables"`
	RemovedTables []Table       `json:"removedTables"`
	AlteredTables []TableDiff   `json:"alteredTables"`
	RenamedTables []TableRename `json:"renamedTables"`

	AddedEnums   []Enum     `json:"addedEnums"`
	RemovedEnums []Enum     `json:"removedEnums"`
	AlteredEnums []EnumDiff `json:"alteredEnums"`

	// Enums は現在のスナップショットの列挙型定義（名前→定義）。
	Enums map[string]Enum `json:"-"`
}

// TableDiff は両方のスナップショットに存在するテーブルの差分を表す。
type TableDiff struct {
	Table string `json:"table"`

	AddedColumns   []Column       `json:"addedColumns"`
	RemovedColumns []Column       `json:"removedColumns"`
	AlteredColumns []ColumnChange `json:"alteredColumns"`
	RenamedColumns []ColumnRename `json:"renamedColumns"`

	AddedUniques       []UniqueConstraint `json:"addedUniques"`
	RemovedUniques     []UniqueConstraint `json:"removedUniques"`
	AddedIndexes       []Index            `json:"addedIndexes"`
	RemovedIndexes     []Index            `json:"removedIndexes"`
	AddedForeignKeys   []ForeignKey       `json:"addedForeignKeys"`
	RemovedForeignKeys []ForeignKey       `json:"removedForeignKeys"`

	PrimaryKey *PrimaryKeyChange `json:"primaryKey,omitempty"`

	// RenamedConstraints はテーブル・カラムのリネームで名前だけが変わった制約とインデックス。
	RenamedConstraints []ConstraintRename `json:"renamedConstraints"`
}

// ColumnChange は同名カラムの定義変更を表す。
type ColumnChange struct {
	Name string `json:"name"`
	From Column `json:"from"`
	To   Column `json:"to"`
}

// PrimaryKeyChange は主キーの変更を表す。From/Toのどちらかはnilになり得る。
type PrimaryKeyChange struct {
	From *PrimaryKey `json:"from,omitempty"`
	To   *PrimaryKey `json:"to,omitempty"`
}

// TableRename はテーブルのリネームを表す。
type TableRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ColumnRename はカラムのリネームを表す。
type ColumnRename struct {
	Table string `json:"table"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ConstraintKind は名前を持つ制約・インデックスの種類。
type ConstraintKind string

const (
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintIndex      ConstraintKind = "index"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ConstraintRename は制約・インデックスのリネームを表す。
// Tableはリネーム後のテーブル名、Columnsはリネーム後の対象カラム。
type ConstraintRename struct {
	Table   string         `json:"table"`
	Kind    ConstraintKind `json:"kind"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Columns []string       `json:"columns"`
}

// EnumDiff は列挙型の値集合の差分を表す。
type EnumDiff struct {
	Name          string   `json:"name"`
	AddedValues   []string `json:"addedValues"`
	RemovedValues []string `json:"removedValues"`
}

// IsEmpty はテーブル差分に変更が含まれないかを返す。
func (d *TableDiff) IsEmpty() bool {
	return len(d.AddedColumns) == 0 &&
		len(d.RemovedColumns) == 0 &&
		len(d.AlteredColumns) == 0 &&
		len(d.RenamedColumns) == 0 &&
		len(d.AddedUniques) == 0 &&
		len(d.RemovedUniques) == 0 &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0 &&
		len(d.AddedForeignKeys) == 0 &&
		len(d.RemovedForeignKeys) == 0 &&
		len(d.RenamedConstraints) == 0 &&
		d.PrimaryKey == nil
}

// IsEmpty は差分全体に変更が含まれないかを返す。
func (d *DiffResult) IsEmpty() bool {
	if d == nil {
		return true
	}
	for i := range d.AlteredTables {
		if !d.AlteredTables[i].IsEmpty() {
			return false
		}
	}
	return len(d.AddedTables) == 0 &&
		len(d.RemovedTables) == 0 &&
		len(d.RenamedTables) == 0 &&
		len(d.AddedEnums) == 0 &&
		len(d.RemovedEnums) == 0 &&
		len(d.AlteredEnums) == 0
}

// RenameMappings は呼び出し元が確定したリネーム指定。
type RenameMappings struct {
	Tables  []TableRename  `json:"tables"`
	Columns []ColumnRename `json:"columns"`
}

// RenameCandidates はヒューリスティックで推定したリネーム候補。自動適用はしない。
type RenameCandidates struct {
	Tables  []TableRename  `json:"tables"`
	Columns []ColumnRename `json:"columns"`
}
