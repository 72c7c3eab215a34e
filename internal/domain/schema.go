// Package domain はスキーマ・差分・マイグレーションのドメインモデルとルールを定義する。
package domain

import "strings"

// Snapshot はある時点のスキーマ構造を表す。部分的なスナップショットは存在しない。
type Snapshot struct {
	Tables []Table `json:"tables"`
	Enums  []Enum  `json:"enums"`
}

// Table はテーブル定義を表す。
type Table struct {
	Name              string             `json:"name"`
	Columns           []Column           `json:"columns"`
	PrimaryKey        *PrimaryKey        `json:"primaryKey,omitempty"`
	UniqueConstraints []UniqueConstraint `json:"uniqueConstraints"`
	Indexes           []Index            `json:"indexes"`
	ForeignKeys       []ForeignKey       `json:"foreignKeys"`
}

// Column はカラム定義を表す。
type Column struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"` // SQL型名。列挙型の場合は列挙型名
	NotNull         bool    `json:"notNull"`
	IsArray         bool    `json:"isArray"`
	Default         *string `json:"default,omitempty"` // 生のSQLデフォルト式
	IsAutoincrement bool    `json:"isAutoincrement"`
	IsEnum          bool    `json:"isEnum"`
}

// PrimaryKey は主キー制約を表す。
type PrimaryKey struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// UniqueConstraint は一意制約を表す。
type UniqueConstraint struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Index はインデックスを表す。
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// ForeignKey は外部キー制約を表す。
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
}

// Enum は列挙型を表す。Valuesの順序は意味を持つ。
type Enum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// PrimaryKeyName は主キー制約の決定的な名前を返す。
func PrimaryKeyName(table string) string {
	return table + "_pkey"
}

// UniqueName は一意制約の決定的な名前を返す。
func UniqueName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_key"
}

// IndexName はインデックスの決定的な名前を返す。
func IndexName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_idx"
}

// ForeignKeyName は外部キー制約の決定的な名前を返す。
func ForeignKeyName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_fkey"
}

// Normalize は名前の無い制約・インデックスに決定的な名前を付与する。
// 同じ構造からは常に同じ名前が得られる。
func (s *Snapshot) Normalize() {
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.PrimaryKey != nil && t.PrimaryKey.Name == "" {
			t.PrimaryKey.Name = PrimaryKeyName(t.Name)
		}
		for j := range t.UniqueConstraints {
			if t.UniqueConstraints[j].Name == "" {
				t.UniqueConstraints[j].Name = UniqueName(t.Name, t.UniqueConstraints[j].Columns)
			}
		}
		for j := range t.Indexes {
			if t.Indexes[j].Name == "" {
				t.Indexes[j].Name = IndexName(t.Name, t.Indexes[j].Columns)
			}
		}
		for j := range t.ForeignKeys {
			if t.ForeignKeys[j].Name == "" {
				t.ForeignKeys[j].Name = ForeignKeyName(t.Name, t.ForeignKeys[j].Columns)
			}
		}
	}
}

// Table は名前でテーブルを検索する。
func (s *Snapshot) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Column は名前でカラムを検索する。
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Equal はカラム名以外の属性が等しいかを返す。
func (c Column) Equal(o Column) bool {
	return c.Type == o.Type &&
		c.NotNull == o.NotNull &&
		c.IsArray == o.IsArray &&
		c.IsAutoincrement == o.IsAutoincrement &&
		c.IsEnum == o.IsEnum &&
		equalDefault(c.Default, o.Default)
}

func equalDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EqualStrings は順序付き文字列リストが等しいかを返す。
func EqualStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal は主キーの名前とカラム列が等しいかを返す。
func (p *PrimaryKey) Equal(o *PrimaryKey) bool {
	if p == nil || o == nil {
		return p == nil && o == nil
	}
	return p.Name == o.Name && EqualStrings(p.Columns, o.Columns)
}

// Equal は外部キーの定義が等しいかを返す。
func (f ForeignKey) Equal(o ForeignKey) bool {
	return f.Name == o.Name &&
		f.ReferencedTable == o.ReferencedTable &&
		EqualStrings(f.Columns, o.Columns) &&
		EqualStrings(f.ReferencedColumns, o.ReferencedColumns)
}
