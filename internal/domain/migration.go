package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はディスク上のマイグレーション成果物を表すドメインモデル
type Migration struct {
	Identifier string          `json:"identifier"`           // 時刻順の識別子（例: "20240101120000_add_users"）
	Name       string          `json:"name"`                 // 識別子から抽出したマイグレーション名
	Checksum   string          `json:"checksum"`             // 現在のSQL本文のチェックサム
	SQL        string          `json:"sql,omitempty"`        // SQL本文
	FilePath   string          `json:"file_path"`            // migration.sqlのパス
	AppliedAt  *time.Time      `json:"applied_at,omitempty"` // 適用日時（未適用の場合はnil）
	Status     MigrationStatus `json:"status"`               // 適用状態
}

// LogEntry はマイグレーションログの1行を表す。
type LogEntry struct {
	Identifier string
	Checksum   string
}

// AppliedMigration はトラッキングテーブル上の完了済みマイグレーションを表す。
type AppliedMigration struct {
	ID                string
	Identifier        string
	Checksum          string
	StartedAt         time.Time
	FinishedAt        *time.Time
	AppliedStepsCount int
}

// Checksum はSQL本文のSHA-256ダイジェストを16進文字列で返す。
func Checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
