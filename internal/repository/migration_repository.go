package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schema-migrator/internal/domain"
)

// DefaultTrackingTable はトラッキングテーブルの既定名。
const DefaultTrackingTable = "_schema_migrations"

// MigrationModel はトラッキングテーブルのモデル。
type MigrationModel struct {
	ID                string     `gorm:"column:id;primaryKey;type:varchar(36)"`
	Checksum          string     `gorm:"column:checksum;not null"`
	MigrationName     string     `gorm:"column:migration_name;not null"`
	FinishedAt        *time.Time `gorm:"column:finished_at"`
	RolledBackAt      *time.Time `gorm:"column:rolled_back_at"`
	StartedAt         time.Time  `gorm:"column:started_at;not null"`
	AppliedStepsCount int        `gorm:"column:applied_steps_count;not null"`
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *MigrationModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *MigrationModel) toDomain() *domain.AppliedMigration {
	return &domain.AppliedMigration{
		ID:                m.ID,
		Identifier:        m.MigrationName,
		Checksum:          m.Checksum,
		StartedAt:         m.StartedAt,
		FinishedAt:        m.FinishedAt,
		AppliedStepsCount: m.AppliedStepsCount,
	}
}

// MigrationRepository はデータベース上のマイグレーション適用履歴を管理するリポジトリ。
type MigrationRepository struct {
	db      *gorm.DB
	dialect domain.Dialect
	schema  string
	table   string
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
// schemaはpostgres/mysqlでのみ使われ、sqliteでは無視される。
func NewMigrationRepository(db *gorm.DB, dialect domain.Dialect, schema, table string) *MigrationRepository {
	if table == "" {
		table = DefaultTrackingTable
	}
	if dialect == domain.DialectSQLite {
		schema = ""
	}
	return &MigrationRepository{db: db, dialect: dialect, schema: schema, table: table}
}

// tableRef はgormに渡すテーブル参照（gorm側でクオートされる）。
func (r *MigrationRepository) tableRef() string {
	if r.schema == "" {
		return r.table
	}
	return r.schema + "." + r.table
}

func (r *MigrationRepository) quote(ident string) string {
	if r.dialect == domain.DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (r *MigrationRepository) qualifiedName() string {
	if r.schema == "" {
		return r.quote(r.table)
	}
	return r.quote(r.schema) + "." + r.quote(r.table)
}

func (r *MigrationRepository) createTableSQL() string {
	var timestampType, now string
	switch r.dialect {
	case domain.DialectPostgres:
		timestampType, now = "TIMESTAMPTZ", "now()"
	case domain.DialectMySQL:
		timestampType, now = "DATETIME(3)", "CURRENT_TIMESTAMP(3)"
	default:
		timestampType, now = "DATETIME", "CURRENT_TIMESTAMP"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    checksum VARCHAR(64) NOT NULL,
    migration_name VARCHAR(255) NOT NULL,
    finished_at %s,
    rolled_back_at %s,
    started_at %s NOT NULL DEFAULT %s,
    applied_steps_count INTEGER NOT NULL DEFAULT 0
)`, r.qualifiedName(), timestampType, timestampType, timestampType, now)
}

// EnsureTable はトラッキングテーブルが無ければ作成する。何度呼んでもよい。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if r.schema != "" {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + r.quote(r.schema)
		if r.dialect == domain.DialectMySQL {
			stmt = "CREATE DATABASE IF NOT EXISTS " + r.quote(r.schema)
		}
		if err := db.Exec(stmt).Error; err != nil {
			slog.ErrorContext(ctx, "failed to create tracking schema",
				"operation", "ensure_tracking_table",
				"schema", r.schema,
				"error", err,
			)
			return fmt.Errorf("creating tracking schema: %w", err)
		}
	}
	if err := db.Exec(r.createTableSQL()).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create tracking table",
			"operation", "ensure_tracking_table",
			"table", r.tableRef(),
			"error", err,
		)
		return fmt.Errorf("creating tracking table: %w", err)
	}
	return nil
}

// HasTable はトラッキングテーブルが存在するか確認する。
func (r *MigrationRepository) HasTable(ctx context.Context) (bool, error) {
	return r.db.WithContext(ctx).Migrator().HasTable(r.tableRef()), nil
}

// FindAllApplied は完了済みかつロールバックされていないマイグレーション一覧を取得する。
func (r *MigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.AppliedMigration, error) {
	var models []MigrationModel
	err := r.db.WithContext(ctx).
		Table(r.tableRef()).
		Where("finished_at IS NOT NULL AND rolled_back_at IS NULL").
		Order("migration_name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all applied migrations",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	applied := make([]*domain.AppliedMigration, len(models))
	for i := range models {
		applied[i] = models[i].toDomain()
	}
	return applied, nil
}

// ApplyMigration は成果物の文を実行し、成功したらトラッキング行を記録する。
// トランザクションDDLを持つ方言では成果物全体を1つのトランザクションで実行する（全か無か）。
// それ以外の方言では文を順に実行し、失敗した時点で止める。
func (r *MigrationRepository) ApplyMigration(ctx context.Context, m *domain.Migration, statements []string) error {
	startedAt := time.Now().UTC()

	if r.dialect.TransactionalDDL() {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := execStatements(ctx, tx, m.Identifier, statements); err != nil {
				return err
			}
			// 履歴を記録（トランザクション内で実行するため、同じtxを使用）
			return r.insert(ctx, tx, m, startedAt, len(statements))
		})
	}

	db := r.db.WithContext(ctx)
	if err := execStatements(ctx, db, m.Identifier, statements); err != nil {
		return err
	}
	return r.insert(ctx, db, m, startedAt, len(statements))
}

func execStatements(ctx context.Context, db *gorm.DB, identifier string, statements []string) error {
	for i, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			slog.ErrorContext(ctx, "failed to execute migration SQL",
				"operation", "apply_migration",
				"identifier", identifier,
				"step", i+1,
				"error", err,
			)
			return fmt.Errorf("statement %d of %d: %w", i+1, len(statements), err)
		}
	}
	return nil
}

// RecordMigration はSQLを実行せずに適用済みとして記録する。
func (r *MigrationRepository) RecordMigration(ctx context.Context, m *domain.Migration, steps int) error {
	return r.insert(ctx, r.db.WithContext(ctx), m, time.Now().UTC(), steps)
}

func (r *MigrationRepository) insert(ctx context.Context, db *gorm.DB, m *domain.Migration, startedAt time.Time, steps int) error {
	finishedAt := time.Now().UTC()
	model := &MigrationModel{
		Checksum:          m.Checksum,
		MigrationName:     m.Identifier,
		StartedAt:         startedAt,
		FinishedAt:        &finishedAt,
		AppliedStepsCount: steps,
	}
	if err := db.Table(r.tableRef()).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"identifier", m.Identifier,
			"error", err,
		)
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}
