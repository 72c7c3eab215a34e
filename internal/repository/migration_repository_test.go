package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schema-migrator/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// インメモリDBは接続ごとに別物になるため1接続に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func testMigration(identifier, sql string) *domain.Migration {
	return &domain.Migration{Identifier: identifier, SQL: sql, Checksum: domain.Checksum(sql)}
}

func TestMigrationRepository_EnsureTable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db, domain.DialectSQLite, "ignored", "")

	exists, err := repo.HasTable(ctx)
	if err != nil {
		t.Fatalf("HasTable failed: %v", err)
	}
	if exists {
		t.Fatal("expected tracking table to be absent before EnsureTable")
	}

	// 何度呼んでもよい
	for i := 0; i < 2; i++ {
		if err := repo.EnsureTable(ctx); err != nil {
			t.Fatalf("EnsureTable failed: %v", err)
		}
	}

	exists, err = repo.HasTable(ctx)
	if err != nil {
		t.Fatalf("HasTable failed: %v", err)
	}
	if !exists {
		t.Error("expected tracking table to exist")
	}
	if !db.Migrator().HasTable(DefaultTrackingTable) {
		t.Errorf("expected default table name %s", DefaultTrackingTable)
	}
}

func TestMigrationRepository_ApplyMigration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db, domain.DialectSQLite, "", "")
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	m := testMigration("20240101000000_init", `CREATE TABLE "users" ("id" INTEGER PRIMARY KEY); CREATE INDEX "users_id_idx" ON "users" ("id");`)
	statements := []string{`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY)`, `CREATE INDEX "users_id_idx" ON "users" ("id")`}
	if err := repo.ApplyMigration(ctx, m, statements); err != nil {
		t.Fatalf("ApplyMigration failed: %v", err)
	}

	if !db.Migrator().HasTable("users") {
		t.Error("expected users table to be created")
	}

	applied, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected 1 applied migration, got %d", len(applied))
	}
	a := applied[0]
	if a.Identifier != m.Identifier || a.Checksum != m.Checksum {
		t.Errorf("unexpected record %+v", a)
	}
	if a.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if a.AppliedStepsCount != 2 {
		t.Errorf("expected 2 applied steps, got %d", a.AppliedStepsCount)
	}
	if a.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestMigrationRepository_ApplyMigration_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db, domain.DialectSQLite, "", "")
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	m := testMigration("20240101000000_broken", "broken")
	err := repo.ApplyMigration(ctx, m, []string{
		`CREATE TABLE "partial" ("id" INTEGER)`,
		`THIS IS NOT SQL`,
	})
	if err == nil {
		t.Fatal("expected an error")
	}

	// トランザクションDDLのため、途中までの変更も残らない
	if db.Migrator().HasTable("partial") {
		t.Error("expected the partial table to be rolled back")
	}
	applied, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no tracking rows, got %d", len(applied))
	}
}

func TestMigrationRepository_RecordMigration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db, domain.DialectSQLite, "", "custom_tracking")
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	m := testMigration("20240101000000_baseline", `CREATE TABLE "never_run" ("id" INTEGER);`)
	if err := repo.RecordMigration(ctx, m, 1); err != nil {
		t.Fatalf("RecordMigration failed: %v", err)
	}

	if db.Migrator().HasTable("never_run") {
		t.Error("RecordMigration must not execute the SQL")
	}
	applied, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(applied) != 1 || applied[0].Identifier != m.Identifier {
		t.Errorf("expected the migration to be recorded, got %+v", applied)
	}
}

func TestMigrationRepository_FindAllApplied_SkipsUnfinishedAndRolledBack(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db, domain.DialectSQLite, "", "")
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	rows := []string{
		`INSERT INTO "_schema_migrations" (id, checksum, migration_name, finished_at, applied_steps_count) VALUES ('1', 'a', '20240101000000_done', CURRENT_TIMESTAMP, 1)`,
		`INSERT INTO "_schema_migrations" (id, checksum, migration_name, applied_steps_count) VALUES ('2', 'b', '20240102000000_running', 0)`,
		`INSERT INTO "_schema_migrations" (id, checksum, migration_name, finished_at, rolled_back_at, applied_steps_count) VALUES ('3', 'c', '20240103000000_undone', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 1)`,
	}
	for _, row := range rows {
		if err := db.Exec(row).Error; err != nil {
			t.Fatalf("failed to insert test data: %v", err)
		}
	}

	applied, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(applied) != 1 || applied[0].Identifier != "20240101000000_done" {
		t.Errorf("expected only the finished migration, got %+v", applied)
	}
}

func TestMigrationRepository_QualifiedName(t *testing.T) {
	pg := NewMigrationRepository(nil, domain.DialectPostgres, "meta", "")
	if got := pg.qualifiedName(); got != `"meta"."_schema_migrations"` {
		t.Errorf("unexpected postgres name %s", got)
	}
	my := NewMigrationRepository(nil, domain.DialectMySQL, "", "tracking")
	if got := my.qualifiedName(); got != "`tracking`" {
		t.Errorf("unexpected mysql name %s", got)
	}
	lite := NewMigrationRepository(nil, domain.DialectSQLite, "meta", "")
	if got := lite.tableRef(); got != DefaultTrackingTable {
		t.Errorf("expected sqlite to ignore the schema, got %s", got)
	}
}
